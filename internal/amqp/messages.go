package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CommitKind identifies which parent entity a commit replaced rows for.
type CommitKind string

const (
	KindAnalysis CommitKind = "analysis"
	KindBudget   CommitKind = "budget"
)

// CommitMessage announces a successful replace-usages commit. The worker
// reloads the parent from storage, so only the key and summary travel.
type CommitMessage struct {
	ID        string          `json:"id"`
	Kind      CommitKind      `json:"kind"`
	Code      string          `json:"code"`
	Total     decimal.Decimal `json:"total"`
	Rows      int             `json:"rows"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewCommitMessage creates a message with a fresh id and the current time.
func NewCommitMessage(kind CommitKind, code string, total decimal.Decimal, rows int) *CommitMessage {
	return &CommitMessage{
		ID:        uuid.NewString(),
		Kind:      kind,
		Code:      code,
		Total:     total,
		Rows:      rows,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *CommitMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// CommitMessageFromJSON decodes and checks a message body.
func CommitMessageFromJSON(data []byte) (*CommitMessage, error) {
	var msg CommitMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Kind != KindAnalysis && msg.Kind != KindBudget {
		return nil, fmt.Errorf("unknown commit kind %q", msg.Kind)
	}
	if msg.Code == "" {
		return nil, errors.New("commit message without code")
	}
	return &msg, nil
}
