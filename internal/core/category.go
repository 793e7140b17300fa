package core

import "strings"

// Category groups resources for presentation. It has no effect on totals.
type Category string

const (
	Labor     Category = "labor"
	Equipment Category = "equipment"
	Material  Category = "material"
)

// Categories lists every category in display order.
var Categories = []Category{Labor, Equipment, Material}

// Classify derives the category from the resource code prefix:
// MO* is labor, MQ* is equipment, anything else is material.
func Classify(resourceCode string) Category {
	code := strings.ToUpper(strings.TrimSpace(resourceCode))
	switch {
	case strings.HasPrefix(code, "MO"):
		return Labor
	case strings.HasPrefix(code, "MQ"):
		return Equipment
	default:
		return Material
	}
}

// Label returns the Spanish heading used in exported documents.
func (c Category) Label() string {
	switch c {
	case Labor:
		return "Mano de obra"
	case Equipment:
		return "Equipo"
	default:
		return "Materiales"
	}
}

// GroupByCategory splits analysis rows by category, preserving row order.
func GroupByCategory(rows []AnalysisResourceUsage) map[Category][]AnalysisResourceUsage {
	out := make(map[Category][]AnalysisResourceUsage, len(Categories))
	for _, r := range rows {
		c := Classify(r.ResourceCode)
		out[c] = append(out[c], r)
	}
	return out
}
