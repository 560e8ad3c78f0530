package catalog

import (
	"strings"
)

type Kind string

const (
	KindKPI   Kind = "kpi"
	KindValue Kind = "value"
)

// Definition is a KPI or company-value entry from the admin registry,
// normalized from the server's loose shape. Identity is ID; the rest is
// best-effort display data. Immutable once decoded.
type Definition struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Weight float64 `json:"weight,omitempty"`
	Pillar string  `json:"pillar,omitempty"`
	Band   string  `json:"band,omitempty"`
	Stream string  `json:"stream,omitempty"`
}

// Page is one cursor page of definitions. An empty NextCursor means the
// listing is exhausted.
type Page struct {
	Items      []Definition
	NextCursor string
}

var defIDFields = []string{"id", "kpiId", "valueId", "_id"}
var defTitleFields = []string{"title", "name", "label"}
var defWeightFields = []string{"weight", "weightage"}
var defPillarFields = []string{"pillar", "category"}

// DecodeDefinition converts one untrusted server object into a Definition.
// Entries without a usable id are rejected. All raw-shape inspection happens
// here; callers only ever see the strict model.
func DecodeDefinition(raw map[string]any) (Definition, bool) {
	def := Definition{
		ID:     pickString(raw, defIDFields),
		Title:  pickString(raw, defTitleFields),
		Pillar: pickString(raw, defPillarFields),
		Band:   pickString(raw, []string{"band"}),
		Stream: pickString(raw, []string{"stream"}),
	}
	if def.ID == "" {
		return Definition{}, false
	}
	if w, ok := pickNumber(raw, defWeightFields); ok {
		def.Weight = w
	}
	if def.Title == "" {
		def.Title = def.ID
	}
	return def, true
}

// DecodePage decodes a raw page body. Malformed items are dropped.
func DecodePage(items []any, nextCursor string) Page {
	page := Page{NextCursor: strings.TrimSpace(nextCursor)}
	for _, entry := range items {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if def, ok := DecodeDefinition(obj); ok {
			page.Items = append(page.Items, def)
		}
	}
	return page
}

func pickString(raw map[string]any, fields []string) string {
	for _, f := range fields {
		if v, ok := raw[f]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func pickNumber(raw map[string]any, fields []string) (float64, bool) {
	for _, f := range fields {
		switch v := raw[f].(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		}
	}
	return 0, false
}
