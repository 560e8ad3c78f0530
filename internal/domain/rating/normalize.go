package rating

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

const (
	Min = 1.0
	Max = 5.0

	// Legacy value selections arrive as bare id lists with no score attached.
	LegacyFallback = 3.0
)

// Map holds canonical ratings keyed by definition id. Every stored value is
// in [Min, Max] and rounded to one decimal.
type Map map[string]float64

var idFields = []string{"id", "kpiId", "valueId", "definitionId", "_id"}
var ratingFields = []string{"rating", "score", "value", "selfRating"}

// Round1 is the canonical write-path rounding rule.
func Round1(x float64) float64 {
	return math.Round(x*10) / 10
}

// Valid reports whether v is a storable rating after rounding.
func Valid(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	v = Round1(v)
	return v >= Min && v <= Max
}

// Set stores a rating if it is in range, returning whether it was kept.
// Out-of-range values are dropped, never clamped.
func (m Map) Set(id string, v float64) bool {
	id = strings.TrimSpace(id)
	if id == "" || !Valid(v) {
		return false
	}
	m[id] = Round1(v)
	return true
}

// Clone returns an independent copy.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for id, v := range m {
		out[id] = v
	}
	return out
}

// Normalize converts a heterogeneous server or client rating shape into a
// canonical Map. Accepted inputs:
//   - map[string]any of id -> number or numeric string
//   - []any of objects carrying an id field and a rating field under any of
//     the known alternate names
//   - []any of bare scalar ids (legacy value selections; each gets
//     LegacyFallback)
//
// Malformed entries are dropped silently. Normalize never panics and never
// returns nil.
func Normalize(input any) Map {
	out := Map{}
	switch v := input.(type) {
	case nil:
		return out
	case Map:
		for id, r := range v {
			out.Set(id, r)
		}
	case map[string]float64:
		for id, r := range v {
			out.Set(id, r)
		}
	case map[string]any:
		for id, raw := range v {
			if r, ok := asNumber(raw); ok {
				out.Set(id, r)
			}
		}
	case []any:
		for _, entry := range v {
			switch item := entry.(type) {
			case map[string]any:
				id := firstString(item, idFields)
				r, ok := firstNumber(item, ratingFields)
				if !ok {
					continue
				}
				out.Set(id, r)
			case string:
				out.Set(item, LegacyFallback)
			}
		}
	}
	return out
}

// WireRating is the payload element shape for one rated definition.
type WireRating struct {
	ID     string  `json:"id"`
	Rating float64 `json:"rating"`
}

// ToWire flattens a Map into the wire array, sorted by id ascending with
// numeric-aware comparison so repeated builds are byte-identical.
func ToWire(m Map) []WireRating {
	out := make([]WireRating, 0, len(m))
	for id, v := range m {
		out = append(out, WireRating{ID: id, Rating: v})
	}
	sort.Slice(out, func(i, j int) bool {
		return LessID(out[i].ID, out[j].ID)
	})
	return out
}

// SortedIDs returns the map's keys in the same order ToWire uses.
func SortedIDs(m Map) []string {
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return LessID(out[i], out[j]) })
	return out
}

// LessID orders ids numerically when both parse as integers, falling back to
// plain string comparison.
func LessID(a, b string) bool {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		if na != nb {
			return na < nb
		}
		return a < b
	}
	return a < b
}

func asNumber(raw any) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func firstString(item map[string]any, fields []string) string {
	for _, f := range fields {
		if raw, ok := item[f]; ok {
			if s, ok := raw.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func firstNumber(item map[string]any, fields []string) (float64, bool) {
	for _, f := range fields {
		if raw, ok := item[f]; ok {
			if n, ok := asNumber(raw); ok {
				return n, true
			}
		}
	}
	return 0, false
}
