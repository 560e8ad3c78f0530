package submission

import (
	"regexp"
	"strings"
	"time"

	"reviewsync/internal/domain/rating"
)

// Month statuses reported by the backend. Comparison is case-insensitive.
const (
	StatusDraft       = "DRAFT"
	StatusSubmitted   = "SUBMITTED"
	StatusApproved    = "APPROVED"
	StatusCompleted   = "COMPLETED"
	StatusFinal       = "FINAL"
	StatusNeedsReview = "NEEDS_REVIEW"
)

var lockedStatuses = map[string]struct{}{
	StatusSubmitted: {},
	StatusApproved:  {},
	StatusCompleted: {},
	StatusFinal:     {},
}

var monthKeyPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// ValidMonthKey reports whether s is a YYYY-MM review cycle key.
func ValidMonthKey(s string) bool {
	return monthKeyPattern.MatchString(strings.TrimSpace(s))
}

// Meta is the authoritative server-side record pointer for one month.
type Meta struct {
	ID          string
	Month       string
	Status      string
	SubmittedAt *time.Time
	UpdatedAt   *time.Time
}

// Locked derives the one-way lock from server truth: a terminal status or a
// recorded submission timestamp means no further client mutation.
func (m Meta) Locked() bool {
	status := strings.ToUpper(strings.TrimSpace(m.Status))
	if _, terminal := lockedStatuses[status]; terminal {
		return true
	}
	return m.SubmittedAt != nil
}

// Certification is one selected certification. Complete only when both the
// name and the attached proof are present.
type Certification struct {
	Name  string `json:"name"`
	Proof string `json:"proof"`
}

func (c Certification) Complete() bool {
	return strings.TrimSpace(c.Name) != "" && strings.TrimSpace(c.Proof) != ""
}

// Key is the uniqueness key for a selection.
func (c Certification) Key() string {
	return strings.ToLower(strings.TrimSpace(c.Name))
}

// Remote is a hydration result: the record pointer plus whatever draft fields
// the server already holds.
type Remote struct {
	Meta              Meta
	SelfReview        string
	KPIRatings        rating.Map
	ValueRatings      rating.Map
	Certifications    []Certification
	RecognitionsCount int
}

var metaIDFields = []string{"id", "submissionId", "_id"}
var metaMonthFields = []string{"month", "reviewMonth"}
var metaStatusFields = []string{"status", "reviewStatus"}

// DecodeRemote converts the untrusted monthly-submission body into the strict
// model. This is the only place raw submission shapes are inspected.
func DecodeRemote(raw map[string]any) Remote {
	r := Remote{
		Meta: Meta{
			ID:          pickString(raw, metaIDFields),
			Month:       pickString(raw, metaMonthFields),
			Status:      pickString(raw, metaStatusFields),
			SubmittedAt: pickTime(raw, "submittedAt"),
			UpdatedAt:   pickTime(raw, "updatedAt"),
		},
		SelfReview:   pickString(raw, []string{"selfReviewText", "selfReview"}),
		KPIRatings:   rating.Normalize(raw["kpiRatings"]),
		ValueRatings: rating.Normalize(raw["webknotValueRatings"]),
	}

	// Legacy records carry value selections without scores.
	if len(r.ValueRatings) == 0 {
		r.ValueRatings = rating.Normalize(raw["webknotValues"])
	}

	if certs, ok := raw["certifications"].([]any); ok {
		seen := map[string]struct{}{}
		for _, entry := range certs {
			obj, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			cert := Certification{
				Name:  pickString(obj, []string{"name", "certification"}),
				Proof: pickString(obj, []string{"proof", "proofUrl", "link"}),
			}
			if cert.Name == "" {
				continue
			}
			if _, dup := seen[cert.Key()]; dup {
				continue
			}
			seen[cert.Key()] = struct{}{}
			r.Certifications = append(r.Certifications, cert)
		}
	}

	if n, ok := raw["recognitionsCount"].(float64); ok && n > 0 {
		r.RecognitionsCount = int(n)
	}
	return r
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

func pickTime(raw map[string]any, field string) *time.Time {
	s, ok := raw[field].(string)
	if !ok || strings.TrimSpace(s) == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &parsed
}
