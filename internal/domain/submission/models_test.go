package submission

import (
	"testing"
	"time"
)

func TestMetaLockedByStatus(t *testing.T) {
	cases := []struct {
		status string
		want   bool
	}{
		{"SUBMITTED", true},
		{"submitted", true},
		{" Approved ", true},
		{"COMPLETED", true},
		{"FINAL", true},
		{"DRAFT", false},
		{"NEEDS_REVIEW", false},
		{"", false},
		{"unknown_status", false},
	}
	for _, tc := range cases {
		m := Meta{Status: tc.status}
		if got := m.Locked(); got != tc.want {
			t.Fatalf("status %q: expected locked=%v, got %v", tc.status, tc.want, got)
		}
	}
}

func TestMetaLockedBySubmittedAt(t *testing.T) {
	at := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	m := Meta{Status: "DRAFT", SubmittedAt: &at}
	if !m.Locked() {
		t.Fatal("expected submittedAt to lock regardless of status")
	}
}

func TestValidMonthKey(t *testing.T) {
	valid := []string{"2024-03", "1999-12", " 2024-01 "}
	invalid := []string{"2024-13", "2024-00", "2024-3", "202403", "march", ""}
	for _, s := range valid {
		if !ValidMonthKey(s) {
			t.Fatalf("expected %q to be a valid month key", s)
		}
	}
	for _, s := range invalid {
		if ValidMonthKey(s) {
			t.Fatalf("expected %q to be rejected", s)
		}
	}
}

func TestDecodeRemote(t *testing.T) {
	raw := map[string]any{
		"submissionId": "sub-1",
		"reviewMonth":  "2024-03",
		"reviewStatus": "SUBMITTED",
		"submittedAt":  "2024-03-05T10:00:00Z",
		"selfReview":   "Shipped X",
		"kpiRatings": []any{
			map[string]any{"kpiId": "K1", "rating": 4.2},
			map[string]any{"kpiId": "K2", "selfRating": "3.5"},
		},
		"webknotValueRatings": map[string]any{"V1": 4.0},
		"certifications": []any{
			map[string]any{"name": "AWS SAA", "proofUrl": "cred-123"},
			map[string]any{"certification": "aws saa", "proof": "dup"},
			map[string]any{"proof": "nameless"},
		},
		"recognitionsCount": 2.0,
	}
	r := DecodeRemote(raw)
	if r.Meta.ID != "sub-1" || r.Meta.Month != "2024-03" {
		t.Fatalf("unexpected meta: %+v", r.Meta)
	}
	if !r.Meta.Locked() {
		t.Fatal("expected decoded meta to derive locked")
	}
	if r.SelfReview != "Shipped X" {
		t.Fatalf("unexpected self review: %q", r.SelfReview)
	}
	if r.KPIRatings["K1"] != 4.2 || r.KPIRatings["K2"] != 3.5 {
		t.Fatalf("unexpected kpi ratings: %v", r.KPIRatings)
	}
	if r.ValueRatings["V1"] != 4.0 {
		t.Fatalf("unexpected value ratings: %v", r.ValueRatings)
	}
	if len(r.Certifications) != 1 || r.Certifications[0].Proof != "cred-123" {
		t.Fatalf("expected one deduplicated certification, got %v", r.Certifications)
	}
	if r.RecognitionsCount != 2 {
		t.Fatalf("expected 2 recognitions, got %d", r.RecognitionsCount)
	}
}

func TestDecodeRemoteLegacyValueSelection(t *testing.T) {
	r := DecodeRemote(map[string]any{
		"id":            "sub-2",
		"month":         "2024-02",
		"status":        "DRAFT",
		"webknotValues": []any{"V1", "V2"},
	})
	if r.ValueRatings["V1"] == 0 || r.ValueRatings["V2"] == 0 {
		t.Fatalf("expected legacy selections to get fallback ratings, got %v", r.ValueRatings)
	}
	if r.Meta.Locked() {
		t.Fatal("draft without submittedAt must not be locked")
	}
}
