package rating

import "testing"

func TestNormalizeMapInput(t *testing.T) {
	got := Normalize(map[string]any{
		"k1": 4.25,
		"k2": "3.5",
		"k3": 7.0,
		"k4": 0.4,
		"k5": "not a number",
	})
	if len(got) != 2 {
		t.Fatalf("expected 2 kept ratings, got %v", got)
	}
	if got["k1"] != 4.3 {
		t.Fatalf("expected k1 rounded to 4.3, got %v", got["k1"])
	}
	if got["k2"] != 3.5 {
		t.Fatalf("expected k2 3.5, got %v", got["k2"])
	}
}

func TestNormalizeObjectArrayAltFields(t *testing.T) {
	got := Normalize([]any{
		map[string]any{"kpiId": "k1", "selfRating": 4.0},
		map[string]any{"id": "k2", "score": "2.75"},
		map[string]any{"valueId": "v1", "rating": 5},
		map[string]any{"id": "", "rating": 3.0},
		map[string]any{"id": "k9"},
	})
	if len(got) != 3 {
		t.Fatalf("expected 3 kept ratings, got %v", got)
	}
	if got["k1"] != 4.0 || got["k2"] != 2.8 || got["v1"] != 5.0 {
		t.Fatalf("unexpected ratings: %v", got)
	}
}

func TestNormalizeLegacyIDList(t *testing.T) {
	got := Normalize([]any{"v1", "v2"})
	if got["v1"] != LegacyFallback || got["v2"] != LegacyFallback {
		t.Fatalf("expected fallback ratings, got %v", got)
	}
}

func TestNormalizeNeverEmitsOutOfRange(t *testing.T) {
	inputs := []float64{-1, 0, 0.94, 0.96, 5.04, 5.05, 100, 4.44}
	for _, v := range inputs {
		got := Normalize(map[string]any{"id": v})
		for _, stored := range got {
			if stored < Min || stored > Max {
				t.Fatalf("input %v stored out-of-range %v", v, stored)
			}
			if Round1(stored) != stored {
				t.Fatalf("input %v stored unrounded %v", v, stored)
			}
		}
	}
	// 0.96 rounds to 1.0 and must be kept; 0.94 rounds to 0.9 and must not.
	if got := Normalize(map[string]any{"id": 0.96}); got["id"] != 1.0 {
		t.Fatalf("expected 0.96 to round into range, got %v", got)
	}
	if got := Normalize(map[string]any{"id": 0.94}); len(got) != 0 {
		t.Fatalf("expected 0.94 to be dropped, got %v", got)
	}
}

func TestSetRejectsInvalid(t *testing.T) {
	m := Map{}
	if m.Set("k1", 5.6) {
		t.Fatal("expected 5.6 to be rejected")
	}
	if m.Set("", 3.0) {
		t.Fatal("expected empty id to be rejected")
	}
	if !m.Set("k1", 3.14) {
		t.Fatal("expected 3.14 to be kept")
	}
	if m["k1"] != 3.1 {
		t.Fatalf("expected rounding on write, got %v", m["k1"])
	}
}

func TestToWireDeterministicOrder(t *testing.T) {
	m := Map{"10": 3.0, "2": 4.0, "k-b": 2.5, "k-a": 1.5}
	wire := ToWire(m)
	wantOrder := []string{"2", "10", "k-a", "k-b"}
	for i, w := range wire {
		if w.ID != wantOrder[i] {
			t.Fatalf("position %d: expected %s, got %s", i, wantOrder[i], w.ID)
		}
	}
}
