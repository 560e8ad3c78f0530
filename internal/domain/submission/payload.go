package submission

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"reviewsync/internal/domain/rating"
)

// Draft is the in-memory editable state for one month.
type Draft struct {
	Month             string
	SelfReview        string
	KPIRatings        rating.Map
	ValueRatings      rating.Map
	Certifications    []Certification
	RecognitionsCount int
}

// Payload is the canonical wire shape for both autosaved drafts and final
// submits. Field ordering inside slices is deterministic so that two builds
// of unchanged state serialize byte-identically; map keys are sorted by
// encoding/json.
type Payload struct {
	Month               string               `json:"month"`
	SelfReviewText      string               `json:"selfReviewText"`
	Certifications      []Certification      `json:"certifications"`
	KPIRatings          []rating.WireRating  `json:"kpiRatings"`
	WebknotValues       []string             `json:"webknotValues"`
	WebknotValueRatings map[string]float64   `json:"webknotValueRatings"`
	RecognitionsCount   int                  `json:"recognitionsCount"`
}

// BuildPayload assembles the canonical payload from draft state. Pure: the
// draft is not modified and equal drafts always produce equal payloads.
func BuildPayload(d Draft) Payload {
	certs := make([]Certification, len(d.Certifications))
	copy(certs, d.Certifications)
	sort.Slice(certs, func(i, j int) bool {
		if certs[i].Key() == certs[j].Key() {
			return certs[i].Name < certs[j].Name
		}
		return certs[i].Key() < certs[j].Key()
	})

	valueRatings := make(map[string]float64, len(d.ValueRatings))
	for id, v := range d.ValueRatings {
		valueRatings[id] = v
	}

	recognitions := d.RecognitionsCount
	if recognitions < 0 {
		recognitions = 0
	}

	return Payload{
		Month:               d.Month,
		SelfReviewText:      d.SelfReview,
		Certifications:      certs,
		KPIRatings:          rating.ToWire(d.KPIRatings),
		WebknotValues:       rating.SortedIDs(d.ValueRatings),
		WebknotValueRatings: valueRatings,
		RecognitionsCount:   recognitions,
	}
}

// Encode serializes a payload into its canonical byte form.
func Encode(p Payload) ([]byte, error) {
	return json.Marshal(p)
}

// Hash fingerprints a payload for change deduplication. Two hashes are equal
// iff the serialized payloads are byte-identical.
func Hash(p Payload) string {
	data, err := Encode(p)
	if err != nil {
		// Payload contains only marshalable fields; treat the impossible
		// case as always-dirty.
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
