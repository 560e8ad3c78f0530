package submission

import (
	"errors"
	"testing"

	"reviewsync/internal/domain/catalog"
	"reviewsync/internal/domain/rating"
)

func threeKPIs() []catalog.Definition {
	return []catalog.Definition{
		{ID: "K1", Title: "Delivery", Weight: 40},
		{ID: "K2", Title: "Quality", Weight: 35},
		{ID: "K3", Title: "Collaboration", Weight: 25},
	}
}

func eligibleInput() EligibilityInput {
	return EligibilityInput{
		KPIsFullyLoaded: true,
		ApplicableKPIs:  threeKPIs(),
		Draft: Draft{
			Month:      "2024-03",
			SelfReview: "Shipped X",
			KPIRatings: rating.Map{"K1": 4.2, "K2": 3.5, "K3": 5.0},
		},
	}
}

func TestCanFinalSubmitRequiresAllKPIsRated(t *testing.T) {
	in := eligibleInput()
	delete(in.Draft.KPIRatings, "K3")
	if CanFinalSubmit(in) {
		t.Fatal("expected ineligible with K3 unrated")
	}
	err := ValidateFinalSubmit(in)
	if !IsValidation(err) || err.Error() != MsgRateAllKPIs {
		t.Fatalf("expected %q, got %v", MsgRateAllKPIs, err)
	}

	in.Draft.KPIRatings["K3"] = 5.0
	if !CanFinalSubmit(in) {
		t.Fatal("expected eligible once K3 is rated")
	}
}

func TestCanFinalSubmitRequiresSelfReview(t *testing.T) {
	in := eligibleInput()
	in.Draft.SelfReview = "   "
	err := ValidateFinalSubmit(in)
	if err == nil || err.Error() != MsgWriteSelfReview {
		t.Fatalf("expected %q, got %v", MsgWriteSelfReview, err)
	}
}

func TestCanFinalSubmitRequiresCertProof(t *testing.T) {
	in := eligibleInput()
	in.Draft.Certifications = []Certification{{Name: "AWS SAA"}}
	err := ValidateFinalSubmit(in)
	if err == nil || err.Error() != MsgProofAllCerts {
		t.Fatalf("expected %q, got %v", MsgProofAllCerts, err)
	}

	in.Draft.Certifications[0].Proof = "cred-123"
	if !CanFinalSubmit(in) {
		t.Fatal("expected eligible once proof attached")
	}
}

func TestCanFinalSubmitRequiresFullLoad(t *testing.T) {
	in := eligibleInput()
	in.KPIsFullyLoaded = false
	err := ValidateFinalSubmit(in)
	if err == nil || err.Error() != MsgWaitForKPIs {
		t.Fatalf("expected %q, got %v", MsgWaitForKPIs, err)
	}
}

func TestCanFinalSubmitRejectsLocked(t *testing.T) {
	in := eligibleInput()
	in.Locked = true
	if err := ValidateFinalSubmit(in); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestCanFinalSubmitIgnoresInapplicableKPIs(t *testing.T) {
	in := eligibleInput()
	// A KPI outside the user's band/stream was filtered out before the
	// evaluator ran; only the applicable set needs ratings.
	delete(in.Draft.KPIRatings, "K3")
	in.ApplicableKPIs = in.ApplicableKPIs[:2]
	if !CanFinalSubmit(in) {
		t.Fatal("expected eligible when only inapplicable KPIs are unrated")
	}
}
