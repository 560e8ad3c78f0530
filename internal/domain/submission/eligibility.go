package submission

import (
	"strings"

	"reviewsync/internal/domain/catalog"
	"reviewsync/internal/domain/rating"
)

// Final-submit precondition messages, surfaced verbatim to the user.
const (
	MsgWriteSelfReview = "write your self review first"
	MsgRateAllKPIs     = "rate all KPIs first"
	MsgProofAllCerts   = "add proof for all selected certifications"
	MsgWaitForKPIs     = "wait for KPIs to finish loading"
)

// EligibilityInput is everything the evaluator needs to decide whether a
// final submit may proceed right now.
type EligibilityInput struct {
	Locked          bool
	KPIsFullyLoaded bool
	ApplicableKPIs  []catalog.Definition
	Draft           Draft
}

// ValidateFinalSubmit re-checks every final-submit precondition and returns
// the first unmet one as a descriptive error. Called both when deriving the
// observable CanFinalSubmit flag and again at submit time, so a stale UI can
// never push an ineligible submission to the server.
func ValidateFinalSubmit(in EligibilityInput) error {
	if in.Locked {
		return ErrLocked
	}
	if strings.TrimSpace(in.Draft.SelfReview) == "" {
		return validationErr(MsgWriteSelfReview)
	}
	for _, kpi := range in.ApplicableKPIs {
		v, rated := in.Draft.KPIRatings[kpi.ID]
		if !rated || !rating.Valid(v) {
			return validationErr(MsgRateAllKPIs)
		}
	}
	for _, cert := range in.Draft.Certifications {
		if !cert.Complete() {
			return validationErr(MsgProofAllCerts)
		}
	}
	if !in.KPIsFullyLoaded {
		return validationErr(MsgWaitForKPIs)
	}
	return nil
}

// CanFinalSubmit is the boolean view of ValidateFinalSubmit.
func CanFinalSubmit(in EligibilityInput) bool {
	return ValidateFinalSubmit(in) == nil
}
