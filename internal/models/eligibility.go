// Package models defines the eligibility result variants returned by the gateway.
package models

import "time"

// EligibilityOutcome tags the variant of an EligibilityResult.
type EligibilityOutcome string

const (
	// OutcomeEligible means active coverage and the requested item is covered.
	OutcomeEligible EligibilityOutcome = "eligible"
	// OutcomeEligibleConditional means covered but prior authorization is required.
	OutcomeEligibleConditional EligibilityOutcome = "eligible_with_conditions"
	// OutcomeNotCovered means the requested procedure or medication is excluded.
	OutcomeNotCovered EligibilityOutcome = "not_covered"
	// OutcomeInactiveCoverage means the member exists but coverage is not in
	// force: terminated, or not yet effective on the service date.
	OutcomeInactiveCoverage EligibilityOutcome = "inactive_coverage"
	// OutcomeMemberNotFound means no member matches the given ID and DOB.
	OutcomeMemberNotFound EligibilityOutcome = "member_not_found"
	// OutcomeLookupError means the lookup collaborator itself failed. It is
	// distinguished from MemberNotFound: the input may be fine.
	OutcomeLookupError EligibilityOutcome = "lookup_error"
)

// MemberInfo identifies the member a result refers to.
type MemberInfo struct {
	MemberID     string `json:"member_id"`
	Name         string `json:"name"`
	DateOfBirth  string `json:"dob"`
	PolicyNumber string `json:"policy_number,omitempty"`
	PlanType     string `json:"plan_type,omitempty"`
}

// BenefitInfo carries the financial details surfaced for covered services.
type BenefitInfo struct {
	DeductibleIndividual float64  `json:"deductible_individual"`
	DeductibleMet        float64  `json:"deductible_met"`
	DeductibleRemaining  float64  `json:"deductible_remaining"`
	OutOfPocketMax       float64  `json:"out_of_pocket_max"`
	OutOfPocketMet       float64  `json:"out_of_pocket_met"`
	Copay                *float64 `json:"copay,omitempty"` // nil when deductible still applies
}

// EligibilityResult is the immutable value returned by the gateway. The
// Outcome tag selects which optional fields are meaningful.
type EligibilityResult struct {
	Outcome EligibilityOutcome `json:"outcome"`

	Member  *MemberInfo  `json:"member,omitempty"`
	Benefit *BenefitInfo `json:"benefit,omitempty"`

	// CoveredItem names the procedure or medication the result is about.
	// Empty for general coverage checks.
	CoveredItem string `json:"covered_item,omitempty"`
	// CoveredItemCode is the CPT or NDC code behind CoveredItem.
	CoveredItemCode   string `json:"covered_item_code,omitempty"`
	RequiresPriorAuth bool   `json:"requires_prior_auth,omitempty"`

	// Reason explains NotCovered and InactiveCoverage outcomes.
	Reason string `json:"reason,omitempty"`
	// TerminatedOn is set for InactiveCoverage (YYYY-MM-DD).
	TerminatedOn string `json:"terminated_on,omitempty"`
	// Cause describes LookupError outcomes.
	Cause string `json:"cause,omitempty"`

	CheckedAt time.Time `json:"checked_at"`
}

// IsTerminalNegative reports whether the result is one of the variants that
// cannot be improved by gathering more input.
func (r *EligibilityResult) IsTerminalNegative() bool {
	switch r.Outcome {
	case OutcomeNotCovered, OutcomeInactiveCoverage, OutcomeMemberNotFound, OutcomeLookupError:
		return true
	default:
		return false
	}
}

// IsEligible reports whether the result is a positive coverage outcome.
func (r *EligibilityResult) IsEligible() bool {
	return r.Outcome == OutcomeEligible || r.Outcome == OutcomeEligibleConditional
}

// TestMember is a static reference entry for the mock data source.
type TestMember struct {
	MemberID string `json:"member_id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
}

// ProcedureInfo is a static reference entry for a known CPT code.
type ProcedureInfo struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	Covered      bool   `json:"covered"`
	RequiresAuth bool   `json:"requires_auth"`
}

// MedicationInfo is a static reference entry for a known NDC code.
type MedicationInfo struct {
	NDCCode      string   `json:"ndc_code"`
	Name         string   `json:"name"`
	Covered      bool     `json:"covered"`
	Tier         *int     `json:"tier,omitempty"`
	Copay        *float64 `json:"copay,omitempty"`
	RequiresAuth bool     `json:"requires_auth"`
}
