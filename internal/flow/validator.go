package flow

import (
	"log/slog"

	"github.com/carelinq/eligibility-agent/internal/models"
)

// Verdict classifies whether an eligibility result answers the user's question.
type Verdict string

const (
	// VerdictSatisfied means the result answers the question that was asked.
	VerdictSatisfied Verdict = "satisfied"
	// VerdictNeedsMoreInfo means disambiguating input is required before the
	// question can be answered.
	VerdictNeedsMoreInfo Verdict = "needs_more_info"
	// VerdictTerminal means no further gathering can improve the answer; the
	// negative or error outcome is itself the answer.
	VerdictTerminal Verdict = "terminal"
)

// ValidationResult pairs a verdict with an optional reason for NeedsMoreInfo.
type ValidationResult struct {
	Verdict Verdict
	Reason  string
}

// ResponseValidator inspects an EligibilityResult against the original intent
// and decides whether it actually answers the question. This prevents
// declaring victory on a result that answers a different question than the
// one asked.
type ResponseValidator struct{}

// Validate applies the verdict rules.
func (ResponseValidator) Validate(intent models.Intent, result *models.EligibilityResult) ValidationResult {
	if result == nil {
		return ValidationResult{Verdict: VerdictNeedsMoreInfo, Reason: "no eligibility result available"}
	}

	// Negative and error outcomes are answers in themselves; nothing more to
	// gather, finalize with that explanation rather than looping.
	if result.IsTerminalNegative() {
		return ValidationResult{Verdict: VerdictTerminal}
	}

	// A procedure or medication question answered without a covered item means
	// the lookup ran without the relevant code. RequirementPolicy should
	// prevent this, but guard against it anyway.
	if (intent == models.IntentProcedureCheck || intent == models.IntentMedicationCheck) && result.CoveredItem == "" {
		slog.Warn("ResponseValidator.Validate: result missing covered item for specific intent", "intent", intent, "outcome", result.Outcome)
		return ValidationResult{Verdict: VerdictNeedsMoreInfo, Reason: "code required"}
	}

	return ValidationResult{Verdict: VerdictSatisfied}
}
