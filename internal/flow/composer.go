package flow

import (
	"fmt"
	"strings"

	"github.com/carelinq/eligibility-agent/internal/models"
)

// ResponseComposer renders the agent's outgoing message for each kind of
// turn: a request for missing fields, a final eligibility explanation, or a
// give-up message after repeated failed gathering.
type ResponseComposer interface {
	ComposeGatherInfo(state *models.ConversationState, missing []models.FieldName) string
	ComposeFinal(state *models.ConversationState, result *models.EligibilityResult) string
	ComposeGiveUp(state *models.ConversationState) string
}

// TemplateComposer renders deterministic messages. It is the fallback behind
// the LLM composer and the default in tests; every message it produces names
// the facts a caller needs to act on.
type TemplateComposer struct{}

// NewTemplateComposer returns a deterministic ResponseComposer.
func NewTemplateComposer() *TemplateComposer {
	return &TemplateComposer{}
}

// ComposeGatherInfo implements ResponseComposer.
func (c *TemplateComposer) ComposeGatherInfo(_ *models.ConversationState, missing []models.FieldName) string {
	if len(missing) == 0 {
		return "Could you tell me a bit more about what you'd like to check?"
	}
	names := make([]string, len(missing))
	for i, f := range missing {
		names[i] = models.FieldDisplayName(f)
	}
	if len(names) == 1 {
		return fmt.Sprintf("To check eligibility I still need your %s. Could you provide it?", names[0])
	}
	return fmt.Sprintf("To check eligibility I still need your %s and %s. Could you provide them?",
		strings.Join(names[:len(names)-1], ", "), names[len(names)-1])
}

// ComposeGiveUp implements ResponseComposer.
func (c *TemplateComposer) ComposeGiveUp(state *models.ConversationState) string {
	policy := RequirementPolicy{}
	missing := policy.Missing(state)
	names := make([]string, len(missing))
	for i, f := range missing {
		names[i] = models.FieldDisplayName(f)
	}
	return fmt.Sprintf("I wasn't able to collect the information needed for an eligibility check (still missing: %s). "+
		"Please call the member services number on your insurance card for help.", strings.Join(names, ", "))
}

// ComposeFinal implements ResponseComposer.
func (c *TemplateComposer) ComposeFinal(_ *models.ConversationState, result *models.EligibilityResult) string {
	switch result.Outcome {
	case models.OutcomeEligible, models.OutcomeEligibleConditional:
		return composeEligibleSummary(result)
	case models.OutcomeNotCovered:
		msg := fmt.Sprintf("I'm sorry, %s is not covered under your plan.", coveredItemLabel(result))
		if result.Reason != "" {
			msg += " " + result.Reason
		}
		return msg
	case models.OutcomeInactiveCoverage:
		msg := "Your coverage is not active for this check"
		switch {
		case result.TerminatedOn != "":
			msg += fmt.Sprintf("; it was terminated on %s", result.TerminatedOn)
		case result.Reason != "":
			msg += "; the " + result.Reason
		}
		return msg + ". Please contact your plan administrator."
	case models.OutcomeMemberNotFound:
		msg := "I couldn't find a member matching that ID and date of birth."
		if result.Reason != "" {
			msg += " " + result.Reason
		}
		return msg + " Please double-check the information on your insurance card."
	case models.OutcomeLookupError:
		return "I ran into a problem reaching the eligibility system. Please try again in a few minutes."
	default:
		return "I wasn't able to determine eligibility. Please call member services for help."
	}
}

func composeEligibleSummary(result *models.EligibilityResult) string {
	var b strings.Builder
	if result.Member != nil && result.Member.Name != "" {
		fmt.Fprintf(&b, "Good news, %s: ", result.Member.Name)
	} else {
		b.WriteString("Good news: ")
	}
	if result.CoveredItem != "" {
		fmt.Fprintf(&b, "%s is covered under your plan.", coveredItemLabel(result))
	} else {
		b.WriteString("your coverage is active.")
	}
	if result.RequiresPriorAuth {
		b.WriteString(" Note that prior authorization is required before the service.")
	}
	if bi := result.Benefit; bi != nil {
		fmt.Fprintf(&b, " You have $%.2f remaining on your $%.2f deductible.",
			bi.DeductibleRemaining, bi.DeductibleIndividual)
		if bi.Copay != nil {
			fmt.Fprintf(&b, " Your copay will be $%.2f.", *bi.Copay)
		} else if bi.DeductibleRemaining > 0 {
			b.WriteString(" Costs apply to your deductible until it is met.")
		}
	}
	return b.String()
}

func coveredItemLabel(result *models.EligibilityResult) string {
	switch {
	case result.CoveredItem != "" && result.CoveredItemCode != "":
		return fmt.Sprintf("%s (%s)", result.CoveredItem, result.CoveredItemCode)
	case result.CoveredItem != "":
		return result.CoveredItem
	case result.CoveredItemCode != "":
		return fmt.Sprintf("code %s", result.CoveredItemCode)
	default:
		return "that service"
	}
}
