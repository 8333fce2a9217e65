package voice

import (
	"strings"
	"testing"

	"github.com/carelinq/eligibility-agent/internal/models"
)

func TestSummarizeEligibleResult(t *testing.T) {
	copay := 50.0
	result := &models.EligibilityResult{
		Outcome:           models.OutcomeEligibleConditional,
		RequiresPriorAuth: true,
		Benefit: &models.BenefitInfo{
			DeductibleIndividual: 2000,
			DeductibleRemaining:  0,
			Copay:                &copay,
		},
	}
	summary := SummarizeResult(result)
	for _, want := range []string{"eligible", "deductible has been met", "$50", "Prior authorization"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q: %q", want, summary)
		}
	}
}

func TestSummarizeDeductibleRemaining(t *testing.T) {
	result := &models.EligibilityResult{
		Outcome: models.OutcomeEligible,
		Benefit: &models.BenefitInfo{DeductibleRemaining: 1050},
	}
	summary := SummarizeResult(result)
	if !strings.Contains(summary, "$1050 remaining") {
		t.Errorf("summary missing deductible: %q", summary)
	}
	if strings.Contains(summary, "copay") {
		t.Errorf("copay mentioned without one in the result: %q", summary)
	}
}

func TestSummarizeNegativeOutcomes(t *testing.T) {
	cases := []struct {
		result *models.EligibilityResult
		want   string
	}{
		{&models.EligibilityResult{Outcome: models.OutcomeNotCovered, Reason: "Experimental treatment"}, "Experimental treatment"},
		{&models.EligibilityResult{Outcome: models.OutcomeInactiveCoverage, TerminatedOn: "2023-12-31"}, "2023-12-31"},
		{&models.EligibilityResult{Outcome: models.OutcomeMemberNotFound}, "insurance card"},
		{&models.EligibilityResult{Outcome: models.OutcomeLookupError}, "try again"},
	}
	for _, tc := range cases {
		summary := SummarizeResult(tc.result)
		if !strings.Contains(summary, tc.want) {
			t.Errorf("outcome %q summary missing %q: %q", tc.result.Outcome, tc.want, summary)
		}
	}
}
