package eligibility

import (
	"context"
	"strings"
	"testing"

	"github.com/carelinq/eligibility-agent/internal/models"
)

func TestCheckGeneralCoverageActiveMember(t *testing.T) {
	g := NewMockGateway()
	res, err := g.Check(context.Background(), CheckRequest{MemberID: "MB123456", DateOfBirth: "1985-03-15"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != models.OutcomeEligible {
		t.Errorf("expected eligible outcome, got %s", res.Outcome)
	}
	if res.Benefit == nil {
		t.Fatal("expected benefit info for active member")
	}
	if res.Benefit.DeductibleMet != 450.00 {
		t.Errorf("expected deductible met 450, got %v", res.Benefit.DeductibleMet)
	}
	if res.Benefit.DeductibleIndividual != 1500.00 {
		t.Errorf("expected individual deductible 1500, got %v", res.Benefit.DeductibleIndividual)
	}
	if res.Benefit.DeductibleRemaining != 1050.00 {
		t.Errorf("expected deductible remaining 1050, got %v", res.Benefit.DeductibleRemaining)
	}
	if res.Member == nil || res.Member.Name != "John Doe" {
		t.Errorf("expected member John Doe, got %+v", res.Member)
	}
}

func TestCheckProcedureRequiringPriorAuth(t *testing.T) {
	g := NewMockGateway()
	res, err := g.Check(context.Background(), CheckRequest{
		MemberID: "MB789012", DateOfBirth: "1990-07-22", ProcedureCode: "70553",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != models.OutcomeEligibleConditional {
		t.Errorf("expected eligible_with_conditions, got %s", res.Outcome)
	}
	if !res.RequiresPriorAuth {
		t.Error("expected requires_prior_auth to be set")
	}
	if res.CoveredItem != "MRI Brain" {
		t.Errorf("expected covered item MRI Brain, got %q", res.CoveredItem)
	}
	// MB789012 has met the full deductible, so the specialist copay applies.
	if res.Benefit == nil || res.Benefit.Copay == nil {
		t.Fatal("expected copay for member with met deductible")
	}
	if *res.Benefit.Copay != 50.00 {
		t.Errorf("expected copay 50, got %v", *res.Benefit.Copay)
	}
}

func TestCheckProcedureDeductibleNotMetHasNoCopay(t *testing.T) {
	g := NewMockGateway()
	res, err := g.Check(context.Background(), CheckRequest{
		MemberID: "MB123456", DateOfBirth: "1985-03-15", ProcedureCode: "99213",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != models.OutcomeEligible {
		t.Errorf("expected eligible, got %s", res.Outcome)
	}
	if res.Benefit.Copay != nil {
		t.Errorf("expected no copay while deductible unmet, got %v", *res.Benefit.Copay)
	}
}

func TestCheckInactiveCoverage(t *testing.T) {
	g := NewMockGateway()
	res, err := g.Check(context.Background(), CheckRequest{MemberID: "MB345678", DateOfBirth: "1975-11-30"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != models.OutcomeInactiveCoverage {
		t.Errorf("expected inactive_coverage, got %s", res.Outcome)
	}
	if res.TerminatedOn != "2023-12-31" {
		t.Errorf("expected termination date 2023-12-31, got %q", res.TerminatedOn)
	}
	if !res.IsTerminalNegative() {
		t.Error("inactive coverage should be a terminal negative result")
	}
}

func TestCheckServiceDateBeforeEffectiveDate(t *testing.T) {
	g := NewMockGateway()

	// Coverage for MB123456 became effective 2024-01-01.
	res, err := g.Check(context.Background(), CheckRequest{
		MemberID: "MB123456", DateOfBirth: "1985-03-15", ServiceDate: "2023-06-15",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != models.OutcomeInactiveCoverage {
		t.Errorf("outcome = %q, want inactive_coverage", res.Outcome)
	}
	if !strings.Contains(res.Reason, "2024-01-01") {
		t.Errorf("reason missing effective date: %q", res.Reason)
	}

	res, err = g.Check(context.Background(), CheckRequest{
		MemberID: "MB123456", DateOfBirth: "1985-03-15", ServiceDate: "2024-01-01",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != models.OutcomeEligible {
		t.Errorf("outcome on the effective date = %q, want eligible", res.Outcome)
	}
}

func TestCheckMemberNotFound(t *testing.T) {
	g := NewMockGateway()
	res, err := g.Check(context.Background(), CheckRequest{MemberID: "MB000000", DateOfBirth: "2000-01-01"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != models.OutcomeMemberNotFound {
		t.Errorf("expected member_not_found, got %s", res.Outcome)
	}
}

func TestCheckDOBMismatchIsNotFound(t *testing.T) {
	g := NewMockGateway()
	res, err := g.Check(context.Background(), CheckRequest{MemberID: "MB123456", DateOfBirth: "1990-01-01"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != models.OutcomeMemberNotFound {
		t.Errorf("expected member_not_found on DOB mismatch, got %s", res.Outcome)
	}
}

func TestCheckNotCoveredProcedure(t *testing.T) {
	g := NewMockGateway()
	res, err := g.Check(context.Background(), CheckRequest{
		MemberID: "MB123456", DateOfBirth: "1985-03-15", ProcedureCode: "J9035",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != models.OutcomeNotCovered {
		t.Errorf("expected not_covered, got %s", res.Outcome)
	}
	if res.Reason == "" {
		t.Error("expected a reason for not_covered")
	}
}

func TestCheckPharmacyFormulary(t *testing.T) {
	g := NewMockGateway()
	res, err := g.Check(context.Background(), CheckRequest{
		MemberID: "MB789012", DateOfBirth: "1990-07-22", NDCCode: "50090-3568-00",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != models.OutcomeEligibleConditional {
		t.Errorf("expected eligible_with_conditions for Humira, got %s", res.Outcome)
	}
	if res.Benefit == nil || res.Benefit.Copay == nil || *res.Benefit.Copay != 150.00 {
		t.Errorf("expected tier-3 copay 150, got %+v", res.Benefit)
	}
}

func TestCheckIsDeterministic(t *testing.T) {
	g := NewMockGateway()
	req := CheckRequest{MemberID: "MB123456", DateOfBirth: "1985-03-15", ProcedureCode: "70553"}
	first, err := g.Check(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := g.Check(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Structural identity modulo the checked-at timestamp.
	first.CheckedAt = second.CheckedAt
	if *first.Member != *second.Member || *first.Benefit != *second.Benefit ||
		first.Outcome != second.Outcome || first.CoveredItem != second.CoveredItem {
		t.Errorf("identical requests returned different results:\n%+v\n%+v", first, second)
	}
}

func TestResolveProcedureByName(t *testing.T) {
	g := NewMockGateway()
	proc, ok := g.ResolveProcedure("MRI")
	if !ok {
		t.Fatal("expected MRI to resolve")
	}
	if proc.Code != "70553" {
		t.Errorf("expected code 70553, got %s", proc.Code)
	}

	proc, ok = g.ResolveProcedure("knee replacement")
	if !ok || proc.Code != "27447" {
		t.Errorf("expected knee replacement to resolve to 27447, got %+v ok=%v", proc, ok)
	}

	if _, ok := g.ResolveProcedure("teleportation"); ok {
		t.Error("expected unknown procedure to not resolve")
	}
}

func TestResolveMedicationByName(t *testing.T) {
	g := NewMockGateway()
	med, ok := g.ResolveMedication("Humira")
	if !ok {
		t.Fatal("expected Humira to resolve")
	}
	if med.NDCCode != "50090-3568-00" {
		t.Errorf("expected NDC 50090-3568-00, got %s", med.NDCCode)
	}
	if !med.RequiresAuth {
		t.Error("expected Humira to require prior auth")
	}
}

func TestListTestMembers(t *testing.T) {
	g := NewMockGateway()
	members := g.ListTestMembers()
	if len(members) != 3 {
		t.Fatalf("expected 3 test members, got %d", len(members))
	}
	// Sorted by member ID.
	if members[0].MemberID != "MB123456" || members[2].MemberID != "MB789012" {
		t.Errorf("unexpected member ordering: %+v", members)
	}
	for _, m := range members {
		if m.Name == "" || m.Status == "" {
			t.Errorf("incomplete member entry: %+v", m)
		}
	}
}
