package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/carelinq/eligibility-agent/internal/eligibility"
	"github.com/carelinq/eligibility-agent/internal/models"
)

func startConversation(t *testing.T, e *Engine, initialMessage string) *TurnResult {
	t.Helper()
	result, err := e.Start(context.Background(), initialMessage)
	if err != nil {
		t.Fatalf("Start(%q): %v", initialMessage, err)
	}
	if result.ConversationID == "" || result.AgentMessage == "" {
		t.Fatalf("Start returned incomplete result: %+v", result)
	}
	return result
}

func advance(t *testing.T, e *Engine, id, message string) *TurnResult {
	t.Helper()
	result, err := e.Advance(context.Background(), id, message)
	if err != nil {
		t.Fatalf("Advance(%q): %v", message, err)
	}
	return result
}

func TestGeneralCoverageConversation(t *testing.T) {
	e := NewEngine()

	// The opening message is a full turn: the member ID is collected before
	// the agent says anything back.
	first := startConversation(t, e, "Is patient MB123456 eligible for coverage?")
	id := first.ConversationID
	if first.Stage != models.StageGatherInfo {
		t.Errorf("stage after first turn = %q, want GATHER_INFO", first.Stage)
	}
	if !strings.Contains(first.AgentMessage, "Date of Birth") {
		t.Errorf("expected DOB prompt, got %q", first.AgentMessage)
	}
	if first.LastAPIResult != nil {
		t.Error("gateway called before required fields were collected")
	}
	if got := first.CollectedFields[models.FieldMemberID]; got != "MB123456" {
		t.Errorf("member ID = %q", got)
	}

	second := advance(t, e, id, "March 15, 1985")
	if second.Stage != models.StageGenerateFinalResponse {
		t.Errorf("stage after second turn = %q, want GENERATE_FINAL_RESPONSE", second.Stage)
	}
	if !second.EligibilityDetermined {
		t.Error("eligibility not determined after complete input")
	}
	if second.LastAPIResult == nil || second.LastAPIResult.Outcome != models.OutcomeEligible {
		t.Fatalf("result = %+v, want eligible", second.LastAPIResult)
	}
	if !strings.Contains(second.AgentMessage, "John Doe") || !strings.Contains(second.AgentMessage, "$1050.00") {
		t.Errorf("final message missing member or deductible detail: %q", second.AgentMessage)
	}
}

func TestProcedureCheckWithPriorAuth(t *testing.T) {
	e := NewEngine()
	start := startConversation(t, e, "Can patient MB789012 get an MRI?")
	final := advance(t, e, start.ConversationID, "07/22/1990")

	if !final.EligibilityDetermined {
		t.Fatal("eligibility not determined")
	}
	result := final.LastAPIResult
	if result == nil || result.Outcome != models.OutcomeEligibleConditional {
		t.Fatalf("result = %+v, want eligible_with_conditions", result)
	}
	if !result.RequiresPriorAuth {
		t.Error("prior auth flag not set for MRI")
	}
	if result.CoveredItemCode != "70553" {
		t.Errorf("covered item code = %q, want 70553", result.CoveredItemCode)
	}
	if result.Benefit == nil || result.Benefit.Copay == nil || *result.Benefit.Copay != 50.00 {
		t.Errorf("benefit = %+v, want $50 specialist copay", result.Benefit)
	}
	if !strings.Contains(final.AgentMessage, "prior authorization") || !strings.Contains(final.AgentMessage, "$50.00") {
		t.Errorf("final message missing prior auth or copay: %q", final.AgentMessage)
	}
}

func TestDirectCheckInactiveMember(t *testing.T) {
	e := NewEngine()
	result, err := e.DirectCheck(context.Background(), models.CheckEligibilityParams{
		MemberID:    "MB345678",
		DateOfBirth: "1975-11-30",
	})
	if err != nil {
		t.Fatalf("DirectCheck: %v", err)
	}
	if result.Outcome != models.OutcomeInactiveCoverage {
		t.Errorf("outcome = %q, want inactive_coverage", result.Outcome)
	}
	if result.TerminatedOn != "2023-12-31" {
		t.Errorf("terminated on = %q, want 2023-12-31", result.TerminatedOn)
	}
}

func TestDirectCheckResolvesNames(t *testing.T) {
	e := NewEngine()
	result, err := e.DirectCheck(context.Background(), models.CheckEligibilityParams{
		MemberID:      "mb123456",
		DateOfBirth:   "March 15, 1985",
		ProcedureName: "knee replacement",
	})
	if err != nil {
		t.Fatalf("DirectCheck: %v", err)
	}
	if result.CoveredItemCode != "27447" {
		t.Errorf("covered item code = %q, want 27447", result.CoveredItemCode)
	}
}

func TestDirectCheckHonorsServiceDate(t *testing.T) {
	e := NewEngine()
	result, err := e.DirectCheck(context.Background(), models.CheckEligibilityParams{
		MemberID:    "MB123456",
		DateOfBirth: "1985-03-15",
		ServiceDate: "2023-06-15",
	})
	if err != nil {
		t.Fatalf("DirectCheck: %v", err)
	}
	if result.Outcome != models.OutcomeInactiveCoverage {
		t.Errorf("outcome for pre-effective service date = %q, want inactive_coverage", result.Outcome)
	}
}

func TestDirectCheckValidatesParams(t *testing.T) {
	e := NewEngine()
	if _, err := e.DirectCheck(context.Background(), models.CheckEligibilityParams{DateOfBirth: "1985-03-15"}); !errors.Is(err, models.ErrMissingMemberID) {
		t.Errorf("missing member ID error = %v", err)
	}
	if _, err := e.DirectCheck(context.Background(), models.CheckEligibilityParams{MemberID: "MB123456"}); !errors.Is(err, models.ErrMissingDateOfBirth) {
		t.Errorf("missing DOB error = %v", err)
	}
}

func TestGatherLoopGivesUpAfterMaxAttempts(t *testing.T) {
	e := NewEngine()
	first := startConversation(t, e, "I want to check my insurance")
	id := first.ConversationID
	if first.Stage != models.StageGatherInfo {
		t.Fatalf("stage = %q, want GATHER_INFO", first.Stage)
	}

	var last *TurnResult
	for _, message := range []string{"hmm", "let me think", "one moment"} {
		last = advance(t, e, id, message)
	}
	if last.Stage != models.StageGenerateFinalResponse {
		t.Errorf("stage after exhausted attempts = %q, want GENERATE_FINAL_RESPONSE", last.Stage)
	}
	if last.EligibilityDetermined {
		t.Error("give-up turn must not claim a determination")
	}
	if last.LastAPIResult != nil {
		t.Error("gateway called despite missing required fields")
	}
	if !strings.Contains(last.AgentMessage, "member services") {
		t.Errorf("give-up message missing escalation path: %q", last.AgentMessage)
	}
}

func TestProgressResetsAttemptCount(t *testing.T) {
	e := NewEngine()
	id := startConversation(t, e, "I want to check my insurance").ConversationID

	advance(t, e, id, "hold on")
	advance(t, e, id, "still looking")

	// Productive input on the turn that would otherwise exhaust the cap
	// keeps the conversation alive.
	got := advance(t, e, id, "found my card, it's MB123456")
	if got.Stage != models.StageGatherInfo {
		t.Errorf("stage = %q, want GATHER_INFO", got.Stage)
	}
	if !strings.Contains(got.AgentMessage, "Date of Birth") {
		t.Errorf("expected DOB prompt, got %q", got.AgentMessage)
	}

	final := advance(t, e, id, "1985-03-15")
	if !final.EligibilityDetermined {
		t.Error("eligibility not determined after recovery")
	}
}

func TestGatherAttemptsDoNotShortenValidationLoop(t *testing.T) {
	e := NewEngine(WithGateway(bareItemGateway{eligibility.NewMockGateway()}))
	id := startConversation(t, e, "I want to check my insurance").ConversationID

	// Spend the full gather allowance before the lookup ever runs.
	advance(t, e, id, "hmm")
	advance(t, e, id, "let me think")

	got := advance(t, e, id, "It's for patient MB123456, born March 15, 1985, they need an MRI")
	if got.Stage != models.StageGatherInfo {
		t.Errorf("stage = %q, want GATHER_INFO", got.Stage)
	}
	if got.EligibilityDetermined {
		t.Error("incomplete lookup answer must not count as a determination")
	}
	state, err := e.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if state.AttemptCount != 1 {
		t.Errorf("attempt count after first lookup = %d, want 1", state.AttemptCount)
	}
}

func TestNewQuestionAfterDeterminationRerunsLookup(t *testing.T) {
	e := NewEngine()
	id := startConversation(t, e, "Is patient MB123456 eligible for coverage?").ConversationID

	determined := advance(t, e, id, "March 15, 1985")
	if !determined.EligibilityDetermined {
		t.Fatal("setup: eligibility not determined")
	}

	followup := advance(t, e, id, "Great. Would an MRI be covered too?")
	if !followup.EligibilityDetermined {
		t.Fatal("follow-up question not re-determined")
	}
	result := followup.LastAPIResult
	if result == nil || result.CoveredItemCode != "70553" {
		t.Fatalf("follow-up result = %+v, want MRI lookup", result)
	}
	// Deductible unmet for this member, so no copay applies yet.
	if result.Benefit == nil || result.Benefit.Copay != nil {
		t.Errorf("benefit = %+v, want nil copay with unmet deductible", result.Benefit)
	}
}

func TestRepeatedQuestionReexplainsWithoutNewLookup(t *testing.T) {
	e := NewEngine()
	id := startConversation(t, e, "Is patient MB123456 eligible for coverage?").ConversationID

	first := advance(t, e, id, "March 15, 1985")
	again := advance(t, e, id, "Wait, can you repeat that?")

	if !again.EligibilityDetermined {
		t.Error("standing determination lost on repeat request")
	}
	if again.LastAPIResult == nil || again.LastAPIResult.Outcome != first.LastAPIResult.Outcome {
		t.Errorf("repeat turn changed the result: %+v", again.LastAPIResult)
	}
	if again.AgentMessage == "" {
		t.Error("repeat turn returned no message")
	}
}

func TestCorrectionOverwritesField(t *testing.T) {
	e := NewEngine()
	id := startConversation(t, e, "Is patient MB123456 eligible for coverage?").ConversationID

	got := advance(t, e, id, "Sorry, I meant MB789012")
	if field := got.CollectedFields[models.FieldMemberID]; field != "MB789012" {
		t.Errorf("member ID after correction = %q, want MB789012", field)
	}
}

func TestStartInputValidation(t *testing.T) {
	e := NewEngine()

	if _, err := e.Start(context.Background(), "   "); !errors.Is(err, models.ErrEmptyMessage) {
		t.Errorf("empty initial message error = %v", err)
	}
	if _, err := e.Start(context.Background(), strings.Repeat("a", models.MaxMessageLength+1)); !errors.Is(err, models.ErrMessageTooLong) {
		t.Errorf("oversized initial message error = %v", err)
	}
}

func TestAdvanceInputValidation(t *testing.T) {
	e := NewEngine()
	id := startConversation(t, e, "I want to check my insurance").ConversationID

	if _, err := e.Advance(context.Background(), id, "   "); !errors.Is(err, models.ErrEmptyMessage) {
		t.Errorf("empty message error = %v", err)
	}
	if _, err := e.Advance(context.Background(), id, strings.Repeat("a", models.MaxMessageLength+1)); !errors.Is(err, models.ErrMessageTooLong) {
		t.Errorf("oversized message error = %v", err)
	}
	if _, err := e.Advance(context.Background(), "no-such-conversation", "hello"); !errors.Is(err, models.ErrConversationNotFound) {
		t.Errorf("unknown conversation error = %v", err)
	}
}

func TestEndRemovesConversation(t *testing.T) {
	e := NewEngine()
	id := startConversation(t, e, "I want to check my insurance").ConversationID

	if err := e.End(id); err != nil {
		t.Fatalf("End: %v", err)
	}
	if _, err := e.Get(id); !errors.Is(err, models.ErrConversationNotFound) {
		t.Errorf("Get after End = %v, want not found", err)
	}
}

// bareItemGateway answers procedure checks without naming the covered item,
// which validation treats as an incomplete answer.
type bareItemGateway struct {
	eligibility.Gateway
}

func (g bareItemGateway) Check(ctx context.Context, req eligibility.CheckRequest) (*models.EligibilityResult, error) {
	result, err := g.Gateway.Check(ctx, req)
	if result != nil {
		result.CoveredItem = ""
		result.CoveredItemCode = ""
	}
	return result, err
}

// failingGateway simulates an eligibility source outage.
type failingGateway struct {
	eligibility.Gateway
}

func (failingGateway) Check(context.Context, eligibility.CheckRequest) (*models.EligibilityResult, error) {
	return nil, errors.New("upstream timeout")
}

func TestGatewayFailureBecomesLookupError(t *testing.T) {
	e := NewEngine(WithGateway(failingGateway{eligibility.NewMockGateway()}))
	id := startConversation(t, e, "Is patient MB123456 eligible for coverage?").ConversationID

	final := advance(t, e, id, "1985-03-15")

	if final.LastAPIResult == nil || final.LastAPIResult.Outcome != models.OutcomeLookupError {
		t.Fatalf("result = %+v, want lookup_error", final.LastAPIResult)
	}
	if final.EligibilityDetermined {
		t.Error("lookup error must not count as a determination")
	}
	if !strings.Contains(final.AgentMessage, "try again") {
		t.Errorf("lookup-error message: %q", final.AgentMessage)
	}
}

func TestConcurrentConversationsAreIndependent(t *testing.T) {
	e := NewEngine()

	var wg sync.WaitGroup
	errCh := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			start, err := e.Start(context.Background(), "Is patient MB123456 eligible for coverage?")
			if err != nil {
				errCh <- fmt.Errorf("conversation %d: %w", n, err)
				return
			}
			id := start.ConversationID
			final, err := e.Advance(context.Background(), id, "March 15, 1985")
			if err != nil {
				errCh <- fmt.Errorf("conversation %d: %w", n, err)
				return
			}
			if !final.EligibilityDetermined {
				errCh <- fmt.Errorf("conversation %d not determined", n)
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Error(err)
	}
}
