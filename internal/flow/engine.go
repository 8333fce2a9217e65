package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carelinq/eligibility-agent/internal/eligibility"
	"github.com/carelinq/eligibility-agent/internal/models"
	"github.com/carelinq/eligibility-agent/internal/store"
)

// Greeting opens every new conversation.
const Greeting = "Hi! I can help you check your insurance eligibility. " +
	"What would you like to check today? I'll need your member ID and date of birth."

// TurnResult is what one processed turn hands back to the transport layer.
type TurnResult struct {
	ConversationID        string                      `json:"conversation_id"`
	AgentMessage          string                      `json:"agent_message"`
	Stage                 models.Stage                `json:"stage"`
	EligibilityDetermined bool                        `json:"eligibility_determined"`
	CollectedFields       map[models.FieldName]string `json:"collected_fields"`
	LastAPIResult         *models.EligibilityResult   `json:"last_api_result,omitempty"`
}

// Opts holds engine configuration.
type Opts struct {
	Store       store.ConversationStore
	Gateway     eligibility.Gateway
	Extractor   FieldExtractor
	Composer    ResponseComposer
	MaxAttempts int
}

// Option configures the engine.
type Option func(*Opts)

// WithStore sets the conversation store backend.
func WithStore(s store.ConversationStore) Option {
	return func(o *Opts) { o.Store = s }
}

// WithGateway sets the eligibility lookup collaborator.
func WithGateway(g eligibility.Gateway) Option {
	return func(o *Opts) { o.Gateway = g }
}

// WithExtractor sets the field extractor.
func WithExtractor(e FieldExtractor) Option {
	return func(o *Opts) { o.Extractor = e }
}

// WithComposer sets the response composer.
func WithComposer(c ResponseComposer) Option {
	return func(o *Opts) { o.Composer = c }
}

// WithMaxAttempts bounds the gather-info and validation retry loops.
func WithMaxAttempts(n int) Option {
	return func(o *Opts) {
		if n > 0 {
			o.MaxAttempts = n
		}
	}
}

// Engine drives the eligibility dialogue state machine. Each user turn runs
// the extract / decide / gather-or-call / validate / respond cycle against
// the stored conversation state. Turns for the same conversation are
// serialized; different conversations proceed concurrently.
type Engine struct {
	store       store.ConversationStore
	gateway     eligibility.Gateway
	extractor   FieldExtractor
	composer    ResponseComposer
	policy      RequirementPolicy
	validator   ResponseValidator
	maxAttempts int

	locks sync.Map // conversationID -> *sync.Mutex
}

// NewEngine creates an engine. Defaults: in-memory store, mock gateway, rule
// extractor, template composer, and the standard attempt cap.
func NewEngine(options ...Option) *Engine {
	cfg := Opts{
		Store:       store.NewInMemoryStore(),
		Gateway:     eligibility.NewMockGateway(),
		Extractor:   NewRuleExtractor(),
		Composer:    NewTemplateComposer(),
		MaxAttempts: models.DefaultMaxAttempts,
	}
	for _, opt := range options {
		opt(&cfg)
	}
	return &Engine{
		store:       cfg.Store,
		gateway:     cfg.Gateway,
		extractor:   cfg.Extractor,
		composer:    cfg.Composer,
		maxAttempts: cfg.MaxAttempts,
	}
}

// Gateway exposes the lookup collaborator for transports that serve reference
// data and direct checks.
func (e *Engine) Gateway() eligibility.Gateway {
	return e.gateway
}

// Start opens a new conversation with the caller's first message and runs it
// through the cycle, so "Is patient MB123456 eligible?" already collects the
// member ID and the reply asks for what is still missing.
func (e *Engine) Start(ctx context.Context, initialMessage string) (*TurnResult, error) {
	initialMessage = strings.TrimSpace(initialMessage)
	if initialMessage == "" {
		return nil, models.ErrEmptyMessage
	}
	if len(initialMessage) > models.MaxMessageLength {
		return nil, models.ErrMessageTooLong
	}

	state := models.NewConversationState(uuid.NewString())
	state.AddTurn("assistant", Greeting)

	reply := e.runTurn(ctx, state, initialMessage)

	state.AddTurn("assistant", reply)
	state.UpdatedAt = time.Now()
	if err := e.store.SaveConversation(*state); err != nil {
		return nil, fmt.Errorf("failed to save new conversation: %w", err)
	}
	slog.Info("Engine.Start: conversation opened", "conversationID", state.ConversationID, "stage", state.Stage)
	return e.turnResult(state, reply), nil
}

// Advance processes one user turn for an existing conversation.
func (e *Engine) Advance(ctx context.Context, conversationID, message string) (*TurnResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, models.ErrEmptyMessage
	}
	if len(message) > models.MaxMessageLength {
		return nil, models.ErrMessageTooLong
	}

	mu := e.lockFor(conversationID)
	mu.Lock()
	defer mu.Unlock()

	state, err := e.store.GetConversation(conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
	}
	if state == nil {
		return nil, models.ErrConversationNotFound
	}

	reply := e.runTurn(ctx, state, message)

	state.AddTurn("assistant", reply)
	state.UpdatedAt = time.Now()
	if err := e.store.SaveConversation(*state); err != nil {
		return nil, fmt.Errorf("failed to save conversation %s: %w", conversationID, err)
	}
	return e.turnResult(state, reply), nil
}

// Get returns the current state of a conversation.
func (e *Engine) Get(conversationID string) (*models.ConversationState, error) {
	state, err := e.store.GetConversation(conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
	}
	if state == nil {
		return nil, models.ErrConversationNotFound
	}
	return state, nil
}

// End removes a conversation and its turn lock.
func (e *Engine) End(conversationID string) error {
	if err := e.store.DeleteConversation(conversationID); err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", conversationID, err)
	}
	e.locks.Delete(conversationID)
	return nil
}

// DirectCheck performs a one-shot eligibility lookup outside any
// conversation. Free-text procedure and medication names are resolved to
// codes first; gateway failures are contained as a LookupError result.
func (e *Engine) DirectCheck(ctx context.Context, params models.CheckEligibilityParams) (*models.EligibilityResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	req := eligibility.CheckRequest{
		MemberID:      params.MemberID,
		ProcedureCode: params.ProcedureCode,
		NDCCode:       params.NDCCode,
		ServiceDate:   params.ServiceDate,
	}
	if id, ok := NormalizeMemberID(params.MemberID); ok {
		req.MemberID = id
	}
	if date, ok := NormalizeDate(params.DateOfBirth); ok {
		req.DateOfBirth = date
	} else {
		req.DateOfBirth = params.DateOfBirth
	}
	if req.ProcedureCode == "" && params.ProcedureName != "" {
		if proc, ok := e.gateway.ResolveProcedure(params.ProcedureName); ok {
			req.ProcedureCode = proc.Code
		}
	}
	if req.NDCCode == "" && params.MedicationName != "" {
		if med, ok := e.gateway.ResolveMedication(params.MedicationName); ok {
			req.NDCCode = med.NDCCode
		}
	}

	result, err := e.gateway.Check(ctx, req)
	if err != nil {
		slog.Error("Engine.DirectCheck: gateway failure", "memberID", req.MemberID, "error", err)
		return lookupErrorResult(err), nil
	}
	return result, nil
}

// runTurn executes the state machine cycle for one user message and returns
// the agent's reply. The caller holds the conversation lock.
func (e *Engine) runTurn(ctx context.Context, state *models.ConversationState, message string) string {
	state.AddTurn("user", message)

	state.Stage = models.StageExtractInfo
	ex, err := e.extractor.Extract(ctx, message, state)
	if err != nil {
		slog.Warn("Engine.runTurn: extraction failed", "conversationID", state.ConversationID, "error", err)
		ex = &Extraction{Fields: make(map[models.FieldName]string)}
	}
	progress := e.mergeExtraction(state, ex)

	// New information after a determination means the caller is asking a new
	// question; drop the old answer and run the cycle again.
	if state.EligibilityDetermined && progress {
		state.LastAPIResult = nil
		state.EligibilityDetermined = false
		state.AttemptCount = 0
	}

	state.Stage = models.StageDetermineAction
	missing := e.policy.Missing(state)

	if len(missing) > 0 {
		if progress {
			state.AttemptCount = 0
		}
		state.AttemptCount++
		if state.AttemptCount > e.maxAttempts {
			slog.Warn("Engine.runTurn: gather attempts exhausted",
				"conversationID", state.ConversationID, "missing", missing)
			state.Stage = models.StageGenerateFinalResponse
			return e.composer.ComposeGiveUp(state)
		}
		state.Stage = models.StageGatherInfo
		return e.composer.ComposeGatherInfo(state, missing)
	}

	if state.EligibilityDetermined && state.LastAPIResult != nil {
		// Nothing new to look up; re-explain the standing answer.
		state.Stage = models.StageGenerateFinalResponse
		return e.composer.ComposeFinal(state, state.LastAPIResult)
	}

	// Entering the lookup stage starts the attempt count over: attempts spent
	// gathering fields must not shorten the validation loop.
	state.Stage = models.StageCallAPI
	state.AttemptCount = 0
	result := e.callGateway(ctx, state)
	state.LastAPIResult = result

	state.Stage = models.StageValidateResponse
	verdict := e.validator.Validate(state.Intent, result)

	switch verdict.Verdict {
	case VerdictSatisfied, VerdictTerminal:
		state.Stage = models.StageGenerateFinalResponse
		state.AttemptCount = 0
		state.EligibilityDetermined = result.Outcome != models.OutcomeLookupError
		return e.composer.ComposeFinal(state, result)
	default:
		state.AttemptCount++
		if state.AttemptCount > e.maxAttempts {
			state.Stage = models.StageGenerateFinalResponse
			return e.composer.ComposeFinal(state, result)
		}
		slog.Info("Engine.runTurn: result needs more info",
			"conversationID", state.ConversationID, "reason", verdict.Reason)
		state.Stage = models.StageGatherInfo
		return e.composer.ComposeGatherInfo(state, e.policy.Missing(state))
	}
}

// mergeExtraction folds extracted values into the state and reports whether
// anything new was learned. Existing values are kept unless the user was
// correcting themselves.
func (e *Engine) mergeExtraction(state *models.ConversationState, ex *Extraction) bool {
	progress := false

	for field, value := range ex.Fields {
		current, known := state.Field(field)
		if known && !ex.Corrected {
			continue
		}
		if current == value {
			continue
		}
		state.SetField(field, value)
		progress = true
	}

	if ex.Intent != "" && ex.Intent != state.Intent {
		state.Intent = ex.Intent
		progress = true
	}

	if ex.ProcedureName != "" {
		if _, known := state.Field(models.FieldProcedureCode); !known || ex.Corrected {
			if proc, ok := e.gateway.ResolveProcedure(ex.ProcedureName); ok {
				state.SetField(models.FieldProcedureCode, proc.Code)
				progress = true
			} else {
				slog.Info("Engine.mergeExtraction: unresolved procedure name",
					"conversationID", state.ConversationID, "name", ex.ProcedureName)
			}
		}
	}
	if ex.MedicationName != "" {
		if _, known := state.Field(models.FieldNDCCode); !known || ex.Corrected {
			if med, ok := e.gateway.ResolveMedication(ex.MedicationName); ok {
				state.SetField(models.FieldNDCCode, med.NDCCode)
				progress = true
			} else {
				slog.Info("Engine.mergeExtraction: unresolved medication name",
					"conversationID", state.ConversationID, "name", ex.MedicationName)
			}
		}
	}

	return progress
}

// callGateway runs the lookup with the collected fields, containing any
// gateway error as a LookupError result so the machine always sees a
// well-formed variant.
func (e *Engine) callGateway(ctx context.Context, state *models.ConversationState) *models.EligibilityResult {
	req := eligibility.CheckRequest{
		MemberID:    state.CollectedFields[models.FieldMemberID],
		DateOfBirth: state.CollectedFields[models.FieldDateOfBirth],
	}
	switch state.Intent {
	case models.IntentProcedureCheck:
		req.ProcedureCode = state.CollectedFields[models.FieldProcedureCode]
	case models.IntentMedicationCheck:
		req.NDCCode = state.CollectedFields[models.FieldNDCCode]
	}

	result, err := e.gateway.Check(ctx, req)
	if err != nil {
		slog.Error("Engine.callGateway: gateway failure",
			"conversationID", state.ConversationID, "memberID", req.MemberID, "error", err)
		return lookupErrorResult(err)
	}
	slog.Info("Engine.callGateway: lookup complete",
		"conversationID", state.ConversationID, "memberID", req.MemberID, "outcome", result.Outcome)
	return result
}

func lookupErrorResult(err error) *models.EligibilityResult {
	return &models.EligibilityResult{
		Outcome:   models.OutcomeLookupError,
		Cause:     err.Error(),
		CheckedAt: time.Now(),
	}
}

func (e *Engine) turnResult(state *models.ConversationState, reply string) *TurnResult {
	return &TurnResult{
		ConversationID:        state.ConversationID,
		AgentMessage:          reply,
		Stage:                 state.Stage,
		EligibilityDetermined: state.EligibilityDetermined,
		CollectedFields:       state.FieldsSnapshot(),
		LastAPIResult:         state.LastAPIResult,
	}
}

func (e *Engine) lockFor(conversationID string) *sync.Mutex {
	mu, _ := e.locks.LoadOrStore(conversationID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
