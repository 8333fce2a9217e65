// Package models defines conversation state structures for the eligibility agent.
package models

import "time"

// TurnMessage is one entry in the append-only conversation transcript.
type TurnMessage struct {
	Role      string    `json:"role"`      // "user" or "assistant"
	Content   string    `json:"content"`   // message content
	Timestamp time.Time `json:"timestamp"` // when the message was recorded
}

// ConversationState is the sole mutable entity of the dialogue state machine.
// It is owned exclusively by one conversation session and must only be mutated
// by one turn at a time (callers serialize per conversation ID).
type ConversationState struct {
	ConversationID string `json:"conversation_id"`

	// CollectedFields holds confidently extracted field values. A key is
	// present only once extracted; absence means "not yet known".
	CollectedFields map[FieldName]string `json:"collected_fields"`

	// Intent may be revised as more text arrives, but is never unset once set.
	Intent Intent `json:"intent,omitempty"`

	// TurnHistory is the append-only (speaker, text) transcript, used for
	// extraction context and audit.
	TurnHistory []TurnMessage `json:"turn_history"`

	// Stage is the current node in the state machine.
	Stage Stage `json:"stage"`

	// LastAPIResult is the most recent eligibility result, overwritten on each
	// successful gateway call. Nil until the first call.
	LastAPIResult *EligibilityResult `json:"last_api_result,omitempty"`

	// AttemptCount is the per-loop retry counter bounding gather-info and
	// validation cycles.
	AttemptCount int `json:"attempt_count"`

	// EligibilityDetermined is set true only when the machine reaches the
	// terminal stage with a result the validator judged definitive.
	EligibilityDetermined bool `json:"eligibility_determined"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversationState creates the initial state for a fresh conversation.
func NewConversationState(conversationID string) *ConversationState {
	now := time.Now()
	return &ConversationState{
		ConversationID:  conversationID,
		CollectedFields: make(map[FieldName]string),
		Stage:           StageExtractInfo,
		TurnHistory:     []TurnMessage{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// AddTurn appends a message to the transcript.
func (s *ConversationState) AddTurn(role, content string) {
	s.TurnHistory = append(s.TurnHistory, TurnMessage{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
}

// Field returns the collected value for a field, if present.
func (s *ConversationState) Field(name FieldName) (string, bool) {
	v, ok := s.CollectedFields[name]
	return v, ok
}

// SetField records a collected field value.
func (s *ConversationState) SetField(name FieldName, value string) {
	if s.CollectedFields == nil {
		s.CollectedFields = make(map[FieldName]string)
	}
	s.CollectedFields[name] = value
}

// FieldsSnapshot returns a copy of the collected fields for observability
// payloads, so callers cannot mutate the live state.
func (s *ConversationState) FieldsSnapshot() map[FieldName]string {
	out := make(map[FieldName]string, len(s.CollectedFields))
	for k, v := range s.CollectedFields {
		out[k] = v
	}
	return out
}
