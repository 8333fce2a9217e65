// Package models defines the core data structures for the eligibility agent.
//
// It includes the conversation state entity, the eligibility result variants,
// and the shared enums for intents, stages, and field names.
package models

import "errors"

// Intent is the inferred category of question being asked. It determines which
// fields the RequirementPolicy considers required.
type Intent string

const (
	// IntentGeneralCoverage asks whether the member has active coverage at all.
	IntentGeneralCoverage Intent = "general_coverage"
	// IntentProcedureCheck asks about a specific medical procedure (CPT code).
	IntentProcedureCheck Intent = "procedure_check"
	// IntentMedicationCheck asks about a specific medication (NDC code).
	IntentMedicationCheck Intent = "medication_check"
)

// IsValidIntent checks if the given intent is supported.
func IsValidIntent(i Intent) bool {
	switch i {
	case IntentGeneralCoverage, IntentProcedureCheck, IntentMedicationCheck:
		return true
	default:
		return false
	}
}

// Stage is a named point in the per-turn dialogue state machine.
type Stage string

const (
	StageExtractInfo           Stage = "EXTRACT_INFO"
	StageDetermineAction       Stage = "DETERMINE_ACTION"
	StageGatherInfo            Stage = "GATHER_INFO"
	StageCallAPI               Stage = "CALL_API"
	StageValidateResponse      Stage = "VALIDATE_RESPONSE"
	StageGenerateFinalResponse Stage = "GENERATE_FINAL_RESPONSE"
)

// FieldName identifies a structured field collected during the dialogue.
type FieldName string

const (
	FieldMemberID      FieldName = "member_id"
	FieldDateOfBirth   FieldName = "date_of_birth"
	FieldProcedureCode FieldName = "procedure_code"
	FieldNDCCode       FieldName = "ndc_code"
	FieldServiceType   FieldName = "service_type"
)

// FieldDisplayName converts a field name to a user-friendly display name
// suitable for gather-info questions.
func FieldDisplayName(f FieldName) string {
	switch f {
	case FieldMemberID:
		return "Member ID or Patient ID"
	case FieldDateOfBirth:
		return "Date of Birth"
	case FieldProcedureCode:
		return "Procedure Code (CPT code) or procedure name"
	case FieldNDCCode:
		return "NDC Code or medication name"
	case FieldServiceType:
		return "Type of Service"
	default:
		return string(f)
	}
}

// Validation constants for boundary input.
const (
	// MaxMessageLength caps inbound user message size.
	MaxMessageLength = 4096
	// DefaultMaxAttempts bounds the gather-info and validation retry loops.
	DefaultMaxAttempts = 3
)

// Boundary error variables for better error handling and testability.
var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrEmptyMessage         = errors.New("message cannot be empty")
	ErrMessageTooLong       = errors.New("message exceeds maximum length")
	ErrMissingMemberID      = errors.New("member_id is required")
	ErrMissingDateOfBirth   = errors.New("date_of_birth is required")
)
