// Package flow implements the eligibility dialogue state machine and its
// supporting policies.
package flow

import (
	"github.com/carelinq/eligibility-agent/internal/models"
)

// RequirementPolicy decides which fields are required for a given intent and
// which of them are still missing from the conversation state.
type RequirementPolicy struct{}

// RequiredFields returns the set of fields required before the gateway may be
// called. Member ID and date of birth are always required; procedure and
// medication checks additionally need their service code. An unset intent is
// treated like a general coverage check.
func (RequirementPolicy) RequiredFields(intent models.Intent) []models.FieldName {
	required := []models.FieldName{models.FieldMemberID, models.FieldDateOfBirth}
	switch intent {
	case models.IntentProcedureCheck:
		required = append(required, models.FieldProcedureCode)
	case models.IntentMedicationCheck:
		required = append(required, models.FieldNDCCode)
	}
	return required
}

// Missing returns the required fields not yet collected, in required order.
func (p RequirementPolicy) Missing(state *models.ConversationState) []models.FieldName {
	var missing []models.FieldName
	for _, field := range p.RequiredFields(state.Intent) {
		if _, ok := state.CollectedFields[field]; !ok {
			missing = append(missing, field)
		}
	}
	return missing
}
