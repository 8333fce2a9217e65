// Package models defines tool structures for LLM function calling.
package models

import (
	"encoding/json"
	"fmt"
)

// ToolTypeCheckEligibility is the function exposed to the voice model.
const ToolTypeCheckEligibility = "check_eligibility"

// ToolCall represents an LLM tool function call.
type ToolCall struct {
	ID       string       `json:"id"`       // Tool call ID from OpenAI
	Type     string       `json:"type"`     // Always "function" for OpenAI
	Function FunctionCall `json:"function"` // Function details
}

// FunctionCall represents the function details within a tool call.
type FunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// CheckEligibilityParams defines the arguments of the check_eligibility tool.
type CheckEligibilityParams struct {
	MemberID       string `json:"member_id"`
	DateOfBirth    string `json:"date_of_birth"`
	ProcedureCode  string `json:"procedure_code,omitempty"`
	NDCCode        string `json:"ndc_code,omitempty"`
	MedicationName string `json:"medication_name,omitempty"`
	ProcedureName  string `json:"procedure_name,omitempty"`
	ServiceDate    string `json:"service_date,omitempty"` // YYYY-MM-DD, defaults to today
}

// Validate ensures the required lookup arguments are present.
func (p *CheckEligibilityParams) Validate() error {
	if p.MemberID == "" {
		return ErrMissingMemberID
	}
	if p.DateOfBirth == "" {
		return ErrMissingDateOfBirth
	}
	return nil
}

// ParseCheckEligibilityParams parses the arguments as CheckEligibilityParams.
func (fc *FunctionCall) ParseCheckEligibilityParams() (*CheckEligibilityParams, error) {
	if fc.Name != ToolTypeCheckEligibility {
		return nil, fmt.Errorf("function name %s is not an eligibility check function", fc.Name)
	}

	var params CheckEligibilityParams
	if err := json.Unmarshal(fc.Arguments, &params); err != nil {
		return nil, fmt.Errorf("failed to parse eligibility check parameters: %w", err)
	}

	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid eligibility check parameters: %w", err)
	}

	return &params, nil
}
