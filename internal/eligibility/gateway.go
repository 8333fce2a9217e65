// Package eligibility provides the insurance eligibility lookup collaborator.
//
// The gateway is a pure lookup: given member identity and an optional service
// code it returns a tagged EligibilityResult. Failures of the underlying data
// source surface as a Go error and are contained by callers as a LookupError
// variant, never as an uncaught fault.
package eligibility

import (
	"context"

	"github.com/carelinq/eligibility-agent/internal/models"
)

// CheckRequest carries the parameters of an eligibility lookup.
type CheckRequest struct {
	MemberID      string `json:"member_id"`
	DateOfBirth   string `json:"date_of_birth"` // YYYY-MM-DD
	ProcedureCode string `json:"procedure_code,omitempty"`
	NDCCode       string `json:"ndc_code,omitempty"`
	ServiceDate   string `json:"service_date,omitempty"` // YYYY-MM-DD, defaults to today
}

// Gateway is the external eligibility-lookup collaborator contract.
// Implementations must be side-effect free from the caller's point of view
// and deterministic for identical requests against unchanged data.
type Gateway interface {
	// Check performs the eligibility lookup. A non-nil error means the
	// collaborator itself failed; callers convert it to a LookupError result.
	Check(ctx context.Context, req CheckRequest) (*models.EligibilityResult, error)

	// ResolveProcedure maps a free-text procedure name to a known CPT entry.
	ResolveProcedure(name string) (*models.ProcedureInfo, bool)

	// ResolveMedication maps a free-text medication name to a known NDC entry.
	ResolveMedication(name string) (*models.MedicationInfo, bool)

	// ListTestMembers returns the static member reference data.
	ListTestMembers() []models.TestMember

	// ListProcedures returns the static procedure reference data.
	ListProcedures() []models.ProcedureInfo

	// ListMedications returns the static medication reference data.
	ListMedications() []models.MedicationInfo
}
