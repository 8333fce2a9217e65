// Package eligibility provides the mock eligibility data source.
//
// The mock simulates an X12 270/271 style eligibility verification service
// with a fixed member roster, procedure coverage table, and drug formulary.
package eligibility

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/carelinq/eligibility-agent/internal/models"
)

// memberRecord is one row of the mock member roster.
type memberRecord struct {
	MemberID             string
	FirstName            string
	LastName             string
	DOB                  string
	PolicyNumber         string
	CoverageStatus       string // "active" or "inactive"
	PlanType             string
	EffectiveDate        string
	TerminationDate      string
	CopaySpecialist      float64
	CopayPrimary         float64
	DeductibleIndividual float64
	DeductibleMet        float64
	OutOfPocketMax       float64
	OutOfPocketMet       float64
}

// procedureRecord is one row of the procedure coverage table.
type procedureRecord struct {
	Name         string
	Covered      bool
	RequiresAuth bool
}

// drugRecord is one row of the drug formulary.
type drugRecord struct {
	Name         string
	Covered      bool
	Tier         int // 0 means no tier
	Copay        float64
	RequiresAuth bool
}

// MockGateway implements Gateway against static in-process lookup tables.
type MockGateway struct {
	members    map[string]memberRecord
	procedures map[string]procedureRecord
	drugs      map[string]drugRecord
}

// NewMockGateway creates a mock gateway seeded with the standard test data.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		members: map[string]memberRecord{
			"MB123456": {
				MemberID: "MB123456", FirstName: "John", LastName: "Doe",
				DOB: "1985-03-15", PolicyNumber: "POL789456",
				CoverageStatus: "active", PlanType: "PPO",
				EffectiveDate:   "2024-01-01",
				CopaySpecialist: 40.00, CopayPrimary: 25.00,
				DeductibleIndividual: 1500.00, DeductibleMet: 450.00,
				OutOfPocketMax: 6000.00, OutOfPocketMet: 890.00,
			},
			"MB789012": {
				MemberID: "MB789012", FirstName: "Jane", LastName: "Smith",
				DOB: "1990-07-22", PolicyNumber: "POL456123",
				CoverageStatus: "active", PlanType: "HMO",
				EffectiveDate:   "2023-06-01",
				CopaySpecialist: 50.00, CopayPrimary: 20.00,
				DeductibleIndividual: 2000.00, DeductibleMet: 2000.00,
				OutOfPocketMax: 7500.00, OutOfPocketMet: 3200.00,
			},
			"MB345678": {
				MemberID: "MB345678", FirstName: "Robert", LastName: "Johnson",
				DOB: "1975-11-30", PolicyNumber: "POL123789",
				CoverageStatus: "inactive", PlanType: "PPO",
				EffectiveDate:   "2022-01-01",
				TerminationDate: "2023-12-31",
			},
		},
		procedures: map[string]procedureRecord{
			"99213": {Name: "Office Visit - Established Patient", Covered: true},
			"99214": {Name: "Office Visit - Detailed", Covered: true},
			"99285": {Name: "Emergency Department Visit", Covered: true},
			"80053": {Name: "Comprehensive Metabolic Panel", Covered: true},
			"71045": {Name: "Chest X-Ray", Covered: true},
			"70450": {Name: "CT Head/Brain without Contrast", Covered: true, RequiresAuth: true},
			"70553": {Name: "MRI Brain", Covered: true, RequiresAuth: true},
			"27447": {Name: "Total Knee Replacement", Covered: true, RequiresAuth: true},
			"J1745": {Name: "Infliximab Injection", Covered: true, RequiresAuth: true},
			"J9035": {Name: "Bevacizumab Injection", Covered: false},
			"G0438": {Name: "Annual Wellness Visit", Covered: true},
		},
		drugs: map[string]drugRecord{
			"00002-7510-01": {Name: "Atorvastatin 20mg", Covered: true, Tier: 1, Copay: 10.00},
			"00069-0950-68": {Name: "Metformin 500mg", Covered: true, Tier: 1, Copay: 10.00},
			"00069-1530-01": {Name: "Lisinopril 10mg", Covered: true, Tier: 1, Copay: 10.00},
			"50090-3568-00": {Name: "Humira 40mg/0.8ml", Covered: true, Tier: 3, Copay: 150.00, RequiresAuth: true},
			"00052-0602-02": {Name: "Eliquis 5mg", Covered: true, Tier: 2, Copay: 45.00},
			"12345-6789-00": {Name: "Experimental Drug XYZ", Covered: false},
		},
	}
}

// Check performs the mock eligibility lookup. It never returns a Go error;
// every outcome, including bad input, maps to a result variant.
func (g *MockGateway) Check(ctx context.Context, req CheckRequest) (*models.EligibilityResult, error) {
	slog.Debug("MockGateway.Check invoked", "memberID", req.MemberID, "procedureCode", req.ProcedureCode, "ndcCode", req.NDCCode)

	member, ok := g.members[req.MemberID]
	if !ok {
		slog.Debug("MockGateway.Check member not found", "memberID", req.MemberID)
		return &models.EligibilityResult{
			Outcome:   models.OutcomeMemberNotFound,
			Reason:    fmt.Sprintf("no member found with ID %s", req.MemberID),
			CheckedAt: time.Now(),
		}, nil
	}

	// DOB must match records when provided.
	if req.DateOfBirth != "" && member.DOB != req.DateOfBirth {
		slog.Debug("MockGateway.Check DOB mismatch", "memberID", req.MemberID)
		return &models.EligibilityResult{
			Outcome:   models.OutcomeMemberNotFound,
			Reason:    "date of birth does not match our records",
			CheckedAt: time.Now(),
		}, nil
	}

	if member.CoverageStatus != "active" {
		slog.Debug("MockGateway.Check coverage inactive", "memberID", req.MemberID, "terminatedOn", member.TerminationDate)
		return &models.EligibilityResult{
			Outcome:      models.OutcomeInactiveCoverage,
			Member:       memberInfo(member),
			TerminatedOn: member.TerminationDate,
			CheckedAt:    time.Now(),
		}, nil
	}

	// The service date defaults to today and must fall on or after the
	// coverage effective date.
	serviceDate := req.ServiceDate
	if serviceDate == "" {
		serviceDate = time.Now().Format("2006-01-02")
	}
	if service, err := time.Parse("2006-01-02", serviceDate); err == nil {
		if effective, err := time.Parse("2006-01-02", member.EffectiveDate); err == nil && service.Before(effective) {
			slog.Debug("MockGateway.Check service date before effective date", "memberID", req.MemberID, "serviceDate", serviceDate, "effectiveDate", member.EffectiveDate)
			return &models.EligibilityResult{
				Outcome:   models.OutcomeInactiveCoverage,
				Member:    memberInfo(member),
				Reason:    fmt.Sprintf("service date %s is before the coverage effective date %s", serviceDate, member.EffectiveDate),
				CheckedAt: time.Now(),
			}, nil
		}
	}

	if req.NDCCode != "" {
		return g.pharmacyResult(member, req.NDCCode), nil
	}
	if req.ProcedureCode != "" {
		return g.medicalResult(member, req.ProcedureCode), nil
	}
	return g.generalResult(member), nil
}

// generalResult builds the response for a coverage check with no specific service.
func (g *MockGateway) generalResult(member memberRecord) *models.EligibilityResult {
	return &models.EligibilityResult{
		Outcome:   models.OutcomeEligible,
		Member:    memberInfo(member),
		Benefit:   benefitInfo(member, nil),
		CheckedAt: time.Now(),
	}
}

// medicalResult builds the response for a specific CPT code.
func (g *MockGateway) medicalResult(member memberRecord, code string) *models.EligibilityResult {
	proc, known := g.procedures[code]
	if !known {
		proc = procedureRecord{Name: fmt.Sprintf("Unknown Procedure %s", code)}
	}

	result := &models.EligibilityResult{
		Member:            memberInfo(member),
		CoveredItem:       proc.Name,
		CoveredItemCode:   code,
		RequiresPriorAuth: proc.RequiresAuth,
		CheckedAt:         time.Now(),
	}

	if !proc.Covered {
		result.Outcome = models.OutcomeNotCovered
		result.Reason = fmt.Sprintf("procedure %s (%s) is not covered under this plan", code, proc.Name)
		return result
	}

	// Copay applies once the deductible is met; specialist rates for services
	// that require prior authorization.
	var copay *float64
	if member.DeductibleIndividual-member.DeductibleMet <= 0 {
		amount := member.CopayPrimary
		if proc.RequiresAuth {
			amount = member.CopaySpecialist
		}
		copay = &amount
	}
	result.Benefit = benefitInfo(member, copay)

	if proc.RequiresAuth {
		result.Outcome = models.OutcomeEligibleConditional
	} else {
		result.Outcome = models.OutcomeEligible
	}
	return result
}

// pharmacyResult builds the response for a specific NDC code.
func (g *MockGateway) pharmacyResult(member memberRecord, ndc string) *models.EligibilityResult {
	drug, known := g.drugs[ndc]
	if !known {
		drug = drugRecord{Name: fmt.Sprintf("Unknown Medication %s", ndc)}
	}

	result := &models.EligibilityResult{
		Member:            memberInfo(member),
		CoveredItem:       drug.Name,
		CoveredItemCode:   ndc,
		RequiresPriorAuth: drug.RequiresAuth,
		CheckedAt:         time.Now(),
	}

	if !drug.Covered {
		result.Outcome = models.OutcomeNotCovered
		result.Reason = fmt.Sprintf("medication %s is not covered under this plan's formulary", drug.Name)
		return result
	}

	copay := drug.Copay
	result.Benefit = benefitInfo(member, &copay)

	if drug.RequiresAuth {
		result.Outcome = models.OutcomeEligibleConditional
	} else {
		result.Outcome = models.OutcomeEligible
	}
	return result
}

// ResolveProcedure maps a free-text procedure name to a known CPT entry using
// substring and word matching in either direction.
func (g *MockGateway) ResolveProcedure(name string) (*models.ProcedureInfo, bool) {
	query := strings.ToLower(strings.TrimSpace(name))
	if query == "" {
		return nil, false
	}
	for _, code := range sortedKeys(g.procedures) {
		proc := g.procedures[code]
		if nameMatches(query, strings.ToLower(proc.Name)) {
			return &models.ProcedureInfo{
				Code: code, Name: proc.Name,
				Covered: proc.Covered, RequiresAuth: proc.RequiresAuth,
			}, true
		}
	}
	return nil, false
}

// ResolveMedication maps a free-text medication name to a known NDC entry.
func (g *MockGateway) ResolveMedication(name string) (*models.MedicationInfo, bool) {
	query := strings.ToLower(strings.TrimSpace(name))
	if query == "" {
		return nil, false
	}
	for _, ndc := range sortedKeys(g.drugs) {
		drug := g.drugs[ndc]
		if nameMatches(query, strings.ToLower(drug.Name)) {
			return medicationInfo(ndc, drug), true
		}
	}
	return nil, false
}

// nameMatches reports whether a lowercase query refers to a lowercase item name.
func nameMatches(query, itemName string) bool {
	if strings.Contains(itemName, query) || strings.Contains(query, itemName) {
		return true
	}
	for _, word := range strings.Fields(query) {
		if len(word) >= 3 && strings.Contains(itemName, word) {
			return true
		}
	}
	return false
}

// ListTestMembers returns the static member reference data.
func (g *MockGateway) ListTestMembers() []models.TestMember {
	var out []models.TestMember
	for _, id := range sortedKeys(g.members) {
		m := g.members[id]
		out = append(out, models.TestMember{
			MemberID: id,
			Name:     m.FirstName + " " + m.LastName,
			Status:   m.CoverageStatus,
		})
	}
	return out
}

// ListProcedures returns the static procedure reference data.
func (g *MockGateway) ListProcedures() []models.ProcedureInfo {
	var out []models.ProcedureInfo
	for _, code := range sortedKeys(g.procedures) {
		p := g.procedures[code]
		out = append(out, models.ProcedureInfo{
			Code: code, Name: p.Name, Covered: p.Covered, RequiresAuth: p.RequiresAuth,
		})
	}
	return out
}

// ListMedications returns the static medication reference data.
func (g *MockGateway) ListMedications() []models.MedicationInfo {
	var out []models.MedicationInfo
	for _, ndc := range sortedKeys(g.drugs) {
		out = append(out, *medicationInfo(ndc, g.drugs[ndc]))
	}
	return out
}

func memberInfo(m memberRecord) *models.MemberInfo {
	return &models.MemberInfo{
		MemberID:     m.MemberID,
		Name:         m.FirstName + " " + m.LastName,
		DateOfBirth:  m.DOB,
		PolicyNumber: m.PolicyNumber,
		PlanType:     m.PlanType,
	}
}

func benefitInfo(m memberRecord, copay *float64) *models.BenefitInfo {
	return &models.BenefitInfo{
		DeductibleIndividual: m.DeductibleIndividual,
		DeductibleMet:        m.DeductibleMet,
		DeductibleRemaining:  m.DeductibleIndividual - m.DeductibleMet,
		OutOfPocketMax:       m.OutOfPocketMax,
		OutOfPocketMet:       m.OutOfPocketMet,
		Copay:                copay,
	}
}

func medicationInfo(ndc string, d drugRecord) *models.MedicationInfo {
	info := &models.MedicationInfo{
		NDCCode: ndc, Name: d.Name, Covered: d.Covered, RequiresAuth: d.RequiresAuth,
	}
	if d.Tier > 0 {
		tier := d.Tier
		info.Tier = &tier
	}
	if d.Covered {
		copay := d.Copay
		info.Copay = &copay
	}
	return info
}

// sortedKeys returns map keys in stable order so list and resolve operations
// are deterministic.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
