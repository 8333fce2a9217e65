package flow

import (
	"context"
	"regexp"
	"strings"

	"github.com/carelinq/eligibility-agent/internal/models"
)

// Extraction holds the structured information pulled from a single user turn.
type Extraction struct {
	// Fields maps canonical field names to normalized values.
	Fields map[models.FieldName]string
	// Corrected reports that the user was amending earlier information, so
	// extracted values may overwrite previously collected ones.
	Corrected bool
	// Intent is the detected conversation intent, empty when none was
	// recognizable in this turn.
	Intent models.Intent
	// ProcedureName is a free-text procedure mention ("MRI", "knee
	// replacement") awaiting code resolution.
	ProcedureName string
	// MedicationName is a free-text medication mention awaiting NDC
	// resolution.
	MedicationName string
}

// FieldExtractor pulls member identifiers, dates, codes, and intent from a
// free-text user utterance. Implementations must never invent values that are
// not present in the utterance.
type FieldExtractor interface {
	Extract(ctx context.Context, utterance string, state *models.ConversationState) (*Extraction, error)
}

var (
	// Single letter + four digits is a HCPCS code, not a member ID.
	memberIDRe  = regexp.MustCompile(`(?i)\b([A-Z]{2,4}-?\d{4,12}|[A-Z]\d{5,12})\b`)
	spelledIDRe = regexp.MustCompile(`(?i)\b((?:[A-Z0-9][ \-]){5,}[A-Z0-9])\b`)

	isoDateRe   = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	slashDateRe = regexp.MustCompile(`\b(\d{1,2}[/-]\d{1,2}[/-]\d{4})\b`)
	wordDateRe  = regexp.MustCompile(`(?i)\b((?:January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\.?\s+\d{1,2},?\s+\d{4})\b`)

	ndcRe      = regexp.MustCompile(`\b(\d{5}-\d{4}-\d{2})\b`)
	hcpcsRe    = regexp.MustCompile(`\b([A-Za-z]\d{4})\b`)
	cptRe      = regexp.MustCompile(`\b(\d{5})\b`)
	correctRe  = regexp.MustCompile(`(?i)\b(actually|i meant|correction|my mistake|not\s+[A-Z]{1,4}\d{4,12}|sorry)\b`)
	pharmacyRe = regexp.MustCompile(`(?i)\b(medication|prescription|drug|pharmacy|refill|ndc)\b`)
	medicalRe  = regexp.MustCompile(`(?i)\b(procedure|scan|surgery|imaging|test|visit|cpt|therapy)\b`)
	generalRe  = regexp.MustCompile(`(?i)\b(coverage|covered|eligible|eligibility|insurance|benefits|plan|deductible)\b`)
)

// procedureAliases maps lowercase free-text mentions to the canonical names
// the eligibility source resolves. Longer aliases are checked first.
var procedureAliases = []struct {
	alias string
	name  string
}{
	{"knee replacement", "knee replacement"},
	{"total knee arthroplasty", "knee replacement"},
	{"physical therapy", "physical therapy"},
	{"emergency room", "emergency department visit"},
	{"emergency department", "emergency department visit"},
	{"metabolic panel", "metabolic panel"},
	{"blood panel", "metabolic panel"},
	{"colonoscopy", "colonoscopy"},
	{"office visit", "office visit"},
	{"wellness visit", "annual wellness visit"},
	{"x-ray", "x-ray"},
	{"xray", "x-ray"},
	{"ct scan", "ct"},
	{"mri", "mri"},
}

// medicationAliases maps lowercase mentions to medication names the
// eligibility source resolves.
var medicationAliases = []string{
	"humira",
	"adalimumab",
	"metformin",
	"atorvastatin",
	"lisinopril",
	"eliquis",
	"apixaban",
}

// RuleExtractor recognizes member IDs, dates of birth, CPT/HCPCS and NDC
// codes, and intent using deterministic pattern matching. It backs the LLM
// extractor as a fallback and is the default in tests.
type RuleExtractor struct{}

// NewRuleExtractor returns a pattern-based FieldExtractor.
func NewRuleExtractor() *RuleExtractor {
	return &RuleExtractor{}
}

// Extract implements FieldExtractor.
func (e *RuleExtractor) Extract(_ context.Context, utterance string, _ *models.ConversationState) (*Extraction, error) {
	ex := &Extraction{Fields: make(map[models.FieldName]string)}
	remainder := utterance

	ex.Corrected = correctRe.MatchString(utterance)

	if m := memberIDRe.FindString(remainder); m != "" {
		if id, ok := NormalizeMemberID(m); ok {
			ex.Fields[models.FieldMemberID] = id
			remainder = strings.Replace(remainder, m, " ", 1)
		}
	} else if m := spelledIDRe.FindString(remainder); m != "" {
		if id, ok := NormalizeMemberID(m); ok {
			ex.Fields[models.FieldMemberID] = id
			remainder = strings.Replace(remainder, m, " ", 1)
		}
	}

	if m := ndcRe.FindString(remainder); m != "" {
		if ndc, ok := NormalizeNDC(m); ok {
			ex.Fields[models.FieldNDCCode] = ndc
			remainder = strings.Replace(remainder, m, " ", 1)
		}
	}

	for _, re := range []*regexp.Regexp{isoDateRe, slashDateRe, wordDateRe} {
		m := re.FindString(remainder)
		if m == "" {
			continue
		}
		cleaned := strings.ReplaceAll(m, ".", "")
		if date, ok := NormalizeDate(cleaned); ok {
			ex.Fields[models.FieldDateOfBirth] = date
			remainder = strings.Replace(remainder, m, " ", 1)
			break
		}
	}

	if m := hcpcsRe.FindString(remainder); m != "" {
		if code, ok := NormalizeCPT(m); ok {
			ex.Fields[models.FieldProcedureCode] = code
			remainder = strings.Replace(remainder, m, " ", 1)
		}
	} else if m := cptRe.FindString(remainder); m != "" {
		if code, ok := NormalizeCPT(m); ok {
			ex.Fields[models.FieldProcedureCode] = code
			remainder = strings.Replace(remainder, m, " ", 1)
		}
	}

	lower := strings.ToLower(utterance)
	for _, med := range medicationAliases {
		if strings.Contains(lower, med) {
			ex.MedicationName = med
			break
		}
	}
	if ex.MedicationName == "" {
		for _, p := range procedureAliases {
			if strings.Contains(lower, p.alias) {
				ex.ProcedureName = p.name
				break
			}
		}
	}

	switch {
	case ex.MedicationName != "" || ex.Fields[models.FieldNDCCode] != "" || pharmacyRe.MatchString(utterance):
		ex.Intent = models.IntentMedicationCheck
		ex.Fields[models.FieldServiceType] = "pharmacy"
	case ex.ProcedureName != "" || ex.Fields[models.FieldProcedureCode] != "" || medicalRe.MatchString(utterance):
		ex.Intent = models.IntentProcedureCheck
		ex.Fields[models.FieldServiceType] = "medical"
	case generalRe.MatchString(utterance):
		ex.Intent = models.IntentGeneralCoverage
		ex.Fields[models.FieldServiceType] = "general"
	}

	return ex, nil
}
