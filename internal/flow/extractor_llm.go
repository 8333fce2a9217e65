package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/carelinq/eligibility-agent/internal/genai"
	"github.com/carelinq/eligibility-agent/internal/models"
)

const extractionSystemPrompt = `You extract insurance eligibility information from a patient message.
Call record_eligibility_fields with every field that is clearly present in the
message. Never guess or invent values; omit fields that are not present. If
the message contains none of the fields, do not call the function.`

// extractionToolName is the function the model fills in with extracted fields.
const extractionToolName = "record_eligibility_fields"

var extractionTool = openai.ChatCompletionToolParam{
	Function: shared.FunctionDefinitionParam{
		Name:        extractionToolName,
		Description: openai.String("Record structured eligibility fields found in the patient's message."),
		Parameters: shared.FunctionParameters{
			"type": "object",
			"properties": map[string]interface{}{
				"member_id": map[string]interface{}{
					"type":        "string",
					"description": "Insurance member ID: letters followed by digits",
				},
				"date_of_birth": map[string]interface{}{
					"type":        "string",
					"description": "Date of birth in YYYY-MM-DD",
				},
				"procedure_code": map[string]interface{}{
					"type":        "string",
					"description": "CPT or HCPCS code: 5 digits, or a letter and 4 digits",
				},
				"ndc_code": map[string]interface{}{
					"type":        "string",
					"description": "NDC medication code",
				},
				"procedure_name": map[string]interface{}{
					"type":        "string",
					"description": "Procedure mentioned by name rather than code",
				},
				"medication_name": map[string]interface{}{
					"type":        "string",
					"description": "Medication mentioned by name rather than code",
				},
				"intent": map[string]interface{}{
					"type": "string",
					"enum": []string{"general_coverage", "procedure_check", "medication_check"},
				},
				"corrected": map[string]interface{}{
					"type":        "boolean",
					"description": "True if the patient is correcting earlier information",
				},
			},
		},
	},
}

// llmExtraction is the argument shape of the extraction tool call.
type llmExtraction struct {
	MemberID       string `json:"member_id"`
	DateOfBirth    string `json:"date_of_birth"`
	ProcedureCode  string `json:"procedure_code"`
	NDCCode        string `json:"ndc_code"`
	ProcedureName  string `json:"procedure_name"`
	MedicationName string `json:"medication_name"`
	Intent         string `json:"intent"`
	Corrected      bool   `json:"corrected"`
}

// LLMExtractor asks the language model for structured extraction via a
// function call and falls back to pattern matching when the model is
// unavailable or does not call the function. All model output passes through
// the same normalizers as the rule extractor, so a hallucinated value that
// fails normalization is dropped rather than collected.
type LLMExtractor struct {
	client   genai.ClientInterface
	fallback *RuleExtractor
}

// NewLLMExtractor creates an extractor backed by the given model client.
func NewLLMExtractor(client genai.ClientInterface) *LLMExtractor {
	return &LLMExtractor{client: client, fallback: NewRuleExtractor()}
}

// Extract implements FieldExtractor.
func (e *LLMExtractor) Extract(ctx context.Context, utterance string, state *models.ConversationState) (*Extraction, error) {
	known := make([]string, 0, len(state.CollectedFields))
	for name, value := range state.CollectedFields {
		known = append(known, fmt.Sprintf("%s=%s", name, value))
	}
	userPrompt := fmt.Sprintf("Already collected: %s\nPatient message: %s",
		strings.Join(known, ", "), utterance)

	resp, err := e.client.GenerateWithTools(ctx,
		[]openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(extractionSystemPrompt),
			openai.UserMessage(userPrompt),
		},
		[]openai.ChatCompletionToolParam{extractionTool},
	)
	if err != nil {
		slog.Warn("LLMExtractor.Extract: model call failed, using rule fallback", "error", err)
		return e.fallback.Extract(ctx, utterance, state)
	}

	parsed, ok := parseExtractionCall(resp)
	if !ok {
		// The model saw nothing extractable; the rules get a second look.
		return e.fallback.Extract(ctx, utterance, state)
	}

	ex := &Extraction{
		Fields:         make(map[models.FieldName]string),
		Corrected:      parsed.Corrected,
		ProcedureName:  strings.TrimSpace(parsed.ProcedureName),
		MedicationName: strings.TrimSpace(parsed.MedicationName),
	}
	if id, ok := NormalizeMemberID(parsed.MemberID); ok {
		ex.Fields[models.FieldMemberID] = id
	}
	if date, ok := NormalizeDate(parsed.DateOfBirth); ok {
		ex.Fields[models.FieldDateOfBirth] = date
	}
	if code, ok := NormalizeCPT(parsed.ProcedureCode); ok {
		ex.Fields[models.FieldProcedureCode] = code
	}
	if ndc, ok := NormalizeNDC(parsed.NDCCode); ok {
		ex.Fields[models.FieldNDCCode] = ndc
	}
	if models.IsValidIntent(models.Intent(parsed.Intent)) {
		ex.Intent = models.Intent(parsed.Intent)
	}
	switch ex.Intent {
	case models.IntentMedicationCheck:
		ex.Fields[models.FieldServiceType] = "pharmacy"
	case models.IntentProcedureCheck:
		ex.Fields[models.FieldServiceType] = "medical"
	case models.IntentGeneralCoverage:
		ex.Fields[models.FieldServiceType] = "general"
	}
	return ex, nil
}

// parseExtractionCall pulls the extraction tool call out of a completion, if
// the model made one.
func parseExtractionCall(resp *genai.ToolCallResponse) (*llmExtraction, bool) {
	for _, call := range resp.ToolCalls {
		if call.Function.Name != extractionToolName {
			continue
		}
		var parsed llmExtraction
		if err := json.Unmarshal(call.Function.Arguments, &parsed); err != nil {
			slog.Warn("LLMExtractor.parseExtractionCall: bad tool arguments", "error", err)
			return nil, false
		}
		return &parsed, true
	}
	return nil, false
}
