package flow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"

	"github.com/carelinq/eligibility-agent/internal/genai"
	"github.com/carelinq/eligibility-agent/internal/models"
)

const composerSystemPrompt = `You are a friendly insurance eligibility assistant on a phone line.
Rewrite the draft message below in a warm, concise, conversational tone.
Keep every fact from the draft: coverage status, dollar amounts, dates,
prior authorization requirements, and anything the caller must do next.
Never add facts that are not in the draft. Reply with the message only.`

// LLMComposer asks the language model to phrase the agent's reply, seeded
// with the deterministic template output so every fact survives even when the
// model is down. On any model failure the template text is returned as-is.
type LLMComposer struct {
	client   genai.ClientInterface
	template *TemplateComposer
}

// NewLLMComposer creates a composer backed by the given model client.
func NewLLMComposer(client genai.ClientInterface) *LLMComposer {
	return &LLMComposer{client: client, template: NewTemplateComposer()}
}

// ComposeGatherInfo implements ResponseComposer.
func (c *LLMComposer) ComposeGatherInfo(state *models.ConversationState, missing []models.FieldName) string {
	return c.rephrase(state, c.template.ComposeGatherInfo(state, missing))
}

// ComposeFinal implements ResponseComposer.
func (c *LLMComposer) ComposeFinal(state *models.ConversationState, result *models.EligibilityResult) string {
	return c.rephrase(state, c.template.ComposeFinal(state, result))
}

// ComposeGiveUp implements ResponseComposer.
func (c *LLMComposer) ComposeGiveUp(state *models.ConversationState) string {
	return c.rephrase(state, c.template.ComposeGiveUp(state))
}

func (c *LLMComposer) rephrase(state *models.ConversationState, draft string) string {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(composerSystemPrompt),
	}
	// Recent turns give the model the conversational register to match.
	for _, turn := range tailTurns(state.TurnHistory, 6) {
		if turn.Role == "user" {
			messages = append(messages, openai.UserMessage(turn.Content))
		} else {
			messages = append(messages, openai.AssistantMessage(turn.Content))
		}
	}
	messages = append(messages, openai.UserMessage("Draft message: "+draft))

	out, err := c.client.GenerateWithMessages(context.Background(), messages)
	if err != nil {
		slog.Warn("LLMComposer.rephrase: model call failed, using draft", "error", err)
		return draft
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return draft
	}
	return out
}

func tailTurns(history []models.TurnMessage, n int) []models.TurnMessage {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
