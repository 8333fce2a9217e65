package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/carelinq/eligibility-agent/internal/flow"
	"github.com/carelinq/eligibility-agent/internal/models"
	"github.com/carelinq/eligibility-agent/internal/util"
)

// CallSession relays one phone call between Twilio and the realtime model and
// services the model's eligibility tool calls through the dialogue engine.
type CallSession struct {
	engine   *flow.Engine
	twilio   *TwilioStream
	realtime *RealtimeClient
}

// NewCallSession wires a call's two websocket legs together.
func NewCallSession(engine *flow.Engine, twilio *TwilioStream, realtime *RealtimeClient) *CallSession {
	return &CallSession{engine: engine, twilio: twilio, realtime: realtime}
}

// Run relays audio in both directions until either leg closes.
func (s *CallSession) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{}, 2)
	go func() {
		defer func() { done <- struct{}{} }()
		s.callerToModel(ctx)
	}()
	go func() {
		defer func() { done <- struct{}{} }()
		s.modelToCaller(ctx)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
	cancel()
	s.realtime.Close()
	s.twilio.Close()
	slog.Info("CallSession.Run: call finished", "callSid", s.twilio.CallSid())
}

// callerToModel forwards caller audio frames to the model, transcoding mu-law
// 8kHz to PCM16 24kHz.
func (s *CallSession) callerToModel(ctx context.Context) {
	for ctx.Err() == nil {
		msg, err := s.twilio.ReadMessage()
		if err != nil {
			slog.Debug("CallSession.callerToModel: twilio read ended", "error", err)
			return
		}
		switch msg.Event {
		case twilioEventConnected:
			slog.Debug("CallSession.callerToModel: twilio connected")
		case twilioEventStart:
			slog.Info("CallSession.callerToModel: stream started",
				"streamSid", msg.Start.StreamSid, "callSid", msg.Start.CallSid)
		case twilioEventMedia:
			mulaw, err := s.twilio.DecodeMedia(msg)
			if err != nil {
				slog.Warn("CallSession.callerToModel: bad media frame", "error", err)
				continue
			}
			pcm := Upsample8kTo24k(MulawToPCM16(mulaw))
			if err := s.realtime.AppendAudio(pcm); err != nil {
				slog.Warn("CallSession.callerToModel: failed to forward audio", "error", err)
				return
			}
		case twilioEventStop:
			slog.Info("CallSession.callerToModel: stream stopped", "callSid", s.twilio.CallSid())
			return
		}
	}
}

// modelToCaller forwards model audio to the caller and services tool calls.
func (s *CallSession) modelToCaller(ctx context.Context) {
	for ctx.Err() == nil {
		event, err := s.realtime.ReadEvent()
		if err != nil {
			slog.Debug("CallSession.modelToCaller: realtime read ended", "error", err)
			return
		}
		switch event.Type {
		case EventAudioDelta:
			pcm, err := event.DecodeAudioDelta()
			if err != nil {
				slog.Warn("CallSession.modelToCaller: bad audio delta", "error", err)
				continue
			}
			mulaw := PCM16ToMulaw(Downsample24kTo8k(pcm))
			if err := s.twilio.SendAudio(mulaw); err != nil {
				slog.Warn("CallSession.modelToCaller: failed to send audio", "error", err)
				return
			}
		case EventAudioTranscript:
			slog.Debug("CallSession.modelToCaller: assistant transcript", "delta", event.Delta)
		case EventInputTranscription:
			slog.Info("CallSession.modelToCaller: caller said",
				"callSid", s.twilio.CallSid(), "transcript", event.Transcript)
		case EventFunctionCallDone:
			s.handleFunctionCall(ctx, event)
		case EventError:
			if event.Error != nil {
				slog.Error("CallSession.modelToCaller: realtime error",
					"errorType", event.Error.Type, "message", event.Error.Message)
			}
		}
	}
}

// handleFunctionCall runs an eligibility check requested by the model and
// returns a spoken-friendly summary as the tool output.
func (s *CallSession) handleFunctionCall(ctx context.Context, event *RealtimeEvent) {
	call := models.ToolCall{
		ID:   event.CallID,
		Type: "function",
		Function: models.FunctionCall{
			Name:      event.Name,
			Arguments: json.RawMessage(event.Arguments),
		},
	}
	params, err := call.Function.ParseCheckEligibilityParams()
	if err != nil {
		slog.Warn("CallSession.handleFunctionCall: bad function call", "name", event.Name, "error", err)
		s.sendFunctionError(event.CallID, "The eligibility check request was malformed.")
		return
	}
	slog.Info("CallSession.handleFunctionCall: checking eligibility",
		"callSid", s.twilio.CallSid(), "memberID", params.MemberID)

	result, err := s.engine.DirectCheck(ctx, *params)
	if err != nil {
		slog.Warn("CallSession.handleFunctionCall: check failed", "error", err)
		s.sendFunctionError(event.CallID, err.Error())
		return
	}

	output, err := json.Marshal(map[string]interface{}{
		"success": result.IsEligible(),
		"summary": SummarizeResult(result),
		"outcome": result.Outcome,
	})
	if err != nil {
		slog.Error("CallSession.handleFunctionCall: failed to marshal output", "error", err)
		return
	}
	if err := s.realtime.SendFunctionOutput(event.CallID, string(output)); err != nil {
		slog.Warn("CallSession.handleFunctionCall: failed to send output", "error", err)
		return
	}
	// Marks the playback position so the result can be correlated in stream logs.
	if err := s.twilio.SendMark(util.GenerateMarkName()); err != nil {
		slog.Debug("CallSession.handleFunctionCall: failed to send mark", "error", err)
	}
}

func (s *CallSession) sendFunctionError(callID, message string) {
	output, err := json.Marshal(map[string]interface{}{"success": false, "error": message})
	if err != nil {
		return
	}
	if err := s.realtime.SendFunctionOutput(callID, string(output)); err != nil {
		slog.Warn("CallSession.sendFunctionError: failed to send output", "error", err)
	}
}

// SummarizeResult converts an eligibility result into a short natural summary
// for the model to speak.
func SummarizeResult(result *models.EligibilityResult) string {
	switch result.Outcome {
	case models.OutcomeEligible, models.OutcomeEligibleConditional:
		var b strings.Builder
		b.WriteString("Good news! The patient is eligible for coverage. ")
		if bi := result.Benefit; bi != nil {
			if bi.DeductibleRemaining > 0 {
				fmt.Fprintf(&b, "They have $%.0f remaining on their deductible. ", bi.DeductibleRemaining)
			} else {
				b.WriteString("Their deductible has been met. ")
			}
			if bi.Copay != nil {
				fmt.Fprintf(&b, "The copay is $%.0f. ", *bi.Copay)
			}
		}
		if result.RequiresPriorAuth {
			b.WriteString("Note: Prior authorization is required for this service. ")
		}
		return strings.TrimSpace(b.String())
	case models.OutcomeNotCovered:
		if result.Reason != "" {
			return fmt.Sprintf("That service is not covered. %s", result.Reason)
		}
		return "That service is not covered under the patient's plan."
	case models.OutcomeInactiveCoverage:
		if result.TerminatedOn != "" {
			return fmt.Sprintf("The patient's coverage is inactive; it was terminated on %s.", result.TerminatedOn)
		}
		if result.Reason != "" {
			return fmt.Sprintf("The patient's coverage is not active for this check; the %s.", result.Reason)
		}
		return "The patient's coverage is no longer active."
	case models.OutcomeMemberNotFound:
		return "No member matches that ID and date of birth. The caller should double-check their insurance card."
	case models.OutcomeLookupError:
		return "The eligibility system could not be reached. The caller should try again later."
	default:
		return "The eligibility check returned an unclear response."
	}
}
