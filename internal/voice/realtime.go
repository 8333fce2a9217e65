package voice

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// DefaultRealtimeModel is the speech-to-speech model used for calls.
const DefaultRealtimeModel = "gpt-4o-realtime-preview-2024-10-01"

const realtimeURL = "wss://api.openai.com/v1/realtime?model=%s"

// sessionInstructions is the system prompt for the phone assistant.
const sessionInstructions = `You are a helpful and professional insurance eligibility verification assistant.

Your role is to:
1. Greet the caller warmly and ask how you can help them
2. Gather required information through natural conversation:
   - Member ID or Patient ID
   - Date of Birth (format: month day year, like March 15 1985)
   - What medical procedure or medication they're asking about
3. Once you have member_id and date_of_birth, call the check_eligibility function
4. Explain the results clearly in simple terms
5. Ask if they need anything else

Guidelines:
- Be conversational and friendly
- Ask for ONE piece of information at a time
- Confirm information back to the caller
- Speak clearly and at a moderate pace
- If the caller seems confused, clarify patiently`

// RealtimeEvent is a decoded server event from the realtime API. Only the
// fields the relay acts on are populated.
type RealtimeEvent struct {
	Type       string `json:"type"`
	Delta      string `json:"delta,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	CallID     string `json:"call_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Arguments  string `json:"arguments,omitempty"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Realtime server event types the relay handles.
const (
	EventAudioDelta         = "response.audio.delta"
	EventAudioTranscript    = "response.audio_transcript.delta"
	EventInputTranscription = "conversation.item.input_audio_transcription.completed"
	EventFunctionCallDone   = "response.function_call_arguments.done"
	EventError              = "error"
)

// RealtimeClient is a websocket client for the OpenAI Realtime API. Caller
// audio and function outputs are sent from separate goroutines, and
// gorilla/websocket permits only one concurrent writer, so every outbound
// message goes through writeJSON under the write mutex.
type RealtimeClient struct {
	conn    *websocket.Conn
	model   string
	writeMu sync.Mutex
}

func (c *RealtimeClient) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// DialRealtime connects and configures a realtime session with the
// eligibility tool registered.
func DialRealtime(ctx context.Context, apiKey, model string) (*RealtimeClient, error) {
	if model == "" {
		model = DefaultRealtimeModel
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+apiKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, fmt.Sprintf(realtimeURL, model), header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to realtime API: %w", err)
	}

	c := &RealtimeClient{conn: conn, model: model}
	if err := c.configureSession(); err != nil {
		conn.Close()
		return nil, err
	}
	slog.Info("RealtimeClient.DialRealtime: session configured", "model", model)
	return c, nil
}

// configureSession sends the session.update with instructions, audio formats,
// server-side voice activity detection, and the check_eligibility tool.
func (c *RealtimeClient) configureSession() error {
	config := map[string]interface{}{
		"type": "session.update",
		"session": map[string]interface{}{
			"modalities":          []string{"text", "audio"},
			"instructions":        sessionInstructions,
			"voice":               "alloy",
			"input_audio_format":  "pcm16",
			"output_audio_format": "pcm16",
			"input_audio_transcription": map[string]interface{}{
				"model": "whisper-1",
			},
			"turn_detection": map[string]interface{}{
				"type":                "server_vad",
				"threshold":           0.5,
				"prefix_padding_ms":   300,
				"silence_duration_ms": 500,
			},
			"tools": []map[string]interface{}{
				{
					"type":        "function",
					"name":        "check_eligibility",
					"description": "Check insurance eligibility for a patient. Call this when you have collected the member_id and date_of_birth from the caller.",
					"parameters": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"member_id": map[string]interface{}{
								"type":        "string",
								"description": "The patient's member ID or patient ID",
							},
							"date_of_birth": map[string]interface{}{
								"type":        "string",
								"description": "Date of birth in YYYY-MM-DD format",
							},
							"procedure_code": map[string]interface{}{
								"type":        "string",
								"description": "CPT code if checking for a specific procedure",
							},
							"medication_name": map[string]interface{}{
								"type":        "string",
								"description": "Medication name if checking drug coverage",
							},
						},
						"required": []string{"member_id", "date_of_birth"},
					},
				},
			},
			"tool_choice": "auto",
			"temperature": 0.8,
		},
	}
	if err := c.writeJSON(config); err != nil {
		return fmt.Errorf("failed to configure realtime session: %w", err)
	}
	return nil
}

// AppendAudio forwards a chunk of 24kHz PCM16 caller audio to the model.
func (c *RealtimeClient) AppendAudio(pcm []byte) error {
	return c.writeJSON(map[string]string{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(pcm),
	})
}

// ReadEvent blocks for the next server event.
func (c *RealtimeClient) ReadEvent() (*RealtimeEvent, error) {
	var event RealtimeEvent
	if err := c.conn.ReadJSON(&event); err != nil {
		return nil, err
	}
	return &event, nil
}

// SendFunctionOutput returns a tool result to the model and asks it to speak
// a response based on it.
func (c *RealtimeClient) SendFunctionOutput(callID, output string) error {
	item := map[string]interface{}{
		"type": "conversation.item.create",
		"item": map[string]interface{}{
			"type":    "function_call_output",
			"call_id": callID,
			"output":  output,
		},
	}
	if err := c.writeJSON(item); err != nil {
		return fmt.Errorf("failed to send function output: %w", err)
	}
	if err := c.writeJSON(map[string]string{"type": "response.create"}); err != nil {
		return fmt.Errorf("failed to request response after function output: %w", err)
	}
	return nil
}

// Close closes the websocket connection.
func (c *RealtimeClient) Close() error {
	return c.conn.Close()
}

// DecodeAudioDelta extracts the PCM16 bytes from an audio delta event.
func (e *RealtimeEvent) DecodeAudioDelta() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(e.Delta)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio delta: %w", err)
	}
	return data, nil
}
