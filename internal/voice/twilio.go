package voice

import (
	"encoding/base64"
	"fmt"

	"github.com/gorilla/websocket"
)

// Twilio media-stream event names.
const (
	twilioEventConnected = "connected"
	twilioEventStart     = "start"
	twilioEventMedia     = "media"
	twilioEventMark      = "mark"
	twilioEventStop      = "stop"
)

// twilioMessage is one frame of the Twilio media-stream websocket protocol.
type twilioMessage struct {
	Event     string       `json:"event"`
	StreamSid string       `json:"streamSid,omitempty"`
	Start     *twilioStart `json:"start,omitempty"`
	Media     *twilioMedia `json:"media,omitempty"`
	Mark      *twilioMark  `json:"mark,omitempty"`
}

type twilioStart struct {
	StreamSid string `json:"streamSid"`
	CallSid   string `json:"callSid"`
}

type twilioMedia struct {
	Payload string `json:"payload"` // base64 mu-law audio
}

type twilioMark struct {
	Name string `json:"name"`
}

// TwilioStream wraps the websocket leg toward Twilio. Audio arrives and
// leaves as base64-encoded mu-law at 8kHz.
type TwilioStream struct {
	conn      *websocket.Conn
	streamSid string
	callSid   string
}

// NewTwilioStream wraps an upgraded media-stream connection.
func NewTwilioStream(conn *websocket.Conn) *TwilioStream {
	return &TwilioStream{conn: conn}
}

// CallSid returns the Twilio call identifier, known after the start frame.
func (t *TwilioStream) CallSid() string {
	return t.callSid
}

// ReadMessage blocks for the next frame and tracks stream metadata.
func (t *TwilioStream) ReadMessage() (*twilioMessage, error) {
	var msg twilioMessage
	if err := t.conn.ReadJSON(&msg); err != nil {
		return nil, err
	}
	if msg.Event == twilioEventStart && msg.Start != nil {
		t.streamSid = msg.Start.StreamSid
		t.callSid = msg.Start.CallSid
	}
	return &msg, nil
}

// DecodeMedia extracts the mu-law audio bytes from a media frame.
func (t *TwilioStream) DecodeMedia(msg *twilioMessage) ([]byte, error) {
	if msg.Media == nil {
		return nil, fmt.Errorf("media frame without payload")
	}
	audio, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode media payload: %w", err)
	}
	return audio, nil
}

// SendAudio sends mu-law audio to the caller.
func (t *TwilioStream) SendAudio(mulaw []byte) error {
	return t.conn.WriteJSON(twilioMessage{
		Event:     twilioEventMedia,
		StreamSid: t.streamSid,
		Media:     &twilioMedia{Payload: base64.StdEncoding.EncodeToString(mulaw)},
	})
}

// SendMark sends a mark frame, used to track playback position.
func (t *TwilioStream) SendMark(name string) error {
	return t.conn.WriteJSON(twilioMessage{
		Event:     twilioEventMark,
		StreamSid: t.streamSid,
		Mark:      &twilioMark{Name: name},
	})
}

// Close closes the websocket connection.
func (t *TwilioStream) Close() error {
	return t.conn.Close()
}
