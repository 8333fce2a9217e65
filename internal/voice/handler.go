package voice

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	twilioclient "github.com/twilio/twilio-go/client"
	"github.com/twilio/twilio-go/twiml"

	"github.com/carelinq/eligibility-agent/internal/flow"
)

// Opts holds voice handler configuration.
type Opts struct {
	Engine     *flow.Engine
	APIKey     string
	Model      string
	PublicHost string
	AuthToken  string
}

// Option configures the voice handler.
type Option func(*Opts)

// WithEngine sets the dialogue engine servicing tool calls.
func WithEngine(engine *flow.Engine) Option {
	return func(o *Opts) { o.Engine = engine }
}

// WithAPIKey sets the OpenAI API key for realtime sessions.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the realtime model.
func WithModel(model string) Option {
	return func(o *Opts) {
		if model != "" {
			o.Model = model
		}
	}
}

// WithPublicHost sets the externally reachable hostname Twilio connects back
// to for the media stream.
func WithPublicHost(host string) Option {
	return func(o *Opts) { o.PublicHost = host }
}

// WithAuthToken sets the Twilio auth token used to validate webhook
// signatures. Without a token validation is skipped.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// Handler serves the Twilio voice webhook and the media-stream websocket.
type Handler struct {
	engine     *flow.Engine
	apiKey     string
	model      string
	publicHost string
	authToken  string
	upgrader   websocket.Upgrader
}

// NewHandler creates the voice handler. The API key falls back to the
// OPENAI_API_KEY environment variable, the public host to PUBLIC_HOST, and
// the webhook auth token to TWILIO_AUTH_TOKEN.
func NewHandler(options ...Option) *Handler {
	cfg := Opts{Model: DefaultRealtimeModel}
	for _, opt := range options {
		opt(&cfg)
	}
	if cfg.Engine == nil {
		cfg.Engine = flow.NewEngine()
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.PublicHost == "" {
		cfg.PublicHost = os.Getenv("PUBLIC_HOST")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	return &Handler{
		engine:     cfg.Engine,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		publicHost: cfg.PublicHost,
		authToken:  cfg.AuthToken,
		// Twilio does not send an Origin header on media streams.
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	router := chi.NewRouter()
	router.Post("/incoming", h.incomingCallHandler)
	router.Get("/media-stream", h.mediaStreamHandler)
	router.ServeHTTP(w, r)
}

// incomingCallHandler answers Twilio's call webhook with TwiML that opens a
// media stream back to this server.
func (h *Handler) incomingCallHandler(w http.ResponseWriter, r *http.Request) {
	if !h.validTwilioSignature(r) {
		slog.Warn("Handler.incomingCallHandler: rejected request with bad signature", "remote", r.RemoteAddr)
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	host := h.publicHost
	if host == "" {
		host = r.Host
	}
	streamURL := "wss://" + host + "/voice/media-stream"
	slog.Info("Handler.incomingCallHandler: answering call", "streamURL", streamURL)

	say := &twiml.VoiceSay{
		Message: "Please wait while we connect you to the eligibility assistant.",
	}
	connect := &twiml.VoiceConnect{
		InnerElements: []twiml.Element{&twiml.VoiceStream{Url: streamURL}},
	}
	doc, err := twiml.Voice([]twiml.Element{say, connect})
	if err != nil {
		slog.Error("Handler.incomingCallHandler: failed to build TwiML", "error", err)
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/xml")
	if _, err := w.Write([]byte(doc)); err != nil {
		slog.Error("Handler.incomingCallHandler: failed to write TwiML", "error", err)
	}
}

// validTwilioSignature checks the X-Twilio-Signature header against the
// configured auth token. Without a token every request passes.
func (h *Handler) validTwilioSignature(r *http.Request) bool {
	if h.authToken == "" {
		return true
	}
	if err := r.ParseForm(); err != nil {
		return false
	}
	params := make(map[string]string, len(r.PostForm))
	for key := range r.PostForm {
		params[key] = r.PostForm.Get(key)
	}
	host := h.publicHost
	if host == "" {
		host = r.Host
	}
	url := "https://" + host + r.URL.RequestURI()
	validator := twilioclient.NewRequestValidator(h.authToken)
	return validator.Validate(url, params, r.Header.Get("X-Twilio-Signature"))
}

// mediaStreamHandler upgrades the websocket and runs the call relay.
func (h *Handler) mediaStreamHandler(w http.ResponseWriter, r *http.Request) {
	if h.apiKey == "" {
		slog.Error("Handler.mediaStreamHandler: no API key configured")
		http.Error(w, "voice not configured", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Handler.mediaStreamHandler: upgrade failed", "error", err)
		return
	}
	twilioStream := NewTwilioStream(conn)

	realtime, err := DialRealtime(r.Context(), h.apiKey, h.model)
	if err != nil {
		slog.Error("Handler.mediaStreamHandler: realtime dial failed", "error", err)
		conn.Close()
		return
	}

	// The request context ends with the upgrade; the call outlives it.
	session := NewCallSession(h.engine, twilioStream, realtime)
	session.Run(context.Background())
}
