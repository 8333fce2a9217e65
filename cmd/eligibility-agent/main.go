// Command eligibility-agent runs the insurance eligibility dialogue service:
// an HTTP API for text conversations and one-shot checks, plus an optional
// Twilio voice bridge.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/carelinq/eligibility-agent/internal/api"
	"github.com/carelinq/eligibility-agent/internal/flow"
	"github.com/carelinq/eligibility-agent/internal/genai"
	"github.com/carelinq/eligibility-agent/internal/lockfile"
	"github.com/carelinq/eligibility-agent/internal/models"
	"github.com/carelinq/eligibility-agent/internal/scheduler"
	"github.com/carelinq/eligibility-agent/internal/store"
	"github.com/carelinq/eligibility-agent/internal/util"
	"github.com/carelinq/eligibility-agent/internal/voice"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lock, err := acquireStateLock(flags)
	if err != nil {
		slog.Error("Failed to lock state directory", "error", err)
		os.Exit(1)
	}
	if lock != nil {
		defer lock.Release()
	}

	st, err := openStore(flags)
	if err != nil {
		slog.Error("Failed to open conversation store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	janitor := store.NewJanitor(st, config.ConversationTTL)
	if err := sched.AddJob(config.CleanupSchedule, func() { janitor.Sweep() }); err != nil {
		slog.Error("Failed to schedule conversation cleanup", "error", err, "schedule", config.CleanupSchedule)
		os.Exit(1)
	}

	engine := buildEngine(flags, st)

	apiOpts := []api.Option{
		api.WithAddr(*flags.apiAddr),
		api.WithEngine(engine),
	}
	if *flags.openaiKey != "" {
		voiceHandler := voice.NewHandler(
			voice.WithEngine(engine),
			voice.WithAPIKey(*flags.openaiKey),
			voice.WithPublicHost(*flags.publicHost),
		)
		apiOpts = append(apiOpts, api.WithVoiceHandler(voiceHandler))
	} else {
		slog.Warn("No OpenAI API key configured; voice endpoints disabled")
	}

	slog.Info("Bootstrapping eligibility agent",
		"api_addr", *flags.apiAddr,
		"store", store.DetectDSNType(*flags.dbDSN),
		"max_attempts", config.MaxAttempts,
		"conversation_ttl", config.ConversationTTL)

	server := api.NewServer(apiOpts...)
	if err := server.Run(ctx); err != nil {
		slog.Error("Eligibility agent failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Eligibility agent exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL     string
	OpenAIKey       string
	APIAddr         string
	PublicHost      string
	MaxAttempts     int
	ConversationTTL time.Duration
	CleanupSchedule string
}

// Flags holds command line flag values
type Flags struct {
	dbDSN       *string
	openaiKey   *string
	apiAddr     *string
	publicHost  *string
	maxAttempts *int
}

// initializeLogger sets up structured logging
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		APIAddr:         os.Getenv("API_ADDR"),
		PublicHost:      os.Getenv("PUBLIC_HOST"),
		MaxAttempts:     util.ParseIntEnv("MAX_GATHER_ATTEMPTS", models.DefaultMaxAttempts),
		ConversationTTL: util.ParseDurationEnv("CONVERSATION_TTL", store.DefaultConversationTTL),
		CleanupSchedule: os.Getenv("CLEANUP_SCHEDULE"),
	}
	if config.APIAddr == "" {
		config.APIAddr = api.DefaultAddr
	}
	if config.CleanupSchedule == "" {
		config.CleanupSchedule = store.DefaultCleanupSchedule
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"PUBLIC_HOST", config.PublicHost,
		"MAX_GATHER_ATTEMPTS", config.MaxAttempts,
		"CONVERSATION_TTL", config.ConversationTTL,
		"CLEANUP_SCHEDULE", config.CleanupSchedule)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		dbDSN:       flag.String("db-dsn", config.DatabaseURL, "database DSN for the conversation store (overrides $DATABASE_URL)"),
		openaiKey:   flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		publicHost:  flag.String("public-host", config.PublicHost, "externally reachable host for Twilio callbacks (overrides $PUBLIC_HOST)"),
		maxAttempts: flag.Int("max-attempts", config.MaxAttempts, "gather-info attempt cap per conversation (overrides $MAX_GATHER_ATTEMPTS)"),
	}
	flag.Parse()

	slog.Debug("flags parsed",
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"publicHost", *flags.publicHost,
		"maxAttempts", *flags.maxAttempts)

	return flags
}

// acquireStateLock guards a SQLite state directory against a second agent
// instance. Postgres and in-memory deployments need no lock.
func acquireStateLock(flags Flags) (*lockfile.Lock, error) {
	dsn := *flags.dbDSN
	if dsn == "" || store.DetectDSNType(dsn) != "sqlite" {
		return nil, nil
	}
	path := strings.TrimPrefix(dsn, "file:")
	if idx := strings.IndexByte(path, '?'); idx != -1 {
		path = path[:idx]
	}
	return lockfile.AcquireLock(filepath.Dir(path))
}

// openStore selects a store backend from the DSN. No DSN means in-memory.
func openStore(flags Flags) (store.ConversationStore, error) {
	dsn := *flags.dbDSN
	if dsn == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	return store.NewSQLiteStore(store.WithDSN(dsn))
}

// buildEngine wires the dialogue engine. With an API key the LLM extractor
// and composer are used; without one the deterministic fallbacks run alone.
func buildEngine(flags Flags, st store.ConversationStore) *flow.Engine {
	engineOpts := []flow.Option{
		flow.WithStore(st),
		flow.WithMaxAttempts(*flags.maxAttempts),
	}
	if *flags.openaiKey != "" {
		client, err := genai.NewClient(genai.WithAPIKey(*flags.openaiKey))
		if err != nil {
			slog.Error("Failed to create GenAI client, falling back to rule-based dialogue", "error", err)
		} else {
			engineOpts = append(engineOpts,
				flow.WithExtractor(flow.NewLLMExtractor(client)),
				flow.WithComposer(flow.NewLLMComposer(client)),
			)
		}
	}
	return flow.NewEngine(engineOpts...)
}
