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

	"github.com/joho/godotenv"
	"github.com/openai/openai-go"

	"github.com/presentagent/present-agent/internal/api"
	"github.com/presentagent/present-agent/internal/flow"
	"github.com/presentagent/present-agent/internal/genai"
	"github.com/presentagent/present-agent/internal/lockfile"
	"github.com/presentagent/present-agent/internal/messaging"
	"github.com/presentagent/present-agent/internal/models"
	"github.com/presentagent/present-agent/internal/store"
	"github.com/presentagent/present-agent/internal/twiliowhatsapp"
	"github.com/presentagent/present-agent/internal/util"
	"github.com/presentagent/present-agent/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for Present Agent state data
	DefaultStateDir = "/var/lib/present-agent"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "present-agent.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow session database filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// Hold the state directory lock for the lifetime of the process so two
	// bot instances never share one WhatsApp session database.
	lock, err := lockfile.Acquire(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	slog.Info("Bootstrapping Present Agent with configured modules")
	if err := run(flags); err != nil {
		slog.Error("Present Agent failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("Present Agent exited successfully")
}

// run wires the store, model client, conversation core, transports, and API
// server together and blocks until a shutdown signal arrives.
func run(flags Flags) error {
	st, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	gaClient, err := genai.NewClient(buildGenAIOptions(flags)...)
	if err != nil {
		return err
	}

	cfg := flow.DefaultConfig()
	engine := flow.NewEngine(gaClient, cfg)
	handler := flow.NewConversationHandler(st, engine, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Pick the WhatsApp transport. Twilio is send-only with inbound arriving
	// through the webhook; whatsmeow maintains a live connection.
	var msgService messaging.Service
	var twilioSvc *messaging.TwilioService
	switch {
	case *flags.useTwilio:
		twilioClient, err := twiliowhatsapp.NewClient()
		if err != nil {
			return err
		}
		twilioSvc = messaging.NewTwilioService(twilioClient)
		msgService = twilioSvc
		slog.Info("Using Twilio WhatsApp transport")
	case *flags.enableWhatsApp:
		waClient, err := whatsapp.NewClient(buildWhatsAppOptions(flags)...)
		if err != nil {
			return err
		}
		msgService = messaging.NewWhatsAppService(waClient)
		slog.Info("Using whatsmeow WhatsApp transport")
	default:
		slog.Info("No WhatsApp transport enabled, serving Instagram webhook only")
	}

	if msgService != nil {
		if err := msgService.Start(ctx); err != nil {
			return err
		}
		defer msgService.Stop()
		loop := messaging.NewResponseLoop(msgService, handler, models.PlatformWhatsApp)
		go loop.Run(ctx)
	}

	var instagram api.InstagramSender
	if *flags.instagramToken != "" {
		instagram = api.NewInstagramClient(api.WithAccessToken(*flags.instagramToken))
	} else {
		slog.Warn("No Instagram access token configured, webhook replies will be dropped")
		instagram = api.NewInstagramClient()
	}

	server := api.NewServer(handler, st, instagram, twilioSvc, buildAPIOptions(flags)...)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig.String())
		cancel()
		return server.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

// Config holds environment configuration
type Config struct {
	DatabaseURL    string
	WhatsAppDSN    string
	StateDir       string
	OpenAIKey      string
	OpenAIModel    string
	APIAddr        string
	VerifyToken    string
	InstagramToken string
	UseTwilio      bool
	EnableWhatsApp bool
}

// Flags holds command line flag values
type Flags struct {
	qrOutput       *string
	numeric        *bool
	stateDir       *string
	dbDSN          *string
	waDSN          *string
	openaiKey      *string
	openaiModel    *string
	apiAddr        *string
	verifyToken    *string
	instagramToken *string
	useTwilio      *bool
	enableWhatsApp *bool
}

// initializeLogger sets up structured logging; debug level is opt-in.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("PRESENT_AGENT_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
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
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		WhatsAppDSN:    os.Getenv("WHATSAPP_DB_DSN"),
		StateDir:       os.Getenv("PRESENT_AGENT_STATE_DIR"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:    os.Getenv("OPENAI_MODEL"),
		APIAddr:        os.Getenv("API_ADDR"),
		VerifyToken:    os.Getenv("INSTAGRAM_VERIFY_TOKEN"),
		InstagramToken: os.Getenv("INSTAGRAM_ACCESS_TOKEN"),
		UseTwilio:      util.ParseBoolEnv("USE_TWILIO", false),
		EnableWhatsApp: util.ParseBoolEnv("ENABLE_WHATSAPP", false),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No PRESENT_AGENT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	// The whatsmeow session database defaults to its own SQLite file so bot
	// data and session keys stay separable.
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = "file:" + filepath.Join(config.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
		slog.Debug("No WhatsApp DSN provided, defaulting to SQLite", "sqlite_path", config.WhatsAppDSN)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"PRESENT_AGENT_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_MODEL", config.OpenAIModel,
		"API_ADDR", config.APIAddr,
		"INSTAGRAM_VERIFY_TOKEN_SET", config.VerifyToken != "",
		"INSTAGRAM_ACCESS_TOKEN_SET", config.InstagramToken != "",
		"USE_TWILIO", config.UseTwilio,
		"ENABLE_WHATSAPP", config.EnableWhatsApp)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:       flag.String("qr-output", "", "path to write login QR code"),
		numeric:        flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:       flag.String("state-dir", config.StateDir, "state directory for Present Agent data (overrides $PRESENT_AGENT_STATE_DIR)"),
		dbDSN:          flag.String("db-dsn", config.DatabaseURL, "database DSN for the bot store (overrides $DATABASE_URL)"),
		waDSN:          flag.String("whatsapp-db-dsn", config.WhatsAppDSN, "database DSN for the whatsmeow session store (overrides $WHATSAPP_DB_DSN)"),
		openaiKey:      flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel:    flag.String("openai-model", config.OpenAIModel, "OpenAI model name (overrides $OPENAI_MODEL)"),
		apiAddr:        flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		verifyToken:    flag.String("verify-token", config.VerifyToken, "Instagram webhook verify token (overrides $INSTAGRAM_VERIFY_TOKEN)"),
		instagramToken: flag.String("instagram-access-token", config.InstagramToken, "Instagram Graph API access token (overrides $INSTAGRAM_ACCESS_TOKEN)"),
		useTwilio:      flag.Bool("use-twilio", config.UseTwilio, "use the Twilio WhatsApp transport (overrides $USE_TWILIO)"),
		enableWhatsApp: flag.Bool("enable-whatsapp", config.EnableWhatsApp, "use the whatsmeow WhatsApp transport (overrides $ENABLE_WHATSAPP)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"waDSN_set", *flags.waDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"openaiModel", *flags.openaiModel,
		"apiAddr", *flags.apiAddr,
		"useTwilio", *flags.useTwilio,
		"enableWhatsApp", *flags.enableWhatsApp)

	// Follow a moved state directory when the DSNs were left at their defaults
	if *flags.stateDir != config.StateDir {
		if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) {
			*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
			slog.Debug("Updated db DSN based on state directory", "new_state_dir", *flags.stateDir)
		}
		if *flags.waDSN == "file:"+filepath.Join(config.StateDir, DefaultWhatsAppDBFileName)+"?_foreign_keys=on" {
			*flags.waDSN = "file:" + filepath.Join(*flags.stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
			slog.Debug("Updated WhatsApp DSN based on state directory", "new_state_dir", *flags.stateDir)
		}
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	for _, dsn := range []string{*flags.dbDSN, *flags.waDSN} {
		if store.DetectDSNType(dsn) == "postgres" {
			continue
		}
		dir := filepath.Dir(strings.TrimPrefix(dsn, "file:"))
		slog.Debug("Creating state directory for file-based database", "state_dir", dir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", dir)
			return err
		}
	}
	if err := os.MkdirAll(*flags.stateDir, 0755); err != nil {
		return err
	}
	return nil
}

// buildStore constructs the bot store matching the configured DSN type.
func buildStore(flags Flags) (store.Store, error) {
	if *flags.dbDSN == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.waDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.waDSN))
	}
	return waOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(openai.ChatModel(*flags.openaiModel)))
	}
	return genaiOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.verifyToken != "" {
		apiOpts = append(apiOpts, api.WithVerifyToken(*flags.verifyToken))
	}
	return apiOpts
}
