package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BTreeMap/JournalPipe/internal/api"
	"github.com/BTreeMap/JournalPipe/internal/genai"
	"github.com/BTreeMap/JournalPipe/internal/insight"
	"github.com/BTreeMap/JournalPipe/internal/scheduler"
	"github.com/BTreeMap/JournalPipe/internal/store"
	"github.com/BTreeMap/JournalPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/JournalPipe/internal/util"
	"github.com/BTreeMap/JournalPipe/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for JournalPipe state data
	DefaultStateDir = api.DefaultStateDir
	// DefaultAppDBFileName is the default SQLite journal database filename
	DefaultAppDBFileName = "journalpipe.db"
	// DefaultWhatsAppDBFileName is the default SQLite whatsmeow device store filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
)

func main() {
	initializeLogger(os.Getenv("LOG_LEVEL"))

	config := loadEnvironmentConfig()

	flags, err := parseCommandLineFlags(config, os.Args[1:])
	if err != nil {
		slog.Error("Failed to parse command line flags", "error", err)
		os.Exit(2)
	}

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	waOpts := buildWhatsAppOptions(flags)
	twilioOpts := buildTwilioOptions(config)
	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	apiOpts := buildAPIOptions(flags)

	slog.Info("Bootstrapping JournalPipe with configured modules")
	slog.Debug("Module options counts", "whatsapp", len(waOpts), "twilio", len(twilioOpts), "store", len(storeOpts), "genai", len(genaiOpts), "api", len(apiOpts))
	slog.Debug("Final configuration", "state_dir", flags.stateDir, "transport", flags.transport, "app_dsn_set", flags.appDBDSN != "", "api_addr", flags.apiAddr)
	if err := api.Run(waOpts, twilioOpts, storeOpts, genaiOpts, apiOpts); err != nil {
		slog.Error("JournalPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("JournalPipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir         string
	WhatsAppDBDSN    string
	ApplicationDBDSN string
	Transport        string
	OpenAIKey        string
	OpenAIModel      string
	GenAIDebug       bool
	InsightTimeout   time.Duration
	SessionIdleTTL   time.Duration
	SweepSchedule    string
	APIAddr          string
	TwilioSID        string
	TwilioToken      string
	TwilioFrom       string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput       string
	numeric        bool
	stateDir       string
	whatsappDBDSN  string
	appDBDSN       string
	transport      string
	openaiKey      string
	openaiModel    string
	genaiDebug     bool
	insightTimeout time.Duration
	sessionTTL     time.Duration
	sweepSchedule  string
	apiAddr        string
}

// parseLogLevel maps LOG_LEVEL to a slog level, defaulting to debug.
func parseLogLevel(value string) slog.Level {
	level := slog.LevelDebug
	if strings.TrimSpace(value) == "" {
		return level
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return slog.LevelDebug
	}
	return level
}

// initializeLogger sets up structured logging at the configured level
func initializeLogger(levelName string) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(levelName)}))
	slog.SetDefault(logger)
}

func defaultWhatsAppDSN(stateDir string) string {
	return "file:" + filepath.Join(stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
}

func defaultAppDSN(stateDir string) string {
	return filepath.Join(stateDir, DefaultAppDBFileName)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:         os.Getenv("JOURNALPIPE_STATE_DIR"),
		WhatsAppDBDSN:    os.Getenv("WHATSAPP_DB_DSN"),
		ApplicationDBDSN: util.FirstNonEmptyEnv("DATABASE_DSN", "DATABASE_URL"),
		Transport:        strings.ToLower(strings.TrimSpace(os.Getenv("JOURNALPIPE_TRANSPORT"))),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:      os.Getenv("OPENAI_MODEL"),
		GenAIDebug:       util.ParseBoolEnv("GENAI_DEBUG", false),
		InsightTimeout:   util.ParseDurationEnv("INSIGHT_TIMEOUT", insight.DefaultTimeout),
		SessionIdleTTL:   util.ParseDurationEnv("SESSION_IDLE_TTL", api.DefaultSessionIdleTTL),
		SweepSchedule:    os.Getenv("SESSION_SWEEP_SCHEDULE"),
		APIAddr:          os.Getenv("API_ADDR"),
		TwilioSID:        os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:      os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:       os.Getenv("TWILIO_FROM_NUMBER"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No JOURNALPIPE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.WhatsAppDBDSN == "" {
		config.WhatsAppDBDSN = defaultWhatsAppDSN(config.StateDir)
		slog.Debug("No WHATSAPP_DB_DSN provided, defaulting to SQLite", "dsn", config.WhatsAppDBDSN)
	}
	if config.ApplicationDBDSN == "" {
		config.ApplicationDBDSN = defaultAppDSN(config.StateDir)
		slog.Debug("No DATABASE_DSN provided, defaulting to SQLite", "sqlite_path", config.ApplicationDBDSN)
	}
	if config.Transport == "" {
		config.Transport = api.TransportWhatsApp
	}
	if config.SweepSchedule == "" {
		config.SweepSchedule = scheduler.DefaultSweepSchedule
	}

	slog.Debug("environment variables loaded",
		"JOURNALPIPE_STATE_DIR", config.StateDir,
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDBDSN != "",
		"DATABASE_DSN_SET", config.ApplicationDBDSN != "",
		"JOURNALPIPE_TRANSPORT", config.Transport,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_MODEL", config.OpenAIModel,
		"GENAI_DEBUG", config.GenAIDebug,
		"INSIGHT_TIMEOUT", config.InsightTimeout,
		"SESSION_IDLE_TTL", config.SessionIdleTTL,
		"SESSION_SWEEP_SCHEDULE", config.SweepSchedule,
		"API_ADDR", config.APIAddr,
		"TWILIO_ACCOUNT_SID_SET", config.TwilioSID != "")

	return config
}

// parseCommandLineFlags parses args with environment defaults. Database DSNs
// left at their state-dir defaults follow a -state-dir override.
func parseCommandLineFlags(config Config, args []string) (Flags, error) {
	var flags Flags
	fs := flag.NewFlagSet("journalpipe", flag.ContinueOnError)
	fs.StringVar(&flags.qrOutput, "qr-output", "", "path to write login QR code")
	fs.BoolVar(&flags.numeric, "numeric-code", false, "use numeric login code instead of QR code")
	fs.StringVar(&flags.stateDir, "state-dir", config.StateDir, "state directory for JournalPipe data (overrides $JOURNALPIPE_STATE_DIR)")
	fs.StringVar(&flags.whatsappDBDSN, "whatsapp-db-dsn", config.WhatsAppDBDSN, "whatsmeow device store DSN (overrides $WHATSAPP_DB_DSN)")
	fs.StringVar(&flags.appDBDSN, "db-dsn", config.ApplicationDBDSN, "journal database DSN (overrides $DATABASE_DSN or $DATABASE_URL)")
	fs.StringVar(&flags.transport, "transport", config.Transport, "chat transport: whatsapp or twilio (overrides $JOURNALPIPE_TRANSPORT)")
	fs.StringVar(&flags.openaiKey, "openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)")
	fs.StringVar(&flags.openaiModel, "openai-model", config.OpenAIModel, "OpenAI chat model (overrides $OPENAI_MODEL)")
	fs.BoolVar(&flags.genaiDebug, "genai-debug", config.GenAIDebug, "write model requests and responses under the state dir (overrides $GENAI_DEBUG)")
	fs.DurationVar(&flags.insightTimeout, "insight-timeout", config.InsightTimeout, "timeout for one insight generation (overrides $INSIGHT_TIMEOUT)")
	fs.DurationVar(&flags.sessionTTL, "session-idle-ttl", config.SessionIdleTTL, "idle session lifetime (overrides $SESSION_IDLE_TTL)")
	fs.StringVar(&flags.sweepSchedule, "session-sweep-schedule", config.SweepSchedule, "cron expression for the idle session sweep (overrides $SESSION_SWEEP_SCHEDULE)")
	fs.StringVar(&flags.apiAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR)")

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	if flags.stateDir != config.StateDir {
		if flags.whatsappDBDSN == config.WhatsAppDBDSN && config.WhatsAppDBDSN == defaultWhatsAppDSN(config.StateDir) {
			flags.whatsappDBDSN = defaultWhatsAppDSN(flags.stateDir)
		}
		if flags.appDBDSN == config.ApplicationDBDSN && config.ApplicationDBDSN == defaultAppDSN(config.StateDir) {
			flags.appDBDSN = defaultAppDSN(flags.stateDir)
		}
		slog.Debug("Updated database DSNs based on state directory", "old_state_dir", config.StateDir, "new_state_dir", flags.stateDir)
	}

	switch flags.transport {
	case api.TransportWhatsApp, api.TransportTwilio:
	default:
		return Flags{}, fmt.Errorf("%w: %q", api.ErrUnknownTransport, flags.transport)
	}

	slog.Debug("flags parsed",
		"qrOutput", flags.qrOutput,
		"numeric", flags.numeric,
		"stateDir", flags.stateDir,
		"transport", flags.transport,
		"openaiKeySet", flags.openaiKey != "",
		"apiAddr", flags.apiAddr)
	return flags, nil
}

// isFileDSN reports whether dsn names a SQLite file rather than a server.
func isFileDSN(dsn string) bool {
	return dsn != "" && store.DetectDSNType(dsn) != store.DriverPostgres
}

// sqlitePath strips the file: scheme and query string from a SQLite DSN.
func sqlitePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return path
}

// ensureDirectoriesExist creates the state directory and the parents of
// file-based databases.
func ensureDirectoriesExist(flags Flags) error {
	dirs := []string{flags.stateDir}
	for _, dsn := range []string{flags.whatsappDBDSN, flags.appDBDSN} {
		if isFileDSN(dsn) {
			dirs = append(dirs, filepath.Dir(sqlitePath(dsn)))
		}
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		slog.Debug("Creating directory", "dir", dir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("Failed to create directory", "error", err, "dir", dir)
			return err
		}
	}
	return nil
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(flags.qrOutput))
	}
	if flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if flags.whatsappDBDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(flags.whatsappDBDSN))
	}
	return waOpts
}

// buildTwilioOptions constructs Twilio configuration options
func buildTwilioOptions(config Config) []twiliowhatsapp.Option {
	var opts []twiliowhatsapp.Option
	if config.TwilioSID != "" {
		opts = append(opts, twiliowhatsapp.WithAccountSID(config.TwilioSID))
	}
	if config.TwilioToken != "" {
		opts = append(opts, twiliowhatsapp.WithAuthToken(config.TwilioToken))
	}
	if config.TwilioFrom != "" {
		opts = append(opts, twiliowhatsapp.WithFromWhats(config.TwilioFrom))
	}
	return opts
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if flags.appDBDSN == "" {
		slog.Debug("No database DSN provided, will use in-memory store")
		return storeOpts
	}
	if store.DetectDSNType(flags.appDBDSN) == store.DriverPostgres {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
		return append(storeOpts, store.WithPostgresDSN(flags.appDBDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", flags.appDBDSN)
	return append(storeOpts, store.WithSQLiteDSN(flags.appDBDSN))
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(flags.openaiKey))
	}
	if flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(flags.openaiModel))
	}
	if flags.genaiDebug {
		genaiOpts = append(genaiOpts, genai.WithDebugMode(true), genai.WithStateDir(flags.stateDir))
	}
	return genaiOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	apiOpts := []api.Option{
		api.WithStateDir(flags.stateDir),
		api.WithTransport(flags.transport),
		api.WithInsightTimeout(flags.insightTimeout),
		api.WithSessionIdleTTL(flags.sessionTTL),
		api.WithSweepSchedule(flags.sweepSchedule),
	}
	if flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(flags.apiAddr))
	}
	return apiOpts
}
