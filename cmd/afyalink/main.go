package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/afyalink/afyalink/internal/api"
	"github.com/afyalink/afyalink/internal/events"
	"github.com/afyalink/afyalink/internal/genai"
	"github.com/afyalink/afyalink/internal/lockfile"
	"github.com/afyalink/afyalink/internal/notify"
	"github.com/afyalink/afyalink/internal/scheduler"
	"github.com/afyalink/afyalink/internal/session"
	"github.com/afyalink/afyalink/internal/store"
	"github.com/afyalink/afyalink/internal/twiliosms"
	"github.com/afyalink/afyalink/internal/ussd"
	"github.com/afyalink/afyalink/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for AfyaLink state data
	DefaultStateDir = "/var/lib/afyalink"
	// DefaultDBFileName is the default SQLite receipts ledger filename
	DefaultDBFileName = "afyalink.db"
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

	// Keep a second gateway off the same SQLite ledger
	lock, err := acquireLedgerLock(flags)
	if err != nil {
		slog.Error("Failed to lock state directory", "error", err)
		os.Exit(1)
	}

	// Build module options
	sessionOpts := buildSessionOptions(flags)
	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	smsOpts := buildSMSOptions(flags)
	apiOpts := buildAPIOptions(flags)

	slog.Info("Bootstrapping AfyaLink with configured modules")
	slog.Debug("Module options counts", "session", len(sessionOpts), "store", len(storeOpts), "genai", len(genaiOpts), "sms", len(smsOpts), "api", len(apiOpts))
	runErr := api.Run(sessionOpts, storeOpts, genaiOpts, smsOpts, apiOpts)
	if err := lock.Release(); err != nil {
		slog.Warn("Failed to release state directory lock", "error", err)
	}
	if runErr != nil {
		slog.Error("AfyaLink failed to run", "error", runErr)
		os.Exit(1)
	}
	slog.Info("AfyaLink exited successfully")
}

// Config holds environment configuration
type Config struct {
	APIAddr          string
	StateDir         string
	DatabaseURL      string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	SessionTTL       time.Duration
	OpenAIKey        string
	GeminiKey        string
	GenAIProvider    string
	GenAIBaseURL     string
	GenAIModel       string
	GenAITemperature float64
	GenAIDebug       bool
	AITimeout        time.Duration
	TwilioSID        string
	TwilioToken      string
	TwilioFrom       string
	SenderID         string
	DryRun           bool
	SMTPHost         string
	SMTPPort         string
	SMTPFrom         string
	ReportsReceiver  string
	KafkaBrokers     string
	KafkaTopic       string
	RateLimit        int
	ReminderCron     string
}

// Flags holds command line flag values
type Flags struct {
	apiAddr      *string
	stateDir     *string
	dbDSN        *string
	redisAddr    *string
	provider     *string
	openaiKey    *string
	geminiKey    *string
	aiTimeout    *time.Duration
	dryRun       *bool
	kafkaBrokers *string
	rateLimit    *int
	reminderCron *string
	sessionTTL   *time.Duration
	config       Config
}

// initializeLogger sets up structured logging with debug level
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
		APIAddr:          os.Getenv("API_ADDR"),
		StateDir:         os.Getenv("AFYALINK_STATE_DIR"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          util.ParseIntEnv("REDIS_DB", 0),
		SessionTTL:       util.ParseDurationEnv("SESSION_TTL", 0),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		GeminiKey:        os.Getenv("GEMINI_API_KEY"),
		GenAIProvider:    os.Getenv("GENAI_PROVIDER"),
		GenAIBaseURL:     os.Getenv("GENAI_BASE_URL"),
		GenAIModel:       os.Getenv("GENAI_MODEL"),
		GenAITemperature: util.ParseFloatEnv("GENAI_TEMPERATURE", genai.DefaultTemperature),
		GenAIDebug:       util.ParseBoolEnv("GENAI_DEBUG", false),
		AITimeout:        util.ParseDurationEnv("AI_TIMEOUT", ussd.DefaultAITimeout),
		TwilioSID:        os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:      os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:       os.Getenv("TWILIO_FROM_NUMBER"),
		SenderID:         os.Getenv("SMS_SENDER_ID"),
		DryRun:           util.ParseBoolEnv("SMS_DRY_RUN", false),
		SMTPHost:         os.Getenv("SMTP_HOST"),
		SMTPPort:         os.Getenv("SMTP_PORT"),
		SMTPFrom:         os.Getenv("SMTP_FROM"),
		ReportsReceiver:  os.Getenv("REPORTS_RECEIVER"),
		KafkaBrokers:     os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:       os.Getenv("KAFKA_TOPIC"),
		RateLimit:        util.ParseIntEnv("RATE_LIMIT_PER_MIN", api.DefaultRateLimitPerMinute),
		ReminderCron:     os.Getenv("REMINDER_CRON"),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No AFYALINK_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.GenAIProvider == "" {
		config.GenAIProvider = api.ProviderOpenAI
	}
	if config.SenderID == "" {
		config.SenderID = notify.DefaultSenderID
	}
	if config.SMTPPort == "" {
		config.SMTPPort = "587"
	}
	if config.KafkaTopic == "" {
		config.KafkaTopic = events.DefaultTopic
	}
	if config.ReminderCron == "" {
		config.ReminderCron = scheduler.DefaultReminderCron
	}

	slog.Debug("environment variables loaded",
		"API_ADDR", config.APIAddr,
		"AFYALINK_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"REDIS_ADDR", config.RedisAddr,
		"GENAI_PROVIDER", config.GenAIProvider,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"GEMINI_API_KEY_SET", config.GeminiKey != "",
		"TWILIO_ACCOUNT_SID_SET", config.TwilioSID != "",
		"SMS_DRY_RUN", config.DryRun,
		"SMTP_HOST", config.SMTPHost,
		"KAFKA_BROKERS", config.KafkaBrokers,
		"RATE_LIMIT_PER_MIN", config.RateLimit,
		"REMINDER_CRON", config.ReminderCron)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := newFlags(flag.CommandLine, config)
	flag.Parse()
	flags.resolveStateDir()

	slog.Debug("flags parsed",
		"apiAddr", *flags.apiAddr,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"redisAddr", *flags.redisAddr,
		"provider", *flags.provider,
		"aiTimeout", *flags.aiTimeout,
		"dryRun", *flags.dryRun,
		"rateLimit", *flags.rateLimit)
	return flags
}

// newFlags registers the flags on fs with environment defaults.
func newFlags(fs *flag.FlagSet, config Config) Flags {
	return Flags{
		apiAddr:      fs.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		stateDir:     fs.String("state-dir", config.StateDir, "state directory for AfyaLink data (overrides $AFYALINK_STATE_DIR)"),
		dbDSN:        fs.String("db-dsn", config.DatabaseURL, "receipts ledger DSN, postgres URL or sqlite path (overrides $DATABASE_URL)"),
		redisAddr:    fs.String("redis-addr", config.RedisAddr, "redis address for shared session state (overrides $REDIS_ADDR)"),
		provider:     fs.String("genai-provider", config.GenAIProvider, "AI provider, openai or gemini (overrides $GENAI_PROVIDER)"),
		openaiKey:    fs.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		geminiKey:    fs.String("gemini-api-key", config.GeminiKey, "Gemini API key (overrides $GEMINI_API_KEY)"),
		aiTimeout:    fs.Duration("ai-timeout", config.AITimeout, "timeout for AI calls (overrides $AI_TIMEOUT)"),
		dryRun:       fs.Bool("dry-run", config.DryRun, "log SMS and calls instead of sending them (overrides $SMS_DRY_RUN)"),
		kafkaBrokers: fs.String("kafka-brokers", config.KafkaBrokers, "comma separated kafka brokers for appointment events (overrides $KAFKA_BROKERS)"),
		rateLimit:    fs.Int("rate-limit", config.RateLimit, "requests per minute per client, 0 disables (overrides $RATE_LIMIT_PER_MIN)"),
		reminderCron: fs.String("reminder-cron", config.ReminderCron, "cron schedule for appointment reminders (overrides $REMINDER_CRON)"),
		sessionTTL:   fs.Duration("session-ttl", config.SessionTTL, "lifetime of pending payments in redis (overrides $SESSION_TTL)"),
		config:       config,
	}
}

// resolveStateDir moves the default SQLite ledger into an overridden state directory.
func (f Flags) resolveStateDir() {
	defaultDSN := filepath.Join(f.config.StateDir, DefaultDBFileName)
	if *f.dbDSN == f.config.DatabaseURL && f.config.DatabaseURL == defaultDSN && *f.stateDir != f.config.StateDir {
		*f.dbDSN = filepath.Join(*f.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *f.stateDir)
	}
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if *flags.dbDSN == "" || store.DetectDSNType(*flags.dbDSN) == "postgres" {
		return nil
	}
	stateDir := filepath.Dir(*flags.dbDSN)
	slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
		return err
	}
	return nil
}

// acquireLedgerLock locks the directory of a SQLite ledger. Postgres and
// in-memory ledgers need no lock and return a nil *lockfile.Lock.
func acquireLedgerLock(flags Flags) (*lockfile.Lock, error) {
	if *flags.dbDSN == "" || store.DetectDSNType(*flags.dbDSN) == "postgres" {
		return nil, nil
	}
	return lockfile.Acquire(filepath.Dir(*flags.dbDSN))
}

// buildSessionOptions selects redis when an address is configured; none means in-memory.
func buildSessionOptions(flags Flags) []session.RedisOption {
	if *flags.redisAddr == "" {
		return nil
	}
	opts := []session.RedisOption{session.WithRedisAddr(*flags.redisAddr)}
	if flags.config.RedisPassword != "" {
		opts = append(opts, session.WithRedisPassword(flags.config.RedisPassword))
	}
	if flags.config.RedisDB != 0 {
		opts = append(opts, session.WithRedisDB(flags.config.RedisDB))
	}
	if *flags.sessionTTL > 0 {
		opts = append(opts, session.WithPendingTTL(*flags.sessionTTL))
	}
	return opts
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN == "" {
		slog.Debug("No database DSN provided, will use in-memory store")
		return storeOpts
	}
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
		storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
	} else {
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
		storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
	}
	return storeOpts
}

// buildGenAIOptions passes the key for the selected provider.
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	key := *flags.openaiKey
	if strings.EqualFold(strings.TrimSpace(*flags.provider), api.ProviderGemini) {
		key = *flags.geminiKey
	}
	if key != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(key))
	}
	if flags.config.GenAIBaseURL != "" {
		genaiOpts = append(genaiOpts, genai.WithBaseURL(flags.config.GenAIBaseURL))
	}
	if flags.config.GenAIModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(flags.config.GenAIModel))
	}
	genaiOpts = append(genaiOpts, genai.WithTemperature(flags.config.GenAITemperature))
	if flags.config.GenAIDebug {
		genaiOpts = append(genaiOpts, genai.WithDebugMode(true), genai.WithStateDir(*flags.stateDir))
	}
	return genaiOpts
}

// buildSMSOptions constructs Twilio configuration options
func buildSMSOptions(flags Flags) []twiliosms.Option {
	var smsOpts []twiliosms.Option
	if flags.config.TwilioSID != "" {
		smsOpts = append(smsOpts, twiliosms.WithAccountSID(flags.config.TwilioSID))
	}
	if flags.config.TwilioToken != "" {
		smsOpts = append(smsOpts, twiliosms.WithAuthToken(flags.config.TwilioToken))
	}
	if flags.config.TwilioFrom != "" {
		smsOpts = append(smsOpts, twiliosms.WithFromNumber(flags.config.TwilioFrom))
	}
	return smsOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	cfg := flags.config
	apiOpts := []api.Option{
		api.WithProvider(*flags.provider),
		api.WithAITimeout(*flags.aiTimeout),
		api.WithSenderID(cfg.SenderID),
		api.WithDryRun(*flags.dryRun),
		api.WithRateLimit(*flags.rateLimit),
		api.WithReminderCron(*flags.reminderCron),
	}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if cfg.SMTPHost != "" {
		apiOpts = append(apiOpts, api.WithSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom))
	}
	if cfg.ReportsReceiver != "" {
		apiOpts = append(apiOpts, api.WithReportsReceiver(cfg.ReportsReceiver))
	}
	if brokers := events.SplitBrokers(*flags.kafkaBrokers); len(brokers) > 0 {
		apiOpts = append(apiOpts, api.WithKafka(brokers, cfg.KafkaTopic))
	}
	return apiOpts
}
