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
	"github.com/prometheus/client_golang/prometheus"

	"github.com/BTreeMap/GeoShift/internal/api"
	"github.com/BTreeMap/GeoShift/internal/engine"
	"github.com/BTreeMap/GeoShift/internal/lockfile"
	"github.com/BTreeMap/GeoShift/internal/models"
	"github.com/BTreeMap/GeoShift/internal/notify"
	"github.com/BTreeMap/GeoShift/internal/position"
	"github.com/BTreeMap/GeoShift/internal/recovery"
	"github.com/BTreeMap/GeoShift/internal/scheduler"
	"github.com/BTreeMap/GeoShift/internal/store"
	"github.com/BTreeMap/GeoShift/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for GeoShift state data
	DefaultStateDir = "/var/lib/geoshift"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "geoshift.db"
	// ShutdownTimeout bounds the graceful HTTP shutdown on exit
	ShutdownTimeout = 10 * time.Second
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

	slog.Info("Bootstrapping GeoShift with configured modules")
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr, "user_id", *flags.userID)
	if err := run(config, flags); err != nil {
		slog.Error("GeoShift failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("GeoShift exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	StateDir    string
	APIAddr     string
	UserID      string

	TwilioSID   string
	TwilioToken string
	TwilioFrom  string
	TwilioTo    string

	EntryTimeout    time.Duration
	ExitTimeout     time.Duration
	ReturnTimeout   time.Duration
	PauseDuration   time.Duration
	CloseAdjustment int
}

// Flags holds command line flag values
type Flags struct {
	stateDir *string
	dbDSN    *string
	apiAddr  *string
	userID   *string
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
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("GEOSHIFT_STATE_DIR"),
		APIAddr:     os.Getenv("API_ADDR"),
		UserID:      os.Getenv("GEOSHIFT_USER_ID"),

		TwilioSID:   os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken: os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:  os.Getenv("TWILIO_FROM_NUMBER"),
		TwilioTo:    os.Getenv("TWILIO_TO_NUMBER"),

		EntryTimeout:    util.ParseDurationEnv("GEOSHIFT_ENTRY_TIMEOUT", engine.DefaultEntryTimeout),
		ExitTimeout:     util.ParseDurationEnv("GEOSHIFT_EXIT_TIMEOUT", engine.DefaultExitTimeout),
		ReturnTimeout:   util.ParseDurationEnv("GEOSHIFT_RETURN_TIMEOUT", engine.DefaultReturnTimeout),
		PauseDuration:   util.ParseDurationEnv("GEOSHIFT_PAUSE_DURATION", engine.DefaultPauseDuration),
		CloseAdjustment: util.ParseIntEnv("GEOSHIFT_CLOSE_ADJUSTMENT_MIN", 0),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No GEOSHIFT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	} else {
		slog.Debug("GEOSHIFT_STATE_DIR found in environment", "state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"GEOSHIFT_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"GEOSHIFT_USER_ID", config.UserID,
		"TWILIO_CONFIGURED", config.TwilioSID != "" && config.TwilioToken != "",
		"entry_timeout", config.EntryTimeout,
		"exit_timeout", config.ExitTimeout,
		"pause_duration", config.PauseDuration)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir: flag.String("state-dir", config.StateDir, "state directory for GeoShift data (overrides $GEOSHIFT_STATE_DIR)"),
		dbDSN:    flag.String("db-dsn", config.DatabaseURL, "database DSN for the session store (overrides $DATABASE_URL)"),
		apiAddr:  flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		userID:   flag.String("user-id", config.UserID, "user whose sessions this daemon manages (overrides $GEOSHIFT_USER_ID)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"userID", *flags.userID)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "dsn_updated", true, "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	// Ensure state directory exists if we're using a file-based DSN
	if !strings.Contains(*flags.dbDSN, "postgres://") && !strings.Contains(*flags.dbDSN, "host=") {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}

// openStore selects the storage backend from the DSN
func openStore(dsn string) (store.Store, error) {
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", dsn)
	return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
}

// buildNotifier selects the prompt delivery backend. Twilio when fully
// configured, the local logging service otherwise.
func buildNotifier(config Config) notify.Service {
	if config.TwilioSID != "" && config.TwilioToken != "" && config.TwilioFrom != "" && config.TwilioTo != "" {
		svc, err := notify.NewTwilioService(
			notify.WithTwilioCredentials(config.TwilioSID, config.TwilioToken),
			notify.WithTwilioNumbers(config.TwilioFrom, config.TwilioTo),
		)
		if err == nil {
			slog.Info("Using Twilio SMS prompt delivery")
			return svc
		}
		slog.Error("Failed to create Twilio service, falling back to local prompts", "error", err)
	}
	slog.Info("Using local prompt delivery")
	return notify.NewLocalService()
}

// buildEngineOptions constructs engine configuration options
func buildEngineOptions(config Config, flags Flags) []engine.Option {
	var opts []engine.Option
	if *flags.userID != "" {
		opts = append(opts, engine.WithUserID(*flags.userID))
	}
	opts = append(opts,
		engine.WithEntryTimeout(config.EntryTimeout),
		engine.WithExitTimeout(config.ExitTimeout),
		engine.WithReturnTimeout(config.ReturnTimeout),
		engine.WithPauseDuration(config.PauseDuration),
	)
	if config.CloseAdjustment > 0 {
		opts = append(opts, engine.WithCloseAdjustment(config.CloseAdjustment))
	}
	return opts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags, positions *position.ReportedSource) []api.Option {
	apiOpts := []api.Option{api.WithPositionSink(positions)}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.userID != "" {
		apiOpts = append(apiOpts, api.WithUserID(*flags.userID))
	}
	return apiOpts
}

// logEngineEvents drains the engine's outbound event channel into the log.
func logEngineEvents(events <-chan models.EngineEvent) {
	for ev := range events {
		slog.Info("Engine event", "kind", ev.Kind, "fence", ev.FenceID, "session", ev.SessionID, "prompt", ev.Prompt, "action", ev.Action, "detail", ev.Detail)
	}
}

// run wires the modules together and blocks until shutdown.
func run(config Config, flags Flags) error {
	ctx := context.Background()

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			slog.Warn("Failed to release lock file", "error", err)
		}
	}()

	st, err := openStore(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	notifier := buildNotifier(config)
	defer notifier.Stop()

	positions := position.NewReportedSource(0)
	timer := engine.NewSimpleTimer()
	defer timer.Stop()

	registry := prometheus.NewRegistry()
	metrics := engine.NewMetrics(registry)

	tasks := scheduler.NewTaskRegistry()
	defer tasks.Stop()

	eng := engine.New(st, timer, notifier, positions, tasks, metrics, buildEngineOptions(config, flags)...)
	defer eng.Stop()
	tasks.Bind(engine.HeartbeatTaskName, func() { eng.OnHeartbeatTick(context.Background()) })
	go logEngineEvents(eng.Events())

	// Resolve or re-arm the persisted pending action from before the restart.
	manager := recovery.NewManager()
	manager.Register(recovery.Func(eng.RecoverPending))
	if err := manager.RecoverAll(ctx); err != nil {
		slog.Error("Recovery finished with errors", "error", err)
	}

	// Rebuild the fence cache from the store before accepting transitions.
	userID := *flags.userID
	if userID == "" {
		userID = "default"
	}
	fences, err := st.ListFences(userID)
	if err != nil {
		slog.Error("Failed to load fence directory", "error", err)
	} else if len(fences) > 0 {
		if err := eng.ReconfigureFences(ctx, fences); err != nil {
			slog.Error("Failed to restore fence set", "error", err)
		}
	}
	eng.MarkReady(ctx)

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	maintenance := scheduler.NewMaintenance(st, eng, 0)
	if err := maintenance.Register(sched); err != nil {
		return err
	}

	srv := api.NewServer(eng, st, registry, buildAPIOptions(flags, positions)...)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("API server shutdown failed", "error", err)
	}
	return nil
}
