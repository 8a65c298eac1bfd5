package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fieldcrm/callgate/internal/api"
	"github.com/fieldcrm/callgate/internal/auth"
	"github.com/fieldcrm/callgate/internal/calllog"
	"github.com/fieldcrm/callgate/internal/dialer"
	"github.com/fieldcrm/callgate/internal/gateway"
	"github.com/fieldcrm/callgate/internal/lockfile"
	"github.com/fieldcrm/callgate/internal/models"
	"github.com/fieldcrm/callgate/internal/notify"
	"github.com/fieldcrm/callgate/internal/realtime"
	"github.com/fieldcrm/callgate/internal/session"
	"github.com/fieldcrm/callgate/internal/store"
	"github.com/fieldcrm/callgate/internal/util"
	"github.com/fieldcrm/callgate/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for callgate state data
	DefaultStateDir = "/var/lib/callgate"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "callgate.db"
	// DefaultAPIAddr is the default local API listen address
	DefaultAPIAddr = "127.0.0.1:8385"
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

	// Take the state directory lock before touching the durable store.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping callgate with configured modules")
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr, "crm_url", *flags.crmURL)
	if err := run(ctx, flags); err != nil {
		slog.Error("callgate failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("callgate exited successfully")
}

// run wires the modules together and serves the local API until ctx is
// cancelled.
func run(ctx context.Context, flags Flags) error {
	kv, err := openStore(flags)
	if err != nil {
		return err
	}
	defer kv.Close()

	obligations := store.NewObligationRepo(kv)
	history := store.NewHistoryRepo(kv)

	authSvc := auth.NewService(kv)
	gw, err := gateway.NewClient(authSvc, gateway.WithBaseURL(*flags.crmURL))
	if err != nil {
		return err
	}
	authSvc.SetBackend(gw)
	gw.SetUnauthorizedHandler(authSvc.ClearSession)

	launcher := buildLauncher(flags)
	messenger := buildMessenger(flags)
	if wa, ok := messenger.(*whatsapp.Client); ok && wa != nil {
		defer wa.Disconnect()
	}

	controller := session.NewController(session.Deps{
		Obligations: obligations,
		History:     history,
		Correlator:  calllog.NewCorrelator(buildCallLogReader(flags)),
		Launcher:    launcher,
		Gateway:     gw,
		Users:       authSvc,
	})
	defer controller.Stop()

	// Re-derive the session gate from the durable store before serving:
	// an obligation persisted by a previous process must still block.
	controller.Reconcile(ctx)

	bridge := connectRealtime(ctx, flags, authSvc)
	if bridge != nil {
		defer bridge.Close()
	}

	server := api.NewServer(controller, history, messenger)
	return server.Run(ctx, *flags.apiAddr)
}

// Config holds environment configuration
type Config struct {
	CRMBaseURL  string
	SocketURL   string
	DatabaseURL string
	StateDir    string
	APIAddr     string
	CallLogPath string
	Twilio      bool
	WhatsApp    bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir    *string
	dbDSN       *string
	crmURL      *string
	socketURL   *string
	apiAddr     *string
	callLogPath *string
	qrOutput    *string
	numeric     *bool
	twilio      *bool
	whatsApp    *bool
}

// initializeLogger sets up structured logging with the level taken from
// $LOG_LEVEL (debug, info, warn, error; defaults to info).
func initializeLogger() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
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
		CRMBaseURL:  os.Getenv("CRM_BASE_URL"),
		SocketURL:   os.Getenv("CRM_SOCKET_URL"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("CALLGATE_STATE_DIR"),
		APIAddr:     os.Getenv("API_ADDR"),
		CallLogPath: os.Getenv("CALL_LOG_PATH"),
		Twilio:      util.ParseBoolEnv("TWILIO_ENABLED", false),
		WhatsApp:    util.ParseBoolEnv("WHATSAPP_ENABLED", false),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No CALLGATE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	if config.APIAddr == "" {
		config.APIAddr = DefaultAPIAddr
	}

	slog.Debug("environment variables loaded",
		"CRM_BASE_URL", config.CRMBaseURL,
		"CRM_SOCKET_URL_SET", config.SocketURL != "",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"CALLGATE_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"CALL_LOG_PATH", config.CallLogPath,
		"TWILIO_ENABLED", config.Twilio,
		"WHATSAPP_ENABLED", config.WhatsApp)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for callgate data (overrides $CALLGATE_STATE_DIR)"),
		dbDSN:       flag.String("db-dsn", config.DatabaseURL, "database DSN for the durable store (overrides $DATABASE_URL)"),
		crmURL:      flag.String("crm-url", config.CRMBaseURL, "CRM backend base URL (overrides $CRM_BASE_URL)"),
		socketURL:   flag.String("socket-url", config.SocketURL, "CRM websocket URL for schedule reminders (overrides $CRM_SOCKET_URL)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "local API server address (overrides $API_ADDR)"),
		callLogPath: flag.String("call-log-path", config.CallLogPath, "path to the device call log export (overrides $CALL_LOG_PATH)"),
		qrOutput:    flag.String("qr-output", "", "path to write WhatsApp login QR code"),
		numeric:     flag.Bool("numeric-code", false, "use numeric WhatsApp login code instead of QR code"),
		twilio:      flag.Bool("twilio", config.Twilio, "place calls through Twilio (overrides $TWILIO_ENABLED)"),
		whatsApp:    flag.Bool("whatsapp", config.WhatsApp, "enable the WhatsApp message channel (overrides $WHATSAPP_ENABLED)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"crmURL", *flags.crmURL,
		"socketURL_set", *flags.socketURL != "",
		"apiAddr", *flags.apiAddr,
		"callLogPath", *flags.callLogPath,
		"twilio", *flags.twilio,
		"whatsapp", *flags.whatsApp)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, store.DefaultDirPermissions); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}

// openStore selects a durable store backend from the DSN.
func openStore(flags Flags) (store.KV, error) {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithDSN(*flags.dbDSN))
}

// buildLauncher selects the call launcher. Without Twilio the launcher
// only logs; the host integration is expected to place the call and
// report the foreground transition afterwards.
func buildLauncher(flags Flags) dialer.Launcher {
	if *flags.twilio {
		launcher, err := dialer.NewTwilioLauncher()
		if err != nil {
			slog.Error("Twilio launcher unavailable, falling back to log-only dialer", "error", err)
		} else {
			return launcher
		}
	}
	return dialer.LauncherFunc(func(ctx context.Context, phoneNumber string) error {
		slog.Info("Dial requested", "phone_number", phoneNumber)
		return nil
	})
}

// buildMessenger constructs the WhatsApp client when the channel is
// enabled. Returns nil otherwise; the API rejects message requests in
// that case.
func buildMessenger(flags Flags) whatsapp.Sender {
	if !*flags.whatsApp {
		return nil
	}
	var waOpts []whatsapp.Option
	waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.dbDSN))
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	client, err := whatsapp.NewClient(waOpts...)
	if err != nil {
		slog.Error("WhatsApp client unavailable, message channel disabled", "error", err)
		return nil
	}
	return client
}

// buildCallLogReader returns a call log source. The host integration
// exports recent device calls as a JSON array; without an export path
// the correlator falls back to synthetic entries.
func buildCallLogReader(flags Flags) calllog.Reader {
	path := *flags.callLogPath
	if path == "" {
		return calllog.NopReader{}
	}
	return calllog.ReaderFunc(func(ctx context.Context, n int) ([]models.CallLogEntry, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var entries []models.CallLogEntry
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, err
		}
		if len(entries) > n {
			entries = entries[:n]
		}
		return entries, nil
	})
}

// connectRealtime joins the reminder socket when a session exists and
// bridges reminders to notifications. Returns nil when no socket URL is
// configured or nobody is logged in.
func connectRealtime(ctx context.Context, flags Flags, authSvc *auth.Service) *notify.Bridge {
	if *flags.socketURL == "" {
		return nil
	}
	token := authSvc.Token()
	user := authSvc.User()
	if token == "" || user == nil {
		slog.Debug("No active session, skipping realtime connection")
		return nil
	}
	conn := realtime.NewConn(*flags.socketURL)
	if err := conn.Connect(ctx, token, user.UserID); err != nil {
		slog.Warn("Realtime connection failed, reminders disabled", "error", err)
		return nil
	}
	return notify.NewBridge(conn, notify.LogNotifier{}, nil)
}
