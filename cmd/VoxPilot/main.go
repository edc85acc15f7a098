package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/OpenVoxLab/VoxPilot/internal/engine"
	"github.com/OpenVoxLab/VoxPilot/internal/executor"
	"github.com/OpenVoxLab/VoxPilot/internal/focus"
	"github.com/OpenVoxLab/VoxPilot/internal/genai"
	"github.com/OpenVoxLab/VoxPilot/internal/interpreter"
	"github.com/OpenVoxLab/VoxPilot/internal/keybinds"
	"github.com/OpenVoxLab/VoxPilot/internal/lockfile"
	"github.com/OpenVoxLab/VoxPilot/internal/models"
	"github.com/OpenVoxLab/VoxPilot/internal/store"
	"github.com/OpenVoxLab/VoxPilot/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for VoxPilot state data
	DefaultStateDir = "/var/lib/voxpilot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "voxpilot.db"
	// DefaultKeybindsFile is the default keybind catalog path
	DefaultKeybindsFile = "config/keybinds.yaml"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	lock, err := lockfile.Acquire(*flags.stateDir)
	if err != nil {
		slog.Error("VoxPilot could not lock state directory", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer lock.Release()

	if err := run(flags); err != nil {
		slog.Error("VoxPilot failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("VoxPilot exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir     string
	DatabaseURL  string
	OpenAIKey    string
	OpenAIModel  string
	OpenAIBase   string
	KeybindsFile string
	WindowTitle  string
	UseXDotool   bool
	MaxMacros    int
	MaxTurns     int
	MaxDuration  float64
}

// Flags holds command line flag values
type Flags struct {
	stateDir     *string
	dbDSN        *string
	openaiKey    *string
	openaiModel  *string
	openaiBase   *string
	keybindsFile *string
	windowTitle  *string
	useXDotool   *bool
	maxMacros    *int
	maxTurns     *int
	maxDuration  *float64
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
		StateDir:     util.GetEnvDefault("VOXPILOT_STATE_DIR", DefaultStateDir),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:  os.Getenv("OPENAI_MODEL"),
		OpenAIBase:   os.Getenv("OPENAI_BASE_URL"),
		KeybindsFile: util.GetEnvDefault("VOXPILOT_KEYBINDS", DefaultKeybindsFile),
		WindowTitle:  os.Getenv("VOXPILOT_WINDOW_TITLE"),
		UseXDotool:   util.ParseBoolEnv("VOXPILOT_USE_XDOTOOL", false),
		MaxMacros:    util.ParseIntEnv("VOXPILOT_MAX_MACROS", models.DefaultMaxMacros),
		MaxTurns:     util.ParseIntEnv("VOXPILOT_MAX_TURNS", 0),
		MaxDuration:  util.ParseFloatEnv("VOXPILOT_MAX_DURATION", models.DefaultMaxDuration),
	}

	// Without a database URL, keep macros in SQLite under the state dir.
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"VOXPILOT_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"VOXPILOT_KEYBINDS", config.KeybindsFile,
		"VOXPILOT_WINDOW_TITLE", config.WindowTitle,
		"VOXPILOT_USE_XDOTOOL", config.UseXDotool,
		"VOXPILOT_MAX_MACROS", config.MaxMacros)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:     flag.String("state-dir", config.StateDir, "state directory for VoxPilot data (overrides $VOXPILOT_STATE_DIR)"),
		dbDSN:        flag.String("db-dsn", config.DatabaseURL, "macro database DSN, a SQLite path or Postgres URL (overrides $DATABASE_URL)"),
		openaiKey:    flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel:  flag.String("openai-model", config.OpenAIModel, "completion model (overrides $OPENAI_MODEL)"),
		openaiBase:   flag.String("openai-base-url", config.OpenAIBase, "completion endpoint base URL (overrides $OPENAI_BASE_URL)"),
		keybindsFile: flag.String("keybinds", config.KeybindsFile, "keybind catalog YAML file (overrides $VOXPILOT_KEYBINDS)"),
		windowTitle:  flag.String("window-title", config.WindowTitle, "game window title for the focus gate; empty disables the gate (overrides $VOXPILOT_WINDOW_TITLE)"),
		useXDotool:   flag.Bool("use-xdotool", config.UseXDotool, "query the focused window via xdotool instead of the input library (overrides $VOXPILOT_USE_XDOTOOL)"),
		maxMacros:    flag.Int("max-macros", config.MaxMacros, "maximum number of stored macros (overrides $VOXPILOT_MAX_MACROS)"),
		maxTurns:     flag.Int("max-turns", config.MaxTurns, "conversation exchanges to retain (overrides $VOXPILOT_MAX_TURNS)"),
		maxDuration:  flag.Float64("max-duration", config.MaxDuration, "ceiling in seconds for hold durations and delays (overrides $VOXPILOT_MAX_DURATION)"),
	}

	flag.Parse()

	// A changed state dir drags the default SQLite path with it.
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"keybinds", *flags.keybindsFile,
		"windowTitle", *flags.windowTitle,
		"maxMacros", *flags.maxMacros)

	return flags
}

// buildFocusChecker selects the focus gate implementation
func buildFocusChecker(flags Flags) focus.Checker {
	if *flags.windowTitle == "" {
		slog.Info("Focus gate disabled, no window title configured")
		return focus.Disabled{}
	}
	if *flags.useXDotool {
		return focus.NewXDotool(*flags.windowTitle)
	}
	return focus.NewWindowTitle(*flags.windowTitle)
}

func run(flags Flags) error {
	macroStore, err := store.NewStore(store.WithDSN(*flags.dbDSN), store.WithMaxMacros(*flags.maxMacros))
	if err != nil {
		return fmt.Errorf("failed to open macro store: %w", err)
	}
	defer macroStore.Close()

	catalog := keybinds.NewCatalog()
	if err := catalog.Load(*flags.keybindsFile); err != nil {
		return fmt.Errorf("failed to load keybinds: %w", err)
	}

	var completer engine.Completer
	if *flags.openaiKey != "" {
		genaiOpts := []genai.Option{genai.WithAPIKey(*flags.openaiKey)}
		if *flags.openaiModel != "" {
			genaiOpts = append(genaiOpts, genai.WithModel(*flags.openaiModel))
		}
		if *flags.openaiBase != "" {
			genaiOpts = append(genaiOpts, genai.WithBaseURL(*flags.openaiBase))
		}
		client, err := genai.NewClient(genaiOpts...)
		if err != nil {
			return fmt.Errorf("failed to create completion client: %w", err)
		}
		completer = client
	} else {
		slog.Warn("No OpenAI API key configured; only macro and keybind triggers will work")
	}

	exec := executor.New(
		executor.WithGate(buildFocusChecker(flags)),
		executor.WithMaxDuration(*flags.maxDuration),
	)
	eng := engine.New(
		engine.WithExecutor(exec),
		engine.WithInterpreter(interpreter.New(interpreter.WithMaxDuration(*flags.maxDuration))),
		engine.WithStore(macroStore),
		engine.WithCatalog(catalog),
		engine.WithCompleter(completer),
		engine.WithMaxTurns(*flags.maxTurns),
	)
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("VoxPilot ready", "keybinds", catalog.Len())
	fmt.Println("VoxPilot ready. Type a command, or Ctrl+C to exit.")
	return commandLoop(ctx, eng)
}

// commandLoop reads utterances line by line until EOF or cancellation.
func commandLoop(ctx context.Context, eng *engine.Engine) error {
	lines := make(chan string)
	scanner := bufio.NewScanner(os.Stdin)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("VoxPilot shutting down")
			return nil
		case line, ok := <-lines:
			if !ok {
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("input read failed: %w", err)
				}
				return nil
			}
			out := eng.HandleUtterance(ctx, line)
			fmt.Printf("VoxPilot: %s\n", out.Response)
		}
	}
}
