// Package main is the CLI entry point for focusguard.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/focus_guard/internal/challenge"
	"github.com/eliteGoblin/focusd/focus_guard/internal/config"
	"github.com/eliteGoblin/focusd/focus_guard/internal/domain"
	"github.com/eliteGoblin/focusd/focus_guard/internal/infra"
	"github.com/eliteGoblin/focusd/focus_guard/internal/unlock"
	"github.com/eliteGoblin/focusd/focus_guard/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "focusguard",
	Short: "Focus guardian - blocks distracting sites",
	Long: `focusguard keeps a block list of distracting sites and enforces it.

Session blocks apply only while a focus session is running.
Permanent blocks always apply; answering a challenge lifts one for a few minutes.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var (
	configPath string
	ownerFlag  string
	verbose    bool
	jsonOutput bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.focusguard/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&ownerFlag, "owner", "", "Owner whose data to use (default from config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at the configured level instead of warn")

	rootCmd.AddCommand(blockCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// storage is what both store drivers provide.
type storage interface {
	domain.Store
	domain.DaemonRegistry
}

// splitStorage pairs a store with a separate daemon registry.
type splitStorage struct {
	domain.Store
	domain.DaemonRegistry
}

// app is the engine graph shared by every command.
type app struct {
	cfg        config.Config
	owner      string
	logger     *zap.Logger
	clock      domain.Clock
	store      storage
	unlocks    *unlock.Store
	sessions   *usecase.FocusSessionEngine
	blocks     *usecase.BlockListEngine
	challenges *usecase.ChallengeEngine
	orch       *usecase.UnlockOrchestrator
}

// newApp loads config and wires the engines. longRunning commands log at the
// configured level; one-shot commands stay quiet unless --verbose.
func newApp(longRunning bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := createLogger(cfg.Log, longRunning || verbose)

	store, err := openStore(cfg)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	owner := cfg.OwnerID
	if ownerFlag != "" {
		owner = ownerFlag
	}

	clock := infra.SystemClock{}
	blockCfg := cfg.BlockListEngineConfig()
	unlocks := unlock.NewStore(clock, store, logger)
	sessions := usecase.NewFocusSessionEngine(store, clock, cfg.SessionEngineConfig(), logger)
	blocks := usecase.NewBlockListEngine(store, unlocks, sessions, clock, blockCfg, logger)
	challenges := usecase.NewChallengeEngine(store, challenge.NewBank(), clock, cfg.ChallengeEngineConfig(), logger)

	return &app{
		cfg:        cfg,
		owner:      owner,
		logger:     logger,
		clock:      clock,
		store:      store,
		unlocks:    unlocks,
		sessions:   sessions,
		blocks:     blocks,
		challenges: challenges,
		orch:       usecase.NewUnlockOrchestrator(blocks, challenges, unlocks, clock, blockCfg.TemporaryUnlockDuration, logger),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func openStore(cfg config.Config) (storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		// In-memory data is per process; the registration goes to a file so
		// status can still see a running scheduler.
		return splitStorage{
			Store:          infra.NewMemoryStore(),
			DaemonRegistry: infra.NewFileRegistry(filepath.Join(cfg.DataDir, infra.RegistryFileName)),
		}, nil
	default:
		key, err := infra.EnsureKey(infra.ResolveKeyProvider(cfg.DataDir))
		if err != nil {
			return nil, fmt.Errorf("failed to get encryption key: %w", err)
		}
		return infra.NewEncryptedStore(cfg.DataDir, key)
	}
}

func createLogger(lc config.LogConfig, full bool) *zap.Logger {
	zc := zap.NewProductionConfig()
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if len(lc.OutputPaths) > 0 {
		zc.OutputPaths = lc.OutputPaths
	}

	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	if !full && level < zapcore.WarnLevel {
		level = zapcore.WarnLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	logger, err := zc.Build()
	if err != nil {
		// Fallback to stderr if the configured outputs cannot be opened
		logger, _ = zap.NewProduction()
	}
	return logger
}

// withApp runs fn with a freshly wired app and closes it afterwards.
func withApp(fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(context.Background(), a)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			logger.Info("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	RunE:  runVersion,
}

func init() {
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")
}

func runVersion(cmd *cobra.Command, args []string) error {
	if jsonOutput {
		return printJSON(map[string]string{
			"version":    Version,
			"commit":     Commit,
			"build_time": BuildTime,
		})
	}
	fmt.Printf("focusguard %s (commit: %s, built: %s)\n", Version, Commit, BuildTime)
	return nil
}
