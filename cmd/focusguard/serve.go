package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focus_guard/internal/api"
	"github.com/eliteGoblin/focusd/focus_guard/internal/daemon"
	"github.com/eliteGoblin/focusd/focus_guard/internal/infra"
)

const shutdownTimeout = 5 * time.Second

var (
	listenAddr  string
	noScheduler bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Serves the HTTP API on the configured address. The background scheduler
runs in the same process unless --no-scheduler is given.`,
	RunE: runServe,
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background scheduler",
	Long: `Runs the scheduler that advances focus sessions, ends them when their
time is up, and prunes expired unlocks and old challenge attempts.`,
	RunE: runDaemon,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (default from config)")
	serveCmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "Do not run the scheduler in this process")
}

func (a *app) newScheduler() *daemon.Scheduler {
	cfg := daemon.Config{
		TickInterval:      a.cfg.Scheduler.TickInterval,
		HeartbeatInterval: a.cfg.Scheduler.HeartbeatInterval,
		CleanupInterval:   a.cfg.Scheduler.CleanupInterval,
		AppVersion:        Version,
	}
	// The API serves any owner, so each pass also covers owners found in the store.
	return daemon.NewScheduler(cfg, []string{a.owner},
		a.sessions, a.unlocks, a.challenges,
		a.store, infra.NewProcessManager(), a.clock, a.logger).
		WithOwnerSource(a.store)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext(a.logger)
	defer cancel()

	if err := a.newScheduler().Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext(a.logger)
	defer cancel()

	addr := a.cfg.API.Listen
	if listenAddr != "" {
		addr = listenAddr
	}

	gin.SetMode(gin.ReleaseMode)
	handlers := api.NewHandlers(api.Services{
		Blocks:                 a.blocks,
		Sessions:               a.sessions,
		Challenges:             a.challenges,
		Unlocks:                a.orch,
		Clock:                  a.clock,
		DefaultSessionDuration: a.cfg.Session.DefaultDuration,
	}, a.logger)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(handlers),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		a.logger.Info("api listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()
	schedDone := make(chan struct{})
	if noScheduler {
		close(schedDone)
	} else {
		go func() {
			defer close(schedDone)
			if err := a.newScheduler().Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		a.logger.Error("shutting down after failure", zap.Error(runErr))
		cancel()
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("api shutdown incomplete", zap.Error(err))
	}
	// The scheduler clears its registration on exit and needs the store open.
	<-schedDone
	return runErr
}
