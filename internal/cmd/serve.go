package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/visitlens/visitlens/internal/core/engine"
	"github.com/visitlens/visitlens/internal/observability"
	"github.com/visitlens/visitlens/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tracker service",
	Long: `Run the milestone tracker with its liveness HTTP server.

The service polls the configured place on a fixed cadence once tracking is
started (via auto_start or an attached dispatcher) and shuts down cleanly on
SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		logger := observability.NewServerLogger(level)
		defer func() { _ = logger.Sync() }()

		logger.Info("starting visitlens",
			zap.String("version", versionInfo.Version),
			zap.String("place", cfg.Tracking.PlaceID),
			zap.Int64("initial_goal", cfg.Tracking.InitialGoal),
			zap.Duration("poll_interval", cfg.Tracking.PollInterval))

		client := buildGameClient(cfg, logger)
		sched := engine.NewScheduler(cfg.Tracking.JitterMin, cfg.Tracking.JitterMax, logger)
		tracker := engine.NewTracker(engine.TrackerConfig{
			PlaceID:      cfg.Tracking.PlaceID,
			InitialGoal:  cfg.Tracking.InitialGoal,
			PollInterval: cfg.Tracking.PollInterval,
			Client:       client,
			Notifier:     &engine.LogNotifier{Logger: logger},
			Scheduler:    sched,
			Logger:       logger,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := server.New(cfg.Server, versionInfo.Version, logger)
		serverErr := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()

		if cfg.Tracking.AutoStart {
			if ack, err := tracker.Start(ctx, cfg.Tracking.ChannelID); err != nil {
				logger.Warn("auto-start rejected", zap.String("ack", ack), zap.Error(err))
			}
		}

		select {
		case err := <-serverErr:
			logger.Error("liveness server failed", zap.Error(err))
			tracker.Stop()
			return err
		case <-ctx.Done():
		}

		logger.Info("shutdown signal received")
		tracker.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
