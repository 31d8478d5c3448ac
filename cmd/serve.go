package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quadrant-labs/assess/internal/api"
	"github.com/quadrant-labs/assess/internal/assessment"
	"github.com/quadrant-labs/assess/internal/identity"
	"github.com/quadrant-labs/assess/internal/notify"
	"github.com/quadrant-labs/assess/internal/unlock"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the assessment and unlock HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		gateway, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer gateway.Close()

		notifier := notify.Logger{}
		unlocks := unlock.New(gateway, unlock.SandboxProvider{}, notifier, cfg.Payment.Currency)
		limiter := api.NewClientLimiter(cfg.Server.RatePerMin, cfg.Server.RateBurst)

		_, handler := api.New(api.Options{
			Assessments:    assessment.New(gateway, notifier),
			Unlocks:        unlocks,
			Identities:     identity.New(gateway),
			Gateway:        gateway,
			Limiter:        limiter,
			WebhookSecret:  cfg.Payment.WebhookSecret,
			AllowFallback:  cfg.Payment.AllowFallback,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		// Fail payment intents the gateway never settled.
		g.Go(func() error {
			ttl := time.Duration(cfg.Payment.IntentTTLMins) * time.Minute
			ticker := time.NewTicker(time.Duration(cfg.Payment.ReapEverySecs) * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if _, err := unlocks.ReapStaleIntents(gctx, ttl); err != nil {
						zap.L().Warn("stale intent reap failed", zap.Error(err))
					}
				}
			}
		})

		g.Go(func() error {
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					limiter.Prune()
				}
			}
		})

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
