package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"project_broadcast/internal/config"
	"project_broadcast/internal/infrastructure"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	rootCmd := cobra.Command{
		Use:   "broadcast",
		Short: "WhatsApp campaign dispatch and auto-reply",
	}
	rootCmd.AddCommand(
		controlCommand(),
		executorCommand(),
		resetQuotasCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func controlCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "control",
		Short: "run the control plane (API, queue, scheduler, inbound routing)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(runControl)
		},
	}
}

func executorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "executor",
		Short: "run the execution plane (WhatsApp sessions and dispatch loops)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(runExecutor)
		},
	}
}

func resetQuotasCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-quotas",
		Short: "reset daily counters once and resume limit-paused campaigns",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(runResetQuotas)
		},
	}
}

// withRuntime loads config, logging and error reporting, then runs fn until
// SIGINT or SIGTERM.
func withRuntime(fn func(ctx context.Context, conf config.Config, logger *zap.Logger) error) error {
	conf, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := config.NewLogger(conf.Log)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	flush, err := infrastructure.InitSentry(conf.SentryDSN, conf.Env)
	if err != nil {
		logger.Warn("sentry disabled", zap.Error(err))
	}
	defer flush()

	if conf.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := fn(ctx, conf, logger); err != nil {
		logger.Error("exited with error", zap.Error(err))
		return err
	}
	return nil
}

func newEngine(conf config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	if conf.SentryDSN != "" {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	return r
}

// serve runs handler on addr until ctx is cancelled, then drains in-flight
// requests.
func serve(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
