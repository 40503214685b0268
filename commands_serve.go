package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"library-web/library"
	"library-web/web"
)

var (
	serveAddr      string
	serveLogFormat string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web application",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default $LIBRARY_ADDR or :8080)")
	serveCmd.Flags().StringVar(&serveLogFormat, "log-format", "json", "log format: json or text")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	handlerOpts := &slog.HandlerOptions{Level: cfg.Level()}
	var handler slog.Handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	if serveLogFormat == "text" {
		handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	logger := slog.New(handler)

	manager, err := openManager(cfg, library.WithLogger(logger))
	if err != nil {
		return err
	}
	defer manager.Close()

	srv, err := web.New(manager, web.Options{
		SessionSecret:        []byte(cfg.SessionSecret),
		SessionTTL:           cfg.SessionTTL,
		SecureCookies:        cfg.SecureCookies,
		AllowLibrarianSignup: cfg.AllowLibrarianSignup,
	}, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.Start(cfg.Addr) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errc
}
