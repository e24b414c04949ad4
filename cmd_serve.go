package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"book_ghostwriter/server"
	"book_ghostwriter/storage"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "http listen address (overrides config.server_addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	timeout, err := cfg.TurnTimeoutDuration()
	if err != nil {
		return err
	}
	opts := []server.Option{
		server.WithPromptAdmin(a.promptRepo),
		server.WithProjects(a.artifacts),
		server.WithTurnTimeout(timeout),
		server.WithLogger(logger.Named("http")),
	}
	if lister, ok := a.checkpoints.(*storage.CheckpointStore); ok {
		opts = append(opts, server.WithConversations(lister))
	}
	srv, err := server.New(a.engine, opts...)
	if err != nil {
		return err
	}

	listen := cfg.ServerAddr
	if serveAddr != "" {
		listen = serveAddr
	}
	if listen == "" {
		listen = ":8080"
	}
	httpSrv := &http.Server{
		Addr:              listen,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting web server", zap.String("addr", listen))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	a.publisher.Wait()
	return nil
}
