package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"match-gateway/internal/platform/httpserver"
	httptransport "match-gateway/internal/transport/http"
)

func serveCommand(log *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP gateway",
		Action: func(ctx context.Context, _ *cli.Command) error {
			return serve(ctx, log)
		},
	}
}

func serve(ctx context.Context, log *slog.Logger) error {
	a, err := newApp(ctx, log, true)
	if err != nil {
		return err
	}
	defer a.Close()

	handler := httptransport.NewHandler(httptransport.Config{
		Logger:     log,
		Metrics:    a.metrics,
		Matcher:    a.matcher,
		Normalizer: a.normalizer,
		Servers:    a.registry,
		Proxy:      a.proxy,
		MatchLimit: a.cfg.MatchLimit,
	})
	router := httptransport.NewRouter(handler, a.registry)
	srv := httpserver.New(a.cfg.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting match gateway", "addr", a.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
		log.Info("shutting down", "reason", ctx.Err())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
