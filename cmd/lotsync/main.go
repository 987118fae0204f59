// Command lotsync reconciles dealer inventory into the canonical store.
// Usage:
//
//	lotsync -config lotsync.yaml -dealership sunrise-motors
//	lotsync -config lotsync.yaml -all
//	lotsync -config lotsync.yaml -serve
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raysh454/lotsync/internal/app"
	"github.com/raysh454/lotsync/internal/cli"
	"github.com/raysh454/lotsync/internal/logging"
	"github.com/raysh454/lotsync/internal/server"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "lotsync:", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	args, err := cli.ParseArgs(argv)
	if err != nil {
		return err
	}

	cfg := app.DefaultConfig()
	if args.ConfigPath != "" {
		if cfg, err = app.LoadConfig(args.ConfigPath); err != nil {
			return err
		}
	}
	if args.LogLevel != "" {
		cfg.LogLevel = args.LogLevel
	}

	logger := logging.NewStdoutLogger("lotsync")
	logger.SetLevel(logging.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.NewApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := a.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown", logging.Field{Key: "error", Value: err.Error()})
		}
	}()

	switch {
	case args.Serve:
		return serve(ctx, a, logger)
	case args.All:
		sums, err := a.Orch.RunAll(ctx, nil)
		printJSON(sums)
		return err
	default:
		if !args.Enrich {
			sum, err := a.Orch.Reconcile(ctx, args.Dealership)
			printJSON(sum)
			return err
		}
		sum, enr, err := a.Orch.RunDealership(ctx, args.Dealership, nil)
		printJSON(map[string]any{"summary": sum, "enrichment": enr})
		return err
	}
}

func serve(ctx context.Context, a *app.Application, logger logging.Logger) error {
	s := server.New(a, server.Config{ListenAddr: a.Config.ListenAddr, Logger: logger})
	srv := s.HTTPServer()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", logging.Field{Key: "addr", Value: srv.Addr})
		errCh <- srv.ListenAndServe()
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
	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
