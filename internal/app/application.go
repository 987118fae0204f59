package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/raysh454/lotsync/internal/images"
	"github.com/raysh454/lotsync/internal/logging"
	"github.com/raysh454/lotsync/internal/registry"
	"github.com/raysh454/lotsync/internal/store"
	"github.com/raysh454/lotsync/internal/webclient"
)

// Application is the global runtime state container. It owns the shared
// services and the orchestrator; pass it to the server and CLI rather than
// using package-level variables.
type Application struct {
	Config *Config
	Logger logging.Logger

	Store     *store.SQLiteStore
	Registry  *registry.Registry
	Blobs     *images.BlobStore
	WebClient webclient.WebClient
	Orch      *Orchestrator
}

// NewApplication opens the store under cfg.StorageRoot, seeds the registry
// from the configured dealerships and builds the orchestrator.
func NewApplication(ctx context.Context, cfg *Config, logger logging.Logger) (*Application, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	root, err := ExpandPath(cfg.StorageRoot)
	if err != nil {
		return nil, err
	}
	cfg.StorageRoot = root
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}

	st, err := store.Open(filepath.Join(root, "lotsync.db"), logger)
	if err != nil {
		return nil, err
	}
	a := &Application{Config: cfg, Logger: logger, Store: st}

	if a.Registry, err = registry.NewRegistry(st.DB(), logger); err != nil {
		a.Close()
		return nil, fmt.Errorf("new registry: %w", err)
	}
	for _, d := range cfg.Dealerships {
		if _, err := a.Registry.UpsertDealership(ctx, d.ID, d.Name, d.WebsiteURL); err != nil {
			a.Close()
			return nil, fmt.Errorf("seed dealership %s: %w", d.ID, err)
		}
	}

	if a.Blobs, err = images.NewBlobStore(filepath.Join(root, "images")); err != nil {
		a.Close()
		return nil, err
	}
	if a.WebClient, err = webclient.NewWebClient(cfg.WebClient, logger); err != nil {
		a.Close()
		return nil, fmt.Errorf("new webclient: %w", err)
	}

	svc := Services{Store: st, Registry: a.Registry, Client: a.WebClient}
	if cfg.Images.Enabled {
		svc.Uploader = images.NewLocalUploader(a.WebClient, a.Blobs, strings.TrimSuffix(cfg.Images.BaseURL, "/"), logger)
	}
	a.Orch = NewOrchestrator(cfg, svc, logger)

	logger.Info("application ready",
		logging.Field{Key: "storage_root", Value: root},
		logging.Field{Key: "dealerships", Value: len(cfg.Dealerships)})
	return a, nil
}

// Shutdown cancels running jobs, bounded by a timeout, then releases
// resources.
func (a *Application) Shutdown(ctx context.Context) error {
	if a == nil {
		return errors.New("application is nil")
	}
	a.Logger.Info("application shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		if a.Orch != nil {
			a.Orch.Close()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		a.Logger.Warn("jobs still running at shutdown")
	}
	return a.Close()
}

// Close releases the web client and the store.
func (a *Application) Close() error {
	var errs []error
	if a.WebClient != nil {
		if err := a.WebClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close webclient: %w", err))
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
