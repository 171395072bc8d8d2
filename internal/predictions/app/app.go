// Package app wires the prediction server's dependencies and runs its HTTP
// listener.
package app

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/louisbranch/augurrank/internal/api"
	"github.com/louisbranch/augurrank/internal/auth"
	"github.com/louisbranch/augurrank/internal/predictions/domain"
	"github.com/louisbranch/augurrank/internal/predictions/storage/sqlite"
	"github.com/louisbranch/augurrank/internal/tasks"
	"github.com/louisbranch/augurrank/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// Config holds the prediction server's runtime settings.
type Config struct {
	Port      int
	DBPath    string
	Challenge string

	// TaskEndpoint and TaskKey configure side-effect dispatch. Both empty
	// disables dispatch; the upsert path still commits.
	TaskEndpoint string
	TaskKey      string
}

// Run opens storage, wires the service, and serves HTTP until ctx is
// canceled.
func Run(ctx context.Context, cfg Config) error {
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("close store: %v", err)
		}
	}()

	var dispatcher domain.Dispatcher
	var tokens *tasks.TokenVerifier
	if cfg.TaskEndpoint != "" || cfg.TaskKey != "" {
		key, err := decodeTaskKey(cfg.TaskKey)
		if err != nil {
			return fmt.Errorf("task key: %w", err)
		}
		d, err := tasks.NewDispatcher(cfg.TaskEndpoint, key, nil)
		if err != nil {
			return fmt.Errorf("task dispatcher: %w", err)
		}
		dispatcher = d
		tokens, err = tasks.NewTokenVerifier(key.Public().(ed25519.PublicKey), cfg.TaskEndpoint)
		if err != nil {
			return fmt.Errorf("task token verifier: %w", err)
		}
	}

	events := telemetry.NewEmitter(store)
	svc := domain.NewService(store, dispatcher, events, nil)
	handler := api.NewHandler(svc, auth.NewVerifier(cfg.Challenge), tokens)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler.Routes(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("prediction server listening on %s", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// decodeTaskKey accepts a base64 ed25519 private key or seed.
func decodeTaskKey(encoded string) (ed25519.PrivateKey, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	switch len(raw) {
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	default:
		return nil, fmt.Errorf("key must be %d or %d bytes, got %d",
			ed25519.PrivateKeySize, ed25519.SeedSize, len(raw))
	}
}
