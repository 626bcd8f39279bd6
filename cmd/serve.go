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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"realchat/internal/app/chat"
	"realchat/internal/app/db"
	"realchat/internal/app/presence"
	"realchat/internal/app/relay"
	"realchat/internal/app/storage"
	"realchat/internal/handler"
	"realchat/internal/pkg/logx"
)

// serve wires the gateway and blocks until SIGINT or SIGTERM.
func serve(parent context.Context) error {
	cfg, store, err := bootstrap(parent)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.Migrate(ctx); err != nil {
		return err
	}

	users := db.NewUserRepository(store)
	messages := db.NewMessageRepository(store)

	// The registry starts empty, so no persisted online flag can be true.
	if err := users.SetAllOffline(ctx); err != nil {
		return err
	}
	logx.Info("Initialized all users to offline state")

	hub := chat.NewHub()
	publisher := chat.FanoutPublisher{hub}

	if cfg.NATSURL != "" {
		natsRelay, err := relay.Connect(cfg.NATSURL, cfg.NATSSubjectPrefix)
		if err != nil {
			return err
		}
		defer func() {
			if err := natsRelay.Close(); err != nil {
				logx.Warn("NATS drain failed", "error", err.Error())
			}
		}()
		publisher = append(publisher, natsRelay)
		logx.Info("NATS relay enabled", "subject_prefix", cfg.NATSSubjectPrefix)
	}

	var sink presence.SnapshotSink
	if cfg.SnapshotArchiveEnabled() {
		archive, err := storage.NewSnapshotArchive(ctx, storage.ServiceConfig{
			S3BucketName:      cfg.S3BucketName,
			S3Endpoint:        cfg.S3Endpoint,
			S3AccessKeyID:     cfg.S3AccessKeyID,
			S3SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			return err
		}
		sink = archive
		logx.Info("Session snapshot archive enabled", "bucket", cfg.S3BucketName)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	registry := presence.NewRegistry()
	pdeps := presence.Deps{
		Registry:  registry,
		Users:     users,
		Store:     messages,
		Publisher: publisher,
		Metrics:   presence.NewMetrics(reg, registry),
	}

	router, stopRouter := handler.Router(&handler.AppDeps{
		Config:    cfg,
		Hub:       hub,
		Registry:  registry,
		Lifecycle: presence.NewLifecycle(pdeps),
		Admission: presence.NewAdmission(pdeps),
		Admin:     presence.NewAdmin(pdeps, sink),
		Messenger: chat.NewMessenger(users, messages, publisher),
		Users:     users,
		History:   messages,
		Gatherer:  reg,
	})
	defer stopRouter()

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logx.Info(fmt.Sprintf("RealChat gateway starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed to start: %w", err)
	case <-ctx.Done():
	}
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	// Closing every client ends its read loop and runs the disconnect path.
	hub.Shutdown()

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelDrain()
	if err := hub.Wait(drainCtx); err != nil {
		logx.Error(err, "Timed out waiting for clients to finish disconnecting")
	}

	logx.Info("Server gracefully stopped.")
	return nil
}
