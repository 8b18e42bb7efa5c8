package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"segment-recorder/internal/mediaserver"
	"segment-recorder/internal/platform/config"
	"segment-recorder/internal/platform/logger"
	"segment-recorder/internal/platform/metrics"
	"segment-recorder/internal/recorder"
	"segment-recorder/internal/retention"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.LoadRecorder()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	loc, _ := cfg.Location()

	if err := os.MkdirAll(cfg.StoragePath, 0o755); err != nil {
		log.Error("storage path unavailable", "path", cfg.StoragePath, "error", err)
		os.Exit(1)
	}

	met := metrics.New()
	store := recorder.NewInMemoryPolicyStore()
	fetcher := recorder.NewHTTPPolicyFetcher(cfg.APIEndpoint, cfg.UploadReferer, cfg.FetchTimeout.Duration(), log, met)
	uploader := recorder.NewHTTPUploader(cfg.UploadOverrideEndpoint, cfg.UploadTimeout.Duration(), log, met)
	finalizer := recorder.NewFinalizer(store, uploader, cfg.MaxConcurrentUploads, log, met)

	var (
		media recorder.MediaServer
		opts  []recorder.ServiceOption
	)
	if cfg.MediaServer.URL != "" {
		client := mediaserver.NewClient(mediaserver.Config{
			URL:    cfg.MediaServer.URL,
			Secret: cfg.MediaServer.Secret,
			App:    cfg.MediaServer.App,
		})
		media = client
		opts = append(opts, recorder.WithRelay(client, recorder.NewInMemoryPushStore()))
	}

	svc := recorder.NewService(store, fetcher, finalizer, media, recorder.ServiceConfig{
		StoragePath: cfg.StoragePath,
		Location:    loc,
		PushHost:    cfg.PushHost,
		PushApp:     cfg.PushApp,
	}, log, met, opts...)
	h := recorder.NewHandler(svc, log)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	sweeper := retention.New(cfg.StoragePath, cfg.MaxFileAgeDays, cfg.SweepInterval.Duration(), log, met)
	go sweeper.Run(sweepCtx)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActivePolicies(svc.ActivePolicies()) }).ServeHTTP(w, r)
	})
	h.Routes(r)

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Port,
		"api_endpoint", cfg.APIEndpoint,
		"storage_path", cfg.StoragePath,
		"time_zone", loc.String(),
		"media_server", cfg.MediaServer.URL,
		"push_host", cfg.PushHost,
		"upload_override", cfg.UploadOverrideEndpoint,
		"max_concurrent_uploads", cfg.MaxConcurrentUploads,
		"log_level", cfg.LogLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("waiting for stream lifecycle events")
	if err := svc.Wait(ctx); err != nil {
		log.Warn("lifecycle events still running at exit", "error", err)
	}

	log.Info("waiting for segment pipelines")
	if err := finalizer.Wait(ctx); err != nil {
		log.Warn("segment pipelines still running at exit", "error", err)
	}

	log.Info("server stopped")
}
