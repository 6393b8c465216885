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

	"next2play/internal/clients/hltb"
	"next2play/internal/config"
	"next2play/internal/images"
	"next2play/internal/routes"
	"next2play/internal/services"
	"next2play/internal/session"
	"next2play/internal/storage/jsonfile"
	"next2play/internal/storage/uploads"
	"next2play/internal/tracing"
)

const (
	envLocal = "local"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("starting next2play", slog.String("env", cfg.Env))

	traces, err := tracing.Setup(context.Background(), log, cfg.Tracing)
	if err != nil {
		log.Error("failed to set up tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := traces.Shutdown(ctx); err != nil {
			log.Error("failed to flush traces", slog.String("error", err.Error()))
		}
	}()

	store, err := jsonfile.New(cfg.DataFile)
	if err != nil {
		log.Error("failed to open data file", slog.String("path", cfg.DataFile), slog.String("error", err.Error()))
		os.Exit(1)
	}

	uploadsStorage, err := uploads.NewUploads(cfg.UploadsPath)
	if err != nil {
		log.Error("failed to create uploads storage", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("storage init", slog.String("data_file", store.Path()), slog.String("images", uploadsStorage.Folder()))

	resolver := hltb.New(cfg.Clients.HLTB, log)
	cache := images.NewCache(uploadsStorage, images.NewProcessor(cfg.Images), images.Options{
		URLPrefix: cfg.ImagesURLPrefix,
		UserAgent: cfg.Clients.HLTB.UserAgent,
		Timeout:   cfg.Images.FetchTimeout,
	}, log)
	gameService := services.NewGameService(store, resolver, cache, log)

	if _, err := gameService.List(); err != nil {
		log.Error("failed to read collection", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sessions, err := session.NewManager(cfg.AppSecret, cfg.Auth.SessionTTL)
	if err != nil {
		log.Error("failed to create session manager", slog.String("error", err.Error()))
		os.Exit(1)
	}

	r := routes.SetupRouter(log, cfg, gameService, sessions)

	log.Info("routes init")

	server := &http.Server{
		Addr:         cfg.Address,
		Handler:      r,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	serverErrors := make(chan error, 1)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("starting server", slog.String("address", cfg.Address))
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}

	case sig := <-shutdown:
		log.Info("shutting down", slog.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown error", slog.String("error", err.Error()))
			if err := server.Close(); err != nil {
				log.Error("force shutdown error", slog.String("error", err.Error()))
			}
		}
	}
	log.Info("server stopped")
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger
	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}
	return log
}
