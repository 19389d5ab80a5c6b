package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/config"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/dispatch"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/events"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/finalize"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/httpapi"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/observability"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/observability/logging"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/session"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/store"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/transcribe"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/transcribe/mock"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/transcribe/whisperx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logging.Init(logging.FromEnv())

	// Kafka publisher for session lifecycle and transcript events
	publisher := events.New(&events.Config{
		Enabled:          cfg.Kafka.Enabled,
		Brokers:          cfg.Kafka.Brokers,
		TopicSessions:    cfg.Kafka.TopicSessions,
		TopicTranscripts: cfg.Kafka.TopicTranscripts,
		Principal:        cfg.Kafka.Principal,
	})
	defer publisher.Close()

	chunkStore, err := store.NewChunkStore(cfg.Storage.WorkingDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create chunk store")
	}
	artifactStore, err := store.NewArtifactStore(cfg.Storage.OutputDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create artifact store")
	}

	var transcriber transcribe.Transcriber
	switch cfg.STT.Provider {
	case "mock":
		transcriber = mock.New()
	default:
		transcriber = whisperx.New(cfg.STT.Binary, cfg.STT.ModelDir)
	}

	registry := session.NewRegistry()
	dispatcher := dispatch.New(transcriber, registry, cfg.STT.Workers)
	finalizer := finalize.New(registry, chunkStore, artifactStore, publisher)

	api := httpapi.NewAPI(registry, dispatcher, finalizer, chunkStore, artifactStore, publisher, cfg.Service.MaxUploadBytes)

	// Metrics and health endpoints on a side port
	obs := observability.NewServer(":" + cfg.Service.MetricsPort)
	obs.Start()

	srv := &http.Server{
		Addr:              ":" + cfg.Service.Port,
		Handler:           httpapi.NewRouter(api),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().
			Str("port", cfg.Service.Port).
			Str("sttProvider", cfg.STT.Provider).
			Int("sttWorkers", cfg.STT.Workers).
			Msg("Recording orchestrator started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http serve failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutting down HTTP server")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown error")
	}
	if err := obs.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("observability shutdown error")
	}
}
