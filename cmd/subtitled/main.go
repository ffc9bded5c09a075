package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"live-subtitle-pipeline/internal/asr"
	asrgoogle "live-subtitle-pipeline/internal/asr/google"
	asrmock "live-subtitle-pipeline/internal/asr/mock"
	"live-subtitle-pipeline/internal/capture"
	"live-subtitle-pipeline/internal/config"
	"live-subtitle-pipeline/internal/history"
	"live-subtitle-pipeline/internal/observability"
	"live-subtitle-pipeline/internal/observability/logging"
	"live-subtitle-pipeline/internal/pipeline"
	"live-subtitle-pipeline/internal/render"
	"live-subtitle-pipeline/internal/translate"
)

func main() {
	logging.Init(logging.DefaultConfig())

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	obs := observability.NewServer(cfg.ObservabilityAddr)
	obs.Start()

	// 16-bit mono at 16kHz is 32 bytes per millisecond.
	frameBytes := int(cfg.FrameDuration.Milliseconds()) * 32
	source := capture.NewSyntheticSource(cfg.FrameDuration, frameBytes)

	var factory asr.SessionFactory
	var transientErr func(error) bool
	switch cfg.ASRProvider {
	case "google":
		gcfg := asrgoogle.DefaultConfig()
		factory = asrgoogle.Factory(gcfg)
		transientErr = asrgoogle.IsTransient
	default:
		factory = func(ctx context.Context) (asr.Session, error) {
			return asrmock.New(), nil
		}
	}

	var translator translate.Translator
	switch cfg.TranslateProvider {
	case "google":
		translator = translate.NewGoogleTranslator(10 * time.Second)
	default:
		translator = translate.NewStub(nil)
	}

	fileSink, err := history.NewFileSink(cfg.HistoryDir, cfg.HistoryFlushInterval)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history sink")
	}
	sink := history.Sink(fileSink)
	if cfg.Kafka.Enabled {
		sink = history.MultiSink{fileSink, history.NewKafkaSink(&history.KafkaConfig{
			Enabled:   true,
			Brokers:   cfg.Kafka.Brokers,
			Topic:     cfg.Kafka.Topic,
			Principal: cfg.Kafka.Principal,
		})}
	}

	p, err := pipeline.New(pipeline.Options{
		Config:         cfg,
		Source:         source,
		SessionFactory: factory,
		TransientErr:   transientErr,
		Translator:     translator,
		Overlay:        render.NewLogOverlay(),
		Sink:           sink,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build pipeline")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info().Msg("Shutdown signal received")
		cancel()
	}()

	log.Info().
		Str("targetLang", cfg.TargetLang).
		Str("asrProvider", cfg.ASRProvider).
		Str("translateProvider", cfg.TranslateProvider).
		Str("historyFile", fileSink.Path()).
		Msg("Live subtitle pipeline started")

	if err := p.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Pipeline stopped with error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = obs.Shutdown(shutdownCtx)
	_ = source.Close()

	log.Info().Msg("Live subtitle pipeline stopped")
}
