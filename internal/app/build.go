package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/callbridge/internal/agent"
	"github.com/ent0n29/callbridge/internal/bridge"
	"github.com/ent0n29/callbridge/internal/callrecord"
	"github.com/ent0n29/callbridge/internal/config"
	"github.com/ent0n29/callbridge/internal/httpapi"
	"github.com/ent0n29/callbridge/internal/mediastream"
	"github.com/ent0n29/callbridge/internal/observability"
	"github.com/ent0n29/callbridge/internal/policy"
	"github.com/ent0n29/callbridge/internal/session"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Bridge   *bridge.Bridge
	Media    *mediastream.Server
	Registry *session.Registry
	Records  *callrecord.Fanout
	Metrics  *observability.Metrics

	// Shutdown ends live calls, waits for record saves and releases the stores.
	Shutdown func(ctx context.Context) error
}

// Persona derives the answering persona from configuration.
func Persona(cfg config.Config) agent.Persona {
	return agent.Persona{
		OwnerName:           cfg.AgentOwnerName,
		Role:                cfg.AgentRole,
		AboutMe:             cfg.AgentAboutMe,
		ShareEmail:          cfg.AgentEmail,
		SpecialInstructions: cfg.AgentSpecialInstructions,
	}.Normalized()
}

func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	persona := Persona(cfg)
	if err := persona.Validate(); err != nil {
		return nil, fmt.Errorf("persona: %w", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	redactor := policy.NewRedactor(cfg.LogRedactPII)

	records, err := callrecord.NewStore(ctx, callrecord.Options{
		DatabaseURL: cfg.DatabaseURL,
		S3Bucket:    cfg.S3Bucket,
		S3Prefix:    cfg.S3Prefix,
		AWSRegion:   cfg.AWSRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("call record store init failed: %w", err)
	}
	records.SetResultHook(func(backend string, err error) {
		metrics.RecordSave(backend, err)
		if err != nil {
			logger.Warn("call record backend failed", zap.String("backend", backend), zap.Error(err))
		}
	})
	logger.Info("call record backends", zap.Strings("backends", records.Backends()))

	registry := session.NewRegistry()
	b := bridge.New(bridge.Options{
		RealtimeURL:       cfg.RealtimeDialURL(),
		APIKey:            cfg.OpenAIAPIKey,
		DialTimeout:       cfg.OpenAIDialTimeout,
		Voice:             cfg.OpenAIVoice,
		AudioFormat:       cfg.RealtimeAudioFormat,
		RecordSaveTimeout: cfg.RecordSaveTimeout,
	}, registry, records, metrics, logger, redactor)

	media := mediastream.NewServer(b, registry, mediastream.Options{
		Persona:        persona,
		AudioFormat:    cfg.RealtimeAudioFormat,
		StrictFormat:   cfg.MediaFormatStrict,
		AllowAnyOrigin: cfg.AllowAnyOrigin,
	}, logger, metrics, redactor)
	b.SetPusher(media)

	api := httpapi.New(cfg, b, records, media, metrics, logger)

	shutdown := func(ctx context.Context) error {
		start := time.Now()
		var errs []error
		if err := b.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := records.Close(); err != nil {
			errs = append(errs, err)
		}
		logger.Info("bridge stopped", zap.Duration("took", time.Since(start)))
		return errors.Join(errs...)
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Bridge:   b,
		Media:    media,
		Registry: registry,
		Records:  records,
		Metrics:  metrics,
		Shutdown: shutdown,
	}, nil
}
