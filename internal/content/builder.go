// Package content composes alert text. Text comes from an external generator
// when one is configured and responds in time; otherwise a deterministic
// template is used. Generated text is cached by content hash.
package content

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"sitewatch/internal/types"
)

// Generator produces alert text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

// Source identifies where alert text came from.
type Source string

const (
	SourceGenerated Source = "generated"
	SourceCached    Source = "cached"
	SourceFallback  Source = "fallback"
)

// Content is the built alert text.
type Content struct {
	Text   string
	Source Source
}

// BuilderConfig tunes the Builder.
type BuilderConfig struct {
	Timeout  time.Duration
	CacheTTL time.Duration
}

// DefaultBuilderConfig returns the production defaults.
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		Timeout:  15 * time.Second,
		CacheTTL: time.Hour,
	}
}

// Builder builds alert content. Generator and cache are optional.
type Builder struct {
	generator Generator
	cache     Cache
	cfg       BuilderConfig
	logger    *slog.Logger
}

// NewBuilder creates a Builder. Zero config values take the defaults.
func NewBuilder(generator Generator, cache Cache, cfg BuilderConfig, logger *slog.Logger) *Builder {
	def := DefaultBuilderConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{generator: generator, cache: cache, cfg: cfg, logger: logger}
}

var errEmptyGeneration = errors.New("generator returned empty text")

// Build returns alert text for target. It never fails. In a dry run the cache
// is only read and the generator is not called.
func (b *Builder) Build(ctx context.Context, target types.Target, snapshot *types.WeatherSnapshot, conditions types.TriggeredConditions) Content {
	if b.generator == nil {
		return Content{Text: Fallback(snapshot, conditions), Source: SourceFallback}
	}

	key := CacheKey(conditions, snapshot.CurrentText(), snapshot.ForecastText())
	if b.cache != nil {
		text, ok, err := b.cache.Get(ctx, key)
		if err != nil {
			b.logger.Warn("content cache read failed", "target_id", target.ID(), "error", err)
		} else if ok && text != "" {
			return Content{Text: text, Source: SourceCached}
		}
	}

	if types.IsDryRun(ctx) {
		return Content{Text: Fallback(snapshot, conditions), Source: SourceFallback}
	}

	text, err := b.generate(ctx, NewPrompt(snapshot, conditions))
	if err != nil {
		b.logger.Warn("alert text generation failed, using fallback",
			"target_id", target.ID(),
			"conditions", conditions.Strings(),
			"error", err,
		)
		return Content{Text: Fallback(snapshot, conditions), Source: SourceFallback}
	}

	if b.cache != nil {
		if err := b.cache.Set(ctx, key, text, b.cfg.CacheTTL); err != nil {
			b.logger.Warn("content cache write failed", "target_id", target.ID(), "error", err)
		}
	}
	return Content{Text: text, Source: SourceGenerated}
}

func (b *Builder) generate(ctx context.Context, prompt Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	text, err := b.generator.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errEmptyGeneration
	}
	return limitWords(text, MaxWords), nil
}
