package cli

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"codeberg.org/snonux/setu/internal/audio"
	"codeberg.org/snonux/setu/internal/bundle"
	"codeberg.org/snonux/setu/internal/curriculum"
	"codeberg.org/snonux/setu/internal/pipeline"
	"codeberg.org/snonux/setu/internal/transliterate"
)

// LoadCurriculum reads the configured curriculum, or the built-in one when
// no path is set.
func LoadCurriculum(cfg *Config) (*curriculum.Definition, error) {
	if cfg.CurriculumPath == "" {
		return curriculum.Builtin()
	}
	return curriculum.Load(cfg.CurriculumPath)
}

// NewBridge builds the transliteration bridge for cfg.
func NewBridge(cfg *Config, log *zap.SugaredLogger) (*transliterate.Bridge, error) {
	backend, err := transliterate.NewBackend(&cfg.Transliteration)
	if err != nil {
		return nil, err
	}
	return transliterate.NewBridge(backend, cfg.From, cfg.To, cfg.Timeout, log)
}

// NewSynthesizer builds the audio provider chain and wraps it in a
// Synthesizer. The returned close function releases provider resources.
func NewSynthesizer(cfg *Config, log *zap.SugaredLogger) (*audio.Synthesizer, func(), error) {
	provider, err := audio.NewProvider(&cfg.Audio, log)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if c, ok := provider.(io.Closer); ok {
			if err := c.Close(); err != nil {
				log.Warnw("Failed to close audio provider", "provider", provider.Name(), "error", err)
			}
		}
	}

	if err := provider.IsAvailable(); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("audio provider %s is not available: %w", provider.Name(), err)
	}

	synth, err := audio.NewSynthesizer(provider, audio.Options{
		Pacing:           cfg.Pacing,
		Timeout:          cfg.Timeout,
		BreakerThreshold: cfg.BreakerThreshold,
		Validate:         cfg.ValidateAudio,
		Log:              log,
	})
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return synth, closeFn, nil
}

// NewPipeline wires a pipeline for cfg around the given collaborators.
func NewPipeline(cfg *Config, bridge pipeline.Transliterator, synth pipeline.Synthesizer, log *zap.SugaredLogger) (*pipeline.Pipeline, error) {
	return pipeline.New(pipeline.Options{
		Bridge:       bridge,
		Synth:        synth,
		Writer:       bundle.NewWriter(),
		AudioDir:     cfg.AudioDir,
		ManifestPath: cfg.ManifestPath,
		Language:     cfg.Language,
		Workers:      cfg.Workers,
		MissingAudio: pipeline.MissingAudioPolicy(cfg.MissingAudio),
		Log:          log,
	})
}
