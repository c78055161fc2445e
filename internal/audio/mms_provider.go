package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// MMSProvider runs a Massively Multilingual Speech VITS model offline
// through sherpa-onnx. One model speaks one language, so lang is ignored.
type MMSProvider struct {
	model   string
	tokens  string
	threads int

	mu  sync.Mutex
	tts *sherpa.OfflineTts
}

// NewMMSProvider creates a provider for the given model.onnx and tokens.txt.
// The model is loaded on first use.
func NewMMSProvider(model, tokens string, threads int) *MMSProvider {
	if threads <= 0 {
		threads = 1
	}
	return &MMSProvider{model: model, tokens: tokens, threads: threads}
}

// Synthesize generates speech and returns it as a mono WAV file.
func (p *MMSProvider) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.load(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	generated := p.tts.Generate(text, 0, 1.0)
	if generated == nil || len(generated.Samples) == 0 {
		return nil, errors.New("mms model produced no samples")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return EncodeWAV(Float32ToPCM16(generated.Samples), generated.SampleRate, 1), nil
}

func (p *MMSProvider) load() error {
	if p.tts != nil {
		return nil
	}
	if err := p.IsAvailable(); err != nil {
		return err
	}

	config := sherpa.OfflineTtsConfig{}
	config.Model.Vits.Model = p.model
	config.Model.Vits.Tokens = p.tokens
	config.Model.NumThreads = p.threads
	config.Model.Provider = "cpu"
	config.MaxNumSentences = 1

	tts := sherpa.NewOfflineTts(&config)
	if tts == nil {
		return fmt.Errorf("failed to load mms model %s", p.model)
	}
	p.tts = tts
	return nil
}

// Close releases the model.
func (p *MMSProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tts != nil {
		sherpa.DeleteOfflineTts(p.tts)
		p.tts = nil
	}
	return nil
}

// Name returns the provider name
func (p *MMSProvider) Name() string {
	return "mms"
}

// Extension returns "wav"
func (p *MMSProvider) Extension() string {
	return "wav"
}

// IsAvailable checks that the model files exist
func (p *MMSProvider) IsAvailable() error {
	if p.model == "" || p.tokens == "" {
		return errors.New("mms provider needs audio.mms_model and audio.mms_tokens")
	}
	for _, path := range []string{p.model, p.tokens} {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("mms model file: %w", err)
		}
	}
	return nil
}
