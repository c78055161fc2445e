package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

// Provider defines the interface for text-to-speech backends
type Provider interface {
	// Synthesize returns the encoded audio for text spoken in lang
	Synthesize(ctx context.Context, text, lang string) ([]byte, error)

	// Name returns the provider name
	Name() string

	// Extension returns the file extension of the produced audio, without dot
	Extension() string

	// IsAvailable checks if the provider is properly configured and available
	IsAvailable() error
}

// Config holds common configuration for audio providers
type Config struct {
	Provider string // "openai", "edge", "espeak", "mms" or "gemini"
	Fallback string // optional secondary provider with the same extension
	Format   string // output format for providers that support several
	Voice    string // provider specific voice, empty selects a default for the language

	// OpenAI-specific settings
	OpenAIKey         string
	OpenAIModel       string  // "tts-1", "tts-1-hd", or "gpt-4o-mini-tts"
	OpenAISpeed       float64 // 0.25 to 4.0
	OpenAIInstruction string  // Voice instructions for gpt-4o-mini-tts model

	// Gemini-specific settings
	GeminiKey   string
	GeminiModel string

	// espeak-ng settings
	ESpeakSpeed int // words per minute

	// MMS (sherpa-onnx VITS) settings
	MMSModel   string
	MMSTokens  string
	MMSThreads int
}

// DefaultProviderConfig returns default configuration
func DefaultProviderConfig() *Config {
	return &Config{
		Provider:    "edge",
		Format:      "mp3",
		OpenAIModel: "gpt-4o-mini-tts",
		OpenAISpeed: 1.0,
		GeminiModel: "gemini-2.5-flash-preview-tts",
		ESpeakSpeed: 130,
		MMSThreads:  2,
	}
}

// NewProvider creates the appropriate audio provider based on configuration
func NewProvider(config *Config, log *zap.SugaredLogger) (Provider, error) {
	if config == nil {
		config = DefaultProviderConfig()
	}

	primary, err := newProvider(config.Provider, config)
	if err != nil {
		return nil, err
	}
	if config.Fallback == "" || config.Fallback == config.Provider {
		return primary, nil
	}

	fallback, err := newProvider(config.Fallback, config)
	if err != nil {
		return nil, fmt.Errorf("fallback provider: %w", err)
	}
	return NewProviderWithFallback(primary, fallback, log)
}

func newProvider(name string, config *Config) (Provider, error) {
	switch name {
	case "openai":
		return NewOpenAIProvider(config)
	case "edge":
		return NewEdgeProvider(config.Voice), nil
	case "espeak":
		return NewESpeakProvider(config.Voice, config.ESpeakSpeed), nil
	case "mms":
		return NewMMSProvider(config.MMSModel, config.MMSTokens, config.MMSThreads), nil
	case "gemini":
		return NewGeminiProvider(config)
	default:
		return nil, fmt.Errorf("unknown audio provider: %s", name)
	}
}

// ProviderWithFallback wraps a primary provider with a fallback option
type ProviderWithFallback struct {
	primary  Provider
	fallback Provider
	log      *zap.SugaredLogger
}

// NewProviderWithFallback creates a provider that falls back to secondary if
// primary fails. Both must produce the same kind of file since the target
// path is chosen before synthesis.
func NewProviderWithFallback(primary, fallback Provider, log *zap.SugaredLogger) (Provider, error) {
	if primary.Extension() != fallback.Extension() {
		return nil, fmt.Errorf("fallback provider %s produces %s, primary %s produces %s",
			fallback.Name(), fallback.Extension(), primary.Name(), primary.Extension())
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &ProviderWithFallback{primary: primary, fallback: fallback, log: log}, nil
}

// Synthesize tries primary provider first, falls back to secondary on error
func (p *ProviderWithFallback) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	data, err := p.primary.Synthesize(ctx, text, lang)
	if err == nil {
		return data, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	p.log.Warnw("primary audio provider failed, falling back",
		"primary", p.primary.Name(), "fallback", p.fallback.Name(), "error", err)
	return p.fallback.Synthesize(ctx, text, lang)
}

// Name returns the provider name
func (p *ProviderWithFallback) Name() string {
	return fmt.Sprintf("%s (fallback: %s)", p.primary.Name(), p.fallback.Name())
}

// Extension returns the shared extension of both providers
func (p *ProviderWithFallback) Extension() string {
	return p.primary.Extension()
}

// IsAvailable checks if at least one provider is available
func (p *ProviderWithFallback) IsAvailable() error {
	primaryErr := p.primary.IsAvailable()
	if primaryErr == nil {
		return nil
	}

	fallbackErr := p.fallback.IsAvailable()
	if fallbackErr == nil {
		return nil
	}

	return fmt.Errorf("both providers unavailable: primary=%v, fallback=%v",
		primaryErr, fallbackErr)
}

// Close releases whichever of the two providers hold resources
func (p *ProviderWithFallback) Close() error {
	var errs []error
	for _, provider := range []Provider{p.primary, p.fallback} {
		if c, ok := provider.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

var languageNames = map[string]string{
	"bg": "Bulgarian",
	"bn": "Bengali",
	"en": "English",
	"gu": "Gujarati",
	"hi": "Hindi",
	"kn": "Kannada",
	"ml": "Malayalam",
	"mr": "Marathi",
	"pa": "Punjabi",
	"ta": "Tamil",
	"te": "Telugu",
	"zh": "Chinese",
}

// LanguageName returns the English name for a language code, or the code
// itself when it is not known.
func LanguageName(lang string) string {
	base := strings.ToLower(lang)
	if i := strings.IndexAny(base, "-_"); i > 0 {
		base = base[:i]
	}
	if name, ok := languageNames[base]; ok {
		return name
	}
	return lang
}
