package audio

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/genai"
)

const geminiSampleRate = 24000

// GeminiProvider uses the Gemini speech generation models. They return raw
// 16-bit PCM which is wrapped into WAV.
type GeminiProvider struct {
	client *genai.Client
	model  string
	voice  string
}

// NewGeminiProvider creates a new Gemini TTS provider
func NewGeminiProvider(config *Config) (Provider, error) {
	if config.GeminiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.GeminiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := config.GeminiModel
	if model == "" {
		model = "gemini-2.5-flash-preview-tts"
	}
	voice := config.Voice
	if voice == "" {
		voice = "Kore"
	}
	return &GeminiProvider{client: client, model: model, voice: voice}, nil
}

// Synthesize asks the model to read text aloud
func (p *GeminiProvider) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	prompt := fmt.Sprintf("Say slowly and clearly in %s: %s", LanguageName(lang), text)

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: p.voice},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("Gemini TTS API error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("Gemini returned no candidates")
	}

	var pcm []byte
	rate := geminiSampleRate
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.InlineData == nil {
			continue
		}
		pcm = append(pcm, part.InlineData.Data...)
		if r := sampleRateFromMIME(part.InlineData.MIMEType); r > 0 {
			rate = r
		}
	}
	if len(pcm) == 0 {
		return nil, ErrEmptyPayload
	}
	return EncodeWAV(pcm, rate, 1), nil
}

// sampleRateFromMIME reads the rate parameter of e.g. "audio/L16;codec=pcm;rate=24000".
func sampleRateFromMIME(mime string) int {
	for _, param := range strings.Split(mime, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if ok && key == "rate" {
			if rate, err := strconv.Atoi(value); err == nil {
				return rate
			}
		}
	}
	return 0
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Extension returns "wav"
func (p *GeminiProvider) Extension() string {
	return "wav"
}

// IsAvailable reports whether a client was created
func (p *GeminiProvider) IsAvailable() error {
	if p.client == nil {
		return errors.New("Gemini client not configured")
	}
	return nil
}
