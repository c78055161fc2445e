package audio

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
)

// mockProvider implements Provider interface for testing
type mockProvider struct {
	name         string
	ext          string
	data         []byte
	generateErr  error
	availableErr error
	calls        int
}

func (m *mockProvider) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	m.calls++
	return m.data, m.generateErr
}

func (m *mockProvider) Name() string       { return m.name }
func (m *mockProvider) Extension() string  { return m.ext }
func (m *mockProvider) IsAvailable() error { return m.availableErr }

func TestDefaultProviderConfig(t *testing.T) {
	config := DefaultProviderConfig()

	if config.Provider != "edge" {
		t.Errorf("Expected provider 'edge', got '%s'", config.Provider)
	}
	if config.Format != "mp3" {
		t.Errorf("Expected format 'mp3', got '%s'", config.Format)
	}
	if config.OpenAIModel != "gpt-4o-mini-tts" {
		t.Errorf("Expected OpenAI model 'gpt-4o-mini-tts', got '%s'", config.OpenAIModel)
	}
	if config.OpenAISpeed != 1.0 {
		t.Errorf("Expected OpenAI speed 1.0, got %f", config.OpenAISpeed)
	}
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		config   *Config
		wantName string
		wantExt  string
		errMsg   string
	}{
		{name: "nil config uses edge", config: nil, wantName: "edge", wantExt: "mp3"},
		{name: "edge", config: &Config{Provider: "edge"}, wantName: "edge", wantExt: "mp3"},
		{name: "espeak", config: &Config{Provider: "espeak"}, wantName: "espeak", wantExt: "wav"},
		{name: "mms", config: &Config{Provider: "mms"}, wantName: "mms", wantExt: "wav"},
		{name: "openai", config: &Config{Provider: "openai", OpenAIKey: "k", Format: "flac"}, wantName: "openai", wantExt: "flac"},
		{name: "openai without key", config: &Config{Provider: "openai"}, errMsg: "API key is required"},
		{name: "openai bad format", config: &Config{Provider: "openai", OpenAIKey: "k", Format: "ogg"}, errMsg: "does not support format"},
		{name: "gemini without key", config: &Config{Provider: "gemini"}, errMsg: "Gemini API key is required"},
		{name: "unknown", config: &Config{Provider: "festival"}, errMsg: "unknown audio provider"},
		{
			name:     "fallback with same extension",
			config:   &Config{Provider: "openai", OpenAIKey: "k", Format: "mp3", Fallback: "edge"},
			wantName: "openai (fallback: edge)",
			wantExt:  "mp3",
		},
		{
			name:   "fallback with other extension",
			config: &Config{Provider: "edge", Fallback: "espeak"},
			errMsg: "produces wav",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(tt.config, nil)
			if tt.errMsg != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
					t.Fatalf("expected error containing %q, got %v", tt.errMsg, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if provider.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", provider.Name(), tt.wantName)
			}
			if provider.Extension() != tt.wantExt {
				t.Errorf("Extension() = %q, want %q", provider.Extension(), tt.wantExt)
			}
		})
	}
}

func TestProviderWithFallback(t *testing.T) {
	t.Run("primary succeeds", func(t *testing.T) {
		primary := &mockProvider{name: "primary", ext: "mp3", data: []byte("p")}
		fallback := &mockProvider{name: "fallback", ext: "mp3", data: []byte("f")}
		p, err := NewProviderWithFallback(primary, fallback, nil)
		if err != nil {
			t.Fatal(err)
		}

		data, err := p.Synthesize(context.Background(), "x", "ta")
		if err != nil || string(data) != "p" {
			t.Errorf("got %q, %v", data, err)
		}
		if fallback.calls != 0 {
			t.Error("fallback should not be called")
		}
	})

	t.Run("primary fails", func(t *testing.T) {
		primary := &mockProvider{name: "primary", ext: "mp3", generateErr: errors.New("down")}
		fallback := &mockProvider{name: "fallback", ext: "mp3", data: []byte("f")}
		p, _ := NewProviderWithFallback(primary, fallback, nil)

		data, err := p.Synthesize(context.Background(), "x", "ta")
		if err != nil || string(data) != "f" {
			t.Errorf("got %q, %v", data, err)
		}
	})

	t.Run("cancelled context skips fallback", func(t *testing.T) {
		primary := &mockProvider{name: "primary", ext: "mp3", generateErr: context.Canceled}
		fallback := &mockProvider{name: "fallback", ext: "mp3", data: []byte("f")}
		p, _ := NewProviderWithFallback(primary, fallback, nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := p.Synthesize(ctx, "x", "ta"); err == nil {
			t.Error("expected error")
		}
		if fallback.calls != 0 {
			t.Error("fallback should not be called after cancellation")
		}
	})

	t.Run("availability", func(t *testing.T) {
		primary := &mockProvider{name: "primary", ext: "mp3", availableErr: errors.New("no key")}
		fallback := &mockProvider{name: "fallback", ext: "mp3"}
		p, _ := NewProviderWithFallback(primary, fallback, nil)
		if err := p.IsAvailable(); err != nil {
			t.Errorf("expected available via fallback, got %v", err)
		}

		fallback.availableErr = errors.New("not installed")
		if err := p.IsAvailable(); err == nil {
			t.Error("expected error when both are unavailable")
		}
	})
}

func TestLanguageName(t *testing.T) {
	tests := map[string]string{
		"ta":    "Tamil",
		"TA":    "Tamil",
		"hi-IN": "Hindi",
		"xx":    "xx",
	}
	for code, want := range tests {
		if got := LanguageName(code); got != want {
			t.Errorf("LanguageName(%q) = %q, want %q", code, got, want)
		}
	}
}

func TestEdgeVoiceFor(t *testing.T) {
	tests := []struct {
		voice   string
		lang    string
		want    string
		wantErr bool
	}{
		{"", "ta", "ta-IN-PallaviNeural", false},
		{"", "hi_IN", "hi-IN-SwaraNeural", false},
		{"ta-IN-ValluvarNeural", "ta", "ta-IN-ValluvarNeural", false},
		{"", "xx", "", true},
	}

	for _, tt := range tests {
		got, err := NewEdgeProvider(tt.voice).voiceFor(tt.lang)
		if (err != nil) != tt.wantErr {
			t.Errorf("voiceFor(%q) error = %v, wantErr %v", tt.lang, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("voiceFor(%q) = %q, want %q", tt.lang, got, tt.want)
		}
	}
}

func TestESpeakArgs(t *testing.T) {
	tests := []struct {
		name  string
		voice string
		speed int
		want  []string
	}{
		{"language as voice", "", 0, []string{"-v", "ta", "--stdout", "--", "-வணக்கம்"}},
		{"explicit voice and speed", "ta+f3", 120, []string{"-v", "ta+f3", "-s", "120", "--stdout", "--", "-வணக்கம்"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewESpeakProvider(tt.voice, tt.speed).args("-வணக்கம்", "ta")
			if strings.Join(got, " ") != strings.Join(tt.want, " ") {
				t.Errorf("args = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMMSProviderAvailability(t *testing.T) {
	if err := NewMMSProvider("", "", 1).IsAvailable(); err == nil {
		t.Error("expected error without model paths")
	}

	dir := t.TempDir()
	model := dir + "/model.onnx"
	tokens := dir + "/tokens.txt"
	if err := NewMMSProvider(model, tokens, 1).IsAvailable(); err == nil {
		t.Error("expected error for missing files")
	}

	for _, path := range []string{model, tokens} {
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := NewMMSProvider(model, tokens, 1).IsAvailable(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSampleRateFromMIME(t *testing.T) {
	tests := map[string]int{
		"audio/L16;codec=pcm;rate=24000": 24000,
		"audio/L16; rate=16000":          16000,
		"audio/L16":                      0,
		"audio/L16;rate=abc":             0,
	}
	for mime, want := range tests {
		if got := sampleRateFromMIME(mime); got != want {
			t.Errorf("sampleRateFromMIME(%q) = %d, want %d", mime, got, want)
		}
	}
}

func TestOpenAIProvider_Integration(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("Skipping integration test: OPENAI_API_KEY not set")
	}

	provider, err := NewOpenAIProvider(&Config{OpenAIKey: apiKey, Format: "mp3"})
	if err != nil {
		t.Fatal(err)
	}
	data, err := provider.Synthesize(context.Background(), "வணக்கம்", "ta")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if err := ValidatePayload(data, "mp3"); err != nil {
		t.Errorf("invalid payload: %v", err)
	}
}
