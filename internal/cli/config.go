package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"codeberg.org/snonux/setu/internal/audio"
	"codeberg.org/snonux/setu/internal/pipeline"
	"codeberg.org/snonux/setu/internal/transliterate"
)

// formatsByProvider lists the output formats each audio provider can emit.
var formatsByProvider = map[string][]string{
	"openai": {"mp3", "wav", "opus", "aac", "flac"},
	"edge":   {"mp3"},
	"espeak": {"wav"},
	"mms":    {"wav"},
	"gemini": {"wav"},
}

// InitConfig initializes viper configuration
func InitConfig(cfgFile string) error {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".setu")
	}

	setDefaults()

	// Environment variables, e.g. SETU_AUDIO_PROVIDER
	viper.SetEnvPrefix("SETU")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("curriculum.path", "")

	viper.SetDefault("output.assets_root", "./assets")
	viper.SetDefault("output.audio_dir", pipeline.DefaultAudioDir)
	viper.SetDefault("output.manifest", pipeline.DefaultManifestPath)
	viper.SetDefault("output.missing_audio", string(pipeline.MissingAudioKeep))

	viper.SetDefault("audio.provider", "edge")
	viper.SetDefault("audio.fallback", "")
	viper.SetDefault("audio.language", "ta")
	viper.SetDefault("audio.format", "") // empty selects the provider's native format
	viper.SetDefault("audio.voice", "")
	viper.SetDefault("audio.pacing", 500*time.Millisecond)
	viper.SetDefault("audio.breaker_threshold", 5)
	viper.SetDefault("audio.validate", true)
	viper.SetDefault("audio.openai_model", "gpt-4o-mini-tts")
	viper.SetDefault("audio.openai_speed", 1.0)
	viper.SetDefault("audio.openai_instruction", "")
	viper.SetDefault("audio.gemini_model", "gemini-2.5-flash-preview-tts")
	viper.SetDefault("audio.espeak_speed", 130)
	viper.SetDefault("audio.mms_model", "")
	viper.SetDefault("audio.mms_tokens", "")
	viper.SetDefault("audio.mms_threads", 2)

	viper.SetDefault("transliteration.provider", "indic")
	viper.SetDefault("transliteration.from", string(transliterate.ScriptTamil))
	viper.SetDefault("transliteration.to", string(transliterate.ScriptDevanagari))
	viper.SetDefault("transliteration.workers", 1)
	viper.SetDefault("transliteration.openai_model", "gpt-4o-mini")
	viper.SetDefault("transliteration.trim_final_virama", true)

	viper.SetDefault("backend.timeout", 30*time.Second)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file", "")

	viper.SetDefault("anki.deck", "Tamil Setu")
	viper.SetDefault("publish.bucket", "")
	viper.SetDefault("publish.prefix", "")
}

// GetOpenAIKey retrieves the OpenAI API key from environment or config
func GetOpenAIKey() string {
	// First check environment variable
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return key
	}

	// Then check config file
	return viper.GetString("audio.openai_key")
}

// GetGeminiKey retrieves the Gemini API key from environment or config
func GetGeminiKey() string {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		return key
	}
	return viper.GetString("audio.gemini_key")
}

// Config is the resolved configuration of one invocation.
type Config struct {
	CurriculumPath string // empty selects the built-in curriculum

	AssetsRoot   string
	AudioDir     string
	ManifestPath string
	MissingAudio string

	Audio            audio.Config
	Language         string
	Pacing           time.Duration
	BreakerThreshold uint32
	ValidateAudio    bool

	Transliteration transliterate.Config
	From, To        transliterate.Script
	Workers         int

	Timeout time.Duration

	LogLevel string
	LogFile  string

	DeckName string
	Bucket   string
	Prefix   string
}

// ResolveConfig reads the current viper state into a Config and validates it.
func ResolveConfig() (*Config, error) {
	cfg := &Config{
		CurriculumPath: viper.GetString("curriculum.path"),

		AssetsRoot:   viper.GetString("output.assets_root"),
		AudioDir:     viper.GetString("output.audio_dir"),
		ManifestPath: viper.GetString("output.manifest"),
		MissingAudio: viper.GetString("output.missing_audio"),

		Audio: audio.Config{
			Provider:          strings.ToLower(viper.GetString("audio.provider")),
			Fallback:          strings.ToLower(viper.GetString("audio.fallback")),
			Format:            strings.ToLower(viper.GetString("audio.format")),
			Voice:             viper.GetString("audio.voice"),
			OpenAIKey:         GetOpenAIKey(),
			OpenAIModel:       viper.GetString("audio.openai_model"),
			OpenAISpeed:       viper.GetFloat64("audio.openai_speed"),
			OpenAIInstruction: viper.GetString("audio.openai_instruction"),
			GeminiKey:         GetGeminiKey(),
			GeminiModel:       viper.GetString("audio.gemini_model"),
			ESpeakSpeed:       viper.GetInt("audio.espeak_speed"),
			MMSModel:          viper.GetString("audio.mms_model"),
			MMSTokens:         viper.GetString("audio.mms_tokens"),
			MMSThreads:        viper.GetInt("audio.mms_threads"),
		},
		Language:         viper.GetString("audio.language"),
		Pacing:           viper.GetDuration("audio.pacing"),
		BreakerThreshold: viper.GetUint32("audio.breaker_threshold"),
		ValidateAudio:    viper.GetBool("audio.validate"),

		Transliteration: transliterate.Config{
			Provider:        strings.ToLower(viper.GetString("transliteration.provider")),
			TrimFinalVirama: viper.GetBool("transliteration.trim_final_virama"),
			OpenAIKey:       GetOpenAIKey(),
			OpenAIModel:     viper.GetString("transliteration.openai_model"),
		},
		From:    transliterate.ParseScript(viper.GetString("transliteration.from")),
		To:      transliterate.ParseScript(viper.GetString("transliteration.to")),
		Workers: viper.GetInt("transliteration.workers"),

		Timeout: viper.GetDuration("backend.timeout"),

		LogLevel: viper.GetString("log.level"),
		LogFile:  viper.GetString("log.file"),

		DeckName: viper.GetString("anki.deck"),
		Bucket:   viper.GetString("publish.bucket"),
		Prefix:   viper.GetString("publish.prefix"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings no command can run with.
func (c *Config) Validate() error {
	if c.AssetsRoot == "" {
		return fmt.Errorf("output.assets_root must not be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive, got %s", c.Timeout)
	}
	if c.Pacing < 0 {
		return fmt.Errorf("audio.pacing must not be negative, got %s", c.Pacing)
	}
	if c.Workers < 1 {
		return fmt.Errorf("transliteration.workers must be at least 1, got %d", c.Workers)
	}
	if c.Language == "" {
		return fmt.Errorf("audio.language must not be empty")
	}
	if _, err := pipeline.ParseMissingAudioPolicy(c.MissingAudio); err != nil {
		return fmt.Errorf("output.missing_audio: %w", err)
	}

	if c.Audio.Format == "" {
		if formats, ok := formatsByProvider[c.Audio.Provider]; ok {
			c.Audio.Format = formats[0]
		}
	}
	if err := checkFormat("audio.provider", c.Audio.Provider, c.Audio.Format); err != nil {
		return err
	}
	if c.Audio.Fallback != "" {
		if err := checkFormat("audio.fallback", c.Audio.Fallback, c.Audio.Format); err != nil {
			return err
		}
	}

	switch c.Transliteration.Provider {
	case "indic", "openai", "pinyin":
	default:
		return fmt.Errorf("unknown transliteration provider: %s", c.Transliteration.Provider)
	}
	return nil
}

func checkFormat(key, provider, format string) error {
	formats, ok := formatsByProvider[provider]
	if !ok {
		return fmt.Errorf("unknown audio provider for %s: %s", key, provider)
	}
	for _, f := range formats {
		if f == format {
			return nil
		}
	}
	return fmt.Errorf("%s %s does not support format %q (supported: %s)",
		key, provider, format, strings.Join(formats, ", "))
}

// ManifestFile returns the manifest location on disk.
func (c *Config) ManifestFile() string {
	if filepath.IsAbs(c.ManifestPath) {
		return c.ManifestPath
	}
	return filepath.Join(c.AssetsRoot, filepath.FromSlash(c.ManifestPath))
}
