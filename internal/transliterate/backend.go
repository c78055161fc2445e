package transliterate

import (
	"context"
	"fmt"
	"strings"
)

// Script is an ISO 15924 script code in lower case, e.g. "taml" or "deva".
type Script string

const (
	ScriptDevanagari Script = "deva"
	ScriptBengali    Script = "beng"
	ScriptGurmukhi   Script = "guru"
	ScriptGujarati   Script = "gujr"
	ScriptOriya      Script = "orya"
	ScriptTamil      Script = "taml"
	ScriptTelugu     Script = "telu"
	ScriptKannada    Script = "knda"
	ScriptMalayalam  Script = "mlym"
	ScriptHan        Script = "hani"
	ScriptLatin      Script = "latn"
)

// ParseScript normalizes a script identifier.
func ParseScript(s string) Script {
	return Script(strings.ToLower(strings.TrimSpace(s)))
}

// Backend is a script transliteration service.
type Backend interface {
	// Transliterate converts text from one script to another.
	Transliterate(ctx context.Context, text string, from, to Script) (string, error)

	// Name returns the backend name
	Name() string
}

// Config selects and configures a backend.
type Config struct {
	Provider string // "indic", "openai" or "pinyin"

	// indic
	TrimFinalVirama bool

	// openai
	OpenAIKey   string
	OpenAIModel string
}

// DefaultConfig returns the offline Tamil -> Devanagari setup.
func DefaultConfig() *Config {
	return &Config{
		Provider:        "indic",
		TrimFinalVirama: true,
		OpenAIModel:     "gpt-4o-mini",
	}
}

// NewBackend creates the backend named by config.Provider.
func NewBackend(config *Config) (Backend, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Provider {
	case "indic", "":
		return NewIndic(config.TrimFinalVirama), nil
	case "openai":
		if config.OpenAIKey == "" {
			return nil, fmt.Errorf("OpenAI API key is required")
		}
		return NewOpenAI(config.OpenAIKey, config.OpenAIModel), nil
	case "pinyin":
		return NewPinyin(), nil
	default:
		return nil, fmt.Errorf("unknown transliteration provider: %s", config.Provider)
	}
}

// Supports reports whether a backend can handle the script pair. Backends
// that do not implement the check are assumed to support any pair.
func Supports(b Backend, from, to Script) error {
	type pairChecker interface {
		SupportsPair(from, to Script) error
	}
	if pc, ok := b.(pairChecker); ok {
		return pc.SupportsPair(from, to)
	}
	return nil
}
