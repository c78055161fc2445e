package transliterate

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

var scriptNames = map[Script]string{
	ScriptDevanagari: "Devanagari (as used for Hindi)",
	ScriptBengali:    "Bengali",
	ScriptGurmukhi:   "Gurmukhi",
	ScriptGujarati:   "Gujarati",
	ScriptOriya:      "Odia",
	ScriptTamil:      "Tamil",
	ScriptTelugu:     "Telugu",
	ScriptKannada:    "Kannada",
	ScriptMalayalam:  "Malayalam",
	ScriptHan:        "Chinese characters",
	ScriptLatin:      "Latin",
}

// OpenAI transliterates with a chat model at temperature 0.
type OpenAI struct {
	apiKey string
	model  string
	client *openai.Client
}

// NewOpenAI creates a chat-completion backend.
func NewOpenAI(apiKey, model string) *OpenAI {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{
		apiKey: apiKey,
		model:  model,
		client: openai.NewClient(apiKey),
	}
}

// Name returns the backend name
func (b *OpenAI) Name() string {
	return "openai"
}

// Transliterate asks the model for a phonetic rendering of text in the
// target script.
func (b *OpenAI) Transliterate(ctx context.Context, text string, from, to Script) (string, error) {
	if b.apiKey == "" {
		return "", fmt.Errorf("OpenAI API key not configured")
	}

	req := openai.ChatCompletionRequest{
		Model: b.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You transliterate text between writing systems for language learners. Reproduce the pronunciation, never translate the meaning. Answer with the transliteration only.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Transliterate this %s text into %s script: %s", describeScript(from), describeScript(to), text),
			},
		},
		Temperature: 0,
		MaxTokens:   200,
	}

	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no transliteration returned")
	}

	result := strings.TrimSpace(resp.Choices[0].Message.Content)
	if result == "" {
		return "", fmt.Errorf("empty transliteration returned")
	}
	return result, nil
}

func describeScript(s Script) string {
	if name, ok := scriptNames[s]; ok {
		return name
	}
	return string(s)
}
