package audio

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
)

var openAIFormats = map[string]openai.SpeechResponseFormat{
	"mp3":  openai.SpeechResponseFormatMp3,
	"wav":  openai.SpeechResponseFormatWav,
	"opus": openai.SpeechResponseFormatOpus,
	"aac":  openai.SpeechResponseFormatAac,
	"flac": openai.SpeechResponseFormatFlac,
}

// OpenAIProvider implements Provider interface for OpenAI TTS
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	voice       string
	speed       float64
	instruction string
	format      string
}

// NewOpenAIProvider creates a new OpenAI TTS provider
func NewOpenAIProvider(config *Config) (Provider, error) {
	if config.OpenAIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	format := config.Format
	if format == "" {
		format = "mp3"
	}
	if _, ok := openAIFormats[format]; !ok {
		return nil, fmt.Errorf("OpenAI TTS does not support format %q", format)
	}

	voice := config.Voice
	if voice == "" {
		voice = "alloy"
	}
	model := config.OpenAIModel
	if model == "" {
		model = "gpt-4o-mini-tts"
	}
	speed := config.OpenAISpeed
	if speed == 0 {
		speed = 1.0
	}

	return &OpenAIProvider{
		client:      openai.NewClient(config.OpenAIKey),
		model:       model,
		voice:       voice,
		speed:       speed,
		instruction: config.OpenAIInstruction,
		format:      format,
	}, nil
}

// Synthesize generates audio using OpenAI TTS
func (p *OpenAIProvider) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	req := openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(p.model),
		Input:          text,
		Voice:          openai.SpeechVoice(p.voice),
		Speed:          p.speed,
		ResponseFormat: openAIFormats[p.format],
	}
	if p.supportsInstructions() {
		req.Instructions = p.instructionFor(lang)
	}

	response, err := p.client.CreateSpeech(ctx, req)
	if err != nil {
		if strings.Contains(err.Error(), "does not have access to model") && p.supportsInstructions() {
			return nil, fmt.Errorf("OpenAI TTS API error: %w (the %s model requires access, try audio.openai_model=tts-1-hd)", err, p.model)
		}
		return nil, fmt.Errorf("OpenAI TTS API error: %w", err)
	}
	defer response.Close()

	data, err := io.ReadAll(response)
	if err != nil {
		return nil, fmt.Errorf("failed to read OpenAI audio: %w", err)
	}
	return data, nil
}

func (p *OpenAIProvider) supportsInstructions() bool {
	return p.model == "gpt-4o-mini-tts" || p.model == "gpt-4o-mini-audio-preview"
}

func (p *OpenAIProvider) instructionFor(lang string) string {
	if p.instruction != "" {
		return p.instruction
	}
	return fmt.Sprintf("You are speaking %s. Pronounce the text with authentic %s phonetics. Speak slowly and clearly for language learners.",
		LanguageName(lang), LanguageName(lang))
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Extension returns the configured response format
func (p *OpenAIProvider) Extension() string {
	return p.format
}

// IsAvailable checks if the OpenAI API is accessible
func (p *OpenAIProvider) IsAvailable() error {
	// A test call would use credits, the key was checked at construction.
	return nil
}
