package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const espeakBinary = "espeak-ng"

// ESpeakProvider implements Provider interface for espeak-ng. It works
// offline and writes WAV to stdout.
type ESpeakProvider struct {
	voice string
	speed int
}

// NewESpeakProvider creates a new espeak-ng provider. An empty voice uses
// the language code, which espeak-ng accepts as a voice name.
func NewESpeakProvider(voice string, speed int) *ESpeakProvider {
	return &ESpeakProvider{voice: voice, speed: speed}
}

// Synthesize runs espeak-ng for text
func (p *ESpeakProvider) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, espeakBinary, p.args(text, lang)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("espeak-ng failed: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("espeak-ng failed: %w", err)
	}
	return stdout.Bytes(), nil
}

func (p *ESpeakProvider) args(text, lang string) []string {
	voice := p.voice
	if voice == "" {
		voice = lang
	}
	args := []string{"-v", voice}
	if p.speed > 0 {
		args = append(args, "-s", strconv.Itoa(p.speed))
	}
	// "--" keeps text starting with a dash from being read as a flag
	return append(args, "--stdout", "--", text)
}

// Name returns the provider name
func (p *ESpeakProvider) Name() string {
	return "espeak"
}

// Extension returns "wav"
func (p *ESpeakProvider) Extension() string {
	return "wav"
}

// IsAvailable checks if espeak-ng is installed
func (p *ESpeakProvider) IsAvailable() error {
	if _, err := exec.LookPath(espeakBinary); err != nil {
		return fmt.Errorf("espeak-ng not found in PATH: %w", err)
	}
	return nil
}
