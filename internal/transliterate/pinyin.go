package transliterate

import (
	"context"
	"fmt"
	"strings"

	"github.com/mozillazg/go-pinyin"
)

// Pinyin renders Han characters as tone-marked pinyin. Characters that are
// not Han are dropped.
type Pinyin struct {
	args pinyin.Args
}

// NewPinyin creates the Han -> Latin backend.
func NewPinyin() *Pinyin {
	args := pinyin.NewArgs()
	args.Style = pinyin.Tone
	return &Pinyin{args: args}
}

// Name returns the backend name
func (b *Pinyin) Name() string {
	return "pinyin"
}

// SupportsPair only accepts hani -> latn.
func (b *Pinyin) SupportsPair(from, to Script) error {
	if from != ScriptHan || to != ScriptLatin {
		return fmt.Errorf("pinyin: only %s -> %s is supported, got %s -> %s", ScriptHan, ScriptLatin, from, to)
	}
	return nil
}

// Transliterate converts text syllable by syllable.
func (b *Pinyin) Transliterate(ctx context.Context, text string, from, to Script) (string, error) {
	if err := b.SupportsPair(from, to); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	syllables := pinyin.LazyPinyin(text, b.args)
	if len(syllables) == 0 {
		return "", fmt.Errorf("pinyin: no Han characters in %q", text)
	}
	return strings.Join(syllables, " "), nil
}
