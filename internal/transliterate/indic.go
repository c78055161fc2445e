package transliterate

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// The nine major Brahmic scripts share one 128 code point layout in
// Unicode: the same offset inside each block is the same phonetic slot.
// Offsets from 0x70 on are script-specific and are never mapped.
const (
	sharedLayoutEnd = 0x70
	viramaOffset    = 0x4D
)

type indicBlock struct {
	base  rune
	table *unicode.RangeTable
}

var indicBlocks = map[Script]indicBlock{
	ScriptDevanagari: {0x0900, unicode.Devanagari},
	ScriptBengali:    {0x0980, unicode.Bengali},
	ScriptGurmukhi:   {0x0A00, unicode.Gurmukhi},
	ScriptGujarati:   {0x0A80, unicode.Gujarati},
	ScriptOriya:      {0x0B00, unicode.Oriya},
	ScriptTamil:      {0x0B80, unicode.Tamil},
	ScriptTelugu:     {0x0C00, unicode.Telugu},
	ScriptKannada:    {0x0C80, unicode.Kannada},
	ScriptMalayalam:  {0x0D00, unicode.Malayalam},
}

// Indic is an offline, deterministic transliterator between Brahmic
// scripts. Characters without a counterpart in the target block are kept
// as they are.
type Indic struct {
	trimFinalVirama bool
}

// NewIndic creates the block-mapping backend. With trimFinalVirama a
// word-final virama is dropped, matching how Hindi readers expect a
// final consonant to be written ("आम" rather than "आम्").
func NewIndic(trimFinalVirama bool) *Indic {
	return &Indic{trimFinalVirama: trimFinalVirama}
}

// Name returns the backend name
func (b *Indic) Name() string {
	return "indic"
}

// SupportsPair reports whether both scripts are Brahmic blocks.
func (b *Indic) SupportsPair(from, to Script) error {
	if _, ok := indicBlocks[from]; !ok {
		return fmt.Errorf("indic: unsupported source script %q", from)
	}
	if _, ok := indicBlocks[to]; !ok {
		return fmt.Errorf("indic: unsupported target script %q", to)
	}
	return nil
}

// Transliterate maps every source-block code point onto the target block.
func (b *Indic) Transliterate(ctx context.Context, text string, from, to Script) (string, error) {
	if err := b.SupportsPair(from, to); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	src, dst := indicBlocks[from], indicBlocks[to]
	virama := dst.base + viramaOffset

	runes := []rune(text)
	var out strings.Builder
	out.Grow(len(text))

	for i, r := range runes {
		mapped := r
		if off := r - src.base; off >= 0 && off < sharedLayoutEnd {
			if candidate := dst.base + off; unicode.Is(dst.table, candidate) {
				mapped = candidate
			}
		}

		if mapped == virama && b.trimFinalVirama && wordEndsAfter(runes, i) {
			continue
		}
		out.WriteRune(mapped)
	}

	return out.String(), nil
}

func wordEndsAfter(runes []rune, i int) bool {
	if i+1 >= len(runes) {
		return true
	}
	next := runes[i+1]
	return !unicode.IsLetter(next) && !unicode.IsMark(next)
}
