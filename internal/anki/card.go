package anki

import (
	"fmt"
	"os"
	"path/filepath"

	"codeberg.org/snonux/setu/internal/bundle"
)

// Card is one note of the exported deck.
type Card struct {
	Meaning       string
	Target        string
	Pronunciation string
	AudioFile     string // absolute path, empty when the manifest has no usable audio
	Level         int
	Topic         string
}

// CardsFromManifest turns every word of m into a card. Audio paths are
// resolved against assetsRoot; referenced files that do not exist are
// returned as missing and their cards get no audio.
func CardsFromManifest(m bundle.Manifest, assetsRoot string) (cards []Card, missing []string) {
	for _, level := range m {
		for _, word := range level.Words {
			card := Card{
				Meaning:       word.NativeMeaning,
				Target:        word.TargetText,
				Pronunciation: word.Pronunciation,
				Level:         level.Level,
				Topic:         level.Title,
			}
			if word.AudioFile != "" {
				path := filepath.Join(assetsRoot, filepath.FromSlash(word.AudioFile))
				if fileExists(path) {
					card.AudioFile = path
				} else {
					missing = append(missing, word.AudioFile)
				}
			}
			cards = append(cards, card)
		}
	}
	return cards, missing
}

// tag is the Anki tag grouping cards of one level.
func (c Card) tag() string {
	return fmt.Sprintf("setu::level_%02d", c.Level)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
