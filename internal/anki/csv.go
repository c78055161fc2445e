package anki

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
)

// WriteCSV writes cards in Anki's text import format. Audio fields refer to
// the bare file name, so the audio files have to be copied into Anki's
// collection.media folder by hand.
func WriteCSV(out io.Writer, cards []Card, includeHeaders bool) error {
	writer := csv.NewWriter(out)

	if includeHeaders {
		headers := []string{"Meaning", "Target", "Pronunciation", "Audio", "Tags"}
		if err := writer.Write(headers); err != nil {
			return fmt.Errorf("failed to write headers: %w", err)
		}
	}

	for _, card := range cards {
		record := []string{
			card.Meaning,
			card.Target,
			card.Pronunciation,
			soundField(card.AudioFile),
			card.tag(),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write card: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// soundField formats an audio reference for Anki
func soundField(audioFile string) string {
	if audioFile == "" {
		return ""
	}
	return fmt.Sprintf("[sound:%s]", filepath.Base(audioFile))
}
