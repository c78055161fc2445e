package audio

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/hajimehoshi/go-mp3"
)

// ErrEmptyPayload is returned when a backend answers without audio.
var ErrEmptyPayload = errors.New("no audio data received")

// ValidatePayload checks that data looks like a complete file of the given
// format. Formats without a known signature only need to be non-empty.
func ValidatePayload(data []byte, format string) error {
	if len(data) == 0 {
		return ErrEmptyPayload
	}

	switch format {
	case "mp3":
		return validateMP3(data)
	case "wav":
		if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
			return errors.New("audio payload is not a RIFF/WAVE file")
		}
	case "flac":
		if !bytes.HasPrefix(data, []byte("fLaC")) {
			return errors.New("audio payload is not a FLAC stream")
		}
	case "opus":
		if !bytes.HasPrefix(data, []byte("OggS")) {
			return errors.New("audio payload is not an Ogg stream")
		}
	}
	return nil
}

func validateMP3(data []byte) (err error) {
	// go-mp3 panics on some truncated frames.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("audio payload is not a decodable MP3: %v", r)
		}
	}()

	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("audio payload is not a decodable MP3: %w", err)
	}
	if decoder.Length() <= 0 {
		return errors.New("audio payload is an MP3 without samples")
	}
	return nil
}
