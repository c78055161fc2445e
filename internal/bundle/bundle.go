// Package bundle holds the manifest consumed by the learning app and
// writes it as a single unit.
package bundle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"codeberg.org/snonux/setu/internal"
)

// WordAsset is the compiled form of one curriculum item.
type WordAsset struct {
	NativeMeaning string `json:"native_meaning"`
	TargetText    string `json:"target_text"`
	Pronunciation string `json:"pronunciation"`
	// AudioFile is relative to the asset root and always uses '/'.
	AudioFile string `json:"audio_file,omitempty"`
}

// LevelBundle groups the assets of one level in input order.
type LevelBundle struct {
	Level       int         `json:"level"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Words       []WordAsset `json:"words"`
}

// Manifest is the complete ordered curriculum.
type Manifest []LevelBundle

// WordCount returns the number of assets across all levels.
func (m Manifest) WordCount() int {
	n := 0
	for _, level := range m {
		n += len(level.Words)
	}
	return n
}

// StorageError reports that the manifest could not be read or written.
type StorageError struct {
	Path string
	Op   string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("manifest %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Writer serializes manifests.
type Writer struct {
	Indent string
}

// NewWriter returns a writer using the default four space indent.
func NewWriter() *Writer {
	return &Writer{Indent: "    "}
}

// Encode renders levels exactly as Write stores them.
func (w *Writer) Encode(out io.Writer, levels []LevelBundle) error {
	if levels == nil {
		levels = []LevelBundle{}
	}
	normalized := make([]LevelBundle, len(levels))
	for i, level := range levels {
		normalized[i] = level
		if level.Words == nil {
			normalized[i].Words = []WordAsset{}
		}
	}

	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", w.Indent)
	return enc.Encode(normalized)
}

// Write replaces dest with the full manifest. The previous file stays in
// place until the new one is complete.
func (w *Writer) Write(levels []LevelBundle, dest string) error {
	var buf bytes.Buffer
	if err := w.Encode(&buf, levels); err != nil {
		return &StorageError{Path: dest, Op: "encode", Err: err}
	}

	err := internal.WriteFileAtomic(dest, func(out io.Writer) error {
		_, err := buf.WriteTo(out)
		return err
	})
	if err != nil {
		return &StorageError{Path: dest, Op: "write", Err: err}
	}
	return nil
}

// Read loads a manifest written by Write.
func Read(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &StorageError{Path: path, Op: "read", Err: err}
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &StorageError{Path: path, Op: "decode", Err: err}
	}
	return m, nil
}
