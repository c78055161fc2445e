package curriculum

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format identifies a curriculum document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFromPath picks the decoder from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("unsupported curriculum file extension %q (want .json, .yaml, .yml or .toml)", filepath.Ext(path))
	}
}

// Load reads and decodes the curriculum at path. Every failure, including an
// unreadable file, is reported as a *ValidationError so that callers treat a
// bad source uniformly.
func Load(path string) (*Definition, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, sourceError(path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sourceError(path, fmt.Errorf("failed to read curriculum: %w", err))
	}
	def, err := Parse(data, format)
	if err != nil {
		if ve, ok := err.(*ValidationError); ok {
			ve.Source = path
			return nil, ve
		}
		return nil, sourceError(path, err)
	}
	return def, nil
}

// errEmptyDocument is returned for a document with no content at all.
var errEmptyDocument = errors.New("curriculum document is empty")

// Parse decodes a curriculum document. Levels and items keep document order.
// Decoding is strict: an unknown key anywhere, an object without a levels
// key or an empty document is an error, so that a misshapen file can never
// turn into an empty curriculum.
func Parse(data []byte, format Format) (*Definition, error) {
	var (
		levels []rawLevel
		err    error
	)

	switch format {
	case FormatJSON:
		levels, err = parseJSON(data)
	case FormatYAML:
		levels, err = parseYAML(data)
	case FormatTOML:
		levels, err = parseTOML(data)
	default:
		return nil, fmt.Errorf("unsupported curriculum format %q", format)
	}
	if err != nil {
		return nil, &ValidationError{Problems: []Problem{{Reason: err.Error()}}}
	}
	return convert(levels)
}

func parseJSON(data []byte) ([]rawLevel, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errEmptyDocument
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()

	switch trimmed[0] {
	case '[':
		var levels []rawLevel
		if err := dec.Decode(&levels); err != nil {
			return nil, fmt.Errorf("failed to decode JSON curriculum: %w", err)
		}
		return levels, nil
	case '{':
		var doc rawDocument
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode JSON curriculum: %w", err)
		}
		return doc.levels()
	default:
		return nil, errors.New("JSON curriculum must be an array of levels or an object with a levels key")
	}
}

func parseYAML(data []byte) ([]rawLevel, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to decode YAML curriculum: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, errEmptyDocument
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	switch root.Content[0].Kind {
	case yaml.SequenceNode:
		var levels []rawLevel
		if err := dec.Decode(&levels); err != nil {
			return nil, fmt.Errorf("failed to decode YAML curriculum: %w", err)
		}
		return levels, nil
	case yaml.MappingNode:
		var doc rawDocument
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode YAML curriculum: %w", err)
		}
		return doc.levels()
	default:
		return nil, errors.New("YAML curriculum must be a sequence of levels or a mapping with a levels key")
	}
}

func parseTOML(data []byte) ([]rawLevel, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errEmptyDocument
	}

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var doc rawDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode TOML curriculum: %w", err)
	}
	return doc.levels()
}

type rawDocument struct {
	Levels *[]rawLevel `json:"levels" yaml:"levels" toml:"levels"`
}

// levels distinguishes a deliberate "levels: []" from a missing key.
func (d rawDocument) levels() ([]rawLevel, error) {
	if d.Levels == nil {
		return nil, errors.New("curriculum document has no levels key")
	}
	return *d.Levels, nil
}

type rawLevel struct {
	Level       *int       `json:"level" yaml:"level" toml:"level"`
	Order       *int       `json:"order" yaml:"order" toml:"order"`
	Topic       string     `json:"topic" yaml:"topic" toml:"topic"`
	Title       string     `json:"title" yaml:"title" toml:"title"`
	Description string     `json:"description" yaml:"description" toml:"description"`
	Items       *[]rawItem `json:"items" yaml:"items" toml:"items"`
	Words       *[]rawItem `json:"words" yaml:"words" toml:"words"`
}

type rawItem struct {
	ID            string `json:"id" yaml:"id" toml:"id"`
	NativeMeaning string `json:"native_meaning" yaml:"native_meaning" toml:"native_meaning"`
	Meaning       string `json:"meaning" yaml:"meaning" toml:"meaning"`
	TargetText    string `json:"target_text" yaml:"target_text" toml:"target_text"`
	Target        string `json:"target" yaml:"target" toml:"target"`
	Text          string `json:"text" yaml:"text" toml:"text"`
	Variant       string `json:"variant" yaml:"variant" toml:"variant"`
	Tag           string `json:"tag" yaml:"tag" toml:"tag"`
}

// itemKeys lists the keys an item mapping may carry.
var itemKeys = map[string]bool{
	"id": true, "native_meaning": true, "meaning": true, "target_text": true,
	"target": true, "text": true, "variant": true, "tag": true,
}

// itemFields has rawItem's fields without its decoding methods.
type itemFields rawItem

// UnmarshalJSON accepts either an object or a legacy
// [nativeMeaning, targetText, id] tuple.
func (r *rawItem) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var tuple []string
		if err := json.Unmarshal(trimmed, &tuple); err != nil {
			return err
		}
		return r.fromTuple(tuple)
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	return dec.Decode((*itemFields)(r))
}

// UnmarshalYAML accepts either a mapping or a legacy tuple.
func (r *rawItem) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.SequenceNode {
		var tuple []string
		if err := value.Decode(&tuple); err != nil {
			return err
		}
		return r.fromTuple(tuple)
	}
	// Node.Decode does not inherit the decoder's KnownFields setting.
	if value.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(value.Content); i += 2 {
			if key := value.Content[i]; !itemKeys[key.Value] {
				return fmt.Errorf("line %d: unknown item field %q", key.Line, key.Value)
			}
		}
	}
	return value.Decode((*itemFields)(r))
}

func (r *rawItem) fromTuple(tuple []string) error {
	if len(tuple) != 3 {
		return fmt.Errorf("legacy item must have exactly 3 elements [meaning, target, id], got %d", len(tuple))
	}
	*r = rawItem{NativeMeaning: tuple[0], TargetText: tuple[1], ID: tuple[2]}
	return nil
}

func convert(levels []rawLevel) (*Definition, error) {
	def := &Definition{Levels: make([]Level, 0, len(levels))}
	var problems []Problem

	for i, rl := range levels {
		lvl := Level{
			Topic:       firstNonEmpty(rl.Topic, rl.Title),
			Description: strings.TrimSpace(rl.Description),
		}
		switch {
		case rl.Level != nil:
			lvl.Order = *rl.Level
		case rl.Order != nil:
			lvl.Order = *rl.Order
		default:
			problems = append(problems, Problem{Field: "level", Reason: fmt.Sprintf("level #%d has no level number", i+1)})
		}

		var items []rawItem
		switch {
		case rl.Items != nil && len(*rl.Items) > 0:
			items = *rl.Items
		case rl.Words != nil:
			items = *rl.Words
		case rl.Items != nil:
		default:
			problems = append(problems, Problem{Level: lvl.Order, Field: "items", Reason: fmt.Sprintf("level #%d has no items or words key", i+1)})
		}
		for _, ri := range items {
			variant, err := ParseVariant(firstNonEmpty(ri.Variant, ri.Tag))
			if err != nil {
				problems = append(problems, Problem{Level: lvl.Order, ItemID: ri.ID, Field: "variant", Reason: err.Error()})
			}
			lvl.Items = append(lvl.Items, Item{
				ID:            strings.TrimSpace(ri.ID),
				NativeMeaning: strings.TrimSpace(firstNonEmpty(ri.NativeMeaning, ri.Meaning)),
				TargetText:    firstNonEmpty(ri.TargetText, ri.Target, ri.Text),
				Variant:       variant,
			})
		}
		def.Levels = append(def.Levels, lvl)
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return def, nil
}

func sourceError(path string, err error) *ValidationError {
	return &ValidationError{Source: path, Problems: []Problem{{Reason: err.Error()}}}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
