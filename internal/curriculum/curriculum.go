package curriculum

import "fmt"

// Variant marks the register of a phrase.
type Variant string

const (
	VariantNone   Variant = ""
	VariantFormal Variant = "formal"
	VariantSpoken Variant = "spoken"
)

// ParseVariant accepts the documented tags case-insensitively.
func ParseVariant(s string) (Variant, error) {
	switch Variant(lower(s)) {
	case VariantNone:
		return VariantNone, nil
	case VariantFormal:
		return VariantFormal, nil
	case VariantSpoken, "colloquial":
		return VariantSpoken, nil
	default:
		return VariantNone, fmt.Errorf("unknown variant %q (want formal or spoken)", s)
	}
}

// Item is one teachable phrase. ID is both the audio cache key and the
// audio filename stem, so it must be unique across the whole curriculum.
type Item struct {
	ID            string
	NativeMeaning string
	TargetText    string
	Variant       Variant
}

// Level groups items under a topic. Order is used for display only.
type Level struct {
	Order       int
	Topic       string
	Description string
	Items       []Item
}

// Definition is the ordered list of levels to compile.
type Definition struct {
	Levels []Level
}

// ItemCount returns the number of items across all levels.
func (d *Definition) ItemCount() int {
	n := 0
	for _, lvl := range d.Levels {
		n += len(lvl.Items)
	}
	return n
}
