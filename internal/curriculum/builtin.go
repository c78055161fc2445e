package curriculum

import (
	_ "embed"
	"fmt"
)

//go:embed builtin/tamil_hindi.yaml
var builtinYAML []byte

// Builtin returns the embedded Hindi -> Tamil starter course. Each call
// returns a fresh copy.
func Builtin() (*Definition, error) {
	def, err := Parse(builtinYAML, FormatYAML)
	if err != nil {
		return nil, fmt.Errorf("built-in curriculum: %w", err)
	}
	return def, nil
}
