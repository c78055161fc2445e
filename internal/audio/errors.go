package audio

import "fmt"

// SynthesisError reports that no audio could be produced for one text.
type SynthesisError struct {
	Text string
	Lang string
	Path string
	Err  error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis of %q (%s) to %s failed: %v", e.Text, e.Lang, e.Path, e.Err)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}
