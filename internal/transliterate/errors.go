package transliterate

import "fmt"

// TransliterationError wraps a backend failure for one text.
type TransliterationError struct {
	Text string
	From Script
	To   Script
	Err  error
}

func (e *TransliterationError) Error() string {
	return fmt.Sprintf("transliterate %q (%s -> %s): %v", e.Text, e.From, e.To, e.Err)
}

func (e *TransliterationError) Unwrap() error {
	return e.Err
}
