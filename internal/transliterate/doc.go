// Package transliterate converts normalized target-language text into a
// pronunciation aid written in the learner's native script. Backend failures
// are reported as *TransliterationError and are never fatal to a run.
package transliterate
