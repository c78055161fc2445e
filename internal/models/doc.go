// Package models lists the OpenAI models that can serve as a speech
// synthesis or transliteration backend for the configured API key.
package models
