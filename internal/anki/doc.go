// Package anki exports a compiled manifest as an Anki deck, either as a
// self-contained .apkg package or as a CSV file for manual import.
package anki
