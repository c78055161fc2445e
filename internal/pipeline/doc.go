// Package pipeline compiles a curriculum into a content bundle.
//
// A run validates the whole curriculum before any backend is called, then
// derives a pronunciation and an audio file for every item. Backend failures
// degrade the affected item only; they are listed in the RunReport and the
// run still writes a complete manifest. Transliteration may run in parallel,
// synthesis is always sequential, and the manifest keeps input order.
package pipeline
