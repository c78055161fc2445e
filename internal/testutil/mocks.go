package testutil

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"codeberg.org/snonux/setu/internal/transliterate"
)

// WAVPayload is a minimal, valid, silent WAV file.
var WAVPayload = wavHeader(16000)

func wavHeader(sampleRate uint32) []byte {
	b := make([]byte, 44)
	copy(b[0:], "RIFF")
	binary.LittleEndian.PutUint32(b[4:], 36)
	copy(b[8:], "WAVE")
	copy(b[12:], "fmt ")
	binary.LittleEndian.PutUint32(b[16:], 16)
	binary.LittleEndian.PutUint16(b[20:], 1)
	binary.LittleEndian.PutUint16(b[22:], 1)
	binary.LittleEndian.PutUint32(b[24:], sampleRate)
	binary.LittleEndian.PutUint32(b[28:], sampleRate*2)
	binary.LittleEndian.PutUint16(b[32:], 2)
	binary.LittleEndian.PutUint16(b[34:], 16)
	copy(b[36:], "data")
	return b
}

// MockSynth mocks a speech synthesis backend. It satisfies audio.Provider.
type MockSynth struct {
	Ext      string
	Payload  []byte
	Failures map[string]error // keyed by text

	mu    sync.Mutex
	calls map[string]int
	order []string
}

// NewMockSynth returns a mock that answers every text with WAVPayload.
func NewMockSynth() *MockSynth {
	return &MockSynth{
		Ext:      "wav",
		Payload:  WAVPayload,
		Failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// Synthesize records the call and returns the payload or the configured failure
func (m *MockSynth) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls[text]++
	m.order = append(m.order, text)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := m.Failures[text]; ok {
		return nil, err
	}
	return append([]byte(nil), m.Payload...), nil
}

// Name returns "mock"
func (m *MockSynth) Name() string { return "mock" }

// Extension returns Ext
func (m *MockSynth) Extension() string { return m.Ext }

// IsAvailable always succeeds
func (m *MockSynth) IsAvailable() error { return nil }

// CallCount returns the total number of calls
func (m *MockSynth) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

// CallsFor returns how often text was synthesized
func (m *MockSynth) CallsFor(text string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[text]
}

// Order returns the texts in call order
func (m *MockSynth) Order() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

// MockTransliterator mocks a transliteration backend. Its output is
// deterministic unless Output is replaced.
type MockTransliterator struct {
	Output   func(text string) string
	Failures map[string]error // keyed by text

	mu    sync.Mutex
	calls int
}

// NewMockTransliterator returns a mock that answers "<to>:<text>".
func NewMockTransliterator() *MockTransliterator {
	return &MockTransliterator{Failures: make(map[string]error)}
}

// Transliterate records the call and returns the mocked output
func (m *MockTransliterator) Transliterate(ctx context.Context, text string, from, to transliterate.Script) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err, ok := m.Failures[text]; ok {
		return "", err
	}
	if m.Output != nil {
		return m.Output(text), nil
	}
	return fmt.Sprintf("%s:%s", to, text), nil
}

// Name returns "mock"
func (m *MockTransliterator) Name() string { return "mock" }

// CallCount returns the number of calls
func (m *MockTransliterator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// FakeClock is a Clock whose Sleep returns at once and advances time.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

// NewFakeClock returns a clock starting at start
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the fake time
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep records d and advances the clock by it
func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

// Advance moves the clock forward without recording a sleep
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Sleeps returns the recorded sleeps
func (c *FakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}
