package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"codeberg.org/snonux/setu/internal/testutil"
)

func newTestSynthesizer(t *testing.T, provider Provider, opts Options) *Synthesizer {
	t.Helper()
	if opts.Timeout == 0 {
		opts.Timeout = time.Second
	}
	s, err := NewSynthesizer(provider, opts)
	if err != nil {
		t.Fatalf("NewSynthesizer() error = %v", err)
	}
	return s
}

func TestNewSynthesizerValidatesOptions(t *testing.T) {
	mock := testutil.NewMockSynth()

	if _, err := NewSynthesizer(nil, Options{Timeout: time.Second}); err == nil {
		t.Error("expected error for nil provider")
	}
	if _, err := NewSynthesizer(mock, Options{}); err == nil {
		t.Error("expected error for missing timeout")
	}
	if _, err := NewSynthesizer(mock, Options{Timeout: time.Second, Pacing: -time.Second}); err == nil {
		t.Error("expected error for negative pacing")
	}
}

func TestSynthesizeWritesFile(t *testing.T) {
	mock := testutil.NewMockSynth()
	s := newTestSynthesizer(t, mock, Options{Validate: true})
	target := filepath.Join(t.TempDir(), "audio", "l1_yes.wav")

	outcome, err := s.Synthesize(context.Background(), "ஆம்", "ta", target)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if outcome != Synthesized {
		t.Errorf("outcome = %v, want synthesized", outcome)
	}
	testutil.AssertFileContent(t, target, testutil.WAVPayload)
	if mock.CallsFor("ஆம்") != 1 {
		t.Errorf("expected one backend call, got %d", mock.CallsFor("ஆம்"))
	}
}

func TestSynthesizeCacheHitSkipsBackendAndPacing(t *testing.T) {
	mock := testutil.NewMockSynth()
	clock := testutil.NewFakeClock(time.Unix(0, 0))
	s := newTestSynthesizer(t, mock, Options{Pacing: 500 * time.Millisecond, Clock: clock})
	dir := t.TempDir()

	if _, err := s.Synthesize(context.Background(), "first", "ta", filepath.Join(dir, "a.wav")); err != nil {
		t.Fatal(err)
	}

	cached := filepath.Join(dir, "b.wav")
	testutil.CreateTestFile(t, cached, []byte("old audio"))

	outcome, err := s.Synthesize(context.Background(), "second", "ta", cached)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != Skipped {
		t.Errorf("outcome = %v, want skipped", outcome)
	}
	if mock.CallsFor("second") != 0 {
		t.Error("cache hit must not call the backend")
	}
	if len(clock.Sleeps()) != 0 {
		t.Errorf("cache hit must not pace, got sleeps %v", clock.Sleeps())
	}
	testutil.AssertFileContent(t, cached, []byte("old audio"))
}

func TestSynthesizePacing(t *testing.T) {
	mock := testutil.NewMockSynth()
	clock := testutil.NewFakeClock(time.Unix(0, 0))
	s := newTestSynthesizer(t, mock, Options{Pacing: 500 * time.Millisecond, Clock: clock})
	dir := t.TempDir()
	ctx := context.Background()

	synth := func(name string) {
		t.Helper()
		if _, err := s.Synthesize(ctx, name, "ta", filepath.Join(dir, name+".wav")); err != nil {
			t.Fatal(err)
		}
	}

	synth("a") // first call never waits
	synth("b") // immediately after: full interval
	clock.Advance(200 * time.Millisecond)
	synth("c") // partly elapsed
	clock.Advance(time.Second)
	synth("d") // fully elapsed

	got := clock.Sleeps()
	want := []time.Duration{500 * time.Millisecond, 300 * time.Millisecond}
	if len(got) != len(want) {
		t.Fatalf("sleeps = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sleep[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSynthesizeFailedCallDoesNotPace(t *testing.T) {
	mock := testutil.NewMockSynth()
	mock.Failures["bad"] = errors.New("quota")
	clock := testutil.NewFakeClock(time.Unix(0, 0))
	s := newTestSynthesizer(t, mock, Options{Pacing: time.Second, Clock: clock})
	dir := t.TempDir()

	if _, err := s.Synthesize(context.Background(), "bad", "ta", filepath.Join(dir, "bad.wav")); err == nil {
		t.Fatal("expected failure")
	}
	if _, err := s.Synthesize(context.Background(), "good", "ta", filepath.Join(dir, "good.wav")); err != nil {
		t.Fatal(err)
	}
	if len(clock.Sleeps()) != 0 {
		t.Errorf("sleeps = %v, want none", clock.Sleeps())
	}
}

func TestSynthesizeFailureLeavesNoFile(t *testing.T) {
	backendErr := errors.New("backend down")
	mock := testutil.NewMockSynth()
	mock.Failures["ஆம்"] = backendErr
	s := newTestSynthesizer(t, mock, Options{})
	dir := t.TempDir()
	target := filepath.Join(dir, "l1_yes.wav")

	outcome, err := s.Synthesize(context.Background(), "ஆம்", "ta", target)
	if outcome != Failed {
		t.Errorf("outcome = %v, want failed", outcome)
	}
	var se *SynthesisError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SynthesisError, got %v", err)
	}
	if se.Path != target || !errors.Is(err, backendErr) {
		t.Errorf("unexpected error: %v", err)
	}
	testutil.AssertFileNotExists(t, target)

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected empty directory, found %d entries", len(entries))
	}
}

func TestSynthesizeRejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name     string
		payload  []byte
		validate bool
		wantErr  error
	}{
		{"empty without validation", nil, false, ErrEmptyPayload},
		{"empty with validation", []byte{}, true, ErrEmptyPayload},
		{"not a wav", []byte("definitely not audio"), true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockSynth()
			mock.Payload = tt.payload
			s := newTestSynthesizer(t, mock, Options{Validate: tt.validate})
			target := filepath.Join(t.TempDir(), "x.wav")

			outcome, err := s.Synthesize(context.Background(), "x", "ta", target)
			if outcome != Failed || err == nil {
				t.Fatalf("expected failure, got %v %v", outcome, err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			testutil.AssertFileNotExists(t, target)
		})
	}
}

type blockingProvider struct{}

func (blockingProvider) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (blockingProvider) Name() string       { return "blocking" }
func (blockingProvider) Extension() string  { return "wav" }
func (blockingProvider) IsAvailable() error { return nil }

func TestSynthesizeTimeout(t *testing.T) {
	s := newTestSynthesizer(t, blockingProvider{}, Options{Timeout: 10 * time.Millisecond})

	_, err := s.Synthesize(context.Background(), "x", "ta", filepath.Join(t.TempDir(), "x.wav"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestCircuitBreakerOpens(t *testing.T) {
	mock := testutil.NewMockSynth()
	for _, text := range []string{"a", "b", "c"} {
		mock.Failures[text] = errors.New("service unavailable")
	}
	s := newTestSynthesizer(t, mock, Options{BreakerThreshold: 2, BreakerCooldown: time.Hour})
	dir := t.TempDir()

	for _, text := range []string{"a", "b"} {
		if _, err := s.Synthesize(context.Background(), text, "ta", filepath.Join(dir, text+".wav")); err == nil {
			t.Fatalf("expected failure for %s", text)
		}
	}

	_, err := s.Synthesize(context.Background(), "c", "ta", filepath.Join(dir, "c.wav"))
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected open circuit, got %v", err)
	}
	if mock.CallCount() != 2 {
		t.Errorf("backend calls = %d, want 2", mock.CallCount())
	}
	if s.Calls() != 2 {
		t.Errorf("Calls() = %d, want 2", s.Calls())
	}
}

func TestOutcomeString(t *testing.T) {
	tests := map[Outcome]string{Failed: "failed", Skipped: "skipped", Synthesized: "synthesized"}
	for outcome, want := range tests {
		if got := outcome.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", outcome, got, want)
		}
	}
}
