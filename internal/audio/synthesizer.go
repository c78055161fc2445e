package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"codeberg.org/snonux/setu/internal"
)

// Outcome tells what Synthesize did for one target.
type Outcome int

const (
	Failed Outcome = iota
	Skipped
	Synthesized
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Synthesized:
		return "synthesized"
	default:
		return "failed"
	}
}

// Options tunes a Synthesizer.
type Options struct {
	// Pacing is the minimum interval between two backend calls.
	Pacing time.Duration
	// Timeout bounds every backend call. Required.
	Timeout time.Duration
	// BreakerThreshold opens the circuit after that many consecutive
	// backend failures. Zero disables the breaker.
	BreakerThreshold uint32
	// BreakerCooldown is how long the circuit stays open.
	BreakerCooldown time.Duration
	// Validate checks payloads before they are written.
	Validate bool

	Clock Clock
	Log   *zap.SugaredLogger
}

// Synthesizer produces cached audio files through a Provider. Calls are
// serialized so that pacing holds across goroutines.
type Synthesizer struct {
	provider Provider
	opts     Options
	clock    Clock
	log      *zap.SugaredLogger
	breaker  *gobreaker.CircuitBreaker

	mu       sync.Mutex
	lastCall time.Time
	calls    int
}

// NewSynthesizer wraps provider with the cache rule, pacing, timeout and
// circuit breaker.
func NewSynthesizer(provider Provider, opts Options) (*Synthesizer, error) {
	if provider == nil {
		return nil, errors.New("audio provider is required")
	}
	if opts.Timeout <= 0 {
		return nil, errors.New("synthesis timeout must be positive")
	}
	if opts.Pacing < 0 {
		return nil, errors.New("pacing interval must not be negative")
	}

	s := &Synthesizer{
		provider: provider,
		opts:     opts,
		clock:    opts.Clock,
		log:      opts.Log,
	}
	if s.clock == nil {
		s.clock = SystemClock()
	}
	if s.log == nil {
		s.log = zap.NewNop().Sugar()
	}
	s.log = s.log.With("provider", provider.Name())

	if opts.BreakerThreshold > 0 {
		cooldown := opts.BreakerCooldown
		if cooldown <= 0 {
			cooldown = 30 * time.Second
		}
		threshold := opts.BreakerThreshold
		s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "synthesis-" + provider.Name(),
			Timeout: cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: func(err error) bool {
				// A cancelled run says nothing about the backend.
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				s.log.Warnw("synthesis circuit breaker changed state",
					"breaker", name, "from", from.String(), "to", to.String())
			},
		})
	}
	return s, nil
}

// Extension returns the extension of the files this synthesizer writes.
func (s *Synthesizer) Extension() string {
	return s.provider.Extension()
}

// Calls returns how many times the backend was invoked.
func (s *Synthesizer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Synthesize makes sure targetPath holds audio for text. An existing file
// is a cache hit: no backend call and no pacing. Failures are returned as
// *SynthesisError and leave targetPath untouched.
func (s *Synthesizer) Synthesize(ctx context.Context, text, lang, targetPath string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if info, err := os.Stat(targetPath); err == nil && info.Mode().IsRegular() {
		s.log.Debugw("audio cache hit", "path", targetPath)
		return Skipped, nil
	}

	fail := func(err error) (Outcome, error) {
		return Failed, &SynthesisError{Text: text, Lang: lang, Path: targetPath, Err: err}
	}

	if err := s.pace(ctx); err != nil {
		return fail(err)
	}

	data, err := s.call(ctx, text, lang)
	if err != nil {
		return fail(err)
	}
	s.lastCall = s.clock.Now()

	if s.opts.Validate {
		if err := ValidatePayload(data, s.provider.Extension()); err != nil {
			return fail(err)
		}
	} else if len(data) == 0 {
		return fail(ErrEmptyPayload)
	}

	err = internal.WriteFileAtomic(targetPath, func(w io.Writer) error {
		_, err := io.Copy(w, bytes.NewReader(data))
		return err
	})
	if err != nil {
		return fail(fmt.Errorf("failed to write audio file: %w", err))
	}

	s.log.Debugw("audio synthesized", "path", targetPath, "bytes", len(data))
	return Synthesized, nil
}

// pace waits out whatever is left of the pacing interval since the last
// successful backend call.
func (s *Synthesizer) pace(ctx context.Context) error {
	if s.opts.Pacing <= 0 || s.lastCall.IsZero() {
		return nil
	}
	wait := s.opts.Pacing - s.clock.Now().Sub(s.lastCall)
	if wait <= 0 {
		return nil
	}
	return s.clock.Sleep(ctx, wait)
}

func (s *Synthesizer) call(ctx context.Context, text, lang string) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	if s.breaker == nil {
		s.calls++
		return s.provider.Synthesize(callCtx, text, lang)
	}

	out, err := s.breaker.Execute(func() (interface{}, error) {
		s.calls++
		return s.provider.Synthesize(callCtx, text, lang)
	})
	if err != nil {
		return nil, err
	}
	data, _ := out.([]byte)
	return data, nil
}
