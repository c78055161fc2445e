package transliterate

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Bridge binds a backend to one script pair for the duration of a run.
// It is safe for concurrent use.
type Bridge struct {
	backend Backend
	from    Script
	to      Script
	timeout time.Duration
	log     *zap.SugaredLogger

	mu     sync.Mutex
	seen   map[string]string
	drifts map[string]struct{}
}

// NewBridge checks that backend supports from -> to and returns a bridge
// that bounds every call by timeout.
func NewBridge(backend Backend, from, to Script, timeout time.Duration, log *zap.SugaredLogger) (*Bridge, error) {
	if backend == nil {
		return nil, errors.New("transliteration backend is required")
	}
	if timeout <= 0 {
		return nil, errors.New("transliteration timeout must be positive")
	}
	if err := Supports(backend, from, to); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Bridge{
		backend: backend,
		from:    from,
		to:      to,
		timeout: timeout,
		log:     log.With("backend", backend.Name()),
		seen:    make(map[string]string),
		drifts:  make(map[string]struct{}),
	}, nil
}

// Transliterate converts normalized text. Failures come back as
// *TransliterationError; the caller decides how to degrade. The first
// answer for a text is pinned for the bridge's lifetime so that equal texts
// get equal pronunciations; later calls still reach the backend so that a
// drifting answer is detected.
func (b *Bridge) Transliterate(ctx context.Context, text string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	out, err := b.backend.Transliterate(callCtx, text, b.from, b.to)
	if err != nil {
		return "", &TransliterationError{Text: text, From: b.from, To: b.to, Err: err}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	prev, ok := b.seen[text]
	if !ok {
		b.seen[text] = out
		return out, nil
	}
	if prev != out {
		b.drifts[text] = struct{}{}
		b.log.Warnw("transliteration backend is not deterministic",
			"text", text, "first", prev, "now", out)
	}
	return prev, nil
}

// Nondeterministic returns the inputs for which the backend answered
// differently within this bridge's lifetime, sorted.
func (b *Bridge) Nondeterministic() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.drifts))
	for text := range b.drifts {
		out = append(out, text)
	}
	sort.Strings(out)
	return out
}

// Pair returns the configured scripts.
func (b *Bridge) Pair() (from, to Script) {
	return b.from, b.to
}
