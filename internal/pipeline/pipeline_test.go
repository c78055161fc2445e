package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"codeberg.org/snonux/setu/internal/audio"
	"codeberg.org/snonux/setu/internal/bundle"
	"codeberg.org/snonux/setu/internal/curriculum"
	"codeberg.org/snonux/setu/internal/testutil"
	"codeberg.org/snonux/setu/internal/transliterate"
)

type fixture struct {
	root     string
	backend  *testutil.MockTransliterator
	provider *testutil.MockSynth
	clock    *testutil.FakeClock
	pipeline *Pipeline
}

func newFixture(t *testing.T, configure func(*Options)) *fixture {
	t.Helper()
	return newFixtureWithBackend(t, testutil.NewMockTransliterator(), configure)
}

func newFixtureWithBackend(t *testing.T, backend transliterate.Backend, configure func(*Options)) *fixture {
	t.Helper()

	f := &fixture{
		root:     testutil.CreateAssetRoot(t),
		provider: testutil.NewMockSynth(),
		clock:    testutil.NewFakeClock(time.Unix(0, 0)),
	}
	if mock, ok := backend.(*testutil.MockTransliterator); ok {
		f.backend = mock
	}

	bridge, err := transliterate.NewBridge(backend, transliterate.ScriptTamil, transliterate.ScriptDevanagari, time.Second, nil)
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	synth, err := audio.NewSynthesizer(f.provider, audio.Options{
		Pacing:   500 * time.Millisecond,
		Timeout:  time.Second,
		Validate: true,
		Clock:    f.clock,
	})
	if err != nil {
		t.Fatalf("NewSynthesizer() error = %v", err)
	}

	opts := Options{Bridge: bridge, Synth: synth, Language: "ta"}
	if configure != nil {
		configure(&opts)
	}
	f.pipeline, err = New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return f
}

func (f *fixture) manifestPath() string {
	return filepath.Join(f.root, "data", "master_content.json")
}

func (f *fixture) readManifest(t *testing.T) bundle.Manifest {
	t.Helper()
	m, err := bundle.Read(f.manifestPath())
	if err != nil {
		t.Fatalf("bundle.Read() error = %v", err)
	}
	return m
}

// fiveItems returns one level with items l1_a .. l1_e.
func fiveItems() *curriculum.Definition {
	lvl := curriculum.Level{Order: 1, Topic: "Basics"}
	for _, c := range "abcde" {
		lvl.Items = append(lvl.Items, curriculum.Item{
			ID:            "l1_" + string(c),
			NativeMeaning: "meaning " + string(c),
			TargetText:    "உரை " + string(c),
		})
	}
	return &curriculum.Definition{Levels: []curriculum.Level{lvl}}
}

func TestRunEndToEnd(t *testing.T) {
	f := newFixtureWithBackend(t, transliterate.NewIndic(true), nil)
	def := &curriculum.Definition{Levels: []curriculum.Level{{
		Order: 1,
		Topic: "Basics",
		Items: []curriculum.Item{{ID: "l1_yes", NativeMeaning: "Yes", TargetText: "ஆம்"}},
	}}}

	report, err := f.pipeline.Run(context.Background(), def, f.root)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := `[
    {
        "level": 1,
        "title": "Basics",
        "description": "",
        "words": [
            {
                "native_meaning": "Yes",
                "target_text": "ஆம்",
                "pronunciation": "आम",
                "audio_file": "audio/l1_yes.wav"
            }
        ]
    }
]
`
	testutil.AssertFileContent(t, f.manifestPath(), []byte(want))
	testutil.AssertFileContent(t, filepath.Join(f.root, "audio", "l1_yes.wav"), testutil.WAVPayload)

	if report.ItemsProcessed != 1 || report.AudioSynthesized != 1 || report.HasDegradedItems() {
		t.Errorf("unexpected report: %+v", report)
	}
	if report.ManifestPath != f.manifestPath() {
		t.Errorf("ManifestPath = %q, want %q", report.ManifestPath, f.manifestPath())
	}
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	def := fiveItems()

	first, err := f.pipeline.Run(context.Background(), def, f.root)
	if err != nil {
		t.Fatal(err)
	}
	if first.AudioSynthesized != 5 {
		t.Fatalf("first run synthesized %d, want 5", first.AudioSynthesized)
	}
	before := testutil.ReadFile(t, f.manifestPath())
	calls := f.provider.CallCount()

	second, err := f.pipeline.Run(context.Background(), def, f.root)
	if err != nil {
		t.Fatal(err)
	}
	if f.provider.CallCount() != calls {
		t.Errorf("second run made %d synthesis calls, want 0", f.provider.CallCount()-calls)
	}
	if second.AudioSkipped != 5 || second.AudioSynthesized != 0 {
		t.Errorf("unexpected second report: %+v", second)
	}
	testutil.AssertFileContent(t, f.manifestPath(), before)
}

func TestRunPreservesOrder(t *testing.T) {
	tests := []struct {
		name   string
		orders []int
		items  int
	}{
		{"no levels", nil, 0},
		{"one level one item", []int{1}, 1},
		{"unsorted levels", []int{3, 1, 2}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(o *Options) { o.Workers = 3 })

			def := &curriculum.Definition{}
			for _, order := range tt.orders {
				lvl := curriculum.Level{Order: order, Topic: fmt.Sprintf("topic %d", order)}
				for i := tt.items; i > 0; i-- {
					lvl.Items = append(lvl.Items, curriculum.Item{
						ID:            fmt.Sprintf("l%d_%d", order, i),
						NativeMeaning: fmt.Sprintf("m%d", i),
						TargetText:    fmt.Sprintf("சொல் %d %d", order, i),
					})
				}
				def.Levels = append(def.Levels, lvl)
			}

			if _, err := f.pipeline.Run(context.Background(), def, f.root); err != nil {
				t.Fatal(err)
			}

			m := f.readManifest(t)
			if len(m) != len(def.Levels) {
				t.Fatalf("levels = %d, want %d", len(m), len(def.Levels))
			}
			for li, lvl := range def.Levels {
				if m[li].Level != lvl.Order || m[li].Title != lvl.Topic {
					t.Errorf("level %d = %d %q, want %d %q", li, m[li].Level, m[li].Title, lvl.Order, lvl.Topic)
				}
				if len(m[li].Words) != len(lvl.Items) {
					t.Fatalf("level %d has %d words, want %d", li, len(m[li].Words), len(lvl.Items))
				}
				for wi, item := range lvl.Items {
					w := m[li].Words[wi]
					if w.TargetText != item.TargetText || w.AudioFile != "audio/"+item.ID+".wav" {
						t.Errorf("word %d/%d = %+v, want item %s", li, wi, w, item.ID)
					}
					if w.Pronunciation != "deva:"+item.TargetText {
						t.Errorf("pronunciation for %s = %q", item.ID, w.Pronunciation)
					}
				}
			}
		})
	}
}

func TestRunRejectsDuplicateIDsBeforeAnyCall(t *testing.T) {
	f := newFixture(t, nil)
	def := fiveItems()
	def.Levels = append(def.Levels, curriculum.Level{
		Order: 2,
		Topic: "Again",
		Items: []curriculum.Item{{ID: "l1_a", NativeMeaning: "dup", TargetText: "மீண்டும்"}},
	})

	_, err := f.pipeline.Run(context.Background(), def, f.root)
	var ve *curriculum.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if f.backend.CallCount() != 0 || f.provider.CallCount() != 0 {
		t.Errorf("backend calls = %d/%d, want 0/0", f.backend.CallCount(), f.provider.CallCount())
	}
	testutil.AssertFileNotExists(t, f.manifestPath())
}

func TestRunContainsSynthesisFailure(t *testing.T) {
	for _, policy := range []MissingAudioPolicy{MissingAudioKeep, MissingAudioOmit} {
		t.Run(string(policy), func(t *testing.T) {
			f := newFixture(t, func(o *Options) { o.MissingAudio = policy })
			f.provider.Failures["உரை c"] = errors.New("rate limited")

			report, err := f.pipeline.Run(context.Background(), fiveItems(), f.root)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			if report.AudioFailed != 1 || report.AudioSynthesized != 4 {
				t.Errorf("unexpected counts: %+v", report)
			}
			failures := report.FailuresAt(StageSynthesize)
			if len(failures) != 1 || failures[0].ItemID != "l1_c" || failures[0].Level != 1 {
				t.Fatalf("failures = %+v, want one for l1_c", report.Failures)
			}
			var se *audio.SynthesisError
			if !errors.As(failures[0].Err, &se) {
				t.Errorf("expected *SynthesisError, got %v", failures[0].Err)
			}

			m := f.readManifest(t)
			if m.WordCount() != 5 {
				t.Fatalf("manifest has %d words, want 5", m.WordCount())
			}
			wantAudio := "audio/l1_c.wav"
			if policy == MissingAudioOmit {
				wantAudio = ""
			}
			if got := m[0].Words[2].AudioFile; got != wantAudio {
				t.Errorf("audio_file = %q, want %q", got, wantAudio)
			}
			testutil.AssertFileNotExists(t, filepath.Join(f.root, "audio", "l1_c.wav"))
		})
	}
}

func TestRunContainsTransliterationFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.backend.Failures["உரை b"] = errors.New("backend down")

	report, err := f.pipeline.Run(context.Background(), fiveItems(), f.root)
	if err != nil {
		t.Fatal(err)
	}

	if report.TransliterationFailed != 1 || report.AudioSynthesized != 5 {
		t.Errorf("unexpected counts: %+v", report)
	}
	failures := report.FailuresAt(StageTransliterate)
	if len(failures) != 1 || failures[0].ItemID != "l1_b" {
		t.Fatalf("failures = %+v", report.Failures)
	}
	var te *transliterate.TransliterationError
	if !errors.As(failures[0].Err, &te) {
		t.Errorf("expected *TransliterationError, got %v", failures[0].Err)
	}

	w := f.readManifest(t)[0].Words[1]
	if w.Pronunciation != "" || w.AudioFile != "audio/l1_b.wav" {
		t.Errorf("unexpected asset: %+v", w)
	}
}

func TestRunCacheHitSkipsBackendAndPacing(t *testing.T) {
	f := newFixture(t, nil)
	cached := filepath.Join(f.root, "audio", "l1_b.wav")
	testutil.CreateTestFile(t, cached, testutil.WAVPayload)

	def := fiveItems()
	def.Levels[0].Items = def.Levels[0].Items[:3]

	report, err := f.pipeline.Run(context.Background(), def, f.root)
	if err != nil {
		t.Fatal(err)
	}

	if f.provider.CallsFor("உரை b") != 0 {
		t.Error("cached item must not reach the backend")
	}
	if report.AudioSkipped != 1 || report.AudioSynthesized != 2 {
		t.Errorf("unexpected counts: %+v", report)
	}
	// a: first call, b: cache hit, c: paced once
	sleeps := f.clock.Sleeps()
	if len(sleeps) != 1 || sleeps[0] != 500*time.Millisecond {
		t.Errorf("sleeps = %v, want [500ms]", sleeps)
	}
}

func TestRunParallelTransliterationKeepsOrder(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Workers = 8 })
	f.backend.Output = func(text string) string {
		// later items finish first
		time.Sleep(time.Duration(len(text)%7) * time.Millisecond)
		return "p(" + text + ")"
	}

	def := &curriculum.Definition{Levels: []curriculum.Level{{Order: 1, Topic: "Many"}}}
	for i := 0; i < 40; i++ {
		def.Levels[0].Items = append(def.Levels[0].Items, curriculum.Item{
			ID:            fmt.Sprintf("item_%02d", i),
			NativeMeaning: "m",
			TargetText:    "சொல்" + strings.Repeat("்", i%7) + fmt.Sprint(i),
		})
	}

	if _, err := f.pipeline.Run(context.Background(), def, f.root); err != nil {
		t.Fatal(err)
	}
	for i, w := range f.readManifest(t)[0].Words {
		if w.Pronunciation != "p("+w.TargetText+")" || w.AudioFile != fmt.Sprintf("audio/item_%02d.wav", i) {
			t.Errorf("word %d out of order: %+v", i, w)
		}
	}
	order := f.provider.Order()
	for i, text := range order {
		if text != def.Levels[0].Items[i].TargetText {
			t.Fatalf("synthesis call %d was %q, want input order", i, text)
		}
	}
}

func TestRunReportsNondeterministicBackend(t *testing.T) {
	f := newFixture(t, nil)
	var mu sync.Mutex
	n := 0
	f.backend.Output = func(text string) string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s#%d", text, n)
	}

	def := &curriculum.Definition{Levels: []curriculum.Level{{
		Order: 1,
		Topic: "Repeat",
		Items: []curriculum.Item{
			{ID: "a", NativeMeaning: "x", TargetText: "ஆம்"},
			{ID: "b", NativeMeaning: "y", TargetText: "ஆம் (Aam)"},
		},
	}}}

	report, err := f.pipeline.Run(context.Background(), def, f.root)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Nondeterministic) != 1 || report.Nondeterministic[0] != "ஆம்" {
		t.Errorf("Nondeterministic = %v", report.Nondeterministic)
	}

	manifest, err := bundle.Read(f.manifestPath())
	if err != nil {
		t.Fatal(err)
	}
	words := manifest[0].Words
	if words[0].Pronunciation != words[1].Pronunciation {
		t.Errorf("equal texts got different pronunciations: %q vs %q", words[0].Pronunciation, words[1].Pronunciation)
	}
}

func TestRunCancelledWritesNoManifest(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.pipeline.Run(ctx, fiveItems(), f.root); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	testutil.AssertFileNotExists(t, f.manifestPath())
	if f.provider.CallCount() != 0 {
		t.Errorf("synthesis calls = %d, want 0", f.provider.CallCount())
	}
}

func TestRunLocked(t *testing.T) {
	f := newFixture(t, nil)
	other := flock.New(filepath.Join(f.root, LockFile))
	ok, err := other.TryLock()
	if err != nil || !ok {
		t.Fatalf("failed to take lock: %v", err)
	}
	defer func() { _ = other.Unlock() }()

	if _, err := f.pipeline.Run(context.Background(), fiveItems(), f.root); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if f.backend.CallCount() != 0 || f.provider.CallCount() != 0 {
		t.Error("no backend may be called while locked")
	}
}

func TestRunRemovesStaleTempFiles(t *testing.T) {
	f := newFixture(t, nil)
	stale := []string{
		filepath.Join(f.root, "audio", ".l1_a.wav.tmp-123"),
		filepath.Join(f.root, "data", ".master_content.json.tmp-456"),
	}
	for _, p := range stale {
		testutil.CreateTestFile(t, p, []byte("partial"))
	}
	kept := filepath.Join(f.root, "audio", "unrelated.wav")
	testutil.CreateTestFile(t, kept, testutil.WAVPayload)

	if _, err := f.pipeline.Run(context.Background(), fiveItems(), f.root); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for _, p := range stale {
		testutil.AssertFileNotExists(t, p)
	}
	testutil.AssertFileContent(t, kept, testutil.WAVPayload)
	testutil.AssertFileExists(t, filepath.Join(f.root, "audio", "l1_a.wav"))
}

func TestRunStorageErrorIsFatal(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.ManifestPath = "blocker/master_content.json" })
	testutil.CreateTestFile(t, filepath.Join(f.root, "blocker"), []byte("not a directory"))

	_, err := f.pipeline.Run(context.Background(), fiveItems(), f.root)
	var se *bundle.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StorageError, got %v", err)
	}
}

func TestNewValidatesOptions(t *testing.T) {
	synth := &audio.Synthesizer{}
	bridge, _ := transliterate.NewBridge(transliterate.NewIndic(true), transliterate.ScriptTamil, transliterate.ScriptDevanagari, time.Second, nil)

	tests := []struct {
		name string
		opts Options
	}{
		{"missing bridge", Options{Synth: synth, Language: "ta"}},
		{"missing synth", Options{Bridge: bridge, Language: "ta"}},
		{"missing language", Options{Bridge: bridge, Synth: synth}},
		{"absolute audio dir", Options{Bridge: bridge, Synth: synth, Language: "ta", AudioDir: "/tmp/audio"}},
		{"bad policy", Options{Bridge: bridge, Synth: synth, Language: "ta", MissingAudio: "drop"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opts); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRenderReport(t *testing.T) {
	report := &RunReport{
		ItemsProcessed:   5,
		AudioSynthesized: 4,
		AudioFailed:      1,
		Failures: []ItemFailure{
			{ItemID: "l1_c", Level: 1, Stage: StageSynthesize, Err: errors.New("rate limited")},
		},
		Nondeterministic: []string{"ஆம்"},
		ManifestPath:     "assets/data/master_content.json",
	}

	out := RenderReport(report)
	for _, want := range []string{"Items processed", "l1_c", "synthesize", "rate limited", "ஆம்", "master_content.json"} {
		if !strings.Contains(out, want) {
			t.Errorf("report does not contain %q:\n%s", want, out)
		}
	}

	clean := RenderReport(&RunReport{ItemsProcessed: 1, AudioSkipped: 1})
	if strings.Contains(strings.ToUpper(clean), "STAGE") {
		t.Error("a clean run must not print a failure table")
	}
}

func TestParseMissingAudioPolicy(t *testing.T) {
	for in, want := range map[string]MissingAudioPolicy{"": MissingAudioKeep, "keep": MissingAudioKeep, "omit": MissingAudioOmit} {
		got, err := ParseMissingAudioPolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseMissingAudioPolicy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMissingAudioPolicy("drop"); err == nil {
		t.Error("expected error")
	}
}
