package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"codeberg.org/snonux/setu/internal"
	"codeberg.org/snonux/setu/internal/audio"
	"codeberg.org/snonux/setu/internal/bundle"
	"codeberg.org/snonux/setu/internal/curriculum"
	"codeberg.org/snonux/setu/internal/normalize"
)

// Transliterator produces the pronunciation aid for normalized text.
// *transliterate.Bridge implements it.
type Transliterator interface {
	Transliterate(ctx context.Context, text string) (string, error)
	Nondeterministic() []string
}

// Synthesizer makes sure an audio file exists for normalized text.
// *audio.Synthesizer implements it.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, lang, targetPath string) (audio.Outcome, error)
	Extension() string
}

// ManifestWriter persists the complete manifest in one unit.
type ManifestWriter interface {
	Write(levels []bundle.LevelBundle, dest string) error
}

// MissingAudioPolicy decides what the manifest records for an item whose
// synthesis failed.
type MissingAudioPolicy string

const (
	// MissingAudioKeep records the expected path even though the file is
	// absent, so the next successful run fills it in.
	MissingAudioKeep MissingAudioPolicy = "keep"
	// MissingAudioOmit leaves audio_file out for that item.
	MissingAudioOmit MissingAudioPolicy = "omit"
)

// ParseMissingAudioPolicy accepts "keep", "omit" or "" (keep).
func ParseMissingAudioPolicy(s string) (MissingAudioPolicy, error) {
	switch MissingAudioPolicy(s) {
	case "", MissingAudioKeep:
		return MissingAudioKeep, nil
	case MissingAudioOmit:
		return MissingAudioOmit, nil
	default:
		return "", fmt.Errorf("unknown missing audio policy %q (want keep or omit)", s)
	}
}

const (
	DefaultAudioDir     = "audio"
	DefaultManifestPath = "data/master_content.json"
)

// Options wires the collaborators of a Pipeline.
type Options struct {
	Bridge Transliterator
	Synth  Synthesizer
	Writer ManifestWriter

	// AudioDir is relative to the asset root and uses '/'.
	AudioDir string
	// ManifestPath is relative to the asset root unless absolute.
	ManifestPath string
	// Language is the code passed to the synthesizer, e.g. "ta".
	Language string
	// Workers bounds parallel transliteration calls; <= 1 is sequential.
	Workers      int
	MissingAudio MissingAudioPolicy

	// Normalize defaults to normalize.Normalize.
	Normalize func(string) string
	Log       *zap.SugaredLogger
}

// Pipeline runs a compilation. Construct one per run configuration.
type Pipeline struct {
	opts Options
	log  *zap.SugaredLogger
}

// New checks opts and fills in defaults.
func New(opts Options) (*Pipeline, error) {
	if opts.Bridge == nil {
		return nil, errors.New("transliteration bridge is required")
	}
	if opts.Synth == nil {
		return nil, errors.New("audio synthesizer is required")
	}
	if opts.Writer == nil {
		opts.Writer = bundle.NewWriter()
	}
	if opts.AudioDir == "" {
		opts.AudioDir = DefaultAudioDir
	}
	if path.IsAbs(filepath.ToSlash(opts.AudioDir)) {
		return nil, fmt.Errorf("audio directory %q must be relative to the asset root", opts.AudioDir)
	}
	opts.AudioDir = path.Clean(filepath.ToSlash(opts.AudioDir))
	if opts.ManifestPath == "" {
		opts.ManifestPath = DefaultManifestPath
	}
	if opts.Language == "" {
		return nil, errors.New("synthesis language is required")
	}
	policy, err := ParseMissingAudioPolicy(string(opts.MissingAudio))
	if err != nil {
		return nil, err
	}
	opts.MissingAudio = policy
	if opts.Normalize == nil {
		opts.Normalize = normalize.Normalize
	}

	log := opts.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Pipeline{opts: opts, log: log}, nil
}

// job is one item together with its derived values, kept in input order.
type job struct {
	level         int // index into def.Levels
	item          curriculum.Item
	text          string
	pronunciation string
	audioFile     string
}

// Run compiles def into assetsRoot. It returns a *curriculum.ValidationError
// before any backend call if def is invalid, ErrLocked if another run holds
// the asset root, and a *bundle.StorageError if the manifest cannot be
// written. A cancelled ctx aborts the run without touching the manifest.
func (p *Pipeline) Run(ctx context.Context, def *curriculum.Definition, assetsRoot string) (*RunReport, error) {
	start := time.Now()

	if err := curriculum.Validate(def, p.opts.Normalize); err != nil {
		return nil, err
	}

	lock, err := acquireLock(assetsRoot)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			p.log.Warnw("failed to release asset root lock", "error", err)
		}
	}()

	manifestPath := p.opts.ManifestPath
	if !filepath.IsAbs(manifestPath) {
		manifestPath = filepath.Join(assetsRoot, filepath.FromSlash(manifestPath))
	}
	p.sweepTemps(filepath.Join(assetsRoot, filepath.FromSlash(p.opts.AudioDir)), filepath.Dir(manifestPath))

	jobs := p.jobs(def)
	report := &RunReport{ItemsProcessed: len(jobs)}
	p.log.Infow("compiling curriculum", "levels", len(def.Levels), "items", len(jobs), "assets_root", assetsRoot)

	if err := p.transliterateAll(ctx, def, jobs, report); err != nil {
		return nil, err
	}
	if err := p.synthesizeAll(ctx, def, jobs, assetsRoot, report); err != nil {
		return nil, err
	}

	if err := p.opts.Writer.Write(assemble(def, jobs), manifestPath); err != nil {
		return nil, err
	}

	report.ManifestPath = manifestPath
	report.Nondeterministic = p.opts.Bridge.Nondeterministic()
	report.Duration = time.Since(start)
	p.log.Infow("curriculum compiled",
		"items", report.ItemsProcessed,
		"synthesized", report.AudioSynthesized,
		"cached", report.AudioSkipped,
		"audio_failed", report.AudioFailed,
		"transliteration_failed", report.TransliterationFailed,
		"manifest", manifestPath)
	return report, nil
}

// sweepTemps removes temp files an interrupted run left behind. It must only
// be called while holding the asset root lock.
func (p *Pipeline) sweepTemps(dirs ...string) {
	for _, dir := range dirs {
		n, err := internal.RemoveStaleTemps(dir)
		if err != nil {
			p.log.Warnw("failed to remove stale temp files", "dir", dir, "error", err)
			continue
		}
		if n > 0 {
			p.log.Debugw("removed stale temp files", "dir", dir, "count", n)
		}
	}
}

func (p *Pipeline) jobs(def *curriculum.Definition) []job {
	jobs := make([]job, 0, def.ItemCount())
	for li, lvl := range def.Levels {
		for _, item := range lvl.Items {
			jobs = append(jobs, job{level: li, item: item, text: p.opts.Normalize(item.TargetText)})
		}
	}
	return jobs
}

// transliterateAll fills in pronunciations. Results are stored by index so
// that parallel execution cannot reorder them.
func (p *Pipeline) transliterateAll(ctx context.Context, def *curriculum.Definition, jobs []job, report *RunReport) error {
	errs := make([]error, len(jobs))

	if p.opts.Workers <= 1 {
		for i := range jobs {
			if err := ctx.Err(); err != nil {
				return err
			}
			jobs[i].pronunciation, errs[i] = p.opts.Bridge.Transliterate(ctx, jobs[i].text)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.opts.Workers)
		for i := range jobs {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				jobs[i].pronunciation, errs[i] = p.opts.Bridge.Transliterate(gctx, jobs[i].text)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	for i, err := range errs {
		if err != nil {
			jobs[i].pronunciation = ""
			report.TransliterationFailed++
			p.degrade(report, def, jobs[i], StageTransliterate, err)
		}
	}
	return nil
}

func (p *Pipeline) synthesizeAll(ctx context.Context, def *curriculum.Definition, jobs []job, assetsRoot string, report *RunReport) error {
	ext := p.opts.Synth.Extension()

	for i := range jobs {
		if err := ctx.Err(); err != nil {
			return err
		}

		rel := path.Join(p.opts.AudioDir, jobs[i].item.ID+"."+ext)
		target := filepath.Join(assetsRoot, filepath.FromSlash(rel))
		jobs[i].audioFile = rel

		outcome, err := p.opts.Synth.Synthesize(ctx, jobs[i].text, p.opts.Language, target)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}

		switch outcome {
		case audio.Skipped:
			report.AudioSkipped++
		case audio.Synthesized:
			report.AudioSynthesized++
		default:
			if err == nil {
				err = errors.New("synthesis failed")
			}
			report.AudioFailed++
			p.degrade(report, def, jobs[i], StageSynthesize, err)
			if p.opts.MissingAudio == MissingAudioOmit {
				jobs[i].audioFile = ""
			}
		}
	}
	return nil
}

func (p *Pipeline) degrade(report *RunReport, def *curriculum.Definition, j job, stage Stage, err error) {
	order := def.Levels[j.level].Order
	report.Failures = append(report.Failures, ItemFailure{ItemID: j.item.ID, Level: order, Stage: stage, Err: err})
	p.log.Warnw("item degraded", "item", j.item.ID, "level", order, "stage", string(stage), "error", err)
}

func assemble(def *curriculum.Definition, jobs []job) []bundle.LevelBundle {
	levels := make([]bundle.LevelBundle, len(def.Levels))
	for li, lvl := range def.Levels {
		levels[li] = bundle.LevelBundle{
			Level:       lvl.Order,
			Title:       lvl.Topic,
			Description: lvl.Description,
			Words:       make([]bundle.WordAsset, 0, len(lvl.Items)),
		}
	}
	for _, j := range jobs {
		levels[j.level].Words = append(levels[j.level].Words, bundle.WordAsset{
			NativeMeaning: j.item.NativeMeaning,
			TargetText:    j.text,
			Pronunciation: j.pronunciation,
			AudioFile:     j.audioFile,
		})
	}
	return levels
}
