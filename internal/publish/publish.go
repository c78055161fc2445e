// Package publish uploads a built asset root (manifest plus referenced
// audio) to a Google Cloud Storage bucket.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"codeberg.org/snonux/setu/internal/bundle"
)

// ObjectStore is the destination of an upload.
type ObjectStore interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) error
}

// GCSStore writes objects into one bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore opens a storage client for bucket. Credentials come from the
// environment unless opts say otherwise.
func NewGCSStore(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// Upload streams r to key. A failed read abandons the object instead of
// committing what was written so far.
func (s *GCSStore) Upload(ctx context.Context, key string, r io.Reader, contentType string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, r); err != nil {
		cancel()
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

// Close releases the storage client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// Result lists what an upload did, keyed by object name.
type Result struct {
	Uploaded []string
	Missing  []string // referenced audio that is not on disk, relative to the asset root
}

// Publisher copies an asset root into an ObjectStore.
type Publisher struct {
	store   ObjectStore
	prefix  string
	timeout time.Duration
	log     *zap.SugaredLogger
}

// NewPublisher returns a Publisher that places objects under prefix.
// timeout bounds each upload; zero means no per-object bound.
func NewPublisher(store ObjectStore, prefix string, timeout time.Duration, log *zap.SugaredLogger) *Publisher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Publisher{
		store:   store,
		prefix:  strings.Trim(prefix, "/"),
		timeout: timeout,
		log:     log,
	}
}

// Key maps a path relative to the asset root to its object name.
func (p *Publisher) Key(rel string) string {
	return path.Join(p.prefix, filepath.ToSlash(rel))
}

// Publish uploads every existing audio file the manifest references, then
// the manifest itself. The manifest goes last so a reader never sees it
// ahead of its audio.
func (p *Publisher) Publish(ctx context.Context, assetsRoot, manifestRel string) (*Result, error) {
	manifest, err := bundle.Read(filepath.Join(assetsRoot, manifestRel))
	if err != nil {
		return nil, err
	}

	result := &Result{}
	seen := make(map[string]bool)
	for _, level := range manifest {
		for _, word := range level.Words {
			if word.AudioFile == "" || seen[word.AudioFile] {
				continue
			}
			seen[word.AudioFile] = true

			local := filepath.Join(assetsRoot, filepath.FromSlash(word.AudioFile))
			if _, err := os.Stat(local); errors.Is(err, os.ErrNotExist) {
				p.log.Warnw("Referenced audio missing", "file", word.AudioFile)
				result.Missing = append(result.Missing, word.AudioFile)
				continue
			}
			if err := p.uploadFile(ctx, local, word.AudioFile, result); err != nil {
				return result, err
			}
		}
	}

	if err := p.uploadFile(ctx, filepath.Join(assetsRoot, manifestRel), manifestRel, result); err != nil {
		return result, err
	}
	p.log.Infow("Published assets", "uploaded", len(result.Uploaded), "missing", len(result.Missing))
	return result, nil
}

func (p *Publisher) uploadFile(ctx context.Context, local, rel string, result *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", local, err)
	}
	defer f.Close()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	key := p.Key(rel)
	if err := p.store.Upload(ctx, key, f, contentTypeFor(rel)); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	p.log.Debugw("Uploaded object", "key", key)
	result.Uploaded = append(result.Uploaded, key)
	return nil
}

func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return "application/json; charset=utf-8"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	case ".aac":
		return "audio/aac"
	default:
		return ""
	}
}
