package mockupload

import (
	"context"
	"sync"
	"testing"

	"github.com/hugolhafner/go-coldstore/registry"
	"github.com/hugolhafner/go-coldstore/upload"
)

var _ upload.Transport = (*Transport)(nil)

// Transport records every upload and lets tests inject per-path failures.
// Handles resolve immediately.
type Transport struct {
	mu       sync.Mutex
	uploaded []registry.LogPath
	failFn   func(p registry.LogPath) error
}

type Option func(*Transport)

// WithFailure configures an error to be returned for paths selected by fn.
func WithFailure(fn func(p registry.LogPath) error) Option {
	return func(t *Transport) {
		t.failFn = fn
	}
}

// WithFailureForAll configures every upload to fail with err.
func WithFailureForAll(err error) Option {
	return func(t *Transport) {
		t.failFn = func(registry.LogPath) error { return err }
	}
}

func New(opts ...Option) *Transport {
	t := &Transport{}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type resolvedHandle struct {
	err error
}

func (h resolvedHandle) Get() error {
	return h.err
}

func (t *Transport) Upload(ctx context.Context, p registry.LogPath) upload.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.failFn != nil {
		if err := t.failFn(p); err != nil {
			return resolvedHandle{err: err}
		}
	}

	t.uploaded = append(t.uploaded, p)
	return resolvedHandle{}
}

// Uploaded returns the successfully uploaded paths in call order.
func (t *Transport) Uploaded() []registry.LogPath {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]registry.LogPath, len(t.uploaded))
	copy(out, t.uploaded)
	return out
}

// AssertUploadedCount fails the test unless exactly n uploads succeeded.
func (t *Transport) AssertUploadedCount(tb testing.TB, n int) {
	tb.Helper()

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.uploaded) != n {
		tb.Errorf("expected %d uploads, got %d", n, len(t.uploaded))
	}
}

// AssertNothingUploaded fails the test if any upload succeeded.
func (t *Transport) AssertNothingUploaded(tb testing.TB) {
	tb.Helper()
	t.AssertUploadedCount(tb, 0)
}
