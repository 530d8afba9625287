// Package registry tracks the locally buffered files of every partition:
// which files exist, which have open writers, and the per-partition size and
// age aggregates the upload policy gates on.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hugolhafner/go-coldstore/format"
	"github.com/hugolhafner/go-coldstore/kafka"
	"github.com/hugolhafner/go-coldstore/logger"
)

// Registry is shared, process-wide state. Ingestion creates writers,
// rebalance callbacks purge revoked partitions, and the uploader enumerates,
// trims and deletes, all concurrently. Every method is atomic on its own; no
// lock is held across uploads.
type Registry struct {
	baseDir string
	logger  logger.Logger
	now     func() time.Time

	mu      sync.Mutex
	writers map[LogPath]*format.Writer
	sizes   map[LogPath]int64
	paths   map[kafka.TopicPartition]map[LogPath]struct{}
	oldest  map[kafka.TopicPartition]time.Time
}

type Option func(*Registry)

func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

func New(baseDir string, opts ...Option) *Registry {
	r := &Registry{
		baseDir: baseDir,
		logger:  logger.NewNoopLogger(),
		now:     time.Now,
		writers: make(map[LogPath]*format.Writer),
		sizes:   make(map[LogPath]int64),
		paths:   make(map[kafka.TopicPartition]map[LogPath]struct{}),
		oldest:  make(map[kafka.TopicPartition]time.Time),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// AbsolutePath returns the on-disk location for p.
func (r *Registry) AbsolutePath(p LogPath) string {
	return filepath.Join(r.baseDir, p.Relative())
}

// GetOrCreateWriter returns the open writer for p, creating the file and its
// parent directories on first use.
func (r *Registry) GetOrCreateWriter(p LogPath, codec format.Codec) (*format.Writer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.writers[p]; ok {
		return w, nil
	}

	// A path whose writer was closed is frozen until uploaded or deleted;
	// reopening it would truncate records already slated for upload.
	if _, ok := r.sizes[p]; ok {
		return nil, fmt.Errorf("%s is already flushed", p.Relative())
	}

	abs := r.AbsolutePath(p)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("create partition dir: %w", err)
	}

	w, err := format.NewWriter(abs, codec)
	if err != nil {
		return nil, err
	}

	tp := p.TopicPartition()
	if _, ok := r.paths[tp]; !ok {
		r.paths[tp] = make(map[LogPath]struct{})
	}
	r.paths[tp][p] = struct{}{}
	r.writers[p] = w
	if _, ok := r.oldest[tp]; !ok {
		r.oldest[tp] = r.now()
	}

	r.logger.Debug("created writer", "path", p.Relative())
	return w, nil
}

// Paths enumerates the buffered files of tp ordered by starting offset.
func (r *Registry) Paths(tp kafka.TopicPartition) []LogPath {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]LogPath, 0, len(r.paths[tp]))
	for p := range r.paths[tp] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartOffset < out[j].StartOffset
	})
	return out
}

// HasPath reports whether p is still part of its partition's buffered set.
func (r *Registry) HasPath(p LogPath) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.paths[p.TopicPartition()][p]
	return ok
}

// HasWriter reports whether p has an open writer.
func (r *Registry) HasWriter(p LogPath) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.writers[p]
	return ok
}

// TopicPartitions lists every partition with buffered state.
func (r *Registry) TopicPartitions() []kafka.TopicPartition {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]kafka.TopicPartition, 0, len(r.paths))
	for tp := range r.paths {
		out = append(out, tp)
	}
	return out
}

// Size returns the aggregate buffered bytes for tp.
func (r *Registry) Size(tp kafka.TopicPartition) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total int64
	for p := range r.paths[tp] {
		if w, ok := r.writers[p]; ok {
			total += w.Size()
		} else {
			total += r.sizes[p]
		}
	}
	return total
}

// ModificationAgeSec returns the age in seconds of the oldest buffered data
// for tp, zero when nothing is buffered.
func (r *Registry) ModificationAgeSec(tp kafka.TopicPartition) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	created, ok := r.oldest[tp]
	if !ok {
		return 0
	}
	return int64(r.now().Sub(created).Seconds())
}

// DeleteWriters closes every open writer of tp, flushing pending records to
// local media. The files themselves are kept.
func (r *Registry) DeleteWriters(tp kafka.TopicPartition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for p := range r.paths[tp] {
		if err := r.closeWriterLocked(p); err != nil {
			return err
		}
	}
	return nil
}

// DeleteWriter closes the single writer for p, if one is open.
func (r *Registry) DeleteWriter(p LogPath) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeWriterLocked(p)
}

func (r *Registry) closeWriterLocked(p LogPath) error {
	w, ok := r.writers[p]
	if !ok {
		return nil
	}

	size := w.Size()
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", p.Relative(), err)
	}
	r.sizes[p] = size
	delete(r.writers, p)
	return nil
}

// DeletePath closes any open writer for p, removes the file and drops the
// path from the partition's buffered set.
func (r *Registry) DeletePath(p LogPath) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deletePathLocked(p)
}

func (r *Registry) deletePathLocked(p LogPath) error {
	if err := r.closeWriterLocked(p); err != nil {
		return err
	}

	if err := os.Remove(r.AbsolutePath(p)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", p.Relative(), err)
	}

	tp := p.TopicPartition()
	delete(r.sizes, p)
	if set, ok := r.paths[tp]; ok {
		delete(set, p)
		if len(set) == 0 {
			delete(r.paths, tp)
			delete(r.oldest, tp)
		}
	}
	return nil
}

// DeleteTopicPartition removes all buffered state for tp, files included.
func (r *Registry) DeleteTopicPartition(tp kafka.TopicPartition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for p := range r.paths[tp] {
		if err := r.deletePathLocked(p); err != nil {
			return err
		}
	}

	r.logger.Debug("deleted topic partition", "topic", tp.Topic, "partition", tp.Partition)
	return nil
}
