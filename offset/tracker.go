// Package offset tracks per-partition consumption state: the highest offset
// buffered locally and the offset this process last believed was committed
// for the consumer group.
package offset

import (
	"sync"

	"github.com/hugolhafner/go-coldstore/kafka"
)

type entry struct {
	lastSeenOffset       int64
	committedOffsetCount int64
}

// Tracker is shared, process-wide state. Ingestion advances lastSeenOffset;
// the uploader reads it and rewrites committedOffsetCount. Every operation
// is atomic on its own; callers must treat reads as snapshots.
type Tracker struct {
	mu      sync.Mutex
	entries map[kafka.TopicPartition]*entry
}

func NewTracker() *Tracker {
	return &Tracker{
		entries: make(map[kafka.TopicPartition]*entry),
	}
}

func (t *Tracker) get(tp kafka.TopicPartition) *entry {
	e, ok := t.entries[tp]
	if !ok {
		e = &entry{lastSeenOffset: -1}
		t.entries[tp] = e
	}
	return e
}

// SetLastSeenOffset records that offset has been durably buffered locally.
// Offsets only move forward; a stale value is ignored.
func (t *Tracker) SetLastSeenOffset(tp kafka.TopicPartition, offset int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.get(tp)
	if offset > e.lastSeenOffset {
		e.lastSeenOffset = offset
	}
}

func (t *Tracker) GetLastSeenOffset(tp kafka.TopicPartition) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.get(tp).lastSeenOffset
}

// SetCommittedOffsetCount replaces the tracked commit position and returns
// the previous value in the same atomic step.
func (t *Tracker) SetCommittedOffsetCount(tp kafka.TopicPartition, offset int64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.get(tp)
	prev := e.committedOffsetCount
	e.committedOffsetCount = offset
	return prev
}

func (t *Tracker) GetCommittedOffsetCount(tp kafka.TopicPartition) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.get(tp).committedOffsetCount
}

// Delete drops all tracked state for tp, used when a partition is fully
// drained or revoked.
func (t *Tracker) Delete(tp kafka.TopicPartition) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, tp)
}
