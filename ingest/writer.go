package ingest

import (
	"fmt"

	"github.com/hugolhafner/go-coldstore/format"
	"github.com/hugolhafner/go-coldstore/kafka"
	"github.com/hugolhafner/go-coldstore/offset"
	"github.com/hugolhafner/go-coldstore/registry"
)

// messageWriter appends consumed records to the partition's current buffered
// file, starting a new file whenever the uploader has drained the previous
// one or the current file has grown past the roll threshold.
type messageWriter struct {
	files      *registry.Registry
	tracker    *offset.Tracker
	codec      format.Codec
	generation int
	rollBytes  int64

	current map[kafka.TopicPartition]registry.LogPath
}

func newMessageWriter(files *registry.Registry, tracker *offset.Tracker, codec format.Codec, generation int, rollBytes int64) *messageWriter {
	return &messageWriter{
		files:      files,
		tracker:    tracker,
		codec:      codec,
		generation: generation,
		rollBytes:  rollBytes,
		current:    make(map[kafka.TopicPartition]registry.LogPath),
	}
}

func (m *messageWriter) write(rec kafka.ConsumerRecord) error {
	tp := rec.TopicPartition()

	p, ok := m.current[tp]
	if ok && !m.files.HasWriter(p) {
		// The uploader flushed, trimmed or deleted the file since the last
		// append. The flushed file may be mid-upload; reopening it would
		// truncate records already slated for upload, so start a new file.
		ok = false
		delete(m.current, tp)
	}

	if !ok {
		p = registry.LogPath{
			Topic:       tp.Topic,
			Partition:   tp.Partition,
			Generation:  m.generation,
			StartOffset: rec.Offset,
			Extension:   m.codec.Extension(),
		}
		m.current[tp] = p
	}

	w, err := m.files.GetOrCreateWriter(p, m.codec)
	if err != nil {
		return fmt.Errorf("writer for %v: %w", tp, err)
	}

	if err := w.Append(format.Record{Offset: rec.Offset, Key: rec.Key, Value: rec.Value}); err != nil {
		return fmt.Errorf("append offset %d to %s: %w", rec.Offset, p.Relative(), err)
	}

	m.tracker.SetLastSeenOffset(tp, rec.Offset)

	if m.rollBytes > 0 && w.Size() >= m.rollBytes {
		delete(m.current, tp)
	}

	return nil
}

func (m *messageWriter) forget(tp kafka.TopicPartition) {
	delete(m.current, tp)
}
