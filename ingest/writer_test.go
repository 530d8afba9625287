//go:build unit

package ingest

import (
	"testing"

	"github.com/hugolhafner/go-coldstore/format"
	"github.com/hugolhafner/go-coldstore/kafka"
	"github.com/hugolhafner/go-coldstore/offset"
	"github.com/hugolhafner/go-coldstore/registry"
	"github.com/stretchr/testify/require"
)

var writerTP = kafka.TopicPartition{Topic: "events", Partition: 3}

func record(offset int64, value string) kafka.ConsumerRecord {
	return kafka.ConsumerRecord{
		Topic:     writerTP.Topic,
		Partition: writerTP.Partition,
		Offset:    offset,
		Value:     []byte(value),
	}
}

func TestMessageWriter_AppendsToSingleFile(t *testing.T) {
	files := registry.New(t.TempDir())
	tracker := offset.NewTracker()
	w := newMessageWriter(files, tracker, format.None, 1, 0)

	for o := int64(100); o < 110; o++ {
		require.NoError(t, w.write(record(o, "payload")))
	}

	paths := files.Paths(writerTP)
	require.Len(t, paths, 1)
	require.EqualValues(t, 100, paths[0].StartOffset)
	require.EqualValues(t, 109, tracker.GetLastSeenOffset(writerTP))
}

func TestMessageWriter_RollsAtSizeThreshold(t *testing.T) {
	files := registry.New(t.TempDir())
	tracker := offset.NewTracker()
	// Every record exceeds the roll threshold, so each lands in its own file.
	w := newMessageWriter(files, tracker, format.None, 1, 1)

	require.NoError(t, w.write(record(100, "payload")))
	require.NoError(t, w.write(record(101, "payload")))
	require.NoError(t, w.write(record(102, "payload")))

	paths := files.Paths(writerTP)
	require.Len(t, paths, 3)
	require.EqualValues(t, 100, paths[0].StartOffset)
	require.EqualValues(t, 101, paths[1].StartOffset)
	require.EqualValues(t, 102, paths[2].StartOffset)
}

func TestMessageWriter_StartsFreshFileAfterDrain(t *testing.T) {
	files := registry.New(t.TempDir())
	tracker := offset.NewTracker()
	w := newMessageWriter(files, tracker, format.None, 1, 0)

	require.NoError(t, w.write(record(100, "payload")))
	require.NoError(t, files.DeleteTopicPartition(writerTP))

	require.NoError(t, w.write(record(101, "payload")))

	paths := files.Paths(writerTP)
	require.Len(t, paths, 1)
	require.EqualValues(t, 101, paths[0].StartOffset)
}

func TestMessageWriter_ForgetStartsNewFile(t *testing.T) {
	files := registry.New(t.TempDir())
	tracker := offset.NewTracker()
	w := newMessageWriter(files, tracker, format.None, 1, 0)

	require.NoError(t, w.write(record(100, "payload")))
	w.forget(writerTP)
	require.NoError(t, w.write(record(101, "payload")))

	paths := files.Paths(writerTP)
	require.Len(t, paths, 2)
	require.EqualValues(t, 100, paths[0].StartOffset)
	require.EqualValues(t, 101, paths[1].StartOffset)
}

func TestMessageWriter_CodecSetsExtension(t *testing.T) {
	files := registry.New(t.TempDir())
	tracker := offset.NewTracker()
	w := newMessageWriter(files, tracker, format.Gzip, 2, 0)

	require.NoError(t, w.write(record(100, "payload")))

	paths := files.Paths(writerTP)
	require.Len(t, paths, 1)
	require.Equal(t, format.Gzip.Extension(), paths[0].Extension)
	require.Equal(t, 2, paths[0].Generation)
}

func TestMessageWriter_RollsWhenWriterFlushed(t *testing.T) {
	files := registry.New(t.TempDir())
	tracker := offset.NewTracker()
	w := newMessageWriter(files, tracker, format.None, 1, 0)

	require.NoError(t, w.write(record(100, "payload")))
	// The uploader flushed the file and may be uploading it right now; the
	// next append must not reopen it.
	require.NoError(t, files.DeleteWriters(writerTP))
	require.NoError(t, w.write(record(101, "payload")))

	paths := files.Paths(writerTP)
	require.Len(t, paths, 2)
	require.EqualValues(t, 100, paths[0].StartOffset)
	require.EqualValues(t, 101, paths[1].StartOffset)

	// The flushed file kept its records.
	r, err := format.NewReader(files.AbsolutePath(paths[0]), format.None)
	require.NoError(t, err)
	defer r.Close()
	rec, err := r.Next()
	require.NoError(t, err)
	require.EqualValues(t, 100, rec.Offset)
}
