// Package uploader decides, per partition, whether locally buffered files
// should be uploaded to remote storage, trimmed, or discarded. The decision
// reconciles three independently evolving offsets: the highest offset
// buffered locally, the commit position this process last observed, and the
// position currently committed in the consumer group.
package uploader

import (
	"context"
	"errors"
	"fmt"

	"github.com/hugolhafner/go-coldstore/kafka"
	"github.com/hugolhafner/go-coldstore/offset"
	"github.com/hugolhafner/go-coldstore/otel"
	"github.com/hugolhafner/go-coldstore/registry"
	"github.com/hugolhafner/go-coldstore/upload"
	"go.opentelemetry.io/otel/metric"
)

// Policy is the entry point the scheduler drives once per cycle.
type Policy interface {
	ApplyPolicy(ctx context.Context) error
}

var _ Policy = (*Uploader)(nil)

// Uploader is the default Policy. The upload and trim operations are held as
// function fields so alternate strategies can replace either one without
// reimplementing the reconciliation itself.
type Uploader struct {
	config    Config
	tracker   *offset.Tracker
	files     *registry.Registry
	transport upload.Transport
	consumer  kafka.Consumer

	uploadFn func(ctx context.Context, tp kafka.TopicPartition) error
	trimFn   func(ctx context.Context, tp kafka.TopicPartition, boundary int64) error
}

func New(
	tracker *offset.Tracker,
	files *registry.Registry,
	transport upload.Transport,
	consumer kafka.Consumer,
	opts ...Option,
) *Uploader {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	u := &Uploader{
		config:    cfg,
		tracker:   tracker,
		files:     files,
		transport: transport,
		consumer:  consumer,
	}
	u.uploadFn = u.UploadFiles
	u.trimFn = u.TrimFiles

	return u
}

// WithUploadFunc substitutes the upload operation.
func (u *Uploader) WithUploadFunc(fn func(ctx context.Context, tp kafka.TopicPartition) error) *Uploader {
	u.uploadFn = fn
	return u
}

// WithTrimFunc substitutes the trim operation.
func (u *Uploader) WithTrimFunc(fn func(ctx context.Context, tp kafka.TopicPartition, boundary int64) error) *Uploader {
	u.trimFn = fn
	return u
}

// ApplyPolicy runs one reconciliation cycle over every partition with
// buffered state. Failures are partition-scoped: remaining partitions are
// still processed and the collected errors surfaced together.
func (u *Uploader) ApplyPolicy(ctx context.Context) error {
	var errs []error
	for _, tp := range u.files.TopicPartitions() {
		if err := u.checkTopicPartition(ctx, tp); err != nil {
			errs = append(errs, fmt.Errorf("partition %v: %w", tp, err))
		}
	}
	return errors.Join(errs...)
}

// checkTopicPartition gates on buffered volume, age and the minute-mark
// schedule, then reconciles the three offset signals and dispatches the
// single corrective action.
func (u *Uploader) checkTopicPartition(ctx context.Context, tp kafka.TopicPartition) error {
	size := u.files.Size(tp)
	ageSec := u.files.ModificationAgeSec(tp)
	u.config.Logger.Debug("checking partition",
		"topic", tp.Topic, "partition", tp.Partition, "size", size, "ageSec", ageSec)

	if size < u.config.MaxFileSizeBytes &&
		ageSec < int64(u.config.MaxFileAge.Seconds()) &&
		!u.isRequiredToUploadAtTime(tp) {
		return nil
	}

	newOffsetCount, err := u.consumer.Committed(ctx, tp)
	if err != nil {
		// A failed read is treated as position 0 and the cycle proceeds;
		// worst case the partition is trimmed at boundary 0, a full local
		// rewrite rather than data loss.
		u.config.Logger.Warn("error collecting committed offset, keeping default 0 value",
			"topic", tp.Topic, "partition", tp.Partition, "error", err)
		newOffsetCount = 0
	}

	oldOffsetCount := u.tracker.SetCommittedOffsetCount(tp, newOffsetCount)
	lastSeenOffset := u.tracker.GetLastSeenOffset(tp)

	switch {
	case newOffsetCount == oldOffsetCount:
		// Nobody advanced the commit position since the last cycle: the
		// local buffer is the authoritative unflushed tail.
		u.config.Logger.Debug("uploading partition", "topic", tp.Topic, "partition", tp.Partition)
		return u.uploadFn(ctx, tp)

	case newOffsetCount > lastSeenOffset:
		// A rebalance let another process commit beyond everything buffered
		// here. The local files are stale and must not be uploaded.
		u.config.Logger.Debug("committed offset ahead of last seen offset, deleting local files",
			"topic", tp.Topic, "partition", tp.Partition,
			"lastSeenOffset", lastSeenOffset, "committedOffsetCount", newOffsetCount)
		u.config.Telemetry.PartitionsDeleted.Add(ctx, 1, metric.WithAttributes(
			otel.AttrTopic.String(tp.Topic),
		))
		return u.files.DeleteTopicPartition(tp)

	default: // oldOffsetCount < newOffsetCount <= lastSeenOffset
		// A rebalance committed a position behind what is buffered here but
		// ahead of what this process knew. The prefix below that position is
		// already durable elsewhere and must not be re-uploaded.
		u.config.Logger.Debug("committed offset within buffered range, trimming local files",
			"topic", tp.Topic, "partition", tp.Partition,
			"oldOffsetCount", oldOffsetCount, "committedOffsetCount", newOffsetCount,
			"lastSeenOffset", lastSeenOffset)
		return u.trimFn(ctx, tp, newOffsetCount)
	}
}

// isRequiredToUploadAtTime reports whether tp's topic is scheduled for a
// flush at the current minute of the hour.
func (u *Uploader) isRequiredToUploadAtTime(tp kafka.TopicPartition) bool {
	if u.config.UploadAtTopicPattern == nil {
		return false
	}
	if !u.config.UploadAtTopicPattern.MatchString(tp.Topic) {
		return false
	}
	return u.config.Clock().Minute() == u.config.UploadMinuteMark
}

// UploadFiles bulk-commits every buffered file of tp: flush writers, upload
// all files concurrently, wait for every transfer, then delete local state
// and advance the group's commit position. The commit is never attempted
// before all uploads are confirmed.
func (u *Uploader) UploadFiles(ctx context.Context, tp kafka.TopicPartition) error {
	start := u.config.Clock()
	lastSeenOffset := u.tracker.GetLastSeenOffset(tp)
	u.config.Logger.Info("uploading partition", "topic", tp.Topic, "partition", tp.Partition)

	// Closing the writers flushes all pending records to local media;
	// uploading a file still open for writes is forbidden.
	if err := u.files.DeleteWriters(tp); err != nil {
		return fmt.Errorf("flush writers: %w", err)
	}

	paths := u.files.Paths(tp)
	handles := make([]upload.Handle, 0, len(paths))
	for _, p := range paths {
		handles = append(handles, u.transport.Upload(ctx, p))
	}

	// Barrier: every handle must resolve before anything else happens. A
	// failure does not cancel the sibling transfers, but it aborts the
	// cycle for this partition before any commit.
	var uploadErr error
	for _, h := range handles {
		if err := h.Get(); err != nil && uploadErr == nil {
			uploadErr = err
		}
	}
	if uploadErr != nil {
		return fmt.Errorf("upload: %w", uploadErr)
	}

	// Only the snapshotted files are purged; files started while the uploads
	// were in flight belong to the next cycle.
	for _, p := range paths {
		if err := u.files.DeletePath(p); err != nil {
			return fmt.Errorf("delete local files: %w", err)
		}
	}

	if err := u.consumer.CommitSync(ctx, tp, lastSeenOffset+1); err != nil {
		return fmt.Errorf("commit offset: %w", err)
	}
	u.tracker.SetCommittedOffsetCount(tp, lastSeenOffset+1)

	u.config.Telemetry.FilesUploaded.Add(ctx, int64(len(paths)), metric.WithAttributes(
		otel.AttrTopic.String(tp.Topic),
	))
	u.config.Telemetry.UploadDuration.Record(ctx, u.config.Clock().Sub(start).Seconds(), metric.WithAttributes(
		otel.AttrTopic.String(tp.Topic),
	))

	return nil
}
