// Package ingest consumes records from the source log into local buffered
// files and drives the upload policy at a fixed cadence.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/hugolhafner/go-coldstore/kafka"
	"github.com/hugolhafner/go-coldstore/offset"
	"github.com/hugolhafner/go-coldstore/registry"
)

var _ kafka.RebalanceCallback = (*Ingestor)(nil)

const idlePollDelay = 100 * time.Millisecond

// Ingestor polls the consumer and appends every record to the registry,
// advancing the tracker's last seen offset as it goes. It also serves as the
// consumer's rebalance callback: buffered state for revoked partitions is
// purged, since their new owner will re-consume from the committed position.
type Ingestor struct {
	consumer kafka.Consumer
	tracker  *offset.Tracker
	files    *registry.Registry
	topics   []string
	writer   *messageWriter
	config   Config
}

func NewIngestor(
	consumer kafka.Consumer,
	tracker *offset.Tracker,
	files *registry.Registry,
	topics []string,
	opts ...Option,
) *Ingestor {
	cfg := defaultIngestConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Ingestor{
		consumer: consumer,
		tracker:  tracker,
		files:    files,
		topics:   topics,
		writer:   newMessageWriter(files, tracker, cfg.Codec, cfg.Generation, cfg.RollSizeBytes),
		config:   cfg,
	}
}

// Run consumes until ctx is cancelled. Poll errors are retried with backoff;
// local write errors are fatal, because losing buffered records would break
// the at-least-once contract.
func (i *Ingestor) Run(ctx context.Context) error {
	if err := i.consumer.Subscribe(i.topics, i); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	attempt := uint(0)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		records, err := i.consumer.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			i.config.Logger.Warn("poll failed, backing off", "error", err, "attempt", attempt)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(i.config.PollErrorBackoff.Next(attempt)):
			}
			attempt++
			continue
		}
		attempt = 0

		// Poll implementations are not required to block; an empty poll
		// yields instead of spinning.
		if len(records) == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(idlePollDelay):
			}
			continue
		}

		for _, rec := range records {
			if err := i.writer.write(rec); err != nil {
				return fmt.Errorf("buffer record: %w", err)
			}
		}
	}
}

func (i *Ingestor) OnAssigned(partitions []kafka.TopicPartition) {
	for _, tp := range partitions {
		i.config.Logger.Info("partition assigned", "topic", tp.Topic, "partition", tp.Partition)
	}
}

func (i *Ingestor) OnRevoked(partitions []kafka.TopicPartition) {
	for _, tp := range partitions {
		i.config.Logger.Info("partition revoked, purging local state",
			"topic", tp.Topic, "partition", tp.Partition)

		i.writer.forget(tp)
		if err := i.files.DeleteTopicPartition(tp); err != nil {
			i.config.Logger.Error("failed to purge revoked partition",
				"topic", tp.Topic, "partition", tp.Partition, "error", err)
		}
		i.tracker.Delete(tp)
	}
}
