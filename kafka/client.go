package kafka

import (
	"context"
)

// Consumer is the group-coordinated commit-log surface the archiver consumes.
//
// Committed reports the offset currently committed for the consumer group,
// which may have been advanced by another group member after a rebalance.
// CommitSync is synchronous and all-or-nothing for the single partition
// submitted.
type Consumer interface {
	Subscribe(topics []string, rebalanceCb RebalanceCallback) error
	Poll(ctx context.Context) ([]ConsumerRecord, error)
	Committed(ctx context.Context, tp TopicPartition) (int64, error)
	CommitSync(ctx context.Context, tp TopicPartition, offset int64) error
	Close()
}

type RebalanceCallback interface {
	OnAssigned(partitions []TopicPartition)
	OnRevoked(partitions []TopicPartition)
}
