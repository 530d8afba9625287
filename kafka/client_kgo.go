package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hugolhafner/go-coldstore/logger"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

var _ Consumer = (*KgoClient)(nil)

type KgoClientConfig struct {
	BootstrapServers  []string
	GroupID           string
	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration
	Logger            logger.Logger
}

func defaultConfig() KgoClientConfig {
	return KgoClientConfig{
		BootstrapServers:  []string{"localhost:9092"},
		GroupID:           "coldstore",
		SessionTimeout:    30 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		Logger:            logger.NewNoopLogger(),
	}
}

type KgoOption func(*KgoClientConfig)

func WithBootstrapServers(servers []string) KgoOption {
	return func(cfg *KgoClientConfig) {
		cfg.BootstrapServers = servers
	}
}

func WithGroupID(id string) KgoOption {
	return func(cfg *KgoClientConfig) {
		cfg.GroupID = id
	}
}

func WithLogger(l logger.Logger) KgoOption {
	return func(cfg *KgoClientConfig) {
		cfg.Logger = l
	}
}

type KgoClient struct {
	client *kgo.Client
	admin  *kadm.Client
	config KgoClientConfig

	mu          sync.RWMutex
	subscribed  bool
	rebalanceCb RebalanceCallback
	topics      []string
}

func NewKgoClient(opts ...KgoOption) (*KgoClient, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	kc := &KgoClient{config: cfg}

	kgoOpts := []kgo.Opt{
		kgo.SeedBrokers(cfg.BootstrapServers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.SessionTimeout(cfg.SessionTimeout),
		kgo.HeartbeatInterval(cfg.HeartbeatInterval),
		kgo.DisableAutoCommit(),
		kgo.OnPartitionsAssigned(kc.onAssigned),
		kgo.OnPartitionsRevoked(kc.onRevoked),
		kgo.WithLogger(newKgoLogger(cfg.Logger)),
	}

	client, err := kgo.NewClient(kgoOpts...)
	if err != nil {
		return nil, fmt.Errorf("create kgo client: %w", err)
	}

	kc.client = client
	kc.admin = kadm.NewClient(client)

	return kc, nil
}

func (k *KgoClient) onAssigned(ctx context.Context, c *kgo.Client, assigned map[string][]int32) {
	k.mu.RLock()
	cb := k.rebalanceCb
	k.mu.RUnlock()

	if cb == nil {
		return
	}

	cb.OnAssigned(mapToTopicPartitions(assigned))
}

func (k *KgoClient) onRevoked(ctx context.Context, c *kgo.Client, revoked map[string][]int32) {
	k.mu.RLock()
	cb := k.rebalanceCb
	k.mu.RUnlock()

	if cb == nil {
		return
	}

	cb.OnRevoked(mapToTopicPartitions(revoked))
}

func (k *KgoClient) Subscribe(topics []string, rebalanceCb RebalanceCallback) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.subscribed {
		return fmt.Errorf("already subscribed")
	}

	k.rebalanceCb = rebalanceCb
	k.topics = topics
	k.client.AddConsumeTopics(topics...)
	k.subscribed = true

	return nil
}

func (k *KgoClient) Poll(ctx context.Context) ([]ConsumerRecord, error) {
	fetches := k.client.PollFetches(ctx)
	if errs := fetches.Errors(); len(errs) > 0 {
		for _, err := range errs {
			if !errors.Is(err.Err, context.DeadlineExceeded) && !errors.Is(err.Err, context.Canceled) {
				return nil, fmt.Errorf("poll: %w", err.Err)
			}
		}
	}

	return convertRecords(fetches.Records()), nil
}

// Committed fetches the group's committed offset for tp from the broker.
// Returns an error when the group has no committed offset for tp.
func (k *KgoClient) Committed(ctx context.Context, tp TopicPartition) (int64, error) {
	resp, err := k.admin.FetchOffsets(ctx, k.config.GroupID)
	if err != nil {
		return 0, fmt.Errorf("fetch committed offsets: %w", err)
	}

	offset, ok := resp.Lookup(tp.Topic, tp.Partition)
	if !ok {
		return 0, fmt.Errorf("no committed offset for %v", tp)
	}
	if offset.Err != nil {
		return 0, fmt.Errorf("fetch committed offset for %v: %w", tp, offset.Err)
	}
	if offset.At < 0 {
		return 0, fmt.Errorf("group has not committed %v", tp)
	}

	return offset.At, nil
}

func (k *KgoClient) CommitSync(ctx context.Context, tp TopicPartition, offset int64) error {
	toCommit := map[string]map[int32]kgo.EpochOffset{
		tp.Topic: {
			tp.Partition: {Offset: offset, Epoch: -1},
		},
	}

	var commitErr error
	done := make(chan struct{})
	onDone := func(_ *kgo.Client, _ *kmsg.OffsetCommitRequest, resp *kmsg.OffsetCommitResponse, err error) {
		defer close(done)

		if err != nil {
			commitErr = err
			return
		}

		for _, t := range resp.Topics {
			for _, p := range t.Partitions {
				if pErr := kerr.ErrorForCode(p.ErrorCode); pErr != nil {
					commitErr = pErr
					return
				}
			}
		}
	}

	k.client.CommitOffsetsSync(ctx, toCommit, onDone)
	<-done

	if commitErr != nil {
		return fmt.Errorf("commit offset %d for %v: %w", offset, tp, commitErr)
	}

	return nil
}

func (k *KgoClient) Close() {
	k.client.Close()
}

func convertRecords(records []*kgo.Record) []ConsumerRecord {
	converted := make([]ConsumerRecord, len(records))
	for i, r := range records {
		converted[i] = ConsumerRecord{
			Topic:       r.Topic,
			Partition:   r.Partition,
			Offset:      r.Offset,
			Key:         r.Key,
			Value:       r.Value,
			Headers:     convertFromKgoHeaders(r.Headers),
			Timestamp:   r.Timestamp,
			LeaderEpoch: r.LeaderEpoch,
		}
	}

	return converted
}

func convertFromKgoHeaders(headers []kgo.RecordHeader) []Header {
	converted := make([]Header, len(headers))
	for i, h := range headers {
		converted[i] = Header{Key: h.Key, Value: h.Value}
	}

	return converted
}

func mapToTopicPartitions(m map[string][]int32) []TopicPartition {
	var tps []TopicPartition
	for topic, partitions := range m {
		for _, partition := range partitions {
			tps = append(tps, TopicPartition{
				Topic:     topic,
				Partition: partition,
			})
		}
	}

	return tps
}
