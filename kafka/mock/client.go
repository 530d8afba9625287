package mockkafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/hugolhafner/go-coldstore/kafka"
)

var _ kafka.Consumer = (*Client)(nil)

// Client is an in-memory commit-log client for tests. Committed offsets can
// be preset to simulate commits made by other group members after a
// rebalance.
type Client struct {
	mu sync.RWMutex

	recordQueues   map[kafka.TopicPartition][]kafka.ConsumerRecord
	queuePositions map[kafka.TopicPartition]int

	committedOffsets map[kafka.TopicPartition]int64
	syncCommits      []SyncCommit

	subscriptions      []string
	rebalanceCb        kafka.RebalanceCallback
	assignedPartitions []kafka.TopicPartition

	maxPollRecords int

	committedErr func(tp kafka.TopicPartition) error
	commitErr    func(tp kafka.TopicPartition) error

	closed     bool
	subscribed bool
}

// SyncCommit records one CommitSync call.
type SyncCommit struct {
	Partition kafka.TopicPartition
	Offset    int64
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		recordQueues:     make(map[kafka.TopicPartition][]kafka.ConsumerRecord),
		queuePositions:   make(map[kafka.TopicPartition]int),
		committedOffsets: make(map[kafka.TopicPartition]int64),
		maxPollRecords:   10,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Subscribe registers the client and auto-assigns all partitions that have
// queued records for the subscribed topics.
func (c *Client) Subscribe(topics []string, rebalanceCb kafka.RebalanceCallback) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subscribed {
		return nil // idempotent
	}

	c.subscriptions = topics
	c.rebalanceCb = rebalanceCb
	c.subscribed = true

	var partitions []kafka.TopicPartition
	for tp := range c.recordQueues {
		for _, topic := range topics {
			if tp.Topic == topic {
				partitions = append(partitions, tp)
				break
			}
		}
	}

	if len(partitions) > 0 {
		c.assignedPartitions = partitions
		if rebalanceCb != nil {
			// Unlock during the callback to prevent deadlock
			c.mu.Unlock()
			rebalanceCb.OnAssigned(partitions)
			c.mu.Lock()
		}
	}

	return nil
}

func (c *Client) Poll(ctx context.Context) ([]kafka.ConsumerRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, fmt.Errorf("client is closed")
	}

	var out []kafka.ConsumerRecord
	for _, tp := range c.assignedPartitions {
		queue := c.recordQueues[tp]
		pos := c.queuePositions[tp]
		for pos < len(queue) && len(out) < c.maxPollRecords {
			out = append(out, queue[pos])
			pos++
		}
		c.queuePositions[tp] = pos
		if len(out) >= c.maxPollRecords {
			break
		}
	}

	return out, nil
}

func (c *Client) Committed(ctx context.Context, tp kafka.TopicPartition) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.committedErr != nil {
		if err := c.committedErr(tp); err != nil {
			return 0, err
		}
	}

	offset, ok := c.committedOffsets[tp]
	if !ok {
		return 0, fmt.Errorf("no committed offset for %v", tp)
	}

	return offset, nil
}

func (c *Client) CommitSync(ctx context.Context, tp kafka.TopicPartition, offset int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.commitErr != nil {
		if err := c.commitErr(tp); err != nil {
			return err
		}
	}

	c.committedOffsets[tp] = offset
	c.syncCommits = append(c.syncCommits, SyncCommit{Partition: tp, Offset: offset})

	return nil
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// SetCommitted replaces the committed offset for tp, simulating a commit by
// another group member.
func (c *Client) SetCommitted(tp kafka.TopicPartition, offset int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.committedOffsets[tp] = offset
}

// AddRecords queues records to be returned from Poll for tp.
func (c *Client) AddRecords(tp kafka.TopicPartition, records ...kafka.ConsumerRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recordQueues[tp] = append(c.recordQueues[tp], records...)
}

// SyncCommits returns every CommitSync call in order.
func (c *Client) SyncCommits() []SyncCommit {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]SyncCommit, len(c.syncCommits))
	copy(out, c.syncCommits)
	return out
}
