package mockkafka

import (
	"github.com/hugolhafner/go-coldstore/kafka"
)

// Option is a functional option for configuring a mock Client.
type Option func(*Client)

// WithMaxPollRecords sets the maximum number of records returned per Poll
// call. Default is 10.
func WithMaxPollRecords(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPollRecords = n
		}
	}
}

// WithCommittedOffset presets the committed offset for a partition.
func WithCommittedOffset(tp kafka.TopicPartition, offset int64) Option {
	return func(c *Client) {
		c.committedOffsets[tp] = offset
	}
}

// WithCommittedError configures an error to be returned by Committed.
func WithCommittedError(err error) Option {
	return func(c *Client) {
		c.committedErr = func(kafka.TopicPartition) error { return err }
	}
}

// WithCommitError configures an error to be returned by CommitSync.
func WithCommitError(err error) Option {
	return func(c *Client) {
		c.commitErr = func(kafka.TopicPartition) error { return err }
	}
}
