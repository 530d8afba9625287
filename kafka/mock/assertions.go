package mockkafka

import (
	"testing"

	"github.com/hugolhafner/go-coldstore/kafka"
)

// AssertCommitted fails the test unless the latest committed offset for tp
// equals offset.
func (c *Client) AssertCommitted(tb testing.TB, tp kafka.TopicPartition, offset int64) {
	tb.Helper()

	c.mu.RLock()
	defer c.mu.RUnlock()

	got, ok := c.committedOffsets[tp]
	if !ok {
		tb.Errorf("expected committed offset %d for %v, but nothing is committed", offset, tp)
		return
	}
	if got != offset {
		tb.Errorf("expected committed offset %d for %v, got %d", offset, tp, got)
	}
}

// AssertNoSyncCommits fails the test if any CommitSync call was made.
func (c *Client) AssertNoSyncCommits(tb testing.TB) {
	tb.Helper()

	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.syncCommits) != 0 {
		tb.Errorf("expected no sync commits, got %d", len(c.syncCommits))
	}
}

// AssertSyncCommitCount fails the test unless exactly n CommitSync calls
// were made.
func (c *Client) AssertSyncCommitCount(tb testing.TB, n int) {
	tb.Helper()

	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.syncCommits) != n {
		tb.Errorf("expected %d sync commits, got %d", n, len(c.syncCommits))
	}
}
