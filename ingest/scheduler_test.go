//go:build unit

package ingest_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hugolhafner/go-coldstore/ingest"
	"github.com/stretchr/testify/require"
)

type countingPolicy struct {
	calls atomic.Int64
	err   error
}

func (p *countingPolicy) ApplyPolicy(context.Context) error {
	p.calls.Add(1)
	return p.err
}

func TestPolicyScheduler_RunsPolicyOnInterval(t *testing.T) {
	policy := &countingPolicy{}
	s := ingest.NewPolicyScheduler(policy, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return policy.calls.Load() >= 3
	}, 5*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestPolicyScheduler_KeepsRunningAfterCycleErrors(t *testing.T) {
	policy := &countingPolicy{err: errors.New("cycle failed")}
	s := ingest.NewPolicyScheduler(policy, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return policy.calls.Load() >= 2
	}, 5*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
