package ingest

import (
	"context"
	"time"

	"github.com/hugolhafner/go-coldstore/logger"
	"github.com/hugolhafner/go-coldstore/uploader"
)

// PolicyScheduler invokes the upload policy at a fixed cadence. The policy
// holds no state between invocations, so a failed cycle is simply retried on
// the next tick.
type PolicyScheduler struct {
	policy   uploader.Policy
	interval time.Duration
	logger   logger.Logger
}

func NewPolicyScheduler(policy uploader.Policy, interval time.Duration, l logger.Logger) *PolicyScheduler {
	if l == nil {
		l = logger.NewNoopLogger()
	}
	return &PolicyScheduler{
		policy:   policy,
		interval: interval,
		logger:   l,
	}
}

// Run drives the policy until ctx is cancelled. Cycle errors are partition
// scoped and logged rather than stopping the scheduler.
func (s *PolicyScheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.policy.ApplyPolicy(ctx); err != nil {
				s.logger.Error("upload policy cycle failed", "error", err)
			}
		}
	}
}
