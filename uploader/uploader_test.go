//go:build unit

package uploader_test

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/hugolhafner/go-coldstore/format"
	"github.com/hugolhafner/go-coldstore/kafka"
	mockkafka "github.com/hugolhafner/go-coldstore/kafka/mock"
	"github.com/hugolhafner/go-coldstore/offset"
	"github.com/hugolhafner/go-coldstore/registry"
	"github.com/hugolhafner/go-coldstore/upload"
	mockupload "github.com/hugolhafner/go-coldstore/upload/mock"
	"github.com/hugolhafner/go-coldstore/uploader"
	"github.com/stretchr/testify/require"
)

var testTP = kafka.TopicPartition{Topic: "events", Partition: 0}

type fixture struct {
	tracker   *offset.Tracker
	files     *registry.Registry
	transport *mockupload.Transport
	client    *mockkafka.Client
}

func newFixture(t *testing.T, clientOpts ...mockkafka.Option) *fixture {
	t.Helper()
	return &fixture{
		tracker:   offset.NewTracker(),
		files:     registry.New(t.TempDir()),
		transport: mockupload.New(),
		client:    mockkafka.NewClient(clientOpts...),
	}
}

func (f *fixture) uploader(t *testing.T, opts ...uploader.Option) *uploader.Uploader {
	t.Helper()
	base := []uploader.Option{
		// A one byte size threshold opens the gate whenever data is buffered.
		uploader.WithMaxFileSizeBytes(1),
	}
	return uploader.New(f.tracker, f.files, f.transport, f.client, append(base, opts...)...)
}

// writeRecords buffers records [from, to) into a single file starting at from.
func (f *fixture) writeRecords(t *testing.T, from, to int64) registry.LogPath {
	t.Helper()

	p := registry.LogPath{
		Topic:       testTP.Topic,
		Partition:   testTP.Partition,
		Generation:  1,
		StartOffset: from,
	}
	w, err := f.files.GetOrCreateWriter(p, format.None)
	require.NoError(t, err)

	for o := from; o < to; o++ {
		require.NoError(t, w.Append(format.Record{Offset: o, Value: []byte("payload")}))
		f.tracker.SetLastSeenOffset(testTP, o)
	}
	return p
}

func TestApplyPolicy_SteadyStateUpload(t *testing.T) {
	f := newFixture(t, mockkafka.WithCommittedOffset(testTP, 400))
	f.writeRecords(t, 400, 450)
	f.writeRecords(t, 450, 500)
	f.tracker.SetCommittedOffsetCount(testTP, 400)

	u := f.uploader(t)
	require.NoError(t, u.ApplyPolicy(context.Background()))

	f.transport.AssertUploadedCount(t, 2)
	f.client.AssertCommitted(t, testTP, 500)
	f.client.AssertSyncCommitCount(t, 1)
	require.EqualValues(t, 500, f.tracker.GetCommittedOffsetCount(testTP))
	require.Empty(t, f.files.Paths(testTP))
}

func TestApplyPolicy_StaleBufferDelete(t *testing.T) {
	f := newFixture(t, mockkafka.WithCommittedOffset(testTP, 600))
	f.writeRecords(t, 400, 500)
	f.tracker.SetCommittedOffsetCount(testTP, 400)

	u := f.uploader(t)
	require.NoError(t, u.ApplyPolicy(context.Background()))

	f.transport.AssertNothingUploaded(t)
	f.client.AssertNoSyncCommits(t)
	require.EqualValues(t, 600, f.tracker.GetCommittedOffsetCount(testTP))
	require.Empty(t, f.files.Paths(testTP))
}

func TestApplyPolicy_PartialTrim(t *testing.T) {
	f := newFixture(t, mockkafka.WithCommittedOffset(testTP, 450))
	f.writeRecords(t, 400, 500)
	f.tracker.SetCommittedOffsetCount(testTP, 400)

	u := f.uploader(t)
	require.NoError(t, u.ApplyPolicy(context.Background()))

	f.transport.AssertNothingUploaded(t)
	f.client.AssertNoSyncCommits(t)
	require.EqualValues(t, 450, f.tracker.GetCommittedOffsetCount(testTP))

	paths := f.files.Paths(testTP)
	require.Len(t, paths, 1)
	require.EqualValues(t, 450, paths[0].StartOffset)

	requireFileRecords(t, f.files, paths[0], 450, 500)
}

func TestApplyPolicy_GateClosedDoesNothing(t *testing.T) {
	f := newFixture(t, mockkafka.WithCommittedError(errors.New("must not be called")))
	f.writeRecords(t, 0, 10)
	f.tracker.SetCommittedOffsetCount(testTP, 0)

	u := uploader.New(f.tracker, f.files, f.transport, f.client,
		uploader.WithMaxFileSizeBytes(1<<30),
		uploader.WithMaxFileAge(24*time.Hour),
	)
	require.NoError(t, u.ApplyPolicy(context.Background()))

	f.transport.AssertNothingUploaded(t)
	f.client.AssertNoSyncCommits(t)
	require.Len(t, f.files.Paths(testTP), 1)
}

func TestApplyPolicy_AgeGateOpens(t *testing.T) {
	f := newFixture(t, mockkafka.WithCommittedOffset(testTP, 0))
	now := time.Now()
	f.files = registry.New(t.TempDir(), registry.WithClock(func() time.Time { return now }))
	f.writeRecords(t, 0, 10)
	f.tracker.SetCommittedOffsetCount(testTP, 0)

	u := uploader.New(f.tracker, f.files, f.transport, f.client,
		uploader.WithMaxFileSizeBytes(1<<30),
		uploader.WithMaxFileAge(time.Hour),
	)

	require.NoError(t, u.ApplyPolicy(context.Background()))
	f.transport.AssertNothingUploaded(t)

	now = now.Add(2 * time.Hour)
	require.NoError(t, u.ApplyPolicy(context.Background()))
	f.transport.AssertUploadedCount(t, 1)
	f.client.AssertCommitted(t, testTP, 10)
}

func TestApplyPolicy_MinuteMarkGate(t *testing.T) {
	clock := time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC)
	f := newFixture(t, mockkafka.WithCommittedOffset(testTP, 0))
	f.writeRecords(t, 0, 5)
	f.tracker.SetCommittedOffsetCount(testTP, 0)

	u := uploader.New(f.tracker, f.files, f.transport, f.client,
		uploader.WithMaxFileSizeBytes(1<<30),
		uploader.WithMaxFileAge(24*time.Hour),
		uploader.WithUploadAtMinuteMark(regexp.MustCompile("^events$"), 30),
		uploader.WithClock(func() time.Time { return clock }),
	)

	require.NoError(t, u.ApplyPolicy(context.Background()))
	f.transport.AssertUploadedCount(t, 1)
}

func TestApplyPolicy_Invariant(t *testing.T) {
	for name, committed := range map[string]int64{"upload": 400, "trim": 450} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, mockkafka.WithCommittedOffset(testTP, committed))
			f.writeRecords(t, 400, 500)
			f.tracker.SetCommittedOffsetCount(testTP, 400)

			u := f.uploader(t)
			require.NoError(t, u.ApplyPolicy(context.Background()))

			require.LessOrEqual(t,
				f.tracker.GetCommittedOffsetCount(testTP),
				f.tracker.GetLastSeenOffset(testTP)+1)
		})
	}
}

func TestApplyPolicy_SecondCycleIsNoop(t *testing.T) {
	f := newFixture(t, mockkafka.WithCommittedOffset(testTP, 400))
	f.writeRecords(t, 400, 500)
	f.tracker.SetCommittedOffsetCount(testTP, 400)

	u := f.uploader(t)
	require.NoError(t, u.ApplyPolicy(context.Background()))
	require.NoError(t, u.ApplyPolicy(context.Background()))

	// The first cycle uploaded and drained the partition; the second one had
	// nothing to reconcile.
	f.transport.AssertUploadedCount(t, 1)
	f.client.AssertSyncCommitCount(t, 1)
}

func TestUploadFailureAbortsBeforeCommit(t *testing.T) {
	f := newFixture(t, mockkafka.WithCommittedOffset(testTP, 400))
	f.transport = mockupload.New(mockupload.WithFailureForAll(errors.New("transport down")))
	f.writeRecords(t, 400, 500)
	f.tracker.SetCommittedOffsetCount(testTP, 400)

	u := f.uploader(t)
	err := u.ApplyPolicy(context.Background())
	require.Error(t, err)
	require.ErrorContains(t, err, "transport down")

	// Local files stay for a retry on the next cycle; no offset moved.
	f.client.AssertNoSyncCommits(t)
	require.Len(t, f.files.Paths(testTP), 1)
}

func TestCommitFailurePropagates(t *testing.T) {
	f := newFixture(t,
		mockkafka.WithCommittedOffset(testTP, 400),
		mockkafka.WithCommitError(errors.New("coordinator moved")),
	)
	f.writeRecords(t, 400, 500)
	f.tracker.SetCommittedOffsetCount(testTP, 400)

	u := f.uploader(t)
	err := u.ApplyPolicy(context.Background())
	require.Error(t, err)
	require.ErrorContains(t, err, "coordinator moved")
}

func TestCommittedReadFailureDegradesToZero(t *testing.T) {
	// With no prior tracked commit position, a failed committed-offset read
	// degrades to 0, which matches the tracker and proceeds with an upload.
	f := newFixture(t, mockkafka.WithCommittedError(errors.New("coordinator unavailable")))
	f.writeRecords(t, 0, 10)

	u := f.uploader(t)
	require.NoError(t, u.ApplyPolicy(context.Background()))

	f.transport.AssertUploadedCount(t, 1)
	f.client.AssertCommitted(t, testTP, 10)
}

func TestApplyPolicy_PartitionFailuresAreScoped(t *testing.T) {
	other := kafka.TopicPartition{Topic: "audit", Partition: 0}

	f := newFixture(t,
		mockkafka.WithCommittedOffset(testTP, 400),
		mockkafka.WithCommittedOffset(other, 0),
	)
	f.transport = mockupload.New(mockupload.WithFailure(func(p registry.LogPath) error {
		if p.Topic == testTP.Topic {
			return errors.New("transport down")
		}
		return nil
	}))

	f.writeRecords(t, 400, 500)
	f.tracker.SetCommittedOffsetCount(testTP, 400)

	auditPath := registry.LogPath{Topic: "audit", Partition: 0, Generation: 1, StartOffset: 0}
	w, err := f.files.GetOrCreateWriter(auditPath, format.None)
	require.NoError(t, err)
	require.NoError(t, w.Append(format.Record{Offset: 0, Value: []byte("v")}))
	f.tracker.SetLastSeenOffset(other, 0)

	u := f.uploader(t)
	err = u.ApplyPolicy(context.Background())
	require.Error(t, err)

	// The healthy partition still completed its cycle.
	f.client.AssertCommitted(t, other, 1)
	require.Empty(t, f.files.Paths(other))
	require.Len(t, f.files.Paths(testTP), 1)
}

// gatedTransport holds every upload at the barrier until released, so tests
// can interleave work while transfers are in flight.
type gatedTransport struct {
	mu        sync.Mutex
	uploaded  []registry.LogPath
	started   chan struct{}
	startOnce sync.Once
	released  chan struct{}
}

func newGatedTransport() *gatedTransport {
	return &gatedTransport{
		started:  make(chan struct{}),
		released: make(chan struct{}),
	}
}

func (g *gatedTransport) Upload(ctx context.Context, p registry.LogPath) upload.Handle {
	g.mu.Lock()
	g.uploaded = append(g.uploaded, p)
	g.mu.Unlock()
	g.startOnce.Do(func() { close(g.started) })
	return gatedHandle{released: g.released}
}

type gatedHandle struct {
	released chan struct{}
}

func (h gatedHandle) Get() error {
	<-h.released
	return nil
}

func TestUploadKeepsFilesBufferedDuringBarrier(t *testing.T) {
	f := newFixture(t, mockkafka.WithCommittedOffset(testTP, 400))
	f.writeRecords(t, 400, 500)
	f.tracker.SetCommittedOffsetCount(testTP, 400)

	gated := newGatedTransport()
	u := uploader.New(f.tracker, f.files, gated, f.client,
		uploader.WithMaxFileSizeBytes(1),
	)

	done := make(chan error, 1)
	go func() { done <- u.ApplyPolicy(context.Background()) }()
	<-gated.started

	// Ingestion keeps running while the barrier holds. The in-flight file has
	// no open writer anymore, so new records land in a fresh file.
	late := f.writeRecords(t, 500, 510)

	close(gated.released)
	require.NoError(t, <-done)

	// The commit covers only the uploaded window; the interleaved file stays
	// buffered for the next cycle, its records intact.
	f.client.AssertCommitted(t, testTP, 500)
	require.EqualValues(t, 500, f.tracker.GetCommittedOffsetCount(testTP))
	require.Equal(t, []registry.LogPath{late}, f.files.Paths(testTP))

	require.NoError(t, f.files.DeleteWriters(testTP))
	requireFileRecords(t, f.files, late, 500, 510)
}

func requireFileRecords(t *testing.T, files *registry.Registry, p registry.LogPath, from, to int64) {
	t.Helper()

	codec, err := format.CodecForExtension(p.Extension)
	require.NoError(t, err)

	r, err := format.NewReader(files.AbsolutePath(p), codec)
	require.NoError(t, err)
	defer r.Close()

	for o := from; o < to; o++ {
		rec, err := r.Next()
		require.NoError(t, err)
		require.Equal(t, o, rec.Offset)
	}
	_, err = r.Next()
	require.Error(t, err)
}
