// Package coldstore archives Kafka topics into cold storage. Records are
// buffered into local offset-ordered files and periodically reconciled
// against the consumer group's commit position: fully buffered partitions
// are uploaded and committed, stale buffers are discarded, and partially
// committed buffers are trimmed back to the commit boundary.
package coldstore

import (
	"context"
	"errors"
	"sync"

	"github.com/hugolhafner/go-coldstore/ingest"
	"github.com/hugolhafner/go-coldstore/kafka"
	"github.com/hugolhafner/go-coldstore/logger"
	"github.com/hugolhafner/go-coldstore/offset"
	"github.com/hugolhafner/go-coldstore/registry"
	"github.com/hugolhafner/go-coldstore/upload"
	"github.com/hugolhafner/go-coldstore/uploader"
)

const Version = "v0.1.0" // x-release-please-version

var (
	ErrAlreadyRunning = errors.New("application is already running")
	ErrClosed         = errors.New("application is closed")
)

// Application wires the consumer, the local file registry and the upload
// policy into one runnable unit: an ingest loop buffering records and a
// scheduler driving the policy at a fixed cadence.
type Application struct {
	consumer  kafka.Consumer
	files     *registry.Registry
	transport upload.Transport
	topics    []string
	config    Config
	logger    logger.Logger

	mu        sync.Mutex
	running   bool
	closeOnce sync.Once
	closedCh  chan struct{}
}

func NewApplication(
	consumer kafka.Consumer,
	files *registry.Registry,
	transport upload.Transport,
	topics []string,
	opts ...ConfigOption,
) (*Application, error) {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return NewApplicationWithConfig(consumer, files, transport, topics, config)
}

func NewApplicationWithConfig(
	consumer kafka.Consumer,
	files *registry.Registry,
	transport upload.Transport,
	topics []string,
	config Config,
) (*Application, error) {
	if len(topics) == 0 {
		return nil, errors.New("at least one topic is required")
	}

	return &Application{
		consumer:  consumer,
		files:     files,
		transport: transport,
		topics:    topics,
		config:    config,
		logger:    config.Logger,
		closedCh:  make(chan struct{}),
	}, nil
}

// Run consumes and archives until ctx is cancelled or either loop fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.startRunning(); err != nil {
		return err
	}
	defer a.Close()

	tracker := offset.NewTracker()

	up := uploader.New(tracker, a.files, a.transport, a.consumer,
		append([]uploader.Option{uploader.WithLogger(a.logger)}, a.config.UploaderOptions...)...)

	ingestor := ingest.NewIngestor(a.consumer, tracker, a.files, a.topics,
		append([]ingest.Option{ingest.WithLogger(a.logger)}, a.config.IngestOptions...)...)

	scheduler := ingest.NewPolicyScheduler(up, a.config.PolicyInterval, a.logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-a.closedCh:
			cancel()
		case <-runCtx.Done():
		}
	}()

	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		errCh <- ingestor.Run(runCtx)
	}()
	go func() {
		defer wg.Done()
		errCh <- scheduler.Run(runCtx)
	}()

	// The first loop to fail cancels the other.
	err := <-errCh
	cancel()
	wg.Wait()

	if err != nil {
		return err
	}
	return <-errCh
}

func (a *Application) Close() {
	a.closeOnce.Do(
		func() {
			a.mu.Lock()
			defer a.mu.Unlock()

			a.running = false
			close(a.closedCh)
		},
	)
}

func (a *Application) startRunning() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return ErrAlreadyRunning
	}

	select {
	case <-a.closedCh:
		return ErrClosed
	default:
	}

	a.running = true
	return nil
}
