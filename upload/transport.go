// Package upload moves buffered files to durable remote storage.
package upload

import (
	"context"

	"github.com/hugolhafner/go-coldstore/registry"
)

// Handle resolves when the remote object exists or the transfer failed.
type Handle interface {
	// Get blocks until the upload completes and returns its error, if any.
	Get() error
}

// Transport starts one asynchronous transfer per call. Transfers are
// independent; a failed transfer does not cancel its siblings.
type Transport interface {
	Upload(ctx context.Context, p registry.LogPath) Handle
}

type handle struct {
	err  error
	done chan struct{}
}

func (h *handle) Get() error {
	<-h.done
	return h.err
}

// run executes fn on its own goroutine and exposes completion as a Handle.
func run(fn func() error) Handle {
	h := &handle{done: make(chan struct{})}
	go func() {
		h.err = fn()
		close(h.done)
	}()
	return h
}
