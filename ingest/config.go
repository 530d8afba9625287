package ingest

import (
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/go-coldstore/format"
	"github.com/hugolhafner/go-coldstore/logger"
)

type Config struct {
	Codec format.Codec
	// Generation distinguishes file layouts across incompatible deployments;
	// it is a component of every file path and object key.
	Generation int
	// RollSizeBytes starts a new buffered file once the current one reaches
	// this many bytes. Zero disables rolling.
	RollSizeBytes int64

	PollErrorBackoff backoff.Backoff
	Logger           logger.Logger
}

func defaultIngestConfig() Config {
	return Config{
		Codec:            format.None,
		Generation:       1,
		RollSizeBytes:    0,
		PollErrorBackoff: backoff.NewFixed(time.Second),
		Logger:           logger.NewNoopLogger(),
	}
}

type Option func(*Config)

func WithCodec(c format.Codec) Option {
	return func(cfg *Config) {
		cfg.Codec = c
	}
}

func WithGeneration(g int) Option {
	return func(cfg *Config) {
		cfg.Generation = g
	}
}

func WithRollSizeBytes(n int64) Option {
	return func(cfg *Config) {
		cfg.RollSizeBytes = n
	}
}

func WithPollErrorBackoff(b backoff.Backoff) Option {
	return func(cfg *Config) {
		if b != nil {
			cfg.PollErrorBackoff = b
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(cfg *Config) {
		cfg.Logger = l
	}
}
