package coldstore

import (
	"time"

	"github.com/hugolhafner/go-coldstore/ingest"
	"github.com/hugolhafner/go-coldstore/logger"
	"github.com/hugolhafner/go-coldstore/uploader"
)

type Config struct {
	// PolicyInterval is the cadence at which the upload policy is evaluated
	// across all buffered partitions.
	PolicyInterval time.Duration
	Logger         logger.Logger

	UploaderOptions []uploader.Option
	IngestOptions   []ingest.Option
}

type ConfigOption func(*Config)

func WithPolicyInterval(d time.Duration) ConfigOption {
	return func(c *Config) {
		if d > 0 {
			c.PolicyInterval = d
		}
	}
}

func WithLogger(l logger.Logger) ConfigOption {
	return func(c *Config) {
		c.Logger = l
	}
}

func WithUploaderOptions(opts ...uploader.Option) ConfigOption {
	return func(c *Config) {
		c.UploaderOptions = append(c.UploaderOptions, opts...)
	}
}

func WithIngestOptions(opts ...ingest.Option) ConfigOption {
	return func(c *Config) {
		c.IngestOptions = append(c.IngestOptions, opts...)
	}
}

func defaultConfig() Config {
	return Config{
		PolicyInterval: 10 * time.Second,
		Logger:         logger.NewNoopLogger(),
	}
}
