package uploader

import (
	"regexp"
	"time"

	"github.com/hugolhafner/go-coldstore/format"
	"github.com/hugolhafner/go-coldstore/logger"
	"github.com/hugolhafner/go-coldstore/otel"
)

type Config struct {
	// MaxFileSizeBytes opens the upload gate once a partition's buffered
	// bytes reach this threshold.
	MaxFileSizeBytes int64
	// MaxFileAge opens the upload gate once a partition's oldest buffered
	// data reaches this age.
	MaxFileAge time.Duration
	// UploadAtTopicPattern selects topics flushed on a fixed minute of the
	// hour regardless of volume or age. Nil disables the schedule.
	UploadAtTopicPattern *regexp.Regexp
	// UploadMinuteMark is the minute of the hour for scheduled flushes.
	UploadMinuteMark int

	Codec format.Codec

	Logger    logger.Logger
	Telemetry *otel.Telemetry
	Clock     func() time.Time
}

func defaultConfig() Config {
	return Config{
		MaxFileSizeBytes: 64 << 20,
		MaxFileAge:       time.Hour,
		Codec:            format.None,
		Logger:           logger.NewNoopLogger(),
		Telemetry:        otel.NewNoopTelemetry(),
		Clock:            time.Now,
	}
}

type Option func(*Config)

func WithMaxFileSizeBytes(n int64) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.MaxFileSizeBytes = n
		}
	}
}

func WithMaxFileAge(d time.Duration) Option {
	return func(cfg *Config) {
		if d > 0 {
			cfg.MaxFileAge = d
		}
	}
}

// WithUploadAtMinuteMark schedules a flush for topics matching pattern when
// the wall-clock minute equals minute.
func WithUploadAtMinuteMark(pattern *regexp.Regexp, minute int) Option {
	return func(cfg *Config) {
		cfg.UploadAtTopicPattern = pattern
		cfg.UploadMinuteMark = minute
	}
}

func WithCodec(c format.Codec) Option {
	return func(cfg *Config) {
		cfg.Codec = c
	}
}

func WithLogger(l logger.Logger) Option {
	return func(cfg *Config) {
		cfg.Logger = l
	}
}

func WithTelemetry(t *otel.Telemetry) Option {
	return func(cfg *Config) {
		if t != nil {
			cfg.Telemetry = t
		}
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(cfg *Config) {
		cfg.Clock = now
	}
}
