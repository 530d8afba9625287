package otel

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const scopeName = "github.com/hugolhafner/go-coldstore"

// Telemetry holds the OpenTelemetry instruments for the archiver. When no
// meter provider is configured, all instruments are noops with zero overhead.
type Telemetry struct {
	// Upload metrics
	FilesUploaded  metric.Int64Counter
	UploadDuration metric.Float64Histogram

	// Reconciliation metrics
	RecordsTrimmed    metric.Int64Counter
	PartitionsDeleted metric.Int64Counter
}

// NewTelemetry creates a Telemetry instance from the given provider,
// defaulted to a noop when nil.
func NewTelemetry(mp metric.MeterProvider) (*Telemetry, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}

	meter := mp.Meter(scopeName)

	filesUploaded, err := meter.Int64Counter(
		"coldstore.uploader.files",
		metric.WithDescription("Buffered files uploaded to remote storage"),
	)
	if err != nil {
		return nil, err
	}

	uploadDuration, err := meter.Float64Histogram(
		"coldstore.uploader.duration",
		metric.WithDescription("Time per partition upload cycle"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	recordsTrimmed, err := meter.Int64Counter(
		"coldstore.trim.records",
		metric.WithDescription("Records copied into replacement files during trims"),
	)
	if err != nil {
		return nil, err
	}

	partitionsDeleted, err := meter.Int64Counter(
		"coldstore.reconcile.partition_deletes",
		metric.WithDescription("Partitions whose stale local buffers were deleted"),
	)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		FilesUploaded:     filesUploaded,
		UploadDuration:    uploadDuration,
		RecordsTrimmed:    recordsTrimmed,
		PartitionsDeleted: partitionsDeleted,
	}, nil
}

// NewNoopTelemetry returns a Telemetry whose instruments record nothing.
func NewNoopTelemetry() *Telemetry {
	t, _ := NewTelemetry(nil)
	return t
}
