package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hugolhafner/go-coldstore/format"
	"github.com/hugolhafner/go-coldstore/kafka"
	"github.com/hugolhafner/go-coldstore/otel"
	"github.com/hugolhafner/go-coldstore/registry"
	"go.opentelemetry.io/otel/metric"
)

// TrimFiles drops every record below boundary from tp's buffered files.
// Every source file with qualifying records feeds the same replacement file
// starting at boundary, which is flushed once after the last source.
func (u *Uploader) TrimFiles(ctx context.Context, tp kafka.TopicPartition, boundary int64) error {
	var dst *registry.LogPath
	for _, p := range u.files.Paths(tp) {
		created, err := u.trim(ctx, p, boundary)
		if err != nil {
			return err
		}
		if created != nil {
			dst = created
		}
	}

	if dst != nil {
		if err := u.files.DeleteWriter(*dst); err != nil {
			return fmt.Errorf("flush replacement %s: %w", dst, err)
		}
	}
	return nil
}

// trim rewrites a single buffered file, keeping only records at or above
// boundary. Buffered files are immutable once written, so this is a
// copy-filter-swap: qualifying records are copied into a replacement file
// starting at boundary, then the original is deleted. When nothing
// qualifies, no replacement is created and the file simply disappears.
// The replacement's path is returned when one was written to; the caller
// owns flushing it.
func (u *Uploader) trim(ctx context.Context, src registry.LogPath, boundary int64) (*registry.LogPath, error) {
	if boundary == src.StartOffset {
		return nil, nil
	}

	// Closing the writer flushes pending records before the rewrite.
	if err := u.files.DeleteWriter(src); err != nil {
		return nil, fmt.Errorf("flush writer: %w", err)
	}

	srcCodec, err := format.CodecForExtension(src.Extension)
	if err != nil {
		return nil, fmt.Errorf("trim %s: %w", src, err)
	}

	reader, err := format.NewReader(u.files.AbsolutePath(src), srcCodec)
	if err != nil {
		return nil, fmt.Errorf("trim %s: %w", src, err)
	}
	defer reader.Close()

	var (
		writer *format.Writer
		dst    registry.LogPath
		copied int64
	)
	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", src, err)
		}
		if rec.Offset < boundary {
			continue
		}

		if writer == nil {
			dst = registry.LogPath{
				Topic:       src.Topic,
				Partition:   src.Partition,
				Generation:  src.Generation,
				StartOffset: boundary,
				Extension:   u.config.Codec.Extension(),
			}
			writer, err = u.files.GetOrCreateWriter(dst, u.config.Codec)
			if err != nil {
				return nil, fmt.Errorf("create replacement for %s: %w", src, err)
			}
		}

		if err := writer.Append(rec); err != nil {
			return nil, fmt.Errorf("write %s: %w", dst, err)
		}
		copied++
	}

	if err := u.files.DeletePath(src); err != nil {
		return nil, fmt.Errorf("delete %s: %w", src, err)
	}

	if writer == nil {
		u.config.Logger.Info("removed file below trim boundary", "path", src.Relative(), "boundary", boundary)
		return nil, nil
	}

	u.config.Logger.Info("trimmed file",
		"src", src.Relative(), "dst", dst.Relative(), "boundary", boundary, "copied", copied)
	u.config.Telemetry.RecordsTrimmed.Add(ctx, copied, metric.WithAttributes(
		otel.AttrTopic.String(src.Topic),
	))

	return &dst, nil
}
