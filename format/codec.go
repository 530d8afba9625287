// Package format reads and writes locally buffered log files. A file is a
// sequence of length-prefixed frames, each carrying the record's source
// offset, optionally wrapped in a compression stream.
package format

import (
	"bufio"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec selects the compression applied to buffered files.
type Codec string

const (
	None Codec = ""
	Gzip Codec = "gzip"
	Zstd Codec = "zstd"
	Lz4  Codec = "lz4"
)

// ParseCodec maps a configuration string to a Codec.
func ParseCodec(s string) (Codec, error) {
	switch Codec(s) {
	case None, Gzip, Zstd, Lz4:
		return Codec(s), nil
	default:
		return None, fmt.Errorf("unknown compression codec %q", s)
	}
}

// CodecForExtension maps a file name suffix back to its Codec.
func CodecForExtension(ext string) (Codec, error) {
	switch ext {
	case "":
		return None, nil
	case ".gz":
		return Gzip, nil
	case ".zst":
		return Zstd, nil
	case ".lz4":
		return Lz4, nil
	default:
		return None, fmt.Errorf("unknown file extension %q", ext)
	}
}

// Extension returns the file name suffix for the codec, including the dot.
func (c Codec) Extension() string {
	switch c {
	case Gzip:
		return ".gz"
	case Zstd:
		return ".zst"
	case Lz4:
		return ".lz4"
	default:
		return ""
	}
}

func (c Codec) newCompressor(w io.Writer) (io.WriteCloser, error) {
	switch c {
	case Gzip:
		return gzip.NewWriter(w), nil
	case Zstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("create zstd writer: %w", err)
		}
		return zw, nil
	case Lz4:
		return lz4.NewWriter(w), nil
	case None:
		bw := bufio.NewWriter(w)
		return nopCompressor{bw}, nil
	default:
		return nil, fmt.Errorf("unknown compression codec %q", c)
	}
}

func (c Codec) newDecompressor(r io.Reader) (io.ReadCloser, error) {
	switch c {
	case Gzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		return gr, nil
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("create zstd reader: %w", err)
		}
		return zr.IOReadCloser(), nil
	case Lz4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case None:
		return io.NopCloser(bufio.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("unknown compression codec %q", c)
	}
}

type nopCompressor struct {
	*bufio.Writer
}

func (n nopCompressor) Close() error {
	return n.Flush()
}
