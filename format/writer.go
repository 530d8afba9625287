package format

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Writer appends records to a single buffered file. Files are append-only:
// once a record is written the only safe mutation is wholesale replacement.
type Writer struct {
	file   *os.File
	comp   io.WriteCloser
	size   int64
	closed bool
}

// NewWriter creates (or truncates) the file at path and prepares the
// compression stream for the given codec.
func NewWriter(path string, codec Codec) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s for writing: %w", path, err)
	}

	comp, err := codec.newCompressor(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Writer{file: f, comp: comp}, nil
}

func (w *Writer) Append(rec Record) error {
	if w.closed {
		return fmt.Errorf("append to closed writer")
	}

	var header [8]byte
	binary.BigEndian.PutUint64(header[:], uint64(rec.Offset))
	if _, err := w.comp.Write(header[:]); err != nil {
		return fmt.Errorf("write offset: %w", err)
	}
	if err := writeChunk(w.comp, rec.Key); err != nil {
		return fmt.Errorf("write key: %w", err)
	}
	if err := writeChunk(w.comp, rec.Value); err != nil {
		return fmt.Errorf("write value: %w", err)
	}

	w.size += frameSize(rec)
	return nil
}

// Size returns the uncompressed bytes accepted so far.
func (w *Writer) Size() int64 {
	return w.size
}

// Close flushes the compression stream and closes the file. After a
// successful Close all appended records are durable on local media.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.comp.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("flush compressor: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return fmt.Errorf("sync file: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}

	return nil
}

func writeChunk(w io.Writer, b []byte) error {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(b)))
	if _, err := w.Write(length[:]); err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	_, err := w.Write(b)
	return err
}
