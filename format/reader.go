package format

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Reader iterates the records of one buffered file in offset order.
type Reader struct {
	file   *os.File
	decomp io.ReadCloser
}

func NewReader(path string, codec Codec) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s for reading: %w", path, err)
	}

	decomp, err := codec.newDecompressor(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Reader{file: f, decomp: decomp}, nil
}

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (Record, error) {
	var header [8]byte
	if _, err := io.ReadFull(r.decomp, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("read offset: %w", err)
	}

	key, err := readChunk(r.decomp)
	if err != nil {
		return Record{}, fmt.Errorf("read key: %w", err)
	}
	value, err := readChunk(r.decomp)
	if err != nil {
		return Record{}, fmt.Errorf("read value: %w", err)
	}

	return Record{
		Offset: int64(binary.BigEndian.Uint64(header[:])),
		Key:    key,
		Value:  value,
	}, nil
}

func (r *Reader) Close() error {
	dErr := r.decomp.Close()
	fErr := r.file.Close()
	if dErr != nil {
		return fmt.Errorf("close decompressor: %w", dErr)
	}
	if fErr != nil {
		return fmt.Errorf("close file: %w", fErr)
	}
	return nil
}

func readChunk(r io.Reader) ([]byte, error) {
	var length [4]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(length[:])
	if n == 0 {
		return nil, nil
	}

	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
