// Package snapshot stores rollback records as gzip-compressed JSON lines.
package snapshot

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
)

// Writer appends records of type T. It is safe for concurrent use.
type Writer[T any] struct {
	mu     sync.Mutex
	closer io.Closer
	zw     *pgzip.Writer
	enc    *json.Encoder
	count  int
}

// NewWriter writes records to w.
func NewWriter[T any](w io.Writer) *Writer[T] {
	zw := pgzip.NewWriter(w)
	return &Writer[T]{zw: zw, enc: json.NewEncoder(zw)}
}

// Create creates (or truncates) the file at path.
func Create[T any](path string) (*Writer[T], error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, errors.Wrap(err, "create snapshot")
	}
	w := NewWriter[T](f)
	w.closer = f
	return w, nil
}

// Append writes one record.
func (w *Writer[T]) Append(rec T) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(rec); err != nil {
		return errors.Wrap(err, "encode record")
	}
	w.count++
	return nil
}

// Count returns the number of records written.
func (w *Writer[T]) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close flushes the stream and closes the underlying file, if any.
func (w *Writer[T]) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.zw.Close(); err != nil {
		return errors.Wrap(err, "flush snapshot")
	}
	if w.closer != nil {
		if err := w.closer.Close(); err != nil {
			return errors.Wrap(err, "close snapshot")
		}
	}
	return nil
}

// Read calls fn for every record in r, in write order.
func Read[T any](r io.Reader, fn func(T) error) error {
	zr, err := pgzip.NewReader(r)
	if err != nil {
		return errors.Wrap(err, "open snapshot")
	}
	defer func() { _ = zr.Close() }()

	dec := json.NewDecoder(bufio.NewReader(zr))
	for line := 1; ; line++ {
		var rec T
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return errors.Wrapf(err, "decode record %d", line)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

// ReadFile is Read over the file at path.
func ReadFile[T any](path string, fn func(T) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open snapshot")
	}
	defer func() { _ = f.Close() }()
	return Read(f, fn)
}
