// Guarded whole-file line storage.
//
// A LineStore rebuilds a caller's in-memory model from the file on every
// guarded read and writes the whole model back on every guarded write.
// There is no partial write: the files this serves are small tables, and
// every guarded operation is atomic from the caller's point of view because
// the lock spans the entire read or the entire truncate-and-rewrite.
//
// The model is only trustworthy while the lock is held. Another process may
// rewrite the file the moment it is released, so read-modify-write cycles
// belong inside DoLocked.
package sharedfile

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// LineCodec converts between a caller's model and the file's lines.
type LineCodec interface {
	// Reset empties the model before a read repopulates it.
	Reset()
	// ParseLine adds one line (without its terminator) to the model.
	ParseLine(line string) error
	// WriteContent serialises the whole model.
	WriteContent(w io.Writer) error
}

// StoreOptions configures a LineStore.
type StoreOptions struct {
	ReadBuffer  int  // Initial line buffer (default 64KB)
	MaxLineSize int  // Longest accepted line (default 16MB)
	SyncWrites  bool // fsync after every write
}

// LineStore is a LineCodec persisted in a SharedFile.
type LineStore struct {
	file  *SharedFile
	codec LineCodec
	opts  StoreOptions
}

// NewLineStore binds codec to file.
func NewLineStore(file *SharedFile, codec LineCodec, opts StoreOptions) *LineStore {
	if opts.ReadBuffer == 0 {
		opts.ReadBuffer = 64 * 1024
	}
	if opts.MaxLineSize == 0 {
		opts.MaxLineSize = 16 * 1024 * 1024
	}
	if opts.ReadBuffer > opts.MaxLineSize {
		opts.ReadBuffer = opts.MaxLineSize
	}
	return &LineStore{file: file, codec: codec, opts: opts}
}

// File returns the backing SharedFile.
func (s *LineStore) File() *SharedFile { return s.file }

// IsReadOnly reports whether writes are ignored.
func (s *LineStore) IsReadOnly() bool { return s.file.IsReadOnly() }

// Lock acquires the backing file's lock.
func (s *LineStore) Lock() error { return s.file.Lock() }

// Unlock releases one hold on the backing file's lock.
func (s *LineStore) Unlock() { s.file.Unlock() }

// DoLocked runs fn as one critical section. The lock is released on every
// exit path, including a panic in fn.
func (s *LineStore) DoLocked(fn func() error) error {
	return s.file.WithLock(fn)
}

// ReadGuarded locks, reloads the model from disk and unlocks. A missing file
// loads as an empty model.
func (s *LineStore) ReadGuarded() error {
	return s.DoLocked(s.read)
}

// WriteGuarded locks, rewrites the file from the model and unlocks. Read-only
// stores skip the write silently.
func (s *LineStore) WriteGuarded() error {
	return s.DoLocked(s.write)
}

// Read reloads the model. The caller must already hold the lock.
func (s *LineStore) Read() error {
	if !s.file.HeldByCurrentGoroutine() {
		return ErrNotLocked
	}
	return s.read()
}

// Write rewrites the file from the model. The caller must already hold the
// lock.
func (s *LineStore) Write() error {
	if !s.file.HeldByCurrentGoroutine() {
		return ErrNotLocked
	}
	return s.write()
}

func (s *LineStore) read() error {
	s.codec.Reset()
	if !regular(s.file.path) {
		return nil
	}
	fh, err := os.Open(s.file.path)
	if err != nil {
		return err
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	scanner.Buffer(make([]byte, 0, s.opts.ReadBuffer), s.opts.MaxLineSize)
	for n := 1; scanner.Scan(); n++ {
		line := strings.ToValidUTF8(scanner.Text(), "\uFFFD")
		if err := s.codec.ParseLine(line); err != nil {
			return fmt.Errorf("%s:%d: %w", s.file.path, n, err)
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return fmt.Errorf("%s: %w", s.file.path, ErrLineTooLong)
		}
		return err
	}
	return nil
}

// write serialises the whole model before touching the file, so a codec
// error leaves the previous contents in place.
func (s *LineStore) write() error {
	if s.file.readOnly || !regular(s.file.path) {
		return nil
	}
	var buf bytes.Buffer
	if err := s.codec.WriteContent(&buf); err != nil {
		return err
	}

	fh, err := os.OpenFile(s.file.path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	if _, err := buf.WriteTo(fh); err != nil {
		fh.Close()
		return err
	}
	if s.opts.SyncWrites {
		if err := fh.Sync(); err != nil {
			fh.Close()
			return err
		}
	}
	return fh.Close()
}
