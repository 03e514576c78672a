// Typed JSON-lines records on top of LineStore.
//
// Each line is one JSON value of type T, encoded without newlines. Blank
// lines are skipped on read and never written. Mutations (Append, Update)
// re-read the file inside the critical section, so a record another process
// wrote between two calls is never lost.
//
// A versioned store writes "#VERSION <n>" as its first line. A file whose
// header is missing or older is not loaded: it is copied to
// "<name>.<old>-backup" and the next mutation replaces it. Newer versions
// load as usual.
package sharedfile

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// VersionPrefix starts the header line of a versioned RecordStore.
const VersionPrefix = "#VERSION "

// BackupSuffix ends the name of a stale file's backup copy.
const BackupSuffix = "-backup"

// RecordStore persists a list of T as JSON lines.
type RecordStore[T any] struct {
	store *LineStore
	codec *recordCodec[T]
}

type recordCodec[T any] struct {
	records []T
	version int // 0: no header
	found   int // header version read, -1 before the first line
	stale   bool
}

func (c *recordCodec[T]) Reset() {
	// A fresh slice: the previous one may be held by a caller.
	c.records = nil
	c.found = -1
	c.stale = false
}

func (c *recordCodec[T]) ParseLine(line string) error {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil
	}
	if c.version > 0 {
		if c.found < 0 {
			c.found = 0
			if v, ok := parseVersion(trimmed); ok {
				c.found = v
				c.stale = v < c.version
				return nil
			}
			c.stale = true
		}
		if c.stale || strings.HasPrefix(trimmed, VersionPrefix) {
			return nil
		}
	}
	var rec T
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return err
	}
	c.records = append(c.records, rec)
	return nil
}

func (c *recordCodec[T]) WriteContent(w io.Writer) error {
	if c.version > 0 {
		if _, err := fmt.Fprintf(w, "%s%d\n", VersionPrefix, c.version); err != nil {
			return err
		}
	}
	for _, rec := range c.records {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		data = append(data, '\n')
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	return nil
}

// parseVersion reads a "#VERSION <n> ..." line. A header with an unreadable
// number counts as version 0.
func parseVersion(line string) (int, bool) {
	if !strings.HasPrefix(line, VersionPrefix) {
		return 0, false
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, false
	}
	v, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, true
	}
	return v, true
}

// NewRecordStore returns a RecordStore backed by file.
func NewRecordStore[T any](file *SharedFile, opts StoreOptions) *RecordStore[T] {
	return NewVersionedRecordStore[T](file, 0, opts)
}

// NewVersionedRecordStore returns a RecordStore that writes a version
// header and refuses to load files older than version. A version of 0
// is the same as NewRecordStore.
func NewVersionedRecordStore[T any](file *SharedFile, version int, opts StoreOptions) *RecordStore[T] {
	codec := &recordCodec[T]{version: version, found: -1}
	return &RecordStore[T]{
		store: NewLineStore(file, codec, opts),
		codec: codec,
	}
}

// Store returns the underlying LineStore.
func (s *RecordStore[T]) Store() *LineStore { return s.store }

// All reads every record.
func (s *RecordStore[T]) All() ([]T, error) {
	var out []T
	err := s.store.DoLocked(func() error {
		if err := s.read(); err != nil {
			return err
		}
		out = slices.Clone(s.codec.records)
		return nil
	})
	return out, err
}

// Find returns the records for which match reports true.
func (s *RecordStore[T]) Find(match func(T) bool) ([]T, error) {
	all, err := s.All()
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(rec T) bool { return !match(rec) }), nil
}

// Append adds records to the end of the file.
func (s *RecordStore[T]) Append(recs ...T) error {
	return s.Update(func(cur []T) ([]T, error) {
		return append(cur, recs...), nil
	})
}

// Update runs fn on the current records and writes back what it returns, all
// in one critical section. If fn fails nothing is written.
func (s *RecordStore[T]) Update(fn func([]T) ([]T, error)) error {
	if s.store.IsReadOnly() {
		return ErrReadOnly
	}
	return s.store.DoLocked(func() error {
		if err := s.read(); err != nil {
			return err
		}
		next, err := fn(slices.Clone(s.codec.records))
		if err != nil {
			return err
		}
		s.codec.records = slices.Clone(next)
		return s.store.Write()
	})
}

// read reloads the records and backs up a stale file. The lock is held.
func (s *RecordStore[T]) read() error {
	if err := s.store.Read(); err != nil {
		return err
	}
	if s.codec.stale && !s.store.IsReadOnly() {
		s.backup(s.codec.found)
	}
	return nil
}

// backup copies the file aside before a newer version replaces it. Failure
// is logged; the stale records stay unloaded either way.
func (s *RecordStore[T]) backup(version int) {
	f := s.store.file
	dst := BackupPath(f.path, version)
	data, err := os.ReadFile(f.path)
	if err == nil {
		err = os.WriteFile(dst, data, f.mode)
	}
	if err != nil {
		f.log.Error("back up stale records", "path", f.path, "backup", dst, "err", err)
		return
	}
	f.log.Info("stale records backed up", "path", f.path, "backup", dst, "version", version)
}

// BackupPath returns where a file with the given stale version is copied.
func BackupPath(path string, version int) string {
	return path + "." + strconv.Itoa(version) + BackupSuffix
}
