// File-identity registry.
//
// A Registry maps each canonical path to the single SharedFile serving it in
// this process. Two SharedFiles for one path would each carry their own
// in-process lock and defeat it, so creation is double-checked: a lock-free
// lookup, then the shard's creation mutex, then a second lookup before
// constructing. The shard mutexes are never held while a SharedFile is
// locked, so creating one file cannot deadlock against locking another.
//
// Entries are weak. Once no caller references a SharedFile it can be
// collected, and a cleanup removes its entry unless a newer SharedFile has
// already replaced it.
package sharedfile

import (
	"os"
	"runtime"
	"sync"
	"weak"

	"github.com/charmbracelet/log"
)

// Options configures every SharedFile a Registry creates.
type Options struct {
	Strategy Strategy    // Process lock; StrategyAuto picks by platform
	ReadOnly bool        // Treat every file as read-only
	FileMode os.FileMode // Permission for created files (default 0600)
	Logger   *log.Logger // Sink for lock diagnostics (default: stderr, prefix "sharedfile")
}

// Registry hands out one SharedFile per canonical path.
type Registry struct {
	opts    Options
	entries sync.Map // canonical path -> weak.Pointer[SharedFile]
	shards  [shardCount]sync.Mutex
}

type registryEntry struct {
	key string
	ptr weak.Pointer[SharedFile]
}

// NewRegistry returns an empty registry. Tests should use one per test so
// that SharedFiles do not leak between them.
func NewRegistry(opts Options) *Registry {
	if opts.FileMode == 0 {
		opts.FileMode = 0o600
	}
	if opts.Logger == nil {
		opts.Logger = log.Default().WithPrefix("sharedfile")
	}
	return &Registry{opts: opts}
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	return NewRegistry(Options{})
})

// Get returns the SharedFile for path from the process default registry.
func Get(path string) (*SharedFile, error) {
	return defaultRegistry().Get(path)
}

// Get returns the SharedFile for path, creating it on first use. Paths that
// canonicalise to the same file return the same *SharedFile.
func (r *Registry) Get(path string) (*SharedFile, error) {
	key, err := Canonical(path)
	if err != nil {
		return nil, err
	}
	if f := r.lookup(key); f != nil {
		return f, nil
	}

	mu := &r.shards[shard(key)]
	mu.Lock()
	defer mu.Unlock()

	// Another goroutine may have created it while we waited.
	if f := r.lookup(key); f != nil {
		return f, nil
	}

	f := newSharedFile(key, r.opts)
	entry := registryEntry{key: key, ptr: weak.Make(f)}
	r.entries.Store(key, entry.ptr)
	runtime.AddCleanup(f, r.evict, entry)
	return f, nil
}

// Len returns the number of live SharedFiles.
func (r *Registry) Len() int {
	n := 0
	r.entries.Range(func(_, v any) bool {
		if v.(weak.Pointer[SharedFile]).Value() != nil {
			n++
		}
		return true
	})
	return n
}

func (r *Registry) lookup(key string) *SharedFile {
	v, ok := r.entries.Load(key)
	if !ok {
		return nil
	}
	return v.(weak.Pointer[SharedFile]).Value()
}

func (r *Registry) evict(e registryEntry) {
	r.entries.CompareAndDelete(e.key, e.ptr)
}
