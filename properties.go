// Key/value settings file on top of LineStore.
//
// The format is one "key=value" per line. On read, blank lines and lines
// starting with '#' or '!' are dropped, the separator is the first '=' or
// ':', and whitespace around key and value is trimmed. On write, an optional
// header comment comes first and keys follow in sorted order, so reading and
// immediately writing a file in that form reproduces it byte for byte.
package sharedfile

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
)

// PropertiesOptions configures a Properties store.
type PropertiesOptions struct {
	StoreOptions
	Header string // Comment written as the first line(s), without the "# "
}

// Properties is a persisted string map. The in-memory map is safe for
// concurrent use; it reflects the file as of the last Load or Update.
type Properties struct {
	store  *LineStore
	header string
	mu     sync.RWMutex
	values map[string]string
}

type propertiesCodec struct {
	p       *Properties
	pending map[string]string
}

func (c *propertiesCodec) Reset() {
	c.pending = make(map[string]string)
}

func (c *propertiesCodec) ParseLine(line string) error {
	line = strings.TrimSpace(line)
	if line == "" || line[0] == '#' || line[0] == '!' {
		return nil
	}
	key, value := line, ""
	if i := strings.IndexAny(line, "=:"); i >= 0 {
		key = strings.TrimSpace(line[:i])
		value = strings.TrimSpace(line[i+1:])
	}
	c.pending[key] = value
	return nil
}

func (c *propertiesCodec) WriteContent(w io.Writer) error {
	if c.p.header != "" {
		for _, h := range strings.Split(c.p.header, "\n") {
			if _, err := fmt.Fprintf(w, "# %s\n", h); err != nil {
				return err
			}
		}
	}
	c.p.mu.RLock()
	defer c.p.mu.RUnlock()
	for _, k := range slices.Sorted(maps.Keys(c.p.values)) {
		if _, err := fmt.Fprintf(w, "%s=%s\n", k, c.p.values[k]); err != nil {
			return err
		}
	}
	return nil
}

// NewProperties returns an empty Properties backed by file. Call Load to
// populate it.
func NewProperties(file *SharedFile, opts PropertiesOptions) *Properties {
	p := &Properties{
		header: opts.Header,
		values: make(map[string]string),
	}
	p.store = NewLineStore(file, &propertiesCodec{p: p}, opts.StoreOptions)
	return p
}

// Store returns the underlying LineStore.
func (p *Properties) Store() *LineStore { return p.store }

// Load replaces the in-memory map with the file's contents.
func (p *Properties) Load() error {
	return p.store.DoLocked(p.reload)
}

// Save writes the in-memory map to the file. Read-only files are left
// untouched.
func (p *Properties) Save() error {
	return p.store.WriteGuarded()
}

// Update reloads, runs fn and saves, as one critical section. Nothing is
// written if fn fails.
func (p *Properties) Update(fn func(*Properties) error) error {
	if p.store.IsReadOnly() {
		return ErrReadOnly
	}
	return p.store.DoLocked(func() error {
		if err := p.reload(); err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
		return p.store.Write()
	})
}

func (p *Properties) reload() error {
	if err := p.store.Read(); err != nil {
		return err
	}
	codec := p.store.codec.(*propertiesCodec)
	p.mu.Lock()
	p.values = codec.pending
	p.mu.Unlock()
	return nil
}

// Get returns the value for key.
func (p *Properties) Get(key string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[key]
	return v, ok
}

// Set stores value under key in memory. Keys must be non-empty and free of
// separators; neither may span lines.
func (p *Properties) Set(key, value string) error {
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" || strings.ContainsAny(key, "=:#!\r\n") || strings.ContainsAny(value, "\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidEntry, key)
	}
	p.mu.Lock()
	p.values[key] = value
	p.mu.Unlock()
	return nil
}

// Delete removes key from memory. It returns ErrNotFound if key is absent.
func (p *Properties) Delete(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.values[key]; !ok {
		return ErrNotFound
	}
	delete(p.values, key)
	return nil
}

// Keys returns the keys in sorted order.
func (p *Properties) Keys() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Sorted(maps.Keys(p.values))
}

// Len returns the number of keys.
func (p *Properties) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.values)
}
