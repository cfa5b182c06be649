package symbols

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Current schema version - increment when diskPayload format changes
const diskCacheSchemaVersion uint16 = 1

// MemoryCache keeps recently built indices keyed by module digest. It lets a
// host that runs the generator repeatedly skip re-parsing unchanged modules.
type MemoryCache struct {
	lru *lru.Cache[Digest, *Index]
}

// NewMemoryCache creates a cache holding up to size indices.
func NewMemoryCache(size int) (*MemoryCache, error) {
	if size <= 0 {
		size = 128
	}
	c, err := lru.New[Digest, *Index](size)
	if err != nil {
		return nil, err
	}
	return &MemoryCache{lru: c}, nil
}

// Get returns the cached index for digest.
func (c *MemoryCache) Get(d Digest) (*Index, bool) {
	if c == nil {
		return nil, false
	}
	return c.lru.Get(d)
}

// Put stores idx under its digest.
func (c *MemoryCache) Put(idx *Index) {
	if c == nil || idx == nil || idx.Digest.IsZero() {
		return
	}
	c.lru.Add(idx.Digest, idx)
}

// Len returns the number of cached indices.
func (c *MemoryCache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

// DiskCache хранит построенные индексы по Digest модуля на диске.
// Thread-safe for concurrent access.
type DiskCache struct {
	mu  sync.RWMutex
	dir string
}

// diskPayload is the msgpack form of an Index.
type diskPayload struct {
	Schema        uint16
	Module        string
	Digest        Digest
	Age           uint32
	Partial       bool
	PartialReason string
	Documents     []Document
	Duplicates    []TypeKey
	Types         []TypeSymbol
}

// OpenDiskCache initializes and returns a disk cache at the standard location.
func OpenDiskCache(app string) (*DiskCache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	return OpenDiskCacheAt(filepath.Join(base, app))
}

// OpenDiskCacheAt opens a disk cache rooted at dir.
func OpenDiskCacheAt(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskCache{dir: dir}, nil
}

// Dir returns the cache root.
func (c *DiskCache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

func (c *DiskCache) pathFor(key Digest) string {
	return filepath.Join(c.dir, "indices", key.String()+".mp")
}

// Put serializes and writes an index to the disk cache.
func (c *DiskCache) Put(idx *Index) (err error) {
	if c == nil || idx == nil || idx.Digest.IsZero() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(idx.Digest)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	if err = msgpack.NewEncoder(f).Encode(toPayload(idx)); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	// Атомарная замена
	return os.Rename(tmp, p)
}

// Get reads an index from the disk cache. Stale or unreadable entries are
// reported as misses with the decode error.
func (c *DiskCache) Get(key Digest) (*Index, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var p diskPayload
	if err := msgpack.NewDecoder(f).Decode(&p); err != nil {
		return nil, false, fmt.Errorf("decode cached index %s: %w", key, err)
	}
	if p.Schema != diskCacheSchemaVersion || p.Digest != key {
		return nil, false, nil
	}
	return fromPayload(&p), true, nil
}

// DropAll invalidates the cache, useful after format changes.
func (c *DiskCache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		return err
	}
	if err := os.RemoveAll(old); err != nil {
		return err
	}
	return os.MkdirAll(c.dir, 0o755)
}

func toPayload(idx *Index) *diskPayload {
	p := &diskPayload{
		Schema:        diskCacheSchemaVersion,
		Module:        idx.Module,
		Digest:        idx.Digest,
		Age:           idx.Age,
		Partial:       idx.Partial,
		PartialReason: idx.PartialReason,
		Documents:     idx.Documents,
		Duplicates:    idx.Duplicates,
		Types:         make([]TypeSymbol, 0, len(idx.keys)),
	}
	for _, k := range idx.keys {
		p.Types = append(p.Types, *idx.types[k])
	}
	return p
}

func fromPayload(p *diskPayload) *Index {
	idx := newIndex(len(p.Types))
	idx.Module = p.Module
	idx.Digest = p.Digest
	idx.Age = p.Age
	idx.Partial = p.Partial
	idx.PartialReason = p.PartialReason
	idx.Documents = p.Documents
	for i := range p.Types {
		t := p.Types[i]
		idx.add(&t)
	}
	idx.Duplicates = p.Duplicates
	idx.seal()
	return idx
}
