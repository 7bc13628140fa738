package webimg

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/webimg/webimg/internal/diskstore"
	"github.com/webimg/webimg/internal/dispatch"
	"github.com/webimg/webimg/internal/memcache"
)

// Origin identifies which tier served a lookup.
type Origin int

// Lookup origins.
const (
	OriginNone Origin = iota
	OriginMemory
	OriginDisk
)

// String returns the origin name.
func (o Origin) String() string {
	switch o {
	case OriginMemory:
		return "memory"
	case OriginDisk:
		return "disk"
	default:
		return "none"
	}
}

// Cache unifies a bounded memory store and a content-addressed disk store
// under one namespace. Memory operations are internally synchronized and
// callable from any goroutine; every disk operation funnels through a single
// serialized I/O worker per instance, totally ordering disk I/O so a write
// followed by a read of the same key is deterministic. Asynchronous results
// hop off the I/O worker onto a dedicated delivery queue, never arriving on
// the worker itself.
type Cache struct {
	namespace string
	cfg       CacheConfig
	codec     Codec
	notifier  *Notifier
	env       Environment
	log       zerolog.Logger

	mem     *memcache.Cache[*Bitmap]
	disk    *diskstore.Store
	deliver *dispatch.Queue

	// Retained so environment subscriptions can be removed at Close.
	onLowMemory  func()
	onTerminate  func()
	onBackground func()
}

// New creates a cache for the given namespace. Entries live in memory and
// under <directory>/<namespace>/ on disk; the directory defaults to the
// user cache dir. Multiple independent instances may coexist, one per
// namespace.
func New(namespace string, opts ...Option) (*Cache, error) {
	if namespace == "" {
		return nil, fmt.Errorf("cache namespace cannot be empty")
	}

	o := cacheOptions{
		config: DefaultCacheConfig(),
		codec:  StdCodec{},
		env:    NopEnvironment{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cache config: %w", err)
	}
	if o.directory == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("resolve cache directory: %w", err)
		}
		o.directory = filepath.Join(base, "webimg")
	}

	disk, err := diskstore.New(
		filepath.Join(o.directory, namespace),
		o.config.AdditionalReadOnlyPaths,
		o.config.DisableCloudBackup,
		o.logger,
	)
	if err != nil {
		return nil, fmt.Errorf("init disk store: %w", err)
	}

	c := &Cache{
		namespace: namespace,
		cfg:       o.config,
		codec:     o.codec,
		notifier:  o.notifier,
		env:       o.env,
		log:       o.logger,
		mem:       memcache.New(o.config.MaxMemoryCost, o.config.MaxMemoryCount, (*Bitmap).Cost),
		disk:      disk,
		deliver:   dispatch.New(),
	}
	c.subscribeEnvironment()
	return c, nil
}

// subscribeEnvironment reacts to externally triggered signals: low memory
// drops the memory tier, imminent termination runs the janitor sweep, and
// backgrounding runs the sweep inside a bounded execution allowance.
func (c *Cache) subscribeEnvironment() {
	if c.notifier == nil {
		return
	}
	c.onLowMemory = c.ClearMemory
	c.onTerminate = c.CleanDisk
	c.onBackground = func() {
		end := c.env.BeginBackgroundTask("webimg.sweep", nil)
		c.CleanDiskAsync(end)
	}
	_ = c.notifier.Subscribe(TopicLowMemory, c.onLowMemory)
	_ = c.notifier.Subscribe(TopicTerminate, c.onTerminate)
	_ = c.notifier.Subscribe(TopicBackground, c.onBackground)
}

// LookupMemory returns the memory entry for key, or nil. No disk access is
// attempted.
func (c *Cache) LookupMemory(key Key) *Bitmap {
	if !c.cfg.CacheInMemory {
		return nil
	}
	bm, ok := c.mem.Get(key.String())
	if !ok {
		return nil
	}
	return bm
}

// Lookup checks memory inline and invokes cb immediately on a hit. On a
// miss it schedules a disk read on the serialized I/O worker; a disk hit is
// decoded, optionally eagerly decompressed, warmed into the memory tier, and
// delivered off the worker. A full miss delivers (nil, OriginNone).
//
// Concurrent lookups for the same key each schedule their own read; the
// cache does not coalesce them.
func (c *Cache) Lookup(key Key, cb func(bm *Bitmap, origin Origin)) {
	if bm := c.LookupMemory(key); bm != nil {
		cb(bm, OriginMemory)
		return
	}

	c.disk.Do(func() {
		data, err := c.disk.Read(key.Filename(), key.legacyFilename())
		if err != nil {
			c.deliver.Async(func() { cb(nil, OriginNone) })
			return
		}
		bm, err := c.codec.Decode(data, 0)
		if err != nil {
			c.log.Debug().Err(err).Str("key", key.String()).Msg("cached payload undecodable")
			c.deliver.Async(func() { cb(nil, OriginNone) })
			return
		}
		if c.cfg.DecompressImages {
			bm = c.codec.Decompress(bm)
		}
		if c.cfg.CacheInMemory {
			c.mem.Set(key.String(), bm)
		}
		c.deliver.Async(func() { cb(bm, OriginDisk) })
	})
}

// ExistsOnDisk reports disk membership for key, checking the keyed filename
// and then the extensionless fallback. It blocks on the I/O worker.
func (c *Cache) ExistsOnDisk(key Key) bool {
	var exists bool
	c.disk.DoSync(func() {
		exists = c.disk.Exists(key.Filename(), key.legacyFilename())
	})
	return exists
}

// ExistsOnDiskAsync is ExistsOnDisk with the answer delivered off the I/O
// worker.
func (c *Cache) ExistsOnDiskAsync(key Key, cb func(bool)) {
	c.disk.Do(func() {
		exists := c.disk.Exists(key.Filename(), key.legacyFilename())
		c.deliver.Async(func() { cb(exists) })
	})
}

// Store places bm in the memory tier (when enabled) and, if toDisk is set,
// asynchronously persists it. Supplied encoded bytes are written as-is; with
// nil data the bitmap is re-encoded using the fixed format heuristic (see
// StoreFormat). Disk failures are swallowed: caching is an optimization and
// must never fail the caller's request.
func (c *Cache) Store(bm *Bitmap, data []byte, key Key, toDisk bool) {
	if bm == nil || key.IsZero() {
		return
	}
	if c.cfg.CacheInMemory {
		c.mem.Set(key.String(), bm)
	}
	if !toDisk {
		return
	}
	if len(data) > 0 {
		payload := data
		c.disk.Do(func() { c.writeDisk(key, payload) })
		return
	}
	c.StoreRecoded(bm, nil, key, toDisk)
}

// StoreRecoded is Store with a forced re-encode: the payload written to disk
// is produced from bm in the format StoreFormat picks from the supplied
// bytes (which may be nil) and the bitmap's alpha channel.
func (c *Cache) StoreRecoded(bm *Bitmap, data []byte, key Key, toDisk bool) {
	if bm == nil || key.IsZero() {
		return
	}
	if c.cfg.CacheInMemory {
		c.mem.Set(key.String(), bm)
	}
	if !toDisk {
		return
	}
	format := StoreFormat(data, bm)
	c.disk.Do(func() {
		payload, err := c.codec.Encode(bm, format)
		if err != nil {
			c.log.Debug().Err(err).Str("key", key.String()).Msg("re-encode for disk store failed")
			return
		}
		c.writeDisk(key, payload)
	})
}

// writeDisk runs on the I/O worker.
func (c *Cache) writeDisk(key Key, payload []byte) {
	if err := c.disk.Write(key.Filename(), payload); err != nil {
		c.log.Debug().Err(err).Str("key", key.String()).Msg("disk store failed")
	}
}

// Remove evicts the memory entry synchronously; absent keys are a no-op.
// With fromDisk set the file is deleted asynchronously on the I/O worker
// before done is invoked. done may be nil.
func (c *Cache) Remove(key Key, fromDisk bool, done func()) {
	c.mem.Remove(key.String())
	if !fromDisk {
		if done != nil {
			done()
		}
		return
	}
	c.disk.Do(func() {
		c.disk.Remove(key.Filename(), key.legacyFilename())
		if done != nil {
			c.deliver.Async(done)
		}
	})
}

// ClearMemory drops every memory entry. Disk entries are untouched.
func (c *Cache) ClearMemory() {
	c.mem.Purge()
}

// ClearDisk deletes and recreates the entire namespace directory,
// bypassing age and size policy. It blocks on the I/O worker.
func (c *Cache) ClearDisk() {
	c.disk.DoSync(func() {
		if err := c.disk.Clear(); err != nil {
			c.log.Debug().Err(err).Msg("clear disk failed")
		}
	})
}

// ClearDiskAsync is ClearDisk with completion delivered off the I/O worker.
// done may be nil.
func (c *Cache) ClearDiskAsync(done func()) {
	c.disk.Do(func() {
		if err := c.disk.Clear(); err != nil {
			c.log.Debug().Err(err).Msg("clear disk failed")
		}
		if done != nil {
			c.deliver.Async(done)
		}
	})
}

// CleanDisk runs the janitor sweep on the I/O worker and waits for it:
// age-expired entries are purged first, then, if the survivors still exceed
// MaxDiskSize, oldest-modified entries go until the total drops to half the
// budget.
func (c *Cache) CleanDisk() {
	c.disk.DoSync(c.sweep)
}

// CleanDiskAsync is CleanDisk without the wait. done may be nil and is
// delivered off the I/O worker.
func (c *Cache) CleanDiskAsync(done func()) {
	c.disk.Do(func() {
		c.sweep()
		if done != nil {
			c.deliver.Async(done)
		}
	})
}

// sweep runs on the I/O worker.
func (c *Cache) sweep() {
	c.disk.Sweep(time.Now(), c.cfg.MaxDiskAge, c.cfg.MaxDiskSize)
}

// Size returns the aggregate size in bytes of the disk tier. It blocks on a
// full scan.
func (c *Cache) Size() int64 {
	var size int64
	c.disk.DoSync(func() {
		_, size = c.disk.Stats()
	})
	return size
}

// Count returns the number of disk entries. It blocks on a full scan.
func (c *Cache) Count() int {
	var count int
	c.disk.DoSync(func() {
		count, _ = c.disk.Stats()
	})
	return count
}

// MemoryCount returns the number of memory entries.
func (c *Cache) MemoryCount() int {
	return c.mem.Len()
}

// MemoryCost returns the aggregate cost of memory entries.
func (c *Cache) MemoryCost() int {
	return c.mem.Cost()
}

// CalculateSize scans the disk tier asynchronously and delivers the entry
// count and total bytes off the I/O worker.
func (c *Cache) CalculateSize(cb func(count int, size int64)) {
	c.disk.Do(func() {
		count, size := c.disk.Stats()
		c.deliver.Async(func() { cb(count, size) })
	})
}

// DiskPath returns the on-disk path a key maps to inside this cache's
// namespace.
func (c *Cache) DiskPath(key Key) string {
	return c.disk.Path(key.Filename())
}

// Directory returns the namespace directory holding this cache's disk
// entries.
func (c *Cache) Directory() string {
	return c.disk.Dir()
}

// Close unsubscribes from environment signals and drains the I/O worker and
// the delivery queue. The cache must not be used afterwards.
func (c *Cache) Close() {
	if c.notifier != nil {
		_ = c.notifier.Unsubscribe(TopicLowMemory, c.onLowMemory)
		_ = c.notifier.Unsubscribe(TopicTerminate, c.onTerminate)
		_ = c.notifier.Unsubscribe(TopicBackground, c.onBackground)
	}
	c.disk.Close()
	c.deliver.Close()
}
