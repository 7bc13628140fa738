// Package diskstore implements the on-disk tier of the image cache: flat
// files named by content key under one namespace directory, written
// atomically, and maintained by an age/size janitor sweep.
//
// A Store owns a single serialized worker; every disk operation for one
// store instance runs through it, totally ordering disk I/O so that a write
// followed by a read of the same key is deterministic.
package diskstore

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/webimg/webimg/internal/dispatch"
)

// tempPrefix marks in-flight files; the janitor and the size scans skip them.
const tempPrefix = ".tmp-"

// lockName is the cross-process lock file guarding destructive maintenance.
const lockName = ".lock"

// Store is a flat-file store rooted at one directory. All mutating and
// scanning methods are plain synchronous primitives; callers serialize them
// by submitting through Do/DoSync.
type Store struct {
	dir           string
	searchPaths   []string
	disableBackup bool
	flk           *flock.Flock
	log           zerolog.Logger
	queue         *dispatch.Queue
}

// New creates the store directory if missing and starts the I/O worker.
// searchPaths are consulted read-only, in order, when a read misses the
// store directory.
func New(dir string, searchPaths []string, disableBackup bool, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{
		dir:           dir,
		searchPaths:   searchPaths,
		disableBackup: disableBackup,
		flk:           flock.New(filepath.Join(dir, lockName)),
		log:           log,
		queue:         dispatch.New(),
	}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Do submits fn to the serialized I/O worker.
func (s *Store) Do(fn func()) {
	s.queue.Async(fn)
}

// DoSync submits fn to the I/O worker and waits for it.
func (s *Store) DoSync(fn func()) {
	s.queue.Sync(fn)
}

// Close drains the I/O worker.
func (s *Store) Close() {
	s.queue.Close()
}

// Path returns the absolute path a name maps to inside the store.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Write persists data under name atomically: the bytes land in a uniquely
// named temp file which is then renamed into place, so readers never observe
// a partial file.
func (s *Store) Write(name string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(s.dir, tempPrefix+uuid.NewString())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	dst := s.Path(name)
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if s.disableBackup {
		excludeFromBackup(dst)
	}
	return nil
}

// Read returns the contents of the first existing candidate name, checking
// the store directory first and then each read-only search path in order.
// fs.ErrNotExist is returned when every candidate misses.
func (s *Store) Read(names ...string) ([]byte, error) {
	dirs := append([]string{s.dir}, s.searchPaths...)
	for _, dir := range dirs {
		for _, name := range names {
			if name == "" {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir, name))
			if err == nil {
				return data, nil
			}
			if !errors.Is(err, fs.ErrNotExist) {
				s.log.Debug().Err(err).Str("name", name).Msg("disk read failed")
			}
		}
	}
	return nil, fs.ErrNotExist
}

// Exists reports whether any candidate name exists in the store directory or
// a search path.
func (s *Store) Exists(names ...string) bool {
	dirs := append([]string{s.dir}, s.searchPaths...)
	for _, dir := range dirs {
		for _, name := range names {
			if name == "" {
				continue
			}
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				return true
			}
		}
	}
	return false
}

// Remove deletes the candidate names from the store directory. Missing files
// are a no-op; other failures are logged and swallowed.
func (s *Store) Remove(names ...string) {
	for _, name := range names {
		if name == "" {
			continue
		}
		if err := os.Remove(s.Path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.log.Debug().Err(err).Str("name", name).Msg("disk remove failed")
		}
	}
}

// Clear deletes the entire store directory and recreates it, bypassing any
// age or size policy.
func (s *Store) Clear() error {
	locked := s.tryLock()
	err := os.RemoveAll(s.dir)
	if mkErr := os.MkdirAll(s.dir, 0o755); err == nil {
		err = mkErr
	}
	if locked {
		s.unlock()
	}
	return err
}

// Stats walks the store directory and returns the entry count and aggregate
// size in bytes.
func (s *Store) Stats() (count int, size int64) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, 0
	}
	for _, e := range entries {
		if e.IsDir() || isInternalName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		count++
		size += info.Size()
	}
	return count, size
}

// Sweep is the janitor pass. It enumerates the store once and purges in two
// strict phases: entries whose modification time predates now-maxAge go
// first; then, if the survivors still exceed maxSize (when maxSize > 0),
// oldest-modified entries are deleted until the aggregate drops to
// maxSize/2. Per-file failures are ignored and the sweep continues.
func (s *Store) Sweep(now time.Time, maxAge time.Duration, maxSize int64) {
	locked := s.tryLock()
	if locked {
		defer s.unlock()
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.Debug().Err(err).Msg("janitor enumeration failed")
		return
	}

	type survivor struct {
		path    string
		modTime time.Time
		size    int64
	}

	cutoff := now.Add(-maxAge)
	var survivors []survivor
	var total int64

	for _, e := range entries {
		if e.IsDir() || isInternalName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(path)
			continue
		}
		survivors = append(survivors, survivor{path: path, modTime: info.ModTime(), size: info.Size()})
		total += info.Size()
	}

	if maxSize <= 0 || total <= maxSize {
		return
	}

	// Shrink to half the budget so back-to-back sweeps stay cheap.
	target := maxSize / 2
	sort.Slice(survivors, func(i, j int) bool {
		return survivors[i].modTime.Before(survivors[j].modTime)
	})
	for _, sv := range survivors {
		if total <= target {
			break
		}
		if err := os.Remove(sv.path); err == nil {
			total -= sv.size
		}
	}
}

// tryLock takes the cross-process lock best-effort; maintenance proceeds
// unguarded when the lock cannot be obtained.
func (s *Store) tryLock() bool {
	if err := s.flk.Lock(); err != nil {
		s.log.Debug().Err(err).Msg("namespace lock unavailable")
		return false
	}
	return true
}

func (s *Store) unlock() {
	if err := s.flk.Unlock(); err != nil {
		s.log.Debug().Err(err).Msg("namespace unlock failed")
	}
}

// isInternalName reports whether a directory entry belongs to the store's
// own bookkeeping rather than to cached content.
func isInternalName(name string) bool {
	return name == lockName || strings.HasPrefix(name, tempPrefix)
}
