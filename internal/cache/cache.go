// Package cache implements the content-addressed cache: a
// persistent map from canonical_path to the file's last-seen digest,
// size, mtime, and the digest of its extraction-event blob, plus the
// delta classification that compares a prior cache snapshot against
// the current walk. The store is backed by an embedded BadgerDB
// database so the cache survives process restarts without any daemon.
// A small in-process LRU sits in front of extraction-event lookups to
// avoid a KV round trip for files touched more than once in a run.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/c360studio/codetrail/internal/model"
	"github.com/c360studio/codetrail/internal/runerr"
)

// SchemaVersion is bumped whenever the on-disk record shape changes in a
// way that makes prior caches unsafe to trust. A mismatch forces a full
// re-scan equivalent to --force-rebuild.
const SchemaVersion = "1"

const (
	schemaKey         = "schema_version"
	fileKeyPrefix     = "fr:"
	eventsKeyPrefix   = "ev:"
	templateKeyPrefix = "dg:"
	eventsLRUSize     = 4096
)

// Cache is the content-addressed cache for one scan root. It is safe
// for concurrent use from the pipeline's bounded worker pools.
type Cache struct {
	db           *badger.DB
	eventsLRU    *lru.Cache[string, []byte]
	forceRebuild bool

	mu              sync.Mutex
	staged          []model.CacheEntry
	stagedEvents    map[string][]byte
	stagedTemplates map[string][]byte
}

// Open opens (creating if absent) the cache directory at path. If the
// stored schema_version does not match SchemaVersion, the cache reports
// ForceRebuild() == true and Lookup never returns a hit; the reason is
// returned so the caller can log it.
func Open(path string) (c *Cache, forceRebuildReason string, err error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, "", runerr.IO("E_CACHE_MKDIR", "failed to create cache directory", err)
	}

	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, "", runerr.IO("E_CACHE_OPEN", "failed to open cache store", err)
	}

	evLRU, err := lru.New[string, []byte](eventsLRUSize)
	if err != nil {
		db.Close()
		return nil, "", runerr.IO("E_CACHE_LRU", "failed to initialize extraction-event cache", err)
	}

	c = &Cache{
		db:              db,
		eventsLRU:       evLRU,
		stagedEvents:    make(map[string][]byte),
		stagedTemplates: make(map[string][]byte),
	}

	stored, reason, err := c.checkSchema()
	if err != nil {
		db.Close()
		return nil, "", err
	}
	if !stored {
		c.forceRebuild = true
		forceRebuildReason = reason
	}

	return c, forceRebuildReason, nil
}

// checkSchema reads the persisted schema_version. It returns ok == true
// when the version matches; otherwise a human reason is returned.
func (c *Cache) checkSchema() (ok bool, reason string, err error) {
	var stored string
	err = c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(schemaKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			stored = ""
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			stored = string(val)
			return nil
		})
	})
	if err != nil {
		return false, "", runerr.IO("E_CACHE_READ", "failed to read cache schema version", err)
	}

	if stored == "" {
		return true, "", nil // fresh cache, nothing to invalidate
	}
	if stored != SchemaVersion {
		return false, fmt.Sprintf("cache schema_version %q does not match %q", stored, SchemaVersion), nil
	}
	return true, "", nil
}

// ForceRebuild reports whether the cache was invalidated by a schema
// mismatch; callers should treat every file as uncached for this run.
func (c *Cache) ForceRebuild() bool { return c.forceRebuild }

// Close releases the underlying store.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Lookup returns the persisted entry for canonicalPath, if any.
func (c *Cache) Lookup(canonicalPath string) (model.CacheEntry, bool, error) {
	if c.forceRebuild {
		return model.CacheEntry{}, false, nil
	}

	var entry model.CacheEntry
	found := false
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(fileKeyPrefix + canonicalPath))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &entry); err != nil {
				return err
			}
			found = true
			return nil
		})
	})
	if err != nil {
		return model.CacheEntry{}, false, runerr.IO("E_CACHE_READ", "failed to read cache entry", err)
	}
	return entry, found, nil
}

// Snapshot returns every persisted entry, used to compute the delta set
// union against the current walk.
func (c *Cache) Snapshot() (map[string]model.CacheEntry, error) {
	out := make(map[string]model.CacheEntry)
	if c.forceRebuild {
		return out, nil
	}

	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(fileKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var entry model.CacheEntry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return err
			}
			out[entry.CanonicalPath] = entry
		}
		return nil
	})
	if err != nil {
		return nil, runerr.IO("E_CACHE_READ", "failed to snapshot cache", err)
	}
	return out, nil
}

// Stage records entry to be committed by Finalize. Staging never mutates
// the persisted store; the run's cache view stays read-only until
// finalization, and commits atomically or not at all.
func (c *Cache) Stage(entry model.CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.staged = append(c.staged, entry)
}

// Finalize atomically commits every staged entry, event blob, and
// diagram template in a single transaction and stamps the schema
// version. It must be called only after a run finalizes successfully;
// on any earlier abort the staged state is simply discarded by letting
// the Cache value go out of scope, leaving the durable store untouched.
func (c *Cache) Finalize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.db.Update(func(txn *badger.Txn) error {
		for _, entry := range c.staged {
			val, err := json.Marshal(entry)
			if err != nil {
				return err
			}
			if err := txn.Set([]byte(fileKeyPrefix+entry.CanonicalPath), val); err != nil {
				return err
			}
		}
		for digest, blob := range c.stagedEvents {
			if err := txn.Set([]byte(eventsKeyPrefix+digest), blob); err != nil {
				return err
			}
		}
		for key, blob := range c.stagedTemplates {
			if err := txn.Set([]byte(templateKeyPrefix+key), blob); err != nil {
				return err
			}
		}
		return txn.Set([]byte(schemaKey), []byte(SchemaVersion))
	})
	if err != nil {
		return runerr.IO("E_CACHE_COMMIT", "failed to commit cache updates", err)
	}
	c.staged = nil
	c.stagedEvents = make(map[string][]byte)
	c.stagedTemplates = make(map[string][]byte)
	return nil
}

// PutEvents stages the extraction-event blob for digest. The blob is
// visible to GetEvents for the rest of the run (so repeated digests
// within one run reuse it) but reaches the durable store only when
// Finalize commits, keeping the cache read-only until finalization.
func (c *Cache) PutEvents(digest string, blob []byte) {
	c.eventsLRU.Add(digest, blob)
	c.mu.Lock()
	c.stagedEvents[digest] = blob
	c.mu.Unlock()
}

// GetEvents returns the extraction-event blob stored for digest,
// checking the in-process LRU, then this run's staged blobs, then the
// durable store.
func (c *Cache) GetEvents(digest string) ([]byte, bool, error) {
	if blob, ok := c.eventsLRU.Get(digest); ok {
		return blob, true, nil
	}
	c.mu.Lock()
	staged, ok := c.stagedEvents[digest]
	c.mu.Unlock()
	if ok {
		return staged, true, nil
	}

	var blob []byte
	found := false
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(eventsKeyPrefix + digest))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			blob = append([]byte(nil), val...)
			found = true
			return nil
		})
	})
	if err != nil {
		return nil, false, runerr.IO("E_CACHE_EVENTS_READ", "failed to read extraction events", err)
	}
	if found {
		c.eventsLRU.Add(digest, blob)
	}
	return blob, found, nil
}

// PutTemplate stages a diagram template's rendered bytes under its
// cache key, committed by Finalize alongside everything else.
func (c *Cache) PutTemplate(key string, blob []byte) {
	c.mu.Lock()
	c.stagedTemplates[key] = blob
	c.mu.Unlock()
}

// GetTemplate returns a diagram template previously stored under key.
func (c *Cache) GetTemplate(key string) ([]byte, bool, error) {
	if c.forceRebuild {
		return nil, false, nil
	}
	c.mu.Lock()
	staged, ok := c.stagedTemplates[key]
	c.mu.Unlock()
	if ok {
		return staged, true, nil
	}

	var blob []byte
	found := false
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(templateKeyPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			blob = append([]byte(nil), val...)
			found = true
			return nil
		})
	})
	if err != nil {
		return nil, false, runerr.IO("E_CACHE_TEMPLATE_READ", "failed to read diagram template", err)
	}
	return blob, found, nil
}

// Classify computes the per-run DeltaRecord set from a prior cache
// snapshot and the current walk's FileRecords: added (no prior
// entry), changed (digest differs), unchanged (digest equal), removed
// (prior entry, not seen this walk).
func Classify(prior map[string]model.CacheEntry, current []model.FileRecord) []model.DeltaRecord {
	seen := make(map[string]bool, len(current))
	records := make([]model.DeltaRecord, 0, len(prior)+len(current))

	for _, fr := range current {
		seen[fr.CanonicalPath] = true
		prevEntry, ok := prior[fr.CanonicalPath]
		switch {
		case !ok:
			records = append(records, model.DeltaRecord{
				CanonicalPath: fr.CanonicalPath,
				State:         model.DeltaAdded,
				CurrentDigest: fr.Digest,
			})
		case prevEntry.Digest != fr.Digest:
			records = append(records, model.DeltaRecord{
				CanonicalPath:  fr.CanonicalPath,
				State:          model.DeltaChanged,
				PreviousDigest: prevEntry.Digest,
				CurrentDigest:  fr.Digest,
			})
		default:
			records = append(records, model.DeltaRecord{
				CanonicalPath:  fr.CanonicalPath,
				State:          model.DeltaUnchanged,
				PreviousDigest: prevEntry.Digest,
				CurrentDigest:  fr.Digest,
			})
		}
	}

	for path, entry := range prior {
		if !seen[path] {
			records = append(records, model.DeltaRecord{
				CanonicalPath:  path,
				State:          model.DeltaRemoved,
				PreviousDigest: entry.Digest,
			})
		}
	}

	return records
}

// ApplyCached marks each FileRecord's Cached flag from the classified
// delta and the force-rebuild override, returning the updated slice.
func ApplyCached(records []model.FileRecord, delta []model.DeltaRecord, forceRebuild bool) []model.FileRecord {
	if forceRebuild {
		for i := range records {
			records[i].Cached = false
		}
		return records
	}
	unchanged := make(map[string]bool, len(delta))
	for _, d := range delta {
		if d.State == model.DeltaUnchanged {
			unchanged[d.CanonicalPath] = true
		}
	}
	for i := range records {
		records[i].Cached = unchanged[records[i].CanonicalPath]
	}
	return records
}
