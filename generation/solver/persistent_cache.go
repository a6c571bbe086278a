package solver

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/crytic/evosynth/logging"
	"github.com/crytic/evosynth/utils"
	"github.com/crytic/evosynth/version"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

const (
	// cacheFileName is the name of the database file inside the cache directory.
	cacheFileName = "solver-cache.db"

	// defaultFlushThreshold is used when no positive flush threshold is configured.
	defaultFlushThreshold = 25
)

var (
	resultsBucket = []byte("results")
	metaBucket    = []byte("meta")
	versionKey    = []byte("version")
)

// PersistentCache is a Cache backed by a bbolt database, fronted by a MemoryCache. Writes are buffered and flushed
// to disk in batches. Results written by an incompatible version of the tool are discarded on open.
type PersistentCache struct {
	memory *MemoryCache
	db     *bbolt.DB

	pendingWriteLock sync.Mutex
	pendingWrites    []pendingWrite
	flushThreshold   int

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error

	logger *logging.Logger
}

type pendingWrite struct {
	key   []byte
	value []byte
}

// OpenPersistentCache opens or creates the cache database in directory. The cache is closed when ctx is cancelled.
func OpenPersistentCache(ctx context.Context, directory string, flushThreshold int) (*PersistentCache, error) {
	if err := utils.MakeDirectory(directory); err != nil {
		return nil, errors.Wrap(err, "could not create solver cache directory")
	}
	db, err := bbolt.Open(filepath.Join(directory, cacheFileName), 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "could not open solver cache")
	}
	if flushThreshold <= 0 {
		flushThreshold = defaultFlushThreshold
	}
	c := &PersistentCache{
		memory:         NewMemoryCache(),
		db:             db,
		pendingWrites:  make([]pendingWrite, 0, flushThreshold),
		flushThreshold: flushThreshold,
		closed:         make(chan struct{}),
		logger:         logging.GlobalLogger.NewSubLogger("module", logging.SOLVER_SERVICE),
	}
	if err = c.prepare(); err != nil {
		_ = db.Close()
		return nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
			if err := c.Close(); err != nil {
				c.logger.Error("Failed to close the solver cache", err)
			}
		case <-c.closed:
		}
	}()
	return c, nil
}

// prepare creates the buckets and drops results written by an incompatible version.
func (c *PersistentCache) prepare() error {
	return errors.WithStack(c.db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		if stored := meta.Get(versionKey); stored != nil && !version.IsCompatible(string(stored)) {
			c.logger.Warn("Discarding solver cache written by incompatible version ", string(stored))
			if err = tx.DeleteBucket(resultsBucket); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
				return err
			}
		}
		if _, err = tx.CreateBucketIfNotExists(resultsBucket); err != nil {
			return err
		}
		return meta.Put(versionKey, []byte(version.Version))
	}))
}

func (c *PersistentCache) Get(key string) (*Result, bool, error) {
	if result, ok, _ := c.memory.Get(key); ok {
		return result, true, nil
	}

	var data []byte
	err := c.db.View(func(tx *bbolt.Tx) error {
		if stored := tx.Bucket(resultsBucket).Get([]byte(key)); stored != nil {
			data = append([]byte(nil), stored...)
		}
		return nil
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "could not read solver cache")
	}
	if data == nil {
		// Buffered writes are already in memory, so a miss on disk is a miss
		return nil, false, nil
	}
	result, err := decodeResult(data)
	if err != nil {
		return nil, false, err
	}
	_ = c.memory.Put(key, result)
	return result, true, nil
}

func (c *PersistentCache) Put(key string, result *Result) error {
	if err := c.memory.Put(key, result); err != nil {
		return err
	}
	data, err := encodeResult(result)
	if err != nil {
		return err
	}

	c.pendingWriteLock.Lock()
	defer c.pendingWriteLock.Unlock()
	c.pendingWrites = append(c.pendingWrites, pendingWrite{key: []byte(key), value: data})
	if len(c.pendingWrites) >= c.flushThreshold {
		return c.flushWrites()
	}
	return nil
}

// Flush writes every buffered result to disk.
func (c *PersistentCache) Flush() error {
	c.pendingWriteLock.Lock()
	defer c.pendingWriteLock.Unlock()
	return c.flushWrites()
}

// flushWrites expects pendingWriteLock to be held.
func (c *PersistentCache) flushWrites() error {
	if len(c.pendingWrites) == 0 {
		return nil
	}
	err := c.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(resultsBucket)
		for _, pw := range c.pendingWrites {
			if err := bucket.Put(pw.key, pw.value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "could not flush solver cache")
	}
	c.pendingWrites = c.pendingWrites[:0]
	return nil
}

// Close flushes buffered results and closes the database. Subsequent calls return the result of the first.
func (c *PersistentCache) Close() error {
	c.closeOnce.Do(func() {
		defer close(c.closed)
		if err := c.Flush(); err != nil {
			c.closeErr = err
		}
		if err := c.db.Close(); err != nil && c.closeErr == nil {
			c.closeErr = errors.WithStack(err)
		}
	})
	return c.closeErr
}
