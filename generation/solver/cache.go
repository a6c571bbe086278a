package solver

import (
	"sort"
	"sync"

	"github.com/crytic/evosynth/generation/symbolic"
	"github.com/fxamacker/cbor"
	"github.com/pkg/errors"
)

// Cache memoizes decided queries by their symbolic.Key.
type Cache interface {
	// Get returns the result stored for key, reporting false on a miss.
	Get(key string) (*Result, bool, error)

	// Put stores the result of a decided query.
	Put(key string, result *Result) error

	// Close releases the resources held by the cache.
	Close() error
}

// MemoryCache is a Cache held in memory only. It is safe for concurrent use.
type MemoryCache struct {
	lock    sync.RWMutex
	results map[string]*Result
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{results: make(map[string]*Result)}
}

func (c *MemoryCache) Get(key string) (*Result, bool, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	result, ok := c.results[key]
	return result, ok, nil
}

func (c *MemoryCache) Put(key string, result *Result) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.results[key] = result
	return nil
}

// Len returns the number of stored results.
func (c *MemoryCache) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.results)
}

func (c *MemoryCache) Close() error {
	return nil
}

// cachedValue is the stored form of one model entry. Values keep their sort so integers do not come back as
// unsigned or floating point numbers.
type cachedValue struct {
	Name   string        `cbor:"n"`
	Sort   symbolic.Sort `cbor:"k"`
	Int    int64         `cbor:"i"`
	Real   float64       `cbor:"r"`
	String string        `cbor:"t"`
}

type cachedResult struct {
	Satisfiable bool          `cbor:"s"`
	Model       []cachedValue `cbor:"m"`
}

func encodeResult(result *Result) ([]byte, error) {
	stored := cachedResult{Satisfiable: result.satisfiable}
	for name, value := range result.model {
		entry := cachedValue{Name: name}
		switch x := value.(type) {
		case int64:
			entry.Sort, entry.Int = symbolic.SortInt, x
		case float64:
			entry.Sort, entry.Real = symbolic.SortReal, x
		case string:
			entry.Sort, entry.String = symbolic.SortString, x
		default:
			return nil, errors.Errorf("cannot store model value %v of %s", value, name)
		}
		stored.Model = append(stored.Model, entry)
	}
	sort.Slice(stored.Model, func(i, j int) bool { return stored.Model[i].Name < stored.Model[j].Name })

	b, err := cbor.Marshal(stored, cbor.EncOptions{})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return b, nil
}

func decodeResult(data []byte) (*Result, error) {
	var stored cachedResult
	if err := cbor.Unmarshal(data, &stored); err != nil {
		return nil, errors.Wrap(err, "could not decode cached solver result")
	}
	if !stored.Satisfiable {
		return NewUNSAT(), nil
	}
	model := make(symbolic.Assignment, len(stored.Model))
	for _, entry := range stored.Model {
		switch entry.Sort {
		case symbolic.SortInt:
			model[entry.Name] = entry.Int
		case symbolic.SortReal:
			model[entry.Name] = entry.Real
		default:
			model[entry.Name] = entry.String
		}
	}
	return NewSAT(model), nil
}
