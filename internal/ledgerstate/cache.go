package ledgerstate

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// bestOfferBatchSize is the fixed batch size the best-offer cache extends
// its ordered prefix by, per spec.md §4.2.
const bestOfferBatchSize = 5

// entryCacheValue is the cached resolution for one key: either the entry as
// it exists in the store, or a recorded absence. Grounded on the teacher's
// LedgerCache (internal/core/ledger/manager/cache.go), adapted from
// ledger-by-sequence to entry-by-key.
type entryCacheValue struct {
	entry   LedgerEntry
	present bool
}

// entryCache is an LRU on key -> (present(entry)|absent), populated on
// read-through, updated (not invalidated) on commit, and bulk-invalidated
// only on a commit exception or deleteObjectsModifiedOnOrAfterLedger.
type entryCache struct {
	mu    sync.RWMutex
	cache *lru.Cache[Key, entryCacheValue]
}

func newEntryCache(size int) *entryCache {
	if size <= 0 {
		size = 4096
	}
	c, err := lru.New[Key, entryCacheValue](size)
	if err != nil {
		panic(err) // size is always > 0 here; lru.New only fails on size <= 0
	}
	return &entryCache{cache: c}
}

func (c *entryCache) get(k Key) (entryCacheValue, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache.Get(k)
}

func (c *entryCache) put(k Key, v entryCacheValue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(k, v)
}

func (c *entryCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Purge()
}

// bookKey identifies a (buying, selling) offer-book pair for the best-offer
// cache.
type bookKey struct {
	buying  Asset
	selling Asset
}

// bestOfferCacheValue is the cached ordered prefix for one book, plus
// whether the store has been fully drained for that book.
type bestOfferCacheValue struct {
	prefix    []*OfferEntry
	allLoaded bool
}

// bestOfferCache is an LRU on (buyingAsset, sellingAsset) -> ordered prefix,
// extended in batches, cleared on every child commit (the ledger has
// changed), per spec.md §4.2.
type bestOfferCache struct {
	mu    sync.Mutex
	cache *lru.Cache[bookKey, bestOfferCacheValue]
}

func newBestOfferCache(size int) *bestOfferCache {
	if size <= 0 {
		size = 256
	}
	c, err := lru.New[bookKey, bestOfferCacheValue](size)
	if err != nil {
		panic(err)
	}
	return &bestOfferCache{cache: c}
}

func (c *bestOfferCache) get(buying, selling Asset) (bestOfferCacheValue, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Get(bookKey{buying: buying, selling: selling})
}

func (c *bestOfferCache) put(buying, selling Asset, v bestOfferCacheValue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(bookKey{buying: buying, selling: selling}, v)
}

func (c *bestOfferCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Purge()
}
