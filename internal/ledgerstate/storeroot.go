package ledgerstate

import (
	"context"
	"sort"
)

// StoreRoot is the bottom of the ancestor chain: a parentView backed
// directly by a persistent Store, with the entry and best-offer caches from
// cache.go layered in front of it, per spec.md §4.2 (component C4).
//
// StoreRoot allows at most one open child StateView at a time — a second
// NewChild call fails HasChild, mirroring the single-writer-transaction
// contract of the underlying Store.
type StoreRoot struct {
	store Store

	entries    *entryCache
	bestOffers *bestOfferCache

	hasChild bool
	tx       StoreTx
}

// NewStoreRoot wraps store with the engine's default cache sizes.
func NewStoreRoot(store Store) *StoreRoot {
	return NewStoreRootWithCacheSizes(store, 0, 0)
}

// NewStoreRootWithCacheSizes wraps store with caller-supplied entry and
// best-offer cache sizes. A size <= 0 falls back to the package default
// (see cache.go). Exposed so a deployment's config layer can size these
// caches to its working set instead of being stuck with the defaults.
func NewStoreRootWithCacheSizes(store Store, entryCacheSize, bestOfferCacheSize int) *StoreRoot {
	return &StoreRoot{
		store:      store,
		entries:    newEntryCache(entryCacheSize),
		bestOffers: newBestOfferCache(bestOfferCacheSize),
	}
}

// NewChild opens the one allowed top-level StateView, beginning a Store
// transaction. Fails HasChild if a child is already open.
func (r *StoreRoot) NewChild(ctx context.Context, updateLastModified bool) (*StateView, error) {
	if r.hasChild {
		return nil, newStateError(KindHasChild, "NewChild", Key{})
	}
	tx, err := r.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	header, err := tx.LoadHeader(ctx)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	r.tx = tx
	r.hasChild = true
	return &StateView{
		parent:             r,
		header:             header,
		slots:              make(map[Key]*slot),
		active:             make(map[Key]activeHandle),
		updateLastModified: updateLastModified,
		state:              viewOpen,
	}, nil
}

func (r *StoreRoot) childDone() {
	// A committed child has already finished the transaction and cleared
	// r.tx; anything still open here belongs to a rolled-back child.
	if r.tx != nil {
		_ = r.tx.Rollback(context.Background())
	}
	r.hasChild = false
	r.tx = nil
}

func (r *StoreRoot) currentHeader() Header {
	if r.tx == nil {
		return Header{}
	}
	h, err := r.tx.LoadHeader(context.Background())
	if err != nil {
		panicInvariant("currentHeader: " + err.Error())
	}
	return h
}

// lookup resolves k against the entry cache, falling through to the open
// transaction (or the store directly, outside a transaction, for read-only
// callers).
func (r *StoreRoot) lookup(ctx context.Context, k Key) (LedgerEntry, lookupState, error) {
	if cached, ok := r.entries.get(k); ok {
		if !cached.present {
			return nil, lookupAbsent, nil
		}
		return cached.entry, lookupPresent, nil
	}

	src := r.store
	if r.tx != nil {
		src = r.tx
	}
	entry, ok, err := src.LoadByKey(ctx, k)
	if err != nil {
		return nil, lookupAbsent, err
	}
	if !ok {
		r.entries.put(k, entryCacheValue{present: false})
		return nil, lookupAbsent, nil
	}
	r.entries.put(k, entryCacheValue{entry: entry, present: true})
	return entry, lookupPresent, nil
}

// foldChildCommit absorbs the top-level StateView's slots directly into the
// store transaction, updates the entry cache in place (never invalidating
// it wholesale — only a commit error or an explicit
// DeleteObjectsModifiedOnOrAfterLedger does that, per spec.md §4.2), and
// commits the underlying transaction.
func (r *StoreRoot) foldChildCommit(ctx context.Context, child *StateView) error {
	if r.tx == nil {
		panicInvariant("foldChildCommit called with no open store transaction")
	}
	for k, s := range child.slots {
		switch s.kind {
		case slotPresent:
			_, existed, err := r.tx.LoadByKey(ctx, k)
			if err != nil {
				_ = r.tx.Rollback(ctx)
				r.entries.purge()
				r.bestOffers.purge()
				return err
			}
			if err := r.tx.InsertOrUpdate(ctx, s.entry, !existed); err != nil {
				_ = r.tx.Rollback(ctx)
				r.entries.purge()
				r.bestOffers.purge()
				return err
			}
			r.entries.put(k, entryCacheValue{entry: s.entry, present: true})
		case slotTombstone:
			if err := r.tx.Delete(ctx, k); err != nil {
				_ = r.tx.Rollback(ctx)
				r.entries.purge()
				r.bestOffers.purge()
				return err
			}
			r.entries.put(k, entryCacheValue{present: false})
		}
	}
	if err := r.tx.Commit(ctx); err != nil {
		r.entries.purge()
		r.bestOffers.purge()
		return err
	}
	r.tx = nil
	if len(child.slots) > 0 {
		r.bestOffers.purge()
	}
	return nil
}

// bestOfferCandidate serves from the cached ordered prefix, extending it in
// bestOfferBatchSize batches from the store as needed to skip past the
// exclude set, per spec.md §4.2.
func (r *StoreRoot) bestOfferCandidate(ctx context.Context, buying, selling Asset, exclude map[Key]struct{}) (*OfferEntry, error) {
	cached, ok := r.bestOffers.get(buying, selling)
	if !ok {
		cached = bestOfferCacheValue{}
	}

	src := r.store
	if r.tx != nil {
		src = r.tx
	}

	for {
		for _, o := range cached.prefix {
			if _, skip := exclude[o.Key()]; skip {
				continue
			}
			return o, nil
		}
		if cached.allLoaded {
			return nil, nil
		}
		batch, err := src.LoadBestOffers(ctx, buying, selling, bestOfferBatchSize, len(cached.prefix))
		if err != nil {
			return nil, err
		}
		cached.prefix = append(cached.prefix, batch...)
		if len(batch) < bestOfferBatchSize {
			cached.allLoaded = true
		}
		r.bestOffers.put(buying, selling, cached)
		if len(batch) == 0 {
			return nil, nil
		}
	}
}

func (r *StoreRoot) allOffers(ctx context.Context) ([]*OfferEntry, error) {
	src := r.store
	if r.tx != nil {
		src = r.tx
	}
	return src.LoadAllOffers(ctx)
}

func (r *StoreRoot) offersByAccountAndAsset(ctx context.Context, account AccountID, asset Asset) ([]*OfferEntry, error) {
	src := r.store
	if r.tx != nil {
		src = r.tx
	}
	offers, err := src.LoadOffersByAccountAndAsset(ctx, account, asset)
	if err != nil {
		return nil, err
	}
	sort.Slice(offers, func(i, j int) bool { return isBetterOffer(offers[i], offers[j]) })
	return offers, nil
}

func (r *StoreRoot) inflationWinners(ctx context.Context, maxWinners int, minVotes int64) ([]InflationVote, error) {
	if maxWinners <= 0 {
		return nil, nil
	}
	src := r.store
	if r.tx != nil {
		src = r.tx
	}
	return src.LoadInflationWinners(ctx, maxWinners, minVotes)
}

// InvalidateFrom drops every cached entry and best-offer prefix — the
// engine's one bulk-invalidation path outside a commit error, per spec.md
// §4.2, used when the caller is about to rewind the store past ledgers the
// caches may have observed.
func (r *StoreRoot) InvalidateFrom(ctx context.Context, seq uint32) error {
	if err := r.store.DeleteObjectsModifiedOnOrAfterLedger(ctx, seq); err != nil {
		return err
	}
	r.entries.purge()
	r.bestOffers.purge()
	return nil
}

// CountObjects and CountObjectsInRange pass straight through to the store;
// they are diagnostic queries, not part of the transactional read path.
func (r *StoreRoot) CountObjects(ctx context.Context, t EntryType) (int64, error) {
	return r.store.CountObjects(ctx, t)
}

func (r *StoreRoot) CountObjectsInRange(ctx context.Context, t EntryType, lo, hi uint32) (int64, error) {
	return r.store.CountObjectsInRange(ctx, t, lo, hi)
}
