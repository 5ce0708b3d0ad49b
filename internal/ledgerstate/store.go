package ledgerstate

import "context"

// InflationVote is one (accountID, votes) pair as reported by the
// persistent store's inflation-winner query, per spec.md §6.
type InflationVote struct {
	Account AccountID
	Votes   int64
}

// Store is the persistent-store contract the engine requires, per spec.md
// §6. Every method takes a context — read-through I/O against the store may
// block, and per §5 this is the one suspension point the engine exposes to
// callers.
type Store interface {
	LoadByKey(ctx context.Context, k Key) (LedgerEntry, bool, error)
	InsertOrUpdate(ctx context.Context, e LedgerEntry, isInsert bool) error
	Delete(ctx context.Context, k Key) error
	LoadBestOffers(ctx context.Context, buying, selling Asset, limit, offset int) ([]*OfferEntry, error)
	LoadAllOffers(ctx context.Context) ([]*OfferEntry, error)
	LoadOffersByAccountAndAsset(ctx context.Context, account AccountID, asset Asset) ([]*OfferEntry, error)
	LoadInflationWinners(ctx context.Context, maxWinners int, minVotes int64) ([]InflationVote, error)
	CountObjects(ctx context.Context, t EntryType) (int64, error)
	CountObjectsInRange(ctx context.Context, t EntryType, lo, hi uint32) (int64, error)
	LoadHeader(ctx context.Context) (Header, error)

	// Begin opens a store-level transaction. StoreRoot allows exactly one
	// open transaction (and therefore exactly one child StateView) at a
	// time, per spec.md §4.2.
	Begin(ctx context.Context) (StoreTx, error)

	// DeleteObjectsModifiedOnOrAfterLedger supports the one documented
	// bulk-invalidation trigger for the entry cache besides a commit
	// exception (spec.md §4.2).
	DeleteObjectsModifiedOnOrAfterLedger(ctx context.Context, seq uint32) error
}

// StoreTx is a Store bound to one open transaction, with explicit
// commit/rollback.
type StoreTx interface {
	Store
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
