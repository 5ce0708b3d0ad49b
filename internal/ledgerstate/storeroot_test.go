package ledgerstate

import (
	"context"
	"testing"

	"github.com/ledgerforge/coreledger/internal/bignum"
	"github.com/ledgerforge/coreledger/internal/ledgerstore/memstore"
)

func TestStoreRootRejectsSecondTopLevelChild(t *testing.T) {
	ctx := context.Background()
	root := NewStoreRoot(memstore.New(testHeader()))

	v, err := root.NewChild(ctx, false)
	if err != nil {
		t.Fatalf("NewChild: %v", err)
	}
	if _, err := root.NewChild(ctx, false); err == nil {
		t.Fatal("second top-level NewChild succeeded, want HasChild")
	}

	if err := v.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := root.NewChild(ctx, false); err != nil {
		t.Fatalf("NewChild after Commit: %v", err)
	}
}

func TestStoreRootEntryCacheReflectsCommitWithoutWholesaleInvalidation(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(testHeader())
	root := NewStoreRoot(store)

	acctID := newAccountID(1)
	mustSeed(t, root, &AccountEntry{ID: acctID, Balance: 100})

	// First lookup populates the entry cache from the store.
	v, err := root.NewChild(ctx, false)
	if err != nil {
		t.Fatalf("NewChild: %v", err)
	}
	ev, err := v.Load(ctx, AccountKey(acctID))
	if err != nil || ev == nil {
		t.Fatalf("Load: %v, %v", ev, err)
	}
	if got := ev.Get().(*AccountEntry).Balance; got != 100 {
		t.Fatalf("Balance = %d, want 100", got)
	}
	ev.Release()
	if err := v.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// Mutate through a second top-level view; the cache should be updated
	// in place on commit, not purged, so the very next lookup sees the new
	// value without a store round trip.
	v2, err := root.NewChild(ctx, false)
	if err != nil {
		t.Fatalf("NewChild: %v", err)
	}
	ev2, err := v2.Load(ctx, AccountKey(acctID))
	if err != nil || ev2 == nil {
		t.Fatalf("Load: %v, %v", ev2, err)
	}
	updated := ev2.Get().(*AccountEntry).Clone().(*AccountEntry)
	updated.Balance = 250
	ev2.Set(updated)
	ev2.Release()
	if err := v2.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	cached, ok := root.entries.get(AccountKey(acctID))
	if !ok || !cached.present {
		t.Fatalf("expected the entry cache to hold the committed value, got ok=%v present=%v", ok, cached.present)
	}
	if got := cached.entry.(*AccountEntry).Balance; got != 250 {
		t.Fatalf("cached Balance = %d, want 250 (updated in place, not invalidated)", got)
	}
}

func TestStoreRootBestOfferCachePurgedOnOfferCommit(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(testHeader())
	root := NewStoreRoot(store)

	buying := NativeAsset
	selling := Asset{Code: [4]byte{'U', 'S', 'D'}, Issuer: newAccountID(9)}
	seller := newAccountID(1)

	mustSeed(t, root, &OfferEntry{
		SellerID: seller, OfferID: 1, SellingAsset: selling, BuyingAsset: buying,
		Amount: 10, Price: bignum.Rational{N: 1, D: 1},
	})

	// Populate the best-offer cache.
	v, err := root.NewChild(ctx, false)
	if err != nil {
		t.Fatalf("NewChild: %v", err)
	}
	if _, ok := root.bestOffers.get(buying, selling); ok {
		t.Fatal("best-offer cache populated before any lookup")
	}
	handle, err := v.LoadBestOffer(ctx, buying, selling, nil)
	if err != nil || handle == nil {
		t.Fatalf("LoadBestOffer: %v, %v", handle, err)
	}
	handle.Release()
	if _, ok := root.bestOffers.get(buying, selling); !ok {
		t.Fatal("expected LoadBestOffer to populate the best-offer cache")
	}
	if err := v.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	// Committing a second offer into the same book must purge the cached
	// prefix rather than leave it stale, per spec.md §4.2.
	mustSeed(t, root, &OfferEntry{
		SellerID: seller, OfferID: 2, SellingAsset: selling, BuyingAsset: buying,
		Amount: 10, Price: bignum.Rational{N: 1, D: 2},
	})
	if _, ok := root.bestOffers.get(buying, selling); ok {
		t.Fatal("best-offer cache survived a commit that added to the same book")
	}
}
