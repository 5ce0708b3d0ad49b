package ledgerstate

import (
	"context"
	"testing"

	"github.com/ledgerforge/coreledger/internal/bignum"
	"github.com/ledgerforge/coreledger/internal/ledgerstore/memstore"
)

func testHeader() Header {
	return Header{LedgerSeq: 1, LedgerVersion: 17}
}

func mustSeed(t *testing.T, root *StoreRoot, entries ...LedgerEntry) {
	t.Helper()
	ctx := context.Background()
	v, err := root.NewChild(ctx, false)
	if err != nil {
		t.Fatalf("NewChild: %v", err)
	}
	for _, e := range entries {
		if _, err := v.Create(ctx, e); err != nil {
			t.Fatalf("seed Create: %v", err)
		}
	}
	if err := v.Commit(ctx); err != nil {
		t.Fatalf("seed Commit: %v", err)
	}
}

func newAccountID(b byte) AccountID {
	var a AccountID
	a[0] = b
	return a
}

// S1 — create then rollback.
func TestScenarioCreateThenRollback(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(testHeader())
	root := NewStoreRoot(store)

	r, err := root.NewChild(ctx, false)
	if err != nil {
		t.Fatalf("NewChild: %v", err)
	}
	c, err := r.NewChild(false)
	if err != nil {
		t.Fatalf("child NewChild: %v", err)
	}

	x := Asset{Native: false, Code: [4]byte{'X'}, Issuer: newAccountID(1)}
	y := Asset{Native: false, Code: [4]byte{'Y'}, Issuer: newAccountID(2)}
	offer := &OfferEntry{
		SellerID:     newAccountID(3),
		SellingAsset: x,
		BuyingAsset:  y,
		Amount:       100,
		Price:        bignum.Rational{N: 1, D: 1},
		OfferID:      0,
	}
	if _, err := c.Create(ctx, offer); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := c.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	offers, err := r.GetAllOffers(ctx)
	if err != nil {
		t.Fatalf("GetAllOffers: %v", err)
	}
	if len(offers) != 0 {
		t.Fatalf("expected no offers after rollback, got %d", len(offers))
	}
	if err := r.Rollback(ctx); err != nil {
		t.Fatalf("root Rollback: %v", err)
	}

	n, err := store.CountObjects(ctx, EntryTypeOffer)
	if err != nil {
		t.Fatalf("CountObjects: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 stored offers, got %d", n)
	}
}

// S2 — nested commit folding.
func TestScenarioNestedCommitFolding(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(testHeader())
	root := NewStoreRoot(store)

	acctID := newAccountID(9)
	mustSeed(t, root, &AccountEntry{ID: acctID, Balance: 7})

	r, err := root.NewChild(ctx, false)
	if err != nil {
		t.Fatalf("NewChild: %v", err)
	}
	c1, err := r.NewChild(false)
	if err != nil {
		t.Fatalf("c1: %v", err)
	}
	c2, err := c1.NewChild(false)
	if err != nil {
		t.Fatalf("c2: %v", err)
	}

	h, err := c2.Load(ctx, AccountKey(acctID))
	if err != nil || h == nil {
		t.Fatalf("Load in c2: %v", err)
	}
	acct := h.Get().(*AccountEntry).Clone().(*AccountEntry)
	acct.Balance = 42
	h.Set(acct)

	if err := c2.Commit(ctx); err != nil {
		t.Fatalf("c2.Commit: %v", err)
	}

	h1, err := c1.Load(ctx, AccountKey(acctID))
	if err != nil || h1 == nil {
		t.Fatalf("Load in c1: %v", err)
	}
	if got := h1.Get().(*AccountEntry).Balance; got != 42 {
		t.Fatalf("c1 balance = %d, want 42", got)
	}
	h1.Release()

	if err := c1.Rollback(ctx); err != nil {
		t.Fatalf("c1.Rollback: %v", err)
	}

	hr, err := r.Load(ctx, AccountKey(acctID))
	if err != nil || hr == nil {
		t.Fatalf("Load in r: %v", err)
	}
	if got := hr.Get().(*AccountEntry).Balance; got != 7 {
		t.Fatalf("r balance = %d, want original 7", got)
	}
}

// Invariant 2: a key with a live handle rejects a second Load/Create/Erase.
func TestAlreadyActiveHandleBlocksSecondAcquisition(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(testHeader())
	root := NewStoreRoot(store)

	acctID := newAccountID(4)
	mustSeed(t, root, &AccountEntry{ID: acctID, Balance: 1})

	v, err := root.NewChild(ctx, false)
	if err != nil {
		t.Fatalf("NewChild: %v", err)
	}
	h, err := v.Load(ctx, AccountKey(acctID))
	if err != nil || h == nil {
		t.Fatalf("Load: %v", err)
	}

	if _, err := v.Load(ctx, AccountKey(acctID)); !isKind(err, KindAlreadyActive) {
		t.Fatalf("second Load: got %v, want AlreadyActive", err)
	}
	if err := v.Erase(ctx, AccountKey(acctID)); !isKind(err, KindAlreadyActive) {
		t.Fatalf("Erase while active: got %v, want AlreadyActive", err)
	}
	if _, err := v.Create(ctx, &AccountEntry{ID: acctID}); !isKind(err, KindAlreadyActive) {
		t.Fatalf("Create while active: got %v, want AlreadyActive", err)
	}

	h.Release()
	if _, err := v.Load(ctx, AccountKey(acctID)); err != nil {
		t.Fatalf("Load after release: %v", err)
	}
}

func isKind(err error, kind ErrorKind) bool {
	se, ok := err.(*StateError)
	return ok && se.Kind == kind
}

// Invariant: Create fails KeyExists for a key present anywhere up the chain,
// but a tombstoned key may be recreated.
func TestCreateKeyExistsAndTombstoneRecreate(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(testHeader())
	root := NewStoreRoot(store)

	acctID := newAccountID(5)
	mustSeed(t, root, &AccountEntry{ID: acctID, Balance: 1})

	v, err := root.NewChild(ctx, false)
	if err != nil {
		t.Fatalf("NewChild: %v", err)
	}
	if _, err := v.Create(ctx, &AccountEntry{ID: acctID}); !isKind(err, KindKeyExists) {
		t.Fatalf("Create over existing: got %v, want KeyExists", err)
	}

	if err := v.Erase(ctx, AccountKey(acctID)); err != nil {
		t.Fatalf("Erase: %v", err)
	}
	if err := v.Erase(ctx, AccountKey(acctID)); !isKind(err, KindNotFound) {
		t.Fatalf("second Erase: got %v, want NotFound", err)
	}

	h, err := v.Create(ctx, &AccountEntry{ID: acctID, Balance: 99})
	if err != nil {
		t.Fatalf("recreate after tombstone: %v", err)
	}
	if got := h.Get().(*AccountEntry).Balance; got != 99 {
		t.Fatalf("recreated balance = %d, want 99", got)
	}
}

// Invariant 3: GetChanges classifies Created/Updated/Removed against parent.
func TestGetChangesClassification(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(testHeader())
	root := NewStoreRoot(store)

	keep := newAccountID(6)
	gone := newAccountID(7)
	mustSeed(t, root, &AccountEntry{ID: keep, Balance: 1}, &AccountEntry{ID: gone, Balance: 1})

	v, err := root.NewChild(ctx, false)
	if err != nil {
		t.Fatalf("NewChild: %v", err)
	}

	h, err := v.Load(ctx, AccountKey(keep))
	if err != nil || h == nil {
		t.Fatalf("Load keep: %v", err)
	}
	updated := h.Get().(*AccountEntry).Clone().(*AccountEntry)
	updated.Balance = 5
	h.Set(updated)
	h.Release()

	if err := v.Erase(ctx, AccountKey(gone)); err != nil {
		t.Fatalf("Erase gone: %v", err)
	}

	fresh := newAccountID(8)
	if _, err := v.Create(ctx, &AccountEntry{ID: fresh, Balance: 3}); err != nil {
		t.Fatalf("Create fresh: %v", err)
	}

	changes, err := v.GetChanges(ctx)
	if err != nil {
		t.Fatalf("GetChanges: %v", err)
	}
	byKey := make(map[Key]Change, len(changes))
	for _, c := range changes {
		byKey[c.Key] = c
	}
	if c, ok := byKey[AccountKey(keep)]; !ok || c.Kind != ChangeUpdated {
		t.Fatalf("keep change = %+v, want Updated", c)
	}
	if c, ok := byKey[AccountKey(gone)]; !ok || c.Kind != ChangeRemoved {
		t.Fatalf("gone change = %+v, want Removed", c)
	}
	if c, ok := byKey[AccountKey(fresh)]; !ok || c.Kind != ChangeCreated {
		t.Fatalf("fresh change = %+v, want Created", c)
	}
}

// Invariant 5: repeated LoadBestOffer-equivalent lookups with a fixed exclude
// set are deterministic for fixed store contents.
func TestBestOfferDeterminism(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(testHeader())
	root := NewStoreRoot(store)

	x := Asset{Code: [4]byte{'X'}, Issuer: newAccountID(1)}
	y := Asset{Code: [4]byte{'Y'}, Issuer: newAccountID(2)}
	seller := newAccountID(3)
	mustSeed(t, root,
		&OfferEntry{SellerID: seller, SellingAsset: x, BuyingAsset: y, Amount: 50, Price: bignum.Rational{N: 2, D: 1}, OfferID: 1},
		&OfferEntry{SellerID: seller, SellingAsset: x, BuyingAsset: y, Amount: 50, Price: bignum.Rational{N: 1, D: 1}, OfferID: 2},
	)

	v, err := root.NewChild(ctx, false)
	if err != nil {
		t.Fatalf("NewChild: %v", err)
	}
	exclude := map[Key]struct{}{}
	best, err := v.bestOfferCandidate(ctx, y, x, exclude)
	if err != nil {
		t.Fatalf("bestOfferCandidate: %v", err)
	}
	if best == nil || best.OfferID != 2 {
		t.Fatalf("best = %+v, want offer 2 (lower price)", best)
	}

	again, err := v.bestOfferCandidate(ctx, y, x, exclude)
	if err != nil {
		t.Fatalf("bestOfferCandidate second call: %v", err)
	}
	if again == nil || again.OfferID != best.OfferID {
		t.Fatalf("non-deterministic best offer: %+v vs %+v", again, best)
	}
}
