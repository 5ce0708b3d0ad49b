package leveldbstore

import (
	"context"
	"testing"

	"github.com/ledgerforge/coreledger/internal/bignum"
	"github.com/ledgerforge/coreledger/internal/ledgerstate"
)

func acct(b byte) ledgerstate.AccountID {
	var a ledgerstate.AccountID
	a[0] = b
	return a
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), ledgerstate.Header{LedgerSeq: 1, LedgerVersion: 17})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRoundTripEntryVariants(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	dest := acct(9)
	account := &ledgerstate.AccountEntry{ID: acct(1), Balance: 500, NumSubEntries: 2, InflationDest: &dest, Flags: 1}
	trustLine := &ledgerstate.TrustLineEntry{
		Low: acct(1), High: acct(2), Code: [4]byte{'U', 'S', 'D'},
		Balance: 10, LowLimit: 1000, HighLimit: 1000, LowAuthorized: true, HighAuthorized: true,
	}
	offer := &ledgerstate.OfferEntry{
		SellerID: acct(1), OfferID: 7,
		SellingAsset: ledgerstate.NativeAsset,
		BuyingAsset:  ledgerstate.Asset{Code: [4]byte{'U', 'S', 'D'}, Issuer: acct(2)},
		Amount:       100, Price: bignum.Rational{N: 3, D: 2},
	}
	data := &ledgerstate.DataEntry{Owner: acct(1), Name: "memo", Value: []byte("hello")}

	for _, e := range []ledgerstate.LedgerEntry{account, trustLine, offer, data} {
		if err := s.InsertOrUpdate(ctx, e, true); err != nil {
			t.Fatalf("InsertOrUpdate(%T): %v", e, err)
		}
	}

	got, ok, err := s.LoadByKey(ctx, account.Key())
	if err != nil || !ok {
		t.Fatalf("LoadByKey(account) = %v, %v, %v", got, ok, err)
	}
	gotAccount := got.(*ledgerstate.AccountEntry)
	if gotAccount.Balance != 500 || gotAccount.InflationDest == nil || *gotAccount.InflationDest != dest {
		t.Fatalf("account round-trip mismatch: %+v", gotAccount)
	}

	got, ok, err = s.LoadByKey(ctx, offer.Key())
	if err != nil || !ok {
		t.Fatalf("LoadByKey(offer) = %v, %v, %v", got, ok, err)
	}
	gotOffer := got.(*ledgerstate.OfferEntry)
	if gotOffer.Amount != 100 || !gotOffer.Price.Equal(bignum.Rational{N: 3, D: 2}) {
		t.Fatalf("offer round-trip mismatch: %+v", gotOffer)
	}
}

func TestLoadBestOffersOrdering(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	buying := ledgerstate.NativeAsset
	selling := ledgerstate.Asset{Code: [4]byte{'U', 'S', 'D'}, Issuer: acct(9)}

	offers := []*ledgerstate.OfferEntry{
		{SellerID: acct(1), OfferID: 3, SellingAsset: selling, BuyingAsset: buying, Amount: 10, Price: bignum.Rational{N: 2, D: 1}},
		{SellerID: acct(1), OfferID: 1, SellingAsset: selling, BuyingAsset: buying, Amount: 10, Price: bignum.Rational{N: 1, D: 1}},
		{SellerID: acct(1), OfferID: 2, SellingAsset: selling, BuyingAsset: buying, Amount: 10, Price: bignum.Rational{N: 1, D: 1}},
		// different asset pair, must not appear in the results below
		{SellerID: acct(1), OfferID: 4, SellingAsset: buying, BuyingAsset: selling, Amount: 10, Price: bignum.Rational{N: 1, D: 1}},
	}
	for _, o := range offers {
		if err := s.InsertOrUpdate(ctx, o, true); err != nil {
			t.Fatalf("InsertOrUpdate: %v", err)
		}
	}

	got, err := s.LoadBestOffers(ctx, buying, selling, 10, 0)
	if err != nil {
		t.Fatalf("LoadBestOffers: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d offers, want 3 (wrong asset pair leaked in): %+v", len(got), got)
	}
	wantOrder := []uint64{1, 2, 3}
	for i, w := range wantOrder {
		if got[i].OfferID != w {
			t.Fatalf("offer %d: got ID %d, want %d (price ASC, offerID ASC)", i, got[i].OfferID, w)
		}
	}
}

func TestBestOfferIndexFollowsAssetPairChange(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	buyingA := ledgerstate.NativeAsset
	sellingA := ledgerstate.Asset{Code: [4]byte{'U', 'S', 'D'}, Issuer: acct(9)}
	sellingB := ledgerstate.Asset{Code: [4]byte{'E', 'U', 'R'}, Issuer: acct(9)}

	offer := &ledgerstate.OfferEntry{SellerID: acct(1), OfferID: 1, SellingAsset: sellingA, BuyingAsset: buyingA, Amount: 10, Price: bignum.Rational{N: 1, D: 1}}
	if err := s.InsertOrUpdate(ctx, offer, true); err != nil {
		t.Fatalf("InsertOrUpdate: %v", err)
	}

	moved := &ledgerstate.OfferEntry{SellerID: acct(1), OfferID: 1, SellingAsset: sellingB, BuyingAsset: buyingA, Amount: 10, Price: bignum.Rational{N: 1, D: 1}}
	if err := s.InsertOrUpdate(ctx, moved, false); err != nil {
		t.Fatalf("InsertOrUpdate (update): %v", err)
	}

	stale, err := s.LoadBestOffers(ctx, buyingA, sellingA, 10, 0)
	if err != nil {
		t.Fatalf("LoadBestOffers(old pair): %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("old asset-pair index entry not cleaned up: %+v", stale)
	}

	fresh, err := s.LoadBestOffers(ctx, buyingA, sellingB, 10, 0)
	if err != nil {
		t.Fatalf("LoadBestOffers(new pair): %v", err)
	}
	if len(fresh) != 1 || fresh[0].OfferID != 1 {
		t.Fatalf("new asset-pair index missing the moved offer: %+v", fresh)
	}
}

func TestTxCommitAndRollback(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	txn, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := s.Begin(ctx); err != ledgerstate.ErrHasChild {
		t.Fatalf("second Begin = %v, want ErrHasChild", err)
	}

	entry := &ledgerstate.AccountEntry{ID: acct(5), Balance: 42}
	if err := txn.InsertOrUpdate(ctx, entry, true); err != nil {
		t.Fatalf("InsertOrUpdate: %v", err)
	}
	if _, ok, _ := s.LoadByKey(ctx, entry.Key()); ok {
		t.Fatalf("write leaked to the store before Commit")
	}
	if err := txn.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, ok, _ := s.LoadByKey(ctx, entry.Key()); !ok {
		t.Fatalf("Commit did not apply the batch")
	}

	txn2, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	entry2 := &ledgerstate.AccountEntry{ID: acct(6), Balance: 1}
	if err := txn2.InsertOrUpdate(ctx, entry2, true); err != nil {
		t.Fatalf("InsertOrUpdate: %v", err)
	}
	if err := txn2.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if _, ok, _ := s.LoadByKey(ctx, entry2.Key()); ok {
		t.Fatalf("rolled-back write was applied")
	}
}
