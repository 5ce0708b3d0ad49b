package manageoffer

import (
	"context"
	"testing"

	"github.com/ledgerforge/coreledger/internal/bignum"
	"github.com/ledgerforge/coreledger/internal/ledgerstate"
	"github.com/ledgerforge/coreledger/internal/ledgerstore/memstore"
)

// Trust-line Balance is signed from Low's side. Every test here gives the
// issuers lower IDs than the takers and makers, so those holders are High and
// a holding of N is seeded as Balance -N.
func acct(b byte) ledgerstate.AccountID {
	var a ledgerstate.AccountID
	a[0] = b
	return a
}

func minAcct(a, b ledgerstate.AccountID) ledgerstate.AccountID {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return a
			}
			return b
		}
	}
	return a
}

func maxAcct(a, b ledgerstate.AccountID) ledgerstate.AccountID {
	if minAcct(a, b) == a {
		return b
	}
	return a
}

func seed(t *testing.T, root *ledgerstate.StoreRoot, entries ...ledgerstate.LedgerEntry) {
	t.Helper()
	ctx := context.Background()
	v, err := root.NewChild(ctx, false)
	if err != nil {
		t.Fatalf("NewChild: %v", err)
	}
	for _, e := range entries {
		if _, err := v.Create(ctx, e); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if err := v.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

// S6 — line-full at v>=10.
func TestManageOfferLineFull(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(ledgerstate.Header{LedgerSeq: 1, LedgerVersion: 17})
	root := ledgerstate.NewStoreRoot(store)

	issuerX := acct(1)
	issuerY := acct(2)
	x := ledgerstate.Asset{Code: [4]byte{'X'}, Issuer: issuerX}
	y := ledgerstate.Asset{Code: [4]byte{'Y'}, Issuer: issuerY}
	taker := acct(3)

	seed(t, root,
		&ledgerstate.AccountEntry{ID: taker, Balance: 1_000_000_0000},
		&ledgerstate.TrustLineEntry{
			Low: minAcct(taker, issuerX), High: maxAcct(taker, issuerX),
			Code: x.Code, Balance: -500, LowLimit: 1000, HighLimit: 1000, LowAuthorized: true, HighAuthorized: true,
		},
		&ledgerstate.TrustLineEntry{
			Low: minAcct(taker, issuerY), High: maxAcct(taker, issuerY),
			Code: y.Code, Balance: -950, LowLimit: 1000, HighLimit: 1000, LowAuthorized: true, HighAuthorized: true,
		},
		&ledgerstate.AccountEntry{ID: issuerX, Balance: 1_000_000_0000},
		&ledgerstate.AccountEntry{ID: issuerY, Balance: 1_000_000_0000},
	)

	v, err := root.NewChild(ctx, false)
	if err != nil {
		t.Fatalf("NewChild: %v", err)
	}
	req := Request{
		Taker:        taker,
		SellingAsset: x,
		BuyingAsset:  y,
		Amount:       100,
		Price:        bignum.Rational{N: 1, D: 1},
	}
	result, err := Run(ctx, v, req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Success || result.Code != CodeLineFull {
		t.Fatalf("result = %+v, want failure LineFull", result)
	}
}

// A taker whose selling line has a non-zero raw balance (so checkTrust's
// balance>0 check passes) but whose entire balance is already tied up in an
// existing offer's selling liabilities, crossed against a resting offer big
// enough to fill the whole requested amount, must fail Underfunded before
// ever reaching exchange.Cross/DebitAsset rather than panicking.
func TestManageOfferCrossUnderfundedSellingCap(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(ledgerstate.Header{LedgerSeq: 1, LedgerVersion: 17})
	root := ledgerstate.NewStoreRoot(store)

	issuerX := acct(1)
	issuerY := acct(2)
	x := ledgerstate.Asset{Code: [4]byte{'X'}, Issuer: issuerX}
	y := ledgerstate.Asset{Code: [4]byte{'Y'}, Issuer: issuerY}
	taker := acct(3)
	maker := acct(4)

	takerXLine := ledgerstate.TrustLineEntry{
		Low: minAcct(taker, issuerX), High: maxAcct(taker, issuerX),
		Code: x.Code, Balance: -50, LowLimit: 1000, HighLimit: 1000, LowAuthorized: true, HighAuthorized: true,
	}
	if takerXLine.Low == taker {
		takerXLine.LowLiabilities = ledgerstate.Liabilities{Selling: 50}
	} else {
		takerXLine.HighLiabilities = ledgerstate.Liabilities{Selling: 50}
	}

	seed(t, root,
		&ledgerstate.AccountEntry{ID: taker, Balance: 1_000_000_0000},
		&ledgerstate.AccountEntry{ID: maker, Balance: 1_000_000_0000},
		&takerXLine,
		&ledgerstate.TrustLineEntry{
			Low: minAcct(taker, issuerY), High: maxAcct(taker, issuerY),
			Code: y.Code, Balance: 0, LowLimit: 1000, HighLimit: 1000, LowAuthorized: true, HighAuthorized: true,
		},
		&ledgerstate.TrustLineEntry{
			Low: minAcct(maker, issuerY), High: maxAcct(maker, issuerY),
			Code: y.Code, Balance: -1000, LowLimit: 1000, HighLimit: 1000, LowAuthorized: true, HighAuthorized: true,
		},
		&ledgerstate.TrustLineEntry{
			Low: minAcct(maker, issuerX), High: maxAcct(maker, issuerX),
			Code: x.Code, Balance: 0, LowLimit: 1000, HighLimit: 1000, LowAuthorized: true, HighAuthorized: true,
		},
		&ledgerstate.AccountEntry{ID: issuerX, Balance: 1_000_000_0000},
		&ledgerstate.AccountEntry{ID: issuerY, Balance: 1_000_000_0000},
		// maker rests a large sell-Y-for-X offer, more than enough to fill
		// whatever the taker asks for.
		&ledgerstate.OfferEntry{SellerID: maker, SellingAsset: y, BuyingAsset: x, Amount: 1000, Price: bignum.Rational{N: 1, D: 1}, OfferID: 1},
	)

	v, err := root.NewChild(ctx, false)
	if err != nil {
		t.Fatalf("NewChild: %v", err)
	}
	req := Request{
		Taker:        taker,
		SellingAsset: x,
		BuyingAsset:  y,
		Amount:       1000,
		Price:        bignum.Rational{N: 1, D: 1},
	}
	result, err := Run(ctx, v, req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Success || result.Code != CodeUnderfunded {
		t.Fatalf("result = %+v, want failure Underfunded", result)
	}
}

// S5 — passive strict price.
func TestManageOfferPassiveStopsAtEqualPrice(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(ledgerstate.Header{LedgerSeq: 1, LedgerVersion: 17})
	root := ledgerstate.NewStoreRoot(store)

	issuerX := acct(1)
	issuerY := acct(2)
	x := ledgerstate.Asset{Code: [4]byte{'X'}, Issuer: issuerX}
	y := ledgerstate.Asset{Code: [4]byte{'Y'}, Issuer: issuerY}
	taker := acct(3)
	maker := acct(4)

	seed(t, root,
		&ledgerstate.AccountEntry{ID: taker, Balance: 1_000_000_0000},
		&ledgerstate.TrustLineEntry{
			Low: minAcct(taker, issuerX), High: maxAcct(taker, issuerX),
			Code: x.Code, Balance: -500, LowLimit: 1000, HighLimit: 1000, LowAuthorized: true, HighAuthorized: true,
		},
		&ledgerstate.TrustLineEntry{
			Low: minAcct(taker, issuerY), High: maxAcct(taker, issuerY),
			Code: y.Code, Balance: 0, LowLimit: 1000, HighLimit: 1000, LowAuthorized: true, HighAuthorized: true,
		},
		&ledgerstate.AccountEntry{ID: issuerX, Balance: 1_000_000_0000},
		&ledgerstate.AccountEntry{ID: issuerY, Balance: 1_000_000_0000},
		// O: maker sells Y for X at price 2/1 (2 X per 1 Y), id=1.
		&ledgerstate.OfferEntry{SellerID: maker, SellingAsset: y, BuyingAsset: x, Amount: 100, Price: bignum.Rational{N: 2, D: 1}, OfferID: 1},
	)

	v, err := root.NewChild(ctx, false)
	if err != nil {
		t.Fatalf("NewChild: %v", err)
	}
	// Passive taker sells X for Y at price 1/2 (wheat per sheep), so
	// maxWheatPrice = invert(1/2) = 2/1 — equal to O's price, and passive
	// means the bound is strict (<), so the filter must Stop on O rather
	// than cross it.
	req := Request{
		Taker:        taker,
		SellingAsset: x,
		BuyingAsset:  y,
		Amount:       100,
		Price:        bignum.Rational{N: 1, D: 2},
		Passive:      true,
	}
	result, err := Run(ctx, v, req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success || result.Kind != Created {
		t.Fatalf("result = %+v, want a successful Created (offer installed unmatched)", result)
	}
	if result.Offer == nil || result.Offer.Amount != 100 {
		t.Fatalf("offer = %+v, want the full amount 100 unmatched", result.Offer)
	}
	if len(result.OffersClaimed) != 0 {
		t.Fatalf("OffersClaimed = %+v, want none (filter stopped before any fill)", result.OffersClaimed)
	}
	if err := v.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	r2, err := root.NewChild(ctx, false)
	if err != nil {
		t.Fatalf("NewChild after commit: %v", err)
	}
	offers, err := r2.GetOffersByAccountAndAsset(ctx, maker, y)
	if err != nil {
		t.Fatalf("GetOffersByAccountAndAsset: %v", err)
	}
	if len(offers) != 1 || offers[0].Amount != 100 {
		t.Fatalf("maker's offer O should be untouched, got %+v", offers)
	}
}

// Modifying an existing offer must release its prior liabilities (and only
// its liabilities, never the real balance) before the residual re-acquires
// its own, and a second, independent offer sharing the same trust line must
// be constrained by whatever liability the first one still reserves.
func TestManageOfferModifyReleasesLiabilitiesWithoutMovingBalance(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(ledgerstate.Header{LedgerSeq: 1, LedgerVersion: 17})
	root := ledgerstate.NewStoreRoot(store)

	issuerX := acct(1)
	issuerY := acct(2)
	x := ledgerstate.Asset{Code: [4]byte{'X'}, Issuer: issuerX}
	y := ledgerstate.Asset{Code: [4]byte{'Y'}, Issuer: issuerY}
	taker := acct(3)

	// Offer 5 was "previously placed" reserving 300 of selling liability on
	// X and the matching 300 of buying liability on Y, as ManageOffer's own
	// re-acquire step would have set when it was created.
	xLine := ledgerstate.TrustLineEntry{
		Low: minAcct(taker, issuerX), High: maxAcct(taker, issuerX),
		Code: x.Code, Balance: -500, LowLimit: 1000, HighLimit: 1000, LowAuthorized: true, HighAuthorized: true,
	}
	yLine := ledgerstate.TrustLineEntry{
		Low: minAcct(taker, issuerY), High: maxAcct(taker, issuerY),
		Code: y.Code, Balance: 0, LowLimit: 1000, HighLimit: 1000, LowAuthorized: true, HighAuthorized: true,
	}
	if xLine.Low == taker {
		xLine.LowLiabilities = ledgerstate.Liabilities{Selling: 300}
	} else {
		xLine.HighLiabilities = ledgerstate.Liabilities{Selling: 300}
	}
	if yLine.Low == taker {
		yLine.LowLiabilities = ledgerstate.Liabilities{Buying: 300}
	} else {
		yLine.HighLiabilities = ledgerstate.Liabilities{Buying: 300}
	}

	seed(t, root,
		&ledgerstate.AccountEntry{ID: taker, Balance: 1_000_000_0000},
		&ledgerstate.AccountEntry{ID: issuerX, Balance: 1_000_000_0000},
		&ledgerstate.AccountEntry{ID: issuerY, Balance: 1_000_000_0000},
		&xLine, &yLine,
		&ledgerstate.OfferEntry{SellerID: taker, SellingAsset: x, BuyingAsset: y, Amount: 300, Price: bignum.Rational{N: 1, D: 1}, OfferID: 5},
	)

	v, err := root.NewChild(ctx, false)
	if err != nil {
		t.Fatalf("NewChild: %v", err)
	}
	result, err := Run(ctx, v, Request{
		Taker:        taker,
		SellingAsset: x,
		BuyingAsset:  y,
		Amount:       50,
		Price:        bignum.Rational{N: 1, D: 1},
		OfferID:      5,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success || result.Kind != Updated || result.Offer == nil || result.Offer.Amount != 50 {
		t.Fatalf("result = %+v, want a successful Updated with amount 50", result)
	}
	if err := v.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	r2, err := root.NewChild(ctx, false)
	if err != nil {
		t.Fatalf("NewChild after commit: %v", err)
	}
	xtl, err := ledgerstate.LoadTrustLine(ctx, r2, taker, x)
	if err != nil || xtl == nil {
		t.Fatalf("LoadTrustLine X: %v, %v", xtl, err)
	}
	if got := xtl.Balance(); got != 500 {
		t.Fatalf("X balance = %d, want 500 (releasing the old liability must not move the real balance)", got)
	}
	if got := xtl.Liabilities().Selling; got != 50 {
		t.Fatalf("X selling liability = %d, want 50 (old 300 released, new 50 re-acquired)", got)
	}
	xtl.Release()

	ytl, err := ledgerstate.LoadTrustLine(ctx, r2, taker, y)
	if err != nil || ytl == nil {
		t.Fatalf("LoadTrustLine Y: %v, %v", ytl, err)
	}
	if got := ytl.Liabilities().Buying; got != 50 {
		t.Fatalf("Y buying liability = %d, want 50 (old 300 released, new 50 re-acquired)", got)
	}
	ytl.Release()
	if err := r2.Rollback(ctx); err != nil {
		t.Fatalf("Rollback r2: %v", err)
	}

	// A second, independent offer selling the same asset X must be
	// constrained by the 50 still reserved by offer 5's residual, not given
	// the account's full 500 balance on X.
	v2, err := root.NewChild(ctx, false)
	if err != nil {
		t.Fatalf("NewChild: %v", err)
	}
	second, err := Run(ctx, v2, Request{
		Taker:        taker,
		SellingAsset: x,
		BuyingAsset:  ledgerstate.NativeAsset,
		Amount:       480,
		Price:        bignum.Rational{N: 1, D: 1},
	})
	if err != nil {
		t.Fatalf("Run (second offer): %v", err)
	}
	if !second.Success || second.Offer == nil {
		t.Fatalf("second result = %+v, want success", second)
	}
	if second.Offer.Amount != 450 {
		t.Fatalf("second offer amount = %d, want 450 (500 balance - 50 already reserved)", second.Offer.Amount)
	}
}

func TestManageOfferCreate(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(ledgerstate.Header{LedgerSeq: 1, LedgerVersion: 17})
	root := ledgerstate.NewStoreRoot(store)

	issuerX := acct(1)
	issuerY := acct(2)
	x := ledgerstate.Asset{Code: [4]byte{'X'}, Issuer: issuerX}
	y := ledgerstate.Asset{Code: [4]byte{'Y'}, Issuer: issuerY}
	taker := acct(3)

	seed(t, root,
		&ledgerstate.AccountEntry{ID: taker, Balance: 1_000_000_0000},
		&ledgerstate.TrustLineEntry{
			Low: minAcct(taker, issuerX), High: maxAcct(taker, issuerX),
			Code: x.Code, Balance: -500, LowLimit: 1000, HighLimit: 1000, LowAuthorized: true, HighAuthorized: true,
		},
		&ledgerstate.TrustLineEntry{
			Low: minAcct(taker, issuerY), High: maxAcct(taker, issuerY),
			Code: y.Code, Balance: 0, LowLimit: 1000, HighLimit: 1000, LowAuthorized: true, HighAuthorized: true,
		},
		&ledgerstate.AccountEntry{ID: issuerX, Balance: 1_000_000_0000},
		&ledgerstate.AccountEntry{ID: issuerY, Balance: 1_000_000_0000},
	)

	v, err := root.NewChild(ctx, false)
	if err != nil {
		t.Fatalf("NewChild: %v", err)
	}
	req := Request{
		Taker:        taker,
		SellingAsset: x,
		BuyingAsset:  y,
		Amount:       100,
		Price:        bignum.Rational{N: 1, D: 1},
	}
	result, err := Run(ctx, v, req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success || result.Kind != Created {
		t.Fatalf("result = %+v, want a successful Created", result)
	}
	if result.Offer == nil || result.Offer.Amount != 100 {
		t.Fatalf("offer = %+v, want amount 100 (empty book, no crossing)", result.Offer)
	}
}
