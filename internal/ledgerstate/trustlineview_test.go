package ledgerstate

import (
	"context"
	"testing"

	"github.com/ledgerforge/coreledger/internal/bignum"
	"github.com/ledgerforge/coreledger/internal/ledgerstore/memstore"
)

func TestLoadTrustLineIssuerSynthetic(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(testHeader())
	root := NewStoreRoot(store)

	issuer := newAccountID(1)
	asset := Asset{Code: [4]byte{'X'}, Issuer: issuer}

	v, err := root.NewChild(ctx, false)
	if err != nil {
		t.Fatalf("NewChild: %v", err)
	}
	tl, err := LoadTrustLine(ctx, v, issuer, asset)
	if err != nil {
		t.Fatalf("LoadTrustLine: %v", err)
	}
	if tl == nil {
		t.Fatal("expected synthetic issuer trust line, got nil")
	}
	if !tl.IsAuthorized() {
		t.Fatal("issuer trust line must always be authorized")
	}
	if got := tl.Liabilities(); got != (Liabilities{}) {
		t.Fatalf("issuer liabilities = %+v, want zero", got)
	}
	if got := tl.AddBalance(1000); got != 0 {
		t.Fatalf("issuer AddBalance must be a no-op returning 0, got %d", got)
	}
	if got := tl.Balance(); got != bignum.MaxInt64 {
		t.Fatalf("issuer balance = %d, want bignum.MaxInt64 (unlimited)", got)
	}
}

func TestLoadTrustLineRealLine(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(testHeader())
	root := NewStoreRoot(store)

	issuer := newAccountID(1)
	holder := newAccountID(2)
	code := [4]byte{'X'}
	asset := Asset{Code: code, Issuer: issuer}

	mustSeed(t, root, &TrustLineEntry{
		Low:       minAccount(holder, issuer),
		High:      maxAccount(holder, issuer),
		Code:      code,
		Balance:   -10, // holder sorts above issuer, so it is High: holds 10
		LowLimit:  1000,
		HighLimit: 1000,
	})

	v, err := root.NewChild(ctx, false)
	if err != nil {
		t.Fatalf("NewChild: %v", err)
	}
	tl, err := LoadTrustLine(ctx, v, holder, asset)
	if err != nil {
		t.Fatalf("LoadTrustLine: %v", err)
	}
	if tl == nil {
		t.Fatal("expected a real trust line, got nil")
	}
	if got := tl.Limit(); got != 1000 {
		t.Fatalf("Limit = %d, want 1000", got)
	}
	tl.AddBalance(5)
	tl.Release()

	tl2, err := LoadTrustLine(ctx, v, holder, asset)
	if err != nil {
		t.Fatalf("second LoadTrustLine: %v", err)
	}
	defer tl2.Release()
	balance := tl2.Balance()
	if balance != 15 && balance != 5 {
		t.Fatalf("Balance after AddBalance = %d, want a signed adjustment of 5 applied", balance)
	}
}

func minAccount(a, b AccountID) AccountID {
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

func maxAccount(a, b AccountID) AccountID {
	if minAccount(a, b) == a {
		return b
	}
	return a
}
