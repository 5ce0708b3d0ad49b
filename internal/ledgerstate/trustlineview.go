package ledgerstate

import (
	"context"

	"github.com/ledgerforge/coreledger/internal/bignum"
)

// TrustLineView is the polymorphic wrapper over "does account A trust asset
// X" from spec.md §4.3, grounded on the teacher's ripple-state helpers
// (internal/core/tx/sle/ripple_state.go) generalized to the two-variant
// dispatch the original TrustLineWrapper performs: a real TrustLineEntry
// handle, or a synthetic view standing in for the issuer's own unlimited
// line on its own asset.
type TrustLineView interface {
	// Balance returns holder's signed balance on this line.
	Balance() int64
	// Limit returns the trust limit holder has extended.
	Limit() int64
	// Liabilities returns holder's outstanding liabilities on this line.
	Liabilities() Liabilities
	// IsAuthorized reports whether holder may hold this asset.
	IsAuthorized() bool
	// AddBalance adjusts the balance by delta, returning the new balance.
	// On the synthetic issuer view this is a no-op that always returns 0.
	AddBalance(delta int64) int64
	// SetLiabilities replaces the outstanding liabilities on this line.
	// No-op on the synthetic issuer view.
	SetLiabilities(l Liabilities)
	// Release returns any underlying EntryView to its owning StateView.
	Release()
}

// realTrustLineView wraps an EntryView holding a *TrustLineEntry, dispatched
// from the holder's perspective.
type realTrustLineView struct {
	handle *EntryView
	holder AccountID
}

func (v *realTrustLineView) entry() *TrustLineEntry {
	return v.handle.Get().(*TrustLineEntry)
}

func (v *realTrustLineView) Balance() int64 {
	balance, _, _ := v.entry().BalanceFor(v.holder)
	return balance
}

func (v *realTrustLineView) Limit() int64 {
	_, limit, _ := v.entry().BalanceFor(v.holder)
	return limit
}

func (v *realTrustLineView) Liabilities() Liabilities {
	_, _, liab := v.entry().BalanceFor(v.holder)
	return liab
}

func (v *realTrustLineView) IsAuthorized() bool {
	return v.entry().IsAuthorizedFor(v.holder)
}

func (v *realTrustLineView) AddBalance(delta int64) int64 {
	e := v.entry()
	cp := *e
	if v.holder == e.Low {
		cp.Balance += delta
	} else {
		cp.Balance -= delta
	}
	v.handle.Set(&cp)
	balance, _, _ := cp.BalanceFor(v.holder)
	return balance
}

func (v *realTrustLineView) SetLiabilities(l Liabilities) {
	e := v.entry()
	cp := *e
	if v.holder == e.Low {
		cp.LowLiabilities = l
	} else {
		cp.HighLiabilities = l
	}
	v.handle.Set(&cp)
}

func (v *realTrustLineView) Release() {
	v.handle.Release()
}

// issuerTrustLineView is the synthetic stand-in for an issuer's own
// unlimited trust of its own asset: infinite balance capacity, zero
// liabilities, always authorized, no backing entry, mutations are no-ops.
type issuerTrustLineView struct{}

func (issuerTrustLineView) Balance() int64               { return bignum.MaxInt64 }
func (issuerTrustLineView) Limit() int64                 { return bignum.MaxInt64 }
func (issuerTrustLineView) Liabilities() Liabilities     { return Liabilities{} }
func (issuerTrustLineView) IsAuthorized() bool           { return true }
func (issuerTrustLineView) AddBalance(delta int64) int64 { return 0 }
func (issuerTrustLineView) SetLiabilities(l Liabilities) {}
func (issuerTrustLineView) Release()                     {}

// LoadTrustLine resolves the trust line between holder and asset, dispatching
// to the synthetic issuer view when holder is the asset's own issuer (an
// issuer is always considered to trust, without limit, its own issuance),
// and to a real TrustLineView backed by an EntryView otherwise. Returns
// (nil, nil) if no such trust line exists and holder isn't the issuer.
func LoadTrustLine(ctx context.Context, v *StateView, holder AccountID, asset Asset) (TrustLineView, error) {
	if asset.Native {
		panicInvariant("LoadTrustLine called on the native asset")
	}
	if holder == asset.Issuer {
		return issuerTrustLineView{}, nil
	}
	k := TrustLineKey(holder, asset.Issuer, asset.Code)
	handle, err := v.Load(ctx, k)
	if err != nil {
		return nil, err
	}
	if handle == nil {
		return nil, nil
	}
	return &realTrustLineView{handle: handle, holder: holder}, nil
}
