// Package manageoffer implements the end-to-end create/modify/delete
// algorithm for a maker offer (spec.md §4.5), the non-optional host of the
// offer-exchange kernel in internal/exchange.
package manageoffer

import (
	"context"

	"github.com/ledgerforge/coreledger/internal/bignum"
	"github.com/ledgerforge/coreledger/internal/exchange"
	"github.com/ledgerforge/coreledger/internal/exchange/adjuster"
	"github.com/ledgerforge/coreledger/internal/ledgerstate"
)

// ErrorCode is one of the published ManageOffer result codes. The zero
// value, CodeSuccess, is not itself informative — check Result.Success.
type ErrorCode int

const (
	CodeSuccess ErrorCode = iota
	CodeMalformed
	CodeSellNoTrust
	CodeSellNoIssuer
	CodeSellNotAuthorized
	CodeUnderfunded
	CodeBuyNoTrust
	CodeBuyNoIssuer
	CodeBuyNotAuthorized
	CodeLineFull
	CodeLowReserve
	CodeCrossSelf
	CodeNotFound
)

func (c ErrorCode) String() string {
	switch c {
	case CodeSuccess:
		return "Success"
	case CodeMalformed:
		return "Malformed"
	case CodeSellNoTrust:
		return "SellNoTrust"
	case CodeSellNoIssuer:
		return "SellNoIssuer"
	case CodeSellNotAuthorized:
		return "SellNotAuthorized"
	case CodeUnderfunded:
		return "Underfunded"
	case CodeBuyNoTrust:
		return "BuyNoTrust"
	case CodeBuyNoIssuer:
		return "BuyNoIssuer"
	case CodeBuyNotAuthorized:
		return "BuyNotAuthorized"
	case CodeLineFull:
		return "LineFull"
	case CodeLowReserve:
		return "LowReserve"
	case CodeCrossSelf:
		return "CrossSelf"
	case CodeNotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}

// Kind classifies a successful ManageOffer outcome.
type Kind int

const (
	Created Kind = iota
	Updated
	Deleted
)

// Request is one ManageOffer call's parameters.
type Request struct {
	Taker        ledgerstate.AccountID
	SellingAsset ledgerstate.Asset
	BuyingAsset  ledgerstate.Asset
	Amount       int64
	Price        bignum.Rational
	OfferID      uint64 // 0 means "create a new offer"
	Passive      bool
}

// Result is the outcome of a ManageOffer call.
type Result struct {
	Success       bool
	Code          ErrorCode
	Kind          Kind
	Offer         *ledgerstate.OfferEntry // nil if Deleted
	OffersClaimed []exchange.ClaimOfferAtom
}

func fail(code ErrorCode) (*Result, error) {
	return &Result{Success: false, Code: code}, nil
}

// Run executes the full ManageOffer algorithm against v, a StateView the
// caller has already opened as a dedicated child so the whole operation can
// be rolled back atomically on any published error code. Run itself opens
// one further child of v for its mutations and commits it into v only on a
// Success outcome; on any failure code v is left untouched.
func Run(ctx context.Context, v *ledgerstate.StateView, req Request) (*Result, error) {
	// 1. Validate.
	if req.SellingAsset.Equal(req.BuyingAsset) || req.Amount < 0 || req.Price.N <= 0 || req.Price.D <= 0 {
		return fail(CodeMalformed)
	}
	header := v.CurrentHeader()
	if header.LedgerVersion > 2 && req.OfferID == 0 && req.Amount == 0 {
		return fail(CodeMalformed)
	}

	work, err := v.NewChild(false)
	if err != nil {
		return nil, err
	}
	rollback := func() {
		_ = work.Rollback(ctx)
	}

	// 2. Trust checks, skipped entirely if amount == 0 (a pure delete needs
	// only step 3's NotFound check).
	if req.Amount != 0 {
		if code, err := checkTrust(ctx, work, req.Taker, req.SellingAsset, true); err != nil {
			rollback()
			return nil, err
		} else if code != CodeSuccess {
			rollback()
			return fail(code)
		}
		if code, err := checkTrust(ctx, work, req.Taker, req.BuyingAsset, false); err != nil {
			rollback()
			return nil, err
		} else if code != CodeSuccess {
			rollback()
			return fail(code)
		}
	}

	// 3. Modify vs create.
	var priorNumSubEntryDelta int32
	isNew := req.OfferID == 0
	if !isNew {
		existing, err := work.Load(ctx, ledgerstate.OfferKey(req.Taker, req.OfferID))
		if err != nil {
			rollback()
			return nil, err
		}
		if existing == nil {
			rollback()
			return fail(CodeNotFound)
		}
		old := existing.Get().(*ledgerstate.OfferEntry)
		if header.LedgerVersion >= 10 {
			if err := ledgerstate.AdjustSellingLiabilities(ctx, work, req.Taker, old.SellingAsset, -adjuster.SellingLiabilities(old)); err != nil {
				rollback()
				return nil, err
			}
			if err := ledgerstate.AdjustBuyingLiabilities(ctx, work, req.Taker, old.BuyingAsset, -adjuster.BuyingLiabilities(old)); err != nil {
				rollback()
				return nil, err
			}
		}
		if err := existing.Erase(ctx); err != nil {
			rollback()
			return nil, err
		}
	}

	// 4. Reserve a sub-entry if this creates a brand new offer.
	if isNew {
		priorNumSubEntryDelta = 1
		if req.Amount != 0 {
			acctHandle, err := work.LoadWithoutRecord(ctx, ledgerstate.AccountKey(req.Taker))
			if err != nil {
				rollback()
				return nil, err
			}
			if acctHandle != nil {
				acct := acctHandle.Get().(*ledgerstate.AccountEntry)
				required := ledgerstate.DefaultReservePolicy.Required(acct.NumSubEntries + 1)
				acctHandle.Release()
				if acct.Balance < required {
					rollback()
					return fail(CodeLowReserve)
				}
			}
		}
	}

	// At version >= 10, a full-amount buying-liabilities check runs before
	// crossing: if the untouched offer wouldn't even fit the taker's
	// available room on the buying asset, fail LineFull without spending
	// any of the offer-exchange budget.
	if header.LedgerVersion >= 10 && req.Amount != 0 && !req.BuyingAsset.Native {
		wanted := bignum.SaturatingMulDivUp(req.Amount, req.Price.N, req.Price.D)
		if wanted > availableBuying(ctx, work, req.Taker, req.BuyingAsset) {
			rollback()
			return fail(CodeLineFull)
		}
	}

	// 5. Run OfferExchange with the self-cross / passive-price filter.
	maxWheatPrice := req.Price.Invert()
	selfCrossed := false
	filter := func(candidate *ledgerstate.OfferEntry) exchange.FilterDecision {
		if candidate.SellerID == req.Taker {
			selfCrossed = true
			return exchange.Stop
		}
		if req.Passive {
			if candidate.Price.Less(maxWheatPrice) {
				return exchange.Keep
			}
			return exchange.Stop
		}
		if candidate.Price.LessOrEqual(maxWheatPrice) {
			return exchange.Keep
		}
		return exchange.Stop
	}

	// The taker can never cross for more than they actually have room to
	// sell, regardless of how large req.Amount is; without this cap, a
	// sufficiently large resting counter-offer would carry result.SheepSent
	// past real balance/trust-line room and panic inside DebitAsset (step 6)
	// instead of failing cleanly here.
	maxSheepSend := req.Amount
	sellingCap := availableSelling(ctx, work, req.Taker, req.SellingAsset)
	if req.Amount != 0 && sellingCap <= 0 {
		rollback()
		return fail(CodeUnderfunded)
	}
	if sellingCap < maxSheepSend {
		maxSheepSend = sellingCap
	}
	if header.LedgerVersion < 10 {
		byWheat := bignum.SaturatingMulDivUp(maxWheatReceiveCap(req), req.Price.D, req.Price.N)
		if byWheat < maxSheepSend {
			maxSheepSend = byWheat
		}
	}
	maxWheatReceive := maxWheatReceiveCap(req)

	result, err := exchange.Cross(ctx, work, req.SellingAsset, req.BuyingAsset, maxSheepSend, maxWheatReceive, filter)
	if err != nil {
		rollback()
		return nil, err
	}
	if selfCrossed {
		rollback()
		return fail(CodeCrossSelf)
	}

	// 6. Apply fills to the taker.
	if result.SheepSent > 0 {
		if err := ledgerstate.DebitAsset(ctx, work, req.Taker, req.SellingAsset, result.SheepSent); err != nil {
			rollback()
			return nil, err
		}
	}
	if result.WheatReceived > 0 {
		if err := ledgerstate.CreditAsset(ctx, work, req.Taker, req.BuyingAsset, result.WheatReceived); err != nil {
			rollback()
			return nil, err
		}
	}

	// 7. Residual handling.
	residual := req.Amount - result.SheepSent
	if residual < 0 {
		ledgerstate.PanicInvariant("manageoffer: sheepSent exceeded requested amount")
	}
	if header.LedgerVersion >= 10 && residual > 0 {
		maxSell := availableSelling(ctx, work, req.Taker, req.SellingAsset)
		maxBuy := availableBuying(ctx, work, req.Taker, req.BuyingAsset)
		residual = adjuster.AdjustOffer(req.Price, minInt64(residual, maxSell), maxBuy)
	}

	// 8. Persist or drop.
	if residual == 0 {
		if !isNew {
			if err := adjustNumSubEntries(ctx, work, req.Taker, -1); err != nil {
				rollback()
				return nil, err
			}
		}
		if err := work.Commit(ctx); err != nil {
			return nil, err
		}
		return &Result{Success: true, Kind: Deleted, OffersClaimed: result.Trail}, nil
	}

	offerID := req.OfferID
	if isNew {
		hv, err := work.LoadHeader()
		if err != nil {
			rollback()
			return nil, err
		}
		h := hv.Get()
		offerID = h.NextOfferID()
		hv.Set(h)
		hv.Release()
	}

	newOffer := &ledgerstate.OfferEntry{
		SellerID:     req.Taker,
		SellingAsset: req.SellingAsset,
		BuyingAsset:  req.BuyingAsset,
		Amount:       residual,
		Price:        req.Price,
		OfferID:      offerID,
	}
	if _, err := work.Create(ctx, newOffer); err != nil {
		rollback()
		return nil, err
	}
	if header.LedgerVersion >= 10 {
		if err := ledgerstate.AdjustSellingLiabilities(ctx, work, req.Taker, newOffer.SellingAsset, adjuster.SellingLiabilities(newOffer)); err != nil {
			rollback()
			return nil, err
		}
		if err := ledgerstate.AdjustBuyingLiabilities(ctx, work, req.Taker, newOffer.BuyingAsset, adjuster.BuyingLiabilities(newOffer)); err != nil {
			rollback()
			return nil, err
		}
	}

	if priorNumSubEntryDelta != 0 {
		if err := adjustNumSubEntries(ctx, work, req.Taker, priorNumSubEntryDelta); err != nil {
			rollback()
			return nil, err
		}
	}

	if err := work.Commit(ctx); err != nil {
		return nil, err
	}
	kind := Updated
	if isNew {
		kind = Created
	}
	return &Result{Success: true, Kind: kind, Offer: newOffer, OffersClaimed: result.Trail}, nil
}

func maxWheatReceiveCap(req Request) int64 {
	return bignum.SaturatingMulDivUp(req.Amount, req.Price.N, req.Price.D)
}

// adjustNumSubEntries applies delta to the taker's owned-sub-entry count,
// used when a new offer is permanently installed (+1) or a modify collapses
// to a delete (-1).
func adjustNumSubEntries(ctx context.Context, v *ledgerstate.StateView, account ledgerstate.AccountID, delta int32) error {
	h, err := v.Load(ctx, ledgerstate.AccountKey(account))
	if err != nil {
		return err
	}
	if h == nil {
		ledgerstate.PanicInvariant("adjustNumSubEntries: account does not exist")
	}
	defer h.Release()
	acct := h.Get().(*ledgerstate.AccountEntry).Clone().(*ledgerstate.AccountEntry)
	next := int64(acct.NumSubEntries) + int64(delta)
	if next < 0 {
		ledgerstate.PanicInvariant("adjustNumSubEntries: sub-entry count underflow")
	}
	acct.NumSubEntries = uint32(next)
	h.Set(acct)
	return nil
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// checkTrust enforces step 2's per-side trust checks: issuer must exist
// (skipped for the native asset), the taker must hold an authorized trust
// line, and if isSelling, the line's balance must be non-zero.
func checkTrust(ctx context.Context, v *ledgerstate.StateView, taker ledgerstate.AccountID, asset ledgerstate.Asset, isSelling bool) (ErrorCode, error) {
	if asset.Native {
		return CodeSuccess, nil
	}
	issuer, err := v.LoadWithoutRecord(ctx, ledgerstate.AccountKey(asset.Issuer))
	if err != nil {
		return CodeSuccess, err
	}
	if issuer == nil {
		if isSelling {
			return CodeSellNoIssuer, nil
		}
		return CodeBuyNoIssuer, nil
	}
	issuer.Release()

	tl, err := ledgerstate.LoadTrustLine(ctx, v, taker, asset)
	if err != nil {
		return CodeSuccess, err
	}
	if tl == nil {
		if isSelling {
			return CodeSellNoTrust, nil
		}
		return CodeBuyNoTrust, nil
	}
	defer tl.Release()
	if !tl.IsAuthorized() {
		if isSelling {
			return CodeSellNotAuthorized, nil
		}
		return CodeBuyNotAuthorized, nil
	}
	if isSelling && tl.Balance() <= 0 {
		return CodeUnderfunded, nil
	}
	return CodeSuccess, nil
}

func availableSelling(ctx context.Context, v *ledgerstate.StateView, account ledgerstate.AccountID, asset ledgerstate.Asset) int64 {
	if asset.Native {
		h, err := v.LoadWithoutRecord(ctx, ledgerstate.AccountKey(account))
		if err != nil || h == nil {
			return 0
		}
		defer h.Release()
		acct := h.Get().(*ledgerstate.AccountEntry)
		return acct.AvailableSellingBalance(ledgerstate.DefaultReservePolicy.Required(acct.NumSubEntries))
	}
	tl, err := ledgerstate.LoadTrustLine(ctx, v, account, asset)
	if err != nil || tl == nil {
		return 0
	}
	defer tl.Release()
	avail := tl.Balance() - tl.Liabilities().Selling
	if avail < 0 {
		return 0
	}
	return avail
}

func availableBuying(ctx context.Context, v *ledgerstate.StateView, account ledgerstate.AccountID, asset ledgerstate.Asset) int64 {
	if asset.Native {
		return bignum.MaxInt64
	}
	tl, err := ledgerstate.LoadTrustLine(ctx, v, account, asset)
	if err != nil || tl == nil {
		return 0
	}
	defer tl.Release()
	room := tl.Limit() - tl.Balance() - tl.Liabilities().Buying
	if room < 0 {
		return 0
	}
	return room
}
