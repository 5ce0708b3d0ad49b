// Package exchange implements the order-book crossing kernel (component
// C5, OfferExchange): given a taker's sell/buy limits and a filter
// callback, repeatedly takes the best resting counter-offer until the
// taker's limits are exhausted, the book runs dry, or the filter halts the
// scan.
package exchange

import (
	"context"

	"github.com/ledgerforge/coreledger/internal/bignum"
	"github.com/ledgerforge/coreledger/internal/exchange/adjuster"
	"github.com/ledgerforge/coreledger/internal/ledgerstate"
)

// FilterDecision is the filter callback's verdict on one candidate
// counter-offer.
type FilterDecision int

const (
	// Keep accepts the candidate for crossing.
	Keep FilterDecision = iota
	// Skip rejects this candidate but continues scanning the book.
	Skip
	// Stop halts the scan entirely, e.g. on a self-cross or a passive
	// taker's strict price bound.
	Stop
)

// Status is the terminal outcome of a Cross call.
type Status int

const (
	// OK means a taker limit (sheep sent or wheat received) was exhausted.
	OK Status = iota
	// Partial means the book ran dry before either limit was exhausted.
	Partial
	// FilterStop means the filter returned Stop on some candidate.
	FilterStop
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case Partial:
		return "Partial"
	case FilterStop:
		return "FilterStop"
	default:
		return "Unknown"
	}
}

// ClaimOfferAtom records one counter-offer taken during a Cross call, in
// taking order.
type ClaimOfferAtom struct {
	OfferID      uint64
	Seller       ledgerstate.AccountID
	AmountSold   int64 // wheat taken from the counter-offer
	AmountBought int64 // sheep paid to the counter-offer's seller
}

// FilterFunc inspects a candidate counter-offer (which sells wheat and buys
// sheep) and decides whether to cross it.
type FilterFunc func(candidate *ledgerstate.OfferEntry) FilterDecision

// Result is the outcome of a Cross call.
type Result struct {
	Status        Status
	SheepSent     int64
	WheatReceived int64
	Trail         []ClaimOfferAtom
}

// Cross takes offers selling wheat and buying sheep out of the book rooted
// at v, on behalf of a taker who is selling sheep and buying wheat, per
// spec.md §4.4. All mutations happen in a dedicated child of v; on success
// Cross commits that child before returning (a fully-filtered, zero-fill
// run commits an empty child, which is a no-op), so the caller decides
// whether to keep the result by committing or rolling back v itself. When
// Cross returns an error, the child has been rolled back (or its Commit
// failed) and v holds none of its mutations.
func Cross(
	ctx context.Context,
	v *ledgerstate.StateView,
	sheep, wheat ledgerstate.Asset,
	maxSheepSend, maxWheatReceive int64,
	filter FilterFunc,
) (*Result, error) {
	child, err := v.NewChild(false)
	if err != nil {
		return nil, err
	}

	result := &Result{Status: Partial}
	exclude := make(map[ledgerstate.Key]struct{})

crossLoop:
	for {
		if result.SheepSent >= maxSheepSend || result.WheatReceived >= maxWheatReceive {
			result.Status = OK
			break
		}

		handle, err := child.LoadBestOffer(ctx, sheep, wheat, exclude)
		if err != nil {
			_ = child.Rollback(ctx)
			return nil, err
		}
		if handle == nil {
			result.Status = Partial
			break
		}
		candidate := handle.Get().(*ledgerstate.OfferEntry)

		switch filter(candidate) {
		case Stop:
			handle.Release()
			result.Status = FilterStop
			break crossLoop
		case Skip:
			exclude[handle.Key()] = struct{}{}
			handle.Release()
			continue
		}

		sellCap := candidate.Amount
		if remaining := maxWheatReceive - result.WheatReceived; remaining < sellCap {
			sellCap = remaining
		}
		buyCap := maxSheepSend - result.SheepSent

		wheatTaken := adjuster.AdjustOffer(candidate.Price, sellCap, buyCap)
		if wheatTaken <= 0 {
			handle.Release()
			result.Status = OK
			break
		}
		sheepPaid := bignum.SaturatingMulDivUp(wheatTaken, candidate.Price.N, candidate.Price.D)

		if err := ledgerstate.CreditAsset(ctx, child, candidate.SellerID, sheep, sheepPaid); err != nil {
			handle.Release()
			_ = child.Rollback(ctx)
			return nil, err
		}
		// The counter-offer's seller reserved wheatTaken of selling-side
		// liability and sheepPaid of buying-side liability against this
		// offer; release exactly the crossed portion, leaving any residual
		// amount's reservation (now smaller) in place.
		if err := ledgerstate.AdjustSellingLiabilities(ctx, child, candidate.SellerID, wheat, -wheatTaken); err != nil {
			handle.Release()
			_ = child.Rollback(ctx)
			return nil, err
		}
		if err := ledgerstate.AdjustBuyingLiabilities(ctx, child, candidate.SellerID, sheep, -sheepPaid); err != nil {
			handle.Release()
			_ = child.Rollback(ctx)
			return nil, err
		}

		result.WheatReceived += wheatTaken
		result.SheepSent += sheepPaid
		result.Trail = append(result.Trail, ClaimOfferAtom{
			OfferID:      candidate.OfferID,
			Seller:       candidate.SellerID,
			AmountSold:   wheatTaken,
			AmountBought: sheepPaid,
		})

		remainingAmount := candidate.Amount - wheatTaken
		if remainingAmount < 0 {
			ledgerstate.PanicInvariant("offer exchange sold more than the counter-offer's remaining amount")
		}
		if remainingAmount == 0 {
			if err := handle.Erase(ctx); err != nil {
				_ = child.Rollback(ctx)
				return nil, err
			}
		} else {
			cp := *candidate
			cp.Amount = remainingAmount
			handle.Set(&cp)
			handle.Release()
		}
	}

	if err := child.Commit(ctx); err != nil {
		return nil, err
	}
	return result, nil
}
