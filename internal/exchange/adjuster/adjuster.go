// Package adjuster implements the offer-amount clamp and liability
// accounting shared by OfferExchange and the ManageOffer driver (component
// C6). It never mutates ledger state itself — every function here is pure.
package adjuster

import (
	"github.com/ledgerforge/coreledger/internal/bignum"
	"github.com/ledgerforge/coreledger/internal/ledgerstate"
)

// AdjustOffer returns the largest amount such that amount <= maxSell and
// ceil(amount*price.n/price.d) <= maxBuy. It is monotonic in both maxSell
// and maxBuy, and idempotent: AdjustOffer(p, AdjustOffer(p, s, b), b) ==
// AdjustOffer(p, s, b).
//
// Since buy = ceil(amount*n/d) <= maxBuy holds exactly when amount <=
// floor(maxBuy*d/n), the buy-side bound reduces to a single bigDivide.
func AdjustOffer(price bignum.Rational, maxSell, maxBuy int64) int64 {
	if maxSell < 0 {
		maxSell = 0
	}
	if maxBuy < 0 {
		maxBuy = 0
	}
	buyBound, ok := bignum.BigDivide(maxBuy, price.D, price.N, bignum.RoundDown)
	if !ok {
		buyBound = bignum.MaxInt64
	}
	if buyBound < maxSell {
		return buyBound
	}
	return maxSell
}

// SellingLiabilities is the committed-but-unexecuted selling-side reserve
// for a live offer.
func SellingLiabilities(o *ledgerstate.OfferEntry) int64 {
	return o.SellingLiabilities()
}

// BuyingLiabilities is the committed-but-unexecuted buying-side reserve for
// a live offer, saturating to MaxInt64 on overflow.
func BuyingLiabilities(o *ledgerstate.OfferEntry) int64 {
	return o.BuyingLiabilities()
}
