package adjuster

import (
	"testing"

	"github.com/ledgerforge/coreledger/internal/bignum"
)

func TestAdjustOfferBasic(t *testing.T) {
	price := bignum.Rational{N: 3, D: 2}
	if got := AdjustOffer(price, 100, 9); got != 6 {
		t.Fatalf("AdjustOffer = %d, want 6", got)
	}
	if got := AdjustOffer(price, 5, 100); got != 5 {
		t.Fatalf("AdjustOffer sell-bound = %d, want 5", got)
	}
}

func TestAdjustOfferMonotonic(t *testing.T) {
	price := bignum.Rational{N: 7, D: 3}
	a := AdjustOffer(price, 50, 20)
	b := AdjustOffer(price, 50, 40)
	if b < a {
		t.Fatalf("increasing maxBuy decreased amount: %d -> %d", a, b)
	}
	c := AdjustOffer(price, 100, 40)
	if c < b {
		t.Fatalf("increasing maxSell decreased amount: %d -> %d", b, c)
	}
}

func TestAdjustOfferIdempotent(t *testing.T) {
	price := bignum.Rational{N: 5, D: 4}
	amount := AdjustOffer(price, 37, 41)
	buy := bignum.SaturatingMulDivUp(amount, price.N, price.D)
	again := AdjustOffer(price, amount, buy)
	if again != amount {
		t.Fatalf("AdjustOffer not idempotent: %d -> %d", amount, again)
	}
}
