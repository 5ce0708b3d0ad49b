package ledgerstate

import "context"

// CreditAsset increases account's holdings of asset by amount (amount must
// be >= 0), dispatching to the native balance or a trust line as
// appropriate. It is shared by the offer-exchange kernel and the
// ManageOffer driver so both apply fills the same way. It panics with an
// InvariantViolation if the account or line does not exist — by the time a
// caller reaches settlement, the existence checks that would otherwise
// produce a published error code have already run.
func CreditAsset(ctx context.Context, v *StateView, account AccountID, asset Asset, amount int64) error {
	if amount < 0 {
		panicInvariant("CreditAsset: negative amount")
	}
	if amount == 0 {
		return nil
	}
	if asset.Native {
		h, err := v.Load(ctx, AccountKey(account))
		if err != nil {
			return err
		}
		if h == nil {
			panicInvariant("CreditAsset: account does not exist")
		}
		defer h.Release()
		acct := h.Get().(*AccountEntry).Clone().(*AccountEntry)
		acct.Balance += amount
		h.Set(acct)
		return nil
	}

	tl, err := LoadTrustLine(ctx, v, account, asset)
	if err != nil {
		return err
	}
	if tl == nil {
		panicInvariant("CreditAsset: trust line does not exist")
	}
	defer tl.Release()
	tl.AddBalance(amount)
	return nil
}

// AdjustSellingLiabilities changes account's outstanding selling-side
// liabilities on asset by delta (negative to release, positive to acquire),
// dispatching to the native account's own SellLiabEntry or to a trust line
// as appropriate. It panics with an InvariantViolation if the result would
// go negative or if the account/line does not exist.
func AdjustSellingLiabilities(ctx context.Context, v *StateView, account AccountID, asset Asset, delta int64) error {
	if delta == 0 {
		return nil
	}
	if asset.Native {
		h, err := v.Load(ctx, AccountKey(account))
		if err != nil {
			return err
		}
		if h == nil {
			panicInvariant("AdjustSellingLiabilities: account does not exist")
		}
		defer h.Release()
		acct := h.Get().(*AccountEntry).Clone().(*AccountEntry)
		acct.SellLiabEntry.Selling += delta
		if acct.SellLiabEntry.Selling < 0 {
			panicInvariant("AdjustSellingLiabilities: selling liabilities underflow")
		}
		h.Set(acct)
		return nil
	}

	tl, err := LoadTrustLine(ctx, v, account, asset)
	if err != nil {
		return err
	}
	if tl == nil {
		panicInvariant("AdjustSellingLiabilities: trust line does not exist")
	}
	defer tl.Release()
	l := tl.Liabilities()
	l.Selling += delta
	if l.Selling < 0 {
		panicInvariant("AdjustSellingLiabilities: selling liabilities underflow")
	}
	tl.SetLiabilities(l)
	return nil
}

// AdjustBuyingLiabilities changes account's outstanding buying-side
// liabilities on asset by delta. The native asset has no buying-liability
// cap — availableBuying treats native room as unbounded — so only trust
// lines carry a buying reserve; this is a no-op for the native asset.
func AdjustBuyingLiabilities(ctx context.Context, v *StateView, account AccountID, asset Asset, delta int64) error {
	if delta == 0 || asset.Native {
		return nil
	}
	tl, err := LoadTrustLine(ctx, v, account, asset)
	if err != nil {
		return err
	}
	if tl == nil {
		panicInvariant("AdjustBuyingLiabilities: trust line does not exist")
	}
	defer tl.Release()
	l := tl.Liabilities()
	l.Buying += delta
	if l.Buying < 0 {
		panicInvariant("AdjustBuyingLiabilities: buying liabilities underflow")
	}
	tl.SetLiabilities(l)
	return nil
}

// DebitAsset decreases account's holdings of asset by amount, the mirror of
// CreditAsset.
func DebitAsset(ctx context.Context, v *StateView, account AccountID, asset Asset, amount int64) error {
	if amount < 0 {
		panicInvariant("DebitAsset: negative amount")
	}
	if amount == 0 {
		return nil
	}
	if asset.Native {
		h, err := v.Load(ctx, AccountKey(account))
		if err != nil {
			return err
		}
		if h == nil {
			panicInvariant("DebitAsset: account does not exist")
		}
		defer h.Release()
		acct := h.Get().(*AccountEntry).Clone().(*AccountEntry)
		if acct.Balance < amount {
			panicInvariant("DebitAsset: balance underflow")
		}
		acct.Balance -= amount
		h.Set(acct)
		return nil
	}

	tl, err := LoadTrustLine(ctx, v, account, asset)
	if err != nil {
		return err
	}
	if tl == nil {
		panicInvariant("DebitAsset: trust line does not exist")
	}
	defer tl.Release()
	if tl.Balance() < amount {
		panicInvariant("DebitAsset: trust line balance underflow")
	}
	tl.AddBalance(-amount)
	return nil
}
