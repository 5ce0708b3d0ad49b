package ledgerstate

import (
	"errors"

	"github.com/ledgerforge/coreledger/internal/bignum"
)

// LedgerEntry is the tagged variant over {Account, TrustLine, Offer, Data}.
// key(entry) (the Key method) is total and injective within a variant.
// Equality of entries is structural — callers compare via reflect.DeepEqual
// or a variant-specific Equal where available.
type LedgerEntry interface {
	Key() Key
	Type() EntryType
	LastModifiedLedgerSeq() uint32
	SetLastModifiedLedgerSeq(seq uint32)
	Clone() LedgerEntry
}

// Liabilities records committed-but-unexecuted amounts reserved by live
// offers: selling is the remaining offer amount, buying is its ceil(price)
// counterpart.
type Liabilities struct {
	Selling int64
	Buying  int64
}

// AccountEntry is the native-asset account root, grounded on the teacher's
// AccountRoot (internal/core/ledger/entry/entries/acount_root.go).
type AccountEntry struct {
	ID             AccountID
	Balance        int64
	NumSubEntries  uint32
	InflationDest  *AccountID
	Flags          uint32
	SellLiabEntry  Liabilities // this account's own liabilities against the native balance
	lastModifiedLS uint32
}

func (a *AccountEntry) Key() Key                            { return AccountKey(a.ID) }
func (a *AccountEntry) Type() EntryType                     { return EntryTypeAccount }
func (a *AccountEntry) LastModifiedLedgerSeq() uint32       { return a.lastModifiedLS }
func (a *AccountEntry) SetLastModifiedLedgerSeq(seq uint32) { a.lastModifiedLS = seq }
func (a *AccountEntry) Clone() LedgerEntry {
	cp := *a
	if a.InflationDest != nil {
		dest := *a.InflationDest
		cp.InflationDest = &dest
	}
	return &cp
}

// AvailableSellingBalance returns the portion of the native balance not
// already committed to outstanding selling liabilities.
func (a *AccountEntry) AvailableSellingBalance(reserve int64) int64 {
	avail := a.Balance - reserve - a.SellLiabEntry.Selling
	if avail < 0 {
		return 0
	}
	return avail
}

// TrustLineEntry is a real trust line between two accounts over an issued
// asset, grounded on the teacher's RippleState
// (internal/core/tx/sle/ripple_state.go). Low/High are normalized by byte
// order of the account IDs, matching TrustLineKey's normalization.
type TrustLineEntry struct {
	Low, High       AccountID
	Code            [4]byte
	Balance         int64 // signed from Low's perspective: positive means Low is owed by High
	LowLimit        int64
	HighLimit       int64
	LowLiabilities  Liabilities
	HighLiabilities Liabilities
	LowAuthorized   bool
	HighAuthorized  bool
	lastModifiedLS  uint32
}

func (t *TrustLineEntry) Key() Key                            { return TrustLineKey(t.Low, t.High, t.Code) }
func (t *TrustLineEntry) Type() EntryType                     { return EntryTypeTrustLine }
func (t *TrustLineEntry) LastModifiedLedgerSeq() uint32       { return t.lastModifiedLS }
func (t *TrustLineEntry) SetLastModifiedLedgerSeq(seq uint32) { t.lastModifiedLS = seq }
func (t *TrustLineEntry) Clone() LedgerEntry {
	cp := *t
	return &cp
}

// AssetFor returns the issued asset this trust line denotes, with the given
// issuer (the line itself does not record which side is the issuer).
func (t *TrustLineEntry) AssetFor(issuer AccountID) Asset {
	return Asset{Native: false, Code: t.Code, Issuer: issuer}
}

// BalanceFor returns the balance and limit/liabilities from holder's point
// of view: positive balance means holder is owed.
func (t *TrustLineEntry) BalanceFor(holder AccountID) (balance, limit int64, liab Liabilities) {
	if holder == t.Low {
		return t.Balance, t.LowLimit, t.LowLiabilities
	}
	return -t.Balance, t.HighLimit, t.HighLiabilities
}

// IsAuthorizedFor reports whether holder's side of the line is authorized.
func (t *TrustLineEntry) IsAuthorizedFor(holder AccountID) bool {
	if holder == t.Low {
		return t.LowAuthorized
	}
	return t.HighAuthorized
}

// OfferEntry is a standing offer on the exchange, per spec.md §3.
type OfferEntry struct {
	SellerID       AccountID
	SellingAsset   Asset
	BuyingAsset    Asset
	Amount         int64 // remaining amount of SellingAsset offered
	Price          bignum.Rational
	Flags          uint32
	OfferID        uint64
	lastModifiedLS uint32
}

const (
	OfferFlagPassive uint32 = 1 << 0
	OfferFlagSell    uint32 = 1 << 1
)

func (o *OfferEntry) Key() Key                            { return OfferKey(o.SellerID, o.OfferID) }
func (o *OfferEntry) Type() EntryType                     { return EntryTypeOffer }
func (o *OfferEntry) LastModifiedLedgerSeq() uint32       { return o.lastModifiedLS }
func (o *OfferEntry) SetLastModifiedLedgerSeq(seq uint32) { o.lastModifiedLS = seq }
func (o *OfferEntry) Clone() LedgerEntry {
	cp := *o
	return &cp
}

// ErrMalformedOffer is returned by Validate when invariant 5 is violated.
var ErrMalformedOffer = errors.New("ledgerstate: malformed offer")

// Validate enforces invariant 5: amount >= 0, price.n > 0, price.d > 0,
// sellingAsset != buyingAsset.
func (o *OfferEntry) Validate() error {
	if o.Amount < 0 {
		return ErrMalformedOffer
	}
	if o.Price.N <= 0 || o.Price.D <= 0 {
		return ErrMalformedOffer
	}
	if o.SellingAsset.Equal(o.BuyingAsset) {
		return ErrMalformedOffer
	}
	return nil
}

// SellingLiabilities is the committed-but-unexecuted amount this offer
// reserves against the seller's selling-asset balance.
func (o *OfferEntry) SellingLiabilities() int64 {
	return o.Amount
}

// BuyingLiabilities is ceil(amount * price.n / price.d), saturating to
// MaxInt64 on overflow, per the Adjuster liability helpers (spec.md §4.6).
func (o *OfferEntry) BuyingLiabilities() int64 {
	return bignum.SaturatingMulDivUp(o.Amount, o.Price.N, o.Price.D)
}

// DataEntry is an opaque, account-scoped named blob, grounded on the
// teacher's DID/Oracle entries (account-scoped named data).
type DataEntry struct {
	Owner          AccountID
	Name           string
	Value          []byte
	lastModifiedLS uint32
}

func (d *DataEntry) Key() Key                            { return DataKey(d.Owner, d.Name) }
func (d *DataEntry) Type() EntryType                     { return EntryTypeData }
func (d *DataEntry) LastModifiedLedgerSeq() uint32       { return d.lastModifiedLS }
func (d *DataEntry) SetLastModifiedLedgerSeq(seq uint32) { d.lastModifiedLS = seq }
func (d *DataEntry) Clone() LedgerEntry {
	cp := *d
	cp.Value = append([]byte(nil), d.Value...)
	return &cp
}

// Header is the ledger header record, grounded on the teacher's LedgerHeader
// conventions (internal/core/ledger/header/header.go): a monotonically
// assigned idGenerator mints new offer IDs.
type Header struct {
	LedgerSeq     uint32
	LedgerVersion uint32
	idGenerator   uint64
}

// NextOfferID mints and returns the next offer ID from this header's
// generator.
func (h *Header) NextOfferID() uint64 {
	h.idGenerator++
	return h.idGenerator
}

// Clone returns a copy of the header, safe for an independent StateView.
func (h Header) Clone() Header {
	return h
}
