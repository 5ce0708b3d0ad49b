package ledgerstate

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
)

// AccountID is a 20-byte account identifier, matching the teacher's
// account-root addressing (internal/core/ledger/entry/entries/acount_root.go).
type AccountID [20]byte

// Asset identifies either the native asset or an issued asset, grounded on
// the teacher's RippleState currency/issuer pairing
// (internal/core/tx/sle/ripple_state.go).
type Asset struct {
	Native bool
	Code   [4]byte
	Issuer AccountID
}

// NativeAsset is the well-known native-asset singleton.
var NativeAsset = Asset{Native: true}

// Equal reports whether two assets denote the same currency/issuer pair.
func (a Asset) Equal(b Asset) bool {
	if a.Native != b.Native {
		return false
	}
	if a.Native {
		return true
	}
	return a.Code == b.Code && a.Issuer == b.Issuer
}

// EntryType tags the four ledger-entry variants the engine knows about.
type EntryType uint8

const (
	EntryTypeAccount EntryType = iota
	EntryTypeTrustLine
	EntryTypeOffer
	EntryTypeData
)

func (t EntryType) String() string {
	switch t {
	case EntryTypeAccount:
		return "Account"
	case EntryTypeTrustLine:
		return "TrustLine"
	case EntryTypeOffer:
		return "Offer"
	case EntryTypeData:
		return "Data"
	default:
		return "Unknown"
	}
}

// Key is the total, injective, per-variant projection used to address a
// ledger entry inside a StateView or the persistent store. It is comparable
// and usable as a map key.
type Key struct {
	Type EntryType
	Raw  [32]byte
}

// AccountKey returns the key for an account's root entry.
func AccountKey(id AccountID) Key {
	return Key{Type: EntryTypeAccount, Raw: hashParts([]byte{byte(EntryTypeAccount)}, id[:])}
}

// TrustLineKey returns the key for the trust line between two accounts over
// an asset's currency code. The pair is order-independent: the same two
// accounts and currency always produce the same key regardless of which side
// is "low" or "high" — TrustLineKey orders the pair itself.
func TrustLineKey(a, b AccountID, code [4]byte) Key {
	low, high := a, b
	if bytes.Compare(high[:], low[:]) < 0 {
		low, high = high, low
	}
	return Key{Type: EntryTypeTrustLine, Raw: hashParts([]byte{byte(EntryTypeTrustLine)}, low[:], high[:], code[:])}
}

// OfferKey returns the key for an offer entry, addressed by its seller and
// the monotonic offerID minted at creation time.
func OfferKey(seller AccountID, offerID uint64) Key {
	var idBytes [8]byte
	binary.BigEndian.PutUint64(idBytes[:], offerID)
	return Key{Type: EntryTypeOffer, Raw: hashParts([]byte{byte(EntryTypeOffer)}, seller[:], idBytes[:])}
}

// DataKey returns the key for a named data blob owned by an account.
func DataKey(owner AccountID, name string) Key {
	return Key{Type: EntryTypeData, Raw: hashParts([]byte{byte(EntryTypeData)}, owner[:], []byte(name))}
}

func hashParts(parts ...[]byte) [32]byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
