package ledgerstate

// ReservePolicy computes the minimum native balance an account must retain,
// grounded on the teacher's Fees.AccountReserve
// (internal/core/XRPAmount/Fees.go): a flat base reserve plus an increment
// per owned sub-entry (trust lines, offers, data entries).
type ReservePolicy struct {
	Base      int64
	Increment int64
}

// DefaultReservePolicy mirrors typical base/increment reserve magnitudes.
// ledgerstateconfig's ReserveConfig.ToPolicy can build another policy from
// configuration; manageoffer.Run always applies DefaultReservePolicy.
var DefaultReservePolicy = ReservePolicy{Base: 10_000_0000, Increment: 2_000_0000}

// Required returns the minimum balance an account with numSubEntries owned
// sub-entries must retain.
func (p ReservePolicy) Required(numSubEntries uint32) int64 {
	return p.Base + p.Increment*int64(numSubEntries)
}
