// Package memstore is an in-memory ledgerstate.Store, grounded on the
// teacher's MemoryBackend (internal/storage/nodestore/memory.go): a
// mutex-guarded map that clones entries on every read and write, sized for tests and the
// run-fixture CLI path rather than production durability.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/ledgerforge/coreledger/internal/ledgerstate"
)

// Store is an in-memory ledgerstate.Store. The zero value is not usable;
// construct with New.
type Store struct {
	mu     sync.RWMutex
	data   map[ledgerstate.Key]ledgerstate.LedgerEntry
	header ledgerstate.Header

	txOpen bool
}

// New returns an empty store seeded with header.
func New(header ledgerstate.Header) *Store {
	return &Store{
		data:   make(map[ledgerstate.Key]ledgerstate.LedgerEntry),
		header: header,
	}
}

func (s *Store) LoadByKey(ctx context.Context, k ledgerstate.Key) (ledgerstate.LedgerEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[k]
	if !ok {
		return nil, false, nil
	}
	return e.Clone(), true, nil
}

func (s *Store) InsertOrUpdate(ctx context.Context, e ledgerstate.LedgerEntry, isInsert bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[e.Key()] = e.Clone()
	return nil
}

func (s *Store) Delete(ctx context.Context, k ledgerstate.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, k)
	return nil
}

func (s *Store) LoadBestOffers(ctx context.Context, buying, selling ledgerstate.Asset, limit, offset int) ([]*ledgerstate.OfferEntry, error) {
	all, err := s.matchingOffers(buying, selling)
	if err != nil {
		return nil, err
	}
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s *Store) matchingOffers(buying, selling ledgerstate.Asset) ([]*ledgerstate.OfferEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ledgerstate.OfferEntry
	for _, e := range s.data {
		o, ok := e.(*ledgerstate.OfferEntry)
		if !ok {
			continue
		}
		if !o.BuyingAsset.Equal(buying) || !o.SellingAsset.Equal(selling) {
			continue
		}
		out = append(out, o.Clone().(*ledgerstate.OfferEntry))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Price.Equal(out[j].Price) {
			return out[i].Price.Less(out[j].Price)
		}
		return out[i].OfferID < out[j].OfferID
	})
	return out, nil
}

func (s *Store) LoadAllOffers(ctx context.Context) ([]*ledgerstate.OfferEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ledgerstate.OfferEntry
	for _, e := range s.data {
		if o, ok := e.(*ledgerstate.OfferEntry); ok {
			out = append(out, o.Clone().(*ledgerstate.OfferEntry))
		}
	}
	return out, nil
}

func (s *Store) LoadOffersByAccountAndAsset(ctx context.Context, account ledgerstate.AccountID, asset ledgerstate.Asset) ([]*ledgerstate.OfferEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ledgerstate.OfferEntry
	for _, e := range s.data {
		o, ok := e.(*ledgerstate.OfferEntry)
		if !ok || o.SellerID != account {
			continue
		}
		if !o.BuyingAsset.Equal(asset) && !o.SellingAsset.Equal(asset) {
			continue
		}
		out = append(out, o.Clone().(*ledgerstate.OfferEntry))
	}
	return out, nil
}

func (s *Store) LoadInflationWinners(ctx context.Context, maxWinners int, minVotes int64) ([]ledgerstate.InflationVote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	totals := make(map[ledgerstate.AccountID]int64)
	for _, e := range s.data {
		a, ok := e.(*ledgerstate.AccountEntry)
		if !ok || a.InflationDest == nil || a.Balance < ledgerstate.BalanceThreshold {
			continue
		}
		totals[*a.InflationDest] += a.Balance
	}
	out := make([]ledgerstate.InflationVote, 0, len(totals))
	for acct, votes := range totals {
		if votes >= minVotes {
			out = append(out, ledgerstate.InflationVote{Account: acct, Votes: votes})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Votes != out[j].Votes {
			return out[i].Votes > out[j].Votes
		}
		return string(out[i].Account[:]) > string(out[j].Account[:])
	})
	if len(out) > maxWinners {
		out = out[:maxWinners]
	}
	return out, nil
}

func (s *Store) CountObjects(ctx context.Context, t ledgerstate.EntryType) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for k := range s.data {
		if k.Type == t {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountObjectsInRange(ctx context.Context, t ledgerstate.EntryType, lo, hi uint32) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for k, e := range s.data {
		if k.Type == t && e.LastModifiedLedgerSeq() >= lo && e.LastModifiedLedgerSeq() <= hi {
			n++
		}
	}
	return n, nil
}

func (s *Store) LoadHeader(ctx context.Context) (ledgerstate.Header, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.header, nil
}

// Begin refuses a second concurrent transaction, mirroring the
// single-writer contract StoreRoot depends on.
func (s *Store) Begin(ctx context.Context) (ledgerstate.StoreTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txOpen {
		return nil, ledgerstate.ErrHasChild
	}
	s.txOpen = true
	return &tx{store: s}, nil
}

func (s *Store) DeleteObjectsModifiedOnOrAfterLedger(ctx context.Context, seq uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.data {
		if e.LastModifiedLedgerSeq() >= seq {
			delete(s.data, k)
		}
	}
	return nil
}

// tx is the single open StoreTx a Store allows at a time. It writes
// straight through to the backing map — Commit/Rollback only toggle the
// exclusive-open flag, since the map mutations themselves are already
// applied by the time InsertOrUpdate/Delete return.
type tx struct {
	store *Store
}

func (t *tx) LoadByKey(ctx context.Context, k ledgerstate.Key) (ledgerstate.LedgerEntry, bool, error) {
	return t.store.LoadByKey(ctx, k)
}
func (t *tx) InsertOrUpdate(ctx context.Context, e ledgerstate.LedgerEntry, isInsert bool) error {
	return t.store.InsertOrUpdate(ctx, e, isInsert)
}
func (t *tx) Delete(ctx context.Context, k ledgerstate.Key) error {
	return t.store.Delete(ctx, k)
}
func (t *tx) LoadBestOffers(ctx context.Context, buying, selling ledgerstate.Asset, limit, offset int) ([]*ledgerstate.OfferEntry, error) {
	return t.store.LoadBestOffers(ctx, buying, selling, limit, offset)
}
func (t *tx) LoadAllOffers(ctx context.Context) ([]*ledgerstate.OfferEntry, error) {
	return t.store.LoadAllOffers(ctx)
}
func (t *tx) LoadOffersByAccountAndAsset(ctx context.Context, account ledgerstate.AccountID, asset ledgerstate.Asset) ([]*ledgerstate.OfferEntry, error) {
	return t.store.LoadOffersByAccountAndAsset(ctx, account, asset)
}
func (t *tx) LoadInflationWinners(ctx context.Context, maxWinners int, minVotes int64) ([]ledgerstate.InflationVote, error) {
	return t.store.LoadInflationWinners(ctx, maxWinners, minVotes)
}
func (t *tx) CountObjects(ctx context.Context, et ledgerstate.EntryType) (int64, error) {
	return t.store.CountObjects(ctx, et)
}
func (t *tx) CountObjectsInRange(ctx context.Context, et ledgerstate.EntryType, lo, hi uint32) (int64, error) {
	return t.store.CountObjectsInRange(ctx, et, lo, hi)
}
func (t *tx) LoadHeader(ctx context.Context) (ledgerstate.Header, error) {
	return t.store.LoadHeader(ctx)
}
func (t *tx) Begin(ctx context.Context) (ledgerstate.StoreTx, error) {
	return nil, ledgerstate.ErrHasChild
}
func (t *tx) DeleteObjectsModifiedOnOrAfterLedger(ctx context.Context, seq uint32) error {
	return t.store.DeleteObjectsModifiedOnOrAfterLedger(ctx, seq)
}

func (t *tx) Commit(ctx context.Context) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.txOpen = false
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.txOpen = false
	return nil
}
