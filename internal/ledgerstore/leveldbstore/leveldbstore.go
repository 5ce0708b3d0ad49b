// Package leveldbstore is a durable ledgerstate.Store backed by
// github.com/syndtr/goleveldb, grounded on the teacher's NodeStore
// (internal/core/ledger/node/storage.go): open one *leveldb.DB, wrap
// Put/Get/Delete/Has, and stage a transaction's writes in a leveldb.Batch
// (the teacher's own Batch.Store/Execute pattern) applied atomically on
// Commit rather than the teacher's Store's un-batched direct-write path.
//
// LevelDB gives ordered iteration over one flat keyspace and nothing else,
// so entries are addressed under a type-tagged primary key, and offers get
// a second index keyed by (buying asset, selling asset, entry hash) to
// avoid a full table scan on every LoadBestOffers call. The secondary index
// only narrows the candidate set; sort order within it is still established
// in Go via bignum.Rational comparison, matching memstore and preserving
// the engine's no-floating-point price rule end to end.
package leveldbstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/ugorji/go/codec"

	"github.com/ledgerforge/coreledger/internal/bignum"
	"github.com/ledgerforge/coreledger/internal/ledgerstate"
)

var cborHandle codec.CborHandle

const (
	prefixEntry     byte = 0x01
	prefixBestOffer byte = 0x02
)

func entryKeyBytes(k ledgerstate.Key) []byte {
	b := make([]byte, 0, 34)
	b = append(b, prefixEntry, byte(k.Type))
	return append(b, k.Raw[:]...)
}

func typePrefix(t ledgerstate.EntryType) []byte {
	return []byte{prefixEntry, byte(t)}
}

func assetKeyBytes(a ledgerstate.Asset) []byte {
	b := make([]byte, 0, 25)
	if a.Native {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}
	b = append(b, a.Code[:]...)
	return append(b, a.Issuer[:]...)
}

func bestOfferPrefix(buying, selling ledgerstate.Asset) []byte {
	b := make([]byte, 0, 1+25+25)
	b = append(b, prefixBestOffer)
	b = append(b, assetKeyBytes(buying)...)
	return append(b, assetKeyBytes(selling)...)
}

func bestOfferKeyBytes(buying, selling ledgerstate.Asset, raw [32]byte) []byte {
	b := bestOfferPrefix(buying, selling)
	return append(b, raw[:]...)
}

// record is the on-disk envelope for a LedgerEntry: exactly one of the
// variant pointers is set, matching Type.
type record struct {
	Type           ledgerstate.EntryType
	LastModifiedLS uint32
	Account        *accountRecord
	TrustLine      *trustLineRecord
	Offer          *offerRecord
	Data           *dataRecord
}

type accountRecord struct {
	ID            ledgerstate.AccountID
	Balance       int64
	NumSubEntries uint32
	InflationDest *ledgerstate.AccountID
	Flags         uint32
	SellLiab      ledgerstate.Liabilities
}

type trustLineRecord struct {
	Low, High      ledgerstate.AccountID
	Code           [4]byte
	Balance        int64
	LowLimit       int64
	HighLimit      int64
	LowLiab        ledgerstate.Liabilities
	HighLiab       ledgerstate.Liabilities
	LowAuthorized  bool
	HighAuthorized bool
}

type offerRecord struct {
	SellerID     ledgerstate.AccountID
	SellingAsset ledgerstate.Asset
	BuyingAsset  ledgerstate.Asset
	Amount       int64
	Price        bignum.Rational
	Flags        uint32
	OfferID      uint64
}

type dataRecord struct {
	Owner ledgerstate.AccountID
	Name  string
	Value []byte
}

func encodeEntry(e ledgerstate.LedgerEntry) ([]byte, error) {
	rec := record{Type: e.Type(), LastModifiedLS: e.LastModifiedLedgerSeq()}
	switch v := e.(type) {
	case *ledgerstate.AccountEntry:
		rec.Account = &accountRecord{
			ID: v.ID, Balance: v.Balance, NumSubEntries: v.NumSubEntries,
			InflationDest: v.InflationDest, Flags: v.Flags, SellLiab: v.SellLiabEntry,
		}
	case *ledgerstate.TrustLineEntry:
		rec.TrustLine = &trustLineRecord{
			Low: v.Low, High: v.High, Code: v.Code, Balance: v.Balance,
			LowLimit: v.LowLimit, HighLimit: v.HighLimit,
			LowLiab: v.LowLiabilities, HighLiab: v.HighLiabilities,
			LowAuthorized: v.LowAuthorized, HighAuthorized: v.HighAuthorized,
		}
	case *ledgerstate.OfferEntry:
		rec.Offer = &offerRecord{
			SellerID: v.SellerID, SellingAsset: v.SellingAsset, BuyingAsset: v.BuyingAsset,
			Amount: v.Amount, Price: v.Price, Flags: v.Flags, OfferID: v.OfferID,
		}
	case *ledgerstate.DataEntry:
		rec.Data = &dataRecord{Owner: v.Owner, Name: v.Name, Value: v.Value}
	default:
		return nil, fmt.Errorf("leveldbstore: unsupported entry type %T", e)
	}
	var buf bytes.Buffer
	if err := codec.NewEncoder(&buf, &cborHandle).Encode(&rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeEntry(b []byte) (ledgerstate.LedgerEntry, error) {
	var rec record
	if err := codec.NewDecoderBytes(b, &cborHandle).Decode(&rec); err != nil {
		return nil, err
	}
	switch rec.Type {
	case ledgerstate.EntryTypeAccount:
		r := rec.Account
		e := &ledgerstate.AccountEntry{
			ID: r.ID, Balance: r.Balance, NumSubEntries: r.NumSubEntries,
			InflationDest: r.InflationDest, Flags: r.Flags, SellLiabEntry: r.SellLiab,
		}
		e.SetLastModifiedLedgerSeq(rec.LastModifiedLS)
		return e, nil
	case ledgerstate.EntryTypeTrustLine:
		r := rec.TrustLine
		e := &ledgerstate.TrustLineEntry{
			Low: r.Low, High: r.High, Code: r.Code, Balance: r.Balance,
			LowLimit: r.LowLimit, HighLimit: r.HighLimit,
			LowLiabilities: r.LowLiab, HighLiabilities: r.HighLiab,
			LowAuthorized: r.LowAuthorized, HighAuthorized: r.HighAuthorized,
		}
		e.SetLastModifiedLedgerSeq(rec.LastModifiedLS)
		return e, nil
	case ledgerstate.EntryTypeOffer:
		r := rec.Offer
		e := &ledgerstate.OfferEntry{
			SellerID: r.SellerID, SellingAsset: r.SellingAsset, BuyingAsset: r.BuyingAsset,
			Amount: r.Amount, Price: r.Price, Flags: r.Flags, OfferID: r.OfferID,
		}
		e.SetLastModifiedLedgerSeq(rec.LastModifiedLS)
		return e, nil
	case ledgerstate.EntryTypeData:
		r := rec.Data
		e := &ledgerstate.DataEntry{Owner: r.Owner, Name: r.Name, Value: r.Value}
		e.SetLastModifiedLedgerSeq(rec.LastModifiedLS)
		return e, nil
	default:
		return nil, fmt.Errorf("leveldbstore: unknown record type %d", rec.Type)
	}
}

// Store is a durable ledgerstate.Store over one LevelDB database.
type Store struct {
	db *leveldb.DB

	mu     sync.Mutex
	header ledgerstate.Header
	txOpen bool
}

// Open opens (creating if absent) the LevelDB database at path. bootstrap
// always becomes the store's header, whether or not path already holds
// ledger entries; the header is kept in memory only and is never read from
// or written to the database. The idGenerator field of Header is
// unexported and outside this package's reach, so — like memstore — a
// process restart resets offer-ID minting to zero; callers that need
// durable ID generation across restarts must track the high-water mark
// themselves (e.g. from the max OfferID observed via LoadAllOffers).
func Open(path string, bootstrap ledgerstate.Header) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, header: bootstrap}, nil
}

// Close releases the underlying LevelDB handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) LoadByKey(ctx context.Context, k ledgerstate.Key) (ledgerstate.LedgerEntry, bool, error) {
	val, err := s.db.Get(entryKeyBytes(k), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	e, err := decodeEntry(val)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

// stageInsertOrUpdate writes the entry's primary record and, for offers,
// maintains the best-offer secondary index — removing the old index entry
// first if the offer's asset pair changed since the last write.
func (s *Store) stageInsertOrUpdate(ctx context.Context, batch *leveldb.Batch, e ledgerstate.LedgerEntry, isInsert bool) error {
	k := e.Key()
	enc, err := encodeEntry(e)
	if err != nil {
		return err
	}
	if o, ok := e.(*ledgerstate.OfferEntry); ok {
		if !isInsert {
			old, found, err := s.LoadByKey(ctx, k)
			if err != nil {
				return err
			}
			if found {
				if oldOffer, ok := old.(*ledgerstate.OfferEntry); ok {
					if !oldOffer.BuyingAsset.Equal(o.BuyingAsset) || !oldOffer.SellingAsset.Equal(o.SellingAsset) {
						batch.Delete(bestOfferKeyBytes(oldOffer.BuyingAsset, oldOffer.SellingAsset, k.Raw))
					}
				}
			}
		}
		batch.Put(bestOfferKeyBytes(o.BuyingAsset, o.SellingAsset, k.Raw), entryKeyBytes(k))
	}
	batch.Put(entryKeyBytes(k), enc)
	return nil
}

func (s *Store) stageDelete(ctx context.Context, batch *leveldb.Batch, k ledgerstate.Key) error {
	if k.Type == ledgerstate.EntryTypeOffer {
		old, found, err := s.LoadByKey(ctx, k)
		if err != nil {
			return err
		}
		if found {
			if oldOffer, ok := old.(*ledgerstate.OfferEntry); ok {
				batch.Delete(bestOfferKeyBytes(oldOffer.BuyingAsset, oldOffer.SellingAsset, k.Raw))
			}
		}
	}
	batch.Delete(entryKeyBytes(k))
	return nil
}

func (s *Store) InsertOrUpdate(ctx context.Context, e ledgerstate.LedgerEntry, isInsert bool) error {
	batch := new(leveldb.Batch)
	if err := s.stageInsertOrUpdate(ctx, batch, e, isInsert); err != nil {
		return err
	}
	return s.db.Write(batch, nil)
}

func (s *Store) Delete(ctx context.Context, k ledgerstate.Key) error {
	batch := new(leveldb.Batch)
	if err := s.stageDelete(ctx, batch, k); err != nil {
		return err
	}
	return s.db.Write(batch, nil)
}

func (s *Store) LoadBestOffers(ctx context.Context, buying, selling ledgerstate.Asset, limit, offset int) ([]*ledgerstate.OfferEntry, error) {
	out, err := s.scanBestOffers(buying, selling)
	if err != nil {
		return nil, err
	}
	if offset >= len(out) {
		return nil, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (s *Store) scanBestOffers(buying, selling ledgerstate.Asset) ([]*ledgerstate.OfferEntry, error) {
	iter := s.db.NewIterator(util.BytesPrefix(bestOfferPrefix(buying, selling)), nil)
	defer iter.Release()

	var out []*ledgerstate.OfferEntry
	for iter.Next() {
		primaryKey := append([]byte(nil), iter.Value()...)
		val, err := s.db.Get(primaryKey, nil)
		if errors.Is(err, leveldb.ErrNotFound) {
			continue // stale index entry left by a crash between the two Puts; harmless
		}
		if err != nil {
			return nil, err
		}
		e, err := decodeEntry(val)
		if err != nil {
			return nil, err
		}
		if o, ok := e.(*ledgerstate.OfferEntry); ok {
			out = append(out, o)
		}
	}
	if err := iter.Error(); err != nil {
		return nil, err
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
	iter := s.db.NewIterator(util.BytesPrefix(typePrefix(ledgerstate.EntryTypeOffer)), nil)
	defer iter.Release()

	var out []*ledgerstate.OfferEntry
	for iter.Next() {
		e, err := decodeEntry(iter.Value())
		if err != nil {
			return nil, err
		}
		if o, ok := e.(*ledgerstate.OfferEntry); ok {
			out = append(out, o)
		}
	}
	return out, iter.Error()
}

func (s *Store) LoadOffersByAccountAndAsset(ctx context.Context, account ledgerstate.AccountID, asset ledgerstate.Asset) ([]*ledgerstate.OfferEntry, error) {
	iter := s.db.NewIterator(util.BytesPrefix(typePrefix(ledgerstate.EntryTypeOffer)), nil)
	defer iter.Release()

	var out []*ledgerstate.OfferEntry
	for iter.Next() {
		e, err := decodeEntry(iter.Value())
		if err != nil {
			return nil, err
		}
		o, ok := e.(*ledgerstate.OfferEntry)
		if !ok || o.SellerID != account {
			continue
		}
		if !o.BuyingAsset.Equal(asset) && !o.SellingAsset.Equal(asset) {
			continue
		}
		out = append(out, o)
	}
	return out, iter.Error()
}

func (s *Store) LoadInflationWinners(ctx context.Context, maxWinners int, minVotes int64) ([]ledgerstate.InflationVote, error) {
	iter := s.db.NewIterator(util.BytesPrefix(typePrefix(ledgerstate.EntryTypeAccount)), nil)
	defer iter.Release()

	totals := make(map[ledgerstate.AccountID]int64)
	for iter.Next() {
		e, err := decodeEntry(iter.Value())
		if err != nil {
			return nil, err
		}
		a, ok := e.(*ledgerstate.AccountEntry)
		if !ok || a.InflationDest == nil || a.Balance < ledgerstate.BalanceThreshold {
			continue
		}
		totals[*a.InflationDest] += a.Balance
	}
	if err := iter.Error(); err != nil {
		return nil, err
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
	iter := s.db.NewIterator(util.BytesPrefix(typePrefix(t)), nil)
	defer iter.Release()
	var n int64
	for iter.Next() {
		n++
	}
	return n, iter.Error()
}

func (s *Store) CountObjectsInRange(ctx context.Context, t ledgerstate.EntryType, lo, hi uint32) (int64, error) {
	iter := s.db.NewIterator(util.BytesPrefix(typePrefix(t)), nil)
	defer iter.Release()
	var n int64
	for iter.Next() {
		e, err := decodeEntry(iter.Value())
		if err != nil {
			return 0, err
		}
		if seq := e.LastModifiedLedgerSeq(); seq >= lo && seq <= hi {
			n++
		}
	}
	return n, iter.Error()
}

func (s *Store) LoadHeader(ctx context.Context) (ledgerstate.Header, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.header, nil
}

// Begin refuses a second concurrent transaction and returns a
// batch-buffered StoreTx: writes accumulate in a leveldb.Batch and only
// touch the database atomically on Commit, per the teacher's own
// Batch.Store/Execute pattern.
func (s *Store) Begin(ctx context.Context) (ledgerstate.StoreTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txOpen {
		return nil, ledgerstate.ErrHasChild
	}
	s.txOpen = true
	return &tx{store: s, batch: new(leveldb.Batch)}, nil
}

// DeleteObjectsModifiedOnOrAfterLedger scans every type prefix directly
// against the database — it is the one bulk operation the cache-invalidation
// trigger needs and is not expected on the hot path.
func (s *Store) DeleteObjectsModifiedOnOrAfterLedger(ctx context.Context, seq uint32) error {
	batch := new(leveldb.Batch)
	for _, t := range []ledgerstate.EntryType{
		ledgerstate.EntryTypeAccount, ledgerstate.EntryTypeTrustLine,
		ledgerstate.EntryTypeOffer, ledgerstate.EntryTypeData,
	} {
		iter := s.db.NewIterator(util.BytesPrefix(typePrefix(t)), nil)
		for iter.Next() {
			e, err := decodeEntry(iter.Value())
			if err != nil {
				iter.Release()
				return err
			}
			if e.LastModifiedLedgerSeq() < seq {
				continue
			}
			key := append([]byte(nil), iter.Key()...)
			if o, ok := e.(*ledgerstate.OfferEntry); ok {
				batch.Delete(bestOfferKeyBytes(o.BuyingAsset, o.SellingAsset, o.Key().Raw))
			}
			batch.Delete(key)
		}
		if err := iter.Error(); err != nil {
			iter.Release()
			return err
		}
		iter.Release()
	}
	return s.db.Write(batch, nil)
}

// tx is the single open StoreTx a Store allows at a time. Reads pass
// straight through to the store (no write in this transaction is ever read
// back before Commit, since the engine only writes during a top-level
// StateView's Commit, after every read it will do has already happened);
// writes accumulate in batch.
type tx struct {
	store *Store
	batch *leveldb.Batch
}

func (t *tx) LoadByKey(ctx context.Context, k ledgerstate.Key) (ledgerstate.LedgerEntry, bool, error) {
	return t.store.LoadByKey(ctx, k)
}
func (t *tx) InsertOrUpdate(ctx context.Context, e ledgerstate.LedgerEntry, isInsert bool) error {
	return t.store.stageInsertOrUpdate(ctx, t.batch, e, isInsert)
}
func (t *tx) Delete(ctx context.Context, k ledgerstate.Key) error {
	return t.store.stageDelete(ctx, t.batch, k)
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
	err := t.store.db.Write(t.batch, nil)
	t.store.mu.Lock()
	t.store.txOpen = false
	t.store.mu.Unlock()
	return err
}

func (t *tx) Rollback(ctx context.Context) error {
	t.store.mu.Lock()
	t.store.txOpen = false
	t.store.mu.Unlock()
	return nil
}
