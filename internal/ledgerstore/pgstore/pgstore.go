// Package pgstore is a durable ledgerstate.Store backed by PostgreSQL via
// database/sql and the lib/pq driver, grounded on the teacher's
// internal/storage/relationaldb/postgres package: sql.Open with the pq
// driver, a pooled *sql.DB, PingContext on Open, an initSchema pass of
// CREATE TABLE IF NOT EXISTS statements, and $-placeholder parameterized
// queries throughout — the same idioms the teacher's PostgresDatabase and
// PostgresTransaction use for rippled-shaped SQL tables, redirected at this
// engine's ledger-entry shape instead.
package pgstore

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/ugorji/go/codec"

	"github.com/ledgerforge/coreledger/internal/bignum"
	"github.com/ledgerforge/coreledger/internal/ledgerstate"
)

// traceIDKey is the context key under which Begin stashes a transaction's
// trace ID. Exported access is via TraceID.
type traceIDKey struct{}

// WithTraceID stamps ctx with a fresh trace ID for the StoreTx that a
// subsequent Begin(ctx) opens. Optional: Begin mints its own if the caller
// never calls this.
func WithTraceID(ctx context.Context) context.Context {
	return context.WithValue(ctx, traceIDKey{}, uuid.NewString())
}

// traceIDFromContext returns the trace ID stamped on ctx, if any.
func traceIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(traceIDKey{}).(string)
	return id, ok
}

var cborHandle codec.CborHandle

const (
	defaultMaxOpenConns = 20
	defaultMaxIdleConns = 5
	defaultConnMaxLife  = 5 * time.Minute
	defaultPingTimeout  = 5 * time.Second
)

// querier is satisfied by both *sql.DB and *sql.Tx, letting every read/write
// helper run identically whether or not a transaction is open.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a durable ledgerstate.Store over a PostgreSQL database.
type Store struct {
	db *sql.DB

	mu     sync.Mutex
	txOpen bool
}

// Open connects to dsn, verifies the connection, initializes the schema if
// absent, and seeds the ledger_header row with bootstrap if the table was
// just created. Grounded on PostgresDatabase.Open
// (internal/storage/relationaldb/postgres/database.go): pool sizing, a
// PingContext with a bounded timeout, then initSchema.
func Open(ctx context.Context, dsn string, bootstrap ledgerstate.Header) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: open: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLife)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.bootstrapHeader(ctx, bootstrap); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			entry_type SMALLINT NOT NULL,
			key_raw BYTEA NOT NULL,
			last_modified_seq BIGINT NOT NULL,
			payload BYTEA NOT NULL,
			seller_id BYTEA,
			buying_native BOOLEAN,
			buying_code BYTEA,
			buying_issuer BYTEA,
			selling_native BOOLEAN,
			selling_code BYTEA,
			selling_issuer BYTEA,
			PRIMARY KEY (entry_type, key_raw)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_entries_offer_pair ON ledger_entries
			(buying_native, buying_code, buying_issuer, selling_native, selling_code, selling_issuer)
			WHERE entry_type = 2`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_entries_seller ON ledger_entries (seller_id)
			WHERE entry_type = 2`,
		`CREATE TABLE IF NOT EXISTS ledger_header (
			id SMALLINT PRIMARY KEY DEFAULT 1,
			ledger_seq BIGINT NOT NULL,
			ledger_version BIGINT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("pgstore: init schema: %w", err)
		}
	}
	return nil
}

func (s *Store) bootstrapHeader(ctx context.Context, h ledgerstate.Header) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_header (id, ledger_seq, ledger_version) VALUES (1, $1, $2)
		 ON CONFLICT (id) DO NOTHING`, h.LedgerSeq, h.LedgerVersion)
	if err != nil {
		return fmt.Errorf("pgstore: bootstrap header: %w", err)
	}
	return nil
}

// entry_type numbering must track ledgerstate.EntryType's iota exactly;
// the offer-pair and seller partial indexes above hard-code entry_type = 2.
const entryTypeOffer = int(ledgerstate.EntryTypeOffer)

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
		return nil, fmt.Errorf("pgstore: unsupported entry type %T", e)
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
		return nil, fmt.Errorf("pgstore: unknown record type %d", rec.Type)
	}
}

func loadByKey(ctx context.Context, q querier, k ledgerstate.Key) (ledgerstate.LedgerEntry, bool, error) {
	var payload []byte
	err := q.QueryRowContext(ctx,
		`SELECT payload FROM ledger_entries WHERE entry_type = $1 AND key_raw = $2`,
		int(k.Type), k.Raw[:]).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	e, err := decodeEntry(payload)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

func insertOrUpdate(ctx context.Context, q querier, e ledgerstate.LedgerEntry) error {
	payload, err := encodeEntry(e)
	if err != nil {
		return err
	}
	k := e.Key()

	var sellerID []byte
	var buyingNative, sellingNative sql.NullBool
	var buyingCode, buyingIssuer, sellingCode, sellingIssuer []byte
	if o, ok := e.(*ledgerstate.OfferEntry); ok {
		seller := o.SellerID
		sellerID = seller[:]
		buyingNative = sql.NullBool{Bool: o.BuyingAsset.Native, Valid: true}
		sellingNative = sql.NullBool{Bool: o.SellingAsset.Native, Valid: true}
		bc, bi := o.BuyingAsset.Code, o.BuyingAsset.Issuer
		buyingCode, buyingIssuer = bc[:], bi[:]
		sc, si := o.SellingAsset.Code, o.SellingAsset.Issuer
		sellingCode, sellingIssuer = sc[:], si[:]
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO ledger_entries (entry_type, key_raw, last_modified_seq, payload,
			seller_id, buying_native, buying_code, buying_issuer, selling_native, selling_code, selling_issuer)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (entry_type, key_raw) DO UPDATE SET
			last_modified_seq = EXCLUDED.last_modified_seq,
			payload = EXCLUDED.payload,
			seller_id = EXCLUDED.seller_id,
			buying_native = EXCLUDED.buying_native,
			buying_code = EXCLUDED.buying_code,
			buying_issuer = EXCLUDED.buying_issuer,
			selling_native = EXCLUDED.selling_native,
			selling_code = EXCLUDED.selling_code,
			selling_issuer = EXCLUDED.selling_issuer`,
		int(k.Type), k.Raw[:], e.LastModifiedLedgerSeq(), payload,
		sellerID, buyingNative, buyingCode, buyingIssuer, sellingNative, sellingCode, sellingIssuer)
	return err
}

func deleteByKey(ctx context.Context, q querier, k ledgerstate.Key) error {
	_, err := q.ExecContext(ctx, `DELETE FROM ledger_entries WHERE entry_type = $1 AND key_raw = $2`,
		int(k.Type), k.Raw[:])
	return err
}

// loadBestOffers narrows to the requested asset pair in SQL, then — exactly
// like memstore and leveldbstore — establishes the final order in Go via
// bignum.Rational, so the exact-rational comparison rule governs the
// candidate order the engine actually sees, not a NUMERIC-column ORDER BY.
func loadBestOffers(ctx context.Context, q querier, buying, selling ledgerstate.Asset, limit, offset int) ([]*ledgerstate.OfferEntry, error) {
	bc, bi := buying.Code, buying.Issuer
	sc, si := selling.Code, selling.Issuer
	rows, err := q.QueryContext(ctx, `
		SELECT payload FROM ledger_entries
		WHERE entry_type = $1
		  AND buying_native = $2 AND buying_code = $3 AND buying_issuer = $4
		  AND selling_native = $5 AND selling_code = $6 AND selling_issuer = $7`,
		entryTypeOffer, buying.Native, bc[:], bi[:], selling.Native, sc[:], si[:])
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ledgerstate.OfferEntry
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		e, err := decodeEntry(payload)
		if err != nil {
			return nil, err
		}
		if o, ok := e.(*ledgerstate.OfferEntry); ok {
			out = append(out, o)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Price.Equal(out[j].Price) {
			return out[i].Price.Less(out[j].Price)
		}
		return out[i].OfferID < out[j].OfferID
	})
	if offset >= len(out) {
		return nil, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func loadAllOffers(ctx context.Context, q querier) ([]*ledgerstate.OfferEntry, error) {
	rows, err := q.QueryContext(ctx, `SELECT payload FROM ledger_entries WHERE entry_type = $1`, entryTypeOffer)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*ledgerstate.OfferEntry
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		e, err := decodeEntry(payload)
		if err != nil {
			return nil, err
		}
		if o, ok := e.(*ledgerstate.OfferEntry); ok {
			out = append(out, o)
		}
	}
	return out, rows.Err()
}

func loadOffersByAccountAndAsset(ctx context.Context, q querier, account ledgerstate.AccountID, asset ledgerstate.Asset) ([]*ledgerstate.OfferEntry, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT payload FROM ledger_entries WHERE entry_type = $1 AND seller_id = $2`,
		entryTypeOffer, account[:])
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*ledgerstate.OfferEntry
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		e, err := decodeEntry(payload)
		if err != nil {
			return nil, err
		}
		o, ok := e.(*ledgerstate.OfferEntry)
		if !ok {
			continue
		}
		if !o.BuyingAsset.Equal(asset) && !o.SellingAsset.Equal(asset) {
			continue
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func loadInflationWinners(ctx context.Context, q querier, maxWinners int, minVotes int64) ([]ledgerstate.InflationVote, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT payload FROM ledger_entries WHERE entry_type = $1`, int(ledgerstate.EntryTypeAccount))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[ledgerstate.AccountID]int64)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		e, err := decodeEntry(payload)
		if err != nil {
			return nil, err
		}
		a, ok := e.(*ledgerstate.AccountEntry)
		if !ok || a.InflationDest == nil || a.Balance < ledgerstate.BalanceThreshold {
			continue
		}
		totals[*a.InflationDest] += a.Balance
	}
	if err := rows.Err(); err != nil {
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

func countObjects(ctx context.Context, q querier, t ledgerstate.EntryType) (int64, error) {
	var n int64
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_entries WHERE entry_type = $1`, int(t)).Scan(&n)
	return n, err
}

func countObjectsInRange(ctx context.Context, q querier, t ledgerstate.EntryType, lo, hi uint32) (int64, error) {
	var n int64
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_entries WHERE entry_type = $1 AND last_modified_seq BETWEEN $2 AND $3`,
		int(t), lo, hi).Scan(&n)
	return n, err
}

func loadHeader(ctx context.Context, q querier) (ledgerstate.Header, error) {
	var seq, version uint32
	err := q.QueryRowContext(ctx, `SELECT ledger_seq, ledger_version FROM ledger_header WHERE id = 1`).Scan(&seq, &version)
	if err != nil {
		return ledgerstate.Header{}, err
	}
	return ledgerstate.Header{LedgerSeq: seq, LedgerVersion: version}, nil
}

func (s *Store) LoadByKey(ctx context.Context, k ledgerstate.Key) (ledgerstate.LedgerEntry, bool, error) {
	return loadByKey(ctx, s.db, k)
}
func (s *Store) InsertOrUpdate(ctx context.Context, e ledgerstate.LedgerEntry, isInsert bool) error {
	return insertOrUpdate(ctx, s.db, e)
}
func (s *Store) Delete(ctx context.Context, k ledgerstate.Key) error {
	return deleteByKey(ctx, s.db, k)
}
func (s *Store) LoadBestOffers(ctx context.Context, buying, selling ledgerstate.Asset, limit, offset int) ([]*ledgerstate.OfferEntry, error) {
	return loadBestOffers(ctx, s.db, buying, selling, limit, offset)
}
func (s *Store) LoadAllOffers(ctx context.Context) ([]*ledgerstate.OfferEntry, error) {
	return loadAllOffers(ctx, s.db)
}
func (s *Store) LoadOffersByAccountAndAsset(ctx context.Context, account ledgerstate.AccountID, asset ledgerstate.Asset) ([]*ledgerstate.OfferEntry, error) {
	return loadOffersByAccountAndAsset(ctx, s.db, account, asset)
}
func (s *Store) LoadInflationWinners(ctx context.Context, maxWinners int, minVotes int64) ([]ledgerstate.InflationVote, error) {
	return loadInflationWinners(ctx, s.db, maxWinners, minVotes)
}
func (s *Store) CountObjects(ctx context.Context, t ledgerstate.EntryType) (int64, error) {
	return countObjects(ctx, s.db, t)
}
func (s *Store) CountObjectsInRange(ctx context.Context, t ledgerstate.EntryType, lo, hi uint32) (int64, error) {
	return countObjectsInRange(ctx, s.db, t, lo, hi)
}
func (s *Store) LoadHeader(ctx context.Context) (ledgerstate.Header, error) {
	return loadHeader(ctx, s.db)
}

// Begin refuses a second concurrent transaction and opens a real
// database/sql transaction — unlike leveldbstore, whose transaction buffers
// writes until Commit, reads issued against the returned StoreTx see this
// transaction's own uncommitted writes, since that's just what sql.Tx gives
// for free.
func (s *Store) Begin(ctx context.Context) (ledgerstate.StoreTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txOpen {
		return nil, ledgerstate.ErrHasChild
	}
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("pgstore: begin: %w", err)
	}
	traceID, ok := traceIDFromContext(ctx)
	if !ok {
		traceID = uuid.NewString()
	}
	s.txOpen = true
	return &tx{store: s, tx: sqlTx, traceID: traceID}, nil
}

func (s *Store) DeleteObjectsModifiedOnOrAfterLedger(ctx context.Context, seq uint32) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM ledger_entries WHERE last_modified_seq >= $1`, seq)
	return err
}

// tx is the single open StoreTx a Store allows at a time, backed directly
// by a *sql.Tx.
type tx struct {
	store   *Store
	tx      *sql.Tx
	traceID string
}

// TraceID returns the trace ID this transaction was opened with, either
// stamped by WithTraceID before Begin or minted by Begin itself.
func (t *tx) TraceID() string { return t.traceID }

func (t *tx) LoadByKey(ctx context.Context, k ledgerstate.Key) (ledgerstate.LedgerEntry, bool, error) {
	return loadByKey(ctx, t.tx, k)
}
func (t *tx) InsertOrUpdate(ctx context.Context, e ledgerstate.LedgerEntry, isInsert bool) error {
	return insertOrUpdate(ctx, t.tx, e)
}
func (t *tx) Delete(ctx context.Context, k ledgerstate.Key) error {
	return deleteByKey(ctx, t.tx, k)
}
func (t *tx) LoadBestOffers(ctx context.Context, buying, selling ledgerstate.Asset, limit, offset int) ([]*ledgerstate.OfferEntry, error) {
	return loadBestOffers(ctx, t.tx, buying, selling, limit, offset)
}
func (t *tx) LoadAllOffers(ctx context.Context) ([]*ledgerstate.OfferEntry, error) {
	return loadAllOffers(ctx, t.tx)
}
func (t *tx) LoadOffersByAccountAndAsset(ctx context.Context, account ledgerstate.AccountID, asset ledgerstate.Asset) ([]*ledgerstate.OfferEntry, error) {
	return loadOffersByAccountAndAsset(ctx, t.tx, account, asset)
}
func (t *tx) LoadInflationWinners(ctx context.Context, maxWinners int, minVotes int64) ([]ledgerstate.InflationVote, error) {
	return loadInflationWinners(ctx, t.tx, maxWinners, minVotes)
}
func (t *tx) CountObjects(ctx context.Context, et ledgerstate.EntryType) (int64, error) {
	return countObjects(ctx, t.tx, et)
}
func (t *tx) CountObjectsInRange(ctx context.Context, et ledgerstate.EntryType, lo, hi uint32) (int64, error) {
	return countObjectsInRange(ctx, t.tx, et, lo, hi)
}
func (t *tx) LoadHeader(ctx context.Context) (ledgerstate.Header, error) {
	return loadHeader(ctx, t.tx)
}
func (t *tx) Begin(ctx context.Context) (ledgerstate.StoreTx, error) {
	return nil, ledgerstate.ErrHasChild
}
func (t *tx) DeleteObjectsModifiedOnOrAfterLedger(ctx context.Context, seq uint32) error {
	return t.store.DeleteObjectsModifiedOnOrAfterLedger(ctx, seq)
}

func (t *tx) Commit(ctx context.Context) error {
	err := t.tx.Commit()
	t.store.mu.Lock()
	t.store.txOpen = false
	t.store.mu.Unlock()
	return err
}

func (t *tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback()
	t.store.mu.Lock()
	t.store.txOpen = false
	t.store.mu.Unlock()
	return err
}
