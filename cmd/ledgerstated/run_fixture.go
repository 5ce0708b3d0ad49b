package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ledgerforge/coreledger/internal/bignum"
	"github.com/ledgerforge/coreledger/internal/ledgerstate"
	"github.com/ledgerforge/coreledger/internal/ledgerstate/txn"
	"github.com/ledgerforge/coreledger/internal/ledgerstateconfig"
	"github.com/ledgerforge/coreledger/internal/ledgerstore/leveldbstore"
	"github.com/ledgerforge/coreledger/internal/ledgerstore/memstore"
	"github.com/ledgerforge/coreledger/internal/ledgerstore/pgstore"
	"github.com/ledgerforge/coreledger/internal/manageoffer"
)

var runFixtureCmd = &cobra.Command{
	Use:   "run-fixture",
	Short: "seed a fixture ledger and drive a few ManageOffer calls end to end",
	RunE:  runFixture,
}

var (
	alice = accountID(1)
	bob   = accountID(2)
	usd   = ledgerstate.Asset{Code: [4]byte{'U', 'S', 'D'}, Issuer: accountID(9)}
)

func accountID(b byte) ledgerstate.AccountID {
	var a ledgerstate.AccountID
	a[0] = b
	return a
}

func runFixture(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := ledgerstateconfig.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	root := ledgerstate.NewStoreRootWithCacheSizes(store, cfg.Cache.EntrySize, cfg.Cache.BestOfferSize)
	coord := txn.New(root)

	if err := coord.Run(ctx, seedFixture); err != nil {
		return fmt.Errorf("seed fixture: %w", err)
	}

	requests := []manageoffer.Request{
		{Taker: alice, SellingAsset: ledgerstate.NativeAsset, BuyingAsset: usd, Amount: 100, Price: bignum.Rational{N: 2, D: 1}},
		{Taker: bob, SellingAsset: usd, BuyingAsset: ledgerstate.NativeAsset, Amount: 50, Price: bignum.Rational{N: 1, D: 2}},
	}

	// Independent, read-only shape checks run concurrently before the
	// single-threaded apply pass below, which is the only place actually
	// allowed to mutate the ledger — mirrors the engine's single-writer
	// contract, it just moves the cheap validation ahead of it.
	g, gCtx := errgroup.WithContext(ctx)
	for i := range requests {
		req := requests[i]
		g.Go(func() error { return validateFixtureRequest(gCtx, req) })
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("fixture request failed validation: %w", err)
	}

	return coord.Run(ctx, func(v *ledgerstate.StateView) error {
		for i, req := range requests {
			result, err := manageoffer.Run(ctx, v, req)
			if err != nil {
				return fmt.Errorf("request %d: %w", i, err)
			}
			log.Printf("request %d: success=%v code=%v kind=%v claimed=%d",
				i, result.Success, result.Code, result.Kind, len(result.OffersClaimed))
		}
		return nil
	})
}

// validateFixtureRequest performs the same cheap, side-effect-free checks
// manageoffer.Run itself does first, just early enough to fail the whole
// batch before any store transaction is opened.
func validateFixtureRequest(ctx context.Context, req manageoffer.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if req.SellingAsset.Equal(req.BuyingAsset) {
		return fmt.Errorf("selling and buying assets are identical")
	}
	if req.Amount < 0 {
		return fmt.Errorf("negative amount")
	}
	if req.Price.N <= 0 || req.Price.D <= 0 {
		return fmt.Errorf("non-positive price")
	}
	return nil
}

func seedFixture(v *ledgerstate.StateView) error {
	ctx := context.Background()
	accounts := []*ledgerstate.AccountEntry{
		{ID: alice, Balance: 1_000_000_0000, NumSubEntries: 1},
		{ID: bob, Balance: 1_000_000_0000, NumSubEntries: 1},
		{ID: usd.Issuer, Balance: 1_000_000_0000},
	}
	for _, a := range accounts {
		if _, err := v.Create(ctx, a); err != nil {
			return fmt.Errorf("create account %x: %w", a.ID, err)
		}
	}

	trustLines := []*ledgerstate.TrustLineEntry{
		{Low: alice, High: usd.Issuer, Code: usd.Code, LowLimit: 1_000_000_0000, HighLimit: 1_000_000_0000, LowAuthorized: true, HighAuthorized: true},
		{Low: bob, High: usd.Issuer, Code: usd.Code, LowLimit: 1_000_000_0000, HighLimit: 1_000_000_0000, LowAuthorized: true, HighAuthorized: true, Balance: 500_0000},
	}
	// TrustLineKey orders its two endpoints internally, so Low/High above
	// need not already be in canonical order; give the store the accounts
	// in a stable order regardless.
	for _, t := range trustLines {
		if _, err := v.Create(ctx, t); err != nil {
			return fmt.Errorf("create trust line: %w", err)
		}
	}
	return nil
}

func openStore(ctx context.Context, cfg *ledgerstateconfig.Config) (ledgerstate.Store, func(), error) {
	bootstrap := ledgerstate.Header{LedgerSeq: 1, LedgerVersion: 21}
	switch cfg.Store.Backend {
	case "leveldb":
		s, err := leveldbstore.Open(cfg.Store.Path, bootstrap)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "postgres":
		s, err := pgstore.Open(ctx, cfg.Store.DSN, bootstrap)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return memstore.New(bootstrap), func() {}, nil
	}
}
