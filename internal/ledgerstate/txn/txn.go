// Package txn is the ledger-close boundary: the one place in the engine
// that opens a StoreRoot's top-level StateView and recovers a fatal
// InvariantViolation panic, rather than letting it unwind past the current
// ledger close. Grounded on the teacher's relationaldb manager
// (internal/storage/relationaldb/manager.go) for the stdlib-`log`-based
// logging register the rest of the engine deliberately avoids.
package txn

import (
	"context"
	"fmt"
	"log"

	"github.com/ledgerforge/coreledger/internal/ledgerstate"
)

// Coordinator owns one StoreRoot and runs closures against fresh top-level
// StateViews, one at a time, converting a caught InvariantViolation into an
// error instead of a process crash.
type Coordinator struct {
	root   *ledgerstate.StoreRoot
	logger *log.Logger
}

// New wraps root with the default logger.
func New(root *ledgerstate.StoreRoot) *Coordinator {
	return &Coordinator{root: root, logger: log.Default()}
}

// WithLogger overrides the coordinator's logger, e.g. to route into the CLI's
// configured output.
func (c *Coordinator) WithLogger(logger *log.Logger) *Coordinator {
	c.logger = logger
	return c
}

// ErrLedgerCloseAborted wraps a recovered InvariantViolation.
type ErrLedgerCloseAborted struct {
	Cause *ledgerstate.InvariantViolation
}

func (e *ErrLedgerCloseAborted) Error() string {
	return fmt.Sprintf("ledger close aborted: %v", e.Cause)
}

func (e *ErrLedgerCloseAborted) Unwrap() error {
	return e.Cause
}

// Run opens a top-level StateView against the coordinator's root, invokes
// fn with it, and commits on a nil return or rolls back on a non-nil one.
// A panic with an *ledgerstate.InvariantViolation deep inside fn is
// recovered here, the in-flight view is rolled back, and the panic is
// reported as an error — this is the only recovery point in the engine, per
// spec.md §7's propagation policy.
func (c *Coordinator) Run(ctx context.Context, fn func(v *ledgerstate.StateView) error) (err error) {
	v, err := c.root.NewChild(ctx, true)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			iv, ok := r.(*ledgerstate.InvariantViolation)
			if !ok {
				panic(r) // not ours to swallow
			}
			c.logger.Printf("ledger close aborted by invariant violation: %v", iv)
			_ = v.Rollback(ctx)
			err = &ErrLedgerCloseAborted{Cause: iv}
		}
	}()

	if applyErr := fn(v); applyErr != nil {
		if rbErr := v.Rollback(ctx); rbErr != nil {
			c.logger.Printf("rollback after apply error also failed: %v", rbErr)
		}
		return applyErr
	}
	return v.Commit(ctx)
}
