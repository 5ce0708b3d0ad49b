package ledgerstate

import "context"

// ChangeKind classifies one entry mutation recorded by GetChanges/GetDelta.
type ChangeKind int

const (
	ChangeCreated ChangeKind = iota
	ChangeUpdated
	ChangeRemoved
	ChangeState // present at open, untouched by this view — neither GetChanges nor GetDelta emits it
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeCreated:
		return "Created"
	case ChangeUpdated:
		return "Updated"
	case ChangeRemoved:
		return "Removed"
	case ChangeState:
		return "State"
	default:
		return "Unknown"
	}
}

// Change is one entry-level mutation observed in a StateView's overlay,
// relative to its parent at the time the view was opened.
type Change struct {
	Key    Key
	Kind   ChangeKind
	Before LedgerEntry // nil for ChangeCreated
	After  LedgerEntry // nil for ChangeRemoved
}

// GetChanges fails HasChild, then seals the view and returns one Change per
// touched key, without needing to resolve ancestor state for keys the view
// fully created and destroyed within itself. Callers that need "here's what
// the entry looked like when I opened this view" should use GetDelta
// instead. Sealing rejects every further Create/Load/Erase on v, but v can
// still be Committed or Rolled back afterward — both already tolerate a
// sealed view on their way to Destroyed.
func (v *StateView) GetChanges(ctx context.Context) ([]Change, error) {
	if v.state == viewHasChild {
		return nil, newStateError(KindHasChild, "GetChanges", Key{})
	}
	if v.state == viewSealed || v.state == viewDestroyed {
		return nil, newStateError(KindSealed, "GetChanges", Key{})
	}

	changes := make([]Change, 0, len(v.slots))
	for k, s := range v.slots {
		before, beforeState, err := v.parent.lookup(ctx, k)
		if err != nil {
			return nil, err
		}
		switch s.kind {
		case slotPresent:
			if beforeState == lookupPresent {
				changes = append(changes, Change{Key: k, Kind: ChangeUpdated, Before: before, After: s.entry})
			} else {
				changes = append(changes, Change{Key: k, Kind: ChangeCreated, After: s.entry})
			}
		case slotTombstone:
			changes = append(changes, Change{Key: k, Kind: ChangeRemoved, Before: before})
		}
	}
	v.state = viewSealed
	return changes, nil
}

// GetDelta returns, for every touched key, both the before-value observed
// through the parent chain and the after-value in this view's overlay —
// the pre-image/post-image pair invariant checks and downstream indexers
// need, distinct from GetChanges' single-Kind-per-key summary.
func (v *StateView) GetDelta(ctx context.Context) (map[Key]Change, error) {
	if v.state == viewHasChild {
		return nil, newStateError(KindHasChild, "GetDelta", Key{})
	}
	if v.state == viewSealed || v.state == viewDestroyed {
		return nil, newStateError(KindSealed, "GetDelta", Key{})
	}

	out := make(map[Key]Change, len(v.slots))
	for k, s := range v.slots {
		before, beforeState, err := v.parent.lookup(ctx, k)
		if err != nil {
			return nil, err
		}
		c := Change{Key: k}
		if beforeState == lookupPresent {
			c.Before = before
		}
		switch s.kind {
		case slotPresent:
			c.After = s.entry
			if c.Before == nil {
				c.Kind = ChangeCreated
			} else {
				c.Kind = ChangeUpdated
			}
		case slotTombstone:
			c.Kind = ChangeRemoved
		}
		out[k] = c
	}
	v.state = viewSealed
	return out, nil
}
