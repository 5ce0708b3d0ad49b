package ledgerstate

import "context"

// EntryView is a mutable handle on one active ledger entry, scoped to the
// StateView that issued it. It implements the "arena + index" scheme from
// slot.go: dereferencing checks generation against the owning view's active
// registry rather than following a back-pointer into freed state.
type EntryView struct {
	view       *StateView
	key        Key
	generation uint64
	released   bool
}

func (h *EntryView) checkLive() {
	if h.released {
		panicInvariant("use of a released EntryView")
	}
	active, ok := h.view.active[h.key]
	if !ok || active.generation != h.generation {
		panicInvariant("use of an expired EntryView")
	}
}

// Get returns the entry's current value. The returned value must not be
// mutated in place — use Set to record a change.
func (h *EntryView) Get() LedgerEntry {
	h.checkLive()
	return h.view.slots[h.key].entry
}

// Set writes a new value for this entry back into the owning view's
// overlay. e must carry the same key as the handle.
func (h *EntryView) Set(e LedgerEntry) {
	h.checkLive()
	if e.Key() != h.key {
		panicInvariant("EntryView.Set: key mismatch")
	}
	h.view.writeBack(h.key, h.generation, e)
}

// Erase deletes this entry from the view and releases the handle in one
// step, per spec.md §4.1's EntryView-scoped erase.
func (h *EntryView) Erase(ctx context.Context) error {
	h.checkLive()
	h.released = true
	return h.view.eraseActive(ctx, h.key, h.generation)
}

// Release returns the handle to its owning view without erasing it, making
// the key available for a fresh Load/Create.
func (h *EntryView) Release() {
	if h.released {
		return
	}
	h.released = true
	h.view.deactivate(h.key, h.generation)
}

// Key returns the key this handle addresses.
func (h *EntryView) Key() Key { return h.key }

// ConstEntryView is a read-only handle produced by LoadWithoutRecord: it
// never installs an overlay slot, so releasing it is the only lifecycle
// operation available.
type ConstEntryView struct {
	view       *StateView
	key        Key
	generation uint64
	snapshot   LedgerEntry
	released   bool
}

// Get returns the entry's value as observed at acquisition time.
func (h *ConstEntryView) Get() LedgerEntry {
	if h.released {
		panicInvariant("use of a released ConstEntryView")
	}
	return h.snapshot
}

// Release returns the handle to its owning view.
func (h *ConstEntryView) Release() {
	if h.released {
		return
	}
	h.released = true
	h.view.deactivate(h.key, h.generation)
}

// Key returns the key this handle addresses.
func (h *ConstEntryView) Key() Key { return h.key }

// HeaderView is a mutable handle on a StateView's ledger header, exclusive
// per view (there is at most one live header handle at a time).
type HeaderView struct {
	view       *StateView
	generation uint64
	released   bool
}

func (h *HeaderView) checkLive() {
	if h.released {
		panicInvariant("use of a released HeaderView")
	}
	if !h.view.headerActive || h.view.headerGeneration != h.generation {
		panicInvariant("use of an expired HeaderView")
	}
}

// Get returns the header's current value.
func (h *HeaderView) Get() Header {
	h.checkLive()
	return h.view.header
}

// Set writes a new header value back into the owning view.
func (h *HeaderView) Set(header Header) {
	h.checkLive()
	h.view.writeBackHeader(h.generation, header)
}

// Release returns the handle to its owning view.
func (h *HeaderView) Release() {
	if h.released {
		return
	}
	h.released = true
	h.view.deactivateHeader(h.generation)
}
