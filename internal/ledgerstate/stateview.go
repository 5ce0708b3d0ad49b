// Package ledgerstate implements the nested transactional ledger-state
// engine: copy-on-write, arbitrarily nestable read/write views of a keyed
// ledger, rooted either on another StateView or on a StoreRoot.
package ledgerstate

import (
	"context"
	"sort"
)

// lookupState is the three-way result of resolving a key against a single
// view or the store: present with an entry, explicitly tombstoned, or
// entirely unmentioned (absent).
type lookupState int

const (
	lookupAbsent lookupState = iota
	lookupPresent
	lookupTombstone
)

// viewState is the StateView state machine from spec.md §4.1: Open ->
// HasChild (child construction) -> Open (child commit/rollback); Open ->
// Sealed (change-set extraction); Sealed -> Destroyed (commit/rollback).
type viewState int

const (
	viewOpen viewState = iota
	viewHasChild
	viewSealed
	viewDestroyed
)

// parentView is satisfied by both *StateView and *StoreRoot, letting a
// StateView treat "my parent" uniformly whether it's another overlay or the
// bottom of the stack.
type parentView interface {
	lookup(ctx context.Context, k Key) (LedgerEntry, lookupState, error)
	bestOfferCandidate(ctx context.Context, buying, selling Asset, exclude map[Key]struct{}) (*OfferEntry, error)
	allOffers(ctx context.Context) ([]*OfferEntry, error)
	offersByAccountAndAsset(ctx context.Context, account AccountID, asset Asset) ([]*OfferEntry, error)
	inflationWinners(ctx context.Context, maxWinners int, minVotes int64) ([]InflationVote, error)
	currentHeader() Header

	// foldChildCommit absorbs a committing child's touched slots and
	// adopted header into the parent, per the commit-folding rule in
	// spec.md §4.1.
	foldChildCommit(ctx context.Context, child *StateView) error
	// childDone transitions HasChild back to Open (or releases StoreRoot's
	// single-child slot), called on both commit and rollback completion.
	childDone()
}

// BalanceThreshold is the minimum account balance a voter must hold for its
// vote to count in getInflationWinners, per spec.md §4.1 / Design Notes.
const BalanceThreshold int64 = 1_000_0000

// StateView is a single-writer, read-through overlay offering
// create/load/erase/commit/rollback semantics on ledger entries, per
// spec.md §4.1 (component C3).
type StateView struct {
	parent parentView
	header Header

	slots  map[Key]*slot
	active map[Key]activeHandle

	headerActive     bool
	headerGeneration uint64

	nextGen uint64

	state              viewState
	child              *StateView
	updateLastModified bool
}

// NewChild opens a child StateView against this one, per spec.md §4.1.
// Fails HasChild if a child is already open; fails Sealed if this view is
// sealed.
func (v *StateView) NewChild(updateLastModified bool) (*StateView, error) {
	if v.state == viewSealed {
		return nil, newStateError(KindSealed, "NewChild", Key{})
	}
	if v.state == viewHasChild {
		return nil, newStateError(KindHasChild, "NewChild", Key{})
	}
	child := &StateView{
		parent:             v,
		header:             v.header.Clone(),
		slots:              make(map[Key]*slot),
		active:             make(map[Key]activeHandle),
		updateLastModified: updateLastModified,
		state:              viewOpen,
	}
	v.child = child
	v.state = viewHasChild
	return child, nil
}

func (v *StateView) childDone() {
	v.child = nil
	if v.state == viewHasChild {
		v.state = viewOpen
	}
}

func (v *StateView) currentHeader() Header {
	return v.header
}

// CurrentHeader returns a snapshot of this view's header without acquiring
// the exclusive header handle — for callers that only need to read version
// gates or the ledger sequence, not mutate the header.
func (v *StateView) CurrentHeader() Header {
	return v.header
}

// requireMutable enforces the common Sealed/HasChild precondition shared by
// every mutating operation.
func (v *StateView) requireMutable(op string) error {
	if v.state == viewSealed {
		return newStateError(KindSealed, op, Key{})
	}
	if v.state == viewHasChild {
		return newStateError(KindHasChild, op, Key{})
	}
	if v.state == viewDestroyed {
		return newStateError(KindSealed, op, Key{})
	}
	return nil
}

func (v *StateView) mintGeneration() uint64 {
	v.nextGen++
	return v.nextGen
}

// lookup resolves k starting at this view's own overlay and falling through
// to the parent chain, per spec.md §4.1 load().
func (v *StateView) lookup(ctx context.Context, k Key) (LedgerEntry, lookupState, error) {
	if s, ok := v.slots[k]; ok {
		if s.kind == slotPresent {
			return s.entry, lookupPresent, nil
		}
		return nil, lookupTombstone, nil
	}
	return v.parent.lookup(ctx, k)
}

// Create fails KeyExists if the key resolves to present anywhere on the
// lookup path; fails Sealed/HasChild per the usual preconditions. On success
// it stores the entry present, registers a fresh active handle, and returns
// an EntryView.
func (v *StateView) Create(ctx context.Context, entry LedgerEntry) (*EntryView, error) {
	if err := v.requireMutable("Create"); err != nil {
		return nil, err
	}
	k := entry.Key()
	if _, active := v.active[k]; active {
		return nil, newStateError(KindAlreadyActive, "Create", k)
	}
	_, state, err := v.lookup(ctx, k)
	if err != nil {
		return nil, err
	}
	if state == lookupPresent {
		return nil, newStateError(KindKeyExists, "Create", k)
	}

	stored := entry.Clone()
	v.slots[k] = &slot{kind: slotPresent, entry: stored}
	gen := v.mintGeneration()
	v.active[k] = activeHandle{generation: gen, kind: handleMutable}
	return &EntryView{view: v, key: k, generation: gen}, nil
}

// Load fails Sealed/HasChild/AlreadyActive. Looks up the newest version; if
// tombstoned or absent returns (nil, nil). Otherwise copies the entry into
// this view's overlay as present, registers the handle, and returns it.
func (v *StateView) Load(ctx context.Context, k Key) (*EntryView, error) {
	if err := v.requireMutable("Load"); err != nil {
		return nil, err
	}
	if _, active := v.active[k]; active {
		return nil, newStateError(KindAlreadyActive, "Load", k)
	}
	entry, state, err := v.lookup(ctx, k)
	if err != nil {
		return nil, err
	}
	if state != lookupPresent {
		return nil, nil
	}

	if _, ok := v.slots[k]; !ok {
		v.slots[k] = &slot{kind: slotPresent, entry: entry.Clone()}
	}
	gen := v.mintGeneration()
	v.active[k] = activeHandle{generation: gen, kind: handleMutable}
	return &EntryView{view: v, key: k, generation: gen}, nil
}

// LoadWithoutRecord performs the same lookup as Load but never installs an
// overlay slot, so mutation is impossible. It still claims the active-handle
// slot, making it mutually exclusive with Load(key).
func (v *StateView) LoadWithoutRecord(ctx context.Context, k Key) (*ConstEntryView, error) {
	if err := v.requireMutable("LoadWithoutRecord"); err != nil {
		return nil, err
	}
	if _, active := v.active[k]; active {
		return nil, newStateError(KindAlreadyActive, "LoadWithoutRecord", k)
	}
	entry, state, err := v.lookup(ctx, k)
	if err != nil {
		return nil, err
	}
	if state != lookupPresent {
		return nil, nil
	}
	gen := v.mintGeneration()
	v.active[k] = activeHandle{generation: gen, kind: handleReadOnly}
	return &ConstEntryView{view: v, key: k, generation: gen, snapshot: entry}, nil
}

// Erase fails NotFound, Sealed, HasChild, AlreadyActive. If the key is
// unknown to ancestors (i.e. v.parent doesn't resolve it as present), the
// overlay slot is removed entirely — it was born and died in this view.
// Otherwise a tombstone is recorded.
func (v *StateView) Erase(ctx context.Context, k Key) error {
	if err := v.requireMutable("Erase"); err != nil {
		return err
	}
	if _, active := v.active[k]; active {
		return newStateError(KindAlreadyActive, "Erase", k)
	}
	_, state, err := v.lookup(ctx, k)
	if err != nil {
		return err
	}
	if state != lookupPresent {
		return newStateError(KindNotFound, "Erase", k)
	}

	_, parentState, err := v.parent.lookup(ctx, k)
	if err != nil {
		return err
	}
	if parentState == lookupPresent {
		v.slots[k] = &slot{kind: slotTombstone}
	} else {
		delete(v.slots, k)
	}
	return nil
}

// deactivate releases the active-handle slot for k, called by an
// EntryView/ConstEntryView on Release/Close.
func (v *StateView) deactivate(k Key, generation uint64) {
	if h, ok := v.active[k]; ok && h.generation == generation {
		delete(v.active, k)
	}
}

// writeBack stores a mutated entry into the overlay slot for k, called by an
// active EntryView whenever a setter runs.
func (v *StateView) writeBack(k Key, generation uint64, entry LedgerEntry) {
	h, ok := v.active[k]
	if !ok || h.generation != generation || h.kind != handleMutable {
		panicInvariant("writeBack on an inactive or read-only handle")
	}
	v.slots[k] = &slot{kind: slotPresent, entry: entry}
}

// eraseActive is called by EntryView.Erase: it deactivates the handle first,
// then erases the key.
func (v *StateView) eraseActive(ctx context.Context, k Key, generation uint64) error {
	h, ok := v.active[k]
	if !ok || h.generation != generation {
		return newStateError(KindHandleExpired, "Erase", k)
	}
	delete(v.active, k)
	return v.Erase(ctx, k)
}

// LoadHeader fails Sealed, HasChild, HeaderActive. Registers the header
// handle; header mutations are local to the view.
func (v *StateView) LoadHeader() (*HeaderView, error) {
	if err := v.requireMutable("LoadHeader"); err != nil {
		return nil, err
	}
	if v.headerActive {
		return nil, newStateError(KindHeaderActive, "LoadHeader", Key{})
	}
	v.headerActive = true
	v.headerGeneration = v.mintGeneration()
	return &HeaderView{view: v, generation: v.headerGeneration}, nil
}

func (v *StateView) deactivateHeader(generation uint64) {
	if v.headerActive && v.headerGeneration == generation {
		v.headerActive = false
	}
}

func (v *StateView) writeBackHeader(generation uint64, h Header) {
	if !v.headerActive || v.headerGeneration != generation {
		panicInvariant("writeBackHeader on an inactive header handle")
	}
	v.header = h
}

// UnsealHeader applies fn to a temporarily re-activated HeaderView, even
// when the view is sealed — the one documented exception besides rollback
// and read-only getEntries, per spec.md §4.1.
func (v *StateView) UnsealHeader(fn func(*HeaderView)) error {
	if v.state == viewDestroyed {
		return newStateError(KindSealed, "UnsealHeader", Key{})
	}
	if v.headerActive {
		return newStateError(KindHeaderActive, "UnsealHeader", Key{})
	}
	gen := v.mintGeneration()
	v.headerActive = true
	v.headerGeneration = gen
	hv := &HeaderView{view: v, generation: gen}
	fn(hv)
	hv.Release()
	return nil
}

// Commit seals the view, folds every touched slot into the parent, and
// transitions to Destroyed. Fails HasChild.
func (v *StateView) Commit(ctx context.Context) error {
	if v.state == viewHasChild {
		return newStateError(KindHasChild, "Commit", Key{})
	}
	if v.state == viewDestroyed {
		return newStateError(KindSealed, "Commit", Key{})
	}
	if v.updateLastModified {
		for _, s := range v.slots {
			if s.kind == slotPresent {
				s.entry.SetLastModifiedLedgerSeq(v.header.LedgerSeq)
			}
		}
	}
	v.state = viewSealed
	if err := v.parent.foldChildCommit(ctx, v); err != nil {
		return err
	}
	v.parent.childDone()
	v.state = viewDestroyed
	return nil
}

// Rollback rolls back any live child first, drops all handles, and notifies
// the parent. Nothing rolls a view back automatically: a StateView that is
// dropped without Commit or Rollback leaves its parent in HasChild (and, for
// a StoreRoot's child, leaves the store transaction open).
func (v *StateView) Rollback(ctx context.Context) error {
	if v.state == viewDestroyed {
		return nil
	}
	if v.child != nil {
		if err := v.child.Rollback(ctx); err != nil {
			return err
		}
	}
	v.slots = nil
	v.active = nil
	v.state = viewDestroyed
	v.parent.childDone()
	return nil
}

// foldChildCommit absorbs a committing child's slots into this view's own
// overlay, per the commit-folding rule in spec.md §4.1: present(e) sets
// present(e); tombstone removes the slot entirely if this view's own parent
// also lacks the key, otherwise sets a tombstone.
func (v *StateView) foldChildCommit(ctx context.Context, child *StateView) error {
	for k, s := range child.slots {
		switch s.kind {
		case slotPresent:
			v.slots[k] = &slot{kind: slotPresent, entry: s.entry}
		case slotTombstone:
			_, parentState, err := v.parent.lookup(ctx, k)
			if err != nil {
				return err
			}
			if parentState == lookupPresent {
				v.slots[k] = &slot{kind: slotTombstone}
			} else {
				delete(v.slots, k)
			}
		}
	}
	v.header = child.header
	return nil
}

// bestOfferCandidate implements the best-offer merge rule from spec.md
// §4.1: compare a locally-best candidate against the parent's best
// (excluding keys this view has overridden for the pair) using
// isBetterOffer, (price ASC, offerID ASC).
func (v *StateView) bestOfferCandidate(ctx context.Context, buying, selling Asset, exclude map[Key]struct{}) (*OfferEntry, error) {
	var localBest *OfferEntry
	parentExclude := exclude
	var overridden map[Key]struct{}
	for k, s := range v.slots {
		if k.Type != EntryTypeOffer {
			continue
		}
		if overridden == nil {
			overridden = make(map[Key]struct{})
		}
		if s.kind != slotPresent {
			overridden[k] = struct{}{}
			continue
		}
		o := s.entry.(*OfferEntry)
		if !o.BuyingAsset.Equal(buying) || !o.SellingAsset.Equal(selling) {
			continue
		}
		overridden[k] = struct{}{}
		if _, skip := exclude[k]; skip {
			continue
		}
		if localBest == nil || isBetterOffer(o, localBest) {
			localBest = o
		}
	}
	if len(overridden) > 0 {
		merged := make(map[Key]struct{}, len(exclude)+len(overridden))
		for k := range exclude {
			merged[k] = struct{}{}
		}
		for k := range overridden {
			merged[k] = struct{}{}
		}
		parentExclude = merged
	}

	parentBest, err := v.parent.bestOfferCandidate(ctx, buying, selling, parentExclude)
	if err != nil {
		return nil, err
	}
	if localBest == nil {
		return parentBest, nil
	}
	if parentBest == nil {
		return localBest, nil
	}
	if isBetterOffer(localBest, parentBest) {
		return localBest, nil
	}
	return parentBest, nil
}

// isBetterOffer reports whether a outranks b under (price ASC, offerID ASC),
// comparing prices by exact cross-multiplication, never floating point.
func isBetterOffer(a, b *OfferEntry) bool {
	if a.Price.Equal(b.Price) {
		return a.OfferID < b.OfferID
	}
	return a.Price.Less(b.Price)
}

// LoadBestOffer scans this view and its ancestors' best-offer streams,
// excluding the caller-accumulated exclude set, and opens an active handle
// on the single best still-live offer found.
func (v *StateView) LoadBestOffer(ctx context.Context, buying, selling Asset, exclude map[Key]struct{}) (*EntryView, error) {
	if err := v.requireMutable("LoadBestOffer"); err != nil {
		return nil, err
	}
	best, err := v.bestOfferCandidate(ctx, buying, selling, exclude)
	if err != nil {
		return nil, err
	}
	if best == nil {
		return nil, nil
	}
	return v.Load(ctx, best.Key())
}

// allOffers returns the union of the parent's offers with this view's local
// overrides, tombstones subtracting, per spec.md §4.1 getAllOffers.
func (v *StateView) allOffers(ctx context.Context) ([]*OfferEntry, error) {
	parentOffers, err := v.parent.allOffers(ctx)
	if err != nil {
		return nil, err
	}
	merged := make(map[Key]*OfferEntry, len(parentOffers))
	for _, o := range parentOffers {
		merged[o.Key()] = o
	}
	for k, s := range v.slots {
		if k.Type != EntryTypeOffer {
			continue
		}
		if s.kind == slotTombstone {
			delete(merged, k)
			continue
		}
		merged[k] = s.entry.(*OfferEntry)
	}
	out := make([]*OfferEntry, 0, len(merged))
	for _, o := range merged {
		out = append(out, o)
	}
	return out, nil
}

// GetAllOffers is the public entry point for allOffers, sorted
// deterministically by (price ASC, offerID ASC) for a stable snapshot.
func (v *StateView) GetAllOffers(ctx context.Context) ([]*OfferEntry, error) {
	offers, err := v.allOffers(ctx)
	if err != nil {
		return nil, err
	}
	sortOffers(offers)
	return offers, nil
}

func sortOffers(offers []*OfferEntry) {
	sort.Slice(offers, func(i, j int) bool {
		return isBetterOffer(offers[i], offers[j])
	})
}

// offersByAccountAndAsset returns the union, local overrides applied, of
// offers owned by account where either side matches asset.
func (v *StateView) offersByAccountAndAsset(ctx context.Context, account AccountID, asset Asset) ([]*OfferEntry, error) {
	parentOffers, err := v.parent.offersByAccountAndAsset(ctx, account, asset)
	if err != nil {
		return nil, err
	}
	merged := make(map[Key]*OfferEntry, len(parentOffers))
	for _, o := range parentOffers {
		merged[o.Key()] = o
	}
	for k, s := range v.slots {
		if k.Type != EntryTypeOffer {
			continue
		}
		if s.kind == slotTombstone {
			delete(merged, k)
			continue
		}
		o := s.entry.(*OfferEntry)
		if o.SellerID != account {
			delete(merged, k)
			continue
		}
		if !o.BuyingAsset.Equal(asset) && !o.SellingAsset.Equal(asset) {
			delete(merged, k)
			continue
		}
		merged[k] = o
	}
	out := make([]*OfferEntry, 0, len(merged))
	for _, o := range merged {
		if o.SellerID != account {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// GetOffersByAccountAndAsset is the public entry point for
// offersByAccountAndAsset.
func (v *StateView) GetOffersByAccountAndAsset(ctx context.Context, account AccountID, asset Asset) ([]*OfferEntry, error) {
	offers, err := v.offersByAccountAndAsset(ctx, account, asset)
	if err != nil {
		return nil, err
	}
	sortOffers(offers)
	return offers, nil
}

// inflationVoteContribution returns the (destination, votes) a present
// account entry contributes, or the zero AccountID and 0 if the entry
// doesn't qualify (spec.md §4.1, §4.7).
func inflationVoteContribution(entry LedgerEntry, state lookupState) (AccountID, int64) {
	if state != lookupPresent {
		return AccountID{}, 0
	}
	acct, ok := entry.(*AccountEntry)
	if !ok || acct.InflationDest == nil || acct.Balance < BalanceThreshold {
		return AccountID{}, 0
	}
	return *acct.InflationDest, acct.Balance
}

// inflationWinners implements the incremental algorithm from spec.md §4.1:
// ask the parent for a padded list, apply local deltas, sort, truncate.
func (v *StateView) inflationWinners(ctx context.Context, maxWinners int, minVotes int64) ([]InflationVote, error) {
	var changed []Key
	for k := range v.slots {
		if k.Type == EntryTypeAccount {
			changed = append(changed, k)
		}
	}

	deltaVotes := make(map[AccountID]int64)
	for _, k := range changed {
		beforeEntry, beforeState, err := v.parent.lookup(ctx, k)
		if err != nil {
			return nil, err
		}
		afterEntry, afterState, err := v.lookup(ctx, k)
		if err != nil {
			return nil, err
		}
		if beforeDest, beforeVotes := inflationVoteContribution(beforeEntry, beforeState); beforeVotes != 0 {
			deltaVotes[beforeDest] -= beforeVotes
		}
		if afterDest, afterVotes := inflationVoteContribution(afterEntry, afterState); afterVotes != 0 {
			deltaVotes[afterDest] += afterVotes
		}
	}

	// Guard the empty-deltaVotes case explicitly: std::max_element over an
	// empty map is undefined behavior in the source; we define
	// maxIncrease = 0 here, per the flagged ambiguity in spec.md §9.
	var maxIncrease int64
	for _, delta := range deltaVotes {
		if delta > maxIncrease {
			maxIncrease = delta
		}
	}

	paddedMax := maxWinners + len(changed)
	paddedMin := minVotes - maxIncrease
	padded, err := v.parent.inflationWinners(ctx, paddedMax, paddedMin)
	if err != nil {
		return nil, err
	}

	totals := make(map[AccountID]int64, len(padded)+len(deltaVotes))
	for _, pv := range padded {
		totals[pv.Account] = pv.Votes
	}
	for dest, delta := range deltaVotes {
		totals[dest] += delta
	}

	result := make([]InflationVote, 0, len(totals))
	for account, votes := range totals {
		if votes >= minVotes {
			result = append(result, InflationVote{Account: account, Votes: votes})
		}
	}
	sortInflationVotes(result)
	if len(result) > maxWinners {
		result = result[:maxWinners]
	}
	return result, nil
}

func sortInflationVotes(votes []InflationVote) {
	sort.Slice(votes, func(i, j int) bool {
		if votes[i].Votes != votes[j].Votes {
			return votes[i].Votes > votes[j].Votes
		}
		return accountKeyString(votes[i].Account) > accountKeyString(votes[j].Account)
	})
}

func accountKeyString(a AccountID) string {
	const hexDigits = "0123456789ABCDEF"
	out := make([]byte, len(a)*2)
	for i, b := range a {
		out[i*2] = hexDigits[b>>4]
		out[i*2+1] = hexDigits[b&0x0F]
	}
	return string(out)
}

// GetInflationWinners is the public entry point for inflationWinners.
func (v *StateView) GetInflationWinners(ctx context.Context, maxWinners int, minVotes int64) ([]InflationVote, error) {
	return v.inflationWinners(ctx, maxWinners, minVotes)
}

// GetEntries returns a read-only snapshot of every key this view's overlay
// currently touches, for inspection. Allowed even on a sealed view.
func (v *StateView) GetEntries() map[Key]LedgerEntry {
	out := make(map[Key]LedgerEntry, len(v.slots))
	for k, s := range v.slots {
		if s.kind == slotPresent {
			out[k] = s.entry
		}
	}
	return out
}

// IsSealed reports whether the view has produced a change set.
func (v *StateView) IsSealed() bool {
	return v.state == viewSealed || v.state == viewDestroyed
}
