package gift

import (
	"math/big"

	"giftvault/core/events"
)

// ClaimItem is one claim submitted by the manager, individually or as part of
// a batch. Amount is ignored for single gifts, which always pay the full
// principal, and must be positive for split gifts.
type ClaimItem struct {
	GiftID    [32]byte
	Recipient uint64
	Payout    [20]byte
	Amount    *big.Int
}

type claimKey struct {
	id        [32]byte
	recipient uint64
}

// claimPlan is a fully validated claim waiting to be applied. After planning,
// the only failure mode left is a storage fault.
type claimPlan struct {
	gift  *Gift
	item  ClaimItem
	pay   *big.Int
	state *ClaimState
	now   int64
}

// validateClaim runs the variant-specific precondition chain against the
// supplied (possibly projected) claim state and returns the payout amount.
func validateClaim(g *Gift, st *ClaimState, hasInfo bool, now int64, item ClaimItem) (*big.Int, error) {
	if g.Kind == KindSingle {
		if st.ClaimedCount > 0 {
			return nil, ErrAlreadyClaimed
		}
		if now > g.GraceDeadline() {
			return nil, ErrGiftExpired
		}
		return cloneBigInt(g.Amount), nil
	}
	if now > g.GraceDeadline() {
		return nil, ErrGiftExpired
	}
	if item.Amount == nil || item.Amount.Sign() <= 0 {
		return nil, ErrAmountBelowMinimum
	}
	total := new(big.Int).Add(st.ClaimedAmount, item.Amount)
	if total.Cmp(g.Amount) > 0 {
		return nil, ErrClaimAmountExceeded
	}
	if st.ClaimedCount+1 > g.SplitCount {
		return nil, ErrClaimCountExceeded
	}
	if hasInfo {
		return nil, ErrAlreadyClaimed
	}
	return new(big.Int).Set(item.Amount), nil
}

func (e *Engine) planClaim(item ClaimItem, st *ClaimState, hasInfo func(claimKey) bool, now int64) (*claimPlan, error) {
	g, err := e.loadGift(item.GiftID)
	if err != nil {
		return nil, err
	}
	pay, err := validateClaim(g, st, hasInfo(claimKey{item.GiftID, item.Recipient}), now, item)
	if err != nil {
		return nil, err
	}
	return &claimPlan{gift: g, item: item, pay: pay, state: st, now: now}, nil
}

// applyClaim commits a validated plan: the payout transfer first, then the
// claim-info record and the bumped running totals, then the claim event.
// A failed transfer leaves no record behind, so the claim stays retryable.
func (e *Engine) applyClaim(p *claimPlan) error {
	if err := e.payout(p.gift.Token, p.item.Payout, p.pay); err != nil {
		return err
	}
	info := &ClaimInfo{Amount: cloneBigInt(p.pay), ClaimedAt: p.now}
	if err := e.state.ClaimInfoPut(p.gift.ID, p.item.Recipient, info); err != nil {
		return err
	}
	p.state.ClaimedCount++
	p.state.ClaimedAmount = new(big.Int).Add(p.state.ClaimedAmount, p.pay)
	if err := e.state.ClaimStatePut(p.gift.ID, p.state); err != nil {
		return err
	}
	e.emit(events.GiftClaimed{
		ID:            p.gift.ID,
		Recipient:     p.item.Recipient,
		Payout:        p.item.Payout,
		Token:         p.gift.Token,
		Amount:        cloneBigInt(p.pay),
		ClaimedCount:  p.state.ClaimedCount,
		ClaimedAmount: cloneBigInt(p.state.ClaimedAmount),
	}.Event())
	return nil
}

// Claim settles one claim on behalf of a recipient. Only the manager role may
// call it; the recipient never calls directly.
func (e *Engine) Claim(caller [20]byte, item ClaimItem) error {
	if err := e.guardModule(); err != nil {
		return err
	}
	if err := e.requireManager(caller); err != nil {
		return err
	}
	release, err := e.guard.Acquire(item.GiftID)
	if err != nil {
		return err
	}
	defer release()
	st, err := e.loadClaimState(item.GiftID)
	if err != nil {
		return err
	}
	stored := func(k claimKey) bool {
		_, ok := e.state.ClaimInfoGet(k.id, k.recipient)
		return ok
	}
	plan, err := e.planClaim(item, st, stored, e.now())
	if err != nil {
		return err
	}
	return e.applyClaim(plan)
}

// ClaimByCode resolves the current slot of the code hash and settles the claim
// against it.
func (e *Engine) ClaimByCode(caller [20]byte, codeHash [32]byte, recipient uint64, payout [20]byte, amount *big.Int) error {
	id, err := e.CodeCurrent(codeHash)
	if err != nil {
		return err
	}
	return e.Claim(caller, ClaimItem{GiftID: id, Recipient: recipient, Payout: payout, Amount: amount})
}

// BatchClaim validates every item against a projection of the resulting state
// and only then applies them, so one failing item aborts the whole batch with
// no partial ledger change. The manager role is required for every variant,
// batch included.
func (e *Engine) BatchClaim(caller [20]byte, items []ClaimItem) error {
	if err := e.guardModule(); err != nil {
		return err
	}
	if err := e.requireManager(caller); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	releases := make([]func(), 0, len(items))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	acquired := make(map[[32]byte]bool, len(items))
	for _, item := range items {
		if acquired[item.GiftID] {
			continue
		}
		release, err := e.guard.Acquire(item.GiftID)
		if err != nil {
			releaseAll()
			return err
		}
		releases = append(releases, release)
		acquired[item.GiftID] = true
	}
	defer releaseAll()

	now := e.now()
	states := make(map[[32]byte]*ClaimState, len(items))
	planned := make(map[claimKey]bool, len(items))
	hasInfo := func(k claimKey) bool {
		if planned[k] {
			return true
		}
		_, ok := e.state.ClaimInfoGet(k.id, k.recipient)
		return ok
	}
	plans := make([]*claimPlan, 0, len(items))
	for _, item := range items {
		st, ok := states[item.GiftID]
		if !ok {
			loaded, err := e.loadClaimState(item.GiftID)
			if err != nil {
				return err
			}
			st = loaded.Clone()
			states[item.GiftID] = st
		}
		plan, err := e.planClaim(item, st, hasInfo, now)
		if err != nil {
			return err
		}
		plans = append(plans, plan)
		planned[claimKey{item.GiftID, item.Recipient}] = true
		st.ClaimedCount++
		st.ClaimedAmount = new(big.Int).Add(st.ClaimedAmount, plan.pay)
	}
	for _, plan := range plans {
		// The projected state was mutated during planning for subsequent
		// items; re-derive the per-plan totals from the stored state so
		// each apply bumps by exactly one claim.
		stored, err := e.loadClaimState(plan.gift.ID)
		if err != nil {
			return err
		}
		plan.state = stored
		if err := e.applyClaim(plan); err != nil {
			return err
		}
	}
	return nil
}
