package gift

import "math/big"

// The code-slot registry maps a code hash to the ordered history of gift ids
// ever created under it. History is append-only: slots are never removed, the
// "current" slot is simply the last element. Because gift identity hashes all
// fields including the code hash, two gifts under the same hash at different
// creation times receive distinct ids, which is why the history is a sequence
// and not a single pointer.

// CodeHistory returns every gift id ever issued under the code hash, oldest
// first.
func (e *Engine) CodeHistory(codeHash [32]byte) ([][32]byte, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.CodeSlotHistory(codeHash)
}

// CodeCurrent returns the most recent slot's gift id. Claim and refund callers
// resolve through this to reach the live ledger entry.
func (e *Engine) CodeCurrent(codeHash [32]byte) ([32]byte, error) {
	history, err := e.CodeHistory(codeHash)
	if err != nil {
		return [32]byte{}, err
	}
	if len(history) == 0 {
		return [32]byte{}, ErrNotFound
	}
	return history[len(history)-1], nil
}

// CodeAvailable reports whether a new gift may be created under the code
// hash: either no slot exists, or the current slot's gift has passed its
// grace deadline.
func (e *Engine) CodeAvailable(codeHash [32]byte) (bool, error) {
	return e.codeAvailable(codeHash, e.now())
}

func (e *Engine) codeAvailable(codeHash [32]byte, now int64) (bool, error) {
	history, err := e.state.CodeSlotHistory(codeHash)
	if err != nil {
		return false, err
	}
	if len(history) == 0 {
		return true, nil
	}
	current, ok := e.state.GiftGet(history[len(history)-1])
	if !ok {
		// a dangling slot entry cannot block the namespace
		return true, nil
	}
	return current.GraceDeadline() < now, nil
}

// Gift returns a copy of the stored gift definition.
func (e *Engine) Gift(id [32]byte) (*Gift, error) {
	g, err := e.loadGift(id)
	if err != nil {
		return nil, err
	}
	return g.Clone(), nil
}

// ClaimStateOf returns a copy of the gift's running claim totals and status.
func (e *Engine) ClaimStateOf(id [32]byte) (*ClaimState, error) {
	if _, err := e.loadGift(id); err != nil {
		return nil, err
	}
	st, err := e.loadClaimState(id)
	if err != nil {
		return nil, err
	}
	return st.Clone(), nil
}

// ClaimInfoOf returns the recorded claim for the recipient tag, if any.
func (e *Engine) ClaimInfoOf(id [32]byte, recipient uint64) (*ClaimInfo, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	if _, err := e.loadGift(id); err != nil {
		return nil, false, err
	}
	info, ok := e.state.ClaimInfoGet(id, recipient)
	if !ok {
		return nil, false, nil
	}
	return info.Clone(), true, nil
}

// GasFeeOf returns the frozen fee snapshot persisted at creation.
func (e *Engine) GasFeeOf(id [32]byte) (string, *big.Int, error) {
	if e == nil || e.state == nil {
		return "", nil, errNilState
	}
	if _, err := e.loadGift(id); err != nil {
		return "", nil, err
	}
	frozen, ok := e.state.GasFeeGet(id)
	if !ok || frozen.PerSplit == nil {
		return "", big.NewInt(0), nil
	}
	return frozen.Token, new(big.Int).Set(frozen.PerSplit), nil
}
