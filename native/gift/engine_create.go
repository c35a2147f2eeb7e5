package gift

import (
	"errors"
	"fmt"
	"math/big"

	"giftvault/core/events"
	"giftvault/native/fees"
)

func (e *Engine) validateCommon(token string, amount *big.Int, skin, message string) (string, error) {
	if e == nil || e.state == nil {
		return "", errNilState
	}
	normalized := normalizeToken(token)
	if normalized == "" || !e.state.TokenExists(normalized) {
		return "", ErrInvalidToken
	}
	if amount == nil || amount.Cmp(big.NewInt(MinGiftAmount)) < 0 {
		return "", ErrAmountBelowMinimum
	}
	if len(skin) > MaxSkinLength {
		return "", ErrSkinTooLong
	}
	if len(message) > MaxMessageLength {
		return "", ErrMessageTooLong
	}
	return normalized, nil
}

func validateSplit(amount *big.Int, dividend DividendType, splitCount uint32) error {
	if !dividend.Valid() {
		return fmt.Errorf("gift: unknown dividend type %d", dividend)
	}
	if splitCount < MinSplitCount || splitCount > MaxSplitCount {
		return ErrSplitCountOutOfRange
	}
	splits := new(big.Int).SetUint64(uint64(splitCount))
	quo, rem := new(big.Int).QuoRem(amount, splits, new(big.Int))
	if rem.Sign() != 0 || quo.Cmp(big.NewInt(MinGiftAmount)) < 0 {
		return ErrAmountNotDivisible
	}
	return nil
}

// CreateSingle escrows a one-shot gift for a single recipient tag.
func (e *Engine) CreateSingle(sender [20]byte, recipient uint64, token string, amount *big.Int, skin, message string) (*Gift, error) {
	if err := e.guardModule(); err != nil {
		return nil, err
	}
	normalized, err := e.validateCommon(token, amount, skin, message)
	if err != nil {
		return nil, err
	}
	now := e.now()
	g := &Gift{
		Kind:       KindSingle,
		Sender:     sender,
		Recipient:  recipient,
		Token:      normalized,
		Amount:     cloneBigInt(amount),
		Dividend:   DividendFixed,
		SplitCount: 1,
		CreatedAt:  now,
		ExpiresAt:  now + ValiditySeconds,
		Skin:       skin,
		Message:    message,
	}
	return e.create(g)
}

// CreateMulti escrows a fixed-group gift split across splitCount claims.
func (e *Engine) CreateMulti(sender [20]byte, groupID uint64, token string, amount *big.Int, dividend DividendType, splitCount uint32, skin, message string) (*Gift, error) {
	if err := e.guardModule(); err != nil {
		return nil, err
	}
	normalized, err := e.validateCommon(token, amount, skin, message)
	if err != nil {
		return nil, err
	}
	if err := validateSplit(amount, dividend, splitCount); err != nil {
		return nil, err
	}
	now := e.now()
	g := &Gift{
		Kind:       KindMulti,
		Sender:     sender,
		GroupID:    groupID,
		Token:      normalized,
		Amount:     cloneBigInt(amount),
		Dividend:   dividend,
		SplitCount: splitCount,
		CreatedAt:  now,
		ExpiresAt:  now + ValiditySeconds,
		Skin:       skin,
		Message:    message,
	}
	return e.create(g)
}

// CreateCode escrows a code-redeemable gift under the supplied code hash. The
// hash is a reusable namespace: creation fails while the current slot's gift
// has not fully expired.
func (e *Engine) CreateCode(sender [20]byte, codeHash [32]byte, token string, amount *big.Int, dividend DividendType, splitCount uint32, skin, message string) (*Gift, error) {
	if err := e.guardModule(); err != nil {
		return nil, err
	}
	if codeHash == ([32]byte{}) {
		return nil, fmt.Errorf("gift: empty code hash")
	}
	normalized, err := e.validateCommon(token, amount, skin, message)
	if err != nil {
		return nil, err
	}
	if err := validateSplit(amount, dividend, splitCount); err != nil {
		return nil, err
	}
	releaseSlot, err := e.guard.Acquire(codeHash)
	if err != nil {
		return nil, err
	}
	defer releaseSlot()
	now := e.now()
	available, err := e.codeAvailable(codeHash, now)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, ErrCodeHashInUse
	}
	g := &Gift{
		Kind:       KindCode,
		Sender:     sender,
		CodeHash:   codeHash,
		Token:      normalized,
		Amount:     cloneBigInt(amount),
		Dividend:   dividend,
		SplitCount: splitCount,
		CreatedAt:  now,
		ExpiresAt:  now + ValiditySeconds,
		Skin:       skin,
		Message:    message,
	}
	created, err := e.create(g)
	if err != nil {
		return nil, err
	}
	if err := e.state.CodeSlotAppend(codeHash, created.ID); err != nil {
		return nil, err
	}
	return created, nil
}

// create runs the variant-independent tail of gift creation: identity
// derivation, duplicate rejection, fee snapshot and collection, the verified
// principal deposit, and the ledger writes.
func (e *Engine) create(g *Gift) (*Gift, error) {
	g.ID = ComputeID(g)
	release, err := e.guard.Acquire(g.ID)
	if err != nil {
		return nil, err
	}
	defer release()
	if _, exists := e.state.GiftGet(g.ID); exists {
		return nil, ErrGiftIDInUse
	}

	quote := fees.Snapshot(e.feeSource)
	feeTotal := quote.Total(g.SplitCount)
	if err := e.checkFunds(g.Sender, g.Token, g.Amount, quote.Token, feeTotal); err != nil {
		return nil, err
	}
	if feeTotal.Sign() > 0 {
		feeVault, err := e.state.FeeVaultAddress(quote.Token)
		if err != nil {
			return nil, err
		}
		if err := e.deposit(g.Sender, feeVault, quote.Token, feeTotal); err != nil {
			return nil, err
		}
	}
	giftVault, err := e.state.GiftVaultAddress(g.Token)
	if err != nil {
		return nil, e.refundFee(quote, feeTotal, g.Sender, err)
	}
	if err := e.deposit(g.Sender, giftVault, g.Token, g.Amount); err != nil {
		return nil, e.refundFee(quote, feeTotal, g.Sender, err)
	}

	if err := e.state.GiftPut(g); err != nil {
		return nil, err
	}
	if err := e.state.ClaimStatePut(g.ID, &ClaimState{ClaimedAmount: big.NewInt(0)}); err != nil {
		return nil, err
	}
	if err := e.state.GasFeePut(g.ID, quote); err != nil {
		return nil, err
	}
	e.emit(events.GiftCreated{
		ID:          g.ID,
		Kind:        g.Kind.String(),
		Sender:      g.Sender,
		Token:       g.Token,
		Amount:      cloneBigInt(g.Amount),
		SplitCount:  g.SplitCount,
		CreatedAt:   g.CreatedAt,
		ExpiresAt:   g.ExpiresAt,
		FeeToken:    quote.Token,
		FeePerSplit: cloneBigInt(quote.PerSplit),
	}.Event())
	return g.Clone(), nil
}

// refundFee returns an already-collected service fee to the sender after a
// failed principal deposit, then surfaces the deposit error. A failure of the
// fee return itself is joined onto it.
func (e *Engine) refundFee(quote fees.Quote, feeTotal *big.Int, sender [20]byte, cause error) error {
	if feeTotal.Sign() <= 0 {
		return cause
	}
	if err := e.feePayout(quote.Token, sender, feeTotal); err != nil {
		return errors.Join(cause, fmt.Errorf("gift: return fee deposit: %w", err))
	}
	return cause
}

// checkFunds verifies the sender can cover both the principal and the service
// fee before either transfer runs, so the two deposits settle or fail
// together.
func (e *Engine) checkFunds(sender [20]byte, token string, amount *big.Int, feeToken string, feeTotal *big.Int) error {
	required := map[string]*big.Int{token: cloneBigInt(amount)}
	if feeTotal.Sign() > 0 {
		if existing, ok := required[feeToken]; ok {
			existing.Add(existing, feeTotal)
		} else {
			required[feeToken] = cloneBigInt(feeTotal)
		}
	}
	for tok, need := range required {
		balance, err := e.state.Balance(sender[:], tok)
		if err != nil {
			return err
		}
		if balance.Cmp(need) < 0 {
			return ErrTransferFailed
		}
	}
	return nil
}
