package gift

import (
	"math/big"

	"giftvault/core/events"
	"giftvault/native/fees"
)

// Refund returns the unclaimed remainder to the sender once the grace window
// has fully elapsed, plus the unused portion of the frozen gas fee. It is a
// one-time, all-remaining operation; there is no partial refund.
func (e *Engine) Refund(caller [20]byte, id [32]byte) error {
	if err := e.guardModule(); err != nil {
		return err
	}
	release, err := e.guard.Acquire(id)
	if err != nil {
		return err
	}
	defer release()
	g, err := e.loadGift(id)
	if err != nil {
		return err
	}
	if caller != g.Sender {
		return ErrRefundNotSender
	}
	if e.now() <= g.GraceDeadline() {
		return ErrRefundTooEarly
	}
	st, err := e.loadClaimState(id)
	if err != nil {
		return err
	}
	if st.ClaimedAmount.Cmp(g.Amount) >= 0 {
		return ErrAlreadyClaimed
	}
	if st.Status == StatusRefunded {
		return ErrAlreadyRefunded
	}

	// Transfers settle before the status write so a failed payout leaves
	// the gift Active and the refund retryable.
	remainder := st.Remaining(g)
	if err := e.payout(g.Token, g.Sender, remainder); err != nil {
		return err
	}
	frozen, ok := e.state.GasFeeGet(id)
	if !ok {
		frozen = fees.Quote{PerSplit: big.NewInt(0)}
	}
	feeRefund := frozen.Unused(g.SplitCount, st.ClaimedCount)
	if err := e.feePayout(frozen.Token, g.Sender, feeRefund); err != nil {
		return err
	}
	st.Status = StatusRefunded
	if err := e.state.ClaimStatePut(id, st); err != nil {
		return err
	}
	e.emit(events.GiftRefunded{
		ID:        id,
		Sender:    g.Sender,
		Token:     g.Token,
		Amount:    remainder,
		FeeToken:  frozen.Token,
		FeeRefund: feeRefund,
	}.Event())
	return nil
}
