package events

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"giftvault/core/types"
	"giftvault/crypto"
)

const (
	TypeGiftCreated  = "gift.created"
	TypeGiftClaimed  = "gift.claimed"
	TypeGiftRefunded = "gift.refunded"
)

// GiftCreated is emitted once per gift after the principal deposit and the
// gas-fee collection have both settled.
type GiftCreated struct {
	ID          [32]byte
	Kind        string
	Sender      [20]byte
	Token       string
	Amount      *big.Int
	SplitCount  uint32
	CreatedAt   int64
	ExpiresAt   int64
	FeeToken    string
	FeePerSplit *big.Int
}

func (GiftCreated) EventType() string { return TypeGiftCreated }

func (e GiftCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeGiftCreated,
		Attributes: map[string]string{
			"id":          hex.EncodeToString(e.ID[:]),
			"kind":        e.Kind,
			"sender":      crypto.NewAddress(crypto.GVPrefix, e.Sender[:]).String(),
			"token":       e.Token,
			"amount":      formatAmount(e.Amount),
			"splitCount":  strconv.FormatUint(uint64(e.SplitCount), 10),
			"createdAt":   strconv.FormatInt(e.CreatedAt, 10),
			"expiresAt":   strconv.FormatInt(e.ExpiresAt, 10),
			"feeToken":    e.FeeToken,
			"feePerSplit": formatAmount(e.FeePerSplit),
		},
	}
}

// GiftClaimed is emitted for every recorded claim, including each item of a
// batch claim.
type GiftClaimed struct {
	ID            [32]byte
	Recipient     uint64
	Payout        [20]byte
	Token         string
	Amount        *big.Int
	ClaimedCount  uint32
	ClaimedAmount *big.Int
}

func (GiftClaimed) EventType() string { return TypeGiftClaimed }

func (e GiftClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeGiftClaimed,
		Attributes: map[string]string{
			"id":            hex.EncodeToString(e.ID[:]),
			"recipient":     strconv.FormatUint(e.Recipient, 10),
			"payout":        crypto.NewAddress(crypto.GVPrefix, e.Payout[:]).String(),
			"token":         e.Token,
			"amount":        formatAmount(e.Amount),
			"claimedCount":  strconv.FormatUint(uint64(e.ClaimedCount), 10),
			"claimedAmount": formatAmount(e.ClaimedAmount),
		},
	}
}

// GiftRefunded is emitted when the sender reclaims the unclaimed remainder.
// FeeRefund carries the unused portion of the frozen gas fee returned in the
// same transition.
type GiftRefunded struct {
	ID        [32]byte
	Sender    [20]byte
	Token     string
	Amount    *big.Int
	FeeToken  string
	FeeRefund *big.Int
}

func (GiftRefunded) EventType() string { return TypeGiftRefunded }

func (e GiftRefunded) Event() *types.Event {
	return &types.Event{
		Type: TypeGiftRefunded,
		Attributes: map[string]string{
			"id":        hex.EncodeToString(e.ID[:]),
			"sender":    crypto.NewAddress(crypto.GVPrefix, e.Sender[:]).String(),
			"token":     e.Token,
			"amount":    formatAmount(e.Amount),
			"feeToken":  e.FeeToken,
			"feeRefund": formatAmount(e.FeeRefund),
		},
	}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
