package fees

import (
	"math/big"
	"strings"
)

// Source supplies the current service-fee price for gift creation. The quote
// token designates which asset the fee is collected in; a source returning an
// empty token disables fee collection entirely.
type Source interface {
	GasQuote() Quote
}

// Quote is a (token, per-split amount) pair describing the service fee charged
// for each claim slot of a gift.
type Quote struct {
	Token    string
	PerSplit *big.Int
}

// Zero reports whether the quote disables fee collection. A missing token or a
// non-positive per-split price both count as zero.
func (q Quote) Zero() bool {
	if strings.TrimSpace(q.Token) == "" {
		return true
	}
	return q.PerSplit == nil || q.PerSplit.Sign() <= 0
}

// Clone returns a deep copy of the quote.
func (q Quote) Clone() Quote {
	out := Quote{Token: q.Token, PerSplit: big.NewInt(0)}
	if q.PerSplit != nil {
		out.PerSplit = new(big.Int).Set(q.PerSplit)
	}
	return out
}

// Total returns the fee owed for the given number of claim slots.
func (q Quote) Total(splits uint32) *big.Int {
	if q.Zero() {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(q.PerSplit, new(big.Int).SetUint64(uint64(splits)))
}

// Snapshot freezes the source's current quote. The frozen value is persisted
// with the gift at creation time; refunds for unused splits are computed
// against it, never against a later price.
func Snapshot(src Source) Quote {
	if src == nil {
		return Quote{PerSplit: big.NewInt(0)}
	}
	q := src.GasQuote().Clone()
	if q.Zero() {
		return Quote{PerSplit: big.NewInt(0)}
	}
	q.Token = strings.ToUpper(strings.TrimSpace(q.Token))
	return q
}

// Unused returns the refundable portion of a frozen quote after claimedCount
// of splitCount slots have been consumed.
func (q Quote) Unused(splitCount, claimedCount uint32) *big.Int {
	if q.Zero() || claimedCount >= splitCount {
		return big.NewInt(0)
	}
	return q.Total(splitCount - claimedCount)
}
