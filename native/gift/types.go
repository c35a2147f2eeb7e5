package gift

import (
	"math/big"
)

// Kind distinguishes the three gift variants sharing the lifecycle engine.
type Kind uint8

const (
	// KindSingle is a one-shot gift for a single pre-designated recipient.
	KindSingle Kind = iota
	// KindMulti splits the principal across a pre-registered recipient group.
	KindMulti
	// KindCode splits the principal across recipients who unlock it with a
	// shared secret hash instead of a group registration.
	KindCode
)

func (k Kind) Valid() bool {
	switch k {
	case KindSingle, KindMulti, KindCode:
		return true
	default:
		return false
	}
}

func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindMulti:
		return "multi"
	case KindCode:
		return "code"
	default:
		return "unknown"
	}
}

// DividendType selects how a multi gift's principal is split across claims.
type DividendType uint8

const (
	// DividendFixed divides the principal into equal caller-supplied claims.
	DividendFixed DividendType = iota
	// DividendRandom is accepted and persisted but currently distributes
	// exactly like DividendFixed. No random-split algorithm is specified.
	DividendRandom
)

func (d DividendType) Valid() bool {
	return d == DividendFixed || d == DividendRandom
}

func (d DividendType) String() string {
	switch d {
	case DividendFixed:
		return "fixed"
	case DividendRandom:
		return "random"
	default:
		return "unknown"
	}
}

// Status tracks the refund side of the claim state machine. Active is the zero
// value; the stored status never changes on claims, only on refund.
type Status uint8

const (
	StatusActive Status = iota
	StatusRefunded
)

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusRefunded
}

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusRefunded:
		return "refunded"
	default:
		return "unknown"
	}
}

// Gift captures the immutable definition of an escrowed gift. The identifier
// is the keccak256 hash of every immutable field in canonical order, so two
// byte-identical definitions collide and the second create is rejected.
type Gift struct {
	ID         [32]byte
	Kind       Kind
	Sender     [20]byte
	Recipient  uint64 // opaque recipient tag, single variant only
	GroupID    uint64 // multi variant; zero for the code variant
	CodeHash   [32]byte
	Token      string
	Amount     *big.Int
	Dividend   DividendType
	SplitCount uint32
	CreatedAt  int64
	ExpiresAt  int64
	Skin       string
	Message    string
}

// Clone returns a deep copy so callers can mutate the copy without affecting
// the stored instance.
func (g *Gift) Clone() *Gift {
	if g == nil {
		return nil
	}
	clone := *g
	if g.Amount != nil {
		clone.Amount = new(big.Int).Set(g.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// GraceDeadline is the instant after which claims stop and refunds start.
// Claims remain valid at the deadline exactly; refunds open one step past it.
func (g *Gift) GraceDeadline() int64 {
	return g.ExpiresAt + GraceSeconds
}

// ClaimInfo records a single recipient's settled claim. Set at most once per
// recipient tag and never modified afterwards.
type ClaimInfo struct {
	Amount    *big.Int
	ClaimedAt int64
}

func (c *ClaimInfo) Clone() *ClaimInfo {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Amount != nil {
		clone.Amount = new(big.Int).Set(c.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// ClaimState carries the mutable side of a gift: the terminal refund flag and
// the running claim totals. Totals only grow; Active -> Refunded is one-way.
type ClaimState struct {
	Status        Status
	ClaimedCount  uint32
	ClaimedAmount *big.Int
}

func (s *ClaimState) Clone() *ClaimState {
	if s == nil {
		return nil
	}
	clone := *s
	if s.ClaimedAmount != nil {
		clone.ClaimedAmount = new(big.Int).Set(s.ClaimedAmount)
	} else {
		clone.ClaimedAmount = big.NewInt(0)
	}
	return &clone
}

// Remaining returns the unclaimed principal of the gift.
func (s *ClaimState) Remaining(g *Gift) *big.Int {
	amount := big.NewInt(0)
	if g != nil && g.Amount != nil {
		amount = new(big.Int).Set(g.Amount)
	}
	if s == nil || s.ClaimedAmount == nil {
		return amount
	}
	return amount.Sub(amount, s.ClaimedAmount)
}
