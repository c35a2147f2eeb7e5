package gift

import (
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// hashInput fixes the canonical field order of the identity hash. RLP gives a
// canonical byte encoding per field, keccak256 compresses the whole tuple.
// Timestamps are encoded unsigned; the engine never produces negative ones.
type hashInput struct {
	Kind       uint8
	Sender     [20]byte
	Recipient  uint64
	GroupID    uint64
	Token      string
	Amount     *big.Int
	Dividend   uint8
	SplitCount uint32
	CreatedAt  uint64
	ExpiresAt  uint64
	Skin       string
	Message    string
	CodeHash   [32]byte
}

// ComputeID derives the content address of a gift definition. It is pure and
// deterministic: identical definitions (including CreatedAt) yield identical
// ids, which is what makes duplicate creation detectable.
//
// Kind participates in the hash so the three variants occupy disjoint id
// spaces.
func ComputeID(g *Gift) [32]byte {
	amount := big.NewInt(0)
	if g.Amount != nil {
		amount = g.Amount
	}
	input := hashInput{
		Kind:       uint8(g.Kind),
		Sender:     g.Sender,
		Recipient:  g.Recipient,
		GroupID:    g.GroupID,
		Token:      g.Token,
		Amount:     amount,
		Dividend:   uint8(g.Dividend),
		SplitCount: g.SplitCount,
		CreatedAt:  uint64(g.CreatedAt),
		ExpiresAt:  uint64(g.ExpiresAt),
		Skin:       g.Skin,
		Message:    g.Message,
		CodeHash:   g.CodeHash,
	}
	encoded, err := rlp.EncodeToBytes(&input)
	if err != nil {
		// hashInput contains no types rlp can reject
		panic(err)
	}
	var id [32]byte
	copy(id[:], ethcrypto.Keccak256(encoded))
	return id
}
