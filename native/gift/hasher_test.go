package gift

import (
	"math/big"
	"testing"
)

func sampleGift() *Gift {
	return &Gift{
		Kind:       KindMulti,
		Sender:     [20]byte{0x01},
		GroupID:    42,
		Token:      "GVT",
		Amount:     big.NewInt(1000),
		Dividend:   DividendFixed,
		SplitCount: 10,
		CreatedAt:  1_700_000_000,
		ExpiresAt:  1_700_172_800,
		Skin:       "classic",
		Message:    "enjoy",
	}
}

func TestComputeIDDeterministic(t *testing.T) {
	a := ComputeID(sampleGift())
	b := ComputeID(sampleGift())
	if a != b {
		t.Fatalf("identical inputs hashed differently: %x vs %x", a, b)
	}
	if a == ([32]byte{}) {
		t.Fatal("zero identity")
	}
}

func TestComputeIDFieldSensitivity(t *testing.T) {
	base := ComputeID(sampleGift())

	mutations := map[string]func(*Gift){
		"sender":    func(g *Gift) { g.Sender = [20]byte{0x02} },
		"group":     func(g *Gift) { g.GroupID = 43 },
		"token":     func(g *Gift) { g.Token = "OTHER" },
		"amount":    func(g *Gift) { g.Amount = big.NewInt(1001) },
		"splits":    func(g *Gift) { g.SplitCount = 11 },
		"dividend":  func(g *Gift) { g.Dividend = DividendRandom },
		"createdAt": func(g *Gift) { g.CreatedAt++ },
		"skin":      func(g *Gift) { g.Skin = "festive" },
		"message":   func(g *Gift) { g.Message = "other" },
		"codeHash":  func(g *Gift) { g.CodeHash = [32]byte{0xff} },
	}
	for name, mutate := range mutations {
		g := sampleGift()
		mutate(g)
		if ComputeID(g) == base {
			t.Errorf("mutating %s did not change the identity", name)
		}
	}
}

func TestComputeIDKindsDisjoint(t *testing.T) {
	multi := sampleGift()

	single := sampleGift()
	single.Kind = KindSingle

	code := sampleGift()
	code.Kind = KindCode

	ids := map[[32]byte]Kind{}
	for _, g := range []*Gift{multi, single, code} {
		id := ComputeID(g)
		if prev, clash := ids[id]; clash {
			t.Fatalf("kinds %v and %v share identity %x", prev, g.Kind, id)
		}
		ids[id] = g.Kind
	}
}
