package state

import (
	"math/big"
	"testing"

	"giftvault/native/fees"
	"giftvault/native/gift"
)

func TestGiftRoundTrip(t *testing.T) {
	m := newTestManager(t)
	record := &gift.Gift{
		ID:         [32]byte{0x01},
		Kind:       gift.KindMulti,
		Sender:     [20]byte{0x02},
		GroupID:    7,
		Token:      "GVT",
		Amount:     big.NewInt(1000),
		Dividend:   gift.DividendRandom,
		SplitCount: 10,
		CreatedAt:  1_700_000_000,
		ExpiresAt:  1_700_172_800,
		Skin:       "classic",
		Message:    "enjoy",
	}
	if err := m.GiftPut(record); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok := m.GiftGet(record.ID)
	if !ok {
		t.Fatal("stored gift not found")
	}
	if got.Kind != record.Kind || got.GroupID != record.GroupID || got.Token != record.Token {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Amount.Cmp(record.Amount) != 0 {
		t.Fatalf("amount = %s, want %s", got.Amount, record.Amount)
	}
	if got.CreatedAt != record.CreatedAt || got.ExpiresAt != record.ExpiresAt {
		t.Fatalf("timestamps = (%d, %d), want (%d, %d)", got.CreatedAt, got.ExpiresAt, record.CreatedAt, record.ExpiresAt)
	}
	if got.Dividend != gift.DividendRandom || got.Skin != "classic" || got.Message != "enjoy" {
		t.Fatalf("metadata mismatch: %+v", got)
	}

	// returned record must be a copy, not a view into the store
	got.Amount.SetInt64(5)
	again, _ := m.GiftGet(record.ID)
	if again.Amount.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("caller mutation leaked into the store: %s", again.Amount)
	}

	if _, ok := m.GiftGet([32]byte{0xff}); ok {
		t.Fatal("missing id reported as found")
	}
}

func TestClaimStateRoundTrip(t *testing.T) {
	m := newTestManager(t)
	id := [32]byte{0x03}

	if _, ok := m.ClaimStateGet(id); ok {
		t.Fatal("claim state present before write")
	}
	st := &gift.ClaimState{
		Status:        gift.StatusRefunded,
		ClaimedCount:  3,
		ClaimedAmount: big.NewInt(30),
	}
	if err := m.ClaimStatePut(id, st); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok := m.ClaimStateGet(id)
	if !ok {
		t.Fatal("claim state not found")
	}
	if got.Status != gift.StatusRefunded || got.ClaimedCount != 3 || got.ClaimedAmount.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	if err := m.ClaimStatePut(id, &gift.ClaimState{Status: gift.Status(99)}); err == nil {
		t.Fatal("invalid status accepted")
	}
}

func TestClaimInfoKeyedPerRecipient(t *testing.T) {
	m := newTestManager(t)
	id := [32]byte{0x04}

	if err := m.ClaimInfoPut(id, 1, &gift.ClaimInfo{Amount: big.NewInt(10), ClaimedAt: 100}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := m.ClaimInfoPut(id, 2, &gift.ClaimInfo{Amount: big.NewInt(20), ClaimedAt: 200}); err != nil {
		t.Fatalf("put second: %v", err)
	}

	first, ok := m.ClaimInfoGet(id, 1)
	if !ok || first.Amount.Cmp(big.NewInt(10)) != 0 || first.ClaimedAt != 100 {
		t.Fatalf("recipient 1 info = %+v ok=%v", first, ok)
	}
	second, ok := m.ClaimInfoGet(id, 2)
	if !ok || second.Amount.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("recipient 2 info = %+v ok=%v", second, ok)
	}
	if _, ok := m.ClaimInfoGet(id, 3); ok {
		t.Fatal("unknown recipient reported as claimed")
	}
	if _, ok := m.ClaimInfoGet([32]byte{0x05}, 1); ok {
		t.Fatal("claim info leaked across gift ids")
	}
}

func TestGasFeeRoundTrip(t *testing.T) {
	m := newTestManager(t)
	id := [32]byte{0x06}

	if _, ok := m.GasFeeGet(id); ok {
		t.Fatal("fee present before write")
	}
	if err := m.GasFeePut(id, fees.Quote{Token: "FEE", PerSplit: big.NewInt(2)}); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok := m.GasFeeGet(id)
	if !ok || got.Token != "FEE" || got.PerSplit.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("round trip mismatch: %+v ok=%v", got, ok)
	}
}

func TestCodeSlotHistoryAppendOnly(t *testing.T) {
	m := newTestManager(t)
	codeHash := [32]byte{0x07}

	history, err := m.CodeSlotHistory(codeHash)
	if err != nil || len(history) != 0 {
		t.Fatalf("fresh history = %v err=%v", history, err)
	}

	first := [32]byte{0x11}
	second := [32]byte{0x22}
	if err := m.CodeSlotAppend(codeHash, first); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := m.CodeSlotAppend(codeHash, second); err != nil {
		t.Fatalf("append second: %v", err)
	}
	history, err = m.CodeSlotHistory(codeHash)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0] != first || history[1] != second {
		t.Fatalf("history = %x, want [%x %x]", history, first, second)
	}
}

func TestVaultAddresses(t *testing.T) {
	m := newTestManager(t)

	a, err := m.GiftVaultAddress("gvt")
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	b, err := m.GiftVaultAddress("GVT")
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	if a != b {
		t.Fatal("vault derivation is not case-insensitive")
	}
	other, _ := m.GiftVaultAddress("ABC")
	if a == other {
		t.Fatal("distinct tokens share a vault")
	}
	feeVault, _ := m.FeeVaultAddress("GVT")
	if a == feeVault {
		t.Fatal("principal and fee vaults collide")
	}
	if _, err := m.GiftVaultAddress(" "); err == nil {
		t.Fatal("empty token accepted")
	}
}

func TestGasQuoteStore(t *testing.T) {
	m := newTestManager(t)

	if q := m.GasQuote(); !q.Zero() {
		t.Fatalf("unset quote = %+v, want zero", q)
	}
	if err := m.SetGasQuote("FEE", big.NewInt(3)); err == nil {
		t.Fatal("quote for unregistered token accepted")
	}
	if err := m.RegisterToken("FEE", "Fee Token", 18); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.SetGasQuote("fee", big.NewInt(3)); err != nil {
		t.Fatalf("set quote: %v", err)
	}
	q := m.GasQuote()
	if q.Token != "FEE" || q.PerSplit.Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("quote = %+v", q)
	}

	// clearing the token disables collection again
	if err := m.SetGasQuote("", nil); err != nil {
		t.Fatalf("clear quote: %v", err)
	}
	if q := m.GasQuote(); !q.Zero() {
		t.Fatalf("cleared quote = %+v, want zero", q)
	}
}
