package gift_test

import (
	"errors"
	"math/big"
	"testing"

	"giftvault/core/state"
	"giftvault/native/common"
	"giftvault/native/gift"
	"giftvault/storage"
)

const testToken = "GVT"

var (
	sender  = addr(0x01)
	manager = addr(0x02)
	admin   = addr(0x03)
	alice   = addr(0x0a)
	bob     = addr(0x0b)
)

func addr(b byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = b
	}
	return out
}

type fixture struct {
	t       *testing.T
	manager *state.Manager
	engine  *gift.Engine
	now     int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := state.NewManager(storage.NewMemDB())
	if err := st.RegisterToken(testToken, "Gift Voucher Token", 18); err != nil {
		t.Fatalf("register token: %v", err)
	}
	if err := st.SetRole(gift.RoleManager, manager[:]); err != nil {
		t.Fatalf("grant manager: %v", err)
	}
	if err := st.SetRole(gift.RoleAdmin, admin[:]); err != nil {
		t.Fatalf("grant admin: %v", err)
	}
	if err := st.SetBalance(sender[:], testToken, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("fund sender: %v", err)
	}

	f := &fixture{t: t, manager: st, now: 1_700_000_000}
	engine := gift.NewEngine()
	engine.SetState(st)
	engine.SetPauses(st)
	engine.SetNowFunc(func() int64 { return f.now })
	f.engine = engine
	return f
}

// enableFee registers a fee token and points the engine at the manager's
// stored quote.
func (f *fixture) enableFee(token string, perSplit int64) {
	f.t.Helper()
	if !f.manager.TokenExists(token) {
		if err := f.manager.RegisterToken(token, token, 18); err != nil {
			f.t.Fatalf("register fee token: %v", err)
		}
	}
	if err := f.manager.SetGasQuote(token, big.NewInt(perSplit)); err != nil {
		f.t.Fatalf("set gas quote: %v", err)
	}
	if err := f.manager.SetBalance(sender[:], token, big.NewInt(1_000_000)); err != nil {
		f.t.Fatalf("fund sender fee balance: %v", err)
	}
	f.engine.SetFeeSource(f.manager)
}

func (f *fixture) balance(a [20]byte, token string) *big.Int {
	f.t.Helper()
	b, err := f.manager.Balance(a[:], token)
	if err != nil {
		f.t.Fatalf("balance: %v", err)
	}
	return b
}

func (f *fixture) vaultBalance(token string) *big.Int {
	f.t.Helper()
	vault, err := f.manager.GiftVaultAddress(token)
	if err != nil {
		f.t.Fatalf("vault address: %v", err)
	}
	return f.balance(vault, token)
}

func TestCreateSingleEscrowsPrincipal(t *testing.T) {
	f := newFixture(t)
	g, err := f.engine.CreateSingle(sender, 7, testToken, big.NewInt(100), "classic", "happy birthday")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if g.Kind != gift.KindSingle || g.SplitCount != 1 {
		t.Fatalf("unexpected gift shape: kind=%v splits=%d", g.Kind, g.SplitCount)
	}
	if g.ExpiresAt != g.CreatedAt+gift.ValiditySeconds {
		t.Fatalf("unexpected expiry: created=%d expires=%d", g.CreatedAt, g.ExpiresAt)
	}
	if got := f.balance(sender, testToken); got.Cmp(big.NewInt(999_900)) != 0 {
		t.Fatalf("sender balance = %s, want 999900", got)
	}
	if got := f.vaultBalance(testToken); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("vault balance = %s, want 100", got)
	}
	st, err := f.engine.ClaimStateOf(g.ID)
	if err != nil {
		t.Fatalf("claim state: %v", err)
	}
	if st.Status != gift.StatusActive || st.ClaimedCount != 0 || st.ClaimedAmount.Sign() != 0 {
		t.Fatalf("unexpected initial claim state: %+v", st)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	longSkin := make([]byte, gift.MaxSkinLength+1)
	longMsg := make([]byte, gift.MaxMessageLength+1)

	cases := []struct {
		name string
		run  func() error
		want error
	}{
		{"unknown token", func() error {
			_, err := f.engine.CreateSingle(sender, 1, "NOPE", big.NewInt(100), "", "")
			return err
		}, gift.ErrInvalidToken},
		{"below minimum", func() error {
			_, err := f.engine.CreateSingle(sender, 1, testToken, big.NewInt(gift.MinGiftAmount-1), "", "")
			return err
		}, gift.ErrAmountBelowMinimum},
		{"skin too long", func() error {
			_, err := f.engine.CreateSingle(sender, 1, testToken, big.NewInt(100), string(longSkin), "")
			return err
		}, gift.ErrSkinTooLong},
		{"message too long", func() error {
			_, err := f.engine.CreateSingle(sender, 1, testToken, big.NewInt(100), "", string(longMsg))
			return err
		}, gift.ErrMessageTooLong},
		{"split not divisible", func() error {
			_, err := f.engine.CreateMulti(sender, 1, testToken, big.NewInt(101), gift.DividendFixed, 2, "", "")
			return err
		}, gift.ErrAmountNotDivisible},
		{"per split below minimum", func() error {
			_, err := f.engine.CreateMulti(sender, 1, testToken, big.NewInt(18), gift.DividendFixed, 2, "", "")
			return err
		}, gift.ErrAmountNotDivisible},
		{"split count too small", func() error {
			_, err := f.engine.CreateMulti(sender, 1, testToken, big.NewInt(100), gift.DividendFixed, 1, "", "")
			return err
		}, gift.ErrSplitCountOutOfRange},
		{"split count too large", func() error {
			_, err := f.engine.CreateMulti(sender, 1, testToken, big.NewInt(100_000), gift.DividendFixed, gift.MaxSplitCount+1, "", "")
			return err
		}, gift.ErrSplitCountOutOfRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.run(); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCreateDuplicateRejected(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.CreateSingle(sender, 4, testToken, big.NewInt(100), "", ""); err != nil {
		t.Fatalf("first create: %v", err)
	}
	// identical inputs at the same timestamp derive the same identity
	if _, err := f.engine.CreateSingle(sender, 4, testToken, big.NewInt(100), "", ""); !errors.Is(err, gift.ErrGiftIDInUse) {
		t.Fatalf("got %v, want ErrGiftIDInUse", err)
	}
	f.now++
	if _, err := f.engine.CreateSingle(sender, 4, testToken, big.NewInt(100), "", ""); err != nil {
		t.Fatalf("create at later timestamp: %v", err)
	}
}

func TestCreateInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	poor := addr(0x42)
	if _, err := f.engine.CreateSingle(poor, 1, testToken, big.NewInt(100), "", ""); !errors.Is(err, gift.ErrTransferFailed) {
		t.Fatalf("got %v, want ErrTransferFailed", err)
	}
	if got := f.vaultBalance(testToken); got.Sign() != 0 {
		t.Fatalf("vault balance = %s after failed create, want 0", got)
	}
}

// rejectTokenState passes everything through to the manager except transfers
// of one token, standing in for a deposit that loses a balance race.
type rejectTokenState struct {
	*state.Manager
	rejectToken string
}

func (s *rejectTokenState) Transfer(from, to []byte, token string, amount *big.Int) error {
	if token == s.rejectToken {
		return errors.New("transfer rejected")
	}
	return s.Manager.Transfer(from, to, token, amount)
}

func TestCreateReturnsFeeWhenPrincipalDepositFails(t *testing.T) {
	f := newFixture(t)
	f.enableFee("FEE", 1)

	engine := gift.NewEngine()
	engine.SetState(&rejectTokenState{Manager: f.manager, rejectToken: testToken})
	engine.SetPauses(f.manager)
	engine.SetFeeSource(f.manager)
	engine.SetNowFunc(func() int64 { return f.now })

	if _, err := engine.CreateMulti(sender, 1, testToken, big.NewInt(1000), gift.DividendFixed, 10, "", ""); err == nil {
		t.Fatal("create succeeded despite rejected principal deposit")
	}
	// the 10 collected fee units must be back with the sender
	if got := f.balance(sender, "FEE"); got.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("fee balance = %s, want 1000000", got)
	}
	feeVault, err := f.manager.FeeVaultAddress("FEE")
	if err != nil {
		t.Fatalf("fee vault address: %v", err)
	}
	if got := f.balance(feeVault, "FEE"); got.Sign() != 0 {
		t.Fatalf("fee vault balance = %s, want 0", got)
	}
	if got := f.balance(sender, testToken); got.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("principal balance = %s, want untouched 1000000", got)
	}
}

func TestClaimSingleLifecycle(t *testing.T) {
	f := newFixture(t)
	g, err := f.engine.CreateSingle(sender, 9, testToken, big.NewInt(10), "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	item := gift.ClaimItem{GiftID: g.ID, Recipient: 9, Payout: alice}
	if err := f.engine.Claim(alice, item); !errors.Is(err, gift.ErrUnauthorized) {
		t.Fatalf("non-manager claim: got %v, want ErrUnauthorized", err)
	}
	if err := f.engine.Claim(manager, item); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got := f.balance(alice, testToken); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("payout balance = %s, want 10", got)
	}
	if got := f.vaultBalance(testToken); got.Sign() != 0 {
		t.Fatalf("vault balance = %s after claim, want 0", got)
	}
	if err := f.engine.Claim(manager, item); !errors.Is(err, gift.ErrAlreadyClaimed) {
		t.Fatalf("second claim: got %v, want ErrAlreadyClaimed", err)
	}

	info, ok, err := f.engine.ClaimInfoOf(g.ID, 9)
	if err != nil || !ok {
		t.Fatalf("claim info: ok=%v err=%v", ok, err)
	}
	if info.Amount.Cmp(big.NewInt(10)) != 0 || info.ClaimedAt != f.now {
		t.Fatalf("unexpected claim info: %+v", info)
	}
}

func TestClaimSingleIgnoresAmount(t *testing.T) {
	f := newFixture(t)
	g, err := f.engine.CreateSingle(sender, 3, testToken, big.NewInt(100), "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// single gifts always pay the full principal regardless of the item amount
	item := gift.ClaimItem{GiftID: g.ID, Recipient: 3, Payout: alice, Amount: big.NewInt(5)}
	if err := f.engine.Claim(manager, item); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got := f.balance(alice, testToken); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("payout balance = %s, want full 100", got)
	}
}

func TestClaimPayoutFailureLeavesNoRecord(t *testing.T) {
	f := newFixture(t)
	g, err := f.engine.CreateSingle(sender, 1, testToken, big.NewInt(100), "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// drain the escrow vault so the payout transfer cannot settle
	if err := f.engine.Sweep(admin, testToken, admin, big.NewInt(100)); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	item := gift.ClaimItem{GiftID: g.ID, Recipient: 1, Payout: alice}
	if err := f.engine.Claim(manager, item); !errors.Is(err, state.ErrInsufficientBalance) {
		t.Fatalf("claim against drained vault: got %v, want ErrInsufficientBalance", err)
	}
	if _, ok, err := f.engine.ClaimInfoOf(g.ID, 1); err != nil || ok {
		t.Fatalf("claim info after failed payout: ok=%v err=%v, want none", ok, err)
	}
	st, err := f.engine.ClaimStateOf(g.ID)
	if err != nil {
		t.Fatalf("claim state: %v", err)
	}
	if st.ClaimedCount != 0 || st.ClaimedAmount.Sign() != 0 {
		t.Fatalf("failed payout mutated totals: %+v", st)
	}

	// restore the vault and the same claim goes through
	vault, err := f.manager.GiftVaultAddress(testToken)
	if err != nil {
		t.Fatalf("vault address: %v", err)
	}
	if err := f.manager.SetBalance(vault[:], testToken, big.NewInt(100)); err != nil {
		t.Fatalf("refill vault: %v", err)
	}
	if err := f.engine.Claim(manager, item); err != nil {
		t.Fatalf("retry claim: %v", err)
	}
	if got := f.balance(alice, testToken); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("payout balance = %s, want 100", got)
	}
}

func TestClaimGraceBoundary(t *testing.T) {
	f := newFixture(t)
	g, err := f.engine.CreateSingle(sender, 1, testToken, big.NewInt(10), "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	deadline := g.ExpiresAt + gift.GraceSeconds

	f.now = deadline
	if err := f.engine.Claim(manager, gift.ClaimItem{GiftID: g.ID, Recipient: 1, Payout: alice}); err != nil {
		t.Fatalf("claim at deadline: %v", err)
	}

	g2, err := f.engine.CreateSingle(sender, 2, testToken, big.NewInt(10), "", "")
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	f.now = g2.ExpiresAt + gift.GraceSeconds + 1
	err = f.engine.Claim(manager, gift.ClaimItem{GiftID: g2.ID, Recipient: 2, Payout: alice})
	if !errors.Is(err, gift.ErrGiftExpired) {
		t.Fatalf("claim past deadline: got %v, want ErrGiftExpired", err)
	}
}

func TestClaimMultiAccumulates(t *testing.T) {
	f := newFixture(t)
	g, err := f.engine.CreateMulti(sender, 1, testToken, big.NewInt(1000), gift.DividendFixed, 100, "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := f.engine.Claim(manager, gift.ClaimItem{GiftID: g.ID, Recipient: 1, Payout: alice, Amount: big.NewInt(10)}); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := f.engine.Claim(manager, gift.ClaimItem{GiftID: g.ID, Recipient: 2, Payout: bob, Amount: big.NewInt(10)}); err != nil {
		t.Fatalf("second claim: %v", err)
	}
	st, err := f.engine.ClaimStateOf(g.ID)
	if err != nil {
		t.Fatalf("claim state: %v", err)
	}
	if st.ClaimedCount != 2 || st.ClaimedAmount.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("totals = (%d, %s), want (2, 20)", st.ClaimedCount, st.ClaimedAmount)
	}

	// missing amount on a split gift
	err = f.engine.Claim(manager, gift.ClaimItem{GiftID: g.ID, Recipient: 3, Payout: alice})
	if !errors.Is(err, gift.ErrAmountBelowMinimum) {
		t.Fatalf("nil amount: got %v, want ErrAmountBelowMinimum", err)
	}
	// total overshoot
	err = f.engine.Claim(manager, gift.ClaimItem{GiftID: g.ID, Recipient: 3, Payout: alice, Amount: big.NewInt(981)})
	if !errors.Is(err, gift.ErrClaimAmountExceeded) {
		t.Fatalf("overshoot: got %v, want ErrClaimAmountExceeded", err)
	}
	// duplicate recipient tag
	err = f.engine.Claim(manager, gift.ClaimItem{GiftID: g.ID, Recipient: 1, Payout: alice, Amount: big.NewInt(10)})
	if !errors.Is(err, gift.ErrAlreadyClaimed) {
		t.Fatalf("duplicate recipient: got %v, want ErrAlreadyClaimed", err)
	}
}

func TestClaimCountExceeded(t *testing.T) {
	f := newFixture(t)
	g, err := f.engine.CreateMulti(sender, 1, testToken, big.NewInt(40), gift.DividendFixed, 2, "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := uint64(1); i <= 2; i++ {
		if err := f.engine.Claim(manager, gift.ClaimItem{GiftID: g.ID, Recipient: i, Payout: alice, Amount: big.NewInt(5)}); err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
	}
	err = f.engine.Claim(manager, gift.ClaimItem{GiftID: g.ID, Recipient: 3, Payout: alice, Amount: big.NewInt(5)})
	if !errors.Is(err, gift.ErrClaimCountExceeded) {
		t.Fatalf("got %v, want ErrClaimCountExceeded", err)
	}
}

func TestBatchClaimAllOrNothing(t *testing.T) {
	f := newFixture(t)
	g, err := f.engine.CreateMulti(sender, 1, testToken, big.NewInt(100), gift.DividendFixed, 5, "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	bad := []gift.ClaimItem{
		{GiftID: g.ID, Recipient: 1, Payout: alice, Amount: big.NewInt(20)},
		{GiftID: g.ID, Recipient: 1, Payout: bob, Amount: big.NewInt(20)}, // duplicate tag
	}
	if err := f.engine.BatchClaim(manager, bad); !errors.Is(err, gift.ErrAlreadyClaimed) {
		t.Fatalf("got %v, want ErrAlreadyClaimed", err)
	}
	st, err := f.engine.ClaimStateOf(g.ID)
	if err != nil {
		t.Fatalf("claim state: %v", err)
	}
	if st.ClaimedCount != 0 || st.ClaimedAmount.Sign() != 0 {
		t.Fatalf("failed batch mutated state: %+v", st)
	}
	if got := f.balance(alice, testToken); got.Sign() != 0 {
		t.Fatalf("failed batch paid out %s", got)
	}

	good := []gift.ClaimItem{
		{GiftID: g.ID, Recipient: 1, Payout: alice, Amount: big.NewInt(20)},
		{GiftID: g.ID, Recipient: 2, Payout: bob, Amount: big.NewInt(20)},
		{GiftID: g.ID, Recipient: 3, Payout: alice, Amount: big.NewInt(20)},
	}
	if err := f.engine.BatchClaim(manager, good); err != nil {
		t.Fatalf("batch: %v", err)
	}
	st, err = f.engine.ClaimStateOf(g.ID)
	if err != nil {
		t.Fatalf("claim state: %v", err)
	}
	if st.ClaimedCount != 3 || st.ClaimedAmount.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("totals = (%d, %s), want (3, 60)", st.ClaimedCount, st.ClaimedAmount)
	}
	if got := f.balance(alice, testToken); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("alice balance = %s, want 40", got)
	}
}

func TestBatchClaimProjectsTotals(t *testing.T) {
	f := newFixture(t)
	g, err := f.engine.CreateMulti(sender, 1, testToken, big.NewInt(40), gift.DividendFixed, 2, "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// three items against a two-slot gift must fail during planning
	items := []gift.ClaimItem{
		{GiftID: g.ID, Recipient: 1, Payout: alice, Amount: big.NewInt(10)},
		{GiftID: g.ID, Recipient: 2, Payout: alice, Amount: big.NewInt(10)},
		{GiftID: g.ID, Recipient: 3, Payout: alice, Amount: big.NewInt(10)},
	}
	if err := f.engine.BatchClaim(manager, items); !errors.Is(err, gift.ErrClaimCountExceeded) {
		t.Fatalf("got %v, want ErrClaimCountExceeded", err)
	}
	if got := f.vaultBalance(testToken); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("vault balance = %s, want untouched 40", got)
	}
}

func TestRefundLifecycle(t *testing.T) {
	f := newFixture(t)
	f.enableFee("FEE", 1)
	g, err := f.engine.CreateMulti(sender, 1, testToken, big.NewInt(1000), gift.DividendFixed, 100, "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := f.balance(sender, "FEE"); got.Cmp(big.NewInt(999_900)) != 0 {
		t.Fatalf("fee balance after create = %s, want 999900", got)
	}

	for i := uint64(1); i <= 2; i++ {
		if err := f.engine.Claim(manager, gift.ClaimItem{GiftID: g.ID, Recipient: i, Payout: alice, Amount: big.NewInt(10)}); err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
	}

	if err := f.engine.Refund(sender, g.ID); !errors.Is(err, gift.ErrRefundTooEarly) {
		t.Fatalf("early refund: got %v, want ErrRefundTooEarly", err)
	}
	// the grace deadline itself still belongs to the claim window
	f.now = g.GraceDeadline()
	if err := f.engine.Refund(sender, g.ID); !errors.Is(err, gift.ErrRefundTooEarly) {
		t.Fatalf("refund at deadline: got %v, want ErrRefundTooEarly", err)
	}

	f.now = g.GraceDeadline() + 1
	if err := f.engine.Refund(alice, g.ID); !errors.Is(err, gift.ErrRefundNotSender) {
		t.Fatalf("wrong caller: got %v, want ErrRefundNotSender", err)
	}

	principalBefore := f.balance(sender, testToken)
	if err := f.engine.Refund(sender, g.ID); err != nil {
		t.Fatalf("refund: %v", err)
	}
	principalAfter := f.balance(sender, testToken)
	if diff := new(big.Int).Sub(principalAfter, principalBefore); diff.Cmp(big.NewInt(980)) != 0 {
		t.Fatalf("principal refund = %s, want 980", diff)
	}
	// 98 of the 100 prepaid claim-fee slots were never used
	if got := f.balance(sender, "FEE"); got.Cmp(big.NewInt(999_998)) != 0 {
		t.Fatalf("fee balance after refund = %s, want 999998", got)
	}

	if err := f.engine.Refund(sender, g.ID); !errors.Is(err, gift.ErrAlreadyRefunded) {
		t.Fatalf("second refund: got %v, want ErrAlreadyRefunded", err)
	}
	st, err := f.engine.ClaimStateOf(g.ID)
	if err != nil {
		t.Fatalf("claim state: %v", err)
	}
	if st.Status != gift.StatusRefunded {
		t.Fatalf("status = %v, want refunded", st.Status)
	}
}

func TestRefundPayoutFailureKeepsGiftActive(t *testing.T) {
	f := newFixture(t)
	g, err := f.engine.CreateSingle(sender, 1, testToken, big.NewInt(100), "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.engine.Sweep(admin, testToken, admin, big.NewInt(100)); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	f.now = g.GraceDeadline() + 1
	if err := f.engine.Refund(sender, g.ID); !errors.Is(err, state.ErrInsufficientBalance) {
		t.Fatalf("refund against drained vault: got %v, want ErrInsufficientBalance", err)
	}
	st, err := f.engine.ClaimStateOf(g.ID)
	if err != nil {
		t.Fatalf("claim state: %v", err)
	}
	if st.Status != gift.StatusActive {
		t.Fatalf("status after failed payout = %v, want active", st.Status)
	}

	vault, err := f.manager.GiftVaultAddress(testToken)
	if err != nil {
		t.Fatalf("vault address: %v", err)
	}
	if err := f.manager.SetBalance(vault[:], testToken, big.NewInt(100)); err != nil {
		t.Fatalf("refill vault: %v", err)
	}
	before := f.balance(sender, testToken)
	if err := f.engine.Refund(sender, g.ID); err != nil {
		t.Fatalf("retry refund: %v", err)
	}
	if diff := new(big.Int).Sub(f.balance(sender, testToken), before); diff.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("refunded = %s, want 100", diff)
	}
}

func TestRefundFullyClaimed(t *testing.T) {
	f := newFixture(t)
	g, err := f.engine.CreateSingle(sender, 1, testToken, big.NewInt(10), "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.engine.Claim(manager, gift.ClaimItem{GiftID: g.ID, Recipient: 1, Payout: alice}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	f.now = g.GraceDeadline() + 1
	if err := f.engine.Refund(sender, g.ID); !errors.Is(err, gift.ErrAlreadyClaimed) {
		t.Fatalf("got %v, want ErrAlreadyClaimed", err)
	}
}

func TestFeeFrozenAtCreation(t *testing.T) {
	f := newFixture(t)
	f.enableFee("FEE", 2)
	g, err := f.engine.CreateMulti(sender, 1, testToken, big.NewInt(100), gift.DividendFixed, 10, "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	feeToken, perSplit, err := f.engine.GasFeeOf(g.ID)
	if err != nil {
		t.Fatalf("gas fee: %v", err)
	}
	if feeToken != "FEE" || perSplit.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("frozen quote = (%s, %s), want (FEE, 2)", feeToken, perSplit)
	}

	// a later price change must not leak into the refund
	if err := f.manager.SetGasQuote("FEE", big.NewInt(50)); err != nil {
		t.Fatalf("raise quote: %v", err)
	}
	f.now = g.GraceDeadline() + 1
	before := f.balance(sender, "FEE")
	if err := f.engine.Refund(sender, g.ID); err != nil {
		t.Fatalf("refund: %v", err)
	}
	diff := new(big.Int).Sub(f.balance(sender, "FEE"), before)
	if diff.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("fee refund = %s, want frozen 10 slots * 2", diff)
	}
}

func TestCodeLifecycle(t *testing.T) {
	f := newFixture(t)
	codeHash := [32]byte{0xaa, 0xbb}

	g, err := f.engine.CreateCode(sender, codeHash, testToken, big.NewInt(100), gift.DividendFixed, 5, "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	current, err := f.engine.CodeCurrent(codeHash)
	if err != nil || current != g.ID {
		t.Fatalf("current = %x err=%v, want %x", current, err, g.ID)
	}
	if available, err := f.engine.CodeAvailable(codeHash); err != nil || available {
		t.Fatalf("available = %v err=%v, want false while active", available, err)
	}
	if _, err := f.engine.CreateCode(sender, codeHash, testToken, big.NewInt(100), gift.DividendFixed, 5, "", ""); !errors.Is(err, gift.ErrCodeHashInUse) {
		t.Fatalf("got %v, want ErrCodeHashInUse", err)
	}

	if err := f.engine.ClaimByCode(manager, codeHash, 1, alice, big.NewInt(20)); err != nil {
		t.Fatalf("claim by code: %v", err)
	}
	if got := f.balance(alice, testToken); got.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("alice balance = %s, want 20", got)
	}

	// slot frees only once the grace window has fully elapsed
	f.now = g.GraceDeadline()
	if available, _ := f.engine.CodeAvailable(codeHash); available {
		t.Fatal("slot available at deadline, want blocked")
	}
	f.now = g.GraceDeadline() + 1
	if available, _ := f.engine.CodeAvailable(codeHash); !available {
		t.Fatal("slot still blocked past deadline")
	}

	g2, err := f.engine.CreateCode(sender, codeHash, testToken, big.NewInt(100), gift.DividendFixed, 5, "", "")
	if err != nil {
		t.Fatalf("reuse create: %v", err)
	}
	history, err := f.engine.CodeHistory(codeHash)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0] != g.ID || history[1] != g2.ID {
		t.Fatalf("unexpected history: %x", history)
	}
	if current, _ := f.engine.CodeCurrent(codeHash); current != g2.ID {
		t.Fatalf("current = %x, want %x", current, g2.ID)
	}
}

func TestUnknownCodeHash(t *testing.T) {
	f := newFixture(t)
	var codeHash [32]byte
	codeHash[0] = 0x99
	if _, err := f.engine.CodeCurrent(codeHash); !errors.Is(err, gift.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if available, err := f.engine.CodeAvailable(codeHash); err != nil || !available {
		t.Fatalf("available = %v err=%v, want true for fresh hash", available, err)
	}
	if err := f.engine.ClaimByCode(manager, codeHash, 1, alice, big.NewInt(10)); !errors.Is(err, gift.ErrNotFound) {
		t.Fatalf("claim by unknown code: got %v, want ErrNotFound", err)
	}
}

func TestPauseBlocksMutations(t *testing.T) {
	f := newFixture(t)
	g, err := f.engine.CreateSingle(sender, 1, testToken, big.NewInt(10), "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.manager.SetPaused(gift.ModuleName, true); err != nil {
		t.Fatalf("pause: %v", err)
	}

	if _, err := f.engine.CreateSingle(sender, 2, testToken, big.NewInt(10), "", ""); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("create while paused: got %v", err)
	}
	if err := f.engine.Claim(manager, gift.ClaimItem{GiftID: g.ID, Recipient: 1, Payout: alice}); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("claim while paused: got %v", err)
	}
	if err := f.engine.Refund(sender, g.ID); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("refund while paused: got %v", err)
	}
	// reads stay open
	if _, err := f.engine.Gift(g.ID); err != nil {
		t.Fatalf("read while paused: %v", err)
	}
	// sweep is the emergency path and ignores the pause flag
	if err := f.engine.Sweep(admin, testToken, admin, big.NewInt(10)); err != nil {
		t.Fatalf("sweep while paused: %v", err)
	}
}

func TestSweepRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.CreateSingle(sender, 1, testToken, big.NewInt(50), "", ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.engine.Sweep(manager, testToken, alice, big.NewInt(10)); !errors.Is(err, gift.ErrUnauthorized) {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
	if err := f.engine.Sweep(admin, testToken, alice, big.NewInt(10)); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if got := f.balance(alice, testToken); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("swept balance = %s, want 10", got)
	}
}

func TestConservation(t *testing.T) {
	f := newFixture(t)
	g, err := f.engine.CreateMulti(sender, 1, testToken, big.NewInt(300), gift.DividendFixed, 3, "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.engine.Claim(manager, gift.ClaimItem{GiftID: g.ID, Recipient: 1, Payout: alice, Amount: big.NewInt(120)}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	f.now = g.GraceDeadline() + 1
	if err := f.engine.Refund(sender, g.ID); err != nil {
		t.Fatalf("refund: %v", err)
	}

	total := new(big.Int).Add(f.balance(sender, testToken), f.balance(alice, testToken))
	total.Add(total, f.vaultBalance(testToken))
	if total.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("token supply = %s, want 1000000", total)
	}
	if got := f.vaultBalance(testToken); got.Sign() != 0 {
		t.Fatalf("vault balance = %s after full settlement, want 0", got)
	}
}
