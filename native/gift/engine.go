package gift

import (
	"errors"
	"math/big"
	"strings"
	"time"

	"giftvault/core/events"
	"giftvault/core/types"
	"giftvault/native/common"
	"giftvault/native/fees"
)

var (
	errNilState = errors.New("gift engine: state not configured")
)

// engineState is the narrow view of ledger state the engine mutates. The four
// keyed stores (gift records, claim info, claim state, frozen gas fees, code
// slots) are written by the engine only.
type engineState interface {
	GiftPut(g *Gift) error
	GiftGet(id [32]byte) (*Gift, bool)
	ClaimStatePut(id [32]byte, s *ClaimState) error
	ClaimStateGet(id [32]byte) (*ClaimState, bool)
	ClaimInfoPut(id [32]byte, recipient uint64, info *ClaimInfo) error
	ClaimInfoGet(id [32]byte, recipient uint64) (*ClaimInfo, bool)
	GasFeePut(id [32]byte, q fees.Quote) error
	GasFeeGet(id [32]byte) (fees.Quote, bool)
	CodeSlotAppend(codeHash [32]byte, id [32]byte) error
	CodeSlotHistory(codeHash [32]byte) ([][32]byte, error)

	TokenExists(symbol string) bool
	Balance(addr []byte, token string) (*big.Int, error)
	Transfer(from, to []byte, token string, amount *big.Int) error
	GiftVaultAddress(token string) ([20]byte, error)
	FeeVaultAddress(token string) ([20]byte, error)
	HasRole(role string, addr []byte) bool
}

type giftEvent struct {
	evt *types.Event
}

func (e giftEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e giftEvent) Event() *types.Event { return e.evt }

// Engine owns the gift lifecycle for all three variants: deterministic
// identity, escrow deposit with balance-delta verification, the claim and
// refund state machines, and the code-slot registry.
type Engine struct {
	state     engineState
	emitter   events.Emitter
	feeSource fees.Source
	pauses    common.PauseView
	guard     *common.EntryGuard
	nowFn     func() int64
}

// NewEngine creates a gift engine with a no-op emitter and no fee source.
// Callers wire the state backend via SetState before use.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		guard:   common.NewEntryGuard(),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetFeeSource configures the gas-price source snapshotted at creation.
// A nil source disables fee collection.
func (e *Engine) SetFeeSource(src fees.Source) { e.feeSource = src }

// SetPauses configures the pause view gating every mutating operation.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(giftEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) guardModule() error {
	return common.Guard(e.pauses, ModuleName)
}

func (e *Engine) requireManager(caller [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if !e.state.HasRole(RoleManager, caller[:]) {
		return ErrUnauthorized
	}
	return nil
}

func (e *Engine) requireAdmin(caller [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if !e.state.HasRole(RoleAdmin, caller[:]) {
		return ErrUnauthorized
	}
	return nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func normalizeToken(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func (e *Engine) loadGift(id [32]byte) (*Gift, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	g, ok := e.state.GiftGet(id)
	if !ok {
		return nil, ErrNotFound
	}
	return g, nil
}

func (e *Engine) loadClaimState(id [32]byte) (*ClaimState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	st, ok := e.state.ClaimStateGet(id)
	if !ok {
		st = &ClaimState{ClaimedAmount: big.NewInt(0)}
	}
	if st.ClaimedAmount == nil {
		st.ClaimedAmount = big.NewInt(0)
	}
	return st, nil
}

// deposit moves amount from the payer into the designated vault and verifies
// success by balance delta rather than trusting the transfer itself. This is
// the canonical pattern for every asset-accepting operation in the module.
func (e *Engine) deposit(from [20]byte, vault [20]byte, token string, amount *big.Int) error {
	pre, err := e.state.Balance(vault[:], token)
	if err != nil {
		return err
	}
	if err := e.state.Transfer(from[:], vault[:], token, amount); err != nil {
		return err
	}
	post, err := e.state.Balance(vault[:], token)
	if err != nil {
		return err
	}
	delta := new(big.Int).Sub(post, pre)
	if delta.Cmp(amount) < 0 {
		return ErrTransferFailed
	}
	return nil
}

// payout moves amount out of the gift vault to the recipient address.
func (e *Engine) payout(token string, to [20]byte, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	vault, err := e.state.GiftVaultAddress(token)
	if err != nil {
		return err
	}
	return e.state.Transfer(vault[:], to[:], token, amount)
}

// feePayout moves a fee refund out of the fee vault back to the sender.
func (e *Engine) feePayout(token string, to [20]byte, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	vault, err := e.state.FeeVaultAddress(token)
	if err != nil {
		return err
	}
	return e.state.Transfer(vault[:], to[:], token, amount)
}

// Sweep moves funds out of a module vault to the target address. It is the
// emergency administrative boundary and deliberately ignores the pause flag.
func (e *Engine) Sweep(caller [20]byte, token string, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	normalized := normalizeToken(token)
	if !e.state.TokenExists(normalized) {
		return ErrInvalidToken
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return ErrAmountBelowMinimum
	}
	vault, err := e.state.GiftVaultAddress(normalized)
	if err != nil {
		return err
	}
	return e.state.Transfer(vault[:], to[:], normalized, amt)
}
