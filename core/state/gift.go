package state

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"giftvault/native/fees"
	"giftvault/native/gift"
)

var (
	giftRecordPrefix    = []byte("gift:record:")
	giftClaimInfoPrefix = []byte("gift:claiminfo:")
	giftStatePrefix     = []byte("gift:state:")
	giftFeePrefix       = []byte("gift:fee:")
	giftCodePrefix      = []byte("gift:code:")
	giftVaultLabel      = []byte("gift:vault:")
	feeVaultLabel       = []byte("gift:feevault:")
)

func giftRecordKey(id [32]byte) []byte {
	buf := make([]byte, len(giftRecordPrefix)+len(id))
	copy(buf, giftRecordPrefix)
	copy(buf[len(giftRecordPrefix):], id[:])
	return ethcrypto.Keccak256(buf)
}

func giftClaimInfoKey(id [32]byte, recipient uint64) []byte {
	buf := make([]byte, len(giftClaimInfoPrefix)+len(id)+8)
	copy(buf, giftClaimInfoPrefix)
	copy(buf[len(giftClaimInfoPrefix):], id[:])
	binary.BigEndian.PutUint64(buf[len(giftClaimInfoPrefix)+len(id):], recipient)
	return ethcrypto.Keccak256(buf)
}

func giftStateKey(id [32]byte) []byte {
	buf := make([]byte, len(giftStatePrefix)+len(id))
	copy(buf, giftStatePrefix)
	copy(buf[len(giftStatePrefix):], id[:])
	return ethcrypto.Keccak256(buf)
}

func giftFeeKey(id [32]byte) []byte {
	buf := make([]byte, len(giftFeePrefix)+len(id))
	copy(buf, giftFeePrefix)
	copy(buf[len(giftFeePrefix):], id[:])
	return ethcrypto.Keccak256(buf)
}

func giftCodeKey(codeHash [32]byte) []byte {
	buf := make([]byte, len(giftCodePrefix)+len(codeHash))
	copy(buf, giftCodePrefix)
	copy(buf[len(giftCodePrefix):], codeHash[:])
	return ethcrypto.Keccak256(buf)
}

// vaultAddress derives a stable custody address from a label and a token
// symbol. The derived account has no key; only the engine moves its funds.
func vaultAddress(label []byte, token string) [20]byte {
	buf := make([]byte, len(label)+len(token))
	copy(buf, label)
	copy(buf[len(label):], token)
	sum := ethcrypto.Keccak256(buf)
	var addr [20]byte
	copy(addr[:], sum[12:])
	return addr
}

// storedGift mirrors gift.Gift with RLP-friendly field types. Timestamps are
// stored as big.Int, matching the rest of the ledger's signed-value records.
type storedGift struct {
	ID         [32]byte
	Kind       uint8
	Sender     [20]byte
	Recipient  uint64
	GroupID    uint64
	CodeHash   [32]byte
	Token      string
	Amount     *big.Int
	Dividend   uint8
	SplitCount uint32
	CreatedAt  *big.Int
	ExpiresAt  *big.Int
	Skin       string
	Message    string
}

func newStoredGift(g *gift.Gift) *storedGift {
	amount := big.NewInt(0)
	if g.Amount != nil {
		amount = new(big.Int).Set(g.Amount)
	}
	return &storedGift{
		ID:         g.ID,
		Kind:       uint8(g.Kind),
		Sender:     g.Sender,
		Recipient:  g.Recipient,
		GroupID:    g.GroupID,
		CodeHash:   g.CodeHash,
		Token:      g.Token,
		Amount:     amount,
		Dividend:   uint8(g.Dividend),
		SplitCount: g.SplitCount,
		CreatedAt:  big.NewInt(g.CreatedAt),
		ExpiresAt:  big.NewInt(g.ExpiresAt),
		Skin:       g.Skin,
		Message:    g.Message,
	}
}

func (s *storedGift) toGift() (*gift.Gift, error) {
	if s == nil {
		return nil, fmt.Errorf("gift: nil storage record")
	}
	out := &gift.Gift{
		ID:         s.ID,
		Kind:       gift.Kind(s.Kind),
		Sender:     s.Sender,
		Recipient:  s.Recipient,
		GroupID:    s.GroupID,
		CodeHash:   s.CodeHash,
		Token:      s.Token,
		Amount:     big.NewInt(0),
		Dividend:   gift.DividendType(s.Dividend),
		SplitCount: s.SplitCount,
		Skin:       s.Skin,
		Message:    s.Message,
	}
	if s.Amount != nil {
		out.Amount = new(big.Int).Set(s.Amount)
	}
	if s.CreatedAt != nil {
		out.CreatedAt = s.CreatedAt.Int64()
	}
	if s.ExpiresAt != nil {
		out.ExpiresAt = s.ExpiresAt.Int64()
	}
	if !out.Kind.Valid() {
		return nil, fmt.Errorf("gift: invalid stored kind %d", s.Kind)
	}
	if !out.Dividend.Valid() {
		return nil, fmt.Errorf("gift: invalid stored dividend %d", s.Dividend)
	}
	return out, nil
}

type storedClaimInfo struct {
	Amount    *big.Int
	ClaimedAt *big.Int
}

type storedClaimState struct {
	Status        uint8
	ClaimedCount  uint32
	ClaimedAmount *big.Int
}

type storedGasFee struct {
	Token    string
	PerSplit *big.Int
}

// GiftPut persists a gift definition. Records are immutable; the engine only
// writes a given id once.
func (m *Manager) GiftPut(g *gift.Gift) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g == nil {
		return fmt.Errorf("gift: nil value")
	}
	encoded, err := rlp.EncodeToBytes(newStoredGift(g))
	if err != nil {
		return err
	}
	return m.db.Put(giftRecordKey(g.ID), encoded)
}

// GiftGet retrieves a gift definition by id.
func (m *Manager) GiftGet(id [32]byte) (*gift.Gift, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, err := m.read(giftRecordKey(id))
	if err != nil || len(data) == 0 {
		return nil, false
	}
	stored := new(storedGift)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false
	}
	record, err := stored.toGift()
	if err != nil {
		return nil, false
	}
	return record, true
}

// ClaimStatePut persists the running totals and refund status for a gift.
func (m *Manager) ClaimStatePut(id [32]byte, s *gift.ClaimState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s == nil {
		return fmt.Errorf("gift: nil claim state")
	}
	if !s.Status.Valid() {
		return fmt.Errorf("gift: invalid claim status %d", s.Status)
	}
	amount := big.NewInt(0)
	if s.ClaimedAmount != nil {
		amount = new(big.Int).Set(s.ClaimedAmount)
	}
	encoded, err := rlp.EncodeToBytes(&storedClaimState{
		Status:        uint8(s.Status),
		ClaimedCount:  s.ClaimedCount,
		ClaimedAmount: amount,
	})
	if err != nil {
		return err
	}
	return m.db.Put(giftStateKey(id), encoded)
}

// ClaimStateGet retrieves the claim state for a gift.
func (m *Manager) ClaimStateGet(id [32]byte) (*gift.ClaimState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, err := m.read(giftStateKey(id))
	if err != nil || len(data) == 0 {
		return nil, false
	}
	stored := new(storedClaimState)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false
	}
	out := &gift.ClaimState{
		Status:        gift.Status(stored.Status),
		ClaimedCount:  stored.ClaimedCount,
		ClaimedAmount: big.NewInt(0),
	}
	if stored.ClaimedAmount != nil {
		out.ClaimedAmount = new(big.Int).Set(stored.ClaimedAmount)
	}
	if !out.Status.Valid() {
		return nil, false
	}
	return out, true
}

// ClaimInfoPut records a recipient's settled claim. Set at most once per
// (gift, recipient) pair.
func (m *Manager) ClaimInfoPut(id [32]byte, recipient uint64, info *gift.ClaimInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info == nil {
		return fmt.Errorf("gift: nil claim info")
	}
	amount := big.NewInt(0)
	if info.Amount != nil {
		amount = new(big.Int).Set(info.Amount)
	}
	encoded, err := rlp.EncodeToBytes(&storedClaimInfo{
		Amount:    amount,
		ClaimedAt: big.NewInt(info.ClaimedAt),
	})
	if err != nil {
		return err
	}
	return m.db.Put(giftClaimInfoKey(id, recipient), encoded)
}

// ClaimInfoGet retrieves a recipient's settled claim, if any.
func (m *Manager) ClaimInfoGet(id [32]byte, recipient uint64) (*gift.ClaimInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, err := m.read(giftClaimInfoKey(id, recipient))
	if err != nil || len(data) == 0 {
		return nil, false
	}
	stored := new(storedClaimInfo)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false
	}
	out := &gift.ClaimInfo{Amount: big.NewInt(0)}
	if stored.Amount != nil {
		out.Amount = new(big.Int).Set(stored.Amount)
	}
	if stored.ClaimedAt != nil {
		out.ClaimedAt = stored.ClaimedAt.Int64()
	}
	return out, true
}

// GasFeePut persists the frozen fee snapshot taken at creation.
func (m *Manager) GasFeePut(id [32]byte, q fees.Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	perSplit := big.NewInt(0)
	if q.PerSplit != nil {
		perSplit = new(big.Int).Set(q.PerSplit)
	}
	encoded, err := rlp.EncodeToBytes(&storedGasFee{Token: q.Token, PerSplit: perSplit})
	if err != nil {
		return err
	}
	return m.db.Put(giftFeeKey(id), encoded)
}

// GasFeeGet retrieves the frozen fee snapshot for a gift.
func (m *Manager) GasFeeGet(id [32]byte) (fees.Quote, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, err := m.read(giftFeeKey(id))
	if err != nil || len(data) == 0 {
		return fees.Quote{PerSplit: big.NewInt(0)}, false
	}
	stored := new(storedGasFee)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return fees.Quote{PerSplit: big.NewInt(0)}, false
	}
	out := fees.Quote{Token: stored.Token, PerSplit: big.NewInt(0)}
	if stored.PerSplit != nil {
		out.PerSplit = new(big.Int).Set(stored.PerSplit)
	}
	return out, true
}

// CodeSlotAppend appends a gift id to the code hash's slot history. Prior
// entries are never removed or reordered.
func (m *Manager) CodeSlotAppend(codeHash [32]byte, id [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	history, err := m.codeSlotHistory(codeHash)
	if err != nil {
		return err
	}
	history = append(history, id)
	encoded, err := rlp.EncodeToBytes(history)
	if err != nil {
		return err
	}
	return m.db.Put(giftCodeKey(codeHash), encoded)
}

// CodeSlotHistory returns every gift id ever created under the code hash,
// oldest first.
func (m *Manager) CodeSlotHistory(codeHash [32]byte) ([][32]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.codeSlotHistory(codeHash)
}

func (m *Manager) codeSlotHistory(codeHash [32]byte) ([][32]byte, error) {
	data, err := m.read(giftCodeKey(codeHash))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return [][32]byte{}, nil
	}
	var history [][32]byte
	if err := rlp.DecodeBytes(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}

// GiftVaultAddress returns the principal custody address for a token.
func (m *Manager) GiftVaultAddress(token string) ([20]byte, error) {
	normalized := strings.ToUpper(strings.TrimSpace(token))
	if normalized == "" {
		return [20]byte{}, fmt.Errorf("token symbol must not be empty")
	}
	return vaultAddress(giftVaultLabel, normalized), nil
}

// FeeVaultAddress returns the service-fee custody address for a token.
func (m *Manager) FeeVaultAddress(token string) ([20]byte, error) {
	normalized := strings.ToUpper(strings.TrimSpace(token))
	if normalized == "" {
		return [20]byte{}, fmt.Errorf("token symbol must not be empty")
	}
	return vaultAddress(feeVaultLabel, normalized), nil
}

// SetGasQuote stores the current service-fee price. The stored value is read
// live at creation time and frozen per gift from then on.
func (m *Manager) SetGasQuote(token string, perSplit *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	normalized := strings.ToUpper(strings.TrimSpace(token))
	if normalized != "" {
		if meta, err := m.loadTokenMetadata(normalized); err != nil {
			return err
		} else if meta == nil {
			return fmt.Errorf("token %s not registered", normalized)
		}
	}
	amount := big.NewInt(0)
	if perSplit != nil {
		amount = new(big.Int).Set(perSplit)
	}
	encoded, err := rlp.EncodeToBytes(&storedGasFee{Token: normalized, PerSplit: amount})
	if err != nil {
		return err
	}
	return m.db.Put(ethcrypto.Keccak256(gasQuoteKey), encoded)
}

// GasQuote implements fees.Source against the stored price. An unset or
// cleared quote disables fee collection.
func (m *Manager) GasQuote() fees.Quote {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, err := m.read(ethcrypto.Keccak256(gasQuoteKey))
	if err != nil || len(data) == 0 {
		return fees.Quote{PerSplit: big.NewInt(0)}
	}
	stored := new(storedGasFee)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return fees.Quote{PerSplit: big.NewInt(0)}
	}
	out := fees.Quote{Token: stored.Token, PerSplit: big.NewInt(0)}
	if stored.PerSplit != nil {
		out.PerSplit = new(big.Int).Set(stored.PerSplit)
	}
	return out
}
