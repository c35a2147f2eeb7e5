package state

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"giftvault/storage"
)

// Manager provides keyed access to the ledger's persisted state. Keys are
// keccak256-hashed before hitting the backing store and values are
// RLP-encoded. One Manager instance owns one contract-equivalent state.
type Manager struct {
	mu sync.RWMutex
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// TokenMetadata describes a registered asset. Registration doubles as the
// asset-validity source: only registered tokens may be gifted.
type TokenMetadata struct {
	Symbol   string
	Name     string
	Decimals uint8
}

var (
	tokenPrefix   = []byte("token:")
	tokenListKey  = ethcrypto.Keccak256([]byte("token-list"))
	balancePrefix = []byte("balance:")
	rolePrefix    = []byte("role:")
	pausedPrefix  = []byte("paused:")
	gasQuoteKey   = []byte("gas-quote")
)

func tokenMetadataKey(symbol string) []byte {
	buf := make([]byte, len(tokenPrefix)+len(symbol))
	copy(buf, tokenPrefix)
	copy(buf[len(tokenPrefix):], symbol)
	return ethcrypto.Keccak256(buf)
}

func balanceKey(addr []byte, symbol string) []byte {
	buf := make([]byte, len(balancePrefix)+len(symbol)+1+len(addr))
	copy(buf, balancePrefix)
	copy(buf[len(balancePrefix):], symbol)
	buf[len(balancePrefix)+len(symbol)] = ':'
	copy(buf[len(balancePrefix)+len(symbol)+1:], addr)
	return ethcrypto.Keccak256(buf)
}

func roleKey(role string) []byte {
	buf := make([]byte, len(rolePrefix)+len(role))
	copy(buf, rolePrefix)
	copy(buf[len(rolePrefix):], role)
	return ethcrypto.Keccak256(buf)
}

func pausedKey(module string) []byte {
	buf := make([]byte, len(pausedPrefix)+len(module))
	copy(buf, pausedPrefix)
	copy(buf[len(pausedPrefix):], module)
	return ethcrypto.Keccak256(buf)
}

// read fetches raw bytes, translating a missing key into (nil, nil).
func (m *Manager) read(hashedKey []byte) ([]byte, error) {
	data, err := m.db.Get(hashedKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

func (m *Manager) loadTokenList() ([]string, error) {
	data, err := m.read(tokenListKey)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return []string{}, nil
	}
	var list []string
	if err := rlp.DecodeBytes(data, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (m *Manager) writeTokenList(list []string) error {
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	return m.db.Put(tokenListKey, encoded)
}

func (m *Manager) loadTokenMetadata(symbol string) (*TokenMetadata, error) {
	data, err := m.read(tokenMetadataKey(symbol))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	meta := new(TokenMetadata)
	if err := rlp.DecodeBytes(data, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// RegisterToken stores the metadata for an accepted asset and records it in
// the token index.
func (m *Manager) RegisterToken(symbol, name string, decimals uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return fmt.Errorf("token symbol must not be empty")
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("token %s: name must not be empty", normalized)
	}
	if existing, err := m.loadTokenMetadata(normalized); err != nil {
		return err
	} else if existing != nil {
		return fmt.Errorf("token %s already registered", normalized)
	}

	list, err := m.loadTokenList()
	if err != nil {
		return err
	}
	list = append(list, normalized)
	sort.Strings(list)
	if err := m.writeTokenList(list); err != nil {
		return err
	}

	meta := &TokenMetadata{Symbol: normalized, Name: name, Decimals: decimals}
	encoded, err := rlp.EncodeToBytes(meta)
	if err != nil {
		return err
	}
	return m.db.Put(tokenMetadataKey(normalized), encoded)
}

// Token retrieves metadata for a registered token.
func (m *Manager) Token(symbol string) (*TokenMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadTokenMetadata(strings.ToUpper(strings.TrimSpace(symbol)))
}

// TokenList returns all registered token symbols in sorted order.
func (m *Manager) TokenList() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadTokenList()
}

// TokenExists reports whether the provided token symbol is registered.
func (m *Manager) TokenExists(symbol string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return false
	}
	meta, err := m.loadTokenMetadata(normalized)
	return err == nil && meta != nil
}

func (m *Manager) balance(addr []byte, symbol string) (*big.Int, error) {
	data, err := m.read(balanceKey(addr, symbol))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return big.NewInt(0), nil
	}
	amount := new(big.Int)
	if err := rlp.DecodeBytes(data, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

func (m *Manager) setBalance(addr []byte, symbol string, amount *big.Int) error {
	encoded, err := rlp.EncodeToBytes(amount)
	if err != nil {
		return err
	}
	return m.db.Put(balanceKey(addr, symbol), encoded)
}

// SetBalance stores an account balance for the provided token.
func (m *Manager) SetBalance(addr []byte, symbol string, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(addr) == 0 {
		return fmt.Errorf("address must not be empty")
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("negative balance not allowed")
	}
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if meta, err := m.loadTokenMetadata(normalized); err != nil {
		return err
	} else if meta == nil {
		return fmt.Errorf("token %s not registered", normalized)
	}
	return m.setBalance(addr, normalized, amount)
}

// Balance retrieves a token balance for the provided account and token.
func (m *Manager) Balance(addr []byte, symbol string) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balance(addr, strings.ToUpper(strings.TrimSpace(symbol)))
}

// ErrInsufficientBalance is returned by Transfer when the source account
// cannot cover the amount.
var ErrInsufficientBalance = errors.New("state: insufficient balance")

// Transfer debits the source and credits the destination atomically under the
// manager lock. The destination write is restored on failure so the ledger
// never holds a half-applied movement.
func (m *Manager) Transfer(from, to []byte, symbol string, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: negative transfer amount")
	}
	if amount.Sign() == 0 {
		return nil
	}
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if meta, err := m.loadTokenMetadata(normalized); err != nil {
		return err
	} else if meta == nil {
		return fmt.Errorf("token %s not registered", normalized)
	}
	fromBal, err := m.balance(from, normalized)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBal, err := m.balance(to, normalized)
	if err != nil {
		return err
	}
	if err := m.setBalance(from, normalized, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	if err := m.setBalance(to, normalized, new(big.Int).Add(toBal, amount)); err != nil {
		if restoreErr := m.setBalance(from, normalized, fromBal); restoreErr != nil {
			return errors.Join(err, fmt.Errorf("state: rollback source balance: %w", restoreErr))
		}
		return err
	}
	return nil
}

// SetRole associates an address with the specified role. Duplicate assignments
// are ignored while the stored list remains sorted for determinism.
func (m *Manager) SetRole(role string, addr []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	trimmed := strings.TrimSpace(role)
	if trimmed == "" {
		return fmt.Errorf("role must not be empty")
	}
	if len(addr) == 0 {
		return fmt.Errorf("address must not be empty")
	}
	members, err := m.roleMembers(trimmed)
	if err != nil {
		return err
	}
	for _, existing := range members {
		if bytes.Equal(existing, addr) {
			return nil
		}
	}
	members = append(members, append([]byte(nil), addr...))
	sort.Slice(members, func(i, j int) bool {
		return hex.EncodeToString(members[i]) < hex.EncodeToString(members[j])
	})
	encoded, err := rlp.EncodeToBytes(members)
	if err != nil {
		return err
	}
	return m.db.Put(roleKey(trimmed), encoded)
}

// UnsetRole removes the address from the role, if present.
func (m *Manager) UnsetRole(role string, addr []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	trimmed := strings.TrimSpace(role)
	members, err := m.roleMembers(trimmed)
	if err != nil {
		return err
	}
	filtered := members[:0]
	for _, existing := range members {
		if !bytes.Equal(existing, addr) {
			filtered = append(filtered, existing)
		}
	}
	encoded, err := rlp.EncodeToBytes(filtered)
	if err != nil {
		return err
	}
	return m.db.Put(roleKey(trimmed), encoded)
}

func (m *Manager) roleMembers(role string) ([][]byte, error) {
	data, err := m.read(roleKey(role))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return [][]byte{}, nil
	}
	var members [][]byte
	if err := rlp.DecodeBytes(data, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// RoleMembers returns all addresses assigned to the provided role.
func (m *Manager) RoleMembers(role string) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.roleMembers(strings.TrimSpace(role))
}

// HasRole reports whether the provided address is associated with the
// specified role. Errors while reading the underlying state result in a false
// return, matching the best-effort semantics required by the callers.
func (m *Manager) HasRole(role string, addr []byte) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(addr) == 0 {
		return false
	}
	members, err := m.roleMembers(strings.TrimSpace(role))
	if err != nil {
		return false
	}
	for _, member := range members {
		if bytes.Equal(member, addr) {
			return true
		}
	}
	return false
}

// SetPaused stores the pause flag for a module.
func (m *Manager) SetPaused(module string, paused bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	trimmed := strings.TrimSpace(module)
	if trimmed == "" {
		return fmt.Errorf("module must not be empty")
	}
	value := uint8(0)
	if paused {
		value = 1
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(pausedKey(trimmed), encoded)
}

// IsPaused implements the pause view consumed by the module guards.
func (m *Manager) IsPaused(module string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, err := m.read(pausedKey(strings.TrimSpace(module)))
	if err != nil || len(data) == 0 {
		return false
	}
	var value uint8
	if err := rlp.DecodeBytes(data, &value); err != nil {
		return false
	}
	return value == 1
}
