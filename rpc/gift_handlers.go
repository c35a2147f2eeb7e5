package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"giftvault/crypto"
	"giftvault/native/common"
	"giftvault/native/gift"
)

const (
	codeGiftInvalidParams = -32051
	codeGiftNotFound      = -32052
	codeGiftForbidden     = -32053
	codeGiftConflict      = -32054
	codeGiftInternal      = -32055
)

type giftCreateParams struct {
	Sender    string `json:"sender"`
	Recipient uint64 `json:"recipient"`
	Token     string `json:"token"`
	Amount    string `json:"amount"`
	Skin      string `json:"skin"`
	Message   string `json:"message"`
}

type giftCreateMultiParams struct {
	Sender     string `json:"sender"`
	GroupID    uint64 `json:"groupId"`
	Token      string `json:"token"`
	Amount     string `json:"amount"`
	Dividend   string `json:"dividend"`
	SplitCount uint32 `json:"splitCount"`
	Skin       string `json:"skin"`
	Message    string `json:"message"`
}

type giftCreateCodeParams struct {
	Sender     string `json:"sender"`
	CodeHash   string `json:"codeHash"`
	Token      string `json:"token"`
	Amount     string `json:"amount"`
	Dividend   string `json:"dividend"`
	SplitCount uint32 `json:"splitCount"`
	Skin       string `json:"skin"`
	Message    string `json:"message"`
}

type giftClaimParams struct {
	Caller    string `json:"caller"`
	ID        string `json:"id"`
	Recipient uint64 `json:"recipient"`
	Payout    string `json:"payout"`
	Amount    string `json:"amount,omitempty"`
}

type giftClaimCodeParams struct {
	Caller    string `json:"caller"`
	CodeHash  string `json:"codeHash"`
	Recipient uint64 `json:"recipient"`
	Payout    string `json:"payout"`
	Amount    string `json:"amount"`
}

type giftBatchClaimParams struct {
	Caller string            `json:"caller"`
	Claims []giftClaimParams `json:"claims"`
}

type giftRefundParams struct {
	Caller string `json:"caller"`
	ID     string `json:"id"`
}

type giftIDParams struct {
	ID string `json:"id"`
}

type giftClaimInfoParams struct {
	ID        string `json:"id"`
	Recipient uint64 `json:"recipient"`
}

type giftCodeParams struct {
	CodeHash string `json:"codeHash"`
}

type giftCreateResult struct {
	ID string `json:"id"`
}

type giftOKResult struct {
	OK bool `json:"ok"`
}

type giftJSON struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Sender      string `json:"sender"`
	Recipient   uint64 `json:"recipient,omitempty"`
	GroupID     uint64 `json:"groupId,omitempty"`
	CodeHash    string `json:"codeHash,omitempty"`
	Token       string `json:"token"`
	Amount      string `json:"amount"`
	Dividend    string `json:"dividend"`
	SplitCount  uint32 `json:"splitCount"`
	CreatedAt   int64  `json:"createdAt"`
	ExpiresAt   int64  `json:"expiresAt"`
	Skin        string `json:"skin"`
	Message     string `json:"message"`
	FeeToken    string `json:"feeToken,omitempty"`
	FeePerSplit string `json:"feePerSplit,omitempty"`
}

type giftClaimInfoJSON struct {
	Amount    string `json:"amount"`
	ClaimedAt int64  `json:"claimedAt"`
}

type giftClaimStateJSON struct {
	Status        string `json:"status"`
	ClaimedCount  uint32 `json:"claimedCount"`
	ClaimedAmount string `json:"claimedAmount"`
}

func parseGVAddress(raw string) ([20]byte, error) {
	var out [20]byte
	addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return out, err
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

func parseHash32(raw string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, fmt.Errorf("invalid hex string: %w", err)
	}
	if len(decoded) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(decoded))
	}
	copy(out[:], decoded)
	return out, nil
}

func parsePositiveBigInt(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return value, nil
}

func parseDividend(raw string) (gift.DividendType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "fixed":
		return gift.DividendFixed, nil
	case "random":
		return gift.DividendRandom, nil
	default:
		return 0, fmt.Errorf("unknown dividend type %q", raw)
	}
}

func formatID(id [32]byte) string {
	return "0x" + hex.EncodeToString(id[:])
}

func decodeSingleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func writeGiftError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, gift.ErrNotFound):
		writeError(w, http.StatusNotFound, id, codeGiftNotFound, "not_found", err.Error())
	case errors.Is(err, gift.ErrUnauthorized), errors.Is(err, gift.ErrRefundNotSender):
		writeError(w, http.StatusForbidden, id, codeGiftForbidden, "forbidden", err.Error())
	case errors.Is(err, gift.ErrInvalidToken),
		errors.Is(err, gift.ErrAmountBelowMinimum),
		errors.Is(err, gift.ErrAmountNotDivisible),
		errors.Is(err, gift.ErrSplitCountOutOfRange),
		errors.Is(err, gift.ErrSkinTooLong),
		errors.Is(err, gift.ErrMessageTooLong):
		writeError(w, http.StatusBadRequest, id, codeGiftInvalidParams, "invalid_params", err.Error())
	case errors.Is(err, gift.ErrGiftIDInUse),
		errors.Is(err, gift.ErrCodeHashInUse),
		errors.Is(err, gift.ErrAlreadyClaimed),
		errors.Is(err, gift.ErrAlreadyRefunded),
		errors.Is(err, gift.ErrGiftExpired),
		errors.Is(err, gift.ErrClaimAmountExceeded),
		errors.Is(err, gift.ErrClaimCountExceeded),
		errors.Is(err, gift.ErrRefundTooEarly),
		errors.Is(err, common.ErrEntryBusy),
		errors.Is(err, common.ErrModulePaused):
		writeError(w, http.StatusConflict, id, codeGiftConflict, "conflict", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeGiftInternal, "internal_error", err.Error())
	}
}

func (s *Server) handleGiftCreate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params giftCreateParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	sender, err := parseGVAddress(params.Sender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	created, err := s.engine.CreateSingle(sender, params.Recipient, params.Token, amount, params.Skin, params.Message)
	if err != nil {
		writeGiftError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, giftCreateResult{ID: formatID(created.ID)})
}

func (s *Server) handleGiftCreateMulti(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params giftCreateMultiParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	sender, err := parseGVAddress(params.Sender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	dividend, err := parseDividend(params.Dividend)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	created, err := s.engine.CreateMulti(sender, params.GroupID, params.Token, amount, dividend, params.SplitCount, params.Skin, params.Message)
	if err != nil {
		writeGiftError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, giftCreateResult{ID: formatID(created.ID)})
}

func (s *Server) handleGiftCreateCode(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params giftCreateCodeParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	sender, err := parseGVAddress(params.Sender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	codeHash, err := parseHash32(params.CodeHash)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	dividend, err := parseDividend(params.Dividend)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	created, err := s.engine.CreateCode(sender, codeHash, params.Token, amount, dividend, params.SplitCount, params.Skin, params.Message)
	if err != nil {
		writeGiftError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, giftCreateResult{ID: formatID(created.ID)})
}

func (s *Server) claimItemFromParams(params giftClaimParams) (gift.ClaimItem, error) {
	var item gift.ClaimItem
	id, err := parseHash32(params.ID)
	if err != nil {
		return item, err
	}
	payout, err := parseGVAddress(params.Payout)
	if err != nil {
		return item, err
	}
	item = gift.ClaimItem{GiftID: id, Recipient: params.Recipient, Payout: payout}
	if strings.TrimSpace(params.Amount) != "" {
		amount, err := parsePositiveBigInt(params.Amount)
		if err != nil {
			return item, err
		}
		item.Amount = amount
	}
	return item, nil
}

func (s *Server) handleGiftClaim(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params giftClaimParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseGVAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	item, err := s.claimItemFromParams(params)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.engine.Claim(caller, item); err != nil {
		writeGiftError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, giftOKResult{OK: true})
}

func (s *Server) handleGiftClaimCode(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params giftClaimCodeParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseGVAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	codeHash, err := parseHash32(params.CodeHash)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	payout, err := parseGVAddress(params.Payout)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.engine.ClaimByCode(caller, codeHash, params.Recipient, payout, amount); err != nil {
		writeGiftError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, giftOKResult{OK: true})
}

func (s *Server) handleGiftBatchClaim(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params giftBatchClaimParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseGVAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	items := make([]gift.ClaimItem, 0, len(params.Claims))
	for _, claim := range params.Claims {
		item, err := s.claimItemFromParams(claim)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
			return
		}
		items = append(items, item)
	}
	if err := s.engine.BatchClaim(caller, items); err != nil {
		writeGiftError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, giftOKResult{OK: true})
}

func (s *Server) handleGiftRefund(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params giftRefundParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseGVAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseHash32(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.engine.Refund(caller, id); err != nil {
		writeGiftError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, giftOKResult{OK: true})
}

func (s *Server) handleGiftGet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params giftIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseHash32(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	record, err := s.engine.Gift(id)
	if err != nil {
		writeGiftError(w, req.ID, err)
		return
	}
	result := giftJSON{
		ID:         formatID(record.ID),
		Kind:       record.Kind.String(),
		Sender:     crypto.NewAddress(crypto.GVPrefix, record.Sender[:]).String(),
		Recipient:  record.Recipient,
		GroupID:    record.GroupID,
		Token:      record.Token,
		Amount:     record.Amount.String(),
		Dividend:   record.Dividend.String(),
		SplitCount: record.SplitCount,
		CreatedAt:  record.CreatedAt,
		ExpiresAt:  record.ExpiresAt,
		Skin:       record.Skin,
		Message:    record.Message,
	}
	if record.Kind == gift.KindCode {
		result.CodeHash = formatID(record.CodeHash)
	}
	if feeToken, feePerSplit, err := s.engine.GasFeeOf(id); err == nil && feeToken != "" {
		result.FeeToken = feeToken
		result.FeePerSplit = feePerSplit.String()
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleGiftClaimInfo(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params giftClaimInfoParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseHash32(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	info, ok, err := s.engine.ClaimInfoOf(id, params.Recipient)
	if err != nil {
		writeGiftError(w, req.ID, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeGiftNotFound, "not_found", "no claim recorded for recipient")
		return
	}
	writeResult(w, req.ID, giftClaimInfoJSON{Amount: info.Amount.String(), ClaimedAt: info.ClaimedAt})
}

func (s *Server) handleGiftClaimState(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params giftIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseHash32(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	st, err := s.engine.ClaimStateOf(id)
	if err != nil {
		writeGiftError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, giftClaimStateJSON{
		Status:        st.Status.String(),
		ClaimedCount:  st.ClaimedCount,
		ClaimedAmount: st.ClaimedAmount.String(),
	})
}

func (s *Server) handleGiftCodeHistory(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params giftCodeParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	codeHash, err := parseHash32(params.CodeHash)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	history, err := s.engine.CodeHistory(codeHash)
	if err != nil {
		writeGiftError(w, req.ID, err)
		return
	}
	ids := make([]string, 0, len(history))
	for _, id := range history {
		ids = append(ids, formatID(id))
	}
	writeResult(w, req.ID, ids)
}

func (s *Server) handleGiftCodeCurrent(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params giftCodeParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	codeHash, err := parseHash32(params.CodeHash)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	current, err := s.engine.CodeCurrent(codeHash)
	if err != nil {
		writeGiftError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, giftCreateResult{ID: formatID(current)})
}

func (s *Server) handleGiftCodeAvailable(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params giftCodeParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	codeHash, err := parseHash32(params.CodeHash)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	available, err := s.engine.CodeAvailable(codeHash)
	if err != nil {
		writeGiftError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"available": available})
}
