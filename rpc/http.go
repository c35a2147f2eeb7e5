package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"giftvault/core/state"
	"giftvault/native/gift"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
)

// Server exposes the gift ledger over JSON-RPC 2.0 on a single POST endpoint.
// Mutating methods require the bearer token configured via GIFTVAULT_RPC_TOKEN.
type Server struct {
	engine    *gift.Engine
	state     *state.Manager
	authToken string
}

func NewServer(engine *gift.Engine, st *state.Manager) *Server {
	token := strings.TrimSpace(os.Getenv("GIFTVAULT_RPC_TOKEN"))
	return &Server{engine: engine, state: st, authToken: token}
}

// Handler returns the HTTP handler serving the RPC endpoint, for callers that
// want to mount it on their own server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	return mux
}

func (s *Server) Start(addr string) error {
	fmt.Printf("Starting JSON-RPC server on %s\n", addr)
	return http.ListenAndServe(addr, s.Handler())
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	switch req.Method {
	case "gift_create":
		s.authenticated(w, r, req, s.handleGiftCreate)
	case "gift_createMulti":
		s.authenticated(w, r, req, s.handleGiftCreateMulti)
	case "gift_createCode":
		s.authenticated(w, r, req, s.handleGiftCreateCode)
	case "gift_claim":
		s.authenticated(w, r, req, s.handleGiftClaim)
	case "gift_claimCode":
		s.authenticated(w, r, req, s.handleGiftClaimCode)
	case "gift_batchClaim":
		s.authenticated(w, r, req, s.handleGiftBatchClaim)
	case "gift_refund":
		s.authenticated(w, r, req, s.handleGiftRefund)
	case "gift_get":
		s.handleGiftGet(w, r, req)
	case "gift_claimInfo":
		s.handleGiftClaimInfo(w, r, req)
	case "gift_claimState":
		s.handleGiftClaimState(w, r, req)
	case "gift_codeHistory":
		s.handleGiftCodeHistory(w, r, req)
	case "gift_codeCurrent":
		s.handleGiftCodeCurrent(w, r, req)
	case "gift_codeAvailable":
		s.handleGiftCodeAvailable(w, r, req)
	case "gift_registerToken":
		s.authenticated(w, r, req, s.handleAdminRegisterToken)
	case "gift_setGasPrice":
		s.authenticated(w, r, req, s.handleAdminSetGasPrice)
	case "gift_pause":
		s.authenticated(w, r, req, s.handleAdminPause)
	case "gift_resume":
		s.authenticated(w, r, req, s.handleAdminResume)
	case "gift_grantRole":
		s.authenticated(w, r, req, s.handleAdminGrantRole)
	case "gift_revokeRole":
		s.authenticated(w, r, req, s.handleAdminRevokeRole)
	case "gift_sweep":
		s.authenticated(w, r, req, s.handleAdminSweep)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
	}
}

type handlerFunc func(http.ResponseWriter, *http.Request, *RPCRequest)

func (s *Server) authenticated(w http.ResponseWriter, r *http.Request, req *RPCRequest, next handlerFunc) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	next(w, r, req)
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}
