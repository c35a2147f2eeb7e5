package rpc

import (
	"fmt"
	"net/http"
	"strings"

	"giftvault/native/gift"
)

type adminRegisterTokenParams struct {
	Caller   string `json:"caller"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
}

type adminSetGasPriceParams struct {
	Caller   string `json:"caller"`
	Token    string `json:"token"`
	PerSplit string `json:"perSplit"`
}

type adminCallerParams struct {
	Caller string `json:"caller"`
}

type adminRoleParams struct {
	Caller  string `json:"caller"`
	Role    string `json:"role"`
	Address string `json:"address"`
}

type adminSweepParams struct {
	Caller string `json:"caller"`
	Token  string `json:"token"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (s *Server) requireAdmin(raw string) ([20]byte, error) {
	caller, err := parseGVAddress(raw)
	if err != nil {
		return caller, err
	}
	if !s.state.HasRole(gift.RoleAdmin, caller[:]) {
		return caller, gift.ErrUnauthorized
	}
	return caller, nil
}

func (s *Server) handleAdminRegisterToken(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params adminRegisterTokenParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	if _, err := s.requireAdmin(params.Caller); err != nil {
		writeGiftError(w, req.ID, err)
		return
	}
	if err := s.state.RegisterToken(params.Symbol, params.Name, params.Decimals); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	writeResult(w, req.ID, giftOKResult{OK: true})
}

func (s *Server) handleAdminSetGasPrice(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params adminSetGasPriceParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	if _, err := s.requireAdmin(params.Caller); err != nil {
		writeGiftError(w, req.ID, err)
		return
	}
	perSplit, err := parsePositiveBigInt(params.PerSplit)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.state.SetGasQuote(params.Token, perSplit); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	writeResult(w, req.ID, giftOKResult{OK: true})
}

func (s *Server) handleAdminPause(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.setPaused(w, req, true)
}

func (s *Server) handleAdminResume(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.setPaused(w, req, false)
}

func (s *Server) setPaused(w http.ResponseWriter, req *RPCRequest, paused bool) {
	var params adminCallerParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	if _, err := s.requireAdmin(params.Caller); err != nil {
		writeGiftError(w, req.ID, err)
		return
	}
	if err := s.state.SetPaused(gift.ModuleName, paused); err != nil {
		writeGiftError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, giftOKResult{OK: true})
}

func validRole(role string) bool {
	switch role {
	case gift.RoleManager, gift.RoleAdmin:
		return true
	default:
		return false
	}
}

func (s *Server) handleAdminGrantRole(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.changeRole(w, req, true)
}

func (s *Server) handleAdminRevokeRole(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.changeRole(w, req, false)
}

func (s *Server) changeRole(w http.ResponseWriter, req *RPCRequest, grant bool) {
	var params adminRoleParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	if _, err := s.requireAdmin(params.Caller); err != nil {
		writeGiftError(w, req.ID, err)
		return
	}
	role := strings.TrimSpace(params.Role)
	if !validRole(role) {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", fmt.Sprintf("unknown role %q", params.Role))
		return
	}
	target, err := parseGVAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	if grant {
		err = s.state.SetRole(role, target[:])
	} else {
		err = s.state.UnsetRole(role, target[:])
	}
	if err != nil {
		writeGiftError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, giftOKResult{OK: true})
}

func (s *Server) handleAdminSweep(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params adminSweepParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseGVAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	to, err := parseGVAddress(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.engine.Sweep(caller, params.Token, to, amount); err != nil {
		writeGiftError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, giftOKResult{OK: true})
}
