package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Layr-Labs/eigenx-signing-go/pkg/session"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	EncodingUTF8 = "utf8"
	EncodingHex  = "hex"
)

type SignMessageRequest struct {
	Message  string `json:"message"`
	Encoding string `json:"encoding,omitempty" validate:"omitempty,oneof=utf8 hex"`
	Wait     bool   `json:"wait,omitempty"`
}

type SignTypedDataRequest struct {
	Domain *types.DomainDescriptor `json:"domain,omitempty"`
	Schema *types.TypeSchema       `json:"schema" validate:"required"`
	Value  types.StructuredValue   `json:"value" validate:"required"`
	Wait   bool                    `json:"wait,omitempty"`
}

type SignMailRequest struct {
	Message string `json:"message" validate:"required"`
	ToName  string `json:"toName,omitempty" validate:"omitempty,max=64"`
	To      string `json:"to,omitempty" validate:"omitempty,eth_addr"`
	Wait    bool   `json:"wait,omitempty"`
}

type SubmitResponse struct {
	Generation uint64           `json:"generation"`
	Snapshot   session.Snapshot `json:"snapshot"`
	Outcome    *session.Outcome `json:"outcome,omitempty"`
}

type ErrorResponse struct {
	Error  string               `json:"error"`
	Reason *types.FailureReason `json:"reason,omitempty"`
}

// handleSignMessage submits a personal message
func (s *Server) handleSignMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SignMessageRequest
	if !s.decodeAndValidate(w, r, &req, false) {
		return
	}

	content := []byte(req.Message)
	if req.Encoding == EncodingHex {
		decoded, err := hexutil.Decode(req.Message)
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid hex message: %v", err), http.StatusBadRequest)
			return
		}
		content = decoded
	}

	s.submit(w, r, types.NewPlainMessageRequest(content), req.Wait)
}

// handleSignTypedData submits typed data, bound to the server domain unless one is given
func (s *Server) handleSignTypedData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SignTypedDataRequest
	if !s.decodeAndValidate(w, r, &req, true) {
		return
	}

	domain := s.domain
	if req.Domain != nil {
		domain = *req.Domain
	}
	s.submit(w, r, types.NewTypedDataRequest(domain, *req.Schema, req.Value), req.Wait)
}

// handleSignMail submits a Message from the active account using the mail schema
func (s *Server) handleSignMail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SignMailRequest
	if !s.decodeAndValidate(w, r, &req, false) {
		return
	}

	toName := req.ToName
	if toName == "" {
		toName = types.DefaultRecipientName
	}
	to := common.HexToAddress(types.DefaultRecipientAddress)
	if req.To != "" {
		to = common.HexToAddress(req.To)
	}

	// Without an account the submit below reports NoActiveAccount
	from, _ := s.session.ActiveAccount(r.Context())

	mail := types.NewMailTypedData(s.domain, types.DefaultFromName(s.domain), from, toName, to,
		req.Message, s.now().UnixMilli())
	s.submit(w, r, mail, req.Wait)
}

// handleStatus returns the session snapshot
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.session.Snapshot())
}

// handleClearError drops the presented error
func (s *Server) handleClearError(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.session.ClearError()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}, useNumber bool) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if useNumber {
		decoder.UseNumber()
	}
	if err := decoder.Decode(dst); err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, req *types.SigningRequest, wait bool) {
	gen, err := s.session.Submit(r.Context(), req)
	if err != nil {
		var reason *types.FailureReason
		switch {
		case errors.Is(err, session.ErrClosed):
			http.Error(w, "Session is closed", http.StatusServiceUnavailable)
		case errors.As(err, &reason) && reason.Kind == types.FailureNoActiveAccount:
			s.writeJSON(w, http.StatusConflict, ErrorResponse{Error: reason.Error(), Reason: reason})
		case errors.As(err, &reason):
			s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: reason.Error(), Reason: reason})
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	if !wait {
		s.writeJSON(w, http.StatusAccepted, SubmitResponse{Generation: gen, Snapshot: s.session.Snapshot()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.waitTimeout)
	defer cancel()

	outcome, err := s.session.Wait(ctx, gen)
	switch {
	case errors.Is(err, session.ErrSuperseded):
		s.writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error()})
		return
	case errors.Is(err, session.ErrClosed):
		http.Error(w, "Session is closed", http.StatusServiceUnavailable)
		return
	case errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "Timed out waiting for the signer", http.StatusGatewayTimeout)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if outcome.State == session.StateRejected {
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, SubmitResponse{Generation: gen, Snapshot: s.session.Snapshot(), Outcome: outcome})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Sugar().Errorw("Failed to encode response", "error", err)
	}
}
