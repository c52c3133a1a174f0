package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"escrowd/crypto"
	"escrowd/native/escrow"
)

type createRequest struct {
	Seller   string `json:"seller"`
	Arbiter  string `json:"arbiter"`
	Deadline int64  `json:"deadline"`
}

type createResponse struct {
	ID uint64 `json:"id"`
}

type fundRequest struct {
	Value string `json:"value"`
}

type escrowJSON struct {
	ID                      uint64 `json:"id"`
	Buyer                   string `json:"buyer"`
	Seller                  string `json:"seller"`
	Arbiter                 string `json:"arbiter"`
	DepositedAmount         string `json:"depositedAmount"`
	PlatformFee             string `json:"platformFee"`
	CreatedAt               int64  `json:"createdAt"`
	DeliveryDeadline        int64  `json:"deliveryDeadline"`
	Status                  string `json:"status"`
	SellerConfirmedDelivery bool   `json:"sellerConfirmedDelivery"`
	BuyerReleasedPayment    bool   `json:"buyerReleasedPayment"`
}

type accountJSON struct {
	Address         string `json:"address"`
	Balance         string `json:"balance"`
	AccumulatedFees string `json:"accumulatedFees"`
}

type statusJSON struct {
	Paused       bool   `json:"paused"`
	FeeBps       uint32 `json:"feeBps"`
	FeeRecipient string `json:"feeRecipient"`
	NextID       uint64 `json:"nextId"`
}

func formatEscrow(esc *escrow.Escrow) escrowJSON {
	return escrowJSON{
		ID:                      esc.ID,
		Buyer:                   esc.Buyer.String(),
		Seller:                  esc.Seller.String(),
		Arbiter:                 esc.Arbiter.String(),
		DepositedAmount:         amountString(esc.DepositedAmount),
		PlatformFee:             amountString(esc.PlatformFee),
		CreatedAt:               esc.CreatedAt,
		DeliveryDeadline:        esc.DeliveryDeadline,
		Status:                  esc.Status.String(),
		SellerConfirmedDelivery: esc.SellerConfirmedDelivery,
		BuyerReleasedPayment:    esc.BuyerReleasedPayment,
	}
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "caller unavailable")
		return
	}
	var req createRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", err.Error())
		return
	}
	seller, err := parseAddressField("seller", req.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", err.Error())
		return
	}
	arbiter, err := parseAddressField("arbiter", req.Arbiter)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", err.Error())
		return
	}
	id, err := s.engine.Create(r.Context(), caller, seller, arbiter, req.Deadline)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createResponse{ID: id})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := escrowIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", err.Error())
		return
	}
	esc, err := s.engine.Escrow(id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, formatEscrow(esc))
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := s.actor(w, r)
	if !ok {
		return
	}
	var req fundRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", err.Error())
		return
	}
	value, err := parseAmount(req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", err.Error())
		return
	}
	if err := s.engine.Fund(r.Context(), caller, id, value); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.respondEscrow(w, r, id)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := s.actor(w, r)
	if !ok {
		return
	}
	if err := s.engine.ConfirmDelivery(r.Context(), caller, id); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.respondEscrow(w, r, id)
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := s.actor(w, r)
	if !ok {
		return
	}
	if err := s.engine.ReleasePayment(r.Context(), caller, id); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.respondEscrow(w, r, id)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := crypto.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", fmt.Sprintf("invalid address: %v", err))
		return
	}
	balance, err := s.engine.Balance(addr)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	fees, err := s.engine.AccumulatedFees(addr)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountJSON{
		Address:         addr.String(),
		Balance:         amountString(balance),
		AccumulatedFees: amountString(fees),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	paused, err := s.engine.Paused()
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	next, err := s.engine.NextID()
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusJSON{
		Paused:       paused,
		FeeBps:       s.engine.FeeBps(),
		FeeRecipient: s.engine.FeeRecipient().String(),
		NextID:       next,
	})
}

// actor resolves the caller and the escrow id shared by the mutating escrow
// routes. It writes the error response itself when ok is false.
func (s *Server) actor(w http.ResponseWriter, r *http.Request) (crypto.Address, uint64, bool) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "caller unavailable")
		return crypto.ZeroAddress, 0, false
	}
	id, err := escrowIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", err.Error())
		return crypto.ZeroAddress, 0, false
	}
	return caller, id, true
}

func (s *Server) respondEscrow(w http.ResponseWriter, r *http.Request, id uint64) {
	esc, err := s.engine.Escrow(id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, formatEscrow(esc))
}

func escrowIDParam(r *http.Request) (uint64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "id"))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid escrow id %q", raw)
	}
	return id, nil
}

func parseAddressField(field, value string) (crypto.Address, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return crypto.ZeroAddress, fmt.Errorf("%s is required", field)
	}
	addr, err := crypto.ParseAddress(trimmed)
	if err != nil {
		return crypto.ZeroAddress, fmt.Errorf("invalid %s: %w", field, err)
	}
	return addr, nil
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, errors.New("value is required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid value %q", trimmed)
	}
	return amount, nil
}

func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body required")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
