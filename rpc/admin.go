package rpc

import (
	"errors"
	"net/http"

	"escrowd/native/escrow"
	"escrowd/observability"
)

type pauseJSON struct {
	Paused bool `json:"paused"`
}

type healthJSON struct {
	Status   string `json:"status"`
	Vault    string `json:"vault,omitempty"`
	Required string `json:"required,omitempty"`
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.toggle(w, r, true)
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	s.toggle(w, r, false)
}

func (s *Server) toggle(w http.ResponseWriter, r *http.Request, pause bool) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "caller unavailable")
		return
	}
	var err error
	if pause {
		err = s.engine.Pause(r.Context(), caller)
	} else {
		err = s.engine.Unpause(r.Context(), caller)
	}
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.logger.Info("escrow pause toggled",
		"caller", caller.String(),
		"paused", pause)
	writeJSON(w, http.StatusOK, pauseJSON{Paused: pause})
}

// handleHealth runs a custody check. A release in flight holds the ledger, so
// the probe reports busy instead of waiting.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.VerifyCustody(r.Context())
	switch {
	case err == nil:
		observability.Custody().RecordCheck(report.Vault, report.Required(), true)
		writeJSON(w, http.StatusOK, healthJSON{
			Status:   "ok",
			Vault:    report.Vault.String(),
			Required: report.Required().String(),
		})
	case errors.Is(err, escrow.ErrReentrantCall):
		writeJSON(w, http.StatusOK, healthJSON{Status: "busy"})
	case errors.Is(err, escrow.ErrCustodyShortfall):
		observability.Custody().RecordCheck(report.Vault, report.Required(), false)
		s.logger.Error("custody shortfall",
			"vault", report.Vault.String(),
			"required", report.Required().String())
		writeJSON(w, http.StatusServiceUnavailable, healthJSON{
			Status:   "shortfall",
			Vault:    report.Vault.String(),
			Required: report.Required().String(),
		})
	default:
		s.logger.Error("custody check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, healthJSON{Status: "error"})
	}
}
