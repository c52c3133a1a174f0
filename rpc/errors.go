package rpc

import (
	"encoding/json"
	"net/http"

	"escrowd/native/escrow"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

// statusFor maps an engine error onto the HTTP status reported to clients.
func statusFor(err error) int {
	switch escrow.Classify(err) {
	case escrow.ClassNone:
		return http.StatusOK
	case escrow.ClassValidation:
		return http.StatusBadRequest
	case escrow.ClassAuthorization:
		return http.StatusForbidden
	case escrow.ClassNotFound:
		return http.StatusNotFound
	case escrow.ClassState:
		return http.StatusConflict
	case escrow.ClassPaused:
		return http.StatusLocked
	case escrow.ClassFunds:
		return http.StatusUnprocessableEntity
	case escrow.ClassTransfer:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeEngineError reports err with its mapped status. Internal failures do
// not leak their message.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	class := escrow.Classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("escrow request failed",
			"route", r.URL.Path,
			"error", err)
		message = http.StatusText(status)
	}
	code := string(class)
	if code == "" {
		code = "internal"
	}
	writeError(w, status, code, message)
}
