package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jmcleod/ironpki/pki"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func writePEM(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/x-pem-file")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// statusFor maps a PKI error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pki.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, pki.ErrCAExists), errors.Is(err, pki.ErrCertExists):
		return http.StatusConflict
	case errors.Is(err, pki.ErrPKINotFound), errors.Is(err, pki.ErrCANotFound):
		return http.StatusPreconditionFailed
	case errors.Is(err, pki.ErrCertNotFound), errors.Is(err, pki.ErrNoCRL):
		return http.StatusNotFound
	case errors.Is(err, pki.ErrBadCAPassword):
		return http.StatusForbidden
	case errors.Is(err, pki.ErrPrivateKeyEncrypted):
		return http.StatusPreconditionRequired
	case errors.Is(err, pki.ErrCommandFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func mapError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("internal error", "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, ErrorResponse{Error: msg, Code: pki.ErrorKind(err)})
}
