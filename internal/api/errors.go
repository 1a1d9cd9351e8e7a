package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"p2pswap/internal/custody"
	"p2pswap/internal/matcher"
	"p2pswap/internal/registry"
	"p2pswap/internal/replication"
	"p2pswap/internal/venue"
)

// statusFor maps engine sentinels onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, matcher.ErrSameToken),
		errors.Is(err, matcher.ErrZeroAmount),
		errors.Is(err, matcher.ErrZeroMinAmountOut),
		errors.Is(err, matcher.ErrSlippageTooHigh),
		errors.Is(err, matcher.ErrDeadlineOverflow),
		errors.Is(err, matcher.ErrConfigOutOfRange),
		errors.Is(err, matcher.ErrZeroAddress),
		errors.Is(err, custody.ErrZeroAddress):
		return http.StatusBadRequest
	case errors.Is(err, matcher.ErrNotIntentOwner),
		errors.Is(err, matcher.ErrNotRelayer),
		errors.Is(err, matcher.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, matcher.ErrIntentNotFound):
		return http.StatusNotFound
	case errors.Is(err, matcher.ErrIntentInactive),
		errors.Is(err, matcher.ErrIntentProcessed),
		errors.Is(err, matcher.ErrDeadlineNotReached),
		errors.Is(err, matcher.ErrReentrantCall),
		errors.Is(err, registry.ErrDuplicateIntent),
		errors.Is(err, custody.ErrInsufficientBalance),
		errors.Is(err, custody.ErrInsufficientAllowance),
		errors.Is(err, custody.ErrBalanceOverflow):
		return http.StatusConflict
	case errors.Is(err, venue.ErrPoolNotFound),
		errors.Is(err, venue.ErrInsufficientOutput),
		errors.Is(err, venue.ErrInsufficientLiquidity),
		errors.Is(err, venue.ErrTransactionExpired),
		errors.Is(err, venue.ErrMathOverflow),
		errors.Is(err, matcher.ErrPriceOverflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, replication.ErrNotLeader):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeEngineError reports err with the status its sentinel maps to.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Errorf("%s %s failed: %v", r.Method, r.URL.Path, err)
	}
	writeError(w, status, err.Error())
}
