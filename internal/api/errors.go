package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ezelectronics/ezelectronics-go-app/internal/middleware"
	"github.com/ezelectronics/ezelectronics-go-app/internal/services"
	"go.uber.org/zap"
)

var (
	errUnauthenticated = errors.New("unknown or missing " + middleware.UsernameHeader + " header")
	errForbidden       = errors.New("user role not allowed")
	errInvalidInput    = errors.New("invalid input")
)

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrProductNotFound),
		errors.Is(err, services.ErrCartNotFound),
		errors.Is(err, services.ErrProductNotInCart),
		errors.Is(err, services.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrProductAlreadyExists),
		errors.Is(err, services.ErrUserAlreadyExists),
		errors.Is(err, services.ErrEmptyProductStock),
		errors.Is(err, services.ErrLowProductStock):
		return http.StatusConflict
	case errors.Is(err, services.ErrArrivalDate),
		errors.Is(err, services.ErrEmptyCart):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidQuantity),
		errors.Is(err, services.ErrInvalidPrice),
		errors.Is(err, services.ErrInvalidCategory),
		errors.Is(err, services.ErrInvalidRole),
		errors.Is(err, errInvalidInput):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes err as a JSON body. Internal errors are logged and
// hidden from the client.
func (a *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
			zap.Error(err),
		)
		message = "internal server error"
	}
	writeJSON(w, status, map[string]string{"error": message})
}
