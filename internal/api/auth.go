package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ezelectronics/ezelectronics-go-app/internal/middleware"
	"github.com/ezelectronics/ezelectronics-go-app/internal/models"
	"github.com/ezelectronics/ezelectronics-go-app/internal/services"
)

// userHandler is a handler that runs on behalf of a resolved user
type userHandler func(w http.ResponseWriter, r *http.Request, user *models.User)

// authorize resolves the acting user from the username header and checks
// their role. No roles means any known user.
func (a *App) authorize(next userHandler, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := strings.TrimSpace(r.Header.Get(middleware.UsernameHeader))
		if username == "" {
			a.writeError(w, r, errUnauthenticated)
			return
		}

		user, err := a.userService.GetByUsername(r.Context(), username)
		if errors.Is(err, services.ErrUserNotFound) {
			a.writeError(w, r, fmt.Errorf("%w: %s", errUnauthenticated, username))
			return
		}
		if err != nil {
			a.writeError(w, r, err)
			return
		}

		if len(roles) > 0 && !user.HasRole(roles...) {
			a.writeError(w, r, fmt.Errorf("%w: %s", errForbidden, user.Role))
			return
		}

		next(w, r, user)
	}
}

// parseDate parses an optional YYYY-MM-DD date. An empty string yields nil.
func parseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, fmt.Errorf("%w: date %q is not YYYY-MM-DD", errInvalidInput, value)
	}
	return &t, nil
}
