package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/operator-service/internal/api/response"
)

// AdminHeader carries the caller's admin address on admin routes.
const AdminHeader = "Admin"

// AdminAuth gates admin routes on an address allow-list.
type AdminAuth struct {
	allowed map[string]struct{}
}

// NewAdminAuth creates the admin gate. Addresses are compared
// case-insensitively.
func NewAdminAuth(allowed []string) *AdminAuth {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			set[a] = struct{}{}
		}
	}
	return &AdminAuth{allowed: set}
}

// RequireAdmin rejects requests whose Admin header is missing or not in the
// allow-list, and stores the admin address in the request context otherwise.
func (a *AdminAuth) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admin := strings.TrimSpace(r.Header.Get(AdminHeader))
		if admin == "" {
			response.Error(w, http.StatusBadRequest, "Admin header is empty.")
			return
		}
		if _, ok := a.allowed[strings.ToLower(admin)]; !ok {
			slog.Warn("admin route rejected", "admin", admin, "path", r.URL.Path)
			response.Error(w, http.StatusUnauthorized, "Access admin route failed due to invalid admin address.")
			return
		}
		next.ServeHTTP(w, r.WithContext(SetAdmin(r.Context(), strings.ToLower(admin))))
	})
}
