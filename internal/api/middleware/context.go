package middleware

import (
	"context"
	"net/http"
)

type contextKey string

const adminKey contextKey = "admin_address"

// SetAdmin stores the authenticated admin address.
func SetAdmin(ctx context.Context, address string) context.Context {
	return context.WithValue(ctx, adminKey, address)
}

// GetAdmin returns the admin address set by RequireAdmin.
func GetAdmin(r *http.Request) (string, bool) {
	address, ok := r.Context().Value(adminKey).(string)
	return address, ok
}
