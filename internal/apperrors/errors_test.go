package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestValidation(t *testing.T) {
	t.Parallel()
	err := Validation("agreementId", "`agreementId` is required")

	if !errors.Is(err, ErrValidation) {
		t.Error("expected error to match ErrValidation")
	}
	if err.Error() != "`agreementId` is required" {
		t.Errorf("unexpected message %q", err.Error())
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Field != "agreementId" {
		t.Errorf("expected field 'agreementId', got %q", appErr.Field)
	}
}

func TestNotFound(t *testing.T) {
	t.Parallel()
	err := NotFound("job", "No such index 3 in this compute job")

	if !errors.Is(err, ErrNotFound) {
		t.Error("expected error to match ErrNotFound")
	}
	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Resource != "job" {
		t.Errorf("expected resource 'job', got %q", appErr.Resource)
	}
}

func TestUpstreamHidesCause(t *testing.T) {
	t.Parallel()
	cause := errors.New("dial tcp 10.0.0.1:6443: connection refused")
	err := Upstream("cluster.createWorkflow", cause)

	if !errors.Is(err, ErrUpstream) {
		t.Error("expected error to match ErrUpstream")
	}
	if err.Error() != "cluster.createWorkflow failed" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if got := Detail(err); got != "cluster.createWorkflow failed: "+cause.Error() {
		t.Errorf("unexpected detail %q", got)
	}
}

func TestInternalHidesCause(t *testing.T) {
	t.Parallel()
	err := Internal("store.createJob", errors.New("pq: secret detail"))
	if err.Error() != "An unexpected error occurred" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("owner", "bad"), http.StatusBadRequest},
		{"authentication", Authentication("bad signature"), http.StatusBadRequest},
		{"unauthorized", Unauthorized("not allowed"), http.StatusUnauthorized},
		{"not found", NotFound("job", "missing"), http.StatusNotFound},
		{"conflict", Conflict("job", "in use"), http.StatusBadRequest},
		{"upstream", Upstream("op", errors.New("x")), http.StatusBadGateway},
		{"fetch", Fetch("op", "download failed", errors.New("x")), http.StatusBadRequest},
		{"internal", Internal("op", errors.New("x")), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("outer: %w", Unauthorized("no")), http.StatusUnauthorized},
		{"plain", errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}
