package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mmeshcher/bakery-system/internal/model"
)

func TestAuthMiddleware_TokenRoundTrip(t *testing.T) {
	auth := NewAuthMiddleware("test-secret")

	token, err := auth.IssueToken(42, model.RoleEmployee)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	var gotID int64
	var gotRole model.Role
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = GetAccountIDFromContext(r.Context())
		gotRole, _ = GetRoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	auth.Middleware(next).ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusOK)
	}
	if gotID != 42 {
		t.Fatalf("account id = %d, want 42", gotID)
	}
	if gotRole != model.RoleEmployee {
		t.Fatalf("role = %s, want employee", gotRole)
	}
}

func TestAuthMiddleware_RejectsForeignToken(t *testing.T) {
	auth := NewAuthMiddleware("test-secret")
	other := NewAuthMiddleware("other-secret")

	token, err := other.IssueToken(1, model.RoleCustomer)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	called := false
	auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})).ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnauthorized)
	}
	if called {
		t.Fatalf("handler must not be called with a foreign token")
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	auth := NewAuthMiddleware("test-secret")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestOptional_GuestPassesThrough(t *testing.T) {
	auth := NewAuthMiddleware("test-secret")

	var hasID bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasID = GetAccountIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()

	auth.Optional(next).ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusOK)
	}
	if hasID {
		t.Fatalf("guest request must not carry an account id")
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name       string
		required   model.Role
		actual     model.Role
		wantStatus int
	}{
		{
			name:       "employee allowed",
			required:   model.RoleEmployee,
			actual:     model.RoleEmployee,
			wantStatus: http.StatusOK,
		},
		{
			name:       "manager inherits employee",
			required:   model.RoleEmployee,
			actual:     model.RoleManager,
			wantStatus: http.StatusOK,
		},
		{
			name:       "customer forbidden",
			required:   model.RoleEmployee,
			actual:     model.RoleCustomer,
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "employee is not manager",
			required:   model.RoleManager,
			actual:     model.RoleEmployee,
			wantStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(withIdentity(req.Context(), 1, tt.actual))
			rec := httptest.NewRecorder()

			RequireRole(tt.required)(next).ServeHTTP(rec, req)

			if rec.Result().StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Result().StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestRequireRole_Unauthenticated(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	RequireRole(model.RoleEmployee)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnauthorized)
	}
}
