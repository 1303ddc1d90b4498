package auth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStaticAPIKeyValidatorParsing(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:alice:sql_lab|analyst, k2:bob:analyst")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}
	if validator.Len() != 2 {
		t.Fatalf("Len() = %d", validator.Len())
	}
	identity, ok := validator.Validate(context.Background(), "k1")
	if !ok {
		t.Fatal("expected key to be valid")
	}
	if identity.Principal != "alice" {
		t.Fatalf("Principal = %q", identity.Principal)
	}
	if !identity.HasRole(RoleAnalyst) || !identity.HasRole(RoleSQLLab) {
		t.Fatalf("Roles = %v", identity.Roles)
	}
	bob, _ := validator.Validate(context.Background(), "k2")
	if bob.HasRole(RoleSQLLab) {
		t.Fatal("bob should not have sql_lab")
	}
	if _, ok := validator.Validate(context.Background(), "nope"); ok {
		t.Fatal("unknown key should be rejected")
	}
}

func TestStaticAPIKeyValidatorEmptyKeyList(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("  ")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}
	if validator.Len() != 0 {
		t.Fatalf("Len() = %d", validator.Len())
	}
}

func TestStaticAPIKeyValidatorRejectsMalformedEntries(t *testing.T) {
	for _, raw := range []string{
		"invalid",
		"k1::analyst",
		"k1:alice:",
		"k1:alice:admin",
		"k1:alice:analyst,k1:bob:analyst",
	} {
		if _, err := NewStaticAPIKeyValidator(raw); err == nil {
			t.Fatalf("expected parse error for %q", raw)
		}
	}
}

func TestMiddlewareRequiresKey(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:alice:analyst")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}

	mw := Middleware(slog.New(slog.NewJSONHandler(io.Discard, nil)), validator, "/v1/health")
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/sessions", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error_code"] != "UNAUTHORIZED" {
		t.Fatalf("body = %v", body)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("invalid key status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("public path status = %d", rr.Code)
	}
}

func TestMiddlewareInjectsIdentity(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:alice:analyst")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}

	mw := Middleware(nil, validator)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatal("expected identity in context")
		}
		if identity.Principal != "alice" {
			t.Fatalf("Principal = %q", identity.Principal)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, header := range [][2]string{{"X-API-Key", "k1"}, {"Authorization", "Bearer k1"}} {
		req := httptest.NewRequest(http.MethodGet, "/v1/presets", nil)
		req.Header.Set(header[0], header[1])
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusNoContent {
			t.Fatalf("%s status = %d", header[0], rr.Code)
		}
	}
}

func TestStaticInjectsLocalIdentity(t *testing.T) {
	handler := Static(Local)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok || identity.Principal != "local" || !identity.HasRole(RoleSQLLab) {
			t.Fatalf("identity = %+v", identity)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/presets", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
}
