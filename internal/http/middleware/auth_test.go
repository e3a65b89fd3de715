// README: Tests for the auth, role and recovery middleware.
package middleware_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tejith7/project-bolt/internal/http/middleware"
	"github.com/tejith7/project-bolt/internal/infra"
	"github.com/tejith7/project-bolt/internal/logger"
)

// stubVerifier is a test double for infra.TokenVerifier.
type stubVerifier struct {
	token *infra.Token
	err   error
}

func (s *stubVerifier) VerifyIDToken(_ context.Context, _ string) (*infra.Token, error) {
	return s.token, s.err
}

func newTestRouter(verifier infra.TokenVerifier, extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Auth(verifier))
	r.Use(extra...)
	r.GET("/test", func(c *gin.Context) {
		uid := middleware.CallerUID(c)
		role := middleware.CallerRole(c)
		c.JSON(http.StatusOK, gin.H{"uid": uid, "role": role})
	})
	return r
}

func get(r *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth_Rejects(t *testing.T) {
	ok := &stubVerifier{token: &infra.Token{UID: "user1"}}
	tests := []struct {
		name     string
		verifier infra.TokenVerifier
		header   string
	}{
		{"missing header", ok, ""},
		{"wrong scheme", ok, "Token sometoken"},
		{"empty bearer", ok, "Bearer "},
		{"verifier error", &stubVerifier{err: errors.New("bad token")}, "Bearer invalidtoken"},
		{"empty uid", &stubVerifier{token: &infra.Token{}}, "Bearer x"},
	}
	for _, tt := range tests {
		if w := get(newTestRouter(tt.verifier), tt.header); w.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", tt.name, w.Code)
		}
	}
}

func TestAuth_ValidToken_UIDAndRolePopulated(t *testing.T) {
	token := &infra.Token{UID: "driver123", Claims: map[string]interface{}{"role": "driver"}}
	w := get(newTestRouter(&stubVerifier{token: token}), "Bearer validtoken")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"uid":"driver123"`) || !strings.Contains(body, `"role":"driver"`) {
		t.Errorf("unexpected body %s", body)
	}
}

func TestResolveRole_FillsMissingClaim(t *testing.T) {
	token := &infra.Token{UID: "rider456", Claims: map[string]interface{}{}}
	lookup := func(_ context.Context, uid string) (string, error) {
		if uid == "rider456" {
			return "rider", nil
		}
		return "", errors.New("unknown")
	}
	w := get(newTestRouter(&stubVerifier{token: token}, middleware.ResolveRole(lookup)), "Bearer validtoken")
	if !strings.Contains(w.Body.String(), `"role":"rider"`) {
		t.Fatalf("role not resolved: %s", w.Body.String())
	}

	claimed := &infra.Token{UID: "rider456", Claims: map[string]interface{}{"role": "driver"}}
	w = get(newTestRouter(&stubVerifier{token: claimed}, middleware.ResolveRole(lookup)), "Bearer validtoken")
	if !strings.Contains(w.Body.String(), `"role":"driver"`) {
		t.Fatalf("claim should win over lookup: %s", w.Body.String())
	}
}

func TestRequireRole(t *testing.T) {
	rider := &infra.Token{UID: "u1", Claims: map[string]interface{}{"role": "rider"}}
	if w := get(newTestRouter(&stubVerifier{token: rider}, middleware.RequireRole("driver")), "Bearer t"); w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
	driver := &infra.Token{UID: "u2", Claims: map[string]interface{}{"role": "driver"}}
	if w := get(newTestRouter(&stubVerifier{token: driver}, middleware.RequireRole("driver")), "Bearer t"); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	r := gin.New()
	r.Use(middleware.Recovery(logger.NewWithWriter(&buf, "INFO")))
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if !strings.Contains(buf.String(), "kaboom") {
		t.Fatalf("panic not logged: %s", buf.String())
	}
}
