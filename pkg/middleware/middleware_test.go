package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"project-hub-backend/pkg/config"
	"project-hub-backend/pkg/models"
	"project-hub-backend/pkg/services"
)

type fakeAuth struct {
	actor services.Actor
	err   error
}

func (f fakeAuth) Authenticate(ctx context.Context, token string) (services.Actor, error) {
	return f.actor, f.err
}

var noContent = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, found := BearerToken(req)
	assert.False(t, found)

	req.Header.Set("Authorization", "Basic abc")
	_, found = BearerToken(req)
	assert.False(t, found)

	req.Header.Set("Authorization", "Bearer abc")
	token, found := BearerToken(req)
	assert.True(t, found)
	assert.Equal(t, "abc", token)
}

func TestAuthMiddleware(t *testing.T) {
	actor := services.Actor{ID: "u1", Role: models.RoleEmployee}
	var seen services.Actor
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetActorFromContext(r.Context())
	})

	rec := httptest.NewRecorder()
	AuthMiddleware(fakeAuth{actor: actor})(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer t")
	rec = httptest.NewRecorder()
	AuthMiddleware(fakeAuth{err: services.Unauthorized("Account is inactive")})(next).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Account is inactive")

	rec = httptest.NewRecorder()
	AuthMiddleware(fakeAuth{err: assert.AnError})(next).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	AuthMiddleware(fakeAuth{actor: actor})(next).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, actor, seen)
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(models.RolePM)(noContent)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithActor(req.Context(), services.Actor{ID: "c", Role: models.RoleCustomer}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = req.WithContext(WithActor(req.Context(), services.Actor{ID: "p", Role: models.RolePM}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestLoggerRecordsAuthenticatedUser(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := Logger(zap.New(core))(AuthMiddleware(fakeAuth{actor: services.Actor{ID: "u42", Role: models.RolePM}})(noContent))

	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	req.Header.Set("Authorization", "Bearer t")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "Request handled", entry.Message)
	assert.Equal(t, "u42", entry.ContextMap()["user"])
	assert.EqualValues(t, http.StatusNoContent, entry.ContextMap()["status"])
}

func TestLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	fail := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	Logger(zap.New(core))(fail).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[0].Level)
	assert.Equal(t, "anonymous", logs.All()[0].ContextMap()["user"])
}

func TestRecovery(t *testing.T) {
	boom := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	Recovery(&config.Config{Environment: "production"}, zaptest.NewLogger(t))(boom).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")

	rec = httptest.NewRecorder()
	Recovery(&config.Config{Environment: "development"}, zaptest.NewLogger(t))(boom).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "boom")
}

func TestContentTypeJSON(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		contentType string
		body        string
		code        int
	}{
		{"json", http.MethodPost, "application/json; charset=utf-8", "{}", http.StatusNoContent},
		{"multipart", http.MethodPost, "multipart/form-data; boundary=x", "--x--", http.StatusNoContent},
		{"form", http.MethodPost, "application/x-www-form-urlencoded", "a=b", http.StatusBadRequest},
		{"missing with body", http.MethodPut, "", "{}", http.StatusBadRequest},
		{"bodyless", http.MethodPost, "", "", http.StatusNoContent},
		{"get ignores header", http.MethodGet, "text/plain", "", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			ContentTypeJSON(noContent).ServeHTTP(rec, req)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestCORS(t *testing.T) {
	cfg := &config.Config{Environment: "production", AllowedOrigins: []string{"https://app.example.com"}}
	h := CORS(cfg)(noContent)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNormalize(t *testing.T) {
	var got *http.Request
	h := Normalize()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { got = r }))

	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	req.URL.Path = " /api/projects "
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-Host", "hub.example.com")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "/api/projects", got.URL.Path)
	assert.Equal(t, "https", got.URL.Scheme)
	assert.Equal(t, "hub.example.com", got.Host)
}
