package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"portal/internal/policy"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type stubAuthenticator struct {
	actor policy.Actor
	err   error
}

func (s stubAuthenticator) Authenticate(context.Context, string) (policy.Actor, error) {
	return s.actor, s.err
}

func TestAuthMiddleware(t *testing.T) {
	alice := policy.Actor{UserID: "u1", Username: "alice", Role: policy.RoleNormal}
	var seen policy.Actor
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		header string
		authn  Authenticator
		status int
	}{
		{"missing header", "", stubAuthenticator{actor: alice}, http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", stubAuthenticator{actor: alice}, http.StatusUnauthorized},
		{"rejected token", "Bearer bad", stubAuthenticator{err: errors.New("expired")}, http.StatusUnauthorized},
		{"valid token", "Bearer good", stubAuthenticator{actor: alice}, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = policy.Actor{}
			req := httptest.NewRequest(http.MethodGet, "/files", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			AuthMiddleware(tt.authn, zerolog.Nop())(next).ServeHTTP(rr, req)
			assert.Equal(t, tt.status, rr.Code)
			if tt.status == http.StatusNoContent {
				assert.Equal(t, alice, seen)
			}
		})
	}
}

func TestActorFromContext_Empty(t *testing.T) {
	_, ok := ActorFromContext(context.Background())
	assert.False(t, ok)
}

func TestLoggerMiddleware_RecordsStatus(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	rr := httptest.NewRecorder()
	LoggerMiddleware(zerolog.Nop(), nil)(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/phase", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)
}
