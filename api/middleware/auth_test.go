package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/farmlane-backend/pkg/auth"
	"github.com/angelmondragon/farmlane-backend/pkg/config"
	"github.com/angelmondragon/farmlane-backend/pkg/enums"
	"github.com/angelmondragon/farmlane-backend/pkg/types"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 10}

func mintToken(t *testing.T, issuedAt time.Time, userID uuid.UUID, role enums.ActorRole) string {
	t.Helper()
	token, err := auth.MintAccessToken(testJWT, issuedAt, auth.AccessTokenPayload{UserID: userID, Role: role})
	require.NoError(t, err)
	return token
}

func actorWithRole(role enums.ActorRole) types.Actor {
	return types.Actor{UserID: uuid.New(), Role: role}
}

func TestAuthRejectsBadCredentials(t *testing.T) {
	reached := false
	handler := Auth(testJWT, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	cases := map[string]struct {
		header  string
		message string
	}{
		"missing":  {"", "missing credentials"},
		"scheme":   {"Basic dXNlcjpwYXNz", "missing credentials"},
		"garbage":  {"Bearer invalid", "invalid token"},
		"expired":  {"Bearer " + mintToken(t, time.Now().Add(-time.Hour), uuid.New(), enums.ActorRoleBuyer), "token expired"},
		"bareword": {"Bearer", "missing credentials"},
	}
	for name, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)

		assert.Equal(t, http.StatusUnauthorized, resp.Code, name)
		assert.Contains(t, resp.Body.String(), tc.message, name)
		assert.NotEmpty(t, resp.Header().Get("WWW-Authenticate"), name)
	}
	assert.False(t, reached, "handler must not run without a valid token")
}

func TestAuthPutsActorOnContext(t *testing.T) {
	userID := uuid.New()
	var got types.Actor
	handler := Auth(testJWT, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = ActorFromContext(r.Context())
		assert.Equal(t, userID.String(), UserIDFromContext(r.Context()))
		assert.Equal(t, string(enums.ActorRoleFarmer), RoleFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, time.Now(), userID, enums.ActorRoleFarmer))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, types.Actor{UserID: userID, Role: enums.ActorRoleFarmer}, got)
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(nil, enums.ActorRoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		role   enums.ActorRole
		anon   bool
		status int
	}{
		{name: "admin", role: enums.ActorRoleAdmin, status: http.StatusNoContent},
		{name: "buyer", role: enums.ActorRoleBuyer, status: http.StatusForbidden},
		{name: "anonymous", anon: true, status: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if !tc.anon {
			req = req.WithContext(WithActor(req.Context(), actorWithRole(tc.role)))
		}
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		assert.Equal(t, tc.status, resp.Code, tc.name)
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]struct {
		token string
		ok    bool
	}{
		"Bearer abc":  {"abc", true},
		"bearer  abc": {"abc", true},
		"abc":         {"abc", true},
		"Basic abc":   {"", false},
		"Bearer ":     {"", false},
		"":            {"", false},
	}
	for header, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		got, ok := bearerToken(req)
		assert.Equal(t, want.token, got, header)
		assert.Equal(t, want.ok, ok, header)
	}
}
