package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/otcheredev/clinicflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func sign(t *testing.T, secret string, claims models.JWTClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func claimsFor(id uuid.UUID, role models.Role) models.JWTClaims {
	return models.JWTClaims{
		UserID: id,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "clinicflow",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func echoPrincipal() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.Write([]byte(string(p.Role) + ":" + p.ID.String()))
	})
}

func TestIdentity(t *testing.T) {
	id := uuid.New()
	mw := Identity(IdentityConfig{Secret: []byte(testSecret), Issuer: "clinicflow"})

	expired := claimsFor(id, models.RoleDoctor)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	wrongIssuer := claimsFor(id, models.RoleDoctor)
	wrongIssuer.Issuer = "someone-else"

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
		wantBody   string
	}{
		{"bearer header", "Bearer " + sign(t, testSecret, claimsFor(id, models.RoleDoctor)), "", http.StatusOK, "doctor:" + id.String()},
		{"query parameter", "", sign(t, testSecret, claimsFor(id, models.RolePatient)), http.StatusOK, "patient:" + id.String()},
		{"missing", "", "", http.StatusUnauthorized, ""},
		{"bad scheme", "Basic abc", "", http.StatusUnauthorized, ""},
		{"wrong secret", "Bearer " + sign(t, "another-secret-another-secret", claimsFor(id, models.RoleDoctor)), "", http.StatusUnauthorized, ""},
		{"expired", "Bearer " + sign(t, testSecret, expired), "", http.StatusUnauthorized, ""},
		{"wrong issuer", "Bearer " + sign(t, testSecret, wrongIssuer), "", http.StatusUnauthorized, ""},
		{"unknown role", "Bearer " + sign(t, testSecret, claimsFor(id, "nurse")), "", http.StatusUnauthorized, ""},
		{"nil user", "Bearer " + sign(t, testSecret, claimsFor(uuid.Nil, models.RoleDoctor)), "", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/"
			if tt.query != "" {
				target += "?access_token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			mw(echoPrincipal()).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestIdentity_RejectsNoneAlgorithm(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claimsFor(uuid.New(), models.RoleAdmin)).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	Identity(IdentityConfig{Secret: []byte(testSecret)})(echoPrincipal()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(models.RoleDoctor, models.RoleAdmin)(echoPrincipal())

	tests := []struct {
		name       string
		principal  *models.Principal
		wantStatus int
	}{
		{"doctor", &models.Principal{ID: uuid.New(), Role: models.RoleDoctor}, http.StatusOK},
		{"admin", &models.Principal{ID: uuid.New(), Role: models.RoleAdmin}, http.StatusOK},
		{"patient", &models.Principal{ID: uuid.New(), Role: models.RolePatient}, http.StatusForbidden},
		{"anonymous", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.principal != nil {
				req = req.WithContext(WithPrincipal(req.Context(), *tt.principal))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestRecovery(t *testing.T) {
	handler := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "ServerError")
}
