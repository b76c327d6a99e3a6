package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAuthz = AuthzConfig{Secret: "jwt-secret", Issuer: "fulfillment", Audience: "shop-api"}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func claimsFor(perms ...string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":   testAuthz.Issuer,
		"aud":   testAuthz.Audience,
		"sub":   "admin-bot",
		"exp":   now.Add(time.Minute).Unix(),
		"perms": perms,
	}
}

func authzEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin", NewAuthz(testAuthz).Require("orders.read", "orders.admin"), func(c *gin.Context) {
		c.String(http.StatusOK, ClientID(c))
	})
	return r
}

func TestRequire(t *testing.T) {
	r := authzEngine()
	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage", "Bearer not.a.jwt", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, "other", claimsFor("orders.read", "orders.admin")), http.StatusUnauthorized},
		{"missing perm", "Bearer " + signToken(t, testAuthz.Secret, claimsFor("orders.read")), http.StatusForbidden},
		{"ok", "Bearer " + signToken(t, testAuthz.Secret, claimsFor("orders.read", "orders.admin")), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, "admin-bot", w.Body.String())
			}
		})
	}
}

func TestRequireChecksIssuerAudienceExpiry(t *testing.T) {
	r := authzEngine()
	for name, mutate := range map[string]func(jwt.MapClaims){
		"issuer":   func(c jwt.MapClaims) { c["iss"] = "someone-else" },
		"audience": func(c jwt.MapClaims) { c["aud"] = "other-api" },
		"expired":  func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() },
	} {
		t.Run(name, func(t *testing.T) {
			claims := claimsFor("orders.read", "orders.admin")
			mutate(claims)
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			req.Header.Set("Authorization", "Bearer "+signToken(t, testAuthz.Secret, claims))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}
