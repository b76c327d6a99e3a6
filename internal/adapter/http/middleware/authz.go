package middleware

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ClientIDKey is where Require stores the authenticated client id.
const ClientIDKey = "client_id"

// ClientClaims is the token issued to storefront and admin clients.
type ClientClaims struct {
	Perms []string `json:"perms"`
	jwt.RegisteredClaims
}

type AuthzConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

type Authz struct {
	cfg    AuthzConfig
	parser *jwt.Parser
}

func NewAuthz(cfg AuthzConfig) *Authz {
	return &Authz{
		cfg: cfg,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithAudience(cfg.Audience),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(30*time.Second),
		),
	}
}

// Require accepts a bearer token carrying every listed permission. A bad token
// is a 401; a valid one missing a permission is a 403.
func (a *Authz) Require(perms ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || raw == "" {
			deny(c, http.StatusUnauthorized, "invalid_request", "missing bearer token")
			return
		}

		var claims ClientClaims
		if _, err := a.parser.ParseWithClaims(raw, &claims, a.key); err != nil {
			deny(c, http.StatusUnauthorized, "invalid_token", "token rejected")
			return
		}
		for _, p := range perms {
			if !slices.Contains(claims.Perms, p) {
				deny(c, http.StatusForbidden, "insufficient_scope", "missing permission "+p)
				return
			}
		}

		c.Set(ClientIDKey, claims.Subject)
		c.Next()
	}
}

func (a *Authz) key(*jwt.Token) (any, error) {
	return []byte(a.cfg.Secret), nil
}

// ClientID returns the caller set by Require, or "".
func ClientID(c *gin.Context) string {
	return c.GetString(ClientIDKey)
}

func deny(c *gin.Context, status int, code, desc string) {
	c.Header("WWW-Authenticate", `Bearer error="`+code+`", error_description="`+desc+`"`)
	c.AbortWithStatusJSON(status, gin.H{"error": code, "error_description": desc})
}
