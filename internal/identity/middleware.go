package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jmerrifield20/agriledger/internal/certification/model"
)

const ctxIdentity = "agriledger_identity"

// Development headers accepted when dev headers are enabled.
const (
	HeaderSubject = "X-Ledger-Subject"
	HeaderRole    = "X-Ledger-Role"
)

// Authenticator resolves the caller's identity from a Bearer role token or,
// in development, from plain headers.
type Authenticator struct {
	tokens     *TokenIssuer
	devHeaders bool
}

// NewAuthenticator returns an Authenticator. tokens may be nil when only
// dev headers are in use.
func NewAuthenticator(tokens *TokenIssuer, devHeaders bool) *Authenticator {
	return &Authenticator{tokens: tokens, devHeaders: devHeaders}
}

// RequireIdentity returns a Gin middleware that rejects requests without a
// resolvable identity and stores it in the context.
func (a *Authenticator) RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, status, msg := a.resolve(c)
		if status != 0 {
			c.AbortWithStatusJSON(status, gin.H{"error": msg})
			return
		}
		c.Set(ctxIdentity, id)
		c.Next()
	}
}

// RequireAdmin returns a Gin middleware that only admits the admin role.
func (a *Authenticator) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, status, msg := a.resolve(c)
		if status != 0 {
			c.AbortWithStatusJSON(status, gin.H{"error": msg})
			return
		}
		if id.Role != model.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Set(ctxIdentity, id)
		c.Next()
	}
}

func (a *Authenticator) resolve(c *gin.Context) (model.Identity, int, string) {
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		if a.tokens == nil {
			return model.Identity{}, http.StatusUnauthorized, "token authentication is not configured"
		}
		claims, err := a.tokens.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			return model.Identity{}, http.StatusUnauthorized, "invalid role token: " + err.Error()
		}
		return claims.Identity(), 0, ""
	}

	if a.devHeaders {
		subject := strings.TrimSpace(c.GetHeader(HeaderSubject))
		if subject != "" {
			role, err := model.ParseRole(c.GetHeader(HeaderRole))
			if err != nil {
				return model.Identity{}, http.StatusUnauthorized, err.Error()
			}
			return model.Identity{Subject: subject, Role: role}, 0, ""
		}
	}
	return model.Identity{}, http.StatusUnauthorized, "Bearer role token required"
}

// IdentityFromCtx returns the identity injected by RequireIdentity or
// RequireAdmin.
func IdentityFromCtx(c *gin.Context) (model.Identity, bool) {
	v, ok := c.Get(ctxIdentity)
	if !ok {
		return model.Identity{}, false
	}
	id, ok := v.(model.Identity)
	return id, ok
}
