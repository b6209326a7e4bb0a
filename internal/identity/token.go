package identity

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jmerrifield20/agriledger/internal/certification/model"
)

const tokenType = "ledger-role"

// RoleClaims are the JWT claims of a ledger role token. Subject is the
// party's stable account identifier.
type RoleClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
	Type string `json:"type"`
}

// Identity converts the claims into the acting party.
func (c *RoleClaims) Identity() model.Identity {
	return model.Identity{Subject: c.Subject, Role: model.Role(c.Role)}
}

// TokenIssuer issues and verifies role tokens signed with an RSA key.
type TokenIssuer struct {
	key    *rsa.PrivateKey
	pub    *rsa.PublicKey
	issuer string
	ttl    time.Duration
}

// NewTokenIssuer creates a TokenIssuer.
//
//	issuerURL: the "iss" claim; the ledgerd base URL.
//	ttl      : default token lifetime (24 hours when zero).
func NewTokenIssuer(key *rsa.PrivateKey, issuerURL string, ttl time.Duration) *TokenIssuer {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{key: key, pub: &key.PublicKey, issuer: issuerURL, ttl: ttl}
}

// PublicKey returns the verification key.
func (t *TokenIssuer) PublicKey() *rsa.PublicKey { return t.pub }

// Issue signs a token binding subject to role. A zero ttl uses the default.
func (t *TokenIssuer) Issue(subject string, role model.Role, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("subject is required")
	}
	if _, err := model.ParseRole(string(role)); err != nil {
		return "", err
	}
	if ttl == 0 {
		ttl = t.ttl
	}
	now := time.Now().UTC()
	claims := RoleClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New().String(),
		},
		Role: string(role),
		Type: tokenType,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = signingKeyID
	signed, err := token.SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("sign role token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a role token, returning its claims.
func (t *TokenIssuer) Verify(tokenStr string) (*RoleClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&RoleClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return t.pub, nil
		},
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify role token: %w", err)
	}
	claims, ok := token.Claims.(*RoleClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid role token claims")
	}
	if claims.Type != tokenType {
		return nil, fmt.Errorf("not a ledger role token")
	}
	if _, err := model.ParseRole(claims.Role); err != nil {
		return nil, fmt.Errorf("role token: %w", err)
	}
	return claims, nil
}
