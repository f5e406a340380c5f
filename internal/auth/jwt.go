package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer   = "nexmedis-api"
	audience = "nexmedis-clients"
	tokenTTL = 24 * time.Hour
)

// Claims are the custom JWT claims carried for every caller.
type Claims struct {
	CallerID string `json:"caller_id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 JWTs.
type Signer struct {
	secret []byte
}

// NewSigner constructs a Signer from the configured JWT secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Issue signs a token carrying {caller_id, email, name}, iss="nexmedis-api",
// aud="nexmedis-clients".
func (s *Signer) Issue(callerID, email, name string) (string, error) {
	now := time.Now()
	claims := Claims{
		CallerID: callerID,
		Email:    email,
		Name:     name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses and validates tokenString, checking signature, issuer,
// audience, and expiry.
func (s *Signer) Verify(tokenString string) (*Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithAudience(audience))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return &claims, nil
}
