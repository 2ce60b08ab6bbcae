package idp

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	si "github.com/panyam/signin"
)

// Claims are the JWT claims of a session token.
type Claims struct {
	jwt.RegisteredClaims
	// AMR names the mechanism that authenticated the user.
	AMR []string `json:"amr,omitempty"`
}

// TokenIssuer mints and parses HS256 session tokens.
type TokenIssuer struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

func (t *TokenIssuer) EnsureDefaults() *TokenIssuer {
	if t.Secret == "" {
		t.Secret = strings.TrimSpace(os.Getenv("SIGNIN_JWT_SECRET_KEY"))
		if t.Secret == "" {
			t.Secret = "MyTestJWTSecretKey123456"
		}
	}
	if t.Issuer == "" {
		t.Issuer = "signin-idp"
	}
	if t.Audience == "" {
		t.Audience = "signin"
	}
	if t.TTL <= 0 {
		t.TTL = time.Hour
	}
	return t
}

// Issue signs a token for userID.
func (t *TokenIssuer) Issue(userID string, mech si.Mechanism, now time.Time) (string, time.Time, error) {
	t.EnsureDefaults()
	exp := now.Add(t.TTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    t.Issuer,
			Audience:  jwt.ClaimStrings{t.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		AMR: []string{mech.String()},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(t.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("error signing token: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies tokenString and returns its claims.
func (t *TokenIssuer) Parse(tokenString string) (*Claims, error) {
	t.EnsureDefaults()
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return []byte(t.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.Issuer),
		jwt.WithAudience(t.Audience),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("subject not found")
	}
	return claims, nil
}
