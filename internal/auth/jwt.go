package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the access token payload. IssuedAtMillis carries the issued-at instant in milliseconds for compatibility
// with existing token consumers; every other timestamp uses the standard second-resolution numeric dates.
type Claims struct {
	Sub            string `json:"sub"`
	IssuedAtMillis int64  `json:"iat"`
	Exp            int64  `json:"exp"`
}

func (c Claims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Exp, 0)), nil
}

func (c Claims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.UnixMilli(c.IssuedAtMillis)), nil
}

func (c Claims) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }
func (c Claims) GetIssuer() (string, error)              { return "", nil }
func (c Claims) GetSubject() (string, error)             { return c.Sub, nil }
func (c Claims) GetAudience() (jwt.ClaimStrings, error)  { return nil, nil }

// NewAccessToken creates a signed JWT access token for the given user. The issued-at claim is recorded in
// milliseconds, matching the upstream issuer this gateway interoperates with.
func NewAccessToken(userID uuid.UUID, secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("JWT secret must not be empty")
	}

	now := time.Now()
	claims := Claims{
		Sub:            userID.String(),
		IssuedAtMillis: now.UnixMilli(),
		Exp:            now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}

	return signed, nil
}

// ValidateAccessToken parses and validates a JWT access token string, enforcing the HMAC signing method and
// expiration. Expiration is enforced deliberately: nothing in this system depends on accepting an expired token.
func ValidateAccessToken(tokenStr, secret string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}
