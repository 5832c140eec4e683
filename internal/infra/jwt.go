// README: HS256 JWT verifier for local and bench environments without Firebase.
package infra

import (
	"context"
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

type courierClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type jwtVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) (TokenVerifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	return &jwtVerifier{secret: []byte(secret)}, nil
}

func (v *jwtVerifier) VerifyIDToken(_ context.Context, idToken string) (*FirebaseToken, error) {
	tok, err := jwt.ParseWithClaims(idToken, &courierClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil || !tok.Valid {
		if err == nil {
			err = errors.New("invalid token")
		}
		return nil, err
	}
	c, _ := tok.Claims.(*courierClaims)
	if c == nil || c.Subject == "" {
		return nil, errors.New("invalid claims")
	}
	claims := map[string]interface{}{}
	if c.Role != "" {
		claims["role"] = c.Role
	}
	return &FirebaseToken{UID: c.Subject, Claims: claims}, nil
}

// SignToken mints an HS256 token for uid. ttl <= 0 means no expiry.
func SignToken(secret, uid, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := courierClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  uid,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
