// Package auth verifies signed session tokens presented at the
// websocket handshake. Verification fails closed: no claims, no
// connection.
package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v4"

	"github.com/wavechat/wave/internal/core"
	"github.com/wavechat/wave/internal/domain"
)

type sessionClaims struct {
	Username string `json:"name"`
	jwt.RegisteredClaims
}

// NewVerifier returns a core.TokenVerifier for HMAC-signed session
// tokens. Subject carries the user id; expiry is mandatory.
func NewVerifier(secret string) core.TokenVerifier {
	key := []byte(secret)
	return func(token string) (core.Claims, error) {
		var claims sessionClaims
		parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return key, nil
		})
		if err != nil {
			return core.Claims{}, fmt.Errorf("%w: %v", core.ErrUnauthenticated, err)
		}
		if !parsed.Valid || claims.Subject == "" {
			return core.Claims{}, fmt.Errorf("%w: missing subject", core.ErrUnauthenticated)
		}
		if claims.ExpiresAt == nil {
			return core.Claims{}, fmt.Errorf("%w: token has no expiry", core.ErrUnauthenticated)
		}
		username := claims.Username
		if username == "" {
			username = claims.Subject
		}
		return core.Claims{UserID: domain.UserID(claims.Subject), Username: username}, nil
	}
}
