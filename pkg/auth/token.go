// Package auth signs and verifies the HS256 bearer tokens the HTTP surface
// accepts from shoppers, admins, and the order service.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-rewards/pkg/config"
)

// clockSkew tolerates small drift between the token minter and this host.
const clockSkew = 30 * time.Second

var signingMethod = jwt.SigningMethodHS256

func checkConfig(cfg config.JWTConfig) error {
	switch {
	case cfg.Secret == "":
		return errors.New("jwt secret is required")
	case cfg.Issuer == "":
		return errors.New("jwt issuer is required")
	}
	return nil
}

// MintAccessToken signs payload. The lifetime is payload.TTL when set and
// the configured expiration otherwise.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	if err := checkConfig(cfg); err != nil {
		return "", err
	}
	ttl := payload.TTL
	if ttl <= 0 {
		ttl = time.Duration(cfg.ExpirationMinutes) * time.Minute
	}
	if ttl <= 0 {
		return "", errors.New("token lifetime must be positive")
	}
	subject := strings.TrimSpace(payload.UserID)
	if subject == "" {
		return "", errors.New("user id is required")
	}
	if !payload.Role.IsValid() {
		return "", fmt.Errorf("invalid actor role %q", payload.Role)
	}
	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}

	signed, err := jwt.NewWithClaims(signingMethod, AccessTokenClaims{
		UserID: subject,
		Role:   payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
	}).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer and expiry, then checks the
// claims the HTTP layer relies on.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	if err := checkConfig(cfg); err != nil {
		return nil, err
	}
	claims := &AccessTokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return []byte(cfg.Secret), nil },
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)
	switch {
	case err != nil:
		return nil, err
	case !claims.Role.IsValid():
		return nil, fmt.Errorf("invalid actor role %q", claims.Role)
	case strings.TrimSpace(claims.UserID) == "":
		return nil, errors.New("token has no user id")
	}
	return claims, nil
}
