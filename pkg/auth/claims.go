package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
)

// AccessTokenPayload is what a caller asks to have signed. TTL overrides the
// configured lifetime when positive; service tokens use it.
type AccessTokenPayload struct {
	UserID string
	Role   enums.ActorRole
	JTI    string
	TTL    time.Duration
}

// AccessTokenClaims is the verified token. Service tokens carry the calling
// system's name as UserID.
type AccessTokenClaims struct {
	UserID string          `json:"user_id"`
	Role   enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}
