package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/keenchase/auth-center/pkg/config"
)

// ErrTokenExpired is returned by ParseSessionToken when the token is well
// formed and correctly signed but past its expiry claim.
var ErrTokenExpired = errors.New("session token expired")

// SessionClaims is the payload minted into every session token.
type SessionClaims struct {
	UserID    uuid.UUID `json:"userId"`
	LoginType string    `json:"loginType"`
	jwt.RegisteredClaims
}

// MintSessionToken signs an HS256 token for the user with the configured TTL.
// The returned expiry matches the token's exp claim so the session row can
// store the same instant.
func MintSessionToken(cfg config.JWTConfig, userID uuid.UUID, loginType string, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(cfg.SessionTTL)
	claims := SessionClaims{
		UserID:    userID,
		LoginType: loginType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing session token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseSessionToken validates signature and expiry. Expired-but-valid tokens
// return ErrTokenExpired so callers can distinguish reap-worthy sessions from
// garbage.
func ParseSessionToken(cfg config.JWTConfig, token string) (*SessionClaims, error) {
	claims, err := parse(cfg, token, false)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, err
	}
	return claims, nil
}

// ParseSessionTokenAllowExpired validates the signature but ignores the expiry
// claim. Used where the caller enforces expiry against the session store.
func ParseSessionTokenAllowExpired(cfg config.JWTConfig, token string) (*SessionClaims, error) {
	return parse(cfg, token, true)
}

func parse(cfg config.JWTConfig, token string, allowExpired bool) (*SessionClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
	}
	if allowExpired {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	var claims SessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parsing session token: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("invalid session token")
	}
	if allowExpired && claims.Issuer != cfg.Issuer {
		return nil, errors.New("invalid session token issuer")
	}
	if claims.UserID == uuid.Nil {
		return nil, errors.New("session token missing user id")
	}
	return &claims, nil
}
