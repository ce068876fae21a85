package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	pkgauth "github.com/keenchase/auth-center/pkg/auth"
	"github.com/keenchase/auth-center/pkg/config"
	"github.com/keenchase/auth-center/pkg/db"
	"github.com/keenchase/auth-center/pkg/db/models"
	pkgerrors "github.com/keenchase/auth-center/pkg/errors"
	"github.com/keenchase/auth-center/pkg/metrics"
)

// Verification is the outcome of a successful token check.
type Verification struct {
	UserID    uuid.UUID
	LoginType string
	ExpiresAt time.Time
}

type sessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	FindByToken(ctx context.Context, token string) (*models.Session, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
	DeleteByToken(ctx context.Context, token string) error
}

// Issuer mints session tokens and verifies them against the session store.
// The store row is the source of truth for liveness: a signed token whose row
// is gone is no longer a session.
type Issuer struct {
	repo    sessionRepository
	jwtCfg  config.JWTConfig
	metrics *metrics.AuthMetrics
	now     func() time.Time
}

// IssuerParams bundles the dependencies required to build an issuer.
type IssuerParams struct {
	SessionRepo sessionRepository
	JWTConfig   config.JWTConfig
	Metrics     *metrics.AuthMetrics

	// Now overrides the clock in tests. Defaults to time.Now.
	Now func() time.Time
}

// NewIssuer constructs a session issuer with the provided dependencies.
func NewIssuer(params IssuerParams) (*Issuer, error) {
	if params.SessionRepo == nil {
		return nil, fmt.Errorf("session repository is required")
	}
	if params.JWTConfig.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Issuer{
		repo:    params.SessionRepo,
		jwtCfg:  params.JWTConfig,
		metrics: params.Metrics,
		now:     now,
	}, nil
}

// Issue mints a signed token for the user and persists the backing session
// row with the identical expiry instant.
func (i *Issuer) Issue(ctx context.Context, userID uuid.UUID, loginType string, deviceInfo *string) (string, time.Time, error) {
	now := i.now()
	token, expiresAt, err := pkgauth.MintSessionToken(i.jwtCfg, userID, loginType, now)
	if err != nil {
		return "", time.Time{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint session token")
	}

	session := &models.Session{
		ID:         uuid.New(),
		UserID:     userID,
		Token:      token,
		DeviceInfo: deviceInfo,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
	}
	if err := i.repo.Create(ctx, session); err != nil {
		return "", time.Time{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist session")
	}
	return token, expiresAt, nil
}

// Verify checks signature, presence and expiry. An expired row is deleted on
// the spot; verification is the only place expired sessions get cleaned up.
func (i *Issuer) Verify(ctx context.Context, token string) (*Verification, error) {
	claims, err := pkgauth.ParseSessionTokenAllowExpired(i.jwtCfg, token)
	if err != nil {
		i.metrics.IncVerification("invalid")
		return nil, pkgerrors.Wrap(pkgerrors.CodeTokenInvalid, err, "parse token")
	}

	session, err := i.repo.FindByToken(ctx, token)
	if err != nil {
		if db.IsNotFound(err) {
			i.metrics.IncVerification("invalid")
			return nil, pkgerrors.New(pkgerrors.CodeTokenInvalid, "no session for token")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load session")
	}

	if !session.ExpiresAt.After(i.now()) {
		if err := i.repo.DeleteByID(ctx, session.ID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reap expired session")
		}
		i.metrics.IncSessionReaped()
		i.metrics.IncVerification("expired")
		return nil, pkgerrors.New(pkgerrors.CodeTokenExpired, "session expired")
	}

	i.metrics.IncVerification("valid")
	return &Verification{
		UserID:    claims.UserID,
		LoginType: claims.LoginType,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// Revoke deletes the session behind a token. Unknown tokens are a no-op so
// logout stays idempotent.
func (i *Issuer) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := i.repo.DeleteByToken(ctx, token); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "revoke session")
	}
	return nil
}
