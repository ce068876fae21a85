package admin

import (
	"context"

	"github.com/keenchase/auth-center/pkg/config"
	"github.com/keenchase/auth-center/pkg/db/models"
	pkgerrors "github.com/keenchase/auth-center/pkg/errors"
	"github.com/keenchase/auth-center/pkg/logger"
)

// Gate decides whether a user may use the admin surface. The configured
// identifier matches either the user's unionId or any of their openIds.
type Gate struct {
	identifier string
	logg       *logger.Logger
}

// NewGate builds the admin gate from configuration.
func NewGate(cfg config.AdminConfig, logg *logger.Logger) *Gate {
	return &Gate{identifier: cfg.Identifier, logg: logg}
}

// Authorize returns nil when the user may administer. The user's Accounts
// must be preloaded. With no identifier configured the gate is in bootstrap
// mode and lets everyone through, loudly.
func (g *Gate) Authorize(ctx context.Context, user *models.User) error {
	if g.identifier == "" {
		if g.logg != nil {
			g.logg.Warn(ctx, "no admin identifier configured, allowing admin access (bootstrap mode)")
		}
		return nil
	}
	if user == nil {
		return pkgerrors.New(pkgerrors.CodeForbidden, "admin access denied")
	}
	if user.UnionID != nil && *user.UnionID == g.identifier {
		return nil
	}
	for _, account := range user.Accounts {
		if account.OpenID == g.identifier {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "admin access denied")
}
