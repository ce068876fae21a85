package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/keenchase/auth-center/pkg/db"
	"github.com/keenchase/auth-center/pkg/db/models"
	pkgerrors "github.com/keenchase/auth-center/pkg/errors"
	"github.com/keenchase/auth-center/pkg/logger"
)

// Profile is the provider identity handed to the resolver after a successful
// credential exchange.
type Profile struct {
	Provider  string
	AppID     string
	OpenID    string
	UnionID   string
	Channel   string
	Nickname  string
	AvatarURL string
}

// Resolution is the durable identity a profile resolved to.
type Resolution struct {
	User        *models.User
	Account     *models.Account
	UserCreated bool
}

type userRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByUnionID(ctx context.Context, unionID string) (*models.User, error)
	UpdateUnionID(ctx context.Context, id uuid.UUID, unionID string) error
}

type accountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	FindByEntryPoint(ctx context.Context, provider, appID, openID string) (*models.Account, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, nickname, avatarURL string) error
}

// Resolver maps provider profiles onto durable users. unionId is the merge
// key: the same person arriving through a new appId joins their existing user
// instead of minting a duplicate.
type Resolver struct {
	users    userRepository
	accounts accountRepository
	logg     *logger.Logger
}

// ResolverParams bundles the dependencies required to build a resolver.
type ResolverParams struct {
	UserRepo    userRepository
	AccountRepo accountRepository
	Logger      *logger.Logger
}

// NewResolver constructs an identity resolver with the provided dependencies.
func NewResolver(params ResolverParams) (*Resolver, error) {
	if params.UserRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if params.AccountRepo == nil {
		return nil, fmt.Errorf("account repository is required")
	}
	return &Resolver{
		users:    params.UserRepo,
		accounts: params.AccountRepo,
		logg:     params.Logger,
	}, nil
}

// Resolve finds or creates the user behind a provider profile and ensures the
// (provider, appId, openId) entry point is bound to them.
//
// The unionId lookup runs before the entry-point lookup. Reversing the order
// would mint a second user for a person whose first login came through a
// different application.
func (r *Resolver) Resolve(ctx context.Context, profile Profile) (*Resolution, error) {
	if profile.Provider == "" || profile.AppID == "" || profile.OpenID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "identity profile missing provider, appId or openId")
	}

	if profile.UnionID != "" {
		user, err := r.users.FindByUnionID(ctx, profile.UnionID)
		if err == nil {
			account, err := r.ensureAccount(ctx, user.ID, profile)
			if err != nil {
				return nil, err
			}
			return &Resolution{User: user, Account: account}, nil
		}
		if !db.IsNotFound(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find user by unionId")
		}
	}

	account, err := r.accounts.FindByEntryPoint(ctx, profile.Provider, profile.AppID, profile.OpenID)
	if err == nil {
		user, err := r.users.FindByID(ctx, account.UserID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user for existing account")
		}
		if profile.UnionID != "" && user.UnionID == nil {
			if err := r.users.UpdateUnionID(ctx, user.ID, profile.UnionID); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "backfill unionId")
			}
			unionID := profile.UnionID
			user.UnionID = &unionID
		}
		r.refreshProfile(ctx, account, profile)
		return &Resolution{User: user, Account: account}, nil
	}
	if !db.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find account by entry point")
	}

	return r.createIdentity(ctx, profile)
}

func (r *Resolver) createIdentity(ctx context.Context, profile Profile) (*Resolution, error) {
	user := &models.User{ID: uuid.New(), CreatedAt: time.Now()}
	if profile.UnionID != "" {
		unionID := profile.UnionID
		user.UnionID = &unionID
	}

	if err := r.users.Create(ctx, user); err != nil {
		if db.IsUniqueViolation(err, "") && profile.UnionID != "" {
			// A concurrent first login won the insert race. Their row is ours.
			existing, lookupErr := r.users.FindByUnionID(ctx, profile.UnionID)
			if lookupErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, lookupErr, "lookup after unionId conflict")
			}
			account, err := r.ensureAccount(ctx, existing.ID, profile)
			if err != nil {
				return nil, err
			}
			return &Resolution{User: existing, Account: account}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
	}

	account, err := r.ensureAccount(ctx, user.ID, profile)
	if err != nil {
		return nil, err
	}
	return &Resolution{User: user, Account: account, UserCreated: true}, nil
}

// ensureAccount binds the entry point to the user, treating a duplicate-key
// failure as a concurrent insert and re-reading the winner's row.
func (r *Resolver) ensureAccount(ctx context.Context, userID uuid.UUID, profile Profile) (*models.Account, error) {
	existing, err := r.accounts.FindByEntryPoint(ctx, profile.Provider, profile.AppID, profile.OpenID)
	if err == nil {
		r.refreshProfile(ctx, existing, profile)
		return existing, nil
	}
	if !db.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find account by entry point")
	}

	account := &models.Account{
		ID:        uuid.New(),
		UserID:    userID,
		Provider:  profile.Provider,
		AppID:     profile.AppID,
		OpenID:    profile.OpenID,
		Type:      profile.Channel,
		Nickname:  profile.Nickname,
		AvatarURL: profile.AvatarURL,
		CreatedAt: time.Now(),
	}
	if err := r.accounts.Create(ctx, account); err != nil {
		if db.IsUniqueViolation(err, "") {
			winner, lookupErr := r.accounts.FindByEntryPoint(ctx, profile.Provider, profile.AppID, profile.OpenID)
			if lookupErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, lookupErr, "lookup after entry point conflict")
			}
			return winner, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create account")
	}
	return account, nil
}

// refreshProfile keeps nickname and avatar current on repeat logins. Failures
// are logged and swallowed; display data never blocks a login.
func (r *Resolver) refreshProfile(ctx context.Context, account *models.Account, profile Profile) {
	if profile.Nickname == "" && profile.AvatarURL == "" {
		return
	}
	if profile.Nickname == account.Nickname && profile.AvatarURL == account.AvatarURL {
		return
	}
	if err := r.accounts.UpdateProfile(ctx, account.ID, profile.Nickname, profile.AvatarURL); err != nil {
		if r.logg != nil {
			r.logg.Warn(ctx, "failed to refresh account profile: "+err.Error())
		}
		return
	}
	account.Nickname = profile.Nickname
	account.AvatarURL = profile.AvatarURL
}
