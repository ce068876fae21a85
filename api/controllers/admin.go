package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/keenchase/auth-center/api/middleware"
	"github.com/keenchase/auth-center/api/responses"
	"github.com/keenchase/auth-center/api/validators"
	"github.com/keenchase/auth-center/internal/admin"
	"github.com/keenchase/auth-center/pkg/db/models"
	pkgerrors "github.com/keenchase/auth-center/pkg/errors"
	"github.com/keenchase/auth-center/pkg/logger"
	"github.com/keenchase/auth-center/pkg/pagination"
)

type adminUserLoader interface {
	FindByIDWithAccounts(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// RequireAdmin loads the authenticated user and runs them through the admin
// gate before any admin handler executes.
func RequireAdmin(gate *admin.Gate, users adminUserLoader, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			userID, err := uuid.Parse(middleware.UserIDFromContext(ctx))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
				return
			}

			user, err := users.FindByIDWithAccounts(ctx, userID)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeForbidden, err, "admin access denied"))
				return
			}
			if err := gate.Authorize(ctx, user); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AdminVerify tells the dashboard whether the caller may render admin views.
// Reaching this handler means the gate already passed.
func AdminVerify() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]bool{"isAdmin": true})
	}
}

// AdminListUsers serves the paginated user listing.
func AdminListUsers(svc admin.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := pagination.Params{Cursor: r.URL.Query().Get("cursor")}
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInvalidRequest, "limit must be an integer"))
				return
			}
			params.Limit = limit
		}

		result, err := svc.ListUsers(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminStatistics serves the dashboard summary numbers.
func AdminStatistics(svc admin.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.GetStatistics(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}

// AdminUserLoginSources serves one user's login source breakdown.
func AdminUserLoginSources(svc admin.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(chi.URLParam(r, "userID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInvalidRequest, "invalid user id"))
			return
		}

		sources, err := svc.GetUserLoginSources(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"sources": sources})
	}
}

// AdminSetPhonePassword provisions phone login for a user.
func AdminSetPhonePassword(svc admin.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body admin.SetPhonePasswordRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.SetPhonePassword(r.Context(), body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "updated"})
	}
}
