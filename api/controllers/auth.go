package controllers

import (
	"net/http"
	"net/url"

	"github.com/keenchase/auth-center/api/middleware"
	"github.com/keenchase/auth-center/api/responses"
	"github.com/keenchase/auth-center/api/validators"
	"github.com/keenchase/auth-center/internal/auth"
	"github.com/keenchase/auth-center/internal/wechat"
	pkgerrors "github.com/keenchase/auth-center/pkg/errors"
	"github.com/keenchase/auth-center/pkg/logger"
)

// WeChatCallback handles the provider redirect carrying the authorization
// code. The state parameter carries the business system's callback URL; when
// it validates, the browser is sent back there with the session token
// appended, otherwise the result is returned as JSON.
func WeChatCallback(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		query := r.URL.Query()
		req := auth.WeChatLoginRequest{
			Code:        query.Get("code"),
			LoginType:   query.Get("loginType"),
			CallbackURL: callbackFromQuery(query),
		}
		if req.Code == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInvalidRequest, "code query parameter is required"))
			return
		}
		if ua := r.UserAgent(); req.LoginType == "" && ua != "" {
			req.LoginType = wechat.DetectLoginType(ua)
		}

		result, err := svc.WeChatLogin(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if result.CallbackURL != "" {
			http.Redirect(w, r, appendToken(result.CallbackURL, result.Token), http.StatusFound)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// WeChatLogin is the JSON variant of the callback for frontends that exchange
// the code themselves.
func WeChatLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var body auth.WeChatLoginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.WeChatLogin(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// PasswordLogin wires the phone and password login into the HTTP layer.
func PasswordLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var body auth.PasswordLoginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.PasswordLogin(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// VerifyToken checks a session token for business systems that validate
// tokens server to server. A bad token is a soft result with a reason, not
// an error response.
func VerifyToken(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var body auth.VerifyTokenRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.VerifyToken(r.Context(), body.Token)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeTokenInvalid) || pkgerrors.IsCode(err, pkgerrors.CodeTokenExpired) {
				responses.WriteSuccess(w, map[string]any{
					"valid":  false,
					"reason": string(pkgerrors.As(err).Code()),
				})
				return
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// UserInfo returns the authenticated caller's profile.
func UserInfo(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		token := middleware.TokenFromContext(r.Context())
		info, err := svc.UserInfo(r.Context(), token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, info)
	}
}

// Logout revokes the caller's session.
func Logout(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		token := middleware.TokenFromContext(r.Context())
		if err := svc.Logout(r.Context(), token); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "logged_out"})
	}
}

// callbackFromQuery accepts either an explicit callbackUrl parameter or a
// state parameter that is itself a URL.
func callbackFromQuery(query url.Values) string {
	if cb := query.Get("callbackUrl"); cb != "" {
		return cb
	}
	state := query.Get("state")
	if parsed, err := url.Parse(state); err == nil && parsed.Scheme != "" && parsed.Host != "" {
		return state
	}
	return ""
}

func appendToken(callbackURL, token string) string {
	parsed, err := url.Parse(callbackURL)
	if err != nil {
		return callbackURL
	}
	query := parsed.Query()
	query.Set("token", token)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
