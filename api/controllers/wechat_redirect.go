package controllers

import (
	"net/http"
	"net/url"

	"github.com/keenchase/auth-center/api/responses"
	"github.com/keenchase/auth-center/internal/wechat"
	"github.com/keenchase/auth-center/pkg/callback"
	pkgerrors "github.com/keenchase/auth-center/pkg/errors"
	"github.com/keenchase/auth-center/pkg/logger"
)

// WeChatAuthorize is the single entry point business systems link to. It
// inspects the browser, picks the QR or embedded flow and redirects to the
// provider's authorization page with our callback as the return address.
func WeChatAuthorize(verifier *wechat.Verifier, validator *callback.Validator, selfBaseURL string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		callbackURL := query.Get("callbackUrl")
		if callbackURL == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInvalidRequest, "callbackUrl query parameter is required"))
			return
		}
		if err := validator.Validate(callbackURL); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInvalidRequest, err, "callback rejected"))
			return
		}

		loginType := query.Get("loginType")
		if loginType == "" {
			loginType = wechat.DetectLoginType(r.UserAgent())
		}

		// The provider returns to our callback; the business system's URL
		// rides along in state.
		redirectURI := selfBaseURL + "/api/v1/auth/wechat/callback"
		if loginType == wechat.LoginTypeMP {
			redirectURI = selfBaseURL + "/api/v1/auth/wechat/mp-callback"
		}

		target, err := verifier.BuildAuthorizeURL(loginType, redirectURI, callbackURL)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}

// WeChatMPCallback is the official-account return hop. The platform only
// allows one registered callback path, so this endpoint owns it and relays
// the authorization code back to the business system named in state. The
// frontend finishes the login with POST /wechat/login.
func WeChatMPCallback(validator *callback.Validator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		code := query.Get("code")
		state := query.Get("state")
		if code == "" || state == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInvalidRequest, "code and state query parameters are required"))
			return
		}
		if err := validator.Validate(state); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInvalidRequest, err, "callback rejected"))
			return
		}

		target, err := url.Parse(state)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInvalidRequest, "state is not a valid URL"))
			return
		}
		relay := target.Query()
		relay.Set("code", code)
		relay.Set("type", wechat.LoginTypeMP)
		target.RawQuery = relay.Encode()

		http.Redirect(w, r, target.String(), http.StatusFound)
	}
}
