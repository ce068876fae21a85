package wechat

import (
	"fmt"
	"net/url"
	"strings"

	pkgerrors "github.com/keenchase/auth-center/pkg/errors"
)

const authorizeBaseURL = "https://open.weixin.qq.com"

// DetectLoginType picks the flow for a browser: the embedded provider browser
// gets the in-app authorization, everything else gets the QR scan page.
func DetectLoginType(userAgent string) string {
	if strings.Contains(strings.ToLower(userAgent), "micromessenger") {
		return LoginTypeMP
	}
	return LoginTypeOpen
}

// BuildAuthorizeURL returns the provider page to send the browser to. state
// is carried through the round trip and echoed back to redirectURI.
func (v *Verifier) BuildAuthorizeURL(loginType, redirectURI, state string) (string, error) {
	creds, err := v.credentialsFor(loginType)
	if err != nil {
		return "", err
	}
	if creds.appID == "" {
		return "", pkgerrors.New(pkgerrors.CodeCredentialExchange,
			fmt.Sprintf("no application configured for login type %q", loginType))
	}

	query := url.Values{}
	query.Set("appid", creds.appID)
	query.Set("redirect_uri", redirectURI)
	query.Set("response_type", "code")
	query.Set("state", state)

	var path string
	switch loginType {
	case LoginTypeMP:
		path = "/connect/oauth2/authorize"
		query.Set("scope", "snsapi_userinfo")
	default:
		path = "/connect/qrconnect"
		query.Set("scope", "snsapi_login")
	}

	return authorizeBaseURL + path + "?" + query.Encode() + "#wechat_redirect", nil
}
