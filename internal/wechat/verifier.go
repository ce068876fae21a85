package wechat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/keenchase/auth-center/pkg/config"
	pkgerrors "github.com/keenchase/auth-center/pkg/errors"
	"github.com/keenchase/auth-center/pkg/logger"
)

const (
	// LoginTypeOpen is the open-platform website application (QR scan login).
	LoginTypeOpen = "open"
	// LoginTypeMP is the official account (embedded browser authorization).
	LoginTypeMP = "mp"

	// errCodeInvalidCode is the provider's code for an expired or reused
	// authorization code.
	errCodeInvalidCode = 40029

	mockPrefixLen = 8
)

// UserInfo is the provider identity obtained from a code exchange.
type UserInfo struct {
	AppID     string
	OpenID    string
	UnionID   string
	Nickname  string
	AvatarURL string

	// Mock is true when the flow ran without real credentials.
	Mock bool
}

// Verifier exchanges authorization codes with the provider. Each login type
// maps to its own application credentials; a flow whose credentials are not
// configured degrades to deterministic mock identities.
type Verifier struct {
	cfg    config.WeChatConfig
	client *http.Client
	logg   *logger.Logger
}

// NewVerifier constructs a verifier with a bounded-timeout HTTP client.
func NewVerifier(cfg config.WeChatConfig, logg *logger.Logger) *Verifier {
	return &Verifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logg:   logg,
	}
}

type credentials struct {
	appID  string
	secret string
}

func (v *Verifier) credentialsFor(loginType string) (credentials, error) {
	switch loginType {
	case LoginTypeOpen:
		return credentials{appID: v.cfg.OpenAppID, secret: v.cfg.OpenAppSecret}, nil
	case LoginTypeMP:
		return credentials{appID: v.cfg.MPAppID, secret: v.cfg.MPAppSecret}, nil
	default:
		return credentials{}, pkgerrors.New(pkgerrors.CodeInvalidRequest, fmt.Sprintf("unknown login type %q", loginType))
	}
}

// Exchange turns an authorization code into a provider identity.
func (v *Verifier) Exchange(ctx context.Context, loginType, code string) (*UserInfo, error) {
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidRequest, "authorization code is required")
	}

	creds, err := v.credentialsFor(loginType)
	if err != nil {
		return nil, err
	}
	if creds.appID == "" || creds.secret == "" {
		return v.mockExchange(ctx, loginType, code), nil
	}

	token, err := v.exchangeToken(ctx, creds, code)
	if err != nil {
		return nil, err
	}

	info := &UserInfo{
		AppID:   creds.appID,
		OpenID:  token.OpenID,
		UnionID: token.UnionID,
	}

	profile, err := v.fetchProfile(ctx, token.AccessToken, token.OpenID)
	if err != nil {
		// Without a unionId from the token response the profile fetch was the
		// last chance to obtain one; a transient failure here is a dependency
		// problem, not a missing binding.
		if info.UnionID == "" {
			return nil, pkgerrors.Wrap(pkgerrors.CodeCredentialExchange, err, "fetch provider profile")
		}
		// Display data is optional once the identity is complete.
		if v.logg != nil {
			v.logg.Warn(ctx, "wechat userinfo fetch failed: "+err.Error())
		}
	} else {
		info.Nickname = profile.Nickname
		info.AvatarURL = profile.HeadImgURL
		if info.UnionID == "" {
			info.UnionID = profile.UnionID
		}
	}

	if info.UnionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeMissingUnionID,
			"provider returned no unionid; bind the application to an open platform account")
	}
	return info, nil
}

// mockExchange derives a stable fake identity from the code so repeated
// logins with the same code resolve to the same user.
func (v *Verifier) mockExchange(ctx context.Context, loginType, code string) *UserInfo {
	if v.logg != nil {
		ctx = v.logg.WithFields(ctx, map[string]any{"login_type": loginType})
		v.logg.Warn(ctx, "wechat credentials not configured, using MOCK identity; do not run this in production")
	}
	seed := code
	if len(seed) > mockPrefixLen {
		seed = seed[:mockPrefixLen]
	}
	return &UserInfo{
		AppID:   "mock_app_" + loginType,
		OpenID:  "mock_openid_" + seed,
		UnionID: "mock_unionid_" + seed,
		Mock:    true,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	OpenID      string `json:"openid"`
	UnionID     string `json:"unionid"`
	ErrCode     int    `json:"errcode"`
	ErrMsg      string `json:"errmsg"`
}

func (v *Verifier) exchangeToken(ctx context.Context, creds credentials, code string) (*tokenResponse, error) {
	query := url.Values{}
	query.Set("appid", creds.appID)
	query.Set("secret", creds.secret)
	query.Set("code", code)
	query.Set("grant_type", "authorization_code")

	var resp tokenResponse
	if err := v.getJSON(ctx, "/sns/oauth2/access_token", query, &resp); err != nil {
		return nil, err
	}

	if resp.ErrCode == errCodeInvalidCode {
		return nil, pkgerrors.New(pkgerrors.CodeCredentialExpired, "authorization code expired or already used")
	}
	if resp.ErrCode != 0 {
		return nil, pkgerrors.New(pkgerrors.CodeCredentialExchange,
			fmt.Sprintf("provider rejected code exchange: %d %s", resp.ErrCode, resp.ErrMsg))
	}
	if resp.AccessToken == "" || resp.OpenID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeCredentialExchange, "provider returned no access token")
	}
	return &resp, nil
}

type profileResponse struct {
	Nickname   string `json:"nickname"`
	HeadImgURL string `json:"headimgurl"`
	UnionID    string `json:"unionid"`
	ErrCode    int    `json:"errcode"`
	ErrMsg     string `json:"errmsg"`
}

func (v *Verifier) fetchProfile(ctx context.Context, accessToken, openID string) (*profileResponse, error) {
	query := url.Values{}
	query.Set("access_token", accessToken)
	query.Set("openid", openID)
	query.Set("lang", "zh_CN")

	var resp profileResponse
	if err := v.getJSON(ctx, "/sns/userinfo", query, &resp); err != nil {
		return nil, err
	}
	if resp.ErrCode != 0 {
		return nil, fmt.Errorf("userinfo error: %d %s", resp.ErrCode, resp.ErrMsg)
	}
	return &resp, nil
}

func (v *Verifier) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := v.cfg.APIBaseURL + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build provider request")
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reach provider")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read provider response")
	}
	if resp.StatusCode != http.StatusOK {
		return pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("provider returned status %d", resp.StatusCode))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode provider response")
	}
	return nil
}
