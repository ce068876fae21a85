package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/keenchase/auth-center/internal/sessions"
	pkgerrors "github.com/keenchase/auth-center/pkg/errors"
)

type stubSessionVerifier struct {
	verification *sessions.Verification
	err          error
}

func (s stubSessionVerifier) Verify(ctx context.Context, token string) (*sessions.Verification, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.verification, nil
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth(stubSessionVerifier{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	verifier := stubSessionVerifier{err: pkgerrors.New(pkgerrors.CodeTokenInvalid, "token is not valid")}
	handler := Auth(verifier, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}

	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Error.Code != string(pkgerrors.CodeTokenInvalid) {
		t.Fatalf("expected TOKEN_INVALID got %s", envelope.Error.Code)
	}
}

func TestAuthSeedsContext(t *testing.T) {
	userID := uuid.New()
	verifier := stubSessionVerifier{verification: &sessions.Verification{
		UserID:    userID,
		LoginType: "wechat",
		ExpiresAt: time.Now().Add(time.Hour),
	}}

	var captured struct {
		user      string
		loginType string
		token     string
	}
	handler := Auth(verifier, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.user = UserIDFromContext(r.Context())
		captured.loginType = LoginTypeFromContext(r.Context())
		captured.token = TokenFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer session-token")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.user != userID.String() {
		t.Fatalf("expected user %s got %s", userID, captured.user)
	}
	if captured.loginType != "wechat" {
		t.Fatalf("expected login type wechat got %s", captured.loginType)
	}
	if captured.token != "session-token" {
		t.Fatalf("expected token in context got %s", captured.token)
	}
}

func TestBearerTokenParsing(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		if got := bearerToken(req); got != tc.want {
			t.Fatalf("header %q: expected %q got %q", tc.header, tc.want, got)
		}
	}
}
