package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nftstake/crypto"
)

const testSecret = "unit-test-secret"

func callerEcho(t *testing.T, seen *[20]byte) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFromContext(r.Context())
		if ok && seen != nil {
			*seen = caller
		}
		w.WriteHeader(http.StatusOK)
	})
}

func testAddress(t *testing.T) ([20]byte, string) {
	t.Helper()
	var raw [20]byte
	raw[19] = 7
	return raw, crypto.FromRaw(raw).String()
}

func TestAuthenticatorResolvesCaller(t *testing.T) {
	raw, bech := testAddress(t)
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret, Issuer: "stakingd"}, nil)
	token, err := IssueToken(TokenRequest{Secret: testSecret, Issuer: "stakingd", Subject: bech, Scopes: []string{"admin"}})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	var seen [20]byte
	handler := auth.Middleware("admin")(callerEcho(t, &seen))
	req := httptest.NewRequest(http.MethodPost, "/v1/stake", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if seen != raw {
		t.Fatalf("caller not propagated")
	}
}

func TestAuthenticatorRejects(t *testing.T) {
	_, bech := testAddress(t)
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret, Issuer: "stakingd"}, nil)
	wrongIssuer, _ := IssueToken(TokenRequest{Secret: testSecret, Issuer: "other", Subject: bech})
	wrongKey, _ := IssueToken(TokenRequest{Secret: "other-secret", Issuer: "stakingd", Subject: bech})
	expired, _ := IssueToken(TokenRequest{Secret: testSecret, Issuer: "stakingd", Subject: bech, TTL: time.Minute, Now: time.Now().Add(-time.Hour)})
	noScope, _ := IssueToken(TokenRequest{Secret: testSecret, Issuer: "stakingd", Subject: bech})

	cases := []struct {
		name   string
		header string
		scopes []string
		want   int
	}{
		{"missing", "", nil, http.StatusUnauthorized},
		{"malformed", "Token abc", nil, http.StatusUnauthorized},
		{"issuer", "Bearer " + wrongIssuer, nil, http.StatusUnauthorized},
		{"signature", "Bearer " + wrongKey, nil, http.StatusUnauthorized},
		{"expired", "Bearer " + expired, nil, http.StatusUnauthorized},
		{"scope", "Bearer " + noScope, []string{"admin"}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := auth.Middleware(tc.scopes...)(callerEcho(t, nil))
			req := httptest.NewRequest(http.MethodPost, "/v1/claim", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)
			if res.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, res.Code)
			}
		})
	}
}

func TestAuthenticatorOptionalPaths(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret, OptionalPaths: []string{"/healthz"}}, nil)
	handler := auth.Middleware()(callerEcho(t, nil))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("optional path should bypass auth, got %d", res.Code)
	}
}

func TestAuthenticatorDisabledUsesHeader(t *testing.T) {
	raw, bech := testAddress(t)
	auth := NewAuthenticator(AuthConfig{Enabled: false}, nil)
	var seen [20]byte
	handler := auth.Middleware()(callerEcho(t, &seen))

	req := httptest.NewRequest(http.MethodPost, "/v1/claim", nil)
	req.Header.Set(CallerHeader, bech)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK || seen != raw {
		t.Fatalf("header caller not applied: %d", res.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/claim", nil)
	req.Header.Set(CallerHeader, "not-an-address")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad header, got %d", res.Code)
	}
}

func TestIssueTokenValidatesSubject(t *testing.T) {
	if _, err := IssueToken(TokenRequest{Secret: testSecret, Subject: "garbage"}); err == nil {
		t.Fatalf("expected subject validation error")
	}
	if _, err := IssueToken(TokenRequest{Subject: "garbage"}); err == nil {
		t.Fatalf("expected missing secret error")
	}
}
