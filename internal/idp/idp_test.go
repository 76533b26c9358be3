package idp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider serves a minimal OIDC discovery document plus a scripted token
// endpoint.
func fakeProvider(t *testing.T, tokenResp map[string]interface{}, tokenStatus int) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":                 srv.URL,
			"authorization_endpoint": srv.URL + "/authorize",
			"token_endpoint":         srv.URL + "/token",
			"jwks_uri":               srv.URL + "/keys",
		})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"keys":[]}`))
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if tokenStatus != 0 && tokenStatus != http.StatusOK {
			w.WriteHeader(tokenStatus)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(tokenResp)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func unsignedIDToken(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	b, err := json.Marshal(claims)
	require.NoError(t, err)
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	return header + "." + base64.RawURLEncoding.EncodeToString(b) + ".sig"
}

func TestInitializeAndReady(t *testing.T) {
	srv := fakeProvider(t, nil, 0)
	c := New(srv.URL, "cid", "csecret", "http://localhost/auth/callback", "api://test/user_impersonation")

	require.False(t, c.Initialized())
	require.NoError(t, c.Initialize(context.Background()))
	require.True(t, c.Initialized())

	// second call is a no-op
	require.NoError(t, c.Initialize(context.Background()))

	url := c.AuthCodeURL("state-1", "nonce-1")
	assert.Contains(t, url, srv.URL+"/authorize")
	assert.Contains(t, url, "state=state-1")
	assert.Contains(t, url, "nonce=nonce-1")
	assert.Contains(t, url, "offline_access")
}

func TestInitialize_DiscoveryFailure(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer bad.Close()

	c := New(bad.URL, "cid", "", "http://localhost/cb", "")
	err := c.Initialize(context.Background())
	require.Error(t, err)
	require.False(t, c.Initialized())

	// waiters see the failure immediately instead of blocking until their
	// context ends
	done := make(chan error, 1)
	go func() { done <- c.WaitReady(context.Background()) }()
	select {
	case werr := <-done:
		require.Error(t, werr)
	case <-time.After(time.Second):
		t.Fatal("WaitReady hung after a failed discovery attempt")
	}
}

func TestInitialize_RetryAfterFailure(t *testing.T) {
	var healthy atomic.Bool
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":                 srv.URL,
			"authorization_endpoint": srv.URL + "/authorize",
			"token_endpoint":         srv.URL + "/token",
			"jwks_uri":               srv.URL + "/keys",
		})
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL, "cid", "", "http://localhost/cb", "")
	require.Error(t, c.Initialize(context.Background()))
	require.Error(t, c.WaitReady(context.Background()))

	healthy.Store(true)
	require.NoError(t, c.Initialize(context.Background()))
	require.True(t, c.Initialized())
	require.NoError(t, c.WaitReady(context.Background()))
}

func TestExchange_ExtractsAccount(t *testing.T) {
	idToken := unsignedIDToken(t, map[string]interface{}{
		"iss": "test", "aud": "cid", "exp": 9999999999,
		"preferred_username": "alice@corp.example",
		"oid":                "oid-123",
		"tid":                "tid-456",
		"name":               "Alice",
		"nonce":              "n-1",
	})
	srv := fakeProvider(t, map[string]interface{}{
		"access_token":  "api-at",
		"refresh_token": "rt-1",
		"token_type":    "Bearer",
		"expires_in":    3600,
		"id_token":      idToken,
	}, 0)

	_ = os.Setenv("ALLOW_INSECURE_TOKEN", "true")
	defer os.Unsetenv("ALLOW_INSECURE_TOKEN")

	c := New(srv.URL, "cid", "cs", "http://localhost/cb", "api://x/scope")
	require.NoError(t, c.Initialize(context.Background()))

	ts, err := c.Exchange(context.Background(), "auth-code", "n-1")
	require.NoError(t, err)
	assert.Equal(t, "api-at", ts.AccessToken)
	assert.Equal(t, "rt-1", ts.RefreshToken)
	require.NotNil(t, ts.Account)
	assert.Equal(t, "alice@corp.example", ts.Account.Username)
	assert.Equal(t, "oid-123", ts.Account.ObjectID)
}

func TestExchange_NonceMismatch(t *testing.T) {
	idToken := unsignedIDToken(t, map[string]interface{}{
		"preferred_username": "alice@corp", "nonce": "other",
	})
	srv := fakeProvider(t, map[string]interface{}{
		"access_token": "at", "id_token": idToken,
	}, 0)

	_ = os.Setenv("ALLOW_INSECURE_TOKEN", "true")
	defer os.Unsetenv("ALLOW_INSECURE_TOKEN")

	c := New(srv.URL, "cid", "cs", "http://localhost/cb", "")
	require.NoError(t, c.Initialize(context.Background()))

	_, err := c.Exchange(context.Background(), "code", "n-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonce")
}

func TestRenew_Silent(t *testing.T) {
	srv := fakeProvider(t, map[string]interface{}{
		"access_token": "renewed-at",
		"token_type":   "Bearer",
		"expires_in":   3600,
	}, 0)

	c := New(srv.URL, "cid", "cs", "http://localhost/cb", "")
	require.NoError(t, c.Initialize(context.Background()))

	ts, err := c.Renew(context.Background(), "rt-old")
	require.NoError(t, err)
	assert.Equal(t, "renewed-at", ts.AccessToken)
	// provider omitted the refresh token; the old capability is kept
	assert.Equal(t, "rt-old", ts.RefreshToken)
}

func TestRenew_NoRefreshToken(t *testing.T) {
	srv := fakeProvider(t, nil, 0)
	c := New(srv.URL, "cid", "cs", "http://localhost/cb", "")
	require.NoError(t, c.Initialize(context.Background()))

	_, err := c.Renew(context.Background(), "")
	require.Error(t, err)
}

func TestRenew_InvalidGrant(t *testing.T) {
	srv := fakeProvider(t, nil, http.StatusBadRequest)
	c := New(srv.URL, "cid", "cs", "http://localhost/cb", "")
	require.NoError(t, c.Initialize(context.Background()))

	_, err := c.Renew(context.Background(), "rt-revoked")
	require.Error(t, err)
}

func TestEndSessionURL(t *testing.T) {
	c := New(AzureIssuer("tid-1"), "cid", "", "", "")
	u := c.EndSessionURL("https://app.example.com/login")
	assert.True(t, strings.HasPrefix(u, "https://login.microsoftonline.com/tid-1/oauth2/v2.0/logout"))
	assert.Contains(t, u, "post_logout_redirect_uri=")
}

func TestDefaultStrategies_Order(t *testing.T) {
	strategies := DefaultStrategies(nil)
	require.Len(t, strategies, 2)
	assert.Equal(t, "silent", strategies[0].Name())
	assert.Equal(t, "interactive", strategies[1].Name())

	_, err := strategies[1].Acquire(context.Background(), "rt")
	require.ErrorIs(t, err, ErrInteractionRequired)
}
