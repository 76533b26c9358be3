package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docport/gateway/internal/backend"
	"github.com/docport/gateway/internal/config"
	"github.com/docport/gateway/internal/session"
)

type fakeAuthProvider struct {
	initialized bool
}

func (f *fakeAuthProvider) AuthCodeURL(state, nonce string) string {
	return "https://idp.example.com/authorize?state=" + state + "&nonce=" + nonce
}

func (f *fakeAuthProvider) EndSessionURL(postLogoutRedirect string) string {
	return "https://idp.example.com/logout?post_logout_redirect_uri=" + postLogoutRedirect
}

func (f *fakeAuthProvider) Initialized() bool { return f.initialized }

type fakeSessions struct {
	verdict     session.Verdict
	needsCheck  bool
	checkErr    error
	loginID     string
	loginErr    error
	loggedOut   []string
	checkedOnce bool
}

func (f *fakeSessions) Verdict(id string) session.Verdict { return f.verdict }
func (f *fakeSessions) NeedsCheck(id string) bool         { return f.needsCheck }
func (f *fakeSessions) Check(ctx context.Context, id string) (session.Verdict, error) {
	f.checkedOnce = true
	return f.verdict, f.checkErr
}
func (f *fakeSessions) CompleteLogin(ctx context.Context, code, nonce string) (string, *session.Verdict, error) {
	if f.loginErr != nil {
		return "", nil, f.loginErr
	}
	v := session.Verdict{State: session.StateAuthenticated, User: &backend.User{Username: "alice@corp"}}
	return f.loginID, &v, nil
}
func (f *fakeSessions) Logout(ctx context.Context, id string) {
	f.loggedOut = append(f.loggedOut, id)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Session.CookieName = "docport_session"
	cfg.Session.TTL = time.Hour
	cfg.Server.PublicURL = "https://app.example.com"
	return cfg
}

func authRouter(p *fakeAuthProvider, s *fakeSessions) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewAuthHandler(testConfig(), p, s).Register(r)
	return r
}

func cookieValue(t *testing.T, w *httptest.ResponseRecorder, name string) string {
	t.Helper()
	for _, ck := range w.Result().Cookies() {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

func TestLogin_RedirectsWithStateAndNonce(t *testing.T) {
	r := authRouter(&fakeAuthProvider{initialized: true}, &fakeSessions{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	assert.Equal(t, http.StatusFound, w.Code)
	state := cookieValue(t, w, stateCookie)
	nonce := cookieValue(t, w, nonceCookie)
	require.NotEmpty(t, state)
	require.NotEmpty(t, nonce)
	loc := w.Header().Get("Location")
	assert.Contains(t, loc, "state="+state)
	assert.Contains(t, loc, "nonce="+nonce)
}

func TestLogin_ProviderNotReady(t *testing.T) {
	r := authRouter(&fakeAuthProvider{initialized: false}, &fakeSessions{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLogin_RejectsAbsoluteNext(t *testing.T) {
	r := authRouter(&fakeAuthProvider{initialized: true}, &fakeSessions{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/login?next=https://evil.example.com/", nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Empty(t, cookieValue(t, w, nextCookie))
}

func TestCallback_SetsSessionCookie(t *testing.T) {
	s := &fakeSessions{loginID: "sess-1"}
	r := authRouter(&fakeAuthProvider{initialized: true}, s)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state=st-1", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "st-1"})
	req.AddCookie(&http.Cookie{Name: nonceCookie, Value: "n-1"})
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "sess-1", cookieValue(t, w, "docport_session"))
	assert.Equal(t, "/", w.Header().Get("Location"))
}

func TestCallback_StateMismatch(t *testing.T) {
	r := authRouter(&fakeAuthProvider{initialized: true}, &fakeSessions{loginID: "sess-1"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state=forged", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "st-1"})
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, cookieValue(t, w, "docport_session"))
}

func TestCallback_HonorsNextCookie(t *testing.T) {
	s := &fakeSessions{loginID: "sess-1"}
	r := authRouter(&fakeAuthProvider{initialized: true}, s)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state=st-1", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "st-1"})
	req.AddCookie(&http.Cookie{Name: nextCookie, Value: "/documents"})
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/documents", w.Header().Get("Location"))
}

func TestCallback_ProviderError(t *testing.T) {
	r := authRouter(&fakeAuthProvider{initialized: true}, &fakeSessions{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?error=access_denied", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "access_denied")
}

func TestCallback_BackendUnreachable(t *testing.T) {
	s := &fakeSessions{loginErr: &backend.Error{Kind: backend.KindUnreachable, Message: "down"}}
	r := authRouter(&fakeAuthProvider{initialized: true}, s)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state=st-1", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "st-1"})
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestLogout_ClearsCookieEvenWithoutSession(t *testing.T) {
	s := &fakeSessions{}
	r := authRouter(&fakeAuthProvider{initialized: true}, s)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "idp.example.com/logout")
	assert.Empty(t, s.loggedOut)
}

func TestLogout_InvalidatesSession(t *testing.T) {
	s := &fakeSessions{}
	r := authRouter(&fakeAuthProvider{initialized: true}, s)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "docport_session", Value: "sess-1"})
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"sess-1"}, s.loggedOut)
	// cookie cleared
	for _, ck := range w.Result().Cookies() {
		if ck.Name == "docport_session" {
			assert.True(t, ck.MaxAge < 0 || ck.Value == "")
		}
	}
}

func TestMe_States(t *testing.T) {
	cases := []struct {
		name    string
		verdict session.Verdict
		status  int
	}{
		{"authenticated", session.Verdict{State: session.StateAuthenticated, User: &backend.User{Username: "a"}}, http.StatusOK},
		{"unauthenticated", session.Verdict{State: session.StateUnauthenticated}, http.StatusUnauthorized},
		{"unreachable", session.Verdict{State: session.StateUnauthenticated, Err: &backend.Error{Kind: backend.KindUnreachable}}, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := &fakeSessions{verdict: tc.verdict, needsCheck: true}
			r := authRouter(&fakeAuthProvider{initialized: true}, s)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			req.AddCookie(&http.Cookie{Name: "docport_session", Value: "sess-1"})
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestMe_NoCookie(t *testing.T) {
	r := authRouter(&fakeAuthProvider{initialized: true}, &fakeSessions{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVerify_InFlightReports202(t *testing.T) {
	s := &fakeSessions{checkErr: session.ErrCheckInFlight}
	r := authRouter(&fakeAuthProvider{initialized: true}, s)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/verify", nil)
	req.AddCookie(&http.Cookie{Name: "docport_session", Value: "sess-1"})
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "checking")
}

func TestSafeNext(t *testing.T) {
	assert.True(t, safeNext("/documents"))
	assert.True(t, safeNext("/chat?session=1"))
	assert.False(t, safeNext("https://evil.example.com"))
	assert.False(t, safeNext("//evil.example.com"))
	assert.False(t, safeNext("documents"))
}
