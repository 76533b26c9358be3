package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docport/gateway/internal/backend"
	"github.com/docport/gateway/internal/config"
	"github.com/docport/gateway/internal/session"
	"github.com/docport/gateway/pkg/logger"
)

const (
	stateCookie = "docport_oauth_state"
	nonceCookie = "docport_oauth_nonce"
	nextCookie  = "docport_login_next"

	// oauth cookies only need to survive one round trip to the provider
	oauthCookieTTL = 600
)

// AuthProvider is the identity-provider surface the auth handler depends on.
type AuthProvider interface {
	AuthCodeURL(state, nonce string) string
	EndSessionURL(postLogoutRedirect string) string
	Initialized() bool
}

// SessionManager is the reconciler surface the auth handler depends on.
type SessionManager interface {
	Verdict(id string) session.Verdict
	NeedsCheck(id string) bool
	Check(ctx context.Context, id string) (session.Verdict, error)
	CompleteLogin(ctx context.Context, code, nonce string) (string, *session.Verdict, error)
	Logout(ctx context.Context, id string)
}

// AuthHandler owns the sign-in, callback, sign-out and session-probe routes.
type AuthHandler struct {
	cfg      *config.Config
	provider AuthProvider
	sessions SessionManager
}

func NewAuthHandler(cfg *config.Config, p AuthProvider, s SessionManager) *AuthHandler {
	return &AuthHandler{cfg: cfg, provider: p, sessions: s}
}

// Register routes under /auth
func (h *AuthHandler) Register(r *gin.Engine) {
	a := r.Group("/auth")
	a.GET("/login", h.Login)
	a.GET("/callback", h.Callback)
	a.POST("/logout", h.Logout)
	a.GET("/me", h.Me)
	a.POST("/verify", h.Verify)
}

// Login starts the interactive sign-in: state and nonce go into short-lived
// cookies, the browser goes to the provider.
func (h *AuthHandler) Login(c *gin.Context) {
	if !h.provider.Initialized() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "identity provider not ready"})
		return
	}
	state := uuid.NewString()
	nonce := uuid.NewString()

	secure := h.cfg.Session.CookieSecure
	c.SetCookie(stateCookie, state, oauthCookieTTL, "/", "", secure, true)
	c.SetCookie(nonceCookie, nonce, oauthCookieTTL, "/", "", secure, true)
	if next := c.Query("next"); next != "" && safeNext(next) {
		c.SetCookie(nextCookie, next, oauthCookieTTL, "/", "", secure, true)
	}

	c.Redirect(http.StatusFound, h.provider.AuthCodeURL(state, nonce))
}

// Callback finishes the sign-in: state check, code exchange, session cookie.
func (h *AuthHandler) Callback(c *gin.Context) {
	if errParam := c.Query("error"); errParam != "" {
		logger.Warnf("provider returned sign-in error: %s (%s)", errParam, c.Query("error_description"))
		c.JSON(http.StatusUnauthorized, gin.H{"error": errParam, "description": c.Query("error_description")})
		return
	}
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing authorization code"})
		return
	}
	wantState, err := c.Cookie(stateCookie)
	if err != nil || wantState == "" || c.Query("state") != wantState {
		c.JSON(http.StatusBadRequest, gin.H{"error": "state mismatch"})
		return
	}
	nonce, _ := c.Cookie(nonceCookie)

	id, v, err := h.sessions.CompleteLogin(c.Request.Context(), code, nonce)
	if err != nil {
		logger.Errorf("sign-in completion failed: %v", err)
		if backend.IsUnreachable(err) {
			c.JSON(http.StatusBadGateway, gin.H{"error": "backend unavailable"})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "sign-in failed"})
		return
	}

	secure := h.cfg.Session.CookieSecure
	maxAge := int(h.cfg.Session.TTL.Seconds())
	c.SetCookie(h.cfg.Session.CookieName, id, maxAge, "/", "", secure, true)
	c.SetCookie(stateCookie, "", -1, "/", "", secure, true)
	c.SetCookie(nonceCookie, "", -1, "/", "", secure, true)

	next := "/"
	if n, err := c.Cookie(nextCookie); err == nil && safeNext(n) {
		next = n
		c.SetCookie(nextCookie, "", -1, "/", "", secure, true)
	}
	logger.Infof("session %s: signed in as %s", id, v.User.Username)
	c.Redirect(http.StatusFound, next)
}

// Logout clears the session and hands back the provider sign-out URL. The
// local session is gone even when the backend notification fails.
func (h *AuthHandler) Logout(c *gin.Context) {
	secure := h.cfg.Session.CookieSecure
	if id, err := c.Cookie(h.cfg.Session.CookieName); err == nil && id != "" {
		h.sessions.Logout(c.Request.Context(), id)
	}
	c.SetCookie(h.cfg.Session.CookieName, "", -1, "/", "", secure, true)
	c.JSON(http.StatusOK, gin.H{
		"message":  "logged out",
		"redirect": h.provider.EndSessionURL(h.cfg.Server.PublicURL),
	})
}

// Me is the session probe: the current verdict plus the profile, re-checked
// when stale.
func (h *AuthHandler) Me(c *gin.Context) {
	id, err := c.Cookie(h.cfg.Session.CookieName)
	if err != nil || id == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"authenticated": false})
		return
	}
	v := h.verdictFor(c, id)
	switch {
	case v.State == session.StateAuthenticated:
		c.JSON(http.StatusOK, gin.H{"authenticated": true, "user": v.User})
	case v.Err != nil && backend.IsUnreachable(v.Err):
		c.Header("Retry-After", "5")
		c.JSON(http.StatusServiceUnavailable, gin.H{"authenticated": false, "error": "backend unavailable"})
	default:
		c.JSON(http.StatusUnauthorized, gin.H{"authenticated": false})
	}
}

// Verify forces a reconciliation pass regardless of verdict freshness.
func (h *AuthHandler) Verify(c *gin.Context) {
	id, err := c.Cookie(h.cfg.Session.CookieName)
	if err != nil || id == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"authenticated": false})
		return
	}
	v, err := h.sessions.Check(c.Request.Context(), id)
	if err != nil {
		// a pass is already running; report its progress
		c.JSON(http.StatusAccepted, gin.H{"status": "checking"})
		return
	}
	if v.State == session.StateAuthenticated {
		c.JSON(http.StatusOK, gin.H{"authenticated": true, "user": v.User})
		return
	}
	c.JSON(http.StatusUnauthorized, gin.H{"authenticated": false})
}

func (h *AuthHandler) verdictFor(c *gin.Context, id string) session.Verdict {
	if !h.sessions.NeedsCheck(id) {
		return h.sessions.Verdict(id)
	}
	v, err := h.sessions.Check(c.Request.Context(), id)
	if err != nil {
		return h.sessions.Verdict(id)
	}
	return v
}

// safeNext accepts only same-origin relative paths as post-login targets.
func safeNext(next string) bool {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return false
	}
	u, err := url.Parse(next)
	return err == nil && u.Host == "" && u.Scheme == ""
}
