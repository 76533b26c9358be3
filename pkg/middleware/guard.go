package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/docport/gateway/internal/backend"
	"github.com/docport/gateway/internal/session"
	"github.com/docport/gateway/internal/store"
)

// context keys set by the guard for downstream handlers
const (
	CtxSessionID = "session_id"
	CtxUser      = "user"
	CtxToken     = "api_token"
)

// Reconciler is the session surface the guard depends on.
type Reconciler interface {
	Verdict(id string) session.Verdict
	NeedsCheck(id string) bool
	Check(ctx context.Context, id string) (session.Verdict, error)
}

// GuardConfig wires the guard middleware.
type GuardConfig struct {
	Reconciler Reconciler
	Store      store.Repository
	CookieName string
	// LoginPath is where browser requests without a session are redirected.
	LoginPath string
}

// Guard protects routes behind a session verdict. Requests without a session
// cookie are denied immediately with no backend traffic; requests with one get
// the reconciler's verdict, re-checked once it goes stale. API requests get a
// 401, page requests a redirect to sign-in carrying the original path.
func Guard(cfg GuardConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(cfg.CookieName)
		if err != nil || id == "" {
			deny(c, cfg.LoginPath)
			return
		}

		v := currentVerdict(c, cfg.Reconciler, id)
		switch {
		case v.State == session.StateAuthenticated:
			rec, err := cfg.Store.Get(c.Request.Context(), id)
			if err != nil || rec == nil || rec.Token == "" {
				// verdict and store disagree, treat as signed out
				deny(c, cfg.LoginPath)
				return
			}
			c.Set(CtxSessionID, id)
			c.Set(CtxUser, v.User)
			c.Set(CtxToken, rec.Token)
			c.Next()
		case v.Err != nil && backend.IsUnreachable(v.Err):
			// an outage is not a sign-out; tell the client to retry
			c.Header("Retry-After", "5")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "backend unavailable"})
		default:
			deny(c, cfg.LoginPath)
		}
	}
}

// currentVerdict returns a terminal verdict, running a reconciliation pass
// when the cached one is stale. An overlapping pass is waited out briefly
// rather than doubled.
func currentVerdict(c *gin.Context, r Reconciler, id string) session.Verdict {
	if !r.NeedsCheck(id) {
		return r.Verdict(id)
	}
	v, err := r.Check(c.Request.Context(), id)
	if err == nil {
		return v
	}
	// ErrCheckInFlight: another request is mid-pass for this session
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v := r.Verdict(id); v.State.Terminal() {
			return v
		}
		select {
		case <-c.Request.Context().Done():
			return session.Verdict{State: session.StateUnauthenticated, Err: c.Request.Context().Err()}
		case <-time.After(25 * time.Millisecond):
		}
	}
	return r.Verdict(id)
}

func deny(c *gin.Context, loginPath string) {
	if wantsJSON(c) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	// never redirect the sign-in page to itself
	if c.Request.URL.Path == loginPath {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	c.Redirect(http.StatusFound, loginPath+"?next="+url.QueryEscape(c.Request.URL.RequestURI()))
	c.Abort()
}

func wantsJSON(c *gin.Context) bool {
	if strings.HasPrefix(c.Request.URL.Path, "/api/") {
		return true
	}
	accept := c.GetHeader("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}

// SessionID returns the session id the guard attached, if any.
func SessionID(c *gin.Context) string {
	v, _ := c.Get(CtxSessionID)
	s, _ := v.(string)
	return s
}

// UserFrom returns the authenticated profile the guard attached.
func UserFrom(c *gin.Context) *backend.User {
	v, _ := c.Get(CtxUser)
	u, _ := v.(*backend.User)
	return u
}

// TokenFrom returns the backend API token for the authenticated session.
func TokenFrom(c *gin.Context) string {
	v, _ := c.Get(CtxToken)
	s, _ := v.(string)
	return s
}
