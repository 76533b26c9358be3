package middleware

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
	"github.com/docport/gateway/internal/session"
	"github.com/docport/gateway/internal/store"
)

type fakeReconciler struct {
	verdict    session.Verdict
	needsCheck bool
	checkErr   error
	checks     int
}

func (f *fakeReconciler) Verdict(id string) session.Verdict { return f.verdict }
func (f *fakeReconciler) NeedsCheck(id string) bool         { return f.needsCheck }
func (f *fakeReconciler) Check(ctx context.Context, id string) (session.Verdict, error) {
	f.checks++
	return f.verdict, f.checkErr
}

func guardRouter(t *testing.T, rec *fakeReconciler, repo store.Repository) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := Guard(GuardConfig{
		Reconciler: rec,
		Store:      repo,
		CookieName: "docport_session",
		LoginPath:  "/auth/login",
	})
	r.GET("/api/v1/documents", g, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"token": TokenFrom(c), "user": UserFrom(c).Username})
	})
	r.GET("/documents", g, func(c *gin.Context) {
		c.String(http.StatusOK, "page")
	})
	return r
}

func seedSession(t *testing.T, repo store.Repository, id string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, repo.Put(context.Background(), &store.Record{
		ID:        id,
		Token:     "api-token",
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}))
}

func TestGuard_NoCookie_APIGets401(t *testing.T) {
	rec := &fakeReconciler{}
	r := guardRouter(t, rec, store.NewMemoryRepository())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, rec.checks, "missing cookie must be rejected without a reconciliation pass")
}

func TestGuard_NoCookie_PageRedirects(t *testing.T) {
	rec := &fakeReconciler{}
	r := guardRouter(t, rec, store.NewMemoryRepository())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Accept", "text/html")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "/auth/login?next=%2Fdocuments")
}

func TestGuard_Authenticated(t *testing.T) {
	repo := store.NewMemoryRepository()
	seedSession(t, repo, "s-1")
	rec := &fakeReconciler{
		verdict: session.Verdict{State: session.StateAuthenticated, User: &backend.User{Username: "alice@corp"}},
	}
	r := guardRouter(t, rec, repo)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
	req.AddCookie(&http.Cookie{Name: "docport_session", Value: "s-1"})
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "api-token")
	assert.Contains(t, w.Body.String(), "alice@corp")
}

func TestGuard_FreshVerdictSkipsCheck(t *testing.T) {
	repo := store.NewMemoryRepository()
	seedSession(t, repo, "s-1")
	rec := &fakeReconciler{
		verdict:    session.Verdict{State: session.StateAuthenticated, User: &backend.User{Username: "a"}},
		needsCheck: false,
	}
	r := guardRouter(t, rec, repo)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
	req.AddCookie(&http.Cookie{Name: "docport_session", Value: "s-1"})
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, rec.checks)
}

func TestGuard_StaleVerdictTriggersCheck(t *testing.T) {
	repo := store.NewMemoryRepository()
	seedSession(t, repo, "s-1")
	rec := &fakeReconciler{
		verdict:    session.Verdict{State: session.StateAuthenticated, User: &backend.User{Username: "a"}},
		needsCheck: true,
	}
	r := guardRouter(t, rec, repo)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
	req.AddCookie(&http.Cookie{Name: "docport_session", Value: "s-1"})
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, rec.checks)
}

func TestGuard_Unauthenticated(t *testing.T) {
	rec := &fakeReconciler{
		verdict:    session.Verdict{State: session.StateUnauthenticated},
		needsCheck: true,
	}
	r := guardRouter(t, rec, store.NewMemoryRepository())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
	req.AddCookie(&http.Cookie{Name: "docport_session", Value: "stale"})
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGuard_BackendOutageIs503(t *testing.T) {
	rec := &fakeReconciler{
		verdict: session.Verdict{
			State: session.StateUnauthenticated,
			Err:   &backend.Error{Kind: backend.KindUnreachable, Message: "down"},
		},
		needsCheck: true,
	}
	r := guardRouter(t, rec, store.NewMemoryRepository())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
	req.AddCookie(&http.Cookie{Name: "docport_session", Value: "s-1"})
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "5", w.Header().Get("Retry-After"))
}

func TestGuard_VerdictWithoutRecordDenies(t *testing.T) {
	// the store lost the record while the verdict was still cached
	rec := &fakeReconciler{
		verdict: session.Verdict{State: session.StateAuthenticated, User: &backend.User{Username: "a"}},
	}
	r := guardRouter(t, rec, store.NewMemoryRepository())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
	req.AddCookie(&http.Cookie{Name: "docport_session", Value: "s-1"})
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
