package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"github.com/docport/gateway/internal/backend"
	"github.com/docport/gateway/internal/idp"
	"github.com/docport/gateway/internal/store"
	"github.com/docport/gateway/internal/tokens"
	"github.com/docport/gateway/pkg/logger"
	"github.com/docport/gateway/pkg/metrics"
)

// Provider is the identity-provider surface the reconciler depends on.
type Provider interface {
	WaitReady(ctx context.Context) error
	Exchange(ctx context.Context, code, nonce string) (*idp.TokenSet, error)
}

// Backend is the remote API surface the reconciler depends on.
type Backend interface {
	AzureLogin(ctx context.Context, providerToken string, account *backend.AccountInfo) (*backend.AuthResponse, error)
	Me(ctx context.Context, token string) (*backend.User, error)
	Logout(ctx context.Context, token string) error
}

const minRecordTTL = time.Minute

// Reconciler produces the single authoritative session verdict per gateway
// session by reconciling the token store, the identity provider and the
// backend's acceptance of the stored token.
type Reconciler struct {
	repo       store.Repository
	blacklist  *store.Blacklist
	provider   Provider
	api        Backend
	strategies []idp.Strategy

	maxTTL  time.Duration // cap on session record lifetime
	recheck time.Duration // how long an authenticated verdict stays fresh

	states *ttlcache.Cache[string, *sessionState]
}

// New constructs a reconciler. strategies is the ordered renewal list; pass
// idp.DefaultStrategies in production.
func New(repo store.Repository, bl *store.Blacklist, p Provider, api Backend, strategies []idp.Strategy, maxTTL, recheck time.Duration) *Reconciler {
	if maxTTL <= 0 {
		maxTTL = 7 * 24 * time.Hour
	}
	if recheck <= 0 {
		recheck = 5 * time.Minute
	}
	states := ttlcache.New(
		ttlcache.WithTTL[string, *sessionState](maxTTL),
	)
	go states.Start()
	return &Reconciler{
		repo:       repo,
		blacklist:  bl,
		provider:   p,
		api:        api,
		strategies: strategies,
		maxTTL:     maxTTL,
		recheck:    recheck,
		states:     states,
	}
}

func (r *Reconciler) state(id string) *sessionState {
	if item := r.states.Get(id); item != nil {
		return item.Value()
	}
	st := &sessionState{state: StateUninitialized}
	r.states.Set(id, st, ttlcache.DefaultTTL)
	return st
}

// Verdict returns the current cached verdict without side effects.
func (r *Reconciler) Verdict(id string) Verdict {
	return r.state(id).verdict()
}

// NeedsCheck reports whether a session has no fresh terminal verdict.
func (r *Reconciler) NeedsCheck(id string) bool {
	st := r.state(id)
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.state.Terminal() {
		return true
	}
	return st.state == StateAuthenticated && time.Since(st.checkedAt) > r.recheck
}

// Check runs one reconciliation pass for the session. Only one pass may run
// at a time per session; an overlapping request returns ErrCheckInFlight with
// no side effects.
func (r *Reconciler) Check(ctx context.Context, id string) (Verdict, error) {
	st := r.state(id)

	st.mu.Lock()
	if st.inflight {
		v := Verdict{State: st.state, User: st.user, Err: st.err}
		st.mu.Unlock()
		return v, ErrCheckInFlight
	}
	st.inflight = true
	st.state = StateChecking
	st.mu.Unlock()

	defer func() {
		st.mu.Lock()
		st.inflight = false
		st.mu.Unlock()
	}()

	// the provider must have finished its startup handshake before the first
	// real checking pass
	if err := r.provider.WaitReady(ctx); err != nil {
		st.publish(StateUnauthenticated, nil, err)
		metrics.ReconciliationsTotal.WithLabelValues("unauthenticated").Inc()
		return st.verdict(), nil
	}

	v := r.reconcile(ctx, id, st)
	return v, nil
}

func (r *Reconciler) reconcile(ctx context.Context, id string, st *sessionState) Verdict {
	rec, err := r.repo.Get(ctx, id)
	if err != nil {
		logger.Errorf("session %s: store read failed: %v", id, err)
		st.publish(StateUnauthenticated, nil, err)
		metrics.ReconciliationsTotal.WithLabelValues("unauthenticated").Inc()
		return st.verdict()
	}

	// 1. no stored token: fast rejection, no network calls
	if rec == nil || rec.Token == "" {
		st.publish(StateUnauthenticated, nil, nil)
		metrics.ReconciliationsTotal.WithLabelValues("unauthenticated").Inc()
		return st.verdict()
	}

	// 2. a token without a backing provider account is invalid
	if !rec.HasAccount() {
		_ = r.repo.Delete(ctx, id)
		st.publish(StateUnauthenticated, nil, nil)
		metrics.ReconciliationsTotal.WithLabelValues("unauthenticated").Inc()
		return st.verdict()
	}

	// tokens invalidated by logout are rejected locally
	if hit, err := r.blacklist.Contains(ctx, rec.Token); err == nil && hit {
		_ = r.repo.Delete(ctx, id)
		st.publish(StateUnauthenticated, nil, nil)
		metrics.ReconciliationsTotal.WithLabelValues("unauthenticated").Inc()
		return st.verdict()
	}

	// 3. ask the backend whether the token is still accepted
	fresh, err := r.api.Me(ctx, rec.Token)
	if err == nil {
		r.publishValid(ctx, id, st, rec, fresh)
		metrics.ReconciliationsTotal.WithLabelValues("authenticated").Inc()
		return st.verdict()
	}

	if !backend.IsUnauthorized(err) {
		// an outage or backend fault is not a verdict on the token: keep the
		// stored record and surface the failure
		logger.Warnf("session %s: backend validation failed: %v", id, err)
		st.publish(StateUnauthenticated, nil, err)
		metrics.ReconciliationsTotal.WithLabelValues(outcomeLabel(err)).Inc()
		return st.verdict()
	}

	// 4. rejected: run the renewal strategies in order
	if v, ok := r.renew(ctx, id, st, rec); ok {
		return v
	}

	_ = r.repo.Delete(ctx, id)
	st.publish(StateUnauthenticated, nil, idp.ErrInteractionRequired)
	metrics.ReconciliationsTotal.WithLabelValues("unauthenticated").Inc()
	return st.verdict()
}

// publishValid handles a token the backend accepted: cached profile first for
// the immediate verdict, fresh profile applied afterwards under the logout
// check (stale-while-revalidate).
func (r *Reconciler) publishValid(ctx context.Context, id string, st *sessionState, rec *store.Record, fresh *backend.User) {
	if rec.Profile != nil {
		st.publish(StateAuthenticated, rec.Profile, nil)
		go r.applyProfile(context.WithoutCancel(ctx), id, st, rec, fresh)
		return
	}
	rec.Profile = fresh
	rec.UpdatedAt = time.Now().UTC()
	wrote, err := r.putLive(ctx, st, rec)
	if !wrote {
		// logged out while the pass was validating; the cleared store stays cleared
		return
	}
	if err != nil {
		logger.Warnf("session %s: profile write failed: %v", id, err)
	}
	st.publish(StateAuthenticated, fresh, nil)
}

// applyProfile is the revalidate half of stale-while-revalidate: it replaces
// the cached profile unless the session was logged out meanwhile.
func (r *Reconciler) applyProfile(ctx context.Context, id string, st *sessionState, rec *store.Record, fresh *backend.User) {
	rec.Profile = fresh
	rec.UpdatedAt = time.Now().UTC()

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.loggedOut {
		return
	}
	st.user = fresh
	// the write happens under the lock so a concurrent Logout cannot slip in
	// between the flag check and the store write
	if err := r.repo.Put(ctx, rec); err != nil {
		logger.Warnf("session %s: profile refresh write failed: %v", id, err)
	}
}

// putLive writes rec unless the session was logged out meanwhile. Holding the
// state lock across the write means a concurrent Logout either ran first and
// the write is skipped, or waits for the write and deletes the record after
// it; a cleared store can never be re-populated by a pass that lost the race.
func (r *Reconciler) putLive(ctx context.Context, st *sessionState, rec *store.Record) (bool, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.loggedOut {
		return false, nil
	}
	return true, r.repo.Put(ctx, rec)
}

// renew walks the ordered strategy list: exactly one silent attempt before
// the interactive fallback. On success the renewed provider token is
// exchanged for a new backend token which replaces the old one.
func (r *Reconciler) renew(ctx context.Context, id string, st *sessionState, rec *store.Record) (Verdict, bool) {
	for _, s := range r.strategies {
		ts, err := s.Acquire(ctx, rec.RefreshToken)
		if err != nil {
			metrics.RenewalAttempts.WithLabelValues(s.Name(), "failure").Inc()
			logger.Debugf("session %s: %s renewal failed: %v", id, s.Name(), err)
			continue
		}
		metrics.RenewalAttempts.WithLabelValues(s.Name(), "success").Inc()

		resp, err := r.api.AzureLogin(ctx, ts.AccessToken, accountInfo(rec.Account))
		if err != nil {
			logger.Warnf("session %s: backend exchange after %s renewal failed: %v", id, s.Name(), err)
			if !backend.IsUnauthorized(err) {
				// the renewed provider token may still be good; keep the record
				st.publish(StateUnauthenticated, nil, err)
				metrics.ReconciliationsTotal.WithLabelValues(outcomeLabel(err)).Inc()
				return st.verdict(), true
			}
			return Verdict{}, false
		}

		// replace, never append: the record keeps exactly one backend token
		rec.Token = resp.AccessToken
		rec.RefreshToken = ts.RefreshToken
		rec.Profile = resp.User
		rec.UpdatedAt = time.Now().UTC()
		rec.ExpiresAt = time.Now().UTC().Add(tokens.TTLUntil(resp.AccessToken, minRecordTTL, r.maxTTL))
		wrote, err := r.putLive(ctx, st, rec)
		if !wrote {
			// logged out mid-renewal; the cleared store stays cleared
			return st.verdict(), true
		}
		if err != nil {
			logger.Errorf("session %s: store write after renewal failed: %v", id, err)
			return Verdict{}, false
		}
		st.publish(StateAuthenticated, resp.User, nil)
		metrics.ReconciliationsTotal.WithLabelValues("renewed").Inc()
		return st.verdict(), true
	}
	return Verdict{}, false
}

// CompleteLogin finishes the interactive sign-in: provider code exchange,
// backend login exchange, then a fresh session record. Returns the new
// session id for the cookie.
func (r *Reconciler) CompleteLogin(ctx context.Context, code, nonce string) (string, *Verdict, error) {
	if err := r.provider.WaitReady(ctx); err != nil {
		return "", nil, err
	}
	ts, err := r.provider.Exchange(ctx, code, nonce)
	if err != nil {
		return "", nil, err
	}
	resp, err := r.api.AzureLogin(ctx, ts.AccessToken, accountInfoFromIDP(ts.Account))
	if err != nil {
		return "", nil, err
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	rec := &store.Record{
		ID:           id,
		Token:        resp.AccessToken,
		RefreshToken: ts.RefreshToken,
		Account:      storeAccount(ts.Account),
		Profile:      resp.User,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(tokens.TTLUntil(resp.AccessToken, minRecordTTL, r.maxTTL)),
	}
	if err := r.repo.Put(ctx, rec); err != nil {
		return "", nil, err
	}

	st := r.state(id)
	st.publish(StateAuthenticated, resp.User, nil)
	metrics.ReconciliationsTotal.WithLabelValues("authenticated").Inc()
	v := st.verdict()
	return id, &v, nil
}

// Logout clears the session synchronously (store + runtime state) before the
// best-effort backend notification, so protected content stops rendering
// immediately even when the backend call fails.
func (r *Reconciler) Logout(ctx context.Context, id string) {
	st := r.state(id)
	st.mu.Lock()
	st.loggedOut = true
	st.state = StateUnauthenticated
	st.user = nil
	st.err = nil
	st.mu.Unlock()

	rec, err := r.repo.Get(ctx, id)
	if err != nil {
		logger.Warnf("session %s: store read during logout failed: %v", id, err)
	}
	if err := r.repo.Delete(ctx, id); err != nil {
		logger.Warnf("session %s: store clear during logout failed: %v", id, err)
	}

	if rec == nil || rec.Token == "" {
		return
	}
	if err := r.blacklist.Add(ctx, rec.Token, tokens.TTLUntil(rec.Token, minRecordTTL, r.maxTTL)); err != nil {
		logger.Warnf("session %s: blacklist write failed: %v", id, err)
	}
	// best-effort server-side invalidation
	if err := r.api.Logout(ctx, rec.Token); err != nil {
		logger.Warnf("session %s: backend logout failed: %v", id, err)
	}
}

// outcomeLabel maps a non-auth backend failure to its reconciliation outcome:
// transport failures count as unreachable, backend faults as error.
func outcomeLabel(err error) string {
	if backend.IsUnreachable(err) {
		return "unreachable"
	}
	return "error"
}

func storeAccount(a *idp.Account) *store.Account {
	if a == nil {
		return nil
	}
	return &store.Account{Username: a.Username, ObjectID: a.ObjectID, TenantID: a.TenantID}
}

func accountInfo(a *store.Account) *backend.AccountInfo {
	if a == nil {
		return nil
	}
	return &backend.AccountInfo{
		HomeAccountID: a.ObjectID + "." + a.TenantID,
		TenantID:      a.TenantID,
		Username:      a.Username,
	}
}

func accountInfoFromIDP(a *idp.Account) *backend.AccountInfo {
	return accountInfo(storeAccount(a))
}
