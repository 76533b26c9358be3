package session

import (
	"errors"
	"sync"
	"time"

	"github.com/docport/gateway/internal/backend"
)

// State is the reconciliation state of one gateway session. Transitions, not
// ad-hoc flags, gate behavior.
type State int

const (
	StateUninitialized State = iota
	StateChecking
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateChecking:
		return "checking"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	}
	return "unknown"
}

// Terminal reports whether the state is a definitive verdict for this cycle.
func (s State) Terminal() bool {
	return s == StateAuthenticated || s == StateUnauthenticated
}

// Verdict is the reconciler's answer: is there a valid session, and who is
// the user. Err carries the failure behind an unauthenticated verdict when one
// exists; backend.IsUnreachable(v.Err) distinguishes an outage from a
// rejection.
type Verdict struct {
	State State
	User  *backend.User
	Err   error
}

// ErrCheckInFlight is returned when a reconciliation pass is requested while
// another one is already running for the same session. The caller must
// re-request after the in-flight pass completes; no side effects occurred.
var ErrCheckInFlight = errors.New("reconciliation already in flight")

// sessionState is the in-memory runtime state for one session. The inflight
// flag serializes reconciliation passes; loggedOut prevents a stale pass from
// resurrecting a cleared session.
type sessionState struct {
	mu        sync.Mutex
	state     State
	user      *backend.User
	err       error
	inflight  bool
	loggedOut bool
	checkedAt time.Time
}

func (st *sessionState) verdict() Verdict {
	st.mu.Lock()
	defer st.mu.Unlock()
	return Verdict{State: st.state, User: st.user, Err: st.err}
}

// publish stores a terminal verdict. Callers must have completed all token
// store writes first so observers never see "authenticated but token missing".
func (st *sessionState) publish(s State, u *backend.User, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.loggedOut && s == StateAuthenticated {
		// a pass that finished after logout must not resurrect the session
		return
	}
	st.state = s
	st.user = u
	st.err = err
	st.checkedAt = time.Now()
}
