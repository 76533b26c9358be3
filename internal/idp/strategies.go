package idp

import (
	"context"
	"errors"
)

// ErrInteractionRequired signals that no token can be minted without sending
// the user back through interactive sign-in.
var ErrInteractionRequired = errors.New("interactive sign-in required")

// Renewer is the minimal surface a renewal strategy needs from the provider.
type Renewer interface {
	Renew(ctx context.Context, refreshToken string) (*TokenSet, error)
}

// Strategy is one way of acquiring a fresh API token for an existing account.
// Strategies are tried in order; each is independently testable with a fake.
type Strategy interface {
	Name() string
	Acquire(ctx context.Context, refreshToken string) (*TokenSet, error)
}

// SilentStrategy renews through the refresh grant without user interaction.
type SilentStrategy struct {
	Client Renewer
}

func (s *SilentStrategy) Name() string { return "silent" }

func (s *SilentStrategy) Acquire(ctx context.Context, refreshToken string) (*TokenSet, error) {
	return s.Client.Renew(ctx, refreshToken)
}

// InteractiveStrategy is the fallback once silent renewal fails. The gateway
// cannot open provider UI server-side, so it resolves to
// ErrInteractionRequired and the guard redirects the browser to sign-in.
type InteractiveStrategy struct{}

func (s *InteractiveStrategy) Name() string { return "interactive" }

func (s *InteractiveStrategy) Acquire(ctx context.Context, refreshToken string) (*TokenSet, error) {
	return nil, ErrInteractionRequired
}

// DefaultStrategies returns the renewal order used in production: exactly one
// silent attempt, then the interactive fallback.
func DefaultStrategies(c Renewer) []Strategy {
	return []Strategy{&SilentStrategy{Client: c}, &InteractiveStrategy{}}
}
