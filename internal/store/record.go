package store

import (
	"context"
	"time"

	"github.com/docport/gateway/internal/backend"
)

// Account is the identity-provider account backing a session: the gateway
// never inspects provider internals beyond these documented attributes.
type Account struct {
	Username string `bson:"username" json:"username"`
	ObjectID string `bson:"objectId" json:"objectId"`
	TenantID string `bson:"tenantId" json:"tenantId"`
}

// Record is the durable state kept for one browser session: the backend
// session token, the provider refresh capability, and the cached profile.
// Only the session reconciler and the logout path write records.
type Record struct {
	ID           string        `bson:"_id" json:"id"`
	Token        string        `bson:"token" json:"token"`
	RefreshToken string        `bson:"refreshToken,omitempty" json:"refreshToken,omitempty"`
	Account      *Account      `bson:"account,omitempty" json:"account,omitempty"`
	Profile      *backend.User `bson:"profile,omitempty" json:"profile,omitempty"`
	CreatedAt    time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time     `bson:"updatedAt" json:"updatedAt"`
	ExpiresAt    time.Time     `bson:"expiresAt" json:"expiresAt"`
}

// HasAccount reports whether the record carries a provider identity capable of
// token renewal. A session token without a backing account is invalid.
func (r *Record) HasAccount() bool {
	return r != nil && r.RefreshToken != "" && r.Account != nil
}

// Repository defines persistence for session records. Get returns (nil, nil)
// when no record exists or the stored record has expired.
type Repository interface {
	Get(ctx context.Context, id string) (*Record, error)
	Put(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, id string) error
}
