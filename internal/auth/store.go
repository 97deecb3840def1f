package auth

import (
	"context"
	"time"
)

// UserStore describes persistence for identities.
type UserStore interface {
	Create(ctx context.Context, identity *Identity) error
	Find(ctx context.Context, id string) (*Identity, error)
	FindByUsername(ctx context.Context, username string) (*Identity, error)
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	// List returns identities matching the filter ordered by creation time.
	List(ctx context.Context, filter UserFilter) ([]*Identity, error)
	Update(ctx context.Context, identity *Identity) error
	// UpdatePassword replaces the credential hash and advances the
	// credential epoch in one statement.
	UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error
	Delete(ctx context.Context, id string) error
}

// UserFilter narrows List results. Zero values are "no constraint".
type UserFilter struct {
	OrganizationID string
	ActiveOnly     bool
	IDs            []string
	Skip           int
	Limit          int
}

// OrganizationStore describes persistence for tenants.
type OrganizationStore interface {
	Create(ctx context.Context, org *Organization) error
	Find(ctx context.Context, id string) (*Organization, error)
	FindByName(ctx context.Context, name string) (*Organization, error)
	List(ctx context.Context, activeOnly bool, skip, limit int) ([]*Organization, error)
	// Update persists the organization row. When cascadeDeactivate is set
	// the member identities are flipped inactive inside the same
	// transaction; the returned count is the number of members affected.
	Update(ctx context.Context, org *Organization, cascadeDeactivate bool) (int64, error)
	// Delete removes every member identity and then the tenant row inside
	// one transaction. Cases and evidence cascade at the storage layer.
	// The returned count is the number of identities deleted.
	Delete(ctx context.Context, id string) (int64, error)
}
