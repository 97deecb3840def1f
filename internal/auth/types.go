package auth

import "time"

// Identity is an authenticated actor: a human or service account with a
// role and an optional organization. PasswordChangedAt is the credential
// epoch: it advances on every secret change and invalidates all tokens
// issued before it. It is always stored and compared in UTC.
type Identity struct {
	ID                string    `json:"id"`
	Username          string    `json:"username"`
	Email             string    `json:"email"`
	FullName          string    `json:"full_name"`
	PasswordHash      string    `json:"-"`
	Role              Role      `json:"role"`
	OrganizationID    string    `json:"organization_id,omitempty"`
	Active            bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	PasswordChangedAt time.Time `json:"-"`
}

// Organization is the tenant isolation boundary grouping identities and
// cases.
type Organization struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Plan        string    `json:"plan"`
	MaxUsers    int       `json:"max_users"`
	MaxCases    int       `json:"max_cases"`
	Active      bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
