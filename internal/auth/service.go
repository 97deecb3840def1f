package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	defaultSessionTTL = 8 * time.Hour
	resetTokenTTL     = time.Hour

	defaultPlan     = "free"
	defaultMaxUsers = 10
	defaultMaxCases = 50
)

// Service implements authentication, session resolution and the
// user/organization halves of the authorization engine.
type Service struct {
	users  UserStore
	orgs   OrganizationStore
	resets ResetTokenStore

	now        func() time.Time
	sessionTTL time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithSessionTTL configures issued-token lifetime.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// NewService constructs the Service.
func NewService(users UserStore, orgs OrganizationStore, resets ResetTokenStore, opts ...ServiceOption) (*Service, error) {
	if users == nil || orgs == nil {
		return nil, errors.New("auth: user and organization stores are required")
	}
	if resets == nil {
		resets = NewMemoryResetStore()
	}
	svc := &Service{
		users:      users,
		orgs:       orgs,
		resets:     resets,
		now:        time.Now,
		sessionTTL: defaultSessionTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// SessionTTL returns the configured token lifetime.
func (s *Service) SessionTTL() time.Duration { return s.sessionTTL }

// Login checks credentials and issues a signed session token.
func (s *Service) Login(ctx context.Context, username, password string) (string, *Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", nil, fmt.Errorf("%w: incorrect username or password", ErrUnauthorized)
	}
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil, fmt.Errorf("%w: incorrect username or password", ErrUnauthorized)
		}
		return "", nil, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return "", nil, fmt.Errorf("%w: incorrect username or password", ErrUnauthorized)
	}
	if !user.Active {
		return "", nil, ErrInactive
	}
	token, err := IssueSession(user, s.sessionTTL)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// ResolveSession verifies a bearer token and re-fetches the identity it
// names. A token goes stale the moment the identity's role or tenant is
// reassigned, or the credential epoch advances past the embedded one.
func (s *Service) ResolveSession(ctx context.Context, token string) (*Identity, error) {
	sess, err := DecodeSession(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	user, err := s.users.Find(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown identity", ErrUnauthorized)
		}
		return nil, err
	}
	if user.Role != sess.Role || user.OrganizationID != sess.OrganizationID {
		return nil, fmt.Errorf("%w: token mismatch with identity, log in again", ErrUnauthorized)
	}
	// Strictly-later comparison in UTC: a secret change after issuance
	// invalidates every outstanding token.
	if user.PasswordChangedAt.UTC().After(sess.PasswordChangedAt) {
		return nil, fmt.Errorf("%w: password changed, log in again", ErrUnauthorized)
	}
	if !user.Active {
		return nil, ErrInactive
	}
	return user, nil
}

// CreateUserInput carries the fields of a new identity.
type CreateUserInput struct {
	Username       string
	Email          string
	FullName       string
	Password       string
	Role           Role
	OrganizationID string
	Active         *bool
}

// CreateUser provisions an identity subject to the actor's privileges.
func (s *Service) CreateUser(ctx context.Context, actor *Identity, in CreateUserInput) (*Identity, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	in.FullName = strings.TrimSpace(in.FullName)
	if in.Username == "" || in.Email == "" || !strings.Contains(in.Email, "@") || in.Password == "" {
		return nil, fmt.Errorf("%w: username, email and password are required", ErrInvalidInput)
	}
	if !in.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, in.Role)
	}
	if in.Role == RoleIndividualUser && in.OrganizationID != "" {
		return nil, fmt.Errorf("%w: individual users cannot be assigned to an organization", ErrInvalidInput)
	}

	orgID := in.OrganizationID
	if in.Role.Organizationless() {
		orgID = ""
	}

	switch actor.Role {
	case RoleSuperAdmin:
		if in.Role.RequiresOrganization() && orgID == "" {
			return nil, fmt.Errorf("%w: staff and organization admins must be assigned to an organization", ErrInvalidInput)
		}
		if orgID != "" {
			if _, err := s.orgs.Find(ctx, orgID); err != nil {
				if errors.Is(err, ErrNotFound) {
					return nil, fmt.Errorf("%w: organization not found", ErrNotFound)
				}
				return nil, err
			}
		}
	case RoleOrgAdmin:
		if actor.OrganizationID == "" {
			return nil, fmt.Errorf("%w: organization admin must belong to an organization", ErrInvalidInput)
		}
		if in.OrganizationID != "" && in.OrganizationID != actor.OrganizationID {
			return nil, fmt.Errorf("%w: cannot create users outside your organization", ErrForbidden)
		}
		if in.Role == RoleSuperAdmin || in.Role == RoleOrgAdmin {
			return nil, fmt.Errorf("%w: cannot create admin users", ErrForbidden)
		}
		if in.Role == RoleStaffUser {
			orgID = actor.OrganizationID
		}
	default:
		return nil, fmt.Errorf("%w: not enough permissions to create users", ErrForbidden)
	}

	if _, err := s.users.FindByUsername(ctx, in.Username); err == nil {
		return nil, fmt.Errorf("%w: username already registered", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if _, err := s.users.FindByEmail(ctx, in.Email); err == nil {
		return nil, fmt.Errorf("%w: email already registered", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	now := s.now().UTC()
	user := &Identity{
		Username:          in.Username,
		Email:             in.Email,
		FullName:          in.FullName,
		PasswordHash:      hash,
		Role:              in.Role,
		OrganizationID:    orgID,
		Active:            active,
		CreatedAt:         now,
		UpdatedAt:         now,
		PasswordChangedAt: now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ListUsers returns the identities visible to the actor.
func (s *Service) ListUsers(ctx context.Context, actor *Identity, skip, limit int) ([]*Identity, error) {
	switch actor.Role {
	case RoleSuperAdmin:
		return s.users.List(ctx, UserFilter{Skip: skip, Limit: limit})
	case RoleOrgAdmin:
		if actor.OrganizationID == "" {
			return nil, fmt.Errorf("%w: organization admin must belong to an organization", ErrInvalidInput)
		}
		return s.users.List(ctx, UserFilter{OrganizationID: actor.OrganizationID, Skip: skip, Limit: limit})
	default:
		return nil, fmt.Errorf("%w: not enough permissions to view all users", ErrForbidden)
	}
}

// GetUser returns one identity: oneself, or anyone within the actor's
// admin scope.
func (s *Service) GetUser(ctx context.Context, actor *Identity, userID string) (*Identity, error) {
	target, err := s.users.Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	switch {
	case actor.ID == userID:
	case actor.Role == RoleSuperAdmin:
	case actor.Role == RoleOrgAdmin && actor.OrganizationID != "" && target.OrganizationID == actor.OrganizationID:
	default:
		return nil, fmt.Errorf("%w: not enough permissions to view this user", ErrForbidden)
	}
	return target, nil
}

// UpdateUserInput carries optional field updates; nil means "unchanged".
type UpdateUserInput struct {
	Username       *string
	Email          *string
	FullName       *string
	Password       *string
	Role           *Role
	OrganizationID *string
	Active         *bool
}

// UpdateUser applies changes to an identity subject to the actor's
// privileges. A non-admin may update only itself and never its own role
// or tenant; deactivating a SuperAdmin account requires a different
// SuperAdmin.
func (s *Service) UpdateUser(ctx context.Context, actor *Identity, userID string, in UpdateUserInput) (*Identity, error) {
	target, err := s.users.Find(ctx, userID)
	if err != nil {
		return nil, err
	}

	if actor.ID == userID && actor.Role == RoleSuperAdmin && in.Active != nil && !*in.Active {
		return nil, fmt.Errorf("%w: a super admin can only be deactivated by another super admin", ErrInvalidInput)
	}

	switch {
	case actor.Role == RoleSuperAdmin:
		// unrestricted
	case actor.Role == RoleOrgAdmin:
		if actor.OrganizationID == "" {
			return nil, fmt.Errorf("%w: organization admin must belong to an organization", ErrInvalidInput)
		}
		if target.OrganizationID != actor.OrganizationID {
			return nil, fmt.Errorf("%w: cannot update users outside your organization", ErrForbidden)
		}
		if in.Role != nil && (*in.Role == RoleSuperAdmin || *in.Role == RoleOrgAdmin) {
			return nil, fmt.Errorf("%w: cannot assign admin roles", ErrForbidden)
		}
		if in.OrganizationID != nil && *in.OrganizationID != actor.OrganizationID {
			return nil, fmt.Errorf("%w: cannot move users to another organization", ErrForbidden)
		}
	case actor.ID == userID:
		if in.Role != nil || in.OrganizationID != nil {
			return nil, fmt.Errorf("%w: users cannot change their own role or organization", ErrForbidden)
		}
	default:
		return nil, fmt.Errorf("%w: not enough permissions to update this user", ErrForbidden)
	}

	if in.Username != nil {
		target.Username = strings.TrimSpace(*in.Username)
	}
	if in.Email != nil {
		target.Email = strings.TrimSpace(strings.ToLower(*in.Email))
	}
	if in.FullName != nil {
		target.FullName = strings.TrimSpace(*in.FullName)
	}
	if in.Role != nil {
		if !in.Role.Valid() {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, *in.Role)
		}
		target.Role = *in.Role
	}
	if in.OrganizationID != nil {
		target.OrganizationID = strings.TrimSpace(*in.OrganizationID)
	}
	if in.Active != nil {
		target.Active = *in.Active
	}

	// Tenant invariants hold for the resulting record, whatever the path.
	if target.Role.Organizationless() && target.OrganizationID != "" {
		return nil, fmt.Errorf("%w: %s users cannot carry an organization", ErrInvalidInput, target.Role)
	}
	if target.Role.RequiresOrganization() && target.OrganizationID == "" {
		return nil, fmt.Errorf("%w: %s users must carry an organization", ErrInvalidInput, target.Role)
	}

	if err := s.users.Update(ctx, target); err != nil {
		return nil, err
	}
	if in.Password != nil && *in.Password != "" {
		hash, err := HashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		changedAt := s.now().UTC()
		if err := s.users.UpdatePassword(ctx, target.ID, hash, changedAt); err != nil {
			return nil, err
		}
		target.PasswordHash = hash
		target.PasswordChangedAt = changedAt
	}
	return target, nil
}

// DeleteUser removes an identity. Self-deletion is rejected for every
// role.
func (s *Service) DeleteUser(ctx context.Context, actor *Identity, userID string) (*Identity, error) {
	target, err := s.users.Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if actor.ID == userID {
		return nil, fmt.Errorf("%w: cannot delete your own account", ErrInvalidInput)
	}
	switch actor.Role {
	case RoleSuperAdmin:
	case RoleOrgAdmin:
		if actor.OrganizationID == "" {
			return nil, fmt.Errorf("%w: organization admin must belong to an organization", ErrInvalidInput)
		}
		if target.OrganizationID != actor.OrganizationID {
			return nil, fmt.Errorf("%w: cannot delete users outside your organization", ErrForbidden)
		}
		if target.Role == RoleSuperAdmin || target.Role == RoleOrgAdmin {
			return nil, fmt.Errorf("%w: cannot delete admin users", ErrForbidden)
		}
	default:
		return nil, fmt.Errorf("%w: not enough permissions to delete this user", ErrForbidden)
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return nil, err
	}
	return target, nil
}

// ChangePassword rotates the actor's own secret after verifying the
// current one. Committing the change advances the credential epoch and
// invalidates every outstanding session.
func (s *Service) ChangePassword(ctx context.Context, actor *Identity, current, next string) error {
	if err := VerifyPassword(actor.PasswordHash, current); err != nil {
		return fmt.Errorf("%w: current password is incorrect", ErrInvalidInput)
	}
	if next == "" {
		return fmt.Errorf("%w: new password is required", ErrInvalidInput)
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, actor.ID, hash, s.now().UTC())
}

// AdminResetPassword lets an admin rotate another identity's secret after
// re-verifying the admin's own password.
func (s *Service) AdminResetPassword(ctx context.Context, actor *Identity, adminPassword, targetID, next string) (*Identity, error) {
	if err := VerifyPassword(actor.PasswordHash, adminPassword); err != nil {
		return nil, fmt.Errorf("%w: admin password verification failed", ErrInvalidInput)
	}
	if !actor.Role.Admin() {
		return nil, fmt.Errorf("%w: not enough permissions to reset passwords", ErrForbidden)
	}
	target, err := s.users.Find(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if actor.Role == RoleOrgAdmin {
		if actor.OrganizationID == "" {
			return nil, fmt.Errorf("%w: organization admin must belong to an organization", ErrInvalidInput)
		}
		if target.OrganizationID != actor.OrganizationID {
			return nil, fmt.Errorf("%w: cannot reset passwords outside your organization", ErrForbidden)
		}
		if target.Role == RoleSuperAdmin || target.Role == RoleOrgAdmin {
			return nil, fmt.Errorf("%w: cannot reset admin passwords", ErrForbidden)
		}
	}
	if next == "" {
		return nil, fmt.Errorf("%w: new password is required", ErrInvalidInput)
	}
	hash, err := HashPassword(next)
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdatePassword(ctx, target.ID, hash, s.now().UTC()); err != nil {
		return nil, err
	}
	return target, nil
}

// VerifyAdminPassword re-checks the actor's own password ahead of a
// destructive admin operation.
func (s *Service) VerifyAdminPassword(ctx context.Context, actor *Identity, password string) error {
	if !actor.Role.Admin() {
		return fmt.Errorf("%w: not enough permissions for admin operations", ErrForbidden)
	}
	if password == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if err := VerifyPassword(actor.PasswordHash, password); err != nil {
		return fmt.Errorf("%w: password verification failed", ErrInvalidInput)
	}
	return nil
}

// RequestPasswordReset mints a short-lived opaque reset token for the
// account behind the email. The empty return for an unknown email is
// deliberate: the response never reveals whether the address exists.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	if err := s.resets.Put(ctx, token, user.ID, resetTokenTTL); err != nil {
		return "", err
	}
	return token, nil
}

// ConfirmPasswordReset consumes a reset token and rotates the secret.
func (s *Service) ConfirmPasswordReset(ctx context.Context, token, next string) (*Identity, error) {
	if next == "" {
		return nil, fmt.Errorf("%w: new password is required", ErrInvalidInput)
	}
	userID, err := s.resets.TakeOnce(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: invalid or expired reset token", ErrInvalidInput)
		}
		return nil, err
	}
	user, err := s.users.Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	hash, err := HashPassword(next)
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash, s.now().UTC()); err != nil {
		return nil, err
	}
	return user, nil
}

// CreateOrganizationInput carries the fields of a new tenant.
type CreateOrganizationInput struct {
	Name        string
	Description string
	Plan        string
	MaxUsers    int
	MaxCases    int
}

// CreateOrganization provisions a tenant. SuperAdmin only.
func (s *Service) CreateOrganization(ctx context.Context, actor *Identity, in CreateOrganizationInput) (*Organization, error) {
	if err := requireSuperAdmin(actor); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: organization name is required", ErrInvalidInput)
	}
	if _, err := s.orgs.FindByName(ctx, in.Name); err == nil {
		return nil, fmt.Errorf("%w: organization with this name already exists", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if in.Plan == "" {
		in.Plan = defaultPlan
	}
	if in.MaxUsers <= 0 {
		in.MaxUsers = defaultMaxUsers
	}
	if in.MaxCases <= 0 {
		in.MaxCases = defaultMaxCases
	}
	now := s.now().UTC()
	org := &Organization{
		Name:        in.Name,
		Description: strings.TrimSpace(in.Description),
		Plan:        in.Plan,
		MaxUsers:    in.MaxUsers,
		MaxCases:    in.MaxCases,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.orgs.Create(ctx, org); err != nil {
		return nil, err
	}
	return org, nil
}

// ListOrganizations returns every tenant. SuperAdmin only.
func (s *Service) ListOrganizations(ctx context.Context, actor *Identity, skip, limit int) ([]*Organization, error) {
	if err := requireSuperAdmin(actor); err != nil {
		return nil, err
	}
	return s.orgs.List(ctx, false, skip, limit)
}

// ListActiveOrganizations returns active tenants for admin dropdowns.
func (s *Service) ListActiveOrganizations(ctx context.Context, actor *Identity) ([]*Organization, error) {
	if !actor.Role.Admin() {
		return nil, fmt.Errorf("%w: not enough permissions to view organizations", ErrForbidden)
	}
	return s.orgs.List(ctx, true, 0, 0)
}

// GetOrganization returns one tenant. SuperAdmin only.
func (s *Service) GetOrganization(ctx context.Context, actor *Identity, id string) (*Organization, error) {
	if err := requireSuperAdmin(actor); err != nil {
		return nil, err
	}
	return s.orgs.Find(ctx, id)
}

// UpdateOrganizationInput carries optional tenant updates.
type UpdateOrganizationInput struct {
	Name        *string
	Description *string
	Plan        *string
	MaxUsers    *int
	MaxCases    *int
	Active      *bool
}

// OrganizationUpdateResult reports a tenant update plus any deactivation
// cascade it triggered.
type OrganizationUpdateResult struct {
	Organization *Organization
	Cascaded     bool
	Deactivated  int64
}

// UpdateOrganization applies changes to a tenant. Flipping the active
// flag from true to false deactivates every member identity in the same
// transaction; there is no cascading reactivation.
func (s *Service) UpdateOrganization(ctx context.Context, actor *Identity, id string, in UpdateOrganizationInput) (*OrganizationUpdateResult, error) {
	if err := requireSuperAdmin(actor); err != nil {
		return nil, err
	}
	org, err := s.orgs.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	cascade := in.Active != nil && !*in.Active && org.Active

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: organization name is required", ErrInvalidInput)
		}
		org.Name = name
	}
	if in.Description != nil {
		org.Description = strings.TrimSpace(*in.Description)
	}
	if in.Plan != nil && *in.Plan != "" {
		org.Plan = *in.Plan
	}
	if in.MaxUsers != nil && *in.MaxUsers > 0 {
		org.MaxUsers = *in.MaxUsers
	}
	if in.MaxCases != nil && *in.MaxCases > 0 {
		org.MaxCases = *in.MaxCases
	}
	if in.Active != nil {
		org.Active = *in.Active
	}

	affected, err := s.orgs.Update(ctx, org, cascade)
	if err != nil {
		return nil, err
	}
	return &OrganizationUpdateResult{Organization: org, Cascaded: cascade, Deactivated: affected}, nil
}

// DeleteOrganization removes a tenant together with its member
// identities; cases and evidence cascade at the storage layer.
func (s *Service) DeleteOrganization(ctx context.Context, actor *Identity, id string) (*Organization, int64, error) {
	if err := requireSuperAdmin(actor); err != nil {
		return nil, 0, err
	}
	org, err := s.orgs.Find(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	deleted, err := s.orgs.Delete(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	return org, deleted, nil
}

func requireSuperAdmin(actor *Identity) error {
	if actor == nil || actor.Role != RoleSuperAdmin {
		return fmt.Errorf("%w: super admin access required", ErrForbidden)
	}
	return nil
}
