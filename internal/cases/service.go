package cases

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/luckysitara/fluffy-succotash/internal/auth"
	"github.com/luckysitara/fluffy-succotash/internal/obs"
)

// UserDirectory is the slice of the identity store the case engine
// needs. *auth.PGUserStore satisfies it.
type UserDirectory interface {
	Find(ctx context.Context, id string) (*auth.Identity, error)
	List(ctx context.Context, f auth.UserFilter) ([]*auth.Identity, error)
}

// OrganizationDirectory resolves tenants. *auth.PGOrganizationStore
// satisfies it.
type OrganizationDirectory interface {
	Find(ctx context.Context, id string) (*auth.Organization, error)
}

// Service enforces role- and tenant-scoped access over cases, evidence
// and assignments.
type Service struct {
	cases       CaseStore
	assignments AssignmentStore
	evidence    EvidenceStore
	files       FileStore
	users       UserDirectory
	orgs        OrganizationDirectory

	now func() time.Time
}

// NewService constructs the case engine.
func NewService(cases CaseStore, assignments AssignmentStore, evidence EvidenceStore, files FileStore, users UserDirectory, orgs OrganizationDirectory) (*Service, error) {
	if cases == nil || assignments == nil || evidence == nil || users == nil || orgs == nil {
		return nil, errors.New("cases: all stores are required")
	}
	return &Service{
		cases:       cases,
		assignments: assignments,
		evidence:    evidence,
		files:       files,
		users:       users,
		orgs:        orgs,
		now:         time.Now,
	}, nil
}

// effectiveAssignees returns the union of the legacy single assignee and
// the assignment table for a case.
func (s *Service) effectiveAssignees(ctx context.Context, c *Case) (map[string]bool, error) {
	ids, err := s.assignments.UserIDsForCase(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(ids)+1)
	for _, id := range ids {
		set[id] = true
	}
	if c.AssignedTo != "" {
		set[c.AssignedTo] = true
	}
	return set, nil
}

// canAccessCase is the single view-and-update predicate: SuperAdmin
// sees everything, an OrgAdmin sees its own tenant's cases, and staff
// or individual users see cases they created or are assigned to.
func (s *Service) canAccessCase(ctx context.Context, actor *auth.Identity, c *Case) (bool, error) {
	switch actor.Role {
	case auth.RoleSuperAdmin:
		return true, nil
	case auth.RoleOrgAdmin:
		return actor.OrganizationID != "" && c.OrganizationID == actor.OrganizationID, nil
	case auth.RoleStaffUser, auth.RoleIndividualUser:
		if c.CreatedBy == actor.ID {
			return true, nil
		}
		assignees, err := s.effectiveAssignees(ctx, c)
		if err != nil {
			return false, err
		}
		return assignees[actor.ID], nil
	}
	return false, nil
}

// canDeleteCase is strictly narrower than canAccessCase: staff users may
// never delete, not even their own cases.
func (s *Service) canDeleteCase(actor *auth.Identity, c *Case) bool {
	switch actor.Role {
	case auth.RoleSuperAdmin:
		return true
	case auth.RoleOrgAdmin:
		return actor.OrganizationID != "" && c.OrganizationID == actor.OrganizationID
	case auth.RoleIndividualUser:
		return c.CreatedBy == actor.ID
	}
	return false
}

// canManageAssignments restricts assignment changes to SuperAdmin and
// the owning tenant's OrgAdmin.
func (s *Service) canManageAssignments(actor *auth.Identity, c *Case) bool {
	switch actor.Role {
	case auth.RoleSuperAdmin:
		return true
	case auth.RoleOrgAdmin:
		return actor.OrganizationID != "" && c.OrganizationID == actor.OrganizationID
	}
	return false
}

// requireCase loads a case and checks view access. A case the actor may
// not see reads as Forbidden, not NotFound, so list results and direct
// reads stay consistent.
func (s *Service) requireCase(ctx context.Context, actor *auth.Identity, caseID string) (*Case, error) {
	c, err := s.cases.Find(ctx, caseID)
	if err != nil {
		return nil, err
	}
	ok, err := s.canAccessCase(ctx, actor, c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: not enough permissions to access this case", auth.ErrForbidden)
	}
	return c, nil
}

// CreateCaseInput carries the fields of a new case.
type CreateCaseInput struct {
	Title          string
	Description    string
	Status         string
	Priority       string
	AssignedTo     string
	OrganizationID string
}

// CreateCase opens a case in the actor's tenant. SuperAdmin must name an
// existing tenant, individual users always create tenant-less cases, and
// everyone else is pinned to their own organization.
func (s *Service) CreateCase(ctx context.Context, actor *auth.Identity, in CreateCaseInput) (*Case, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, fmt.Errorf("%w: case title is required", auth.ErrInvalidInput)
	}
	status := StatusOpen
	if in.Status != "" {
		var err error
		if status, err = ParseStatus(in.Status); err != nil {
			return nil, err
		}
	}
	priority := PriorityMedium
	if in.Priority != "" {
		var err error
		if priority, err = ParsePriority(in.Priority); err != nil {
			return nil, err
		}
	}

	var orgID string
	switch actor.Role {
	case auth.RoleSuperAdmin:
		if in.OrganizationID == "" {
			return nil, fmt.Errorf("%w: super admin must specify an organization for the case", auth.ErrInvalidInput)
		}
		if _, err := s.orgs.Find(ctx, in.OrganizationID); err != nil {
			if errors.Is(err, auth.ErrNotFound) {
				return nil, fmt.Errorf("%w: organization not found", auth.ErrNotFound)
			}
			return nil, err
		}
		orgID = in.OrganizationID
	case auth.RoleIndividualUser:
		if in.OrganizationID != "" {
			return nil, fmt.Errorf("%w: individual users cannot create organization cases", auth.ErrForbidden)
		}
	default:
		if actor.OrganizationID == "" {
			return nil, fmt.Errorf("%w: user must belong to an organization", auth.ErrInvalidInput)
		}
		if in.OrganizationID != "" && in.OrganizationID != actor.OrganizationID {
			return nil, fmt.Errorf("%w: cannot create cases in another organization", auth.ErrForbidden)
		}
		orgID = actor.OrganizationID
	}

	if in.AssignedTo != "" {
		if err := s.validateAssignee(ctx, in.AssignedTo, orgID); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	c := &Case{
		Title:          in.Title,
		Description:    strings.TrimSpace(in.Description),
		Status:         status,
		Priority:       priority,
		CreatedBy:      actor.ID,
		AssignedTo:     in.AssignedTo,
		OrganizationID: orgID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.cases.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// validateAssignee checks the user exists, is active, and, when the
// case belongs to a tenant, lives in that tenant. Tenant-less cases
// accept any active user.
func (s *Service) validateAssignee(ctx context.Context, userID, orgID string) error {
	user, err := s.users.Find(ctx, userID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return fmt.Errorf("%w: invalid or inactive user id %s", auth.ErrInvalidInput, userID)
		}
		return err
	}
	if !user.Active {
		return fmt.Errorf("%w: invalid or inactive user id %s", auth.ErrInvalidInput, userID)
	}
	if orgID != "" && user.OrganizationID != orgID {
		return fmt.Errorf("%w: assigned user is outside the case organization", auth.ErrInvalidInput)
	}
	return nil
}

// GetCase returns one case if the actor may view it.
func (s *Service) GetCase(ctx context.Context, actor *auth.Identity, caseID string) (*Case, error) {
	return s.requireCase(ctx, actor, caseID)
}

// ListFilter narrows ListCases.
type ListFilter struct {
	Status   string
	Priority string
	Skip     int
	Limit    int
}

// ListCases returns the cases visible to the actor, newest first.
func (s *Service) ListCases(ctx context.Context, actor *auth.Identity, f ListFilter) ([]*Case, error) {
	filter := CaseFilter{Skip: f.Skip, Limit: f.Limit}
	if f.Status != "" {
		st, err := ParseStatus(f.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = st
	}
	if f.Priority != "" {
		p, err := ParsePriority(f.Priority)
		if err != nil {
			return nil, err
		}
		filter.Priority = p
	}

	switch actor.Role {
	case auth.RoleSuperAdmin:
		// unscoped
	case auth.RoleOrgAdmin:
		if actor.OrganizationID == "" {
			return nil, fmt.Errorf("%w: organization admin must belong to an organization", auth.ErrInvalidInput)
		}
		filter.OrganizationID = actor.OrganizationID
	default:
		filter.VisibleTo = actor.ID
	}
	return s.cases.List(ctx, filter)
}

// UpdateCaseInput carries optional case updates; nil means "unchanged".
type UpdateCaseInput struct {
	Title       *string
	Description *string
	Status      *string
	Priority    *string
	AssignedTo  *string
}

// UpdateCase applies changes under the same predicate that governs
// viewing: whoever can see a case can update it.
func (s *Service) UpdateCase(ctx context.Context, actor *auth.Identity, caseID string, in UpdateCaseInput) (*Case, error) {
	c, err := s.requireCase(ctx, actor, caseID)
	if err != nil {
		return nil, err
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: case title is required", auth.ErrInvalidInput)
		}
		c.Title = title
	}
	if in.Description != nil {
		c.Description = strings.TrimSpace(*in.Description)
	}
	if in.Status != nil {
		st, err := ParseStatus(*in.Status)
		if err != nil {
			return nil, err
		}
		if st == StatusClosed && c.Status != StatusClosed {
			closed := s.now().UTC()
			c.ClosedAt = &closed
		} else if st != StatusClosed {
			c.ClosedAt = nil
		}
		c.Status = st
	}
	if in.Priority != nil {
		p, err := ParsePriority(*in.Priority)
		if err != nil {
			return nil, err
		}
		c.Priority = p
	}
	if in.AssignedTo != nil {
		if *in.AssignedTo != "" {
			if err := s.validateAssignee(ctx, *in.AssignedTo, c.OrganizationID); err != nil {
				return nil, err
			}
		}
		c.AssignedTo = *in.AssignedTo
	}
	c.UpdatedAt = s.now().UTC()
	if err := s.cases.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteCase removes a case together with its evidence and assignments.
// Stored evidence files are cleaned up best-effort after the rows are
// gone.
func (s *Service) DeleteCase(ctx context.Context, actor *auth.Identity, caseID string) (*Case, int64, int64, error) {
	c, err := s.cases.Find(ctx, caseID)
	if err != nil {
		return nil, 0, 0, err
	}
	if !s.canDeleteCase(actor, c) {
		return nil, 0, 0, fmt.Errorf("%w: not enough permissions to delete this case", auth.ErrForbidden)
	}

	items, err := s.evidence.ListForCase(ctx, caseID, 0, 0)
	if err != nil {
		return nil, 0, 0, err
	}
	evCount, asgCount, err := s.cases.Delete(ctx, caseID)
	if err != nil {
		return nil, 0, 0, err
	}
	s.removeFiles(ctx, items)
	return c, evCount, asgCount, nil
}

func (s *Service) removeFiles(ctx context.Context, items []*Evidence) {
	if s.files == nil {
		return
	}
	for _, e := range items {
		if e.FilePath == "" {
			continue
		}
		if err := s.files.Delete(ctx, e.FilePath); err != nil {
			obs.LogError("evidence_file_cleanup_failed", map[string]any{
				"evidence_id": e.ID,
				"error":       err.Error(),
			})
		}
	}
}

// AssignUsers links the users to the case. Validation is all-or-nothing:
// if any user is unknown or outside the case tenant nothing is written.
// Users already assigned are skipped silently.
func (s *Service) AssignUsers(ctx context.Context, actor *auth.Identity, caseID string, userIDs []string) ([]*Assignment, error) {
	c, err := s.cases.Find(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !s.canManageAssignments(actor, c) {
		return nil, fmt.Errorf("%w: not enough permissions to manage case assignments", auth.ErrForbidden)
	}
	if len(userIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one user id is required", auth.ErrInvalidInput)
	}
	for _, userID := range userIDs {
		if err := s.validateAssignee(ctx, userID, c.OrganizationID); err != nil {
			return nil, err
		}
	}
	return s.assignments.Assign(ctx, caseID, actor.ID, userIDs)
}

// UnassignUser removes one assignment link.
func (s *Service) UnassignUser(ctx context.Context, actor *auth.Identity, caseID, userID string) error {
	c, err := s.cases.Find(ctx, caseID)
	if err != nil {
		return err
	}
	if !s.canManageAssignments(actor, c) {
		return fmt.Errorf("%w: not enough permissions to manage case assignments", auth.ErrForbidden)
	}
	if err := s.assignments.Unassign(ctx, caseID, userID); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return fmt.Errorf("%w: assignment not found", auth.ErrNotFound)
		}
		return err
	}
	return nil
}

// ListAssignments returns the assignment links of a case the actor can
// view.
func (s *Service) ListAssignments(ctx context.Context, actor *auth.Identity, caseID string) ([]*Assignment, error) {
	if _, err := s.requireCase(ctx, actor, caseID); err != nil {
		return nil, err
	}
	return s.assignments.ListForCase(ctx, caseID)
}

// ListAssignableUsers returns the active identities that may be
// assigned to a case the actor can view. Super admins see every active
// user, org admins and staff see the active members of their own
// tenant, individual users are rejected.
func (s *Service) ListAssignableUsers(ctx context.Context, actor *auth.Identity, caseID string) ([]*auth.Identity, error) {
	if _, err := s.requireCase(ctx, actor, caseID); err != nil {
		return nil, err
	}
	switch actor.Role {
	case auth.RoleSuperAdmin:
		return s.users.List(ctx, auth.UserFilter{ActiveOnly: true})
	case auth.RoleOrgAdmin, auth.RoleStaffUser:
		return s.users.List(ctx, auth.UserFilter{OrganizationID: actor.OrganizationID, ActiveOnly: true})
	default:
		return nil, fmt.Errorf("%w: individual users cannot list assignable users", auth.ErrForbidden)
	}
}

// AddEvidenceInput carries the fields of an inline evidence item.
type AddEvidenceInput struct {
	CaseID      string
	Title       string
	Description string
	Type        string
	Content     string
	Metadata    map[string]any
	Tags        string
}

// AddEvidence attaches an inline item (note, url, and so on) to a case
// the actor can access. The item inherits the case tenant.
func (s *Service) AddEvidence(ctx context.Context, actor *auth.Identity, in AddEvidenceInput) (*Evidence, error) {
	c, err := s.requireCase(ctx, actor, in.CaseID)
	if err != nil {
		return nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, fmt.Errorf("%w: evidence title is required", auth.ErrInvalidInput)
	}
	t, err := ParseEvidenceType(in.Type)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	e := &Evidence{
		CaseID:         in.CaseID,
		OrganizationID: c.OrganizationID,
		Title:          in.Title,
		Description:    strings.TrimSpace(in.Description),
		Type:           t,
		Content:        in.Content,
		Metadata:       in.Metadata,
		Tags:           strings.TrimSpace(in.Tags),
		UploadedBy:     actor.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.evidence.Create(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// UploadEvidenceInput carries an uploaded file and its metadata.
type UploadEvidenceInput struct {
	CaseID      string
	Title       string
	Description string
	Filename    string
	ContentType string
	Tags        string
	Body        io.Reader
}

// UploadEvidence streams the file to storage and records a FILE evidence
// item carrying its path, size and sha256. The stored object is removed
// again if the record cannot be written.
func (s *Service) UploadEvidence(ctx context.Context, actor *auth.Identity, in UploadEvidenceInput) (*Evidence, error) {
	if s.files == nil {
		return nil, errors.New("cases: file storage is not configured")
	}
	c, err := s.requireCase(ctx, actor, in.CaseID)
	if err != nil {
		return nil, err
	}
	if in.Body == nil || strings.TrimSpace(in.Filename) == "" {
		return nil, fmt.Errorf("%w: an upload file is required", auth.ErrInvalidInput)
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = in.Filename
	}

	stored, err := s.files.Save(ctx, in.Body, in.Filename)
	if err != nil {
		return nil, err
	}
	meta := map[string]any{
		"original_filename": in.Filename,
		"size_bytes":        stored.Size,
	}
	if in.ContentType != "" {
		meta["content_type"] = in.ContentType
	}
	now := s.now().UTC()
	e := &Evidence{
		CaseID:         in.CaseID,
		OrganizationID: c.OrganizationID,
		Title:          title,
		Description:    strings.TrimSpace(in.Description),
		Type:           EvidenceFile,
		FilePath:       stored.Path,
		FileSize:       stored.Size,
		FileHash:       stored.Hash,
		Metadata:       meta,
		Tags:           strings.TrimSpace(in.Tags),
		UploadedBy:     actor.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.evidence.Create(ctx, e); err != nil {
		s.removeFiles(ctx, []*Evidence{e})
		return nil, err
	}
	return e, nil
}

// GetEvidence returns one item if the actor may view its case.
func (s *Service) GetEvidence(ctx context.Context, actor *auth.Identity, evidenceID string) (*Evidence, error) {
	e, err := s.evidence.Find(ctx, evidenceID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireCase(ctx, actor, e.CaseID); err != nil {
		return nil, err
	}
	return e, nil
}

// ListEvidence returns a case's evidence, newest first.
func (s *Service) ListEvidence(ctx context.Context, actor *auth.Identity, caseID string, skip, limit int) ([]*Evidence, error) {
	if _, err := s.requireCase(ctx, actor, caseID); err != nil {
		return nil, err
	}
	return s.evidence.ListForCase(ctx, caseID, skip, limit)
}

// canModifyEvidence restricts evidence mutation to SuperAdmin, the
// owning tenant's OrgAdmin and the uploader.
func (s *Service) canModifyEvidence(actor *auth.Identity, c *Case, e *Evidence) bool {
	switch actor.Role {
	case auth.RoleSuperAdmin:
		return true
	case auth.RoleOrgAdmin:
		return actor.OrganizationID != "" && c.OrganizationID == actor.OrganizationID
	}
	return e.UploadedBy == actor.ID
}

// UpdateEvidenceInput carries optional evidence updates.
type UpdateEvidenceInput struct {
	Title       *string
	Description *string
	Content     *string
	Tags        *string
	Verified    *bool
}

// UpdateEvidence edits an item's metadata or inline content.
func (s *Service) UpdateEvidence(ctx context.Context, actor *auth.Identity, evidenceID string, in UpdateEvidenceInput) (*Evidence, error) {
	e, err := s.evidence.Find(ctx, evidenceID)
	if err != nil {
		return nil, err
	}
	c, err := s.requireCase(ctx, actor, e.CaseID)
	if err != nil {
		return nil, err
	}
	if !s.canModifyEvidence(actor, c, e) {
		return nil, fmt.Errorf("%w: not enough permissions to modify this evidence", auth.ErrForbidden)
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: evidence title is required", auth.ErrInvalidInput)
		}
		e.Title = title
	}
	if in.Description != nil {
		e.Description = strings.TrimSpace(*in.Description)
	}
	if in.Content != nil {
		e.Content = *in.Content
	}
	if in.Tags != nil {
		e.Tags = strings.TrimSpace(*in.Tags)
	}
	if in.Verified != nil {
		e.Verified = *in.Verified
	}
	e.UpdatedAt = s.now().UTC()
	if err := s.evidence.Update(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// DeleteEvidence removes an item and, for uploads, its stored file.
func (s *Service) DeleteEvidence(ctx context.Context, actor *auth.Identity, evidenceID string) (*Evidence, error) {
	e, err := s.evidence.Find(ctx, evidenceID)
	if err != nil {
		return nil, err
	}
	c, err := s.requireCase(ctx, actor, e.CaseID)
	if err != nil {
		return nil, err
	}
	if !s.canModifyEvidence(actor, c, e) {
		return nil, fmt.Errorf("%w: not enough permissions to delete this evidence", auth.ErrForbidden)
	}
	if err := s.evidence.Delete(ctx, evidenceID); err != nil {
		return nil, err
	}
	s.removeFiles(ctx, []*Evidence{e})
	return e, nil
}
