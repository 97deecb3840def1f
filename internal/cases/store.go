package cases

import "context"

// CaseFilter narrows List results. VisibleTo restricts to cases the
// given identity created, is the legacy assignee of, or appears in the
// assignment table for.
type CaseFilter struct {
	OrganizationID string
	VisibleTo      string
	Status         Status
	Priority       Priority
	Skip           int
	Limit          int
}

// CaseStore persists cases.
type CaseStore interface {
	Create(ctx context.Context, c *Case) error
	Find(ctx context.Context, id string) (*Case, error)
	List(ctx context.Context, f CaseFilter) ([]*Case, error)
	Update(ctx context.Context, c *Case) error
	// Delete removes the case together with its evidence and
	// assignments in a single transaction and reports how many of each
	// were removed.
	Delete(ctx context.Context, id string) (evidence, assignments int64, err error)
}

// AssignmentStore persists case assignments.
type AssignmentStore interface {
	// Assign links the users to the case, skipping users already
	// assigned, and returns the assignments actually created.
	Assign(ctx context.Context, caseID, assignedBy string, userIDs []string) ([]*Assignment, error)
	// Unassign removes one link; auth.ErrNotFound when it does not exist.
	Unassign(ctx context.Context, caseID, userID string) error
	ListForCase(ctx context.Context, caseID string) ([]*Assignment, error)
	// UserIDsForCase returns the assigned user ids only.
	UserIDsForCase(ctx context.Context, caseID string) ([]string, error)
}

// EvidenceStore persists evidence items.
type EvidenceStore interface {
	Create(ctx context.Context, e *Evidence) error
	Find(ctx context.Context, id string) (*Evidence, error)
	ListForCase(ctx context.Context, caseID string, skip, limit int) ([]*Evidence, error)
	Update(ctx context.Context, e *Evidence) error
	Delete(ctx context.Context, id string) error
}
