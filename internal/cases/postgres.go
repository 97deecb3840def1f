package cases

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/luckysitara/fluffy-succotash/internal/auth"
	"github.com/luckysitara/fluffy-succotash/internal/ids"
)

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

const caseColumns = "id, title, description, status, priority, created_by, assigned_to, organization_id, created_at, updated_at, closed_at"

func scanCase(row interface{ Scan(dest ...any) error }) (*Case, error) {
	var (
		c          Case
		desc       sql.NullString
		assignedTo sql.NullString
		orgID      sql.NullString
		closedAt   sql.NullTime
	)
	err := row.Scan(&c.ID, &c.Title, &desc, &c.Status, &c.Priority, &c.CreatedBy, &assignedTo, &orgID, &c.CreatedAt, &c.UpdatedAt, &closedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	c.Description = desc.String
	c.AssignedTo = assignedTo.String
	c.OrganizationID = orgID.String
	if closedAt.Valid {
		t := closedAt.Time
		c.ClosedAt = &t
	}
	return &c, nil
}

// PGCaseStore is the Postgres CaseStore.
type PGCaseStore struct {
	db *sql.DB
}

// NewPGCaseStore wires a CaseStore onto an open pool.
func NewPGCaseStore(db *sql.DB) *PGCaseStore { return &PGCaseStore{db: db} }

func (s *PGCaseStore) Create(ctx context.Context, c *Case) error {
	if c.ID == "" {
		c.ID = ids.NewUUID()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into cases (`+caseColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		c.ID, c.Title, nullable(c.Description), c.Status, c.Priority,
		c.CreatedBy, nullable(c.AssignedTo), nullable(c.OrganizationID),
		c.CreatedAt, c.UpdatedAt, c.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("cases: insert case: %w", err)
	}
	return nil
}

func (s *PGCaseStore) Find(ctx context.Context, id string) (*Case, error) {
	row := s.db.QueryRowContext(ctx, `select `+caseColumns+` from cases where id = $1`, id)
	return scanCase(row)
}

func (s *PGCaseStore) List(ctx context.Context, f CaseFilter) ([]*Case, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.OrganizationID != "" {
		where = append(where, "organization_id = "+arg(f.OrganizationID))
	}
	if f.VisibleTo != "" {
		p := arg(f.VisibleTo)
		where = append(where, "(created_by = "+p+" or assigned_to = "+p+
			" or id in (select case_id from case_assignments where user_id = "+p+"))")
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(string(f.Status)))
	}
	if f.Priority != "" {
		where = append(where, "priority = "+arg(string(f.Priority)))
	}

	q := `select ` + caseColumns + ` from cases`
	if len(where) > 0 {
		q += " where " + strings.Join(where, " and ")
	}
	q += " order by created_at desc"
	if f.Limit > 0 {
		q += " limit " + arg(f.Limit)
	}
	if f.Skip > 0 {
		q += " offset " + arg(f.Skip)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("cases: list cases: %w", err)
	}
	defer rows.Close()

	var out []*Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PGCaseStore) Update(ctx context.Context, c *Case) error {
	res, err := s.db.ExecContext(ctx, `
		update cases
		   set title = $2, description = $3, status = $4, priority = $5,
		       assigned_to = $6, organization_id = $7, updated_at = $8,
		       closed_at = $9
		 where id = $1`,
		c.ID, c.Title, nullable(c.Description), c.Status, c.Priority,
		nullable(c.AssignedTo), nullable(c.OrganizationID), c.UpdatedAt,
		c.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("cases: update case: %w", err)
	}
	return requireRow(res)
}

// Delete removes evidence first, then assignments, then the case row, in
// one transaction. The ordering is deliberate so a partial failure never
// leaves orphaned children.
func (s *PGCaseStore) Delete(ctx context.Context, id string) (int64, int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	evRes, err := tx.ExecContext(ctx, `delete from evidence where case_id = $1`, id)
	if err != nil {
		return 0, 0, fmt.Errorf("cases: delete case evidence: %w", err)
	}
	evidence, _ := evRes.RowsAffected()

	asgRes, err := tx.ExecContext(ctx, `delete from case_assignments where case_id = $1`, id)
	if err != nil {
		return 0, 0, fmt.Errorf("cases: delete case assignments: %w", err)
	}
	assignments, _ := asgRes.RowsAffected()

	res, err := tx.ExecContext(ctx, `delete from cases where id = $1`, id)
	if err != nil {
		return 0, 0, fmt.Errorf("cases: delete case: %w", err)
	}
	if err := requireRow(res); err != nil {
		return 0, 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return evidence, assignments, nil
}

const assignmentColumns = "id, case_id, user_id, assigned_by, assigned_at"

func scanAssignment(row interface{ Scan(dest ...any) error }) (*Assignment, error) {
	var a Assignment
	err := row.Scan(&a.ID, &a.CaseID, &a.UserID, &a.AssignedBy, &a.AssignedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// PGAssignmentStore is the Postgres AssignmentStore.
type PGAssignmentStore struct {
	db *sql.DB
}

// NewPGAssignmentStore wires an AssignmentStore onto an open pool.
func NewPGAssignmentStore(db *sql.DB) *PGAssignmentStore { return &PGAssignmentStore{db: db} }

// Assign inserts the links one by one; the unique constraint on
// (case_id, user_id) plus "on conflict do nothing" makes reassignment
// idempotent, and only rows actually inserted are returned.
func (s *PGAssignmentStore) Assign(ctx context.Context, caseID, assignedBy string, userIDs []string) ([]*Assignment, error) {
	var out []*Assignment
	for _, userID := range userIDs {
		row := s.db.QueryRowContext(ctx, `
			insert into case_assignments (`+assignmentColumns+`)
			values ($1, $2, $3, $4, now())
			on conflict (case_id, user_id) do nothing
			returning `+assignmentColumns,
			ids.NewUUID(), caseID, userID, assignedBy,
		)
		a, err := scanAssignment(row)
		if err != nil {
			if errors.Is(err, auth.ErrNotFound) {
				continue // already assigned
			}
			return nil, fmt.Errorf("cases: insert assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *PGAssignmentStore) Unassign(ctx context.Context, caseID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from case_assignments where case_id = $1 and user_id = $2`,
		caseID, userID,
	)
	if err != nil {
		return fmt.Errorf("cases: delete assignment: %w", err)
	}
	return requireRow(res)
}

func (s *PGAssignmentStore) ListForCase(ctx context.Context, caseID string) ([]*Assignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+assignmentColumns+` from case_assignments where case_id = $1 order by assigned_at`,
		caseID,
	)
	if err != nil {
		return nil, fmt.Errorf("cases: list assignments: %w", err)
	}
	defer rows.Close()

	var out []*Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PGAssignmentStore) UserIDsForCase(ctx context.Context, caseID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select user_id from case_assignments where case_id = $1`, caseID)
	if err != nil {
		return nil, fmt.Errorf("cases: list assignment user ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

const evidenceColumns = "id, case_id, organization_id, title, description, evidence_type, content, file_path, file_size, file_hash, metadata, tags, is_verified, uploaded_by, created_at, updated_at"

func scanEvidence(row interface{ Scan(dest ...any) error }) (*Evidence, error) {
	var (
		e        Evidence
		orgID    sql.NullString
		desc     sql.NullString
		content  sql.NullString
		filePath sql.NullString
		fileSize sql.NullInt64
		fileHash sql.NullString
		metadata []byte
		tags     sql.NullString
	)
	err := row.Scan(&e.ID, &e.CaseID, &orgID, &e.Title, &desc, &e.Type, &content,
		&filePath, &fileSize, &fileHash, &metadata, &tags, &e.Verified,
		&e.UploadedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	e.OrganizationID = orgID.String
	e.Description = desc.String
	e.Content = content.String
	e.FilePath = filePath.String
	e.FileSize = fileSize.Int64
	e.FileHash = fileHash.String
	e.Tags = tags.String
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, fmt.Errorf("cases: decode evidence metadata: %w", err)
		}
	}
	return &e, nil
}

// PGEvidenceStore is the Postgres EvidenceStore.
type PGEvidenceStore struct {
	db *sql.DB
}

// NewPGEvidenceStore wires an EvidenceStore onto an open pool.
func NewPGEvidenceStore(db *sql.DB) *PGEvidenceStore { return &PGEvidenceStore{db: db} }

func (s *PGEvidenceStore) Create(ctx context.Context, e *Evidence) error {
	if e.ID == "" {
		e.ID = ids.NewUUID()
	}
	var size sql.NullInt64
	if e.FileSize > 0 {
		size = sql.NullInt64{Int64: e.FileSize, Valid: true}
	}
	var metadata []byte
	if len(e.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(e.Metadata); err != nil {
			return fmt.Errorf("cases: encode evidence metadata: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx, `
		insert into evidence (`+evidenceColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		e.ID, e.CaseID, nullable(e.OrganizationID), e.Title, nullable(e.Description),
		e.Type, nullable(e.Content), nullable(e.FilePath), size, nullable(e.FileHash),
		metadata, nullable(e.Tags), e.Verified, e.UploadedBy, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("cases: insert evidence: %w", err)
	}
	return nil
}

func (s *PGEvidenceStore) Find(ctx context.Context, id string) (*Evidence, error) {
	row := s.db.QueryRowContext(ctx, `select `+evidenceColumns+` from evidence where id = $1`, id)
	return scanEvidence(row)
}

func (s *PGEvidenceStore) ListForCase(ctx context.Context, caseID string, skip, limit int) ([]*Evidence, error) {
	q := `select ` + evidenceColumns + ` from evidence where case_id = $1 order by created_at desc`
	args := []any{caseID}
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf(" limit $%d", len(args))
	}
	if skip > 0 {
		args = append(args, skip)
		q += fmt.Sprintf(" offset $%d", len(args))
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("cases: list evidence: %w", err)
	}
	defer rows.Close()

	var out []*Evidence
	for rows.Next() {
		e, err := scanEvidence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PGEvidenceStore) Update(ctx context.Context, e *Evidence) error {
	res, err := s.db.ExecContext(ctx, `
		update evidence
		   set title = $2, description = $3, content = $4, tags = $5,
		       is_verified = $6, updated_at = $7
		 where id = $1`,
		e.ID, e.Title, nullable(e.Description), nullable(e.Content),
		nullable(e.Tags), e.Verified, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("cases: update evidence: %w", err)
	}
	return requireRow(res)
}

func (s *PGEvidenceStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from evidence where id = $1`, id)
	if err != nil {
		return fmt.Errorf("cases: delete evidence: %w", err)
	}
	return requireRow(res)
}
