package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/luckysitara/fluffy-succotash/internal/ids"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// nullable maps an empty string to SQL NULL for optional references.
func nullable(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

const userColumns = `id, username, email, full_name, hashed_password, role, organization_id, is_active, created_at, updated_at, password_changed_at`

func scanUser(row interface{ Scan(...any) error }) (*Identity, error) {
	var (
		u     Identity
		role  string
		orgID sql.NullString
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.PasswordHash,
		&role, &orgID, &u.Active, &u.CreatedAt, &u.UpdatedAt, &u.PasswordChangedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Role = Role(role)
	if orgID.Valid {
		u.OrganizationID = orgID.String
	}
	u.PasswordChangedAt = u.PasswordChangedAt.UTC()
	return &u, nil
}

// PGUserStore implements UserStore on PostgreSQL.
type PGUserStore struct {
	db *sql.DB
}

var _ UserStore = (*PGUserStore)(nil)

func NewPGUserStore(db *sql.DB) *PGUserStore { return &PGUserStore{db: db} }

func (s *PGUserStore) Create(ctx context.Context, u *Identity) error {
	if u.ID == "" {
		u.ID = ids.NewUUID()
	}
	now := time.Now().UTC()
	if u.PasswordChangedAt.IsZero() {
		u.PasswordChangedAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		insert into users(id, username, email, full_name, hashed_password, role, organization_id, is_active, password_changed_at)
		values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		u.ID, u.Username, u.Email, u.FullName, u.PasswordHash,
		string(u.Role), nullable(u.OrganizationID), u.Active, u.PasswordChangedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: username or email taken", ErrConflict)
	}
	return err
}

func (s *PGUserStore) Find(ctx context.Context, id string) (*Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (s *PGUserStore) FindByUsername(ctx context.Context, username string) (*Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where username=$1`, username)
	return scanUser(row)
}

func (s *PGUserStore) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=$1`, email)
	return scanUser(row)
}

func (s *PGUserStore) List(ctx context.Context, filter UserFilter) ([]*Identity, error) {
	query := `select ` + userColumns + ` from users`
	var (
		clauses []string
		args    []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.OrganizationID != "" {
		clauses = append(clauses, "organization_id = "+arg(filter.OrganizationID))
	}
	if filter.ActiveOnly {
		clauses = append(clauses, "is_active = true")
	}
	if len(filter.IDs) > 0 {
		placeholders := make([]string, 0, len(filter.IDs))
		for _, id := range filter.IDs {
			placeholders = append(placeholders, arg(id))
		}
		clauses = append(clauses, "id in ("+strings.Join(placeholders, ",")+")")
	}
	if len(clauses) > 0 {
		query += " where " + strings.Join(clauses, " and ")
	}
	query += " order by created_at"
	if filter.Limit > 0 {
		query += " limit " + arg(filter.Limit)
	}
	if filter.Skip > 0 {
		query += " offset " + arg(filter.Skip)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*Identity
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PGUserStore) Update(ctx context.Context, u *Identity) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set username=$2, email=$3, full_name=$4, role=$5, organization_id=$6, is_active=$7, updated_at=now()
		where id=$1`,
		u.ID, u.Username, u.Email, u.FullName, string(u.Role), nullable(u.OrganizationID), u.Active,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: username or email taken", ErrConflict)
	}
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGUserStore) UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set hashed_password=$2, password_changed_at=$3, updated_at=now()
		where id=$1`,
		id, passwordHash, changedAt.UTC(),
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGUserStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const orgColumns = `id, name, description, plan, max_users, max_cases, is_active, created_at, updated_at`

func scanOrganization(row interface{ Scan(...any) error }) (*Organization, error) {
	var (
		org  Organization
		desc sql.NullString
	)
	err := row.Scan(&org.ID, &org.Name, &desc, &org.Plan, &org.MaxUsers,
		&org.MaxCases, &org.Active, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if desc.Valid {
		org.Description = desc.String
	}
	return &org, nil
}

// PGOrganizationStore implements OrganizationStore on PostgreSQL.
type PGOrganizationStore struct {
	db *sql.DB
}

var _ OrganizationStore = (*PGOrganizationStore)(nil)

func NewPGOrganizationStore(db *sql.DB) *PGOrganizationStore {
	return &PGOrganizationStore{db: db}
}

func (s *PGOrganizationStore) Create(ctx context.Context, org *Organization) error {
	if org.ID == "" {
		org.ID = ids.NewUUID()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into organizations(id, name, description, plan, max_users, max_cases, is_active)
		values($1,$2,$3,$4,$5,$6,$7)`,
		org.ID, org.Name, nullable(org.Description), org.Plan, org.MaxUsers, org.MaxCases, org.Active,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: organization name taken", ErrConflict)
	}
	return err
}

func (s *PGOrganizationStore) Find(ctx context.Context, id string) (*Organization, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+orgColumns+` from organizations where id=$1`, id)
	return scanOrganization(row)
}

func (s *PGOrganizationStore) FindByName(ctx context.Context, name string) (*Organization, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+orgColumns+` from organizations where name=$1`, name)
	return scanOrganization(row)
}

func (s *PGOrganizationStore) List(ctx context.Context, activeOnly bool, skip, limit int) ([]*Organization, error) {
	query := `select ` + orgColumns + ` from organizations`
	if activeOnly {
		query += ` where is_active = true`
	}
	query += ` order by created_at`
	var args []any
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" limit $%d", len(args))
	}
	if skip > 0 {
		args = append(args, skip)
		query += fmt.Sprintf(" offset $%d", len(args))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orgs []*Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

func (s *PGOrganizationStore) Update(ctx context.Context, org *Organization, cascadeDeactivate bool) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update organizations
		set name=$2, description=$3, plan=$4, max_users=$5, max_cases=$6, is_active=$7, updated_at=now()
		where id=$1`,
		org.ID, org.Name, nullable(org.Description), org.Plan, org.MaxUsers, org.MaxCases, org.Active,
	)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("%w: organization name taken", ErrConflict)
	}
	if err != nil {
		return 0, err
	}
	if err := requireRow(res); err != nil {
		return 0, err
	}

	var affected int64
	if cascadeDeactivate {
		res, err := tx.ExecContext(ctx,
			`update users set is_active=false, updated_at=now() where organization_id=$1 and is_active=true`,
			org.ID,
		)
		if err != nil {
			return 0, err
		}
		affected, err = res.RowsAffected()
		if err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return affected, nil
}

func (s *PGOrganizationStore) Delete(ctx context.Context, id string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	// Member identities do not cascade at the storage layer; remove them
	// before the tenant row.
	res, err := tx.ExecContext(ctx, `delete from users where organization_id=$1`, id)
	if err != nil {
		return 0, err
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	res, err = tx.ExecContext(ctx, `delete from organizations where id=$1`, id)
	if err != nil {
		return 0, err
	}
	if err := requireRow(res); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return deleted, nil
}
