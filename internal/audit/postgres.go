package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/luckysitara/fluffy-succotash/internal/ids"
)

const entryColumns = "id, user_id, username, organization_id, case_id, action, resource_type, resource_id, details, ip_address, user_agent, timestamp"

// PGStore is the Postgres audit Store.
type PGStore struct {
	db *sql.DB
}

// NewPGStore wires the audit trail onto an open pool.
func NewPGStore(db *sql.DB) *PGStore { return &PGStore{db: db} }

func (s *PGStore) Insert(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = ids.New()
	}
	var details []byte
	if len(e.Details) > 0 {
		var err error
		if details, err = json.Marshal(e.Details); err != nil {
			return fmt.Errorf("audit: encode details: %w", err)
		}
	}
	nullStr := func(v string) sql.NullString {
		return sql.NullString{String: v, Valid: v != ""}
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_logs (`+entryColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		e.ID, nullStr(e.UserID), e.Username, nullStr(e.OrganizationID),
		nullStr(e.CaseID), e.Action, e.ResourceType, nullStr(e.ResourceID),
		details, nullStr(e.IPAddress), nullStr(e.UserAgent), e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("audit: insert entry: %w", err)
	}
	return nil
}

func (s *PGStore) List(ctx context.Context, f Filter) ([]*Entry, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.UserID != "" {
		where = append(where, "user_id = "+arg(f.UserID))
	}
	if f.OrganizationID != "" {
		where = append(where, "organization_id = "+arg(f.OrganizationID))
	}
	if f.Action != "" {
		where = append(where, "action = "+arg(f.Action))
	}
	if f.ResourceType != "" {
		where = append(where, "resource_type = "+arg(f.ResourceType))
	}

	q := `select ` + entryColumns + ` from audit_logs`
	if len(where) > 0 {
		q += " where " + strings.Join(where, " and ")
	}
	q += " order by timestamp desc"
	if f.Limit > 0 {
		q += " limit " + arg(f.Limit)
	}
	if f.Skip > 0 {
		q += " offset " + arg(f.Skip)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: list entries: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var (
			e          Entry
			userID     sql.NullString
			orgID      sql.NullString
			caseID     sql.NullString
			resourceID sql.NullString
			details    []byte
			ip         sql.NullString
			ua         sql.NullString
		)
		if err := rows.Scan(&e.ID, &userID, &e.Username, &orgID, &caseID,
			&e.Action, &e.ResourceType, &resourceID, &details, &ip, &ua,
			&e.Timestamp); err != nil {
			return nil, err
		}
		e.UserID = userID.String
		e.OrganizationID = orgID.String
		e.CaseID = caseID.String
		e.ResourceID = resourceID.String
		e.IPAddress = ip.String
		e.UserAgent = ua.String
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("audit: decode details: %w", err)
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *PGStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByAction:       map[string]int64{},
		ByResourceType: map[string]int64{},
	}
	if err := s.db.QueryRowContext(ctx,
		`select count(*) from audit_logs`,
	).Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("audit: count entries: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`select count(*) from audit_logs where timestamp >= now() - interval '24 hours'`,
	).Scan(&stats.RecentActivity24h); err != nil {
		return nil, fmt.Errorf("audit: count recent entries: %w", err)
	}

	groupBy := func(column string, dst map[string]int64) error {
		rows, err := s.db.QueryContext(ctx,
			`select `+column+`, count(*) from audit_logs group by `+column)
		if err != nil {
			return fmt.Errorf("audit: aggregate %s: %w", column, err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				key   string
				count int64
			)
			if err := rows.Scan(&key, &count); err != nil {
				return err
			}
			dst[key] = count
		}
		return rows.Err()
	}
	if err := groupBy("action", stats.ByAction); err != nil {
		return nil, err
	}
	if err := groupBy("resource_type", stats.ByResourceType); err != nil {
		return nil, err
	}
	return stats, nil
}
