package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/luckysitara/fluffy-succotash/internal/auth"
	"github.com/luckysitara/fluffy-succotash/internal/ids"
)

// EnsureAdmin creates the initial super admin account when the users
// table is empty. It is safe to call on every startup.
func EnsureAdmin(ctx context.Context, db *sql.DB, username, email, password string) error {
	if username == "" || email == "" || password == "" {
		return nil
	}
	var count int
	if err := db.QueryRowContext(ctx, `select count(*) from users`).Scan(&count); err != nil {
		return fmt.Errorf("migrate: count users: %w", err)
	}
	if count > 0 {
		return nil
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = db.ExecContext(ctx, `
		insert into users (id, username, email, full_name, hashed_password, role,
			organization_id, is_active, created_at, updated_at, password_changed_at)
		values ($1, $2, $3, $4, $5, $6, null, true, $7, $7, $7)`,
		ids.NewUUID(), username, email, "Super Admin", hash, auth.RoleSuperAdmin, now,
	)
	if err != nil {
		return fmt.Errorf("migrate: seed super admin: %w", err)
	}
	return nil
}
