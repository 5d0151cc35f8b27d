package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/database"
	"moviegraph/internal/types"
)

const userColumns = `u.id, u.username, u.email, u.password_hash, u.role, u.created_at`

func scanUser(row scanner) (types.User, error) {
	var u types.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.Created)
	return u, err
}

func (s *Store) CreateUser(ctx context.Context, user *types.User) (*types.User, error) {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()

	created := *user
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if created.Role == "" {
		created.Role = types.RoleUser
	}
	created.Created = s.timestamp()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, created.ID, created.Username, created.Email, created.PasswordHash, created.Role, created.Created)
	if isUniqueViolation(err) {
		if strings.Contains(err.Error(), "users.email") {
			return nil, apperrors.NewConflictError("Email already registered")
		}
		return nil, apperrors.NewConflictError("Username already registered")
	}
	if err != nil {
		return nil, mapError("create user", err)
	}
	return &created, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*types.User, error) {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()

	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.username = ?`, username))
	if err != nil {
		return nil, mapError("get user", notFoundIfNoRows(err, "User"))
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context, page types.Page) ([]types.User, error) {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()

	page = database.ClampPage(page)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users u
		ORDER BY u.username
		LIMIT ? OFFSET ?
	`, page.Limit, page.Skip)
	if err != nil {
		return nil, mapError("list users", err)
	}
	defer rows.Close()

	users := []types.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, mapError("list users", err)
		}
		users = append(users, u)
	}
	return users, mapError("list users", rows.Err())
}

func (s *Store) SetUserRole(ctx context.Context, username, role string) (*types.User, error) {
	if !types.ValidRole(role) {
		return nil, apperrors.NewValidationError("unknown role " + role)
	}

	var user types.User
	err := s.withTx(ctx, "set role", func(tx *sql.Tx) error {
		// The admin count is evaluated inside the UPDATE so two concurrent
		// demotions cannot both see a second admin.
		res, err := tx.ExecContext(ctx, `
			UPDATE users SET role = ?
			WHERE username = ?
			  AND NOT (
			    role = ? AND ? <> ?
			    AND (SELECT COUNT(*) FROM users WHERE role = ?) <= 1
			  )
		`, role, username, types.RoleAdmin, role, types.RoleAdmin, types.RoleAdmin)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}

		user, err = scanUser(tx.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users u WHERE u.username = ?`, username))
		if err != nil {
			return notFoundIfNoRows(err, "User")
		}
		if n == 0 {
			return apperrors.NewConflictError(database.LastAdminMessage)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}
