package graph

import (
	"context"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/database"
	"moviegraph/internal/types"
)

func (s *Store) CreateUser(ctx context.Context, user *types.User) (*types.User, error) {
	created := *user
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if created.Role == "" {
		created.Role = types.RoleUser
	}
	created.Created = s.timestamp()

	_, err := write(ctx, s, "create user", func(tx neo4j.ManagedTransaction) (struct{}, error) {
		_, err := exec(ctx, tx, `CREATE (u:User) SET u = $props`, map[string]any{"props": map[string]any{
			"id":            created.ID,
			"username":      created.Username,
			"email":         strOrNil(created.Email),
			"password_hash": created.PasswordHash,
			"role":          created.Role,
			"created_at":    created.Created,
		}})
		switch {
		case violatesProperty(err, "email"):
			return struct{}{}, apperrors.NewConflictError("Email already registered")
		case isConstraintViolation(err):
			return struct{}{}, apperrors.NewConflictError("Username already registered")
		}
		return struct{}{}, err
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*types.User, error) {
	return read(ctx, s, "get user", func(tx neo4j.ManagedTransaction) (*types.User, error) {
		return getUser(ctx, tx, username)
	})
}

func getUser(ctx context.Context, tx neo4j.ManagedTransaction, username string) (*types.User, error) {
	records, err := collect(ctx, tx,
		`MATCH (u:User {username: $username}) RETURN u {.*} AS user`,
		map[string]any{"username": username})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.NewNotFoundError("User")
	}
	u := userFromProps(props(records[0], "user"))
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context, page types.Page) ([]types.User, error) {
	page = database.ClampPage(page)
	return read(ctx, s, "list users", func(tx neo4j.ManagedTransaction) ([]types.User, error) {
		records, err := collect(ctx, tx, `
			MATCH (u:User)
			RETURN u {.*} AS user
			ORDER BY u.username
			SKIP $skip LIMIT $limit
		`, map[string]any{"skip": page.Skip, "limit": page.Limit})
		if err != nil {
			return nil, err
		}
		users := make([]types.User, 0, len(records))
		for _, rec := range records {
			users = append(users, userFromProps(props(rec, "user")))
		}
		return users, nil
	})
}

func (s *Store) SetUserRole(ctx context.Context, username, role string) (*types.User, error) {
	if !types.ValidRole(role) {
		return nil, apperrors.NewValidationError("unknown role " + role)
	}

	return write(ctx, s, "set role", func(tx neo4j.ManagedTransaction) (*types.User, error) {
		current, err := getUser(ctx, tx, username)
		if err != nil {
			return nil, err
		}

		if current.Role == types.RoleAdmin && role != types.RoleAdmin {
			// Writing every admin node takes its lock, so concurrent
			// demotions are serialized before the count is read.
			records, err := collect(ctx, tx, `
				MATCH (a:User {role: $admin})
				SET a.role = a.role
				RETURN count(a) AS admins
			`, map[string]any{"admin": types.RoleAdmin})
			if err != nil {
				return nil, err
			}
			if len(records) == 0 || asInt(value(records[0], "admins")) <= 1 {
				return nil, apperrors.NewConflictError(database.LastAdminMessage)
			}
		}

		if _, err := exec(ctx, tx, `MATCH (u:User {username: $username}) SET u.role = $role`,
			map[string]any{"username": username, "role": role}); err != nil {
			return nil, err
		}
		return getUser(ctx, tx, username)
	})
}
