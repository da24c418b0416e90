package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sakif/mediahub/internal/apperror"
	"github.com/sakif/mediahub/internal/model"
	"github.com/sakif/mediahub/internal/repository"
)

var _ repository.UserRepository = (*UserStore)(nil)

// UserStore handles the users table.
type UserStore struct {
	db *DB
}

const userColumns = `id, username, hashed_password, created_at, updated_at`

// Create inserts user and fills in its ID and timestamps.
func (s *UserStore) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC().Truncate(time.Microsecond)

	var id int64
	err := s.db.conn.QueryRowContext(ctx, s.db.rebind(
		`INSERT INTO users (username, hashed_password, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 RETURNING id`),
		user.Username, user.HashedPassword, now, now,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Username)
		}
		return fmt.Errorf("sqldb: creating user: %w", err)
	}

	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	row := s.db.conn.QueryRowContext(ctx, s.db.rebind(
		`SELECT `+userColumns+` FROM users WHERE id = ?`), id)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("sqldb: getting user %d: %w", id, err)
	}
	return user, nil
}

// GetByUsername looks a user up by exact, case-sensitive name.
func (s *UserStore) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	row := s.db.conn.QueryRowContext(ctx, s.db.rebind(
		`SELECT `+userColumns+` FROM users WHERE username = ?`), username)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user", username)
	}
	if err != nil {
		return nil, fmt.Errorf("sqldb: getting user %q: %w", username, err)
	}
	return user, nil
}

// List returns every user ordered by id.
func (s *UserStore) List(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqldb: scanning user row: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqldb: iterating user rows: %w", err)
	}
	return users, nil
}

// Update writes username and hashed password for user.ID and bumps UpdatedAt.
func (s *UserStore) Update(ctx context.Context, user *model.User) error {
	now := time.Now().UTC().Truncate(time.Microsecond)

	result, err := s.db.conn.ExecContext(ctx, s.db.rebind(
		`UPDATE users
		 SET username = ?, hashed_password = ?, updated_at = ?
		 WHERE id = ?`),
		user.Username, user.HashedPassword, now, user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Username)
		}
		return fmt.Errorf("sqldb: updating user %d: %w", user.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqldb: checking rows affected: %w", err)
	}
	if affected == 0 {
		return apperror.NotFound("user", strconv.FormatInt(user.ID, 10))
	}

	user.UpdatedAt = now
	return nil
}

func (s *UserStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.conn.ExecContext(ctx, s.db.rebind(
		`DELETE FROM users WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("sqldb: deleting user %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqldb: checking rows affected: %w", err)
	}
	if affected == 0 {
		return apperror.NotFound("user", strconv.FormatInt(id, 10))
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Username, &u.HashedPassword, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}
