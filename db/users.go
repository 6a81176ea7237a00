package db

import (
	"context"
	"database/sql"
	"strings"

	"campusconnect/apperr"
	"campusconnect/models"
)

const userColumns = `id, email, password_hash, name, role, roll_number, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner, extra ...any) (*models.User, error) {
	var (
		u                    models.User
		roll                 sql.NullString
		createdAt, updatedAt int64
	)
	dest := append([]any{&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &roll, &createdAt, &updatedAt}, extra...)
	if err := s.Scan(dest...); err != nil {
		return nil, mapError(err)
	}
	u.RollNumber = nullString(roll)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return &u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser stores a new account. Email and roll number must be unused.
func (d *DB) CreateUser(ctx context.Context, in models.NewUser) (*models.User, error) {
	ctx, cancel := d.opContext(ctx)
	defer cancel()

	role := in.Role
	if role == "" {
		role = models.RoleUser
	}
	now := d.nowUTC()
	u := &models.User{
		ID:           d.newID(),
		Email:        normalizeEmail(in.Email),
		PasswordHash: in.PasswordHash,
		Name:         strings.TrimSpace(in.Name),
		Role:         role,
		RollNumber:   in.RollNumber,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := d.inTx(ctx, func(tx runner) error {
		taken, err := tx.count(ctx, `SELECT COUNT(*) FROM users WHERE email = ?`, u.Email)
		if err != nil {
			return err
		}
		if taken > 0 {
			return apperr.Conflict("User with this email already exists")
		}
		if u.RollNumber != nil {
			taken, err := tx.count(ctx, `SELECT COUNT(*) FROM users WHERE roll_number = ?`, *u.RollNumber)
			if err != nil {
				return err
			}
			if taken > 0 {
				return apperr.Conflict("Roll number already registered")
			}
		}
		_, err = tx.exec(ctx,
			`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			u.ID, u.Email, u.PasswordHash, u.Name, u.Role, u.RollNumber, toMillis(now), toMillis(now),
		)
		return err
	})
	switch {
	case err == nil:
		return u, nil
	case uniqueOn(err, "users.email"):
		return nil, apperr.Conflict("User with this email already exists")
	case uniqueOn(err, "users.roll_number"):
		return nil, apperr.Conflict("Roll number already registered")
	default:
		return nil, failure("create user", err)
	}
}

// UserByID returns the user with the given id.
func (d *DB) UserByID(ctx context.Context, id string) (*models.User, error) {
	ctx, cancel := d.opContext(ctx)
	defer cancel()
	return d.getUser(ctx, d.run, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// UserByEmail returns the user with the given email, compared case-insensitively.
func (d *DB) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, cancel := d.opContext(ctx)
	defer cancel()
	return d.getUser(ctx, d.run, `SELECT `+userColumns+` FROM users WHERE email = ?`, normalizeEmail(email))
}

func (d *DB) getUser(ctx context.Context, r runner, query string, args ...any) (*models.User, error) {
	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, failure("get user", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, failure("get user", mapError(err))
		}
		return nil, apperr.NotFound("User not found")
	}
	u, err := scanUser(rows)
	if err != nil {
		return nil, failure("get user", err)
	}
	return u, nil
}

// UpdateProfile changes a user's name and roll number. A nil roll number clears it.
func (d *DB) UpdateProfile(ctx context.Context, id, name string, rollNumber *string) (*models.User, error) {
	ctx, cancel := d.opContext(ctx)
	defer cancel()

	var updated *models.User
	err := d.inTx(ctx, func(tx runner) error {
		if rollNumber != nil {
			taken, err := tx.count(ctx, `SELECT COUNT(*) FROM users WHERE roll_number = ? AND id <> ?`, *rollNumber, id)
			if err != nil {
				return err
			}
			if taken > 0 {
				return apperr.Conflict("Roll number already registered")
			}
		}
		res, err := tx.exec(ctx,
			`UPDATE users SET name = ?, roll_number = ?, updated_at = ? WHERE id = ?`,
			strings.TrimSpace(name), rollNumber, toMillis(d.nowUTC()), id,
		)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return apperr.NotFound("User not found")
		}
		updated, err = d.getUser(ctx, tx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
		return err
	})
	switch {
	case err == nil:
		return updated, nil
	case uniqueOn(err, "users.roll_number"):
		return nil, apperr.Conflict("Roll number already registered")
	default:
		return nil, failure("update profile", err)
	}
}

// UpdateRole sets a user's role.
func (d *DB) UpdateRole(ctx context.Context, id string, role models.Role) (*models.User, error) {
	ctx, cancel := d.opContext(ctx)
	defer cancel()

	if !role.Valid() {
		return nil, apperr.Validation("Role must be either USER or ADMIN")
	}
	res, err := d.run.exec(ctx, `UPDATE users SET role = ?, updated_at = ? WHERE id = ?`, role, toMillis(d.nowUTC()), id)
	if err != nil {
		return nil, failure("update role", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, failure("update role", err)
	} else if n == 0 {
		return nil, apperr.NotFound("User not found")
	}
	return d.getUser(ctx, d.run, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// ListUsers returns every user with their registration count, newest first.
func (d *DB) ListUsers(ctx context.Context) ([]models.UserWithCount, error) {
	ctx, cancel := d.opContext(ctx)
	defer cancel()

	rows, err := d.run.query(ctx, `
		SELECT u.id, u.email, u.password_hash, u.name, u.role, u.roll_number, u.created_at, u.updated_at,
		       (SELECT COUNT(*) FROM registrations r WHERE r.user_id = u.id)
		FROM users u
		ORDER BY u.created_at DESC, u.id`)
	if err != nil {
		return nil, failure("list users", err)
	}
	defer rows.Close()

	users := []models.UserWithCount{}
	for rows.Next() {
		var count int
		u, err := scanUser(rows, &count)
		if err != nil {
			return nil, failure("list users", err)
		}
		users = append(users, models.UserWithCount{User: *u, RegistrationCount: count})
	}
	if err := rows.Err(); err != nil {
		return nil, failure("list users", mapError(err))
	}
	return users, nil
}

// CountUsers returns the number of accounts.
func (d *DB) CountUsers(ctx context.Context) (int, error) {
	ctx, cancel := d.opContext(ctx)
	defer cancel()
	n, err := d.run.count(ctx, `SELECT COUNT(*) FROM users`)
	if err != nil {
		return 0, failure("count users", err)
	}
	return n, nil
}
