package database

import (
	"context"
	"fmt"
	"time"
)

// CreateUser stores a new user. A taken name yields ErrDuplicate.
func (db *DB) CreateUser(ctx context.Context, id, name, passwordHash string) (*User, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, name, password, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, name, passwordHash, formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting user: %w", classify(err))
	}
	return &User{
		ID:           id,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// GetUserByName returns the user with the given pseudo or ErrNotFound.
func (db *DB) GetUserByName(ctx context.Context, name string) (*User, error) {
	return db.getUser(ctx, "name", name)
}

// GetUserByID returns the user with the given ID or ErrNotFound.
func (db *DB) GetUserByID(ctx context.Context, id string) (*User, error) {
	return db.getUser(ctx, "id", id)
}

func (db *DB) getUser(ctx context.Context, column, value string) (*User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, name, password, created_at, updated_at FROM users WHERE `+column+` = ?`, value,
	)
	var u User
	var createdAt, updatedAt string
	if err := row.Scan(&u.ID, &u.Name, &u.PasswordHash, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("getting user by %s: %w", column, classify(err))
	}
	var err error
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}
