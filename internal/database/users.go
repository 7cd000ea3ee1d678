package database

import (
	"context"
	"fmt"
	"time"

	"github.com/anyclaw/anyclaw/internal/models"
	"github.com/google/uuid"
)

func (db *DB) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := db.QueryRowContext(ctx,
		"SELECT id, phone, name, created_at, last_seen FROM users WHERE id = ?", id,
	).Scan(&u.ID, &u.Phone, &u.Name, &u.CreatedAt, &u.LastSeen)
	if err != nil {
		return nil, notFound(err, "user "+id)
	}
	return &u, nil
}

func (db *DB) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	var u models.User
	err := db.QueryRowContext(ctx,
		"SELECT id, phone, name, created_at, last_seen FROM users WHERE phone = ?", phone,
	).Scan(&u.ID, &u.Phone, &u.Name, &u.CreatedAt, &u.LastSeen)
	if err != nil {
		return nil, notFound(err, "user with phone "+phone)
	}
	return &u, nil
}

// UpsertUser creates the tenant for phone or, when it exists, refreshes its
// last_seen timestamp. A non-empty name replaces the stored one.
func (db *DB) UpsertUser(ctx context.Context, phone, name string) (*models.User, error) {
	now := time.Now().UTC()
	if name == "" {
		name = "User"
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, phone, name, created_at, last_seen) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(phone) DO UPDATE SET name = excluded.name, last_seen = excluded.last_seen`,
		ShortID(), phone, name, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return db.GetUserByPhone(ctx, phone)
}

// TouchUser refreshes last_seen without changing the name.
func (db *DB) TouchUser(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, "UPDATE users SET last_seen = ? WHERE id = ?", time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("touch user: %w", err)
	}
	return requireRow(res, "user "+id)
}

// ShortID returns a 12 character identifier derived from a random UUID.
func ShortID() string {
	id := uuid.New()
	const hex = "0123456789abcdef"
	out := make([]byte, 12)
	for i := 0; i < 6; i++ {
		out[i*2] = hex[id[i]>>4]
		out[i*2+1] = hex[id[i]&0x0f]
	}
	return string(out)
}
