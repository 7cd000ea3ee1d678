package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/anyclaw/anyclaw/internal/models"
)

const gatewayColumns = "id, user_id, profile, port, status, phone, pid, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGateway(row rowScanner) (*models.Gateway, error) {
	var (
		g     models.Gateway
		phone sql.NullString
		pid   sql.NullInt64
	)
	if err := row.Scan(&g.ID, &g.UserID, &g.Profile, &g.Port, &g.Status, &phone, &pid, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	if phone.Valid {
		g.Phone = &phone.String
	}
	if pid.Valid {
		v := int(pid.Int64)
		g.PID = &v
	}
	return &g, nil
}

// GetGateway returns the gateway with the given id.
func (db *DB) GetGateway(ctx context.Context, id string) (*models.Gateway, error) {
	row := db.QueryRowContext(ctx, "SELECT "+gatewayColumns+" FROM gateways WHERE id = ?", id)
	g, err := scanGateway(row)
	if err != nil {
		return nil, notFound(err, "gateway "+id)
	}
	return g, nil
}

// GetGatewayByUser returns the gateway owned by the given tenant.
func (db *DB) GetGatewayByUser(ctx context.Context, userID string) (*models.Gateway, error) {
	row := db.QueryRowContext(ctx, "SELECT "+gatewayColumns+" FROM gateways WHERE user_id = ?", userID)
	g, err := scanGateway(row)
	if err != nil {
		return nil, notFound(err, "gateway for user "+userID)
	}
	return g, nil
}

func (db *DB) ListGateways(ctx context.Context) ([]models.Gateway, error) {
	rows, err := db.QueryContext(ctx, "SELECT "+gatewayColumns+" FROM gateways ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list gateways: %w", err)
	}
	defer rows.Close()

	var out []models.Gateway
	for rows.Next() {
		g, err := scanGateway(rows)
		if err != nil {
			return nil, fmt.Errorf("scan gateway: %w", err)
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

// MaxGatewayPort returns the highest port recorded across all gateways.
// ok is false when no gateway exists.
func (db *DB) MaxGatewayPort(ctx context.Context) (port int, ok bool, err error) {
	var max sql.NullInt64
	if err := db.QueryRowContext(ctx, "SELECT MAX(port) FROM gateways").Scan(&max); err != nil {
		return 0, false, fmt.Errorf("read max port: %w", err)
	}
	if !max.Valid {
		return 0, false, nil
	}
	return int(max.Int64), true, nil
}

func (db *DB) InsertGateway(ctx context.Context, g *models.Gateway) error {
	now := time.Now().UTC()
	if g.Status == "" {
		g.Status = models.GatewayCreated
	}
	_, err := db.ExecContext(ctx,
		"INSERT INTO gateways (id, user_id, profile, port, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		g.ID, g.UserID, g.Profile, g.Port, g.Status, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert gateway: %w", err)
	}
	g.CreatedAt = now
	g.UpdatedAt = now
	return nil
}

func (db *DB) UpdateGatewayStatus(ctx context.Context, id, status string) error {
	res, err := db.ExecContext(ctx,
		"UPDATE gateways SET status = ?, updated_at = ? WHERE id = ?",
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update gateway status: %w", err)
	}
	return requireRow(res, "gateway "+id)
}

// SetGatewayConnected records a successful pairing and the observed contact.
func (db *DB) SetGatewayConnected(ctx context.Context, id, phone string) error {
	var p any
	if phone != "" {
		p = phone
	}
	res, err := db.ExecContext(ctx,
		"UPDATE gateways SET status = ?, phone = ?, updated_at = ? WHERE id = ?",
		models.GatewayConnected, p, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update gateway connected: %w", err)
	}
	return requireRow(res, "gateway "+id)
}

func (db *DB) DeleteGateway(ctx context.Context, id string) error {
	if _, err := db.ExecContext(ctx, "DELETE FROM gateways WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete gateway: %w", err)
	}
	return nil
}

func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
