package database

import (
	"context"
	"fmt"
	"time"

	"github.com/anyclaw/anyclaw/internal/models"
	"github.com/google/uuid"
)

// Audit actions recorded by the HTTP layer.
const (
	AuditAgentCreated     = "agent_created"
	AuditAgentUpdated     = "agent_updated"
	AuditAgentProvisioned = "agent_provisioned"
	AuditGatewayCreated   = "gateway_created"
	AuditGatewayStarted   = "gateway_started"
	AuditGatewayRemoved   = "gateway_removed"
	AuditLogin            = "login"
	AuditLogout           = "logout"
)

// LogAudit records a tenant-visible event. Failures are swallowed: the
// audit trail never blocks the operation it describes.
func (db *DB) LogAudit(ctx context.Context, userID, action, category, targetID, details string) {
	if len(details) > 200 {
		details = details[:200]
	}
	_, _ = db.ExecContext(ctx,
		"INSERT INTO audit_logs (id, user_id, action, category, target, target_id, details, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		uuid.New().String(), userID, action, category, category, targetID, details, time.Now().UTC(),
	)
}

// ListAudit returns one tenant's newest events first.
func (db *DB) ListAudit(ctx context.Context, userID string, limit int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx,
		"SELECT id, user_id, action, category, target, target_id, details, created_at FROM audit_logs WHERE user_id = ? ORDER BY created_at DESC LIMIT ?",
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	out := []models.AuditLog{}
	for rows.Next() {
		var l models.AuditLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.Action, &l.Category, &l.Target, &l.TargetID, &l.Details, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// PruneAudit deletes events older than before.
func (db *DB) PruneAudit(ctx context.Context, before time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, "DELETE FROM audit_logs WHERE created_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune audit logs: %w", err)
	}
	return res.RowsAffected()
}
