package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/anyclaw/anyclaw/internal/models"
)

const agentColumns = "id, user_id, name, template_id, personality, rules, status, gateway_id, workspace, config_json, created_at, updated_at"

func scanAgent(row rowScanner) (*models.Agent, error) {
	var (
		a  models.Agent
		gw sql.NullString
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.TemplateID, &a.Personality, &a.Rules,
		&a.Status, &gw, &a.Workspace, &a.ConfigJSON, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if gw.Valid {
		a.GatewayID = &gw.String
	}
	return &a, nil
}

func (db *DB) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	row := db.QueryRowContext(ctx, "SELECT "+agentColumns+" FROM agents WHERE id = ?", id)
	a, err := scanAgent(row)
	if err != nil {
		return nil, notFound(err, "agent "+id)
	}
	return a, nil
}

// ListAgents returns agents newest first. An empty userID lists every tenant.
func (db *DB) ListAgents(ctx context.Context, userID string) ([]models.Agent, error) {
	query := "SELECT " + agentColumns + " FROM agents"
	var args []any
	if userID != "" {
		query += " WHERE user_id = ?"
		args = append(args, userID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []models.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (db *DB) InsertAgent(ctx context.Context, a *models.Agent) error {
	now := time.Now().UTC()
	if a.Status == "" {
		a.Status = models.AgentCreated
	}
	if a.ConfigJSON == "" {
		a.ConfigJSON = "{}"
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO agents (id, user_id, name, template_id, personality, rules, status, config_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Name, a.TemplateID, a.Personality, a.Rules, a.Status, a.ConfigJSON, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert agent: %w", err)
	}
	a.CreatedAt = now
	a.UpdatedAt = now
	return nil
}

func (db *DB) UpdateAgentStatus(ctx context.Context, id, status string) error {
	res, err := db.ExecContext(ctx,
		"UPDATE agents SET status = ?, updated_at = ? WHERE id = ?",
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update agent status: %w", err)
	}
	return requireRow(res, "agent "+id)
}

// MarkAgentLinking records a successful provisioning: the agent is bound to
// gatewayID and waits for pairing.
func (db *DB) MarkAgentLinking(ctx context.Context, id, gatewayID, workspace string) error {
	res, err := db.ExecContext(ctx,
		"UPDATE agents SET status = ?, gateway_id = ?, workspace = ?, updated_at = ? WHERE id = ?",
		models.AgentLinking, gatewayID, workspace, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark agent linking: %w", err)
	}
	return requireRow(res, "agent "+id)
}

// AgentPatch lists the mutable agent fields; nil pointers are left alone.
type AgentPatch struct {
	Name        *string
	Personality *string
	Rules       *string
	Status      *string
	ConfigJSON  *string
}

func (p AgentPatch) Empty() bool {
	return p.Name == nil && p.Personality == nil && p.Rules == nil && p.Status == nil && p.ConfigJSON == nil
}

func (db *DB) PatchAgent(ctx context.Context, id string, p AgentPatch) error {
	var (
		sets []string
		args []any
	)
	add := func(col string, v *string) {
		if v != nil {
			sets = append(sets, col+" = ?")
			args = append(args, *v)
		}
	}
	add("name", p.Name)
	add("personality", p.Personality)
	add("rules", p.Rules)
	add("status", p.Status)
	add("config_json", p.ConfigJSON)
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	res, err := db.ExecContext(ctx, "UPDATE agents SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("patch agent: %w", err)
	}
	return requireRow(res, "agent "+id)
}
