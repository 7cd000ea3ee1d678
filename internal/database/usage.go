package database

import (
	"context"
	"fmt"

	"github.com/anyclaw/anyclaw/internal/models"
)

// RecordUsage adds the given counters to the agent's row for date (YYYY-MM-DD).
func (db *DB) RecordUsage(ctx context.Context, agentID, date string, in, out, tokens int) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO agent_usage (agent_id, date, messages_in, messages_out, tokens_used)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(agent_id, date) DO UPDATE SET
			messages_in = messages_in + excluded.messages_in,
			messages_out = messages_out + excluded.messages_out,
			tokens_used = tokens_used + excluded.tokens_used`,
		agentID, date, in, out, tokens,
	)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// UsageSince returns daily rows on or after since, newest first.
func (db *DB) UsageSince(ctx context.Context, agentID, since string) ([]models.AgentUsage, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT date, messages_in, messages_out, tokens_used FROM agent_usage
		WHERE agent_id = ? AND date >= ? ORDER BY date DESC`, agentID, since)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	out := []models.AgentUsage{}
	for rows.Next() {
		var u models.AgentUsage
		if err := rows.Scan(&u.Date, &u.MessagesIn, &u.MessagesOut, &u.TokensUsed); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (db *DB) UsageTotals(ctx context.Context, agentID string) (models.UsageTotals, error) {
	var t models.UsageTotals
	err := db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(messages_in), 0), COALESCE(SUM(messages_out), 0), COALESCE(SUM(tokens_used), 0)
		FROM agent_usage WHERE agent_id = ?`, agentID,
	).Scan(&t.MessagesIn, &t.MessagesOut, &t.Tokens)
	if err != nil {
		return t, fmt.Errorf("usage totals: %w", err)
	}
	return t, nil
}

// PruneUsage deletes daily rows older than before and reports how many went.
func (db *DB) PruneUsage(ctx context.Context, before string) (int64, error) {
	res, err := db.ExecContext(ctx, "DELETE FROM agent_usage WHERE date < ?", before)
	if err != nil {
		return 0, fmt.Errorf("prune usage: %w", err)
	}
	return res.RowsAffected()
}
