package store

import (
	"context"
	"fmt"

	"github.com/relaylane/router/internal/routing"
)

// Write implements usage.Writer: an insert-only append to the usage table,
// never read back by the core.
func (s *Store) Write(ctx context.Context, record routing.UsageRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage (id, user_id, provider, model, input_tokens, output_tokens, cost_usd, agent_id, conversation_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.UserID, record.Provider, record.Model,
		record.InputTokens, record.OutputTokens, record.CostUSD,
		record.AgentID, record.ConversationID, record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}
