package store

import (
	"context"
	"fmt"
	"time"

	"intake-chat/internal/db"
	"intake-chat/internal/gateway"
)

// UsageStore records completion usage in PostgreSQL. Only counts and the
// guarantor rule are stored, never conversation content.
type UsageStore struct {
	db *db.DB
}

func NewUsageStore(database *db.DB) *UsageStore {
	return &UsageStore{db: database}
}

// RecordUsage implements gateway.UsageRecorder.
func (us *UsageStore) RecordUsage(ctx context.Context, ev gateway.UsageEvent) error {
	query := `
		INSERT INTO usage_events
			(model, prompt_tokens, completion_tokens, total_tokens, guaranteed, rule, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := us.db.ExecContext(ctx, query,
		ev.Model,
		ev.PromptTokens,
		ev.CompletionTokens,
		ev.TotalTokens,
		ev.Guaranteed,
		ev.Rule,
		ev.Latency.Milliseconds(),
		ev.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// UsageSummary aggregates usage over a time window.
type UsageSummary struct {
	Requests         int     `json:"requests"`
	TotalTokens      int     `json:"totalTokens"`
	GuaranteedShare  float64 `json:"guaranteedShare"`
	AverageLatencyMs float64 `json:"averageLatencyMs"`
}

// Summary returns usage recorded since the given time.
func (us *UsageStore) Summary(ctx context.Context, since time.Time) (UsageSummary, error) {
	var s UsageSummary
	var guaranteed int
	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(total_tokens), 0),
		       COALESCE(SUM(CASE WHEN guaranteed THEN 1 ELSE 0 END), 0),
		       COALESCE(AVG(latency_ms), 0)
		FROM usage_events
		WHERE created_at >= $1
	`
	err := us.db.QueryRowContext(ctx, query, since.UTC()).Scan(
		&s.Requests,
		&s.TotalTokens,
		&guaranteed,
		&s.AverageLatencyMs,
	)
	if err != nil {
		return UsageSummary{}, fmt.Errorf("failed to summarize usage: %w", err)
	}
	if s.Requests > 0 {
		s.GuaranteedShare = float64(guaranteed) / float64(s.Requests)
	}
	return s, nil
}
