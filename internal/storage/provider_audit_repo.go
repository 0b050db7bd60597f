package storage

import (
	"context"
	"fmt"

	"calmchat/internal/providers"
)

// ProviderAuditRepo records embedding and completion calls in provider_calls.
type ProviderAuditRepo struct {
	db *DB
}

var _ providers.Auditor = (*ProviderAuditRepo)(nil)

func NewProviderAuditRepo(db *DB) *ProviderAuditRepo {
	return &ProviderAuditRepo{db: db}
}

func (r *ProviderAuditRepo) RecordCall(ctx context.Context, rec providers.CallRecord) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO provider_calls(call_id, operation, provider_name, model, key_alias, status, error_type, error,
                           input_count, prompt_tokens, completion_tokens, latency_ms)
VALUES ($1::uuid, $2, $3, $4, $5, $6, NULLIF($7,''), NULLIF($8,''), $9, $10, $11, $12)`,
		rec.CallID, rec.Operation, rec.ProviderName, rec.Model, rec.KeyAlias, rec.Status, rec.ErrorType, rec.Error,
		rec.InputCount, rec.PromptTokens, rec.CompletionTokens, rec.Latency.Milliseconds())
	if err != nil {
		return fmt.Errorf("insert provider call: %w", err)
	}
	return nil
}

type ProviderCallSummary struct {
	ProviderName string `json:"provider_name"`
	Operation    string `json:"operation"`
	Calls        int    `json:"calls"`
	Errors       int    `json:"errors"`
}

// SummarizeCalls aggregates provider calls per provider and operation, for `calmctl status`.
func (r *ProviderAuditRepo) SummarizeCalls(ctx context.Context) ([]ProviderCallSummary, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT provider_name, operation, count(*), count(*) FILTER (WHERE status <> 'ok')
FROM provider_calls
GROUP BY provider_name, operation
ORDER BY provider_name, operation`)
	if err != nil {
		return nil, storeErr("summarize provider calls", err)
	}
	defer rows.Close()
	out := make([]ProviderCallSummary, 0)
	for rows.Next() {
		var s ProviderCallSummary
		if err := rows.Scan(&s.ProviderName, &s.Operation, &s.Calls, &s.Errors); err != nil {
			return nil, fmt.Errorf("scan provider call summary: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate provider call summary: %w", err)
	}
	return out, nil
}
