package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// GetAnalysis retrieves the stored analysis for an email
func (db *DB) GetAnalysis(ctx context.Context, emailID int64) (*EmailAnalysis, error) {
	query := `
		SELECT id, email_id, spam_score, is_spam, reasons, summary, category, category_id, matched_rule, source, created_at
		FROM email_analyses
		WHERE email_id = $1
	`

	var analysis EmailAnalysis
	var reasonsJSON []byte
	var categoryID sql.NullInt64
	var matchedRule sql.NullString

	err := db.conn.QueryRowContext(ctx, query, emailID).Scan(
		&analysis.ID,
		&analysis.EmailID,
		&analysis.SpamScore,
		&analysis.IsSpam,
		&reasonsJSON,
		&analysis.Summary,
		&analysis.Category,
		&categoryID,
		&matchedRule,
		&analysis.Source,
		&analysis.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", notFound(err))
	}

	if err := json.Unmarshal(reasonsJSON, &analysis.Reasons); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reasons: %w", err)
	}
	if categoryID.Valid {
		analysis.CategoryID = &categoryID.Int64
	}
	if matchedRule.Valid {
		analysis.MatchedRule = &matchedRule.String
	}

	return &analysis, nil
}

// UpsertAnalysis stores the analysis for an email, replacing any previous record.
func (db *DB) UpsertAnalysis(ctx context.Context, analysis *EmailAnalysis) error {
	if analysis.Reasons == nil {
		analysis.Reasons = []string{}
	}
	reasonsJSON, err := json.Marshal(analysis.Reasons)
	if err != nil {
		return fmt.Errorf("failed to marshal reasons: %w", err)
	}

	query := `
		INSERT INTO email_analyses (email_id, spam_score, is_spam, reasons, summary, category, category_id, matched_rule, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (email_id) DO UPDATE SET
			spam_score = EXCLUDED.spam_score,
			is_spam = EXCLUDED.is_spam,
			reasons = EXCLUDED.reasons,
			summary = EXCLUDED.summary,
			category = EXCLUDED.category,
			category_id = EXCLUDED.category_id,
			matched_rule = EXCLUDED.matched_rule,
			source = EXCLUDED.source,
			created_at = EXCLUDED.created_at
		RETURNING id, created_at
	`

	err = db.conn.QueryRowContext(
		ctx,
		query,
		analysis.EmailID,
		analysis.SpamScore,
		analysis.IsSpam,
		string(reasonsJSON),
		analysis.Summary,
		analysis.Category,
		analysis.CategoryID,
		analysis.MatchedRule,
		analysis.Source,
		time.Now(),
	).Scan(&analysis.ID, &analysis.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert analysis: %w", err)
	}

	return nil
}

// DeleteAnalysis removes the stored analysis for an email, if any.
func (db *DB) DeleteAnalysis(ctx context.Context, emailID int64) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM email_analyses WHERE email_id = $1`, emailID); err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	return nil
}
