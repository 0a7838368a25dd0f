package database

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const emailColumns = `e.id, e.user_id, e.message_id, e.subject, e.sender, e.snippet, e.body, e.received_at, e.labels, e.has_attachment, e.created_at, e.updated_at`

func scanEmail(row rowScanner, withCategories bool) (*Email, error) {
	email := &Email{}
	dest := []any{
		&email.ID,
		&email.UserID,
		&email.MessageID,
		&email.Subject,
		&email.Sender,
		&email.Snippet,
		&email.Body,
		&email.ReceivedAt,
		pq.Array(&email.Labels),
		&email.HasAttachment,
		&email.CreatedAt,
		&email.UpdatedAt,
	}
	if withCategories {
		dest = append(dest, pq.Array(&email.CategoryIDs))
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return email, nil
}

// UpsertEmail stores a provider message. Re-ingesting the same message ID
// refreshes its content, date, and labels. email.ID is set on return.
func (db *DB) UpsertEmail(ctx context.Context, email *Email) error {
	if email.Labels == nil {
		email.Labels = []string{}
	}
	now := time.Now()

	query := `
		INSERT INTO emails (user_id, message_id, subject, sender, snippet, body, received_at, labels, has_attachment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (user_id, message_id) DO UPDATE SET
			subject = EXCLUDED.subject,
			sender = EXCLUDED.sender,
			snippet = EXCLUDED.snippet,
			body = EXCLUDED.body,
			received_at = EXCLUDED.received_at,
			labels = EXCLUDED.labels,
			has_attachment = EXCLUDED.has_attachment,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at
	`

	err := db.conn.QueryRowContext(
		ctx,
		query,
		email.UserID,
		email.MessageID,
		email.Subject,
		email.Sender,
		email.Snippet,
		email.Body,
		email.ReceivedAt,
		pq.Array(email.Labels),
		email.HasAttachment,
		now,
	).Scan(&email.ID, &email.CreatedAt, &email.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert email: %w", err)
	}

	return nil
}

// ListEmails returns a user's emails, newest first, optionally restricted to one category.
func (db *DB) ListEmails(ctx context.Context, userID int64, categoryID *int64, limit int) ([]*Email, error) {
	query := `
		SELECT ` + emailColumns + `,
			COALESCE(array_agg(ec.category_id) FILTER (WHERE ec.category_id IS NOT NULL), '{}')
		FROM emails e
		LEFT JOIN email_categories ec ON ec.email_id = e.id
		WHERE e.user_id = $1
			AND ($2::BIGINT IS NULL OR EXISTS (
				SELECT 1 FROM email_categories f WHERE f.email_id = e.id AND f.category_id = $2
			))
		GROUP BY e.id
		ORDER BY e.received_at DESC
		LIMIT $3
	`

	rows, err := db.conn.QueryContext(ctx, query, userID, categoryID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query emails: %w", err)
	}
	defer rows.Close()

	var emails []*Email
	for rows.Next() {
		email, err := scanEmail(rows, true)
		if err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		emails = append(emails, email)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating emails: %w", err)
	}

	return emails, nil
}

// ListAllEmails returns every email a user owns, in ID order, for rule recomputation.
func (db *DB) ListAllEmails(ctx context.Context, userID int64) ([]*Email, error) {
	query := `SELECT ` + emailColumns + ` FROM emails e WHERE e.user_id = $1 ORDER BY e.id`

	rows, err := db.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query emails: %w", err)
	}
	defer rows.Close()

	var emails []*Email
	for rows.Next() {
		email, err := scanEmail(rows, false)
		if err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		emails = append(emails, email)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating emails: %w", err)
	}

	return emails, nil
}

// GetEmail retrieves one of the user's emails by internal ID
func (db *DB) GetEmail(ctx context.Context, userID, emailID int64) (*Email, error) {
	query := `SELECT ` + emailColumns + ` FROM emails e WHERE e.id = $1 AND e.user_id = $2`

	email, err := scanEmail(db.conn.QueryRowContext(ctx, query, emailID, userID), false)
	if err != nil {
		return nil, fmt.Errorf("failed to get email: %w", notFound(err))
	}

	return email, nil
}

