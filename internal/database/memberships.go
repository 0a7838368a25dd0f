package database

import (
	"context"
	"fmt"
)

// ReplaceRuleMemberships swaps every rule-derived category link for the user's
// emails with the given assignments (email ID -> category ID). Manual links are kept.
func (db *DB) ReplaceRuleMemberships(ctx context.Context, userID int64, assignments map[int64]int64) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM email_categories
		WHERE source = $1 AND email_id IN (SELECT id FROM emails WHERE user_id = $2)
	`, MembershipRule, userID)
	if err != nil {
		return fmt.Errorf("failed to clear rule memberships: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO email_categories (email_id, category_id, source)
		VALUES ($1, $2, $3)
		ON CONFLICT (email_id, category_id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare membership insert: %w", err)
	}
	defer stmt.Close()

	for emailID, categoryID := range assignments {
		if _, err := stmt.ExecContext(ctx, emailID, categoryID, MembershipRule); err != nil {
			return fmt.Errorf("failed to insert membership for email %d: %w", emailID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit memberships: %w", err)
	}

	return nil
}

// SetRuleMembership replaces the rule-derived links of a single email.
// A nil categoryID leaves the email without a rule-derived category.
func (db *DB) SetRuleMembership(ctx context.Context, emailID int64, categoryID *int64) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `DELETE FROM email_categories WHERE email_id = $1 AND source = $2`, emailID, MembershipRule)
	if err != nil {
		return fmt.Errorf("failed to clear rule membership: %w", err)
	}

	if categoryID != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO email_categories (email_id, category_id, source)
			VALUES ($1, $2, $3)
			ON CONFLICT (email_id, category_id) DO NOTHING
		`, emailID, *categoryID, MembershipRule)
		if err != nil {
			return fmt.Errorf("failed to insert rule membership: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit membership: %w", err)
	}

	return nil
}
