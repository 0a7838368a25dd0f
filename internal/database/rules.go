package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/inboxowl/inboxowl/internal/rules"
)

// CreateRule stores a validated rule. The target category must belong to the same user.
func (db *DB) CreateRule(ctx context.Context, rule *Rule) error {
	conditionsJSON, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal conditions: %w", err)
	}

	query := `
		INSERT INTO rules (user_id, category_id, name, conditions, is_active, created_at, updated_at)
		SELECT $1, c.id, $3, $4, $5, $6, $6
		FROM categories c
		WHERE c.id = $2 AND c.user_id = $1
		RETURNING id, created_at, updated_at
	`

	err = db.conn.QueryRowContext(
		ctx,
		query,
		rule.UserID,
		rule.CategoryID,
		rule.Name,
		string(conditionsJSON),
		rule.IsActive,
		time.Now(),
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", notFound(err))
	}

	return nil
}

// UpdateRule replaces a rule's name, category, conditions and active flag
func (db *DB) UpdateRule(ctx context.Context, rule *Rule) error {
	conditionsJSON, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal conditions: %w", err)
	}

	query := `
		UPDATE rules r SET category_id = c.id, name = $3, conditions = $4, is_active = $5, updated_at = $6
		FROM categories c
		WHERE r.id = $7 AND r.user_id = $1 AND c.id = $2 AND c.user_id = $1
		RETURNING r.created_at, r.updated_at
	`

	err = db.conn.QueryRowContext(
		ctx,
		query,
		rule.UserID,
		rule.CategoryID,
		rule.Name,
		string(conditionsJSON),
		rule.IsActive,
		time.Now(),
		rule.ID,
	).Scan(&rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", notFound(err))
	}

	return nil
}

// DeleteRule deletes a rule for a user
func (db *DB) DeleteRule(ctx context.Context, userID, ruleID int64) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM rules WHERE id = $1 AND user_id = $2`, ruleID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	return checkAffected(result)
}

// ListRules retrieves all of a user's rules in storage order, active or not.
// Rules whose stored conditions cannot be decoded are returned with Invalid set.
func (db *DB) ListRules(ctx context.Context, userID int64) ([]*Rule, error) {
	return db.queryRules(ctx, userID, false)
}

func (db *DB) queryRules(ctx context.Context, userID int64, activeOnly bool) ([]*Rule, error) {
	query := `
		SELECT r.id, r.user_id, r.category_id, c.name, r.name, r.conditions, r.is_active, r.created_at, r.updated_at
		FROM rules r
		JOIN categories c ON c.id = r.category_id
		WHERE r.user_id = $1 AND (NOT $2 OR r.is_active)
		ORDER BY r.id
	`

	rows, err := db.conn.QueryContext(ctx, query, userID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var result []*Rule
	for rows.Next() {
		var rule Rule
		var conditionsJSON []byte

		err := rows.Scan(
			&rule.ID,
			&rule.UserID,
			&rule.CategoryID,
			&rule.CategoryName,
			&rule.Name,
			&conditionsJSON,
			&rule.IsActive,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}

		conditions, err := rules.ParseConditions(conditionsJSON)
		if err != nil {
			rule.Invalid = err.Error()
		} else {
			rule.Conditions = conditions
		}

		result = append(result, &rule)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return result, nil
}

// GetActiveRules loads the user's active rules in storage order for matching.
func (db *DB) GetActiveRules(ctx context.Context, userID int64) ([]*rules.Rule, error) {
	stored, err := db.queryRules(ctx, userID, true)
	if err != nil {
		return nil, err
	}

	active := make([]*rules.Rule, 0, len(stored))
	for _, r := range stored {
		active = append(active, r.Engine())
	}
	return active, nil
}

// Engine converts the stored rule into the form the matcher evaluates.
func (r *Rule) Engine() *rules.Rule {
	rule := &rules.Rule{
		ID:           r.ID,
		UserID:       r.UserID,
		Name:         r.Name,
		CategoryID:   r.CategoryID,
		CategoryName: r.CategoryName,
		Conditions:   r.Conditions,
		IsActive:     r.IsActive,
	}
	if r.Invalid != "" {
		rule.Invalid = fmt.Errorf("malformed conditions: %s", r.Invalid)
	}
	return rule
}
