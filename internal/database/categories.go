package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ErrConflict is returned when a unique constraint rejects a write.
var ErrConflict = errors.New("already exists")

func uniqueViolation(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrConflict
	}
	return err
}

// CreateCategory creates a new category for a user
func (db *DB) CreateCategory(ctx context.Context, category *Category) error {
	query := `
		INSERT INTO categories (user_id, name, color, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING id, created_at, updated_at
	`

	err := db.conn.QueryRowContext(
		ctx,
		query,
		category.UserID,
		category.Name,
		category.Color,
		time.Now(),
	).Scan(&category.ID, &category.CreatedAt, &category.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create category: %w", uniqueViolation(err))
	}

	return nil
}

// ListCategories retrieves all categories for a user with their email counts
func (db *DB) ListCategories(ctx context.Context, userID int64) ([]*Category, error) {
	query := `
		SELECT c.id, c.user_id, c.name, c.color, c.created_at, c.updated_at, COUNT(ec.email_id)
		FROM categories c
		LEFT JOIN email_categories ec ON ec.category_id = c.id
		WHERE c.user_id = $1
		GROUP BY c.id
		ORDER BY c.name
	`

	rows, err := db.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []*Category
	for rows.Next() {
		var category Category
		err := rows.Scan(
			&category.ID,
			&category.UserID,
			&category.Name,
			&category.Color,
			&category.CreatedAt,
			&category.UpdatedAt,
			&category.EmailCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, &category)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	return categories, nil
}

// UpdateCategory updates a category's name and color
func (db *DB) UpdateCategory(ctx context.Context, category *Category) error {
	query := `
		UPDATE categories SET name = $1, color = $2, updated_at = $3
		WHERE id = $4 AND user_id = $5
		RETURNING created_at, updated_at
	`

	err := db.conn.QueryRowContext(ctx, query, category.Name, category.Color, time.Now(), category.ID, category.UserID).
		Scan(&category.CreatedAt, &category.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", uniqueViolation(notFound(err)))
	}

	return nil
}

// DeleteCategory deletes a category for a user. Email links and rules
// pointing at it go with it; the emails themselves are kept.
func (db *DB) DeleteCategory(ctx context.Context, userID, categoryID int64) error {
	query := `DELETE FROM categories WHERE id = $1 AND user_id = $2`

	result, err := db.conn.ExecContext(ctx, query, categoryID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}

	return checkAffected(result)
}

// AddEmailsToCategory links emails to a category as manual members.
// Emails the user does not own are ignored. The count covers every owned
// email now linked, including existing links re-marked as manual.
func (db *DB) AddEmailsToCategory(ctx context.Context, userID, categoryID int64, emailIDs []int64) (int, error) {
	var owned bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM categories WHERE id = $1 AND user_id = $2)`,
		categoryID, userID,
	).Scan(&owned)
	if err != nil {
		return 0, fmt.Errorf("failed to check category: %w", err)
	}
	if !owned {
		return 0, ErrNotFound
	}

	query := `
		INSERT INTO email_categories (email_id, category_id, source)
		SELECT e.id, $1, $2
		FROM emails e
		WHERE e.user_id = $3 AND e.id = ANY($4)
		ON CONFLICT (email_id, category_id) DO UPDATE SET source = EXCLUDED.source
	`

	result, err := db.conn.ExecContext(ctx, query, categoryID, MembershipManual, userID, pq.Array(emailIDs))
	if err != nil {
		return 0, fmt.Errorf("failed to add emails to category: %w", err)
	}

	added, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(added), nil
}
