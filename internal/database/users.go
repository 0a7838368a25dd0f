package database

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

const userColumns = `id, email, google_id, name, access_token, refresh_token, token_expiry, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.GoogleID,
		&user.Name,
		&user.AccessToken,
		&user.RefreshToken,
		&user.TokenExpiry,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UpsertUser creates the user on first login or refreshes profile and tokens on later logins.
// An empty refresh token keeps the stored one, since Google only issues it on first consent.
func (db *DB) UpsertUser(ctx context.Context, email, googleID, name string, token *oauth2.Token) (*User, error) {
	query := `
		INSERT INTO users (email, google_id, name, access_token, refresh_token, token_expiry, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (google_id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			access_token = EXCLUDED.access_token,
			refresh_token = COALESCE(NULLIF(EXCLUDED.refresh_token, ''), users.refresh_token),
			token_expiry = EXCLUDED.token_expiry,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + userColumns

	user, err := scanUser(db.conn.QueryRowContext(
		ctx,
		query,
		email,
		googleID,
		name,
		token.AccessToken,
		token.RefreshToken,
		token.Expiry,
		time.Now(),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	return user, nil
}

// GetUserByID retrieves a user by ID
func (db *DB) GetUserByID(ctx context.Context, userID int64) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(db.conn.QueryRowContext(ctx, query, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to get user by ID: %w", notFound(err))
	}

	return user, nil
}

// UpdateUserToken updates a user's OAuth token
func (db *DB) UpdateUserToken(ctx context.Context, userID int64, token *oauth2.Token) error {
	query := `
		UPDATE users
		SET access_token = $1, refresh_token = COALESCE(NULLIF($2, ''), refresh_token), token_expiry = $3, updated_at = $4
		WHERE id = $5
	`

	result, err := db.conn.ExecContext(
		ctx,
		query,
		token.AccessToken,
		token.RefreshToken,
		token.Expiry,
		time.Now(),
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user token: %w", err)
	}

	return checkAffected(result)
}

// GetOAuth2Token converts User tokens to oauth2.Token
func (u *User) GetOAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  u.AccessToken,
		RefreshToken: u.RefreshToken,
		Expiry:       u.TokenExpiry,
		TokenType:    "Bearer",
	}
}
