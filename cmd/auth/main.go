package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inboxowl/inboxowl/internal/config"
	"github.com/inboxowl/inboxowl/internal/database"
	"github.com/inboxowl/inboxowl/internal/gmail"
	"github.com/inboxowl/inboxowl/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "inboxowl-auth: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(cfg.LogLevel, "console")
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, log); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	oauthConfig := gmail.GetOAuthConfig(
		cfg.GoogleClientID,
		cfg.GoogleClientSecret,
		cfg.GoogleRedirectURL,
	)

	// No session to check the state against; the code is pasted by hand.
	authURL := gmail.GetAuthURL(oauthConfig, uuid.NewString())

	fmt.Println("\n=== InboxOwl Gmail authorization ===")
	fmt.Println("\n1. Visit this URL in your browser:")
	fmt.Printf("\n%s\n\n", authURL)
	fmt.Println("2. Authorize the application")
	fmt.Println("3. Copy the code parameter from the redirect URL")
	fmt.Print("\nEnter authorization code: ")

	var code string
	if _, err := fmt.Scan(&code); err != nil {
		return fmt.Errorf("failed to read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)

	token, err := gmail.ExchangeCodeForToken(ctx, oauthConfig, code)
	if err != nil {
		return fmt.Errorf("failed to exchange code for token: %w", err)
	}

	profile, err := gmail.GetProfile(ctx, oauthConfig, token)
	if err != nil {
		return fmt.Errorf("failed to get user info: %w", err)
	}

	user, err := db.UpsertUser(ctx, profile.Email, profile.GoogleID, profile.Name, token)
	if err != nil {
		return fmt.Errorf("failed to save user %s: %w", profile.Email, err)
	}
	log.Info("User authorized", zap.Int64("user_id", user.ID), zap.String("email", user.Email))

	fmt.Printf("\n✓ Authorized %s (user %d)\n", user.Email, user.ID)
	fmt.Println("You can now sign in through the web app or call the API with this account.")
	return nil
}
