package database

import (
	"time"

	"github.com/inboxowl/inboxowl/internal/rules"
)

// User represents an authenticated user
type User struct {
	ID           int64     `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`         // User's Gmail address
	GoogleID     string    `db:"google_id" json:"googleId"`  // Google user ID
	Name         string    `db:"name" json:"name"`           // Display name from the Google profile
	AccessToken  string    `db:"access_token" json:"-"`      // OAuth access token (not exposed in JSON)
	RefreshToken string    `db:"refresh_token" json:"-"`     // OAuth refresh token (not exposed in JSON)
	TokenExpiry  time.Time `db:"token_expiry" json:"-"`      // When access token expires
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// Email is a message ingested from the mail provider
type Email struct {
	ID            int64     `db:"id" json:"id"`
	UserID        int64     `db:"user_id" json:"userId"`
	MessageID     string    `db:"message_id" json:"messageId"` // Gmail message ID
	Subject       string    `db:"subject" json:"subject"`
	Sender        string    `db:"sender" json:"sender"` // Display name, or the raw address when absent
	Snippet       string    `db:"snippet" json:"snippet"`
	Body          string    `db:"body" json:"body,omitempty"`
	ReceivedAt    time.Time `db:"received_at" json:"receivedAt"`
	Labels        []string  `db:"labels" json:"labels"` // Provider labels, e.g. INBOX, UNREAD
	HasAttachment bool      `db:"has_attachment" json:"hasAttachment"`
	CategoryIDs   []int64   `db:"-" json:"categoryIds"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

// RuleEmail projects the stored message onto the fields rules can inspect.
func (e *Email) RuleEmail() *rules.Email {
	return &rules.Email{
		ID:            e.ID,
		UserID:        e.UserID,
		Subject:       e.Subject,
		Sender:        e.Sender,
		Snippet:       e.Snippet,
		Body:          e.Body,
		HasAttachment: e.HasAttachment,
	}
}

// Category is a user-defined bucket for emails
type Category struct {
	ID         int64     `db:"id" json:"id"`
	UserID     int64     `db:"user_id" json:"userId"`
	Name       string    `db:"name" json:"name"`
	Color      string    `db:"color" json:"color"`
	EmailCount int       `db:"-" json:"emailCount"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`
}

// Rule is the stored form of a categorization rule
type Rule struct {
	ID           int64             `db:"id" json:"id"`
	UserID       int64             `db:"user_id" json:"userId"`
	CategoryID   int64             `db:"category_id" json:"categoryId"`
	CategoryName string            `db:"-" json:"categoryName"`
	Name         string            `db:"name" json:"name"`
	Conditions   []rules.Condition `db:"conditions" json:"conditions"`
	IsActive     bool              `db:"is_active" json:"isActive"`
	Invalid      string            `db:"-" json:"invalid,omitempty"` // Why stored conditions could not be decoded
	CreatedAt    time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updatedAt"`
}

// MembershipSource records how an email joined a category
type MembershipSource string

const (
	MembershipRule   MembershipSource = "rule"   // Derived from active rules, recomputed on change
	MembershipManual MembershipSource = "manual" // Added explicitly by the user
)

// AnalysisSource records which path produced an analysis
type AnalysisSource string

const (
	AnalysisSourceAI        AnalysisSource = "ai"
	AnalysisSourceHeuristic AnalysisSource = "heuristic"
)

// EmailAnalysis is the persisted spam/summary/category record for one email
type EmailAnalysis struct {
	ID          int64          `db:"id" json:"-"`
	EmailID     int64          `db:"email_id" json:"emailId"`
	SpamScore   float64        `db:"spam_score" json:"spamScore"`
	IsSpam      bool           `db:"is_spam" json:"isSpam"`
	Reasons     []string       `db:"reasons" json:"reasons"`
	Summary     string         `db:"summary" json:"summary"`
	Category    string         `db:"category" json:"category"`
	CategoryID  *int64         `db:"category_id" json:"categoryId"`
	MatchedRule *string        `db:"matched_rule" json:"matchedRule"`
	Source      AnalysisSource `db:"source" json:"source"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`
}
