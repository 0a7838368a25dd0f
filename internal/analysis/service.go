// Package analysis produces and persists per-email spam verdicts, summaries
// and categories. A stored analysis is returned as-is until a refresh is
// requested.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/inboxowl/inboxowl/internal/database"
	"github.com/inboxowl/inboxowl/internal/metrics"
	"github.com/inboxowl/inboxowl/internal/rules"
	"github.com/inboxowl/inboxowl/internal/spam"
)

// Model input is truncated to keep requests small.
const maxGeneratorBody = 2000

// Store persists analyses and resolves the emails they belong to.
type Store interface {
	GetAnalysis(ctx context.Context, emailID int64) (*database.EmailAnalysis, error)
	UpsertAnalysis(ctx context.Context, analysis *database.EmailAnalysis) error
	DeleteAnalysis(ctx context.Context, emailID int64) error
	GetEmail(ctx context.Context, userID, emailID int64) (*database.Email, error)
}

// Generator is the optional generative model.
type Generator interface {
	AnalyzeSpam(ctx context.Context, subject, body string) (*spam.AIVerdict, error)
	Summarize(ctx context.Context, text string) (string, error)
}

// Categorizer assigns a category to an email. It must not fail.
type Categorizer interface {
	Categorize(ctx context.Context, email *rules.Email) rules.Result
}

// Request asks for the analysis of one email, or of ad-hoc content when EmailID is zero.
type Request struct {
	EmailID       int64
	UserID        int64
	Subject       string
	Body          string
	Sender        string
	Snippet       string
	HasAttachment bool
	Refresh       bool
}

// Result is an analysis plus how it was obtained.
type Result struct {
	database.EmailAnalysis
	Cached bool `json:"cached"`
	Empty  bool `json:"empty,omitempty"`
}

type Service struct {
	store       Store
	generator   Generator
	categorizer Categorizer
	logger      *zap.Logger
}

// NewService wires the analysis chain. generator may be nil.
func NewService(store Store, generator Generator, categorizer Categorizer, logger *zap.Logger) *Service {
	return &Service{
		store:       store,
		generator:   generator,
		categorizer: categorizer,
		logger:      logger,
	}
}

// Analyze returns the stored analysis for req.EmailID if there is one, and
// otherwise computes, persists and returns a new one. Only persistence
// failures are returned as errors.
func (s *Service) Analyze(ctx context.Context, req Request) (*Result, error) {
	if req.EmailID != 0 {
		// Ownership is checked before the stored record is read or cleared.
		email, err := s.store.GetEmail(ctx, req.UserID, req.EmailID)
		if err != nil {
			return nil, fmt.Errorf("failed to load email: %w", err)
		}

		if req.Refresh {
			if err := s.store.DeleteAnalysis(ctx, req.EmailID); err != nil {
				return nil, fmt.Errorf("failed to clear analysis: %w", err)
			}
		} else {
			existing, err := s.store.GetAnalysis(ctx, req.EmailID)
			if err == nil {
				metrics.IncrementAnalysis("cache")
				return &Result{EmailAnalysis: *existing, Cached: true}, nil
			}
			if !errors.Is(err, database.ErrNotFound) {
				return nil, fmt.Errorf("failed to load analysis: %w", err)
			}
		}

		fillFromEmail(&req, email)
	}

	if strings.TrimSpace(req.Subject) == "" && strings.TrimSpace(req.Body) == "" {
		metrics.IncrementAnalysis("empty")
		return emptyResult(req.EmailID), nil
	}

	analysis := s.compute(ctx, req)

	category := s.categorizer.Categorize(ctx, &rules.Email{
		ID:            req.EmailID,
		UserID:        req.UserID,
		Subject:       req.Subject,
		Sender:        req.Sender,
		Snippet:       req.Snippet,
		Body:          req.Body,
		HasAttachment: req.HasAttachment,
	})
	analysis.Category = category.Category
	analysis.CategoryID = category.CategoryID
	if category.MatchedRule != "" {
		matched := category.MatchedRule
		analysis.MatchedRule = &matched
	}

	metrics.IncrementAnalysis(string(analysis.Source))

	if req.EmailID == 0 {
		return &Result{EmailAnalysis: *analysis}, nil
	}

	analysis.EmailID = req.EmailID
	if err := s.store.UpsertAnalysis(ctx, analysis); err != nil {
		return nil, fmt.Errorf("failed to save analysis: %w", err)
	}

	s.logger.Info("Email analyzed",
		zap.Int64("email_id", req.EmailID),
		zap.String("source", string(analysis.Source)),
		zap.Float64("spam_score", analysis.SpamScore),
		zap.String("category", analysis.Category),
	)

	return &Result{EmailAnalysis: *analysis}, nil
}

// fillFromEmail completes a request with the stored email's content.
// Content given in the request wins over the stored copy.
func fillFromEmail(req *Request, email *database.Email) {
	if req.Subject == "" && req.Body == "" {
		req.Subject = email.Subject
		req.Body = email.Body
		if req.Body == "" {
			req.Body = email.Snippet
		}
	}
	if req.Sender == "" {
		req.Sender = email.Sender
	}
	if req.Snippet == "" {
		req.Snippet = email.Snippet
	}
	if email.HasAttachment {
		req.HasAttachment = true
	}
}

// compute tries the generative model first and falls back to the heuristic scorer.
func (s *Service) compute(ctx context.Context, req Request) *database.EmailAnalysis {
	body := truncate(req.Body, maxGeneratorBody)

	if s.generator != nil {
		verdict, err := s.generator.AnalyzeSpam(ctx, req.Subject, body)
		if err == nil {
			summary := verdict.Summary
			if summary == "" {
				summary = spam.Summarize(req.Body)
			}
			return &database.EmailAnalysis{
				SpamScore: verdict.SpamScore,
				IsSpam:    verdict.IsSpam,
				Reasons:   verdict.Reasons,
				Summary:   summary,
				Source:    database.AnalysisSourceAI,
			}
		}
		s.logger.Warn("Generative analysis failed, using heuristics",
			zap.Int64("email_id", req.EmailID),
			zap.Error(err),
		)
	}

	verdict := spam.Score(req.Subject, req.Body)
	return &database.EmailAnalysis{
		SpamScore: verdict.SpamScore,
		IsSpam:    verdict.IsSpam,
		Reasons:   verdict.Reasons,
		Summary:   s.summarize(ctx, req.EmailID, req.Body, body),
		Source:    database.AnalysisSourceHeuristic,
	}
}

func (s *Service) summarize(ctx context.Context, emailID int64, full, truncated string) string {
	if strings.TrimSpace(full) == "" {
		return spam.NoContentSummary
	}
	if s.generator != nil {
		summary, err := s.generator.Summarize(ctx, truncated)
		if err == nil && summary != "" {
			return summary
		}
		s.logger.Debug("Generative summary unavailable, using extractive summary",
			zap.Int64("email_id", emailID),
			zap.Error(err),
		)
	}
	return spam.Summarize(full)
}

func emptyResult(emailID int64) *Result {
	return &Result{
		EmailAnalysis: database.EmailAnalysis{
			EmailID:  emailID,
			Reasons:  []string{},
			Summary:  spam.NoContentSummary,
			Category: rules.DefaultCategory,
			Source:   database.AnalysisSourceHeuristic,
		},
		Empty: true,
	}
}

// truncate cuts s to at most max bytes without splitting a UTF-8 sequence.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
