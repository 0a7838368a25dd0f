package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/inboxowl/inboxowl/internal/cache"
	"github.com/inboxowl/inboxowl/internal/database"
	"github.com/inboxowl/inboxowl/internal/gmail"
	"github.com/inboxowl/inboxowl/internal/metrics"
	"github.com/inboxowl/inboxowl/internal/rules"
)

// Mailbox is the provider side of a sync.
type Mailbox interface {
	ListInboxMessageIDs(ctx context.Context, maxResults int64) ([]string, error)
	GetMessage(ctx context.Context, messageID string) (*gmail.Message, error)
	Token() (*oauth2.Token, error)
}

// Store is the persistence a sync needs.
type Store interface {
	UpsertEmail(ctx context.Context, email *database.Email) error
	SetRuleMembership(ctx context.Context, emailID int64, categoryID *int64) error
	GetActiveRules(ctx context.Context, userID int64) ([]*rules.Rule, error)
	ListAllEmails(ctx context.Context, userID int64) ([]*database.Email, error)
	ReplaceRuleMemberships(ctx context.Context, userID int64, assignments map[int64]int64) error
	UpdateUserToken(ctx context.Context, userID int64, token *oauth2.Token) error
}

type Options struct {
	MaxResults int
	BatchSize  int
	BatchDelay time.Duration
}

// Syncer ingests inbox messages and keeps rule-derived category membership current.
type Syncer struct {
	store    Store
	messages *cache.MessageCache
	policy   rules.UnknownFieldPolicy
	opts     Options
	logger   *zap.Logger
}

func NewSyncer(store Store, messages *cache.MessageCache, policy rules.UnknownFieldPolicy, opts Options, logger *zap.Logger) *Syncer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 3
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 20
	}
	return &Syncer{
		store:    store,
		messages: messages,
		policy:   policy,
		opts:     opts,
		logger:   logger,
	}
}

// SyncResult summarizes one sync run
type SyncResult struct {
	Fetched int `json:"fetched"`
	Stored  int `json:"stored"`
	Failed  int `json:"failed"`
}

// Sync pulls the newest inbox messages for the user in small batches,
// stores them and assigns their rule-derived category. Individual message
// failures are logged and counted, not returned.
func (s *Syncer) Sync(ctx context.Context, user *database.User, mailbox Mailbox) (*SyncResult, error) {
	ids, err := mailbox.ListInboxMessageIDs(ctx, int64(s.opts.MaxResults))
	if err != nil {
		return nil, fmt.Errorf("failed to list inbox: %w", err)
	}

	ruleSet, err := s.store.GetActiveRules(ctx, user.ID)
	if err != nil {
		s.logger.Warn("Failed to load rules, syncing without categorization",
			zap.Int64("user_id", user.ID),
			zap.Error(err),
		)
		ruleSet = nil
	}

	result := &SyncResult{Fetched: len(ids)}
	var mu sync.Mutex

	for start := 0; start < len(ids); start += s.opts.BatchSize {
		if start > 0 && s.opts.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(s.opts.BatchDelay):
			}
		}

		end := start + s.opts.BatchSize
		if end > len(ids) {
			end = len(ids)
		}

		var wg sync.WaitGroup
		for _, id := range ids[start:end] {
			wg.Add(1)
			go func(messageID string) {
				defer wg.Done()
				err := s.ingest(ctx, user.ID, mailbox, messageID, ruleSet)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					result.Failed++
					metrics.IncrementEmailSynced("failed")
					s.logger.Error("Failed to ingest message",
						zap.Int64("user_id", user.ID),
						zap.String("message_id", messageID),
						zap.Error(err),
					)
					return
				}
				result.Stored++
				metrics.IncrementEmailSynced("success")
			}(id)
		}
		wg.Wait()
	}

	s.saveRefreshedToken(ctx, user, mailbox)

	s.logger.Info("Inbox synced",
		zap.Int64("user_id", user.ID),
		zap.Int("fetched", result.Fetched),
		zap.Int("stored", result.Stored),
		zap.Int("failed", result.Failed),
	)

	return result, nil
}

func (s *Syncer) ingest(ctx context.Context, userID int64, mailbox Mailbox, messageID string, ruleSet []*rules.Rule) error {
	msg, err := mailbox.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if s.messages != nil {
		s.messages.Put(ctx, userID, messageID, msg)
	}

	email := EmailFromMessage(userID, msg)
	if err := s.store.UpsertEmail(ctx, email); err != nil {
		return err
	}

	var categoryID *int64
	if rule := rules.FirstMatch(ruleSet, email.RuleEmail(), s.policy, s.logger); rule != nil {
		id := rule.CategoryID
		categoryID = &id
	}
	return s.store.SetRuleMembership(ctx, email.ID, categoryID)
}

// saveRefreshedToken persists the access token if the mailbox had to refresh it.
func (s *Syncer) saveRefreshedToken(ctx context.Context, user *database.User, mailbox Mailbox) {
	token, err := mailbox.Token()
	if err != nil || token == nil || token.AccessToken == user.AccessToken {
		return
	}
	if err := s.store.UpdateUserToken(ctx, user.ID, token); err != nil {
		s.logger.Warn("Failed to save refreshed token", zap.Int64("user_id", user.ID), zap.Error(err))
		return
	}
	user.AccessToken = token.AccessToken
	user.TokenExpiry = token.Expiry
}

// ReconcileRules recomputes rule-derived membership for all of the user's
// emails from the current active rules. Manual memberships are kept.
func (s *Syncer) ReconcileRules(ctx context.Context, userID int64) error {
	ruleSet, err := s.store.GetActiveRules(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	emails, err := s.store.ListAllEmails(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load emails: %w", err)
	}

	ruleEmails := make([]*rules.Email, 0, len(emails))
	for _, e := range emails {
		ruleEmails = append(ruleEmails, e.RuleEmail())
	}

	assignments := rules.Assign(ruleSet, ruleEmails, s.policy, s.logger)
	if err := s.store.ReplaceRuleMemberships(ctx, userID, assignments); err != nil {
		return err
	}

	s.logger.Info("Rule memberships recomputed",
		zap.Int64("user_id", userID),
		zap.Int("rules", len(ruleSet)),
		zap.Int("emails", len(emails)),
		zap.Int("assigned", len(assignments)),
	)
	return nil
}

// EmailFromMessage maps a provider message onto the stored email shape.
func EmailFromMessage(userID int64, msg *gmail.Message) *database.Email {
	return &database.Email{
		UserID:        userID,
		MessageID:     msg.ID,
		Subject:       msg.Subject,
		Sender:        msg.Sender,
		Snippet:       msg.Snippet,
		Body:          msg.Body,
		ReceivedAt:    msg.ReceivedAt,
		Labels:        msg.Labels,
		HasAttachment: msg.HasAttachment(),
	}
}
