package rules

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/inboxowl/inboxowl/internal/metrics"
)

// DefaultCategory is assigned when neither a rule nor the keyword taxonomy matches.
const DefaultCategory = "Other"

// RuleSource loads a user's active rules in storage order.
type RuleSource interface {
	GetActiveRules(ctx context.Context, userID int64) ([]*Rule, error)
}

// Result is the outcome of categorizing one email.
type Result struct {
	Category    string `json:"category"`
	CategoryID  *int64 `json:"categoryId,omitempty"`
	MatchedRule string `json:"matchedRule,omitempty"`
}

type keywordGroup struct {
	category string
	pattern  *regexp.Regexp
}

// Checked in order; the first group that matches wins.
var keywordTaxonomy = []keywordGroup{
	{"Finance", regexp.MustCompile(`invoice|payment|receipt|order|purchase|transaction|credit|debit`)},
	{"Work", regexp.MustCompile(`meeting|call|agenda|discuss|presentation|team|project`)},
	{"Promotions", regexp.MustCompile(`newsletter|subscribe|unsubscribe|discount|offer|sale|promotion|deal`)},
	{"Social", regexp.MustCompile(`social|friend|family|birthday|invitation|event|party`)},
}

// Categorizer picks a category for an email from the owner's rules,
// falling back to a fixed keyword taxonomy.
type Categorizer struct {
	source RuleSource
	policy UnknownFieldPolicy
	logger *zap.Logger
}

func NewCategorizer(source RuleSource, policy UnknownFieldPolicy, logger *zap.Logger) *Categorizer {
	return &Categorizer{
		source: source,
		policy: policy,
		logger: logger,
	}
}

// Categorize never fails: rule loading errors fall through to the keyword taxonomy.
func (c *Categorizer) Categorize(ctx context.Context, email *Email) Result {
	if c.source != nil && email.UserID != 0 {
		ruleSet, err := c.source.GetActiveRules(ctx, email.UserID)
		if err != nil {
			c.logger.Warn("Failed to load rules, using keyword fallback",
				zap.Int64("user_id", email.UserID),
				zap.Error(err),
			)
		} else if rule := FirstMatch(ruleSet, email, c.policy, c.logger); rule != nil {
			categoryID := rule.CategoryID
			metrics.IncrementCategorization("rule")
			return Result{
				Category:    rule.CategoryName,
				CategoryID:  &categoryID,
				MatchedRule: rule.Name,
			}
		}
	}

	category := KeywordCategory(email.Subject + " " + email.Body)
	if category == DefaultCategory {
		metrics.IncrementCategorization("default")
	} else {
		metrics.IncrementCategorization("keyword")
	}
	return Result{Category: category}
}

// FirstMatch returns the first active rule that matches the email, or nil.
// Rules whose stored conditions are malformed are logged and skipped.
func FirstMatch(ruleSet []*Rule, email *Email, policy UnknownFieldPolicy, logger *zap.Logger) *Rule {
	for _, rule := range ruleSet {
		if !rule.IsActive {
			continue
		}
		if rule.Invalid != nil {
			logger.Error("Skipping rule with malformed conditions",
				zap.Int64("rule_id", rule.ID),
				zap.String("rule", rule.Name),
				zap.Error(rule.Invalid),
			)
			continue
		}
		if rule.Matches(email, policy) {
			logger.Debug("Rule matched",
				zap.Int64("rule_id", rule.ID),
				zap.Int64("email_id", email.ID),
				zap.Int64("category_id", rule.CategoryID),
			)
			return rule
		}
	}
	return nil
}

// KeywordCategory applies the fallback taxonomy to free text.
func KeywordCategory(text string) string {
	text = strings.ToLower(text)
	for _, group := range keywordTaxonomy {
		if group.pattern.MatchString(text) {
			return group.category
		}
	}
	return DefaultCategory
}

// Assign computes rule-driven category membership for a set of emails:
// each email maps to the category of its first matching rule. Emails
// with no matching rule are absent from the result.
func Assign(ruleSet []*Rule, emails []*Email, policy UnknownFieldPolicy, logger *zap.Logger) map[int64]int64 {
	assignments := make(map[int64]int64, len(emails))
	for _, email := range emails {
		if rule := FirstMatch(ruleSet, email, policy, logger); rule != nil {
			assignments[email.ID] = rule.CategoryID
		}
	}
	return assignments
}
