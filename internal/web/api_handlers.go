package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/inboxowl/inboxowl/internal/analysis"
	"github.com/inboxowl/inboxowl/internal/database"
	"github.com/inboxowl/inboxowl/internal/gmail"
	"github.com/inboxowl/inboxowl/internal/pipeline"
	"github.com/inboxowl/inboxowl/internal/rules"
)

const (
	defaultEmailLimit = 20
	maxEmailLimit     = 100
)

// GET /api/v1/auth/me
func (s *Server) handleAPIAuthMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.GetUserByID(r.Context(), s.sessionUserID(r))
	if err != nil {
		s.respondStoreError(w, r, err, "Failed to load user")
		return
	}

	respondJSON(w, http.StatusOK, user)
}

// GET /api/v1/categories
func (s *Server) handleAPIGetCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.store.ListCategories(r.Context(), s.sessionUserID(r))
	if err != nil {
		s.respondStoreError(w, r, err, "Failed to load categories")
		return
	}
	if categories == nil {
		categories = []*database.Category{}
	}

	respondJSON(w, http.StatusOK, categories)
}

type categoryRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// POST /api/v1/categories
func (s *Server) handleAPICreateCategory(w http.ResponseWriter, r *http.Request) {
	var body categoryRequest
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	if body.Name == "" {
		respondError(w, http.StatusBadRequest, "Category name is required")
		return
	}

	category := &database.Category{
		UserID: s.sessionUserID(r),
		Name:   body.Name,
		Color:  body.Color,
	}
	if err := s.store.CreateCategory(r.Context(), category); err != nil {
		s.respondStoreError(w, r, err, "Failed to create category")
		return
	}

	respondJSON(w, http.StatusCreated, category)
}

// PUT /api/v1/categories/{id}
func (s *Server) handleAPIUpdateCategory(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid category ID")
		return
	}

	var body categoryRequest
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	if body.Name == "" {
		respondError(w, http.StatusBadRequest, "Category name is required")
		return
	}

	category := &database.Category{
		ID:     categoryID,
		UserID: s.sessionUserID(r),
		Name:   body.Name,
		Color:  body.Color,
	}
	if err := s.store.UpdateCategory(r.Context(), category); err != nil {
		s.respondStoreError(w, r, err, "Failed to update category")
		return
	}

	respondJSON(w, http.StatusOK, category)
}

// DELETE /api/v1/categories/{id}
func (s *Server) handleAPIDeleteCategory(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid category ID")
		return
	}

	userID := s.sessionUserID(r)
	if err := s.store.DeleteCategory(r.Context(), userID, categoryID); err != nil {
		s.respondStoreError(w, r, err, "Failed to delete category")
		return
	}
	// Rules targeting the category are gone too, so later rules may now apply.
	s.reconcileRules(r.Context(), userID)

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// POST /api/v1/categories/{id}/emails
func (s *Server) handleAPIAddEmailsToCategory(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid category ID")
		return
	}

	var body struct {
		EmailIDs []int64 `json:"emailIds"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if len(body.EmailIDs) == 0 {
		respondError(w, http.StatusBadRequest, "emailIds is required")
		return
	}

	added, err := s.store.AddEmailsToCategory(r.Context(), s.sessionUserID(r), categoryID, body.EmailIDs)
	if err != nil {
		s.respondStoreError(w, r, err, "Failed to add emails to category")
		return
	}

	respondJSON(w, http.StatusOK, map[string]int{"added": added})
}

// GET /api/v1/rules
func (s *Server) handleAPIGetRules(w http.ResponseWriter, r *http.Request) {
	ruleList, err := s.store.ListRules(r.Context(), s.sessionUserID(r))
	if err != nil {
		s.respondStoreError(w, r, err, "Failed to load rules")
		return
	}
	if ruleList == nil {
		ruleList = []*database.Rule{}
	}

	respondJSON(w, http.StatusOK, ruleList)
}

type ruleRequest struct {
	Name       string          `json:"name"`
	CategoryID int64           `json:"categoryId"`
	Conditions json.RawMessage `json:"conditions"`
	IsActive   *bool           `json:"isActive"`
}

// parseRuleRequest validates rule input; nothing invalid reaches storage.
func parseRuleRequest(r *http.Request, userID int64) (*database.Rule, error) {
	var body ruleRequest
	if err := decodeJSON(r, &body); err != nil {
		return nil, &rules.ValidationError{Reason: "invalid JSON"}
	}

	body.Name = strings.TrimSpace(body.Name)
	if body.Name == "" {
		return nil, &rules.ValidationError{Reason: "rule name is required"}
	}
	if body.CategoryID <= 0 {
		return nil, &rules.ValidationError{Reason: "categoryId is required"}
	}
	if len(body.Conditions) == 0 {
		return nil, &rules.ValidationError{Reason: "conditions are required"}
	}

	conditions, err := rules.DecodeConditions(body.Conditions)
	if err != nil {
		return nil, err
	}

	isActive := true
	if body.IsActive != nil {
		isActive = *body.IsActive
	}

	return &database.Rule{
		UserID:     userID,
		CategoryID: body.CategoryID,
		Name:       body.Name,
		Conditions: conditions,
		IsActive:   isActive,
	}, nil
}

// POST /api/v1/rules
func (s *Server) handleAPICreateRule(w http.ResponseWriter, r *http.Request) {
	userID := s.sessionUserID(r)
	rule, err := parseRuleRequest(r, userID)
	if err != nil {
		s.respondStoreError(w, r, err, "Failed to create rule")
		return
	}

	if err := s.store.CreateRule(r.Context(), rule); err != nil {
		s.respondStoreError(w, r, err, "Failed to create rule")
		return
	}
	s.reconcileRules(r.Context(), userID)

	respondJSON(w, http.StatusCreated, rule)
}

// PUT /api/v1/rules/{id}
func (s *Server) handleAPIUpdateRule(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid rule ID")
		return
	}

	userID := s.sessionUserID(r)
	rule, err := parseRuleRequest(r, userID)
	if err != nil {
		s.respondStoreError(w, r, err, "Failed to update rule")
		return
	}
	rule.ID = ruleID

	if err := s.store.UpdateRule(r.Context(), rule); err != nil {
		s.respondStoreError(w, r, err, "Failed to update rule")
		return
	}
	s.reconcileRules(r.Context(), userID)

	respondJSON(w, http.StatusOK, rule)
}

// DELETE /api/v1/rules/{id}
func (s *Server) handleAPIDeleteRule(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid rule ID")
		return
	}

	userID := s.sessionUserID(r)
	if err := s.store.DeleteRule(r.Context(), userID, ruleID); err != nil {
		s.respondStoreError(w, r, err, "Failed to delete rule")
		return
	}
	s.reconcileRules(r.Context(), userID)

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// reconcileRules recomputes rule-derived membership. The rule change itself
// has been stored, so a failure here is logged rather than reported.
func (s *Server) reconcileRules(ctx context.Context, userID int64) {
	if err := s.syncer.ReconcileRules(ctx, userID); err != nil {
		s.logger.Error("Failed to recompute rule memberships",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
	}
}

// GET /api/v1/emails?categoryId=&limit=
func (s *Server) handleAPIGetEmails(w http.ResponseWriter, r *http.Request) {
	userID := s.sessionUserID(r)

	limit := defaultEmailLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxEmailLimit {
		limit = maxEmailLimit
	}

	var categoryID *int64
	if c := r.URL.Query().Get("categoryId"); c != "" {
		parsed, err := strconv.ParseInt(c, 10, 64)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "Invalid categoryId")
			return
		}
		categoryID = &parsed
	}

	// Provider trouble falls back to what is already stored.
	if s.throttle.Acquire(r.Context(), userID) {
		if _, err := s.syncUser(r.Context(), userID); err != nil {
			s.logger.Warn("Inbox sync failed, serving stored emails",
				zap.Int64("user_id", userID),
				zap.Error(err),
			)
		}
	}

	emails, err := s.store.ListEmails(r.Context(), userID, categoryID, limit)
	if err != nil {
		s.respondStoreError(w, r, err, "Failed to load emails")
		return
	}
	if emails == nil {
		emails = []*database.Email{}
	}

	respondJSON(w, http.StatusOK, emails)
}

// POST /api/v1/emails/sync
func (s *Server) handleAPISyncEmails(w http.ResponseWriter, r *http.Request) {
	userID := s.sessionUserID(r)

	// An explicit sync bypasses the throttle but restarts its window.
	if err := s.throttle.Reset(r.Context(), userID); err != nil {
		s.logger.Warn("Failed to reset sync throttle", zap.Int64("user_id", userID), zap.Error(err))
	}
	s.throttle.Acquire(r.Context(), userID)

	result, err := s.syncUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.respondStoreError(w, r, err, "Failed to sync emails")
			return
		}
		s.logger.Error("Inbox sync failed", zap.Int64("user_id", userID), zap.Error(err))
		respondError(w, http.StatusBadGateway, "Failed to sync with Gmail")
		return
	}

	resp := syncResponse{SyncResult: result}
	if at, ok := s.throttle.LastSync(r.Context(), userID); ok {
		resp.SyncedAt = &at
	}
	respondJSON(w, http.StatusOK, resp)
}

type syncResponse struct {
	*pipeline.SyncResult
	SyncedAt *time.Time `json:"syncedAt,omitempty"`
}

func (s *Server) syncUser(ctx context.Context, userID int64) (*pipeline.SyncResult, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	mailbox, err := s.mailboxes(ctx, user)
	if err != nil {
		return nil, err
	}
	return s.syncer.Sync(ctx, user, mailbox)
}

type emailDetail struct {
	*database.Email
	HTML        string             `json:"html,omitempty"`
	Attachments []gmail.Attachment `json:"attachments"`
	Source      string             `json:"source"` // cache, gmail or database
}

// GET /api/v1/emails/{id}
func (s *Server) handleAPIGetEmail(w http.ResponseWriter, r *http.Request) {
	emailID, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid email ID")
		return
	}

	userID := s.sessionUserID(r)
	stored, err := s.store.GetEmail(r.Context(), userID, emailID)
	if err != nil {
		s.respondStoreError(w, r, err, "Failed to load email")
		return
	}

	detail := &emailDetail{Email: stored, Attachments: []gmail.Attachment{}, Source: "database"}

	var msg gmail.Message
	if s.messages.Get(r.Context(), userID, stored.MessageID, &msg) {
		detail.Source = "cache"
	} else if fetched, err := s.fetchMessage(r.Context(), userID, stored.MessageID); err != nil {
		s.logger.Warn("Failed to fetch message, serving stored copy",
			zap.Int64("email_id", emailID),
			zap.Error(err),
		)
	} else {
		msg = *fetched
		s.messages.Put(r.Context(), userID, stored.MessageID, fetched)
		detail.Source = "gmail"
	}

	if detail.Source != "database" {
		if msg.Body != "" {
			stored.Body = msg.Body
		}
		detail.HTML = msg.HTML
		if msg.Attachments != nil {
			detail.Attachments = msg.Attachments
		}
	}

	respondJSON(w, http.StatusOK, detail)
}

func (s *Server) fetchMessage(ctx context.Context, userID int64, messageID string) (*gmail.Message, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	mailbox, err := s.mailboxes(ctx, user)
	if err != nil {
		return nil, err
	}
	return mailbox.GetMessage(ctx, messageID)
}

// GET /api/v1/emails/{id}/analysis?refresh=true
func (s *Server) handleAPIGetAnalysis(w http.ResponseWriter, r *http.Request) {
	emailID, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid email ID")
		return
	}

	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	result, err := s.analysis.Analyze(r.Context(), analysis.Request{
		EmailID: emailID,
		UserID:  s.sessionUserID(r),
		Refresh: refresh,
	})
	if err != nil {
		s.respondStoreError(w, r, err, "Failed to analyze email")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// POST /api/v1/analyze
func (s *Server) handleAPIAnalyze(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Subject string `json:"subject"`
		Content string `json:"content"`
		Sender  string `json:"sender"`
		EmailID int64  `json:"emailId"`
		Refresh bool   `json:"refresh"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	// The analysis service checks that emailId belongs to the caller.
	result, err := s.analysis.Analyze(r.Context(), analysis.Request{
		EmailID: body.EmailID,
		UserID:  s.sessionUserID(r),
		Subject: body.Subject,
		Body:    body.Content,
		Sender:  body.Sender,
		Refresh: body.Refresh,
	})
	if err != nil {
		s.respondStoreError(w, r, err, "Failed to analyze email")
		return
	}

	respondJSON(w, http.StatusOK, result)
}
