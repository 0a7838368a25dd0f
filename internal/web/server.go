package web

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/inboxowl/inboxowl/internal/analysis"
	"github.com/inboxowl/inboxowl/internal/cache"
	"github.com/inboxowl/inboxowl/internal/config"
	"github.com/inboxowl/inboxowl/internal/database"
	"github.com/inboxowl/inboxowl/internal/gmail"
	"github.com/inboxowl/inboxowl/internal/pipeline"
)

// Store is the persistence the HTTP API needs.
type Store interface {
	UpsertUser(ctx context.Context, email, googleID, name string, token *oauth2.Token) (*database.User, error)
	GetUserByID(ctx context.Context, userID int64) (*database.User, error)

	ListCategories(ctx context.Context, userID int64) ([]*database.Category, error)
	CreateCategory(ctx context.Context, category *database.Category) error
	UpdateCategory(ctx context.Context, category *database.Category) error
	DeleteCategory(ctx context.Context, userID, categoryID int64) error
	AddEmailsToCategory(ctx context.Context, userID, categoryID int64, emailIDs []int64) (int, error)

	ListRules(ctx context.Context, userID int64) ([]*database.Rule, error)
	CreateRule(ctx context.Context, rule *database.Rule) error
	UpdateRule(ctx context.Context, rule *database.Rule) error
	DeleteRule(ctx context.Context, userID, ruleID int64) error

	ListEmails(ctx context.Context, userID int64, categoryID *int64, limit int) ([]*database.Email, error)
	GetEmail(ctx context.Context, userID, emailID int64) (*database.Email, error)

	Ping(ctx context.Context) error
}

// MailboxFactory opens the user's mailbox with their stored credentials.
type MailboxFactory func(ctx context.Context, user *database.User) (pipeline.Mailbox, error)

// Deps are the collaborators the server routes requests to.
type Deps struct {
	Store      Store
	Analysis   *analysis.Service
	Syncer     *pipeline.Syncer
	Throttle   *cache.SyncThrottle
	Messages   *cache.MessageCache
	Mailboxes  MailboxFactory
	FrontendFS fs.FS // nil disables the SPA fallback
	Logger     *zap.Logger
}

type Server struct {
	router       *mux.Router
	config       *config.Config
	sessionStore *sessions.CookieStore
	oauthConfig  *oauth2.Config
	store        Store
	analysis     *analysis.Service
	syncer       *pipeline.Syncer
	throttle     *cache.SyncThrottle
	messages     *cache.MessageCache
	mailboxes    MailboxFactory
	frontendFS   fs.FS
	logger       *zap.Logger
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	store := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 days
		HttpOnly: true,
		Secure:   cfg.SessionSecret != config.DefaultSessionSecret,
		SameSite: http.SameSiteLaxMode,
	}

	s := &Server{
		router:       mux.NewRouter(),
		config:       cfg,
		sessionStore: store,
		oauthConfig:  gmail.GetOAuthConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL),
		store:        deps.Store,
		analysis:     deps.Analysis,
		syncer:       deps.Syncer,
		throttle:     deps.Throttle,
		messages:     deps.Messages,
		mailboxes:    deps.Mailboxes,
		frontendFS:   deps.FrontendFS,
		logger:       deps.Logger,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(s.requestID, s.accessLog)

	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	// OAuth routes (server-side redirects)
	s.router.HandleFunc("/auth/login", s.handleLogin).Methods("GET")
	s.router.HandleFunc("/auth/callback", s.handleCallback).Methods("GET")
	s.router.HandleFunc("/auth/logout", s.handleLogout).Methods("GET")

	// JSON API routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/auth/me", s.requireAuthAPI(s.handleAPIAuthMe)).Methods("GET")

	api.HandleFunc("/categories", s.requireAuthAPI(s.handleAPIGetCategories)).Methods("GET")
	api.HandleFunc("/categories", s.requireAuthAPI(s.handleAPICreateCategory)).Methods("POST")
	api.HandleFunc("/categories/{id:[0-9]+}", s.requireAuthAPI(s.handleAPIUpdateCategory)).Methods("PUT")
	api.HandleFunc("/categories/{id:[0-9]+}", s.requireAuthAPI(s.handleAPIDeleteCategory)).Methods("DELETE")
	api.HandleFunc("/categories/{id:[0-9]+}/emails", s.requireAuthAPI(s.handleAPIAddEmailsToCategory)).Methods("POST")

	api.HandleFunc("/rules", s.requireAuthAPI(s.handleAPIGetRules)).Methods("GET")
	api.HandleFunc("/rules", s.requireAuthAPI(s.handleAPICreateRule)).Methods("POST")
	api.HandleFunc("/rules/{id:[0-9]+}", s.requireAuthAPI(s.handleAPIUpdateRule)).Methods("PUT")
	api.HandleFunc("/rules/{id:[0-9]+}", s.requireAuthAPI(s.handleAPIDeleteRule)).Methods("DELETE")

	api.HandleFunc("/emails", s.requireAuthAPI(s.handleAPIGetEmails)).Methods("GET")
	api.HandleFunc("/emails/sync", s.requireAuthAPI(s.handleAPISyncEmails)).Methods("POST")
	api.HandleFunc("/emails/{id:[0-9]+}", s.requireAuthAPI(s.handleAPIGetEmail)).Methods("GET")
	api.HandleFunc("/emails/{id:[0-9]+}/analysis", s.requireAuthAPI(s.handleAPIGetAnalysis)).Methods("GET")

	api.HandleFunc("/analyze", s.requireAuthAPI(s.handleAPIAnalyze)).Methods("POST")

	// SPA fallback serves the frontend for all other routes
	if s.frontendFS != nil {
		s.router.PathPrefix("/").Handler(newSPAHandler(s.frontendFS))
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("Health check failed", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()

	session, _ := s.sessionStore.Get(r, "session")
	session.Values["oauth_state"] = state
	if err := session.Save(r, w); err != nil {
		s.logger.Error("Failed to save session", zap.Error(err))
		http.Error(w, "Failed to start login", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, gmail.GetAuthURL(s.oauthConfig, state), http.StatusTemporaryRedirect)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	session, _ := s.sessionStore.Get(r, "session")
	expected, _ := session.Values["oauth_state"].(string)
	if expected == "" || r.URL.Query().Get("state") != expected {
		http.Error(w, "Invalid OAuth state", http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "No code in request", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	token, err := gmail.ExchangeCodeForToken(ctx, s.oauthConfig, code)
	if err != nil {
		s.logger.Error("Failed to exchange code for token", zap.Error(err))
		http.Error(w, "Failed to authenticate", http.StatusInternalServerError)
		return
	}

	profile, err := gmail.GetProfile(ctx, s.oauthConfig, token)
	if err != nil {
		s.logger.Error("Failed to get user info", zap.Error(err))
		http.Error(w, "Failed to get user info", http.StatusInternalServerError)
		return
	}

	user, err := s.store.UpsertUser(ctx, profile.Email, profile.GoogleID, profile.Name, token)
	if err != nil {
		s.logger.Error("Failed to save user", zap.String("email", profile.Email), zap.Error(err))
		http.Error(w, "Failed to save user", http.StatusInternalServerError)
		return
	}
	s.logger.Info("User logged in", zap.Int64("user_id", user.ID), zap.String("email", user.Email))

	delete(session.Values, "oauth_state")
	session.Values["user_id"] = user.ID
	session.Values["user_email"] = user.Email
	if err := session.Save(r, w); err != nil {
		s.logger.Error("Failed to save session", zap.Error(err))
		http.Error(w, "Failed to save session", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, s.config.FrontendURL, http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	session, _ := s.sessionStore.Get(r, "session")
	session.Values["user_id"] = nil
	session.Values["user_email"] = nil
	session.Options.MaxAge = -1
	session.Save(r, w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%s", s.config.ServerHost, s.config.ServerPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Web server starting", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("Web server shutting down")
	return srv.Shutdown(shutdownCtx)
}
