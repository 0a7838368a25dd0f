package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/inboxowl/inboxowl/internal/database"
	"github.com/inboxowl/inboxowl/internal/rules"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("Failed to encode JSON response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondStoreError maps persistence and validation errors onto HTTP statuses.
// Anything unexpected is logged and reported with the generic message.
func (s *Server) respondStoreError(w http.ResponseWriter, r *http.Request, err error, message string) {
	var ve *rules.ValidationError
	switch {
	case errors.As(err, &ve):
		respondError(w, http.StatusBadRequest, ve.Reason)
	case errors.Is(err, database.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, database.ErrConflict):
		respondError(w, http.StatusConflict, "already exists")
	default:
		s.logger.Error(message,
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.Error(err),
		)
		respondError(w, http.StatusInternalServerError, message)
	}
}

func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) sessionUserID(r *http.Request) int64 {
	session, _ := s.sessionStore.Get(r, "session")
	userID, _ := session.Values["user_id"].(int64)
	return userID
}

// requireAuthAPI is middleware that returns 401 JSON instead of redirecting.
func (s *Server) requireAuthAPI(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.sessionUserID(r) == 0 {
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		next(w, r)
	}
}
