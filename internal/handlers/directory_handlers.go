package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"chat-server/internal/auth"
	"chat-server/internal/database"
	"chat-server/internal/models"
	"chat-server/pkg/logger"
)

// DirectoryHandlers serves the REST lookups clients need before opening a
// socket: who exists and which channels the caller belongs to.
type DirectoryHandlers struct {
	store       database.Store
	authService *auth.Service
}

func NewDirectoryHandlers(store database.Store, authService *auth.Service) *DirectoryHandlers {
	return &DirectoryHandlers{
		store:       store,
		authService: authService,
	}
}

func (h *DirectoryHandlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	if _, err := h.getUserFromRequest(r); err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		logger.Error("Failed to list users", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	respondJSON(w, http.StatusOK, users)
}

func (h *DirectoryHandlers) ListChannels(w http.ResponseWriter, r *http.Request) {
	user, err := h.getUserFromRequest(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	channels, err := h.store.ListChannelsForUser(r.Context(), user.ID)
	if err != nil {
		logger.Error("Failed to list channels",
			logger.ErrorField(err),
			logger.String("user_id", user.ID),
		)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	respondJSON(w, http.StatusOK, channels)
}

func (h *DirectoryHandlers) getUserFromRequest(r *http.Request) (*models.User, error) {
	tokenStr := bearerToken(r)
	if tokenStr == "" {
		tokenStr = r.URL.Query().Get("token")
	}
	if tokenStr == "" {
		return nil, fmt.Errorf("missing token")
	}

	return h.authService.GetUserFromToken(r.Context(), tokenStr)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
