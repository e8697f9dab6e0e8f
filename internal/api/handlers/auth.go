package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/welthhq/welth/internal/api/middleware"
	"github.com/welthhq/welth/internal/auth"
	"github.com/welthhq/welth/internal/domain"
	"github.com/welthhq/welth/internal/store"
)

// AuthHandler issues tokens for users identified by their external identity
// provider ID, mirroring the hosted-auth model where the provider's user ID
// is the stable key.
type AuthHandler struct {
	store  store.Store
	tokens *auth.TokenService
	log    zerolog.Logger
}

// NewAuthHandler creates the auth handler.
func NewAuthHandler(st store.Store, tokens *auth.TokenService, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{store: st, tokens: tokens, log: log}
}

type registerRequest struct {
	ExternalID string `json:"external_id" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Name       string `json:"name" validate:"required"`
}

// Register handles POST /api/auth/register.
// Registering an already-known external ID is an idempotent login.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validateStruct(req); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	ctx := r.Context()
	user, err := h.store.GetUserByExternalID(ctx, req.ExternalID)
	if err != nil {
		now := time.Now()
		user = &domain.User{
			ID:         uuid.New(),
			ExternalID: req.ExternalID,
			Email:      req.Email,
			Name:       req.Name,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := h.store.CreateUser(ctx, user); err != nil {
			h.log.Error().Err(err).Msg("Failed to create user")
			middleware.WriteDomainError(w, err)
			return
		}
		h.log.Info().Str("user_id", user.ID.String()).Msg("User registered")
	}

	h.respondWithToken(w, user)
}

type loginRequest struct {
	ExternalID string `json:"external_id" validate:"required"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validateStruct(req); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	user, err := h.store.GetUserByExternalID(r.Context(), req.ExternalID)
	if err != nil {
		// Do not reveal whether the identity exists.
		middleware.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	h.respondWithToken(w, user)
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, user *domain.User) {
	token, err := h.tokens.GenerateToken(user.ID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to sign token")
		middleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user": map[string]string{
			"id":    user.ID.String(),
			"email": user.Email,
			"name":  user.Name,
		},
	})
}
