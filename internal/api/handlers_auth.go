package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/cloudshelf/cloudshelf/internal/models"
	"github.com/cloudshelf/cloudshelf/internal/version"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

type SetupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    map[string]string{"status": "ok"},
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ver := version.Load()
	s.respondJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]interface{}{
			"version":       ver.Version,
			"ws_clients":    s.wsHub.ClientCount(),
			"drive_enabled": s.config.DriveEnabled,
		},
	})
}

func (s *Server) handleSetupCheck(w http.ResponseWriter, r *http.Request) {
	count, err := s.userRepo.Count()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to check setup status")
		return
	}
	s.respondJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    map[string]bool{"setup_required": count == 0},
	})
}

// handleSetup creates the initial admin user on first run.
func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	// Only allow setup if no users exist
	count, err := s.userRepo.Count()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to check setup status")
		return
	}
	if count > 0 {
		s.respondError(w, http.StatusForbidden, "setup already completed")
		return
	}

	var req SetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)

	if req.Username == "" || req.Email == "" || req.Password == "" {
		s.respondError(w, http.StatusBadRequest, "username, email, and password are required")
		return
	}

	hashedPassword, err := s.auth.HashPassword(req.Password)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user := &models.User{
		ID:           uuid.New(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hashedPassword,
		Role:         models.RoleAdmin,
		IsActive:     true,
	}

	if err := s.userRepo.Create(user); err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	token, err := s.auth.GenerateToken(user)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	s.recordSession(user.ID, token, r)

	user.PasswordHash = ""
	s.respondJSON(w, http.StatusCreated, Response{
		Success: true,
		Data:    LoginResponse{Token: token, User: user},
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.userRepo.GetByUsername(req.Username)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := s.auth.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if !user.IsActive {
		s.respondError(w, http.StatusForbidden, "account is disabled")
		return
	}

	token, err := s.auth.GenerateToken(user)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	s.recordSession(user.ID, token, r)
	_ = s.userRepo.UpdateLastLogin(user.ID)

	user.PasswordHash = ""
	s.respondJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    LoginResponse{Token: token, User: user},
	})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	user, err := s.userRepo.GetByID(s.getUserID(r))
	if err != nil {
		s.respondError(w, http.StatusNotFound, "user not found")
		return
	}

	user.PasswordHash = ""
	s.respondJSON(w, http.StatusOK, Response{Success: true, Data: user})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.userRepo.List()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	for _, user := range users {
		user.PasswordHash = ""
	}
	s.respondJSON(w, http.StatusOK, Response{Success: true, Data: users})
}
