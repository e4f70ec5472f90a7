package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/cloudshelf/cloudshelf/internal/auth"
	"github.com/cloudshelf/cloudshelf/internal/config"
	"github.com/cloudshelf/cloudshelf/internal/db"
	"github.com/cloudshelf/cloudshelf/internal/jobs"
	"github.com/cloudshelf/cloudshelf/internal/models"
	"github.com/cloudshelf/cloudshelf/internal/refresh"
	"github.com/cloudshelf/cloudshelf/internal/repository"
)

// ScheduleReloader is notified when the refresh schedule setting changes.
type ScheduleReloader interface {
	Reschedule(spec string) error
}

type Server struct {
	config       *config.Config
	db           *db.DB
	auth         *auth.Auth
	userRepo     *repository.UserRepository
	settingsRepo *repository.SettingsRepository
	taskRepo     *repository.ScanTaskRepository
	cache        *refresh.Cache
	jobQueue     *jobs.Queue
	wsHub        *WSHub
	scheduler    ScheduleReloader
	router       *http.ServeMux

	authLimiter *rate.Limiter
	readLimiter *rate.Limiter
}

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func NewServer(cfg *config.Config, database *db.DB, jobQueue *jobs.Queue, cache *refresh.Cache) (*Server, error) {
	authService, err := auth.NewAuth(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:       cfg,
		db:           database,
		auth:         authService,
		userRepo:     repository.NewUserRepository(database.DB),
		settingsRepo: repository.NewSettingsRepository(database.DB),
		taskRepo:     repository.NewScanTaskRepository(database.DB),
		cache:        cache,
		jobQueue:     jobQueue,
		wsHub:        NewWSHub(),
		router:       http.NewServeMux(),
		// Login attempts: 5/s shared across clients is plenty for a
		// household server while blunting brute force.
		authLimiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
		readLimiter: rate.NewLimiter(rate.Every(10*time.Millisecond), 100),
	}

	s.setupRoutes()
	return s, nil
}

func (s *Server) WSHub() *WSHub {
	return s.wsHub
}

// SetScheduler wires the cron scheduler in after both sides exist.
func (s *Server) SetScheduler(sched ScheduleReloader) {
	s.scheduler = sched
}

func (s *Server) TaskRepo() *repository.ScanTaskRepository {
	return s.taskRepo
}

func (s *Server) SettingsRepo() *repository.SettingsRepository {
	return s.settingsRepo
}

func (s *Server) Config() *config.Config {
	return s.config
}

func (s *Server) setupRoutes() {
	// Static files
	fs := http.FileServer(http.Dir("web"))
	s.router.Handle("/", fs)

	// Public
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /api/v1/status", s.handleStatus)
	s.router.HandleFunc("GET /api/v1/setup/check", s.handleSetupCheck)
	s.router.HandleFunc("POST /api/v1/setup", s.handleSetup)
	s.router.HandleFunc("POST /api/v1/auth/login", s.rlAuth(s.handleLogin))

	// Session management
	s.router.HandleFunc("POST /api/v1/auth/logout", s.authMiddleware(s.handleLogout, models.RoleUser))
	s.router.HandleFunc("GET /api/v1/auth/sessions", s.authMiddleware(s.handleListSessions, models.RoleUser))
	s.router.HandleFunc("DELETE /api/v1/auth/sessions/{id}", s.authMiddleware(s.handleRevokeSession, models.RoleUser))

	// WebSocket
	s.router.HandleFunc("GET /api/v1/ws", s.handleWebSocket)

	// Profile (authenticated user)
	s.router.HandleFunc("GET /api/v1/profile", s.authMiddleware(s.handleGetProfile, models.RoleUser))

	// Users (admin)
	s.router.HandleFunc("GET /api/v1/users", s.authMiddleware(s.handleListUsers, models.RoleAdmin))

	// Library refresh
	s.router.HandleFunc("POST /api/v1/refresh", s.authMiddleware(s.handleStartRefresh, models.RoleAdmin))
	s.router.HandleFunc("GET /api/v1/refresh/tasks", s.rlRead(s.authMiddleware(s.handleListRefreshTasks, models.RoleUser)))
	s.router.HandleFunc("GET /api/v1/refresh/tasks/{id}", s.rlRead(s.authMiddleware(s.handleGetRefreshTask, models.RoleUser)))

	// Folder index (what the browse UI renders)
	s.router.HandleFunc("GET /api/v1/folders", s.rlRead(s.authMiddleware(s.handleListFolders, models.RoleUser)))
	s.router.HandleFunc("GET /api/v1/folders/{key}", s.rlRead(s.authMiddleware(s.handleGetFolder, models.RoleUser)))

	// Settings (admin)
	s.router.HandleFunc("GET /api/v1/settings/system", s.authMiddleware(s.handleGetSystemSettings, models.RoleAdmin))
	s.router.HandleFunc("PUT /api/v1/settings/system", s.authMiddleware(s.handleUpdateSystemSettings, models.RoleAdmin))
}

// ──────────────────── Middleware ────────────────────

// rlAuth rate-limits credential endpoints to slow down brute force.
func (s *Server) rlAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authLimiter.Allow() {
			s.respondError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next(w, r)
	}
}

// rlRead rate-limits cheap read endpoints that UIs tend to poll.
func (s *Server) rlRead(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.readLimiter.Allow() {
			s.respondError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next(w, r)
	}
}

func (s *Server) authMiddleware(next http.HandlerFunc, requiredRole models.UserRole) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""
		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		} else if t := r.URL.Query().Get("token"); t != "" {
			// Allow token via query param for clients that can't set headers
			tokenString = t
		} else {
			s.respondError(w, http.StatusUnauthorized, "missing authorization")
			return
		}

		claims, err := s.auth.ValidateToken(tokenString)
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		// Check if session has been revoked (logout/admin revoke)
		if !s.isSessionValid(tokenString) {
			s.respondError(w, http.StatusUnauthorized, "session revoked")
			return
		}

		if !s.auth.CheckPermission(claims.Role, requiredRole) {
			s.respondError(w, http.StatusForbidden, "insufficient permissions")
			return
		}

		r.Header.Set("X-User-ID", claims.UserID.String())
		r.Header.Set("X-User-Role", string(claims.Role))

		next(w, r)
	}
}

// ──────────────────── Helpers ────────────────────

func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, Response{Success: false, Error: message})
}

func (s *Server) getUserID(r *http.Request) uuid.UUID {
	id, _ := uuid.Parse(r.Header.Get("X-User-ID"))
	return id
}

// Handler returns the router wrapped with the global middleware:
// security headers → CORS → mux. The caller owns the http.Server.
func (s *Server) Handler() http.Handler {
	return s.securityHeadersMiddleware(s.corsMiddleware(s.router))
}

// securityHeadersMiddleware adds standard security headers to all responses.
func (s *Server) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		w.Header().Set("X-XSS-Protection", "0")
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware handles CORS preflight and response headers globally.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, PATCH, OPTIONS")
			w.Header().Set("Access-Control-Max-Age", "86400")
			w.Header().Set("Vary", "Origin")
		}

		// Handle preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
