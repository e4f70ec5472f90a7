package models

import (
	"time"

	"github.com/google/uuid"
)

// ──────────────────── Enums ────────────────────

type UserRole string

const (
	RoleAdmin UserRole = "admin"
	RoleUser  UserRole = "user"
)

type MediaType string

const (
	MediaTypeMovie MediaType = "movie"
	MediaTypeTV    MediaType = "tv"
)

type TaskStatus string

const (
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// ──────────────────── User ────────────────────

type User struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	Username     string     `json:"username" db:"username"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"`
	Role         UserRole   `json:"role" db:"role"`
	IsActive     bool       `json:"is_active" db:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// ──────────────────── Folder Index ────────────────────

// MetaInfo is the full persisted metadata index for one drive: every scanned
// top-level folder keyed by its folder key, plus the completion time of the
// most recent scan in epoch milliseconds.
type MetaInfo struct {
	Folders     map[string]*FolderInfo `json:"folders"`
	LastRefresh int64                  `json:"last_refresh"`
}

// NewMetaInfo returns an empty index ready for inserts.
func NewMetaInfo() *MetaInfo {
	return &MetaInfo{Folders: make(map[string]*FolderInfo)}
}

// FolderInfo is one resolved (or placeholder) entry of the index. FolderName
// holds the raw remote name and is the natural join key against live
// listings; a zero TMDBID means no confident catalog match was found.
type FolderInfo struct {
	FolderName   string    `json:"folderName"`
	TMDBID       int       `json:"tmdb_id"`
	Title        string    `json:"title"`
	Overview     string    `json:"overview"`
	PosterPath   string    `json:"poster_path"`
	ReleaseDate  string    `json:"release_date"`
	VoteAverage  float64   `json:"vote_average"`
	MediaType    MediaType `json:"media_type"`
	SeasonNumber int       `json:"season_number,omitempty"`
	SeasonName   string    `json:"season_name,omitempty"`
	LastUpdated  int64     `json:"last_updated"`
	Failed       bool      `json:"failed"`
}

// ──────────────────── Scan Tasks ────────────────────

type ScanTask struct {
	ID           uuid.UUID   `json:"id" db:"id"`
	Status       TaskStatus  `json:"status" db:"status"`
	Current      int         `json:"current" db:"current"`
	Total        int         `json:"total" db:"total"`
	CurrentItem  *string     `json:"current_item,omitempty" db:"current_item"`
	Result       *ScanResult `json:"result,omitempty" db:"result"`
	ErrorMessage *string     `json:"error_message,omitempty" db:"error_message"`
	StartedBy    *uuid.UUID  `json:"started_by,omitempty" db:"started_by"`
	StartedAt    time.Time   `json:"started_at" db:"started_at"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"`
}

// ScanResult is the counts summary written to a completed scan task.
// Total = Existing + New + Errors, and equals the number of remote
// directories seen across all listing pages.
type ScanResult struct {
	Total    int `json:"total"`
	New      int `json:"new"`
	Existing int `json:"existing"`
	Errors   int `json:"errors"`
}

// ──────────────────── System Settings ────────────────────

// SystemSettings is the API view of the settings that drive the refresh
// pipeline. The drive password and TMDB key are write-only through the API.
type SystemSettings struct {
	DriveEndpoint      string `json:"drive_endpoint"`
	DriveUsername      string `json:"drive_username"`
	DrivePassword      string `json:"drive_password,omitempty"`
	DriveRootPath      string `json:"drive_root_path"`
	DriveEnabled       bool   `json:"drive_enabled"`
	TMDBAPIKey         string `json:"tmdb_api_key,omitempty"`
	TMDBProxyURL       string `json:"tmdb_proxy_url"`
	RefreshSchedule    string `json:"refresh_schedule"`
	DriveLastRefresh   int64  `json:"drive_last_refresh"`
	DriveResourceCount int    `json:"drive_resource_count"`
}
