package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cast"

	"github.com/cloudshelf/cloudshelf/internal/models"
)

type SystemSettingsRequest struct {
	DriveEndpoint   *string `json:"drive_endpoint"`
	DriveUsername   *string `json:"drive_username"`
	DrivePassword   *string `json:"drive_password"`
	DriveRootPath   *string `json:"drive_root_path"`
	DriveEnabled    *bool   `json:"drive_enabled"`
	TMDBAPIKey      *string `json:"tmdb_api_key"`
	TMDBProxyURL    *string `json:"tmdb_proxy_url"`
	RefreshSchedule *string `json:"refresh_schedule"`
}

func (s *Server) handleGetSystemSettings(w http.ResponseWriter, r *http.Request) {
	values, err := s.settingsRepo.GetAll()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	s.respondJSON(w, http.StatusOK, Response{Success: true, Data: settingsView(values)})
}

// settingsView builds the API view of the system settings. The drive
// password and TMDB key are write-only and never echoed back.
func settingsView(values map[string]string) models.SystemSettings {
	return models.SystemSettings{
		DriveEndpoint:      values["drive_endpoint"],
		DriveUsername:      values["drive_username"],
		DriveRootPath:      values["drive_root_path"],
		DriveEnabled:       cast.ToBool(values["drive_enabled"]),
		TMDBProxyURL:       values["tmdb_proxy_url"],
		RefreshSchedule:    values["refresh_schedule"],
		DriveLastRefresh:   cast.ToInt64(values["drive_last_refresh"]),
		DriveResourceCount: cast.ToInt(values["drive_resource_count"]),
	}
}

// PUT /api/v1/settings/system — partial update: only fields present in
// the body are written.
func (s *Server) handleUpdateSystemSettings(w http.ResponseWriter, r *http.Request) {
	var req SystemSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updates := map[string]string{}
	if req.DriveEndpoint != nil {
		updates["drive_endpoint"] = strings.TrimRight(strings.TrimSpace(*req.DriveEndpoint), "/")
	}
	if req.DriveUsername != nil {
		updates["drive_username"] = *req.DriveUsername
	}
	if req.DrivePassword != nil {
		updates["drive_password"] = *req.DrivePassword
	}
	if req.DriveRootPath != nil {
		updates["drive_root_path"] = *req.DriveRootPath
	}
	if req.DriveEnabled != nil {
		updates["drive_enabled"] = strconv.FormatBool(*req.DriveEnabled)
	}
	if req.TMDBAPIKey != nil {
		updates["tmdb_api_key"] = *req.TMDBAPIKey
	}
	if req.TMDBProxyURL != nil {
		updates["tmdb_proxy_url"] = *req.TMDBProxyURL
	}
	if req.RefreshSchedule != nil {
		// Empty disables the schedule; anything else must parse.
		if *req.RefreshSchedule != "" {
			if _, err := cron.ParseStandard(*req.RefreshSchedule); err != nil {
				s.respondError(w, http.StatusBadRequest, "invalid refresh schedule")
				return
			}
		}
		updates["refresh_schedule"] = *req.RefreshSchedule
	}

	if len(updates) == 0 {
		s.respondError(w, http.StatusBadRequest, "no settings provided")
		return
	}

	if err := s.settingsRepo.SetMany(updates); err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}

	// Apply to the live config so the next scan picks the change up
	// without a restart.
	for key, value := range updates {
		s.config.Apply(key, value)
	}

	if schedule, ok := updates["refresh_schedule"]; ok && s.scheduler != nil {
		if err := s.scheduler.Reschedule(schedule); err != nil {
			log.Printf("Settings: failed to apply refresh schedule: %v", err)
		}
	}

	values, err := s.settingsRepo.GetAll()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	s.respondJSON(w, http.StatusOK, Response{Success: true, Data: settingsView(values)})
}
