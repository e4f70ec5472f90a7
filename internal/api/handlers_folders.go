package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/cloudshelf/cloudshelf/internal/models"
	"github.com/cloudshelf/cloudshelf/internal/refresh"
)

// loadMetaInfo returns the folder index for the configured root,
// cache-first. A missing or unreadable stored index yields an empty one;
// browse endpoints never error on index problems.
func (s *Server) loadMetaInfo() *models.MetaInfo {
	root := s.config.DriveRootPath
	if meta, ok := s.cache.Get(root); ok {
		return meta
	}

	meta := models.NewMetaInfo()
	raw, err := s.settingsRepo.Get(refresh.MetaKey)
	if err != nil {
		log.Printf("Folders: failed to read stored index: %v", err)
	} else if raw != "" {
		if err := json.Unmarshal([]byte(raw), meta); err != nil {
			log.Printf("Folders: stored index is corrupt: %v", err)
			meta = models.NewMetaInfo()
		}
	}
	if meta.Folders == nil {
		meta.Folders = make(map[string]*models.FolderInfo)
	}

	s.cache.Set(root, meta)
	return meta
}

// GET /api/v1/folders — the full folder index the browse UI renders.
func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	meta := s.loadMetaInfo()
	s.respondJSON(w, http.StatusOK, Response{Success: true, Data: meta})
}

// GET /api/v1/folders/{key}
func (s *Server) handleGetFolder(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	meta := s.loadMetaInfo()

	info, ok := meta.Folders[key]
	if !ok {
		s.respondError(w, http.StatusNotFound, "folder not found")
		return
	}
	s.respondJSON(w, http.StatusOK, Response{Success: true, Data: info})
}
