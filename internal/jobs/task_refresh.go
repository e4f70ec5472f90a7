package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/cloudshelf/cloudshelf/internal/config"
	"github.com/cloudshelf/cloudshelf/internal/drive"
	"github.com/cloudshelf/cloudshelf/internal/metadata"
	"github.com/cloudshelf/cloudshelf/internal/refresh"
	"github.com/cloudshelf/cloudshelf/internal/repository"
)

type RefreshHandler struct {
	cfg          *config.Config
	taskRepo     *repository.ScanTaskRepository
	settingsRepo *repository.SettingsRepository
	cache        *refresh.Cache
	notifier     EventNotifier
}

func NewRefreshHandler(cfg *config.Config, taskRepo *repository.ScanTaskRepository, settingsRepo *repository.SettingsRepository, cache *refresh.Cache, notifier EventNotifier) *RefreshHandler {
	return &RefreshHandler{cfg: cfg, taskRepo: taskRepo, settingsRepo: settingsRepo, cache: cache, notifier: notifier}
}

func (h *RefreshHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p RefreshPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	taskID, err := uuid.Parse(p.TaskID)
	if err != nil {
		return fmt.Errorf("invalid task id %q: %w", p.TaskID, err)
	}

	taskDesc := "Refreshing library: " + h.cfg.DriveRootPath

	log.Printf("Job: refreshing library root %q (reset=%v)", h.cfg.DriveRootPath, p.ResetIndex)
	if h.notifier != nil {
		h.notifier.Broadcast("refresh:start", map[string]interface{}{
			"task_id": p.TaskID, "root": h.cfg.DriveRootPath, "reset": p.ResetIndex,
		})
		h.notifier.Broadcast("task:update", map[string]interface{}{
			"task_id": p.TaskID, "task_type": TaskRefreshLibrary,
			"status": "running", "progress": 0, "description": taskDesc,
		})
	}

	// Clients are built per scan so settings changes apply to the next
	// run without a restart.
	driveClient := drive.NewClient(h.cfg.DriveEndpoint, h.cfg.DriveUsername, h.cfg.DrivePassword)
	tmdbClient, err := metadata.NewClient(h.cfg.TMDBAPIKey, h.cfg.TMDBProxyURL)
	if err != nil {
		if ferr := h.taskRepo.Fail(taskID, err.Error()); ferr != nil {
			log.Printf("Job: failed to mark refresh task failed: %v", ferr)
		}
		h.broadcastTerminal(p.TaskID, "failed", taskDesc)
		return fmt.Errorf("metadata client: %w", err)
	}

	refresher := refresh.NewRefresher(h.cfg.DriveRootPath, driveClient, tmdbClient, h.settingsRepo, h.taskRepo, h.cache)

	// Build a throttled progress callback to broadcast scan progress via WebSocket
	if h.notifier != nil {
		var lastBroadcast time.Time
		refresher.OnProgress = func(current, total int, folder string) {
			now := time.Now()
			// Throttle: broadcast at most every 500ms, plus always on last item
			if now.Sub(lastBroadcast) >= 500*time.Millisecond || current == total {
				lastBroadcast = now
				pct := 0
				if total > 0 {
					pct = int(float64(current) / float64(total) * 100)
				}
				h.notifier.Broadcast("refresh:progress", map[string]interface{}{
					"task_id": p.TaskID,
					"current": current,
					"total":   total,
					"folder":  folder,
				})
				desc := fmt.Sprintf("Refreshing library · %s (%d/%d)", folder, current, total)
				h.notifier.Broadcast("task:update", map[string]interface{}{
					"task_id": p.TaskID, "task_type": TaskRefreshLibrary,
					"status": "running", "progress": pct, "description": desc,
				})
			}
		}
	}

	result, err := refresher.Run(ctx, taskID, p.ResetIndex)
	if err != nil {
		h.broadcastTerminal(p.TaskID, "failed", taskDesc)
		return fmt.Errorf("refresh: %w", err)
	}

	log.Printf("Job: refresh complete - %d total, %d new, %d existing, %d errors",
		result.Total, result.New, result.Existing, result.Errors)
	if h.notifier != nil {
		h.notifier.Broadcast("refresh:complete", map[string]interface{}{
			"task_id": p.TaskID,
			"result":  result,
		})
	}
	h.broadcastTerminal(p.TaskID, "complete", taskDesc)
	return nil
}

func (h *RefreshHandler) broadcastTerminal(taskID, status, desc string) {
	if h.notifier == nil {
		return
	}
	progress := 0
	if status == "complete" {
		progress = 100
	}
	h.notifier.Broadcast("task:update", map[string]interface{}{
		"task_id": taskID, "task_type": TaskRefreshLibrary,
		"status": status, "progress": progress, "description": desc,
	})
}
