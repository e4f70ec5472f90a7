package jobs

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/cloudshelf/cloudshelf/internal/config"
	"github.com/cloudshelf/cloudshelf/internal/models"
	"github.com/cloudshelf/cloudshelf/internal/refresh"
	"github.com/cloudshelf/cloudshelf/internal/repository"
)

// ──────── Payloads ────────

type RefreshPayload struct {
	TaskID     string `json:"task_id"`
	ResetIndex bool   `json:"reset_index,omitempty"`
}

type EventNotifier interface {
	Broadcast(event string, data interface{})
}

// ──────── Register all handlers ────────

func RegisterHandlers(q *Queue, cfg *config.Config, taskRepo *repository.ScanTaskRepository,
	settingsRepo *repository.SettingsRepository, cache *refresh.Cache, notifier EventNotifier) {

	q.RegisterHandler(TaskRefreshLibrary, NewRefreshHandler(cfg, taskRepo, settingsRepo, cache, notifier))
}

// StartRefresh is the synchronous half of a library refresh: validate the
// configuration, purge stale tasks, create the tracking task and enqueue
// the background scan. Once the task id is returned the outcome is only
// observable through the task. Scans are never retried by the queue; a
// failed scan means starting a new one.
func StartRefresh(cfg *config.Config, taskRepo *repository.ScanTaskRepository, q *Queue, resetIndex bool, startedBy *uuid.UUID) (uuid.UUID, error) {
	if err := refresh.ValidateConfig(cfg); err != nil {
		return uuid.Nil, err
	}

	if removed, err := taskRepo.CleanupOld(7 * 24 * time.Hour); err != nil {
		log.Printf("Refresh: task cleanup failed: %v", err)
	} else if removed > 0 {
		log.Printf("Refresh: cleaned up %d stale scan tasks", removed)
	}

	task := &models.ScanTask{
		ID:        uuid.New(),
		Status:    models.TaskRunning,
		StartedBy: startedBy,
	}
	if err := taskRepo.Create(task); err != nil {
		return uuid.Nil, fmt.Errorf("create scan task: %w", err)
	}

	uniqueID := "refresh:" + task.ID.String()
	_, err := q.EnqueueUnique(TaskRefreshLibrary, RefreshPayload{
		TaskID:     task.ID.String(),
		ResetIndex: resetIndex,
	}, uniqueID, asynq.MaxRetry(0), asynq.Timeout(6*time.Hour), asynq.Retention(1*time.Hour))
	if err != nil {
		if ferr := taskRepo.Fail(task.ID, "failed to enqueue scan job"); ferr != nil {
			log.Printf("Refresh: failed to mark task failed: %v", ferr)
		}
		return uuid.Nil, fmt.Errorf("enqueue scan job: %w", err)
	}

	log.Printf("Refresh: scan task %s enqueued (reset=%v)", task.ID, resetIndex)
	return task.ID, nil
}
