package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cloudshelf/cloudshelf/internal/models"
)

// ScanTaskRepository tracks the externally observable state of refresh
// scans: one row per invocation, mutated as the scan progresses and
// terminal once the scan completes or fails.
type ScanTaskRepository struct {
	db *sql.DB
}

func NewScanTaskRepository(db *sql.DB) *ScanTaskRepository {
	return &ScanTaskRepository{db: db}
}

func (r *ScanTaskRepository) Create(task *models.ScanTask) error {
	query := `INSERT INTO scan_tasks (id, status, current, total, started_by)
		VALUES ($1, $2, $3, $4, $5) RETURNING started_at, updated_at`
	return r.db.QueryRow(query, task.ID, task.Status, task.Current, task.Total, task.StartedBy).
		Scan(&task.StartedAt, &task.UpdatedAt)
}

func (r *ScanTaskRepository) UpdateProgress(id uuid.UUID, current, total int, currentItem string) error {
	query := `UPDATE scan_tasks SET current = $1, total = $2, current_item = $3,
		updated_at = CURRENT_TIMESTAMP WHERE id = $4`
	_, err := r.db.Exec(query, current, total, currentItem, id)
	return err
}

func (r *ScanTaskRepository) Complete(id uuid.UUID, result *models.ScanResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	query := `UPDATE scan_tasks SET status = $1, result = $2,
		completed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE id = $3`
	_, err = r.db.Exec(query, models.TaskCompleted, data, id)
	return err
}

func (r *ScanTaskRepository) Fail(id uuid.UUID, message string) error {
	query := `UPDATE scan_tasks SET status = $1, error_message = $2,
		completed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE id = $3`
	_, err := r.db.Exec(query, models.TaskFailed, message, id)
	return err
}

// CleanupOld purges stale tasks: terminal tasks older than the cutoff, and
// running tasks whose last update predates the cutoff (left behind by a
// crashed worker). Returns the number of rows removed.
func (r *ScanTaskRepository) CleanupOld(olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := r.db.Exec(`DELETE FROM scan_tasks
		WHERE (status <> $1 AND started_at < $2) OR (status = $1 AND updated_at < $2)`,
		models.TaskRunning, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *ScanTaskRepository) GetByID(id uuid.UUID) (*models.ScanTask, error) {
	task := &models.ScanTask{}
	var result []byte
	query := `SELECT id, status, current, total, current_item, result, error_message,
		started_by, started_at, completed_at, updated_at
		FROM scan_tasks WHERE id = $1`
	err := r.db.QueryRow(query, id).Scan(&task.ID, &task.Status, &task.Current, &task.Total,
		&task.CurrentItem, &result, &task.ErrorMessage, &task.StartedBy,
		&task.StartedAt, &task.CompletedAt, &task.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("scan task not found")
	}
	if err != nil {
		return nil, err
	}
	if len(result) > 0 {
		task.Result = &models.ScanResult{}
		if err := json.Unmarshal(result, task.Result); err != nil {
			task.Result = nil
		}
	}
	return task, nil
}

func (r *ScanTaskRepository) ListRecent(limit int) ([]*models.ScanTask, error) {
	query := `SELECT id, status, current, total, current_item, result, error_message,
		started_by, started_at, completed_at, updated_at
		FROM scan_tasks ORDER BY started_at DESC LIMIT $1`
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*models.ScanTask
	for rows.Next() {
		task := &models.ScanTask{}
		var result []byte
		if err := rows.Scan(&task.ID, &task.Status, &task.Current, &task.Total,
			&task.CurrentItem, &result, &task.ErrorMessage, &task.StartedBy,
			&task.StartedAt, &task.CompletedAt, &task.UpdatedAt); err != nil {
			return nil, err
		}
		if len(result) > 0 {
			task.Result = &models.ScanResult{}
			if err := json.Unmarshal(result, task.Result); err != nil {
				task.Result = nil
			}
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}
