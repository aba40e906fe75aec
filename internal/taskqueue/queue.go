package taskqueue

import (
	"context"
	"encoding/json"

	"waba-gateway/internal/apperrors"
	"waba-gateway/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Queue enqueues durable, retryable tasks. Execution happens in Worker
// processes, which may run alongside or separately from the API server.
type Queue struct {
	db         *gorm.DB
	maxRetries int
}

func NewQueue(db *gorm.DB, maxRetries int) *Queue {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Queue{db: db, maxRetries: maxRetries}
}

// Enqueue creates a pending task and returns it. params must be
// JSON-serializable.
func (q *Queue) Enqueue(ctx context.Context, taskType string, params any) (*models.Task, error) {
	if taskType == "" {
		return nil, apperrors.NewValidation("task_type is required")
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, apperrors.NewValidation("task parameters are not serializable: %s", err)
	}

	task := &models.Task{
		ID:         uuid.NewString(),
		TaskType:   taskType,
		Status:     models.TaskPending,
		Parameters: string(raw),
		MaxRetries: q.maxRetries,
	}

	if err := q.db.WithContext(ctx).Create(task).Error; err != nil {
		return nil, errors.Wrap(err, "taskqueue: creating task")
	}

	return task, nil
}

// Get returns one task by id, including its terminal state once workers
// are done with it.
func (q *Queue) Get(ctx context.Context, id string) (*models.Task, error) {
	var task models.Task
	err := q.db.WithContext(ctx).Where("id = ?", id).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("task", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "taskqueue: loading task")
	}
	return &task, nil
}

// PendingTasks reports the queue depth for the metrics gauge.
func (q *Queue) PendingTasks() (int64, error) {
	var count int64
	err := q.db.Model(&models.Task{}).
		Where("status IN ?", []models.TaskStatus{models.TaskPending, models.TaskRetrying}).
		Count(&count).Error
	return count, err
}
