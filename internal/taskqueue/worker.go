package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"waba-gateway/internal/log"
	"waba-gateway/internal/metrics"
	"waba-gateway/internal/models"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const maxBackoff = 10 * time.Minute

// Handler executes one task. The returned payload is stored as the task's
// result; a returned error triggers the retry path.
type Handler func(ctx context.Context, params json.RawMessage) (json.RawMessage, error)

// Worker polls for eligible tasks and executes them. Multiple worker
// instances may run concurrently: the claim is a single conditional update,
// so a task is never executed twice for the same attempt.
type Worker struct {
	db           *gorm.DB
	handlers     map[string]Handler
	pollInterval time.Duration
	backoffBase  time.Duration
	execTimeout  time.Duration
}

func NewWorker(db *gorm.DB, pollInterval, backoffBase time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Worker{
		db:           db,
		handlers:     make(map[string]Handler),
		pollInterval: pollInterval,
		backoffBase:  backoffBase,
		execTimeout:  2 * time.Minute,
	}
}

func (w *Worker) Register(taskType string, h Handler) {
	w.handlers[taskType] = h
}

// Run processes tasks until ctx is cancelled. A task that already entered
// running is finished cooperatively; there is no hard preemption.
func (w *Worker) Run(ctx context.Context) {
	log.Logger.WithField("poll_interval", w.pollInterval.String()).Info("task worker started")

	for {
		claimed, err := w.RunOnce(ctx)
		if err != nil {
			log.Logger.WithError(err).Error("task worker iteration failed")
		}
		if claimed {
			// Drain eligible tasks before sleeping again.
			continue
		}

		select {
		case <-ctx.Done():
			log.Logger.Info("task worker stopping")
			return
		case <-time.After(w.pollInterval):
		}
	}
}

// RunOnce claims and executes at most one eligible task. It reports whether
// a task was claimed.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	task, err := w.claimNext(ctx)
	if err != nil || task == nil {
		return false, err
	}

	w.execute(ctx, task)
	return true, nil
}

// claimNext picks the oldest eligible task and claims it. A nil task means
// nothing is eligible or another worker won the race; that is not an error.
func (w *Worker) claimNext(ctx context.Context) (*models.Task, error) {
	var candidate models.Task
	err := w.db.WithContext(ctx).
		Where("status = ? OR (status = ? AND next_retry_at <= ?)", models.TaskPending, models.TaskRetrying, time.Now().UTC()).
		Order("created_at").
		First(&candidate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "taskqueue: selecting eligible task")
	}

	return w.claim(ctx, candidate.ID)
}

// claim flips one task to running with a single conditional update. The
// update repeats the full eligibility predicate: another worker may have
// executed the task after our select and rescheduled it into a backoff
// window, and that window must hold. The row is re-read after a successful
// claim so execution sees the current retry count, not the pre-claim
// snapshot.
func (w *Worker) claim(ctx context.Context, id string) (*models.Task, error) {
	now := time.Now().UTC()

	res := w.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ? AND (status = ? OR (status = ? AND next_retry_at <= ?))",
			id, models.TaskPending, models.TaskRetrying, now).
		Updates(map[string]interface{}{
			"status":        models.TaskRunning,
			"started_at":    now,
			"next_retry_at": nil,
		})
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "taskqueue: claiming task")
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	var task models.Task
	if err := w.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		return nil, errors.Wrap(err, "taskqueue: reloading claimed task")
	}
	return &task, nil
}

func (w *Worker) execute(ctx context.Context, task *models.Task) {
	handler, ok := w.handlers[task.TaskType]
	if !ok {
		// No amount of retrying will conjure a handler.
		w.fail(ctx, task, task.MaxRetries, fmt.Sprintf("no handler registered for task type %q", task.TaskType))
		return
	}

	execCtx, cancel := context.WithTimeout(ctx, w.execTimeout)
	defer cancel()

	result, err := handler(execCtx, json.RawMessage(task.Parameters))
	if err != nil {
		retryCount := task.RetryCount + 1
		if retryCount < task.MaxRetries {
			w.retry(ctx, task, retryCount, err.Error())
		} else {
			w.fail(ctx, task, retryCount, err.Error())
		}
		return
	}

	w.succeed(ctx, task, result)
}

func (w *Worker) succeed(ctx context.Context, task *models.Task, result json.RawMessage) {
	now := time.Now().UTC()
	err := w.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ? AND status = ?", task.ID, models.TaskRunning).
		Updates(map[string]interface{}{
			"status":       models.TaskSucceeded,
			"result":       string(result),
			"completed_at": now,
		}).Error
	if err != nil {
		log.Logger.WithError(err).WithField("task_id", task.ID).Error("failed to mark task succeeded")
		return
	}

	metrics.TasksCompleted.WithLabelValues("succeeded").Inc()
	log.Logger.WithFields(logrus.Fields{
		"task_id":   task.ID,
		"task_type": task.TaskType,
	}).Info("task succeeded")
}

func (w *Worker) retry(ctx context.Context, task *models.Task, retryCount int, errMsg string) {
	nextRetryAt := time.Now().UTC().Add(w.backoff(retryCount))
	err := w.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ? AND status = ?", task.ID, models.TaskRunning).
		Updates(map[string]interface{}{
			"status":        models.TaskRetrying,
			"retry_count":   retryCount,
			"error_message": errMsg,
			"next_retry_at": nextRetryAt,
		}).Error
	if err != nil {
		log.Logger.WithError(err).WithField("task_id", task.ID).Error("failed to schedule task retry")
		return
	}

	metrics.TasksCompleted.WithLabelValues("retried").Inc()
	log.Logger.WithFields(logrus.Fields{
		"task_id":       task.ID,
		"task_type":     task.TaskType,
		"retry_count":   retryCount,
		"next_retry_at": nextRetryAt.Format(time.RFC3339),
		"error":         errMsg,
	}).Warn("task failed, retry scheduled")
}

func (w *Worker) fail(ctx context.Context, task *models.Task, retryCount int, errMsg string) {
	now := time.Now().UTC()
	err := w.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ? AND status = ?", task.ID, models.TaskRunning).
		Updates(map[string]interface{}{
			"status":        models.TaskFailed,
			"retry_count":   retryCount,
			"error_message": errMsg,
			"completed_at":  now,
			"next_retry_at": nil,
		}).Error
	if err != nil {
		log.Logger.WithError(err).WithField("task_id", task.ID).Error("failed to mark task failed")
		return
	}

	metrics.TasksCompleted.WithLabelValues("failed").Inc()
	log.Logger.WithFields(logrus.Fields{
		"task_id":     task.ID,
		"task_type":   task.TaskType,
		"retry_count": retryCount,
		"error":       errMsg,
	}).Error("task exhausted retries")
}

// backoff is exponential in the attempt number with up to 50% jitter, so a
// burst of failures does not reschedule in lockstep.
func (w *Worker) backoff(retryCount int) time.Duration {
	if w.backoffBase <= 0 {
		return 0
	}

	d := w.backoffBase << uint(retryCount-1)
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}

	return d + time.Duration(rand.Int63n(int64(d)/2+1))
}
