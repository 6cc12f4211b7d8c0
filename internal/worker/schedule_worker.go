package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"p5glab/internal/catalog"
	"p5glab/internal/database"
	"p5glab/internal/domain"
	"p5glab/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const TaskSyncSchedule = "sync_schedule"

// scheduleWindowDays is how far ahead the published schedule reaches.
const scheduleWindowDays = 7

type syncPayload struct {
	BookingID int64 `json:"booking_id"`
}

// ScheduleWorker republishes the lab schedule after booking changes. Tasks
// are persisted in sync_queue first, then routed through redis when it is up
// or a local channel when it is not; the DB poll catches anything both paths
// dropped.
type ScheduleWorker struct {
	db            *database.DB
	writer        domain.ScheduleWriter
	catalog       *catalog.Catalog
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.SyncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

func NewScheduleWorker(db *database.DB, writer domain.ScheduleWriter, cat *catalog.Catalog, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *ScheduleWorker {
	return &ScheduleWorker{
		db:            db,
		writer:        writer,
		catalog:       cat,
		redis:         redisClient,
		retryPolicy:   retry.withDefaults(),
		queue:         make(chan models.SyncTask, models.WorkerQueueSize),
		redisQueueKey: "schedule:queue",
		deadLetterKey: "schedule:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        logger,
	}
}

// EnqueueSyncSchedule persists a sync task and schedules it for processing.
func (w *ScheduleWorker) EnqueueSyncSchedule(ctx context.Context, bookingID int64) error {
	if bookingID == 0 {
		return errors.New("booking id is required")
	}

	payloadBytes, err := json.Marshal(syncPayload{BookingID: bookingID})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.SyncTask{
		TaskType:  TaskSyncSchedule,
		BookingID: bookingID,
		Payload:   string(payloadBytes),
		Status:    "pending",
		CreatedAt: time.Now(),
	}

	if err := w.db.CreateSyncTask(ctx, &task); err != nil {
		return fmt.Errorf("persist sync task: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("redis push failed, falling back to local queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		// The DB poll will pick it up.
		w.logger.Warn().Int64("task_id", task.ID).Msg("local queue full, task left to polling")
	}

	return nil
}

// Start runs the consume loop until ctx is done.
func (w *ScheduleWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("schedule worker started")
	defer w.logger.Info().Msg("schedule worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.db.GetPendingSyncTasks(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("fetch pending sync tasks")
			w.sleep(ctx)
			continue
		}
		if len(tasks) == 0 {
			w.sleep(ctx)
			continue
		}

		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *ScheduleWorker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.pollInterval):
	}
}

func (w *ScheduleWorker) tryLocalQueue() (models.SyncTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.SyncTask{}, false
	}
}

func (w *ScheduleWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.Nil) {
			return models.SyncTask{}, false
		}
		w.logger.Error().Err(err).Msg("redis BRPOP error")
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis task")
		return models.SyncTask{}, false
	}
	return task, true
}

func (w *ScheduleWorker) processTask(ctx context.Context, task *models.SyncTask) {
	if task.TaskType != TaskSyncSchedule {
		w.failTask(ctx, task, fmt.Errorf("unknown task type: %s", task.TaskType))
		return
	}

	if err := w.publishSchedule(ctx); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, "completed", "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark task completed")
	}
}

// publishSchedule rewrites the whole upcoming window. Pushing the full
// snapshot instead of a per-booking delta keeps the sheet consistent even
// when tasks complete out of order.
func (w *ScheduleWorker) publishSchedule(ctx context.Context) error {
	start := time.Now()
	end := start.AddDate(0, 0, scheduleWindowDays)

	bookings, err := w.db.GetBookingsByDateRange(ctx, start, end)
	if err != nil {
		return fmt.Errorf("load bookings: %w", err)
	}

	return w.writer.UpdateScheduleSheet(ctx, start, end, bookings, w.catalog.All())
}

func (w *ScheduleWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if attempt >= w.retryPolicy.MaxRetries {
		if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, "failed", cause.Error(), nil); err != nil {
			w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark task failed")
		}
		w.pushDeadLetter(ctx, task)
		return
	}

	nextTime := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, "retry", cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark task for retry")
	}
}

func (w *ScheduleWorker) failTask(ctx context.Context, task *models.SyncTask, cause error) {
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, "failed", cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark task failed")
	}
	w.pushDeadLetter(ctx, task)
}

func (w *ScheduleWorker) pushRedis(ctx context.Context, task models.SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *ScheduleWorker) pushDeadLetter(ctx context.Context, task *models.SyncTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("encode deadletter task")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("deadletter push")
	}
}
