// Package queue provides the Redis-backed job queue and the meeting start
// schedule shared by the API server and the worker.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	reportsKey  = "worker:reports"
	dlqKey      = "worker:dlq"
	scheduleKey = "scheduler:meeting_starts"

	dequeueBlock = 5 * time.Second

	// MaxRetries is the number of attempts before a job lands in the DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeReportArchive JobType = "report_archive"
)

// ReportArchivePayload is the payload for report archive jobs.
type ReportArchivePayload struct {
	MeetingID uuid.UUID `json:"meeting_id"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues jobs via Redis and keeps the meeting start
// schedule.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

func (q *Queue) push(ctx context.Context, key string, job Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", key, err)
	}
	return nil
}

// EnqueueReportArchive enqueues a report archive job for an ended meeting.
func (q *Queue) EnqueueReportArchive(ctx context.Context, payload ReportArchivePayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:        uuid.NewString(),
		Type:      JobTypeReportArchive,
		Payload:   body,
		CreatedAt: time.Now(),
	}
	if err := q.push(ctx, reportsKey, job); err != nil {
		return err
	}
	q.logger.Debug("report archive job enqueued",
		zap.String("job_id", job.ID), zap.String("meeting_id", payload.MeetingID.String()))
	return nil
}

// Dequeue blocks for a short while waiting for a job. A nil job without an
// error means nothing was ready; callers just loop.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	result, err := q.client.BLPop(ctx, dequeueBlock, reportsKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) != 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("dropping malformed job", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Retry re-enqueues with attempt+1; after MaxRetries the job goes to the DLQ.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	if job.Attempt >= MaxRetries {
		if err := q.push(ctx, dlqKey, *job); err != nil {
			return err
		}
		q.logger.Warn("job moved to dlq", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.push(ctx, reportsKey, *job); err != nil {
		return err
	}
	q.logger.Info("job requeued", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}

// ScheduleMeetingStart records a meeting in the start schedule, scored by its
// start time. Re-scheduling the same meeting updates the score.
func (q *Queue) ScheduleMeetingStart(ctx context.Context, meetingID uuid.UUID, startAt time.Time) error {
	err := q.client.ZAdd(ctx, scheduleKey, redis.Z{
		Score:  float64(startAt.Unix()),
		Member: meetingID.String(),
	}).Err()
	if err != nil {
		return fmt.Errorf("zadd schedule: %w", err)
	}
	return nil
}

// UnscheduleMeetingStart drops a meeting from the start schedule, e.g. when
// it is cancelled before its start time.
func (q *Queue) UnscheduleMeetingStart(ctx context.Context, meetingID uuid.UUID) error {
	if err := q.client.ZRem(ctx, scheduleKey, meetingID.String()).Err(); err != nil {
		return fmt.Errorf("zrem schedule: %w", err)
	}
	return nil
}

// DueMeetingStarts claims up to limit meetings whose start time has passed.
// An entry counts as claimed only when this worker's ZRem removes it, so
// concurrent workers never claim the same meeting twice.
func (q *Queue) DueMeetingStarts(ctx context.Context, now time.Time, limit int64) ([]uuid.UUID, error) {
	members, err := q.client.ZRangeByScore(ctx, scheduleKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore schedule: %w", err)
	}
	var due []uuid.UUID
	for _, m := range members {
		removed, err := q.client.ZRem(ctx, scheduleKey, m).Result()
		if err != nil {
			return due, fmt.Errorf("zrem schedule: %w", err)
		}
		if removed == 0 {
			continue
		}
		id, err := uuid.Parse(m)
		if err != nil {
			q.logger.Warn("invalid schedule member", zap.String("member", m))
			continue
		}
		due = append(due, id)
	}
	return due, nil
}
