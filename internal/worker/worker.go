package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FacerAin/dnd-10th-2-backend/internal/meetings"
	"github.com/FacerAin/dnd-10th-2-backend/internal/models"
	"github.com/FacerAin/dnd-10th-2-backend/pkg/queue"
	"github.com/FacerAin/dnd-10th-2-backend/pkg/storage"
)

// EventPublisher publishes realtime events to meeting channels.
type EventPublisher interface {
	PublishMeetingEvent(meetingID uuid.UUID, event string, payload []byte) error
}

// reportArchive is the JSON document stored in S3: the report plus meeting metadata.
type reportArchive struct {
	MeetingID  uuid.UUID             `json:"meeting_id"`
	Title      string                `json:"title"`
	Location   string                `json:"location"`
	Status     string                `json:"status"`
	StartedAt  *time.Time            `json:"started_at"`
	EndedAt    *time.Time            `json:"ended_at"`
	Report     *models.MeetingReport `json:"report"`
	ArchivedAt time.Time             `json:"archived_at"`
}

// ReportProcessor processes report archive jobs: build the meeting report, upload JSON to S3.
type ReportProcessor struct {
	meetings *meetings.Service
	s3       *storage.S3
	queue    *queue.Queue
	logger   *zap.Logger
}

// NewReportProcessor creates a report archive processor.
func NewReportProcessor(svc *meetings.Service, s3 *storage.S3, q *queue.Queue, logger *zap.Logger) *ReportProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportProcessor{meetings: svc, s3: s3, queue: q, logger: logger}
}

// Process executes one report archive job.
func (p *ReportProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeReportArchive {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ReportArchivePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	m, err := p.meetings.FindByID(ctx, payload.MeetingID)
	if err != nil {
		return fmt.Errorf("meeting not found: %s", payload.MeetingID)
	}
	if m.Status != models.MeetingEnded {
		p.logger.Info("meeting not ended, skipping archive", zap.String("meeting_id", m.ID.String()), zap.String("status", string(m.Status)))
		return nil
	}

	report, err := p.meetings.CreateReport(ctx, payload.MeetingID)
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}

	doc := reportArchive{
		MeetingID:  m.ID,
		Title:      m.Title,
		Location:   m.Location,
		Status:     string(m.Status),
		StartedAt:  m.StartedAt,
		EndedAt:    m.EndedAt,
		Report:     report,
		ArchivedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal archive: %w", err)
	}

	if err := p.s3.ArchiveReport(ctx, payload.MeetingID.String(), bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("archive report: %w", err)
	}

	p.logger.Info("report archived", zap.String("meeting_id", payload.MeetingID.String()))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ReportProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("report worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}

// Scheduler starts due meetings: polls the schedule ZSET and transitions
// claimed meetings to in_progress, broadcasting meeting_started.
type Scheduler struct {
	meetings *meetings.Service
	queue    *queue.Queue
	events   EventPublisher
	interval time.Duration
	logger   *zap.Logger
}

// NewScheduler creates a meeting start scheduler.
func NewScheduler(svc *meetings.Service, q *queue.Queue, events EventPublisher, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Scheduler{meetings: svc, queue: q, events: events, interval: interval, logger: logger}
}

// Run polls for due meetings until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	due, err := s.queue.DueMeetingStarts(ctx, time.Now(), 100)
	if err != nil {
		s.logger.Warn("fetch due meetings failed", zap.Error(err))
		return
	}
	for _, meetingID := range due {
		m, started, err := s.meetings.StartScheduled(ctx, meetingID)
		if err != nil {
			s.logger.Error("start meeting failed", zap.Error(err), zap.String("meeting_id", meetingID.String()))
			continue
		}
		if !started {
			// already started, ended or cancelled elsewhere
			continue
		}
		s.logger.Info("meeting started", zap.String("meeting_id", meetingID.String()))
		if s.events != nil {
			payload, _ := json.Marshal(map[string]interface{}{
				"id":         m.ID,
				"status":     string(m.Status),
				"started_at": m.StartedAt,
			})
			if err := s.events.PublishMeetingEvent(meetingID, "meeting_started", payload); err != nil {
				s.logger.Warn("publish meeting_started failed", zap.Error(err), zap.String("meeting_id", meetingID.String()))
			}
		}
	}
}
