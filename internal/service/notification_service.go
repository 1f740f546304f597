package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/capital-declarations-api/pkg/config"
	"github.com/noah-isme/capital-declarations-api/pkg/jobs"
)

const notificationJobType = "client_notification"

// Notification is a templated message addressed to a client.
type Notification struct {
	Channel       string
	DeclarationID string
	Recipient     string
	Vars          map[string]string
}

// Notifier delivers a notification over its channel.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log instead of sending them.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs the default notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, msg Notification) error {
	n.logger.Info("client notification",
		zap.String("channel", msg.Channel),
		zap.String("declaration_id", msg.DeclarationID),
		zap.String("recipient", msg.Recipient),
		zap.Any("vars", msg.Vars),
	)
	return nil
}

// NotificationService hands notifications to a background worker pool.
type NotificationService struct {
	notifier Notifier
	queue    *jobs.Queue
	metrics  *MetricsService
	logger   *zap.Logger
	enabled  bool
}

// NewNotificationService constructs the dispatcher. Call Start before dispatching.
func NewNotificationService(notifier Notifier, cfg config.NotificationsConfig, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		enabled:  cfg.Enabled && notifier != nil,
	}
	svc.queue = jobs.NewQueue("notifications", svc.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.Retries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
		OnGiveUp: func(job jobs.Job, err error) {
			if n, ok := job.Payload.(Notification); ok {
				metrics.RecordNotification(n.Channel, "gave_up")
			}
		},
	})
	return svc
}

// Start launches the workers.
func (s *NotificationService) Start(ctx context.Context) {
	if s.enabled {
		s.queue.Start(ctx)
	}
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Dispatch enqueues n and reports whether it was accepted.
func (s *NotificationService) Dispatch(ctx context.Context, n Notification) (bool, error) {
	if !s.enabled || n.Channel == "" || n.Channel == "none" {
		return false, nil
	}
	err := s.queue.Enqueue(ctx, jobs.Job{ID: uuid.NewString(), Type: notificationJobType, Payload: n})
	if err != nil {
		if errors.Is(err, jobs.ErrQueueClosed) {
			s.logger.Warn("notification queue not running", zap.String("declaration_id", n.DeclarationID))
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(Notification)
	if !ok {
		return fmt.Errorf("unexpected payload %T", job.Payload)
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.metrics.RecordNotification(n.Channel, "failed")
		return err
	}
	s.metrics.RecordNotification(n.Channel, "sent")
	return nil
}
