package server

import (
	"context"
	"fmt"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	zap "go.uber.org/zap"

	config "github.com/apia-framework/a2a/server/config"
	types "github.com/apia-framework/a2a/types"
)

// PushNotificationSender delivers terminal task state changes to an external
// webhook. Delivery is best effort; failures are logged, never propagated
// into the task lifecycle.
type PushNotificationSender interface {
	SendTaskUpdate(ctx context.Context, event types.TaskStatusUpdateEvent) error
}

// CloudEventsPushNotificationSender implements push notifications as
// CloudEvents over HTTP
type CloudEventsPushNotificationSender struct {
	client    cloudevents.Client
	logger    *zap.Logger
	agentName string
	cfg       config.NotificationsConfig
}

var _ PushNotificationSender = (*CloudEventsPushNotificationSender)(nil)

// NewCloudEventsPushNotificationSender creates a CloudEvents webhook sender
func NewCloudEventsPushNotificationSender(agentName string, cfg config.NotificationsConfig, logger *zap.Logger) (*CloudEventsPushNotificationSender, error) {
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("webhook URL is required for push notifications")
	}

	client, err := cloudevents.NewClientHTTP(cloudevents.WithTarget(cfg.WebhookURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create cloudevents client: %w", err)
	}

	return &CloudEventsPushNotificationSender{
		client:    client,
		logger:    logger,
		agentName: agentName,
		cfg:       cfg,
	}, nil
}

// SendTaskUpdate delivers one task status transition to the webhook
func (s *CloudEventsPushNotificationSender) SendTaskUpdate(ctx context.Context, event types.TaskStatusUpdateEvent) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	ce := types.NewTaskStatusEvent(s.agentName, event)

	if result := s.client.Send(ctx, ce); cloudevents.IsUndelivered(result) {
		return fmt.Errorf("failed to deliver task update for %s: %w", event.ID, result)
	}

	s.logger.Debug("push notification delivered",
		zap.String("task_id", event.ID),
		zap.String("state", event.Status.State.String()))
	return nil
}
