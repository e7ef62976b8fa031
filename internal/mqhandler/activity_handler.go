package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	mqcontract "github.com/AcelinoMargotti/scinexa-project-nexus/contracts/mq"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/model"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/repository"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/logger"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/metrics"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/util"
)

const (
	handlerName       = "activity"
	defaultMaxRetries = 5
)

// Deduper and RetryCounter are satisfied by pkg/util's redis implementations.
type Deduper interface {
	Seen(ctx context.Context, handler, id string) bool
	MarkProcessed(ctx context.Context, handler, id string)
}

type RetryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, routingKey string, payload []byte, failedAt, originalError string) error
}

// ActivityHandler turns project domain events into activity feed entries.
// Malformed or permanently failing events are parked on the DLQ; transient failures are requeued
// until the retry counter passes maxRetries.
type ActivityHandler struct {
	repo       repository.ActivityRepository
	deduper    Deduper
	retries    RetryCounter
	dlq        DLQPublisher
	maxRetries int64
	logger     *zap.Logger
}

func NewActivityHandler(
	repo repository.ActivityRepository,
	deduper Deduper,
	retries RetryCounter,
	dlq DLQPublisher,
	logger *zap.Logger,
) *ActivityHandler {
	return &ActivityHandler{
		repo:       repo,
		deduper:    deduper,
		retries:    retries,
		dlq:        dlq,
		maxRetries: defaultMaxRetries,
		logger:     logger,
	}
}

func (h *ActivityHandler) WithMaxRetries(n int) *ActivityHandler {
	if n > 0 {
		h.maxRetries = int64(n)
	}
	return h
}

// Handle is an mq.MessageHandler. A returned error makes the consumer requeue the message.
func (h *ActivityHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger)

	var p mqcontract.ProjectEventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Error("Failed to unmarshal project event (non-retryable, sending to DLQ)",
			zap.Error(err),
			zap.String("raw_payload", string(raw)),
		)
		return h.park(ctx, "unknown", raw, fmt.Errorf("json_unmarshal_error: %w", err))
	}
	if err := validatePayload(p); err != nil {
		log.Error("Invalid project event (non-retryable, sending to DLQ)",
			zap.String("event_id", p.EventID),
			zap.Error(err),
		)
		return h.park(ctx, p.Type, raw, err)
	}

	log = log.With(
		zap.String("event_id", p.EventID),
		zap.String("type", p.Type),
		zap.String("project_id", p.ProjectID),
	)

	if h.deduper.Seen(ctx, handlerName, p.EventID) {
		metrics.IncrementActivity("duplicate")
		return nil
	}

	// The activity row's primary key is the real guard; the redis mark only short-circuits
	// redeliveries of events already stored, so it is written after Append succeeds.
	inserted, err := h.repo.Append(ctx, model.NewActivity(p.Event()))
	if err != nil {
		return h.onAppendError(ctx, log, p, raw, err)
	}
	h.deduper.MarkProcessed(ctx, handlerName, p.EventID)

	retryKey := util.FormatRetryKey(handlerName, p.EventID)
	if err := h.retries.Reset(ctx, retryKey); err != nil {
		log.Debug("Failed to reset retry counter", zap.Error(err))
	}
	if !inserted {
		metrics.IncrementActivity("duplicate")
		log.Debug("Activity already recorded")
		return nil
	}
	metrics.IncrementActivity("stored")
	log.Info("Activity recorded")
	return nil
}

func (h *ActivityHandler) onAppendError(ctx context.Context, log *zap.Logger, p mqcontract.ProjectEventPayload, raw []byte, err error) error {
	retryable, errType := util.IsRetryableError(err)
	retryKey := util.FormatRetryKey(handlerName, p.EventID)

	retryCount, cerr := h.retries.IncrementAndGet(ctx, retryKey)
	if cerr != nil {
		log.Warn("Failed to get retry count, continuing anyway", zap.Error(cerr))
		retryCount = 1
	}

	log.Error("Failed to append activity",
		zap.String("error_type", errType),
		zap.Bool("retryable", retryable),
		zap.Int64("retry_count", retryCount),
		zap.Int64("max_retries", h.maxRetries),
		zap.Error(err),
	)

	if util.ShouldRetry(retryCount, h.maxRetries, retryable) {
		return err
	}

	if rerr := h.retries.Reset(ctx, retryKey); rerr != nil {
		log.Debug("Failed to reset retry counter", zap.Error(rerr))
	}
	return h.park(ctx, p.Type, raw, fmt.Errorf("%s: %w", errType, err))
}

// park publishes raw to the DLQ and acks it. If the DLQ is unreachable the message is requeued.
func (h *ActivityHandler) park(ctx context.Context, routingKey string, raw []byte, cause error) error {
	if routingKey == "" {
		routingKey = "unknown"
	}
	if err := h.dlq.PublishToDLQ(ctx, routingKey, raw, handlerName, cause.Error()); err != nil {
		logger.WithTrace(ctx, h.logger).Error("Failed to publish to DLQ, requeueing",
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}
	metrics.IncrementActivity("dlq")
	return nil
}

func validatePayload(p mqcontract.ProjectEventPayload) error {
	var missing []string
	if p.EventID == "" {
		missing = append(missing, "event_id")
	}
	if p.ProjectID == "" {
		missing = append(missing, "project_id")
	}
	if p.Type == "" {
		missing = append(missing, "type")
	}
	if len(missing) > 0 {
		return fmt.Errorf("invalid payload: missing %v", missing)
	}
	if p.OccurredAt.IsZero() {
		return errors.New("invalid payload: missing occurred_at")
	}
	return nil
}
