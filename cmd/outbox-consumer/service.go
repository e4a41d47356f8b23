package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/avelarsoto/tianguis-backend/pkg/config"
	"github.com/avelarsoto/tianguis-backend/pkg/enums"
	"github.com/avelarsoto/tianguis-backend/pkg/logger"
	"github.com/avelarsoto/tianguis-backend/pkg/outbox"
	"github.com/avelarsoto/tianguis-backend/pkg/outbox/registry"
)

const defaultProcessedTTL = 7 * 24 * time.Hour

// processedGuard deduplicates deliveries across consumer restarts. Pub/Sub
// is at-least-once, so every handler sits behind this check.
type processedGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type subscriber interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type eventHandler func(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope, payload interface{}) error

type disposition int

const (
	ackMessage disposition = iota
	nackMessage
)

type ServiceParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	Subscriber subscriber
	Guard      processedGuard
	Decoders   *registry.DecoderRegistry
	Handler    eventHandler
}

// Service consumes domain events from the orders subscription, deduplicates
// them per event ID, and dispatches the decoded payload to the handler.
type Service struct {
	cfg      *config.Config
	logg     *logger.Logger
	sub      subscriber
	guard    processedGuard
	decoders *registry.DecoderRegistry
	handler  eventHandler
	consumer string
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Subscriber == nil {
		return nil, errors.New("subscriber is required")
	}
	if params.Guard == nil {
		return nil, errors.New("processed guard is required")
	}
	if params.Decoders == nil {
		return nil, errors.New("decoder registry is required")
	}

	svc := &Service{
		cfg:      params.Config,
		logg:     params.Logger,
		sub:      params.Subscriber,
		guard:    params.Guard,
		decoders: params.Decoders,
		handler:  params.Handler,
		consumer: params.Config.PubSub.OrdersSubscription,
	}
	if svc.consumer == "" {
		return nil, errors.New("orders subscription is required")
	}
	if svc.handler == nil {
		svc.handler = svc.logEvent
	}
	return svc, nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.sub.Receive(ctx, func(ctx context.Context, msg *gcppubsub.Message) {
		switch s.handleMessage(ctx, msg.Data, msg.Attributes) {
		case nackMessage:
			msg.Nack()
		default:
			msg.Ack()
		}
	})
}

// handleMessage decides the fate of one delivery. Messages that can never be
// processed are acked with a warning so they stop redelivering; transient
// failures are nacked for redelivery.
func (s *Service) handleMessage(ctx context.Context, data []byte, attrs map[string]string) disposition {
	eventType := enums.OutboxEventType(attrs["event_type"])

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		s.warnDropped(ctx, attrs, "dropping undecodable event message", err)
		return ackMessage
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		s.warnDropped(ctx, attrs, "dropping event message without a valid event id", err)
		return ackMessage
	}

	alreadyProcessed, err := s.guard.CheckAndMarkProcessed(ctx, s.consumer, eventID)
	if err != nil {
		s.logg.Error(s.eventCtx(ctx, eventType, envelope), "processed-guard check failed", err)
		return nackMessage
	}
	if alreadyProcessed {
		return ackMessage
	}

	payload, err := s.decoders.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		s.warnDropped(ctx, attrs, "dropping event with no usable decoder", err)
		return ackMessage
	}

	if err := s.handler(ctx, eventType, envelope, payload); err != nil {
		handlerCtx := s.eventCtx(ctx, eventType, envelope)
		s.logg.Error(handlerCtx, "event handler failed", err)
		// Release the guard so the redelivery is not treated as a duplicate.
		if delErr := s.guard.Delete(ctx, s.consumer, eventID); delErr != nil {
			s.logg.Error(handlerCtx, "failed to release processed guard", delErr)
		}
		return nackMessage
	}
	return ackMessage
}

func (s *Service) logEvent(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope, payload interface{}) error {
	s.logg.Info(s.eventCtx(ctx, eventType, envelope), "domain event consumed")
	return nil
}

func (s *Service) eventCtx(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) context.Context {
	fields := map[string]any{
		"consumer":   s.consumer,
		"event_type": eventType,
		"event_id":   envelope.EventID,
	}
	if !envelope.OccurredAt.IsZero() {
		fields["occurred_at"] = envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	return s.logg.WithFields(ctx, fields)
}

func (s *Service) warnDropped(ctx context.Context, attrs map[string]string, msg string, err error) {
	fields := map[string]any{
		"consumer": s.consumer,
		"error":    err.Error(),
	}
	for _, key := range []string{"event_id", "event_type", "aggregate_id"} {
		if value := attrs[key]; value != "" {
			fields[key] = value
		}
	}
	s.logg.Warn(s.logg.WithFields(ctx, fields), msg)
}
