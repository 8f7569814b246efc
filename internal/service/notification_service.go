package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/eduportal-api/internal/dto"
	"github.com/noah-isme/eduportal-api/internal/models"
	"github.com/noah-isme/eduportal-api/internal/observability"
	"github.com/noah-isme/eduportal-api/internal/policy"
	"github.com/noah-isme/eduportal-api/internal/repository"
)

const notificationBufferSize = 16

// NotificationService broadcasts admin notifications and streams them to connected clients.
type NotificationService interface {
	Broadcast(ctx context.Context, principal policy.Principal, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
	ListForPrincipal(ctx context.Context, principal policy.Principal, limit, offset int) ([]dto.NotificationResponse, error)
	Subscribe(principal policy.Principal) (<-chan dto.NotificationResponse, func())
	Start(ctx context.Context)
}

type notificationService struct {
	repo         repository.NotificationRepository
	activity     ActivityRecorder
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	validator    *validator.Validate
	logger       zerolog.Logger
	tracer       trace.Tracer
	sanitizer    *bluemonday.Policy
	broker       *notificationBroker
	nodeID       string
}

type notificationEvent struct {
	Source       string                   `json:"source"`
	Notification dto.NotificationResponse `json:"notification"`
	SentAt       time.Time                `json:"sent_at"`
}

// notificationBroker fans notifications out to local subscribers whose role is addressed.
type notificationBroker struct {
	mu          sync.RWMutex
	subscribers map[chan dto.NotificationResponse]models.Role
}

// NewNotificationService constructs a notification service. Redis and NATS are optional.
func NewNotificationService(
	repo repository.NotificationRepository,
	activity ActivityRecorder,
	redisClient *redis.Client,
	natsConn *nats.Conn,
	channelBase string,
	validate *validator.Validate,
	logger zerolog.Logger,
) NotificationService {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":notifications"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".notifications"
	}

	return &notificationService{
		repo:         repo,
		activity:     activity,
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		validator:    validate,
		logger:       logger.With().Str("component", "notification_service").Logger(),
		tracer:       otel.Tracer("github.com/noah-isme/eduportal-api/internal/service/notification"),
		sanitizer:    bluemonday.StrictPolicy(),
		broker:       &notificationBroker{subscribers: make(map[chan dto.NotificationResponse]models.Role)},
		nodeID:       uuid.NewString(),
	}
}

// Start launches the Redis and NATS consumers. They stop when ctx is cancelled.
func (s *notificationService) Start(ctx context.Context) {
	if s.redis != nil && s.redisChannel != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		s.consumeNATS(ctx)
	}
}

func (s *notificationService) Broadcast(ctx context.Context, principal policy.Principal, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	if err := authorize(policy.CanBroadcast(principal)); err != nil {
		return dto.NotificationResponse{}, err
	}
	if err := validate(s.validator, payload); err != nil {
		return dto.NotificationResponse{}, err
	}

	message := strings.TrimSpace(s.sanitizer.Sanitize(payload.Message))
	title := strings.TrimSpace(s.sanitizer.Sanitize(payload.Title))
	if message == "" || title == "" {
		return dto.NotificationResponse{}, validationError("title and message must not be empty after sanitization")
	}

	model := models.Notification{
		Title:          title,
		Message:        message,
		Type:           payload.Type,
		TargetAudience: payload.TargetAudience,
		CreatedBy:      principal.ID,
	}
	if model.Type == "" {
		model.Type = models.NotificationInfo
	}
	if model.TargetAudience == "" {
		model.TargetAudience = models.AudienceAll
	}

	spanCtx, span := s.tracer.Start(ctx, "notifications.broadcast", trace.WithAttributes(
		attribute.String("notification.type", model.Type),
		attribute.String("notification.audience", model.TargetAudience),
	))
	defer span.End()

	if err := s.repo.Create(spanCtx, &model); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return dto.NotificationResponse{}, unexpected("create notification", err)
	}

	response := dto.NewNotificationResponse(model)
	s.broker.broadcast(response)
	observability.NotificationsPublished().WithLabelValues("local").Inc()
	if err := s.publish(spanCtx, response); err != nil {
		span.RecordError(err)
		s.logger.Warn().Err(err).Uint("notification_id", model.ID).Msg("failed to publish notification to broker")
	}

	recordActivity(spanCtx, s.activity, s.logger, ActivityEntry{
		ActorID:    principal.ID,
		ActorRole:  string(principal.Role),
		Action:     ActionBroadcast,
		EntityType: "notification",
		EntityID:   uintPtr(model.ID),
		Metadata:   map[string]interface{}{"audience": model.TargetAudience, "type": model.Type},
	})

	return response, nil
}

// ListForPrincipal returns notifications addressed to everyone or to the principal's role.
func (s *notificationService) ListForPrincipal(ctx context.Context, principal policy.Principal, limit, offset int) ([]dto.NotificationResponse, error) {
	audience := models.AudienceForRole(principal.Role)
	if audience == "" {
		return nil, permissionError("authentication required")
	}

	notifications, err := s.repo.ListForAudiences(ctx, []string{models.AudienceAll, audience}, limit, offset)
	if err != nil {
		return nil, unexpected("list notifications", err)
	}
	return dto.NewNotificationResponseSlice(notifications), nil
}

// Subscribe registers a live listener. The returned cleanup closes the channel.
func (s *notificationService) Subscribe(principal policy.Principal) (<-chan dto.NotificationResponse, func()) {
	channel := make(chan dto.NotificationResponse, notificationBufferSize)
	s.broker.subscribe(principal.Role, channel)
	observability.RealtimeClients().Inc()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			s.broker.unsubscribe(channel)
			observability.RealtimeClients().Dec()
		})
	}
	return channel, cleanup
}

func (s *notificationService) publish(ctx context.Context, notification dto.NotificationResponse) error {
	payload, err := json.Marshal(notificationEvent{
		Source:       s.nodeID,
		Notification: notification,
		SentAt:       time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	var errs []error
	if s.redis != nil && s.redisChannel != "" {
		if err := s.redis.Publish(ctx, s.redisChannel, payload).Err(); err != nil {
			errs = append(errs, err)
		} else {
			observability.NotificationsPublished().WithLabelValues("redis").Inc()
		}
	}
	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			errs = append(errs, err)
		} else {
			observability.NotificationsPublished().WithLabelValues("nats").Inc()
		}
	}
	return errors.Join(errs...)
}

func (s *notificationService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return
			}
			s.logger.Error().Err(err).Msg("notification redis subscription closed")
			return
		}
		s.handleEvent([]byte(msg.Payload))
	}
}

func (s *notificationService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.Subscribe(s.natsSubject, func(msg *nats.Msg) {
		s.handleEvent(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats notifications subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain notification nats subscription")
		}
	}()
}

// handleEvent delivers notifications published by other nodes. Own events were delivered locally.
func (s *notificationService) handleEvent(payload []byte) {
	var event notificationEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid notification event payload")
		return
	}
	if event.Source == s.nodeID {
		return
	}
	s.broker.broadcast(event.Notification)
}

func (b *notificationBroker) subscribe(role models.Role, ch chan dto.NotificationResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[ch] = role
}

func (b *notificationBroker) unsubscribe(ch chan dto.NotificationResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// broadcast never blocks; a subscriber with a full buffer misses the notification.
func (b *notificationBroker) broadcast(notification dto.NotificationResponse) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch, role := range b.subscribers {
		if !notification.Reaches(role) {
			continue
		}
		select {
		case ch <- notification:
		default:
		}
	}
}
