package workers

import (
	"context"
	"strconv"
	"strings"
	"time"

	go_redis "github.com/redis/go-redis/v9"

	"outlivion-contest-backend/internal/common/logger"
	"outlivion-contest-backend/internal/features/payment/models"
	paymentservice "outlivion-contest-backend/internal/features/payment/service"
	"outlivion-contest-backend/internal/platform/redis"
)

const (
	consumerGroup = "contest_backend_consumers"
	consumerName  = "contest_worker_1"
)

// PaymentStreamWorker читает платёжные сигналы из Redis Stream.
// Доставка at-least-once: сообщение подтверждается только после успешной
// обработки, идемпотентность обеспечивает движок квалификации.
type PaymentStreamWorker struct {
	rdb       redis.RedisClient
	service   paymentservice.PaymentEventService
	streamKey string
}

func NewPaymentStreamWorker(rdb redis.RedisClient, service paymentservice.PaymentEventService, streamKey string) *PaymentStreamWorker {
	return &PaymentStreamWorker{
		rdb:       rdb,
		service:   service,
		streamKey: streamKey,
	}
}

// Start begins listening to the Redis stream for events.
func (w *PaymentStreamWorker) Start(ctx context.Context) {
	err := w.rdb.XGroupCreateMkStream(ctx, w.streamKey, consumerGroup, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		logger.Error().Err(err).Msg("failed to create consumer group")
	}

	logger.Info().Str("stream", w.streamKey).Msg("payment stream worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("payment stream worker stopped")
			return
		default:
			entries, err := w.rdb.XReadGroup(ctx, &go_redis.XReadGroupArgs{
				Group:    consumerGroup,
				Consumer: consumerName,
				Streams:  []string{w.streamKey, ">"},
				Count:    1,
				Block:    5 * time.Second,
			}).Result()

			if err != nil {
				if err != go_redis.Nil && ctx.Err() == nil {
					logger.Error().Err(err).Msg("failed to read from payment stream")
					time.Sleep(time.Second) // backoff on error
				}
				continue
			}

			for _, stream := range entries {
				for _, msg := range stream.Messages {
					if w.processMessage(ctx, msg.Values) {
						w.rdb.XAck(ctx, w.streamKey, consumerGroup, msg.ID)
					}
				}
			}
		}
	}
}

// processMessage возвращает true, когда сообщение можно подтвердить.
// Невалидные сообщения подтверждаются тоже: ретраить их бессмысленно.
func (w *PaymentStreamWorker) processMessage(ctx context.Context, values map[string]interface{}) bool {
	event, ok := parseEvent(values)
	if !ok {
		logger.Warn().Interface("values", values).Msg("malformed payment stream message")
		return true
	}

	if err := w.service.Process(ctx, event); err != nil {
		// Транзиентная ошибка: не подтверждаем, сообщение будет доставлено снова
		logger.Error().Err(err).Str("payment_id", event.PaymentID).Msg("failed to process payment event")
		return false
	}

	return true
}

func parseEvent(values map[string]interface{}) (*models.WebhookEvent, bool) {
	eventType, ok := values["type"].(string)
	if !ok {
		return nil, false
	}

	paymentID, ok := values["payment_id"].(string)
	if !ok || paymentID == "" {
		return nil, false
	}

	event := &models.WebhookEvent{
		Type:      models.WebhookEventType(eventType),
		PaymentID: paymentID,
	}

	if userID, ok := values["user_id"].(string); ok {
		event.UserID = userID
	}

	if monthsStr, ok := values["months"].(string); ok {
		months, err := strconv.Atoi(monthsStr)
		if err != nil {
			return nil, false
		}
		event.Months = months
	}

	if paidAtStr, ok := values["paid_at"].(string); ok {
		paidAt, err := time.Parse(time.RFC3339, paidAtStr)
		if err != nil {
			return nil, false
		}
		event.PaidAt = paidAt
	}

	return event, true
}
