package listener

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/stock"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	EventPaymentConfirmed  = "PaymentConfirmed"
	EventPaymentFailed     = "PaymentFailed"
	EventCheckoutAbandoned = "CheckoutAbandoned"

	actorPayments = "payments"

	handleAttempts   = 5
	defaultRetryBase = 200 * time.Millisecond
)

// MessageReader is satisfied by *broker.KafkaConsumer.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// PaymentListener turns payment outcomes into reservation commits and
// releases.
type PaymentListener struct {
	consumer  MessageReader
	uc        stock.UseCase
	retryBase time.Duration
	logger    logger.ZapLogger
}

func NewPaymentListener(consumer MessageReader, uc stock.UseCase, logger logger.ZapLogger) *PaymentListener {
	return &PaymentListener{
		consumer:  consumer,
		uc:        uc,
		retryBase: defaultRetryBase,
		logger:    logger,
	}
}

func (l *PaymentListener) Start(ctx context.Context) {
	l.logger.Info("Starting Payment Kafka Listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Stopping Payment Kafka Listener")
			return
		default:
			msg, err := l.consumer.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.logger.Error("Failed to read kafka message", zap.Error(err))
				time.Sleep(1 * time.Second)
				continue
			}
			l.processMessage(ctx, msg.Value)
		}
	}
}

type PaymentEvent struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	Payload   PaymentPayload `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

type PaymentPayload struct {
	PaymentID      string   `json:"payment_id"`
	ReservationIDs []string `json:"reservation_ids"`
	HolderRef      string   `json:"holder_ref"`
	Reason         string   `json:"reason"`
}

func (l *PaymentListener) processMessage(ctx context.Context, value []byte) {
	var event PaymentEvent
	if err := json.Unmarshal(value, &event); err != nil {
		l.logger.Error("Failed to unmarshal event", zap.Error(err))
		return
	}

	switch event.EventType {
	case EventPaymentConfirmed:
		l.logger.Info("Processing PaymentConfirmed event",
			zap.String("event_id", event.EventID),
			zap.String("payment_id", event.Payload.PaymentID),
		)
		for _, id := range event.Payload.ReservationIDs {
			err := l.withRetry(ctx, func() error {
				_, err := l.uc.CommitSale(ctx, id, actorPayments)
				return err
			})
			if err != nil {
				l.logger.Error("Failed to commit reservation",
					zap.String("event_id", event.EventID),
					zap.String("payment_id", event.Payload.PaymentID),
					zap.String("reservation_id", id),
					zap.Error(err),
				)
			}
		}

	case EventPaymentFailed:
		reason := event.Payload.Reason
		if reason == "" {
			reason = "payment failed"
		}
		for _, id := range event.Payload.ReservationIDs {
			err := l.withRetry(ctx, func() error {
				_, err := l.uc.Release(ctx, id, reason, actorPayments)
				return err
			})
			if err != nil {
				l.logger.Error("Failed to release reservation",
					zap.String("event_id", event.EventID),
					zap.String("payment_id", event.Payload.PaymentID),
					zap.String("reservation_id", id),
					zap.Error(err),
				)
			}
		}

	case EventCheckoutAbandoned:
		if event.Payload.HolderRef == "" {
			l.logger.Warn("CheckoutAbandoned event without holder_ref", zap.String("event_id", event.EventID))
			return
		}
		released := 0
		err := l.withRetry(ctx, func() error {
			results, err := l.uc.ReleaseHolder(ctx, event.Payload.HolderRef, "checkout abandoned", actorPayments)
			released += len(results)
			return err
		})
		if err != nil {
			l.logger.Error("Failed to release abandoned checkout",
				zap.String("event_id", event.EventID),
				zap.String("holder_ref", event.Payload.HolderRef),
				zap.Int("reservations", released),
				zap.Error(err),
			)
			if released == 0 {
				return
			}
		}
		l.logger.Info("Released abandoned checkout",
			zap.String("holder_ref", event.Payload.HolderRef),
			zap.Int("reservations", released),
		)
	}
}

// temporary reports ledger failures that may clear on their own.
func temporary(err error) bool {
	return errors.Is(err, stock.ErrContention) || errors.Is(err, stock.ErrRepositoryUnavailable)
}

// withRetry reruns op on temporary failures with doubling delays. The
// message offset is already committed, so giving up early loses the event.
func (l *PaymentListener) withRetry(ctx context.Context, op func() error) error {
	delay := l.retryBase
	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil || !temporary(err) || attempt >= handleAttempts {
			return err
		}
		l.logger.Warn("Temporary ledger failure, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
		delay *= 2
	}
}
