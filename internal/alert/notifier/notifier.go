package notifier

import (
	"context"
	"encoding/json"

	"github.com/fekuna/omnipos-stock-service/internal/alert/dto"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"go.uber.org/zap"
)

// Publisher is satisfied by *broker.KafkaProducer.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

// KafkaNotifier publishes alert events keyed by item and location so one
// partition sees a given stock level's events in order.
type KafkaNotifier struct {
	publisher Publisher
}

func NewKafkaNotifier(p Publisher) *KafkaNotifier {
	return &KafkaNotifier{publisher: p}
}

func (n *KafkaNotifier) Notify(ctx context.Context, event *dto.AlertEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	key := event.Alert.ItemID + "|" + event.Alert.LocationID
	return n.publisher.Publish(ctx, []byte(key), payload)
}

// LogNotifier writes events to the log when no broker is configured.
type LogNotifier struct {
	logger logger.ZapLogger
}

func NewLogNotifier(log logger.ZapLogger) *LogNotifier {
	return &LogNotifier{logger: log}
}

func (n *LogNotifier) Notify(ctx context.Context, event *dto.AlertEvent) error {
	n.logger.Info("alert event",
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.EventType),
		zap.String("alert_id", event.Alert.ID),
		zap.String("alert_type", string(event.Alert.AlertType)),
		zap.String("status", string(event.Alert.Status)),
		zap.String("item_id", event.Alert.ItemID),
		zap.String("location_id", event.Alert.LocationID),
		zap.Strings("channels", event.Channels),
	)
	return nil
}
