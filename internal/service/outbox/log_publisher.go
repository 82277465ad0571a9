package outbox

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// LogPublisher пишет события в лог. Используется, когда брокер не настроен:
// outbox всё равно вычищается, а события видны в логах.
type LogPublisher struct {
	logger *log.Entry
}

// NewLogPublisher создаёт публикатор в лог.
func NewLogPublisher(logger *log.Entry) *LogPublisher {
	if logger == nil {
		logger = log.WithField("component", "outbox-log-publisher")
	}
	return &LogPublisher{logger: logger}
}

// Publish реализует domain.OutboxPublisher.
func (p *LogPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.logger.WithFields(log.Fields{
		"event_id":       event.ID,
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
	}).Info("outbox event published to log")
	return nil
}
