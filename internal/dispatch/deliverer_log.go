package dispatch

import (
	"context"
	"log/slog"

	"diario/internal/monitor/models"
)

// LogDeliverer writes events to the log instead of a broker. Development
// fallback when no Kafka brokers are configured.
type LogDeliverer struct {
	logger *slog.Logger
}

func NewLogDeliverer(logger *slog.Logger) *LogDeliverer {
	return &LogDeliverer{logger: logger}
}

func (d *LogDeliverer) Deliver(ctx context.Context, event models.PublicationEvent) error {
	d.logger.InfoContext(ctx, "publication event",
		"identity_id", event.IdentityID,
		"natural_key", event.NaturalKey,
		"case_number", event.Payload.CaseNumber,
		"priority", event.Payload.Priority.String(),
		"emitted_at", event.EmittedAt,
	)
	return nil
}
