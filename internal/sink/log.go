package sink

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/alfredjeanlab/fieldship/internal/model"
)

// LogSink writes events to the operational log instead of sending them.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a sink that logs every event at info level.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Send logs each event as JSON. It never fails.
func (s *LogSink) Send(_ context.Context, events []model.Event) error {
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Warn("log sink: unencodable event", "entity", ev.EntityName, "err", err)
			continue
		}
		s.logger.Info("log sink: event",
			"entity", ev.EntityName,
			"event_type", ev.EventType,
			"event", string(data),
		)
	}
	return nil
}
