package logging

import (
	"go.uber.org/zap"

	"github.com/felixgeelhaar/covreport/internal/domain"
)

// EventLogger publishes domain events as info log entries.
type EventLogger struct {
	logger *zap.Logger
}

// NewEventLogger returns a publisher writing to logger; nil discards events.
func NewEventLogger(logger *zap.Logger) *EventLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventLogger{logger: logger.Named("events")}
}

func (p *EventLogger) Publish(event domain.DomainEvent) error {
	fields := []zap.Field{zap.Time("occurred_at", event.OccurredAt())}
	switch e := event.(type) {
	case domain.ReportMergedEvent:
		fields = append(fields,
			zap.String("commit", e.Commit),
			zap.Int("session", e.SessionID),
			zap.Int("files", e.Files),
			zap.String("coverage", e.Coverage))
	case domain.CarryForwardAppliedEvent:
		fields = append(fields,
			zap.String("commit", e.Commit),
			zap.String("parent", e.Parent),
			zap.Strings("flags", e.Flags),
			zap.Int("sessions", e.Sessions),
			zap.Bool("shifted", e.Shifted))
	case domain.SessionsDeletedEvent:
		fields = append(fields,
			zap.String("commit", e.Commit),
			zap.Ints("sessions", e.SessionIDs),
			zap.Int("files_left", e.FilesLeft))
	}
	p.logger.Info(event.EventType(), fields...)
	return nil
}

func (p *EventLogger) PublishAll(events []domain.DomainEvent) error {
	for _, event := range events {
		if err := p.Publish(event); err != nil {
			return err
		}
	}
	return nil
}
