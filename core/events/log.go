package events

import "log/slog"

// LogEmitter writes every event to a structured logger. It is meant to sit
// inside a MultiEmitter next to the metrics observer.
type LogEmitter struct {
	logger *slog.Logger
}

func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

func (l *LogEmitter) Emit(evt Event) {
	if l == nil || evt == nil {
		return
	}
	record := evt.Record()
	if record == nil {
		return
	}
	attrs := make([]any, 0, len(record.Attributes)*2)
	for key, value := range record.Attributes {
		attrs = append(attrs, key, value)
	}
	l.logger.Info(record.Type, attrs...)
}
