package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes protocol events to an slog.Logger.
// Useful for development when you want to see protocol events in console.
type SlogAdapter struct {
	logger *slog.Logger
	level  slog.Level
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given
// slog.Logger at Debug level.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger, level: slog.LevelDebug}
}

// WithLevel returns a copy of the adapter that logs at the given level.
func (a *SlogAdapter) WithLevel(level slog.Level) *SlogAdapter {
	return &SlogAdapter{logger: a.logger, level: level}
}

// Log writes the event to the slog logger.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("connID", event.ConnectionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}
	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote", event.RemoteAddr))
	}

	switch {
	case event.Frame != nil:
		attrs = append(attrs,
			slog.Int("frameSize", event.Frame.Size),
			slog.Bool("truncated", event.Frame.Truncated),
		)
	case event.Message != nil:
		m := event.Message
		attrs = append(attrs,
			slog.Uint64("msgID", uint64(m.MessageID)),
			slog.String("msgType", m.Type.String()),
		)
		if m.Service != nil {
			attrs = append(attrs, slog.String("service", m.Service.String()))
		}
		if m.Reference != "" {
			attrs = append(attrs, slog.String("ref", string(m.Reference)))
		}
		if m.FC != "" {
			attrs = append(attrs, slog.String("fc", string(m.FC)))
		}
		if m.Status != nil {
			attrs = append(attrs, slog.String("status", m.Status.String()))
		}
		if m.ReportID != "" {
			attrs = append(attrs, slog.String("reportID", m.ReportID))
		}
		if m.SeqNum != nil {
			attrs = append(attrs, slog.Uint64("seqNum", uint64(*m.SeqNum)))
		}
		if m.RoundTrip != nil {
			attrs = append(attrs, slog.Duration("roundTrip", *m.RoundTrip))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("oldState", event.StateChange.OldState),
			slog.String("newState", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("errorLayer", event.Error.Layer.String()),
			slog.String("error", event.Error.Message),
			slog.String("errorContext", event.Error.Context),
		)
		if event.Error.Code != nil {
			attrs = append(attrs, slog.Int("errorCode", *event.Error.Code))
		}
	}

	a.logger.LogAttrs(context.Background(), a.level, "protocol", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
