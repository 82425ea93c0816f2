package audit

import (
	"context"

	"github.com/rs/zerolog"
)

// ZerologSink writes audit events as structured log lines. Failed events are
// logged at warn level.
type ZerologSink struct {
	logger zerolog.Logger
}

func NewZerologSink(logger zerolog.Logger) *ZerologSink {
	return &ZerologSink{logger: logger.With().Str("component", "audit").Logger()}
}

func (s *ZerologSink) Emit(_ context.Context, event Event) {
	e := s.logger.Info()
	if !event.Success {
		e = s.logger.Warn()
	}

	e = e.Str("audit_id", event.ID).
		Str("event", event.EventType).
		Bool("success", event.Success).
		Time("at", event.Timestamp)
	if event.UserID != "" {
		e = e.Str("user_id", event.UserID)
	}
	if event.SessionID != "" {
		e = e.Str("session", shortID(event.SessionID))
	}
	if event.IP != "" {
		e = e.Str("ip", event.IP)
	}
	if event.Error != "" {
		e = e.Str("code", event.Error)
	}
	if len(event.Metadata) > 0 {
		dict := zerolog.Dict()
		for k, v := range event.Metadata {
			dict = dict.Str(k, v)
		}
		e = e.Dict("meta", dict)
	}
	e.Msg("audit")
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
