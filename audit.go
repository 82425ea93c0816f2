package authcore

import (
	"io"

	"github.com/rs/zerolog"

	"github.com/pipelinedash/authcore/internal/audit"
)

// AuditEvent is a structured record of a security-relevant operation.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's async dispatcher.
type AuditSink = audit.Sink

// AuditPublisher is the subset of *nats.Conn used by the NATS sink.
type AuditPublisher = audit.Publisher

type NoOpSink = audit.NoOpSink

func NewChannelSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *audit.JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewZerologSink logs audit events through logger.
func NewZerologSink(logger zerolog.Logger) *audit.ZerologSink {
	return audit.NewZerologSink(logger)
}

// NewNATSSink publishes audit events as JSON on subject.
func NewNATSSink(pub AuditPublisher, subject string) (*audit.NATSSink, error) {
	return audit.NewNATSSink(pub, subject)
}

// MultiSink fans events out to several sinks.
func MultiSink(sinks ...AuditSink) AuditSink {
	return audit.MultiSink(sinks)
}
