package audit

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is the subject audit events are published on when none is
// configured.
const DefaultSubject = "authcore.audit"

// Publisher is the subset of *nats.Conn used by [NATSSink].
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes each event as JSON on a NATS subject. Publish errors
// are reported to OnError and otherwise dropped.
type NATSSink struct {
	pub     Publisher
	subject string
	OnError func(error)
}

// NewNATSSink wraps pub. An empty subject means DefaultSubject.
func NewNATSSink(pub Publisher, subject string) (*NATSSink, error) {
	if pub == nil {
		return nil, errors.New("nil nats publisher")
	}
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSSink{pub: pub, subject: subject}, nil
}

// ConnectNATS dials url and returns the connection for use with [NewNATSSink].
func ConnectNATS(url string, opts ...nats.Option) (*nats.Conn, error) {
	opts = append([]nats.Option{nats.Name("authcore-audit")}, opts...)
	return nats.Connect(url, opts...)
}

func (s *NATSSink) Emit(_ context.Context, event Event) {
	data, err := json.Marshal(event)
	if err == nil {
		err = s.pub.Publish(s.subject, data)
	}
	if err != nil && s.OnError != nil {
		s.OnError(err)
	}
}
