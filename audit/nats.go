package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is the subject prefix for published audit events.
// The event kind is appended, e.g. "loom.audit.dependency_added".
const DefaultSubjectPrefix = "loom.audit"

// Publisher records events by publishing them to NATS. Consumers
// (inbox fan-out, real-time broadcast) subscribe to loom.audit.>.
type Publisher struct {
	nc     *nats.Conn
	prefix string
}

// NewPublisher creates a Publisher on the given connection. An empty
// prefix falls back to DefaultSubjectPrefix.
func NewPublisher(nc *nats.Conn, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Publisher{nc: nc, prefix: prefix}
}

// Record publishes the event. A nil connection is a no-op so callers
// can run without NATS configured.
func (p *Publisher) Record(_ context.Context, event Event) error {
	if p == nil || p.nc == nil {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", p.prefix, event.Kind)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish audit event: %w", err)
	}
	return nil
}
