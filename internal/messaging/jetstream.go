package messaging

import (
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	EventsStream  = "OPS_EVENTS"
	SubjectPrefix = "ops.event."
)

// Subject maps a push channel event name such as "order:status_changed" onto
// its NATS subject "ops.event.order.status_changed".
func Subject(eventName string) string {
	return SubjectPrefix + strings.ReplaceAll(eventName, ":", ".")
}

// EventName is the inverse of Subject.
func EventName(subject string) string {
	rest := strings.TrimPrefix(subject, SubjectPrefix)
	if rest == subject {
		return ""
	}
	idx := strings.Index(rest, ".")
	if idx < 0 {
		return rest
	}
	return rest[:idx] + ":" + rest[idx+1:]
}

// EnsureStreams creates (or validates) the stream backing ops.event.>.
// Events are short lived: they only need to survive a client reconnect.
func EnsureStreams(js nats.JetStreamContext) error {
	if _, err := js.StreamInfo(EventsStream); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return err
		}
		if _, addErr := js.AddStream(&nats.StreamConfig{
			Name:      EventsStream,
			Subjects:  []string{SubjectPrefix + ">"},
			Retention: nats.LimitsPolicy,
			Storage:   nats.FileStorage,
			MaxAge:    24 * time.Hour,
			Replicas:  1,
		}); addErr != nil {
			return addErr
		}
	}
	return nil
}
