package events

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	natslib "github.com/orchestrator/fabric/internal/nats"
)

// natsPublisher is the subset of nats.Client the forwarder needs,
// kept narrow so tests can supply a fake.
type natsPublisher interface {
	Publish(subject string, data []byte) error
}

// NatsForwarder subscribes to a Bus as an "all" listener and republishes
// every event onto NATS so external dashboards/operators can observe
// the fabric without holding an in-process channel. Grounded on the
// teacher's internal/server/nats_bridge.go bridging pattern, run in
// reverse: Bus -> NATS instead of NATS -> Bus.
type NatsForwarder struct {
	bus    *Bus
	client natsPublisher
	ch     <-chan Event
	stopCh chan struct{}
	log    *zap.Logger
}

// NewNatsForwarder subscribes to every event type on bus and forwards
// them to client under subject "events.<type>".
func NewNatsForwarder(bus *Bus, client *natslib.Client, log *zap.Logger) *NatsForwarder {
	if log == nil {
		log = zap.NewNop()
	}
	ch := bus.Subscribe("all", nil)
	return &NatsForwarder{
		bus:    bus,
		client: client,
		ch:     ch,
		stopCh: make(chan struct{}),
		log:    log,
	}
}

// Start begins the forwarding loop in a new goroutine.
func (f *NatsForwarder) Start() {
	go f.run()
}

func (f *NatsForwarder) run() {
	for {
		select {
		case event, ok := <-f.ch:
			if !ok {
				return
			}
			f.forward(event)
		case <-f.stopCh:
			return
		}
	}
}

func (f *NatsForwarder) forward(event Event) {
	envelope := natslib.EventEnvelope{
		ID:        event.ID,
		Type:      string(event.Type),
		Source:    event.Source,
		Target:    event.Target,
		Priority:  string(event.Priority),
		Payload:   event.Payload,
		CreatedAt: event.CreatedAt,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		f.log.Error("failed to marshal event for NATS forwarding", zap.Error(err))
		return
	}
	subject := fmt.Sprintf(natslib.SubjectEventPublish, event.Type)
	if err := f.client.Publish(subject, data); err != nil {
		f.log.Error("failed to forward event to NATS", zap.String("subject", subject), zap.Error(err))
	}
}

// Stop unsubscribes from the bus and ends the forwarding goroutine.
func (f *NatsForwarder) Stop() {
	close(f.stopCh)
	f.bus.Unsubscribe("all", f.ch)
}
