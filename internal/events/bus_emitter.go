package events

import (
	"encoding/json"
	"fmt"
	"sync"

	"p2pswap/internal/logging"
	"p2pswap/internal/messaging"
)

// Envelope is the wire form of a published event.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// BusEmitter publishes events as JSON on <prefix>.<EventType>.
type BusEmitter struct {
	bus    messaging.Bus
	prefix string
	logger logging.Logger
}

func NewBusEmitter(bus messaging.Bus, prefix string, logger logging.Logger) *BusEmitter {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if prefix == "" {
		prefix = "p2pswap"
	}
	return &BusEmitter{bus: bus, prefix: prefix, logger: logger}
}

func (e *BusEmitter) Subject(eventType string) string {
	return fmt.Sprintf("%s.%s", e.prefix, eventType)
}

// Emit never fails the caller: the operation has already committed.
func (e *BusEmitter) Emit(ev Event) {
	data, err := Encode(ev)
	if err != nil {
		e.logger.Errorf("Failed to encode %s event: %v", ev.EventType(), err)
		return
	}
	if err := e.bus.Publish(e.Subject(ev.EventType()), data); err != nil {
		e.logger.Warnf("Failed to publish %s event: %v", ev.EventType(), err)
	}
}

// Encode wraps ev in an Envelope.
func Encode(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: ev.EventType(), Data: data})
}

// Multi fans out to several emitters in order.
type Multi []Emitter

func (m Multi) Emit(ev Event) {
	for _, e := range m {
		e.Emit(ev)
	}
}

// Recorder keeps emitted events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types lists the recorded event types in emission order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.EventType()
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
