package channel

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"
)

// Handler consumes one inbound event. Handlers run on the read pump
// goroutine, in delivery order.
type Handler func(payload json.RawMessage)

// Dispatcher demultiplexes inbound envelopes to exactly one handler per
// event name. One handler per name keeps event ownership disjoint
// across subsystems; a second Register for the same name is an error,
// not a silent overwrite.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[EventType]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[EventType]Handler)}
}

func (d *Dispatcher) Register(ev EventType, h Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.handlers[ev]; ok {
		return ErrDuplicateHandler
	}
	d.handlers[ev] = h
	return nil
}

func (d *Dispatcher) Unregister(ev EventType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, ev)
}

func (d *Dispatcher) dispatch(env Envelope) {
	d.mu.RLock()
	h, ok := d.handlers[env.Type]
	d.mu.RUnlock()
	if !ok {
		log.Warn().Str("module", "channel").Str("type", string(env.Type)).Msg("unknown event")
		return
	}
	h(env.Payload)
}
