// Package virtual implements an in-process bearer.Bearer for tests and
// examples: every node that connects to the same channel name shares one
// in-memory broadcast hub, with no socket or external broker involved. It
// is a deliberately simplified stand-in for a TCP-broker-based virtual bus,
// appropriate here since a test harness never needs the virtual bus to
// survive outside the test process.
package virtual

import (
	"sync"

	"github.com/samsamfire/meshltl/pkg/bearer"
)

func init() {
	bearer.Register("virtual", New)
}

type hub struct {
	mu        sync.Mutex
	listeners map[*Bus]bearer.Listener
}

func (h *hub) subscribe(b *Bus, l bearer.Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners[b] = l
}

func (h *hub) unsubscribe(b *Bus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.listeners, b)
}

func (h *hub) broadcast(from *Bus, pdu bearer.PDU) {
	h.mu.Lock()
	targets := make([]bearer.Listener, 0, len(h.listeners))
	for b, l := range h.listeners {
		if b == from || l == nil {
			continue
		}
		targets = append(targets, l)
	}
	h.mu.Unlock()
	for _, l := range targets {
		l.Handle(pdu)
	}
}

var (
	hubsMu sync.Mutex
	hubs   = make(map[string]*hub)
)

func hubFor(channel string) *hub {
	hubsMu.Lock()
	defer hubsMu.Unlock()
	h, ok := hubs[channel]
	if !ok {
		h = &hub{listeners: make(map[*Bus]bearer.Listener)}
		hubs[channel] = h
	}
	return h
}

// Bus is a bearer.Bearer backed by a named in-process hub.
type Bus struct {
	channel   string
	hub       *hub
	connected bool
}

// New constructs a virtual Bus for channel. Every Bus created with the
// same channel name within one process shares the same broadcast hub.
func New(channel string) (bearer.Bearer, error) {
	return &Bus{channel: channel, hub: hubFor(channel)}, nil
}

func (b *Bus) Connect(...any) error {
	b.connected = true
	return nil
}

func (b *Bus) Disconnect() error {
	b.connected = false
	b.hub.unsubscribe(b)
	return nil
}

func (b *Bus) Send(pdu bearer.PDU) error {
	b.hub.broadcast(b, pdu)
	return nil
}

func (b *Bus) Subscribe(listener bearer.Listener) error {
	b.hub.subscribe(b, listener)
	return nil
}
