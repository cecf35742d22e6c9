// Package meshnet wires a ltl.Facade to a bearer.Bearer and drives its
// tick loop. Network is the object an application actually constructs;
// ltl.Facade stays a pure, host-driven core.
package meshnet

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samsamfire/meshltl/pkg/bearer"
	"github.com/samsamfire/meshltl/pkg/ltl"
)

var (
	ErrNotConnected = errors.New("network: bearer not connected")
	ErrNoBearer     = errors.New("network: no bearer configured")
)

// seqCounter is the default ltl.SeqNumSource: an in-memory, process-local
// monotonic counter. A host needing persisted sequence numbers across
// reboots supplies its own ltl.SeqNumSource instead.
type seqCounter struct{ next uint32 }

func (c *seqCounter) Next() uint32 { return atomic.AddUint32(&c.next, 1) - 1 }

// fixedIvIndex is the default ltl.IvIndex: a value fixed at construction.
// A host doing IV Index recovery procedures supplies its own.
type fixedIvIndex struct{ v uint32 }

func (f fixedIvIndex) Current() uint32 { return f.v }

// systemClock is the default ltl.Clock.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Network binds one node's Facade to a bearer and runs its tick loop: a
// thin façade over a bearer plus a background processing goroutine, driven
// off ltl.Facade.NextDeadline instead of a fixed-period ticker, since the
// Lower Transport Layer's own timers are irregular (Incomplete vs
// Block-Ack, per peer).
type Network struct {
	logger *slog.Logger

	mu     sync.Mutex
	bus    bearer.Bearer
	facade *ltl.Facade
	self   uint16

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Network for node address self, with the given
// callbacks wired straight through to the underlying Facade.
func New(self uint16, callbacks ltl.Callbacks, logger *slog.Logger) *Network {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("service", "[NET]", "addr", self)
	n := &Network{logger: logger, self: self}
	n.facade = ltl.NewFacade(ltl.Address(self), n, systemClock{}, &seqCounter{}, fixedIvIndex{v: 1}, callbacks, logger)
	return n
}

// Facade exposes the underlying Lower Transport Layer core, e.g. for a
// host that wants to call SendAccess/SendControl directly rather than
// through a higher-level API this package does not yet provide.
func (n *Network) Facade() *ltl.Facade { return n.facade }

// Connect opens bus (kind, channel as accepted by bearer.New), subscribes
// this Network to it, and starts the background tick loop.
func (n *Network) Connect(kind, channel string) error {
	bus, err := bearer.New(kind, channel)
	if err != nil {
		return err
	}
	if err := bus.Connect(); err != nil {
		return err
	}
	if err := bus.Subscribe(n); err != nil {
		return err
	}

	n.mu.Lock()
	n.bus = bus
	n.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	n.wg.Add(1)
	go n.tickLoop(ctx)
	n.logger.Info("connected", "bearer", kind, "channel", channel)
	return nil
}

// Disconnect stops the tick loop and tears down the bearer.
func (n *Network) Disconnect() error {
	if n.cancel != nil {
		n.cancel()
	}
	n.wg.Wait()
	n.mu.Lock()
	bus := n.bus
	n.bus = nil
	n.mu.Unlock()
	if bus == nil {
		return nil
	}
	return bus.Disconnect()
}

// tickLoop sleeps until the Facade's own next deadline (or a keepalive
// ceiling, in case nothing is pending) instead of polling on a fixed
// period, since Block-Ack and Incomplete timers fire at peer- and
// TTL-dependent intervals rather than a shared cadence.
func (n *Network) tickLoop(ctx context.Context) {
	defer n.wg.Done()
	const idleCeiling = time.Second
	for {
		wait := idleCeiling
		if deadline, ok := n.facade.NextDeadline(); ok {
			if d := time.Until(deadline); d > 0 {
				wait = d
			} else {
				wait = 0
			}
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			n.facade.Tick(time.Now())
		}
	}
}

// Send implements ltl.NetworkTx: it hands a framed PDU to the bearer,
// filling in the envelope fields a real Network PDU header would carry
// (Src, Dst, Ctl) that the bearer needs for routing but the Facade itself
// never stores once a PDU has been handed off.
func (n *Network) Send(pdu []byte, dst ltl.Address, isControl bool) {
	n.mu.Lock()
	bus := n.bus
	n.mu.Unlock()
	if bus == nil {
		return
	}
	_ = bus.Send(bearer.PDU{Payload: pdu, Src: n.self, Dst: uint16(dst), Ctl: isControl})
}

// Handle implements bearer.Listener: it adapts an inbound bearer.PDU into
// an ltl.InboundPDU and feeds it to the Facade.
func (n *Network) Handle(pdu bearer.PDU) {
	err := n.facade.OnReceive(ltl.InboundPDU{
		Raw:       pdu.Payload,
		Src:       ltl.Address(pdu.Src),
		Dst:       ltl.Address(pdu.Dst),
		TTL:       pdu.TTL,
		Seq:       pdu.Seq,
		IsControl: pdu.Ctl,
	})
	if err != nil {
		n.logger.Debug("dropped inbound pdu", "err", err)
	}
}
