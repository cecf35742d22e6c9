package ltl

import "time"

// NetworkTx hands a framed lower-transport PDU to the network layer. It is
// infallible from the core's point of view: once accepted, the core
// considers the PDU sent. dst and isControl are passed alongside pdu
// because a real network layer needs the destination address and the CTL
// bit to build the Network PDU header wrapping these bytes (and a bearer
// needs dst for routing); the core itself never inspects either again
// once the PDU has been handed off.
type NetworkTx interface {
	Send(pdu []byte, dst Address, isControl bool)
}

// Clock supplies the current time to the core. The core itself keeps the
// min-heap of deadlines (see timer.go); Clock.Now is consulted whenever an
// operation other than tick needs "now" to arm a new deadline.
type Clock interface {
	Now() time.Time
}

// SeqNumSource hands out this node's own next outbound sequence number,
// monotonically increasing, consumed by the Segmentation Engine.
type SeqNumSource interface {
	Next() uint32
}

// IvIndex reports the network's current IV index.
type IvIndex interface {
	Current() uint32
}

// Callbacks bundles every side effect the core can emit. A nil field is
// simply not invoked.
type Callbacks struct {
	OnAccessDelivered        func(msg AccessMessage)
	OnControlDelivered       func(msg ControlMessage)
	OnIncompleteTimerExpired func(src Address)
	OnSegmentAckRequired     func(pdu []byte)
}

func (c Callbacks) accessDelivered(msg AccessMessage) {
	if c.OnAccessDelivered != nil {
		c.OnAccessDelivered(msg)
	}
}

func (c Callbacks) controlDelivered(msg ControlMessage) {
	if c.OnControlDelivered != nil {
		c.OnControlDelivered(msg)
	}
}

func (c Callbacks) incompleteTimerExpired(src Address) {
	if c.OnIncompleteTimerExpired != nil {
		c.OnIncompleteTimerExpired(src)
	}
}

func (c Callbacks) segmentAckRequired(pdu []byte) {
	if c.OnSegmentAckRequired != nil {
		c.OnSegmentAckRequired(pdu)
	}
}
