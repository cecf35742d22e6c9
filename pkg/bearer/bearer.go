// Package bearer defines the transport abstraction that carries framed
// lower-transport PDUs between nodes, and a small plugin registry so a
// concrete bearer (virtual, advertising) can be selected by name at
// runtime.
package bearer

import "fmt"

// PDU is one framed lower-transport PDU plus the envelope fields a bearer
// either carries on the wire itself (advertising) or must be told out of
// band (virtual, for testing).
type PDU struct {
	Payload []byte
	Src     uint16
	Dst     uint16
	TTL     uint8
	Seq     uint32
	Ctl     bool // true when Payload is a lower-transport control PDU
}

// Listener receives PDUs arriving off a Bearer.
type Listener interface {
	Handle(pdu PDU)
}

// Bearer is a mesh transport carrying framed PDUs between nodes. It mirrors
// the CAN bus abstraction it is grounded on: connect/disconnect bracket the
// underlying link, Send hands one PDU to the medium, Subscribe registers
// the single listener driven by inbound traffic.
type Bearer interface {
	Connect(...any) error
	Disconnect() error
	Send(pdu PDU) error
	Subscribe(listener Listener) error
}

// NewBearerFunc constructs a Bearer for one channel identifier (a virtual
// bus name, a BLE device path, etc.), the same shape as the CAN registry's
// NewInterfaceFunc.
type NewBearerFunc func(channel string) (Bearer, error)

var registry = make(map[string]NewBearerFunc)

// Register adds a bearer constructor under kind, callable from a plugin's
// init(). Re-registering the same kind overwrites the previous entry,
// which is convenient for tests that swap in a fake bearer.
func Register(kind string, constructor NewBearerFunc) {
	registry[kind] = constructor
}

// New builds a Bearer of the named kind for channel. Supported kinds are
// registered by the virtual and advertising subpackages' init() functions.
func New(kind string, channel string) (Bearer, error) {
	constructor, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("unsupported bearer kind: %v", kind)
	}
	return constructor(channel)
}
