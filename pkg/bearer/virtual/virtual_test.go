package virtual

import (
	"sync"
	"testing"

	"github.com/samsamfire/meshltl/pkg/bearer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pduReceiver struct {
	mu   sync.Mutex
	pdus []bearer.PDU
}

func (r *pduReceiver) Handle(pdu bearer.PDU) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pdus = append(r.pdus, pdu)
}

func newBus(t *testing.T, channel string) *Bus {
	t.Helper()
	b, err := New(channel)
	require.NoError(t, err)
	bus, ok := b.(*Bus)
	require.True(t, ok)
	require.NoError(t, bus.Connect())
	return bus
}

func TestSendAndSubscribe(t *testing.T) {
	a := newBus(t, "test-channel-1")
	b := newBus(t, "test-channel-1")
	defer a.Disconnect()
	defer b.Disconnect()

	var recv pduReceiver
	require.NoError(t, b.Subscribe(&recv))

	for i := 0; i < 10; i++ {
		pdu := bearer.PDU{Payload: []byte{byte(i)}, Src: 1, Dst: 2}
		require.NoError(t, a.Send(pdu))
	}

	recv.mu.Lock()
	defer recv.mu.Unlock()
	require.Len(t, recv.pdus, 10)
	for i, pdu := range recv.pdus {
		assert.EqualValues(t, i, pdu.Payload[0])
		assert.EqualValues(t, 1, pdu.Src)
	}
}

func TestSendDoesNotLoopBackToSender(t *testing.T) {
	a := newBus(t, "test-channel-2")
	defer a.Disconnect()

	var recv pduReceiver
	require.NoError(t, a.Subscribe(&recv))
	require.NoError(t, a.Send(bearer.PDU{Payload: []byte("hello")}))

	recv.mu.Lock()
	defer recv.mu.Unlock()
	assert.Empty(t, recv.pdus, "a bus never receives its own broadcast")
}

func TestDifferentChannelsAreIsolated(t *testing.T) {
	a := newBus(t, "channel-a")
	b := newBus(t, "channel-b")
	defer a.Disconnect()
	defer b.Disconnect()

	var recv pduReceiver
	require.NoError(t, b.Subscribe(&recv))
	require.NoError(t, a.Send(bearer.PDU{Payload: []byte("hello")}))

	recv.mu.Lock()
	defer recv.mu.Unlock()
	assert.Empty(t, recv.pdus, "buses on different channel names must not share a hub")
}

func TestDisconnectStopsDelivery(t *testing.T) {
	a := newBus(t, "channel-disconnect")
	b := newBus(t, "channel-disconnect")
	defer a.Disconnect()

	var recv pduReceiver
	require.NoError(t, b.Subscribe(&recv))
	require.NoError(t, b.Disconnect())
	require.NoError(t, a.Send(bearer.PDU{Payload: []byte("hello")}))

	recv.mu.Lock()
	defer recv.mu.Unlock()
	assert.Empty(t, recv.pdus, "a disconnected bus must not keep receiving")
}

func TestNewRegistersVirtualKind(t *testing.T) {
	b, err := bearer.New("virtual", "registry-check-channel")
	require.NoError(t, err)
	require.NotNil(t, b)
}
