package meshnet

import (
	"testing"
	"time"

	_ "github.com/samsamfire/meshltl/pkg/bearer/virtual"
	"github.com/samsamfire/meshltl/pkg/ltl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetworkSendAndReceiveOverVirtualBearer(t *testing.T) {
	channel := "meshnet-test-channel"

	delivered := make(chan ltl.AccessMessage, 1)
	b := New(0x0002, ltl.Callbacks{
		OnAccessDelivered: func(msg ltl.AccessMessage) { delivered <- msg },
	}, nil)
	require.NoError(t, b.Connect("virtual", channel))
	defer b.Disconnect()

	a := New(0x0001, ltl.Callbacks{}, nil)
	require.NoError(t, a.Connect("virtual", channel))
	defer a.Disconnect()

	_, err := a.Facade().SendAccess(0x0002, []byte("hello mesh"), true, 0x00, false)
	require.NoError(t, err)

	select {
	case msg := <-delivered:
		assert.Equal(t, ltl.UpperPayload("hello mesh"), msg.Payload)
		assert.EqualValues(t, 0x0001, msg.Src)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestNetworkConnectRejectsUnknownBearerKind(t *testing.T) {
	n := New(0x0001, ltl.Callbacks{}, nil)
	err := n.Connect("does-not-exist", "chan")
	assert.Error(t, err)
}

func TestNetworkSendBeforeConnectIsANoop(t *testing.T) {
	n := New(0x0001, ltl.Callbacks{}, nil)
	assert.NotPanics(t, func() {
		n.Send([]byte{0x00}, ltl.Address(0x0002), false)
	})
}

func TestNetworkDisconnectStopsTickLoop(t *testing.T) {
	n := New(0x0001, ltl.Callbacks{}, nil)
	require.NoError(t, n.Connect("virtual", "meshnet-disconnect-channel"))
	require.NoError(t, n.Disconnect())
}
