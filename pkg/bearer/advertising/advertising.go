// Package advertising implements a bearer.Bearer on top of Bluetooth LE
// advertising, the same way a real Mesh Profile "Advertising Bearer" rides
// non-connectable ADV_NONCONN_IND events. Each outbound PDU becomes one
// manufacturer-data advertisement; each inbound PDU is recovered from a
// passive scan.
package advertising

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/currantlabs/ble"
	"github.com/currantlabs/ble/linux"
	"github.com/pkg/errors"

	"github.com/samsamfire/meshltl/pkg/bearer"
)

func init() {
	bearer.Register("advertising", New)
}

// meshCompanyID is the company ID Send tags its manufacturer-data frames
// with. 0xFFFF is reserved by the Bluetooth SIG for internal use and is
// never assigned to a real company. The scan handler does not check it.
const meshCompanyID = 0xFFFF

// advertiseWindow is how long one outbound PDU stays on the air before
// Send returns. The Mesh Profile itself leaves this to the implementation;
// a few advertising intervals is enough for nearby scanners to catch it.
const advertiseWindow = 100 * time.Millisecond

// Bus is a bearer.Bearer backed by the host's default Bluetooth LE HCI
// controller.
type Bus struct {
	device   ble.Device
	listener bearer.Listener
	cancel   context.CancelFunc
}

// New constructs an advertising bearer. channel is accepted for the
// registry's signature but not used: Connect opens the default HCI device,
// whatever channel names. The device is not brought up until Connect is
// called, keeping construction and device bring-up separate.
func New(channel string) (bearer.Bearer, error) {
	return &Bus{}, nil
}

func (b *Bus) Connect(...any) error {
	d, err := linux.NewDevice()
	if err != nil {
		return errors.Wrap(err, "open hci device")
	}
	b.device = d
	ble.SetDefaultDevice(d)
	return nil
}

func (b *Bus) Disconnect() error {
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	if b.device == nil {
		return nil
	}
	err := b.device.Stop()
	b.device = nil
	return err
}

// Send broadcasts pdu as one manufacturer-data advertisement for
// advertiseWindow before returning. The envelope fields (Src, Dst, TTL,
// Seq, Ctl) are packed ahead of Payload so a listening Bus can recover a
// full bearer.PDU on receipt.
func (b *Bus) Send(pdu bearer.PDU) error {
	frame := encodeFrame(pdu)
	ctx, cancel := context.WithTimeout(context.Background(), advertiseWindow)
	defer cancel()
	err := ble.AdvertiseMfgData(ctx, meshCompanyID, frame)
	if err != nil && errors.Cause(err) != context.DeadlineExceeded {
		return errors.Wrap(err, "advertise mesh pdu")
	}
	return nil
}

// Subscribe starts a passive scan in the background; every advertisement
// whose manufacturer data is at least 10 bytes long is decoded and handed
// to listener, without checking the company ID. The scan runs until
// Disconnect cancels it.
func (b *Bus) Subscribe(listener bearer.Listener) error {
	b.listener = listener
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	go func() {
		_ = ble.Scan(ctx, true, b.onAdvertisement, nil)
	}()
	return nil
}

func (b *Bus) onAdvertisement(a ble.Advertisement) {
	data := a.ManufacturerData()
	pdu, ok := decodeFrame(data)
	if !ok || b.listener == nil {
		return
	}
	b.listener.Handle(pdu)
}

// encodeFrame/decodeFrame lay out the bearer-level envelope the real
// Mesh Profile carries in the Network PDU, which an advertising-only
// transport has nowhere else to put: 2 bytes company ID (stripped by the
// controller before ManufacturerData() is even called, kept here only to
// document the wire shape), 2 bytes Src, 2 bytes Dst, 1 byte TTL, 4 bytes
// Seq, 1 byte flags (bit0 = Ctl), then Payload.
func encodeFrame(pdu bearer.PDU) []byte {
	out := make([]byte, 10, 10+len(pdu.Payload))
	binary.BigEndian.PutUint16(out[0:2], pdu.Src)
	binary.BigEndian.PutUint16(out[2:4], pdu.Dst)
	out[4] = pdu.TTL
	binary.BigEndian.PutUint32(out[5:9], pdu.Seq)
	if pdu.Ctl {
		out[9] = 1
	}
	return append(out, pdu.Payload...)
}

func decodeFrame(data []byte) (bearer.PDU, bool) {
	if len(data) < 10 {
		return bearer.PDU{}, false
	}
	return bearer.PDU{
		Src:     binary.BigEndian.Uint16(data[0:2]),
		Dst:     binary.BigEndian.Uint16(data[2:4]),
		TTL:     data[4],
		Seq:     binary.BigEndian.Uint32(data[5:9]),
		Ctl:     data[9]&0x01 != 0,
		Payload: append([]byte(nil), data[10:]...),
	}, true
}
