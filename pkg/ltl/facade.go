package ltl

import (
	"log/slog"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Facade is the Lower Transport Layer's single entry point: sending and
// receiving access/control messages and driving timers, wired to the
// surrounding ports and callbacks. It owns no thread and performs no
// blocking I/O; the host decides when Tick runs.
type Facade struct {
	self Address

	logger *slog.Logger // inbound/reassembly-facing logging

	mu        sync.Mutex
	tx        NetworkTx
	clock     Clock
	seqNum    SeqNumSource
	ivIndex   IvIndex
	callbacks Callbacks

	seqAuth   *SeqAuthStore
	telemetry *Telemetry
	timers    *timers
	rx        *reassembler
	seg       *segmenter // outbound/segmentation-facing engine
}

// NewFacade constructs a Facade for a node whose own mesh address is self.
func NewFacade(self Address, tx NetworkTx, clock Clock, seqNum SeqNumSource, ivIndex IvIndex, callbacks Callbacks, logger *slog.Logger) *Facade {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("service", "[LTL]")
	t := newTimers()
	seqAuthStore := NewSeqAuthStore()
	telemetry := NewTelemetry()
	return &Facade{
		self:      self,
		logger:    logger,
		tx:        tx,
		clock:     clock,
		seqNum:    seqNum,
		ivIndex:   ivIndex,
		callbacks: callbacks,
		seqAuth:   seqAuthStore,
		telemetry: telemetry,
		timers:    t,
		rx:        newReassembler(seqAuthStore, telemetry, t, callbacks, logger),
		seg:       newSegmenter(log.WithField("service", "[LTL]").Logger),
	}
}

// Telemetry exposes the drop-reason counters for host-side observability.
func (f *Facade) Telemetry() *Telemetry { return f.telemetry }

// SeqAuthStore exposes the replay-protection store, e.g. for a host-owned
// persistence port that snapshots (src, seq_auth) commits.
func (f *Facade) SeqAuthStore() *SeqAuthStore { return f.seqAuth }

// SendAccess frames an outbound access payload into one or more
// LowerSegments, transmits them, and returns the segments sent.
func (f *Facade) SendAccess(dst Address, payload UpperPayload, akf bool, aid uint8, szmic bool) ([]LowerSegment, error) {
	if len(payload) > MaxAccessPayload {
		return nil, ErrPayloadTooLarge
	}
	f.mu.Lock()
	seq := f.seqNum.Next()
	f.mu.Unlock()
	seqZero := uint16(seq & 0x1FFF)

	segments, err := f.seg.segmentAccess(dst, payload, akf, aid, szmic, seqZero)
	if err != nil {
		return nil, err
	}
	f.transmit(dst, segments)
	return segments, nil
}

// SendControl frames an outbound control payload into one or more
// LowerSegments, transmits them, and returns the segments sent.
func (f *Facade) SendControl(dst Address, opcode uint8, payload UpperPayload) ([]LowerSegment, error) {
	if opcode == SegmentAckOpcode || opcode > 0x7F {
		return nil, ErrInvalidOpcode
	}
	if len(payload) > MaxControlPayload {
		return nil, ErrPayloadTooLarge
	}
	f.mu.Lock()
	seq := f.seqNum.Next()
	f.mu.Unlock()
	seqZero := uint16(seq & 0x1FFF)

	segments, err := f.seg.segmentControl(dst, opcode, payload, seqZero)
	if err != nil {
		return nil, err
	}
	f.transmit(dst, segments)
	return segments, nil
}

func (f *Facade) transmit(dst Address, segments []LowerSegment) {
	for _, seg := range segments {
		pdu := make([]byte, 0, len(seg.Header)+len(seg.Payload))
		pdu = append(pdu, seg.Header...)
		pdu = append(pdu, seg.Payload...)
		if f.tx != nil {
			f.tx.Send(pdu, dst, seg.IsControl)
		}
		f.seg.markSent(dst, seg.SegO)
	}
}

// SegmentsToResend reports which SegO values still need retransmitting to
// dst, diffed against lastBlockAck as passed by the caller. The Facade does
// not retain the BlockAck of an inbound Segment Ack.
func (f *Facade) SegmentsToResend(dst Address, lastBlockAck uint32) ([]uint8, error) {
	return f.seg.segmentsToResend(dst, lastBlockAck)
}

// CancelOutbound cancels any in-flight outbound segmented transfer to dst.
func (f *Facade) CancelOutbound(dst Address) {
	f.seg.cancelOutbound(dst)
}

// InboundPDU carries what the network layer has already de-obfuscated and
// authenticated for one arriving lower-transport PDU: the raw PDU bytes
// plus the envelope fields the LTL core itself does not derive.
type InboundPDU struct {
	Raw       []byte
	Src       Address
	Dst       Address
	TTL       uint8
	Seq       uint32 // this PDU's own 24-bit network sequence number
	IsControl bool // set by the network layer from the outer Network PDU's CTL bit
}

// OnReceive is the single entry point for all inbound traffic. Side
// effects (deliveries, acks) are emitted via the Callbacks and NetworkTx
// ports rather than returned as a sum type, dispatching straight into
// callbacks instead of building a result enum.
//
// Like the real Mesh Profile wire format, a lower-transport PDU's bytes
// alone do not say whether it carries access or control traffic -- that
// comes from the outer Network PDU's CTL bit, which the network layer has
// already stripped off by the time it calls here. pdu.IsControl carries it.
func (f *Facade) OnReceive(pdu InboundPDU) error {
	if len(pdu.Raw) == 0 {
		f.telemetry.record(pdu.Src, DropMalformedHeader)
		return ErrMalformedHeader
	}
	now := f.now()
	b0 := pdu.Raw[0]

	if b0&0x80 == 0 {
		if pdu.IsControl {
			return f.receiveUnsegmentedControl(pdu, b0)
		}
		return f.receiveUnsegmentedAccess(pdu, b0)
	}
	return f.receiveSegmented(pdu, now)
}

func (f *Facade) receiveUnsegmentedControl(pdu InboundPDU, b0 byte) error {
	opcode, err := DecodeUnsegmentedControl(b0)
	if err != nil {
		f.telemetry.record(pdu.Src, DropMalformedHeader)
		return err
	}
	if opcode == SegmentAckOpcode {
		if len(pdu.Raw) != 7 {
			f.telemetry.record(pdu.Src, DropMalformedHeader)
			return ErrMalformedHeader
		}
		var ackPayload [6]byte
		copy(ackPayload[:], pdu.Raw[1:7])
		_, _, blockAck, _ := DecodeSegmentAck(ackPayload)
		f.seg.onSegmentAck(pdu.Src, blockAck)
		return nil
	}
	seqAuth := MakeSeqAuth(f.ivIndex.Current(), pdu.Seq)
	// An unsegmented PDU has no InFlightRx to keep an equal seq_auth alive
	// against, so equal must be dropped exactly like older: only a strictly
	// increasing seq_auth is ever accepted here.
	if verdict := f.seqAuth.Check(pdu.Src, seqAuth); verdict != SeqAuthAccept {
		if verdict == SeqAuthReplay {
			f.telemetry.record(pdu.Src, DropReplay)
		} else {
			f.telemetry.record(pdu.Src, DropDuplicateSegment)
		}
		return nil
	}
	f.seqAuth.Commit(pdu.Src, seqAuth)
	f.callbacks.controlDelivered(ControlMessage{
		Src: pdu.Src, Dst: pdu.Dst, Opcode: opcode,
		Payload: append(UpperPayload(nil), pdu.Raw[1:]...),
	})
	return nil
}

func (f *Facade) receiveUnsegmentedAccess(pdu InboundPDU, b0 byte) error {
	akf, aid, err := DecodeUnsegmentedAccess(b0)
	if err != nil {
		f.telemetry.record(pdu.Src, DropMalformedHeader)
		return err
	}
	seqAuth := MakeSeqAuth(f.ivIndex.Current(), pdu.Seq)
	// An unsegmented PDU has no InFlightRx to keep an equal seq_auth alive
	// against, so equal must be dropped exactly like older: only a strictly
	// increasing seq_auth is ever accepted here.
	if verdict := f.seqAuth.Check(pdu.Src, seqAuth); verdict != SeqAuthAccept {
		if verdict == SeqAuthReplay {
			f.telemetry.record(pdu.Src, DropReplay)
		} else {
			f.telemetry.record(pdu.Src, DropDuplicateSegment)
		}
		return nil
	}
	f.seqAuth.Commit(pdu.Src, seqAuth)
	f.callbacks.accessDelivered(AccessMessage{
		Src: pdu.Src, Dst: pdu.Dst, AKF: akf, AID: aid, Seq: pdu.Seq,
		Payload: append(UpperPayload(nil), pdu.Raw[1:]...),
	})
	return nil
}

func (f *Facade) receiveSegmented(pdu InboundPDU, now time.Time) error {
	if len(pdu.Raw) < 4 {
		f.telemetry.record(pdu.Src, DropMalformedHeader)
		return ErrMalformedHeader
	}
	var hdr [4]byte
	copy(hdr[:], pdu.Raw[:4])

	if pdu.IsControl {
		opcode, seqZero, segO, segN, err := DecodeSegmentedControlHeader(hdr)
		if err != nil {
			f.telemetry.record(pdu.Src, DropMalformedHeader)
			return err
		}
		seqAuth := MakeSeqAuth(f.ivIndex.Current(), reconstructSeq(pdu.Seq, seqZero))
		f.rx.handleSegment(segmentArgs{
			isAccess: false, src: pdu.Src, dst: pdu.Dst, ttl: pdu.TTL,
			seqAuth: seqAuth, seqZero: seqZero, segO: segO, segN: segN,
			opcode: opcode, payload: pdu.Raw[4:], now: now,
		}, f.tx)
		return nil
	}

	akf, aid, szmic, seqZero, segO, segN, err := DecodeSegmentedAccessHeader(hdr)
	if err != nil {
		f.telemetry.record(pdu.Src, DropMalformedHeader)
		return err
	}
	seqAuth := MakeSeqAuth(f.ivIndex.Current(), reconstructSeq(pdu.Seq, seqZero))
	f.rx.handleSegment(segmentArgs{
		isAccess: true, src: pdu.Src, dst: pdu.Dst, ttl: pdu.TTL,
		seqAuth: seqAuth, seqZero: seqZero, segO: segO, segN: segN,
		akf: akf, aid: aid, szmic: szmic, payload: pdu.Raw[4:], now: now,
	}, f.tx)
	return nil
}

// reconstructSeq combines a 13-bit seqZero with the high bits of the
// bearer's current sequence number such that the result is the largest
// value <= current whose low 13 bits equal seqZero.
func reconstructSeq(current uint32, seqZero uint16) uint32 {
	const seqZeroBits = 13
	const mask = uint32(1)<<seqZeroBits - 1
	candidate := (current &^ mask) | uint32(seqZero)
	if candidate > current {
		candidate -= mask + 1
	}
	return candidate
}

func (f *Facade) now() time.Time {
	if f.clock != nil {
		return f.clock.Now()
	}
	return time.Now()
}

// Tick implements tick(now): progresses timers when the host runs its
// single-threaded event loop. At most one ack and at most one
// incomplete-timer notification are emitted per call; any further expired
// timers of the same kind are re-armed to fire on the very next tick so no
// event is ever dropped, only deferred.
func (f *Facade) Tick(now time.Time) {
	fired := f.timers.expired(now)
	ackEmitted := false
	incompleteEmitted := false

	for _, key := range fired {
		switch key.kind {
		case timerIncompleteAccess, timerIncompleteControl:
			if incompleteEmitted {
				f.timers.schedule(key, now)
				continue
			}
			incompleteEmitted = true
			f.rx.expireIncomplete(key.kind == timerIncompleteAccess, key.src)
		case timerBlockAckAccess, timerBlockAckControl:
			if ackEmitted {
				f.timers.schedule(key, now)
				continue
			}
			ackEmitted = true
			f.rx.expireBlockAck(key.kind == timerBlockAckAccess, key.src, f.tx)
		}
	}
}

// NextDeadline reports the earliest pending timer deadline, if any, so a
// host can sleep until it is actually worth calling Tick again.
func (f *Facade) NextDeadline() (time.Time, bool) {
	return f.timers.nextDeadline()
}
