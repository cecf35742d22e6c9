package ltl

import (
	"log/slog"
	"time"
)

// reassembler holds the access-direction and control-direction in-flight
// slots and drives them against the shared SeqAuth Store and timer queue.
// There is exactly one slot per direction per source address at a time: a
// newer seq_auth from the same src evicts whatever was there.
type reassembler struct {
	logger    *slog.Logger
	seqAuth   *SeqAuthStore
	telemetry *Telemetry
	timers    *timers
	callbacks Callbacks

	access  map[Address]*blockAckEntry
	control map[Address]*blockAckEntry
}

func newReassembler(seqAuth *SeqAuthStore, telemetry *Telemetry, timers *timers, callbacks Callbacks, logger *slog.Logger) *reassembler {
	return &reassembler{
		logger:    logger,
		seqAuth:   seqAuth,
		telemetry: telemetry,
		timers:    timers,
		callbacks: callbacks,
		access:    make(map[Address]*blockAckEntry),
		control:   make(map[Address]*blockAckEntry),
	}
}

func (r *reassembler) slotFor(isAccess bool) map[Address]*blockAckEntry {
	if isAccess {
		return r.access
	}
	return r.control
}

func incompleteKindFor(isAccess bool) timerKind {
	if isAccess {
		return timerIncompleteAccess
	}
	return timerIncompleteControl
}

func blockAckKindFor(isAccess bool) timerKind {
	if isAccess {
		return timerBlockAckAccess
	}
	return timerBlockAckControl
}

// segmentArgs carries everything decoded from one inbound segment PDU,
// independent of whether it is access or control.
type segmentArgs struct {
	isAccess bool
	src, dst Address
	ttl      uint8
	seqAuth  SeqAuth
	seqZero  uint16
	segO     uint8
	segN     uint8
	akf      bool
	aid      uint8
	opcode   uint8
	szmic    bool
	payload  []byte
	now      time.Time
}

// handleSegment implements the inbound access/control segment path for one
// arriving segment. It returns nothing: when this segment completes the
// transfer, the reassembled payload is handed to the delivery callback.
func (r *reassembler) handleSegment(a segmentArgs, tx NetworkTx) {
	slots := r.slotFor(a.isAccess)
	verdict := r.seqAuth.Check(a.src, a.seqAuth)

	switch verdict {
	case SeqAuthReplay:
		r.telemetry.record(a.src, DropReplay)
		r.logger.Debug("dropping replayed segment", "src", a.src, "seq_auth", a.seqAuth)
		return

	case SeqAuthAccept:
		// Evict whatever was there for this src and start fresh.
		if old, ok := slots[a.src]; ok {
			r.timers.cancel(old.incompleteKey)
			r.timers.cancel(old.blockAckKey)
		}
		entry := newBlockAckEntry(a.src, a.dst, a.seqAuth, a.seqZero, a.segN, a.ttl)
		entry.isAccess = a.isAccess
		entry.akf, entry.aid, entry.szmic, entry.opcode = a.akf, a.aid, a.szmic, a.opcode
		entry.incompleteKey = timerKey{src: a.src, kind: incompleteKindFor(a.isAccess)}
		entry.blockAckKey = timerKey{src: a.src, kind: blockAckKindFor(a.isAccess)}
		slots[a.src] = entry
		r.seqAuth.Commit(a.src, a.seqAuth)

		entry.insert(a.segO, a.payload)
		r.timers.schedule(entry.incompleteKey, a.now.Add(IncompleteTimeout))
		if a.dst.IsUnicast() {
			r.timers.schedule(entry.blockAckKey, a.now.Add(BlockAckTimeout(a.ttl)))
			entry.blockAckArmed = true
		}
		r.finishOrRearm(entry, a, tx)

	case SeqAuthDuplicateSameSeqAuth:
		entry, ok := slots[a.src]
		if !ok || entry.seqAuth != a.seqAuth {
			// Slot already destroyed (completed/expired): drop, do nothing.
			r.telemetry.record(a.src, DropDuplicateSegment)
			return
		}
		if entry.segments[a.segO] != nil {
			r.telemetry.record(a.src, DropDuplicateSegment)
			return
		}
		entry.insert(a.segO, a.payload)
		r.finishOrRearm(entry, a, tx)
	}
}

// finishOrRearm either completes the
// transfer (cancel incomplete timer, ack if unicast, deliver) or restart
// the incomplete timer and leave/arm the block-ack timer.
func (r *reassembler) finishOrRearm(entry *blockAckEntry, a segmentArgs, tx NetworkTx) {
	slots := r.slotFor(a.isAccess)
	if entry.complete() {
		r.timers.cancel(entry.incompleteKey)
		if entry.dst.IsUnicast() {
			r.timers.cancel(entry.blockAckKey)
			r.sendAck(entry, tx)
		}
		delete(slots, entry.src)
		r.deliver(entry)
		return
	}
	r.timers.schedule(entry.incompleteKey, a.now.Add(IncompleteTimeout))
	if entry.dst.IsUnicast() && !entry.blockAckArmed {
		r.timers.schedule(entry.blockAckKey, a.now.Add(BlockAckTimeout(entry.ttl)))
		entry.blockAckArmed = true
	}
}

func (r *reassembler) sendAck(entry *blockAckEntry, tx NetworkTx) {
	ackPayload, err := EncodeSegmentAck(false, entry.seqZero, entry.blockAck)
	if err != nil {
		return
	}
	// SEG=0 with the reserved opcode 0x00; EncodeUnsegmentedControl rejects
	// this opcode, so the header byte is framed directly.
	header := byte(SegmentAckOpcode)
	pdu := make([]byte, 0, 1+len(ackPayload))
	pdu = append(pdu, header)
	pdu = append(pdu, ackPayload[:]...)
	entry.ackSent = true
	if tx != nil {
		tx.Send(pdu, entry.src, true)
	}
	r.callbacks.segmentAckRequired(pdu)
}

func (r *reassembler) deliver(entry *blockAckEntry) {
	payload := entry.reassemble()
	if entry.isControlEntry() {
		r.callbacks.controlDelivered(ControlMessage{
			Src: entry.src, Dst: entry.dst, Opcode: entry.opcode, Payload: payload,
		})
		return
	}
	r.callbacks.accessDelivered(AccessMessage{
		Src: entry.src, Dst: entry.dst, AKF: entry.akf, AID: entry.aid,
		SZMIC: entry.szmic, Seq: entry.seqAuth.Seq(), Payload: payload,
	})
}

// expireIncomplete handles the Incomplete Timer firing: discard
// the slot and notify the host; no ack is ever emitted here.
func (r *reassembler) expireIncomplete(isAccess bool, src Address) {
	slots := r.slotFor(isAccess)
	if _, ok := slots[src]; !ok {
		return
	}
	entry := slots[src]
	r.timers.cancel(entry.blockAckKey)
	delete(slots, src)
	r.telemetry.record(src, DropIncompleteTimeout)
	r.logger.Info("incomplete timer expired, discarding reassembly slot", "src", src)
	r.callbacks.incompleteTimerExpired(src)
}

// expireBlockAck handles the Block-Ack Timer firing: send the
// current partial BlockAck as an ack, without completing or destroying
// the slot.
func (r *reassembler) expireBlockAck(isAccess bool, src Address, tx NetworkTx) {
	slots := r.slotFor(isAccess)
	entry, ok := slots[src]
	if !ok {
		return
	}
	entry.blockAckArmed = false
	if entry.dst.IsUnicast() {
		r.sendAck(entry, tx)
	}
}
