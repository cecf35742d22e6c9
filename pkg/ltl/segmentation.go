package ltl

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/samsamfire/meshltl/internal/fifo"
)

// outboundTransfer tracks one in-progress outbound segmented message so a
// later Segment Ack can be matched against it via segmentsToResend and
// cancelOutbound.
type outboundTransfer struct {
	dst      Address
	isAccess bool
	seqZero  uint16
	akf      bool
	aid      uint8
	opcode   uint8
	szmic    bool
	segments []LowerSegment
	sent     []bool
	failed   bool
}

// segmenter splits outbound upper-transport payloads into LowerSegments and
// keeps enough per-peer state to answer SegmentsToResend queries. The
// fifo ring buffer is only a scratch buffer for chunking, so one per call
// is cheap and avoids shared mutable state across peers.
type segmenter struct {
	mu       sync.Mutex
	log      *log.Logger
	outbound map[Address]*outboundTransfer
}

func newSegmenter(logger *log.Logger) *segmenter {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &segmenter{
		log:      logger,
		outbound: make(map[Address]*outboundTransfer),
	}
}

func chunk(payload []byte, maxChunk int) [][]byte {
	f := fifo.NewFifo(len(payload) + 1)
	f.Write(payload)
	var out [][]byte
	for f.GetOccupied() > 0 {
		buf := make([]byte, maxChunk)
		n := f.Read(buf)
		out = append(out, buf[:n])
	}
	return out
}

// segmentAccess splits an outbound access payload into one or more
// LowerSegments, recording outbound state when segmentation is needed.
func (s *segmenter) segmentAccess(dst Address, payload UpperPayload, akf bool, aid uint8, szmic bool, seqZero uint16) ([]LowerSegment, error) {
	if len(payload) > MaxAccessPayload {
		return nil, ErrPayloadTooLarge
	}
	if len(payload) <= 11 {
		hdr, err := EncodeUnsegmentedAccess(akf, aid)
		if err != nil {
			return nil, err
		}
		return []LowerSegment{{Header: []byte{hdr}, Payload: payload, SegO: 0, SegN: 0}}, nil
	}

	chunks := chunk(payload, MaxSegmentPayloadAccess)
	segN := uint8(len(chunks) - 1)
	segments := make([]LowerSegment, len(chunks))
	for i, c := range chunks {
		hdr, err := EncodeSegmentedAccessHeader(akf, aid, szmic, seqZero, uint8(i), segN)
		if err != nil {
			return nil, err
		}
		segments[i] = LowerSegment{Header: hdr[:], Payload: c, SegO: uint8(i), SegN: segN}
	}

	s.mu.Lock()
	s.outbound[dst] = &outboundTransfer{
		dst: dst, isAccess: true, seqZero: seqZero, akf: akf, aid: aid, szmic: szmic,
		segments: segments, sent: make([]bool, len(segments)),
	}
	s.mu.Unlock()
	s.log.WithFields(log.Fields{"dst": dst, "segN": segN}).Debug("segmented access payload")
	return segments, nil
}

// segmentControl splits an outbound control payload into one or more
// LowerSegments, recording outbound state when segmentation is needed.
func (s *segmenter) segmentControl(dst Address, opcode uint8, payload UpperPayload, seqZero uint16) ([]LowerSegment, error) {
	if opcode == SegmentAckOpcode || opcode > 0x7F {
		return nil, ErrInvalidOpcode
	}
	if len(payload) > MaxControlPayload {
		return nil, ErrPayloadTooLarge
	}
	if len(payload) <= 8 {
		hdr, err := EncodeUnsegmentedControl(opcode)
		if err != nil {
			return nil, err
		}
		return []LowerSegment{{Header: []byte{hdr}, Payload: payload, SegO: 0, SegN: 0, IsControl: true}}, nil
	}

	chunks := chunk(payload, MaxSegmentPayloadControl)
	segN := uint8(len(chunks) - 1)
	segments := make([]LowerSegment, len(chunks))
	for i, c := range chunks {
		hdr, err := EncodeSegmentedControlHeader(opcode, seqZero, uint8(i), segN)
		if err != nil {
			return nil, err
		}
		segments[i] = LowerSegment{Header: hdr[:], Payload: c, SegO: uint8(i), SegN: segN, IsControl: true}
	}

	s.mu.Lock()
	s.outbound[dst] = &outboundTransfer{
		dst: dst, isAccess: false, seqZero: seqZero, opcode: opcode,
		segments: segments, sent: make([]bool, len(segments)),
	}
	s.mu.Unlock()
	s.log.WithFields(log.Fields{"dst": dst, "segN": segN}).Debug("segmented control payload")
	return segments, nil
}

// markSent records that segO of the in-flight transfer to dst has been
// handed to NetworkTx. segmentsToResend does not consult this record; it
// diffs against a BlockAck only.
func (s *segmenter) markSent(dst Address, segO uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.outbound[dst]
	if !ok || int(segO) >= len(t.sent) {
		return
	}
	t.sent[segO] = true
}

// onSegmentAck applies an inbound Segment Ack to the outbound retransmission
// state: a BlockAck of 0 cancels the outbound attempt; otherwise the ack
// just updates bookkeeping, segmentsToResend does the diffing.
func (s *segmenter) onSegmentAck(dst Address, blockAck uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.outbound[dst]
	if !ok {
		return
	}
	if blockAck == 0 {
		t.failed = true
		return
	}
	if blockAck == allOnes(len(t.segments)) {
		delete(s.outbound, dst)
	}
}

func allOnes(n int) uint32 {
	if n >= 32 {
		return 0xFFFFFFFF
	}
	return uint32(1)<<uint(n) - 1
}

// segmentsToResend returns the SegO values of the transfer to dst whose bits
// are clear in blockAck, the value the caller passes in. onSegmentAck does
// not store the BlockAck it receives, so the caller supplies it here.
func (s *segmenter) segmentsToResend(dst Address, blockAck uint32) ([]uint8, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.outbound[dst]
	if !ok {
		return nil, ErrUnknownPeer
	}
	if t.failed {
		return nil, nil
	}
	var missing []uint8
	for i := range t.segments {
		if blockAck&(1<<uint(i)) == 0 {
			missing = append(missing, uint8(i))
		}
	}
	return missing, nil
}

// cancelOutbound marks the in-flight outbound attempt to dst failed and
// prevents further segments for that peer.
func (s *segmenter) cancelOutbound(dst Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.outbound[dst]; ok {
		t.failed = true
	}
}
