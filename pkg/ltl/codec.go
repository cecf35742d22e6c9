package ltl

import "encoding/binary"

// Codec packs and unpacks the Lower Transport Layer wire headers.
// All functions here are pure; none touch engine state.

// segHeader bundles the fields shared by segmented access and segmented
// control headers (B1-B3 of both layouts are identical except for SZMIC).
type segHeader struct {
	szmic   bool // access only, reserved (0) for control
	seqZero uint16
	segO    uint8
	segN    uint8
}

func encodeSegHeader(h segHeader) [3]byte {
	var b [3]byte
	szmicBit := byte(0)
	if h.szmic {
		szmicBit = 1
	}
	seqZeroHi := byte((h.seqZero >> 6) & 0x7F)
	seqZeroLo := byte(h.seqZero & 0x3F)
	segOHi := byte((h.segO >> 3) & 0x03)
	segOLo := byte(h.segO & 0x07)

	b[0] = szmicBit<<7 | seqZeroHi
	b[1] = seqZeroLo<<2 | segOHi
	b[2] = segOLo<<5 | (h.segN & 0x1F)
	return b
}

func decodeSegHeader(b [3]byte) segHeader {
	szmic := b[0]&0x80 != 0
	seqZeroHi := uint16(b[0] & 0x7F)
	seqZeroLo := uint16((b[1] >> 2) & 0x3F)
	seqZero := seqZeroHi<<6 | seqZeroLo
	segOHi := b[1] & 0x03
	segOLo := (b[2] >> 5) & 0x07
	segO := segOHi<<3 | segOLo
	segN := b[2] & 0x1F
	return segHeader{szmic: szmic, seqZero: seqZero, segO: segO, segN: segN}
}

// EncodeUnsegmentedAccess packs the 1-byte unsegmented access header.
func EncodeUnsegmentedAccess(akf bool, aid uint8) (byte, error) {
	if aid > 0x3F {
		return 0, ErrMalformedHeader
	}
	akfBit := byte(0)
	if akf {
		akfBit = 1
	}
	return akfBit<<6 | aid&0x3F, nil
}

// DecodeUnsegmentedAccess unpacks the 1-byte unsegmented access header.
// It fails if the SEG bit is set, since that marks a segmented PDU.
func DecodeUnsegmentedAccess(b byte) (akf bool, aid uint8, err error) {
	if b&0x80 != 0 {
		return false, 0, ErrMalformedHeader
	}
	return b&0x40 != 0, b & 0x3F, nil
}

// EncodeSegmentedAccessHeader packs the 4-byte segmented access header.
func EncodeSegmentedAccessHeader(akf bool, aid uint8, szmic bool, seqZero uint16, segO, segN uint8) ([4]byte, error) {
	var out [4]byte
	if aid > 0x3F || seqZero > 0x1FFF || segO > MaxSegN || segN > MaxSegN || segO > segN {
		return out, ErrMalformedHeader
	}
	akfBit := byte(0)
	if akf {
		akfBit = 1
	}
	out[0] = 0x80 | akfBit<<6 | aid&0x3F
	rest := encodeSegHeader(segHeader{szmic: szmic, seqZero: seqZero, segO: segO, segN: segN})
	copy(out[1:], rest[:])
	return out, nil
}

// DecodeSegmentedAccessHeader unpacks the 4-byte segmented access header.
func DecodeSegmentedAccessHeader(b [4]byte) (akf bool, aid uint8, szmic bool, seqZero uint16, segO, segN uint8, err error) {
	if b[0]&0x80 == 0 {
		return false, 0, false, 0, 0, 0, ErrMalformedHeader
	}
	akf = b[0]&0x40 != 0
	aid = b[0] & 0x3F
	var rest [3]byte
	copy(rest[:], b[1:])
	h := decodeSegHeader(rest)
	if h.segO > h.segN {
		return false, 0, false, 0, 0, 0, ErrMalformedHeader
	}
	return akf, aid, h.szmic, h.seqZero, h.segO, h.segN, nil
}

// EncodeUnsegmentedControl packs the 1-byte unsegmented control header.
// Opcode 0x00 is reserved for Segment Ack and must never be framed here.
func EncodeUnsegmentedControl(opcode uint8) (byte, error) {
	if opcode == SegmentAckOpcode || opcode > 0x7F {
		return 0, ErrInvalidOpcode
	}
	return opcode & 0x7F, nil
}

// DecodeUnsegmentedControl unpacks the 1-byte unsegmented control header.
// Opcode 0x00 is accepted here: the caller uses it to recognize a Segment
// Ack payload follows.
func DecodeUnsegmentedControl(b byte) (opcode uint8, err error) {
	if b&0x80 != 0 {
		return 0, ErrMalformedHeader
	}
	return b & 0x7F, nil
}

// EncodeSegmentedControlHeader packs the 4-byte segmented control header.
// SZMIC is reserved (always encoded as 0).
func EncodeSegmentedControlHeader(opcode uint8, seqZero uint16, segO, segN uint8) ([4]byte, error) {
	var out [4]byte
	if opcode == SegmentAckOpcode || opcode > 0x7F || seqZero > 0x1FFF || segO > MaxSegN || segN > MaxSegN || segO > segN {
		return out, ErrMalformedHeader
	}
	out[0] = 0x80 | opcode&0x7F
	rest := encodeSegHeader(segHeader{szmic: false, seqZero: seqZero, segO: segO, segN: segN})
	copy(out[1:], rest[:])
	return out, nil
}

// DecodeSegmentedControlHeader unpacks the 4-byte segmented control header.
func DecodeSegmentedControlHeader(b [4]byte) (opcode uint8, seqZero uint16, segO, segN uint8, err error) {
	if b[0]&0x80 == 0 {
		return 0, 0, 0, 0, ErrMalformedHeader
	}
	opcode = b[0] & 0x7F
	var rest [3]byte
	copy(rest[:], b[1:])
	h := decodeSegHeader(rest)
	if h.segO > h.segN {
		return 0, 0, 0, 0, ErrMalformedHeader
	}
	return opcode, h.seqZero, h.segO, h.segN, nil
}

// EncodeSegmentAck packs the 6-byte Segment Acknowledgment payload, carried
// as an unsegmented control PDU with opcode 0x00.
func EncodeSegmentAck(obo bool, seqZero uint16, blockAck uint32) ([6]byte, error) {
	var out [6]byte
	if seqZero > 0x1FFF {
		return out, ErrMalformedHeader
	}
	oboBit := byte(0)
	if obo {
		oboBit = 1
	}
	seqZeroHi := byte((seqZero >> 6) & 0x7F)
	seqZeroLo := byte(seqZero & 0x3F)
	out[0] = oboBit<<7 | seqZeroHi
	out[1] = seqZeroLo << 2 // RFU(2) left as zero
	binary.BigEndian.PutUint32(out[2:], blockAck)
	return out, nil
}

// DecodeSegmentAck unpacks the 6-byte Segment Acknowledgment payload.
func DecodeSegmentAck(b [6]byte) (obo bool, seqZero uint16, blockAck uint32, err error) {
	obo = b[0]&0x80 != 0
	seqZeroHi := uint16(b[0] & 0x7F)
	seqZeroLo := uint16((b[1] >> 2) & 0x3F)
	seqZero = seqZeroHi<<6 | seqZeroLo
	blockAck = binary.BigEndian.Uint32(b[2:])
	return obo, seqZero, blockAck, nil
}
