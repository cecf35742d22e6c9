package ltl

import "sync"

// DropReason enumerates why an inbound PDU was silently discarded.
// The core never surfaces these to the host as errors; Telemetry is the
// only place a host can observe them.
type DropReason uint8

const (
	DropMalformedHeader DropReason = iota
	DropReplay
	DropDuplicateSegment
	DropIncompleteTimeout
)

var dropReasonDescription = map[DropReason]string{
	DropMalformedHeader:   "malformed or truncated header",
	DropReplay:            "seq_auth older than last accepted",
	DropDuplicateSegment:  "duplicate segment for current seq_auth",
	DropIncompleteTimeout: "incomplete timer expired before full reassembly",
}

func (r DropReason) String() string {
	if d, ok := dropReasonDescription[r]; ok {
		return d
	}
	return "unknown"
}

// Telemetry counts silent-drop events per peer, so a host can surface them
// without the core ever propagating an inbound failure up the call stack.
type Telemetry struct {
	mu      sync.Mutex
	counts  map[Address]map[DropReason]uint64
}

func NewTelemetry() *Telemetry {
	return &Telemetry{counts: make(map[Address]map[DropReason]uint64)}
}

func (t *Telemetry) record(src Address, reason DropReason) {
	t.mu.Lock()
	defer t.mu.Unlock()
	perPeer, ok := t.counts[src]
	if !ok {
		perPeer = make(map[DropReason]uint64)
		t.counts[src] = perPeer
	}
	perPeer[reason]++
}

// Count returns how many times reason has been recorded for src.
func (t *Telemetry) Count(src Address, reason DropReason) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[src][reason]
}
