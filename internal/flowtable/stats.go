package flowtable

import (
	"sync"
	"time"
)

// OwnerRecord attributes a flow to the local process(es) and user
// that own the socket it passed through.
type OwnerRecord struct {
	UID  uint32
	PIDs map[uint32]struct{}
}

func newOwnerRecord(uid uint32, pids ...uint32) *OwnerRecord {
	o := &OwnerRecord{UID: uid, PIDs: make(map[uint32]struct{}, len(pids))}
	for _, p := range pids {
		o.PIDs[p] = struct{}{}
	}
	return o
}

// merge folds additional PIDs into the owner record. UID never
// changes for a key once set, per spec.
func (o *OwnerRecord) merge(pids ...uint32) {
	for _, p := range pids {
		o.PIDs[p] = struct{}{}
	}
}

// FlowStats is the mutable aggregate record for one FlowKey. All
// field mutations happen under mu, which the table's Observe path and
// this type's own methods (snapshot, setOwner) take themselves.
type FlowStats struct {
	mu sync.Mutex

	TransmittedBytes   uint64
	TransmittedPackets uint64
	ReceivedBytes      uint64
	ReceivedPackets    uint64

	InitialTimestamp time.Time
	FinalTimestamp   time.Time

	ProtocolsSeen map[Transport]struct{}
	Direction     Direction
	Owner         *OwnerRecord

	// Index is a monotone insertion ordinal, unique and never reused
	// across the table's lifetime; stable handle for a UI.
	Index uint64
}

// Snapshot is an immutable, race-free copy of a FlowStats suitable for
// handing to readers outside the table's lock.
type Snapshot struct {
	TransmittedBytes   uint64
	TransmittedPackets uint64
	ReceivedBytes      uint64
	ReceivedPackets    uint64
	InitialTimestamp   time.Time
	FinalTimestamp     time.Time
	ProtocolsSeen      []Transport
	Direction          Direction
	Owner              *OwnerRecord
	Index              uint64
}

// snapshot copies the record's fields under lock.
func (s *FlowStats) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	protos := make([]Transport, 0, len(s.ProtocolsSeen))
	for p := range s.ProtocolsSeen {
		protos = append(protos, p)
	}

	var owner *OwnerRecord
	if s.Owner != nil {
		pids := make(map[uint32]struct{}, len(s.Owner.PIDs))
		for p := range s.Owner.PIDs {
			pids[p] = struct{}{}
		}
		owner = &OwnerRecord{UID: s.Owner.UID, PIDs: pids}
	}

	return Snapshot{
		TransmittedBytes:   s.TransmittedBytes,
		TransmittedPackets: s.TransmittedPackets,
		ReceivedBytes:      s.ReceivedBytes,
		ReceivedPackets:    s.ReceivedPackets,
		InitialTimestamp:   s.InitialTimestamp,
		FinalTimestamp:     s.FinalTimestamp,
		ProtocolsSeen:      protos,
		Direction:          s.Direction,
		Owner:              owner,
		Index:              s.Index,
	}
}

// setOwner attaches ownership the first time it is resolved, or folds
// additional PIDs into an existing record. UID is never overwritten.
func (s *FlowStats) setOwner(uid uint32, pids ...uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Owner == nil {
		s.Owner = newOwnerRecord(uid, pids...)
		return
	}
	s.Owner.merge(pids...)
}

func (s *FlowStats) totalBytes() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.TransmittedBytes + s.ReceivedBytes
}

func (s *FlowStats) totalPackets() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.TransmittedPackets + s.ReceivedPackets
}
