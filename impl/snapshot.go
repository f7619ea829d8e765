package impl

import "sync"

// SnapshotList tracks every snapshot a caller currently holds open, kept in
// the order they were taken. Sequence numbers only move forward, so
// insertion order is sequence order: the head of the list is always the
// oldest live read view, which is exactly what compaction needs to decide
// whether an overwritten value or a tombstone is safe to drop.
type SnapshotList struct {
	mu    sync.Mutex
	items []*Snapshot
}

// Snapshot pins a sequence number so reads through it never observe writes
// committed afterward. Holding one back also holds back compaction: data
// newer than the oldest open snapshot can't be garbage-collected.
type Snapshot struct {
	seq  SequenceNumber
	list *SnapshotList
}

func NewSnapshotList() *SnapshotList {
	return &SnapshotList{}
}

func (l *SnapshotList) NewSnapshot(seq SequenceNumber) *Snapshot {
	s := &Snapshot{seq: seq, list: l}
	l.mu.Lock()
	l.items = append(l.items, s)
	l.mu.Unlock()
	return s
}

func (l *SnapshotList) Empty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items) == 0
}

// Oldest returns the longest-held snapshot, or nil if none are open.
func (l *SnapshotList) Oldest() *Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.items) == 0 {
		return nil
	}
	return l.items[0]
}

// OldestSeq returns the sequence number of the longest-held snapshot, or
// ifNone if there isn't one. Checking Empty and calling Oldest separately
// would race against a concurrent Release; this does both under one lock.
func (l *SnapshotList) OldestSeq(ifNone SequenceNumber) SequenceNumber {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.items) == 0 {
		return ifNone
	}
	return l.items[0].seq
}

// Release drops this snapshot. Removal preserves the order of whatever
// remains so Oldest keeps working without a re-sort.
func (s *Snapshot) Release() {
	l := s.list
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, item := range l.items {
		if item == s {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return
		}
	}
}
