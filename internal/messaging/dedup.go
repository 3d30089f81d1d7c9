package messaging

import (
	"sync"
	"time"
)

// DefaultDedupWindow is how long inbound message IDs are remembered.
const DefaultDedupWindow = time.Hour

// dedupRecord tracks one inbound message ID.
type dedupRecord struct {
	userID     string
	receivedAt time.Time
}

// InboundDedup remembers inbound message IDs so transport redeliveries are
// handled once.
type InboundDedup struct {
	mu   sync.Mutex
	seen map[string]dedupRecord
	now  func() time.Time
}

// NewInboundDedup creates an empty InboundDedup.
func NewInboundDedup() *InboundDedup {
	return &InboundDedup{seen: make(map[string]dedupRecord), now: time.Now}
}

// RecordInbound stores messageID and reports whether it was new. Empty IDs
// are never treated as duplicates.
func (d *InboundDedup) RecordInbound(messageID, userID string) bool {
	if messageID == "" {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[messageID]; ok {
		return false
	}
	d.seen[messageID] = dedupRecord{userID: userID, receivedAt: d.now()}
	return true
}

// Prune forgets IDs received before cutoff and returns how many were dropped.
func (d *InboundDedup) Prune(cutoff time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	dropped := 0
	for id, rec := range d.seen {
		if rec.receivedAt.Before(cutoff) {
			delete(d.seen, id)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of remembered IDs.
func (d *InboundDedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
