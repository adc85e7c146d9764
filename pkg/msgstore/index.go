package msgstore

import (
	"sync/atomic"

	"conduit/pkg/logmsg"
)

// EntryIndexProvider hands out dense, strictly increasing indices for
// conversation-patch paths (/entries/{i}). Bind exactly one provider per
// logical emission context: two providers started against the same store
// at different times will overlap.
type EntryIndexProvider struct {
	next atomic.Int64
}

// NewEntryIndexProvider returns a provider counting from zero.
func NewEntryIndexProvider() *EntryIndexProvider {
	return &EntryIndexProvider{}
}

// StartFrom returns a provider whose first index follows the entries
// already present in the store's history, so a processor attached to a
// partially filled store keeps the index space dense. Each retained
// JSON-patch message holds one entry.
func StartFrom(s *Store) *EntryIndexProvider {
	p := &EntryIndexProvider{}
	count := int64(0)
	for _, msg := range s.GetHistory() {
		if msg.Kind == logmsg.KindJSONPatch {
			count++
		}
	}
	p.next.Store(count)
	return p
}

// Next returns the next index and advances the counter.
func (p *EntryIndexProvider) Next() int {
	return int(p.next.Add(1) - 1)
}

// Current returns the index that the next call to Next will return.
func (p *EntryIndexProvider) Current() int {
	return int(p.next.Load())
}
