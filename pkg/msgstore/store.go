// Package msgstore implements the bounded, byte-accounted log buffer at
// the heart of the conversation pipeline. One producer pushes typed log
// messages; any number of late-joining subscribers consume a fused
// history-plus-live stream with a defined truncation policy for history
// and a lag signal for subscribers that fall behind.
package msgstore

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"conduit/pkg/logmsg"
)

// Compile-time tuning constants. The pipeline has no runtime
// configuration; change these here.
const (
	// HistoryBytes caps the total approximate bytes retained in one
	// store's history. Oldest messages are evicted FIFO past the cap.
	HistoryBytes = 100 * 1024 * 1024

	// SubscriberBuffer is the per-subscriber channel capacity. A producer
	// never blocks on a subscriber; overflow drops messages and raises
	// the subscriber's lag count instead.
	SubscriberBuffer = 10_000
)

// Delivery is one item received by a subscriber. Lagged is the number of
// messages dropped for this subscriber immediately before Msg; when it is
// non-zero the subscriber's view has a gap and it should resync via a
// fresh HistoryPlusStream.
type Delivery struct {
	Msg    logmsg.Msg
	Lagged int
}

// MemoryMetrics is a point-in-time snapshot of a store's footprint.
type MemoryMetrics struct {
	TotalMessages    int
	TotalBytes       int
	OldestMessageAge time.Duration
	Subscribers      int
}

type storedMsg struct {
	msg       logmsg.Msg
	bytes     int
	timestamp time.Time
}

type subscriber struct {
	ch      chan Delivery
	dropped int // guarded by Store.mu
}

// Store is a bounded ring of typed log messages with multi-subscriber
// broadcast. Create one per logical stream (one per executor run, one
// process-wide for DB events) and Close it when the owner is done; Close
// ends every subscriber's stream.
type Store struct {
	mu         sync.Mutex
	history    []storedMsg
	totalBytes int
	subs       map[int]*subscriber
	nextSubID  int
	closed     bool
	log        *zap.Logger
	bytesLimit int
}

// New creates an empty store that logs nowhere.
func New() *Store {
	return NewWithLogger(zap.NewNop())
}

// NewWithLogger creates an empty store using logger for eviction and
// metrics diagnostics.
func NewWithLogger(logger *zap.Logger) *Store {
	return newWithLimit(logger, HistoryBytes)
}

// newWithLimit exists so tests can exercise eviction without pushing
// 100 MiB of data.
func newWithLimit(logger *zap.Logger, limit int) *Store {
	return &Store{
		history:    make([]storedMsg, 0, 32),
		subs:       make(map[int]*subscriber),
		log:        logger,
		bytesLimit: limit,
	}
}

// Push appends msg to history and delivers it to every live subscriber.
// It never blocks and never fails: history past HistoryBytes is evicted
// silently FIFO, and a subscriber with a full channel accrues lag instead
// of stalling the producer. Pushing to a closed store is a no-op.
func (s *Store) Push(msg logmsg.Msg) {
	bytes := msg.ApproxBytes()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	evicted := 0
	for s.totalBytes+bytes > s.bytesLimit && len(s.history) > 0 {
		s.totalBytes -= s.history[0].bytes
		s.history = s.history[1:]
		evicted++
	}
	if evicted > 0 {
		s.log.Info("evicted history past byte cap", zap.Int("evicted", evicted))
	}

	s.history = append(s.history, storedMsg{msg: msg, bytes: bytes, timestamp: time.Now()})
	s.totalBytes += bytes

	for _, sub := range s.subs {
		select {
		case sub.ch <- Delivery{Msg: msg, Lagged: sub.dropped}:
			sub.dropped = 0
		default:
			sub.dropped++
		}
	}
}

// PushStdout pushes a raw stdout chunk.
func (s *Store) PushStdout(chunk string) { s.Push(logmsg.Stdout(chunk)) }

// PushStderr pushes a raw stderr chunk.
func (s *Store) PushStderr(chunk string) { s.Push(logmsg.Stderr(chunk)) }

// PushPatch pushes a serialized JSON-patch document.
func (s *Store) PushPatch(patch json.RawMessage) { s.Push(logmsg.JSONPatch(patch)) }

// PushSessionID pushes an out-of-band session identifier.
func (s *Store) PushSessionID(id string) { s.Push(logmsg.SessionID(id)) }

// PushFinished pushes the terminal marker for stdio-derived streams. The
// store itself keeps accepting pushes afterwards (late patches).
func (s *Store) PushFinished() { s.Push(logmsg.Finished()) }

// GetHistory returns a snapshot copy of all retained messages in
// insertion order.
func (s *Store) GetHistory() []logmsg.Msg {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]logmsg.Msg, len(s.history))
	for i, sm := range s.history {
		out[i] = sm.msg
	}
	return out
}

// Subscription is a live feed of pushes made after Subscribe. Close it to
// unregister; the channel also closes when the store closes.
type Subscription struct {
	store *Store
	id    int
	ch    chan Delivery
}

// C returns the delivery channel.
func (sub *Subscription) C() <-chan Delivery { return sub.ch }

// Close unregisters the subscription and closes its channel. Safe to call
// more than once.
func (sub *Subscription) Close() {
	sub.store.mu.Lock()
	defer sub.store.mu.Unlock()
	sub.store.removeLocked(sub.id)
}

// Subscribe registers a live channel with SubscriberBuffer capacity.
// Subscribing to a closed store returns an already-closed subscription.
func (s *Store) Subscribe() *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribeLocked()
}

func (s *Store) subscribeLocked() *Subscription {
	ch := make(chan Delivery, SubscriberBuffer)
	sub := &Subscription{store: s, id: s.nextSubID, ch: ch}
	if s.closed {
		close(ch)
		return sub
	}
	s.subs[s.nextSubID] = &subscriber{ch: ch}
	s.nextSubID++
	return sub
}

func (s *Store) removeLocked(id int) {
	if sub, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(sub.ch)
	}
}

// Metrics returns current memory statistics.
func (s *Store) Metrics() MemoryMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest time.Duration
	if len(s.history) > 0 {
		oldest = time.Since(s.history[0].timestamp)
	}
	return MemoryMetrics{
		TotalMessages:    len(s.history),
		TotalBytes:       s.totalBytes,
		OldestMessageAge: oldest,
		Subscribers:      len(s.subs),
	}
}

// LogMemoryStats writes current metrics to the store's logger.
func (s *Store) LogMemoryStats() {
	m := s.Metrics()
	s.log.Info("msgstore metrics",
		zap.Int("messages", m.TotalMessages),
		zap.Int("bytes", m.TotalBytes),
		zap.Duration("oldest", m.OldestMessageAge),
		zap.Int("subscribers", m.Subscribers),
	)
}

// CleanupOldMessages evicts from the front of history while the oldest
// message is older than maxAge. It returns the number evicted and may run
// concurrently with pushes.
func (s *Store) CleanupOldMessages(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleaned := 0
	now := time.Now()
	for len(s.history) > 0 && now.Sub(s.history[0].timestamp) > maxAge {
		s.totalBytes -= s.history[0].bytes
		s.history = s.history[1:]
		cleaned++
	}
	if cleaned > 0 {
		s.log.Debug("cleaned up old messages", zap.Int("cleaned", cleaned))
	}
	return cleaned
}

// Close ends every subscriber stream and rejects further pushes. History
// stays readable via GetHistory.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, sub := range s.subs {
		delete(s.subs, id)
		close(sub.ch)
	}
}
