// Package events turns committed database row changes into JSON-patch
// messages on a broadcast store. A SQLite update hook reports each change
// on the engine's connection thread; the service re-materializes the row
// on a goroutine and publishes it so SSE subscribers see live board
// state.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"conduit/pkg/logs"
	"conduit/pkg/msgstore"
	"conduit/pkg/store"
)

const (
	// maxEntryCount is the patch-index ceiling; past it the counter is
	// re-based to cleanupBatchSize. Consumers treat patches as additive
	// writes into a map-like object, so re-based indices overwrite old
	// slots instead of corrupting state.
	maxEntryCount    = 100_000
	cleanupBatchSize = 10_000

	// maxActiveTasks bounds the unreaped hook-task map; crossing it
	// forces a cleanup regardless of the debounce.
	maxActiveTasks      = 1_000
	taskCleanupInterval = 300 * time.Second
	messageMaxAge       = 3600 * time.Second
)

type hookTask struct {
	done chan struct{}
}

func (t *hookTask) finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Service owns the event MsgStore and the bookkeeping around hook tasks.
// Lock order is lastCleanupMu, then activeTasksMu, then entryCountMu;
// every acquirer follows it.
type Service struct {
	db    *store.DB
	store *msgstore.Store
	log   *zap.Logger

	lastCleanupMu sync.Mutex
	lastCleanup   time.Time

	activeTasksMu sync.RWMutex
	activeTasks   map[string]*hookTask

	entryCountMu sync.Mutex
	entryCount   int
}

// NewService creates a service with a fresh event store. Bind the
// database before any writes can fire the hook.
func NewService(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:       msgstore.NewWithLogger(logger.Named("events")),
		log:         logger,
		activeTasks: make(map[string]*hookTask),
	}
}

// Open creates a service, opens the database at path with the service's
// hook installed, and migrates the schema.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Service, *store.DB, error) {
	svc := NewService(logger)
	db, err := store.OpenWithHook(path, svc.Hook())
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	svc.Bind(db)
	return svc, db, nil
}

// Bind attaches the database used for row materialization. The hook
// ignores changes that arrive before Bind.
func (s *Service) Bind(db *store.DB) {
	s.db = db
}

// MsgStore exposes the event broadcast store for SSE subscribers.
func (s *Service) MsgStore() *msgstore.Store {
	return s.store
}

var watchedTables = map[string]struct{}{
	store.TableTasks:              {},
	store.TableTaskAttempts:       {},
	store.TableExecutionProcesses: {},
}

// Hook returns the update-hook callback. It runs on the SQL engine's
// connection thread, so it only filters the table and spawns goroutines.
func (s *Service) Hook() store.HookFunc {
	return func(op store.Op, table string, rowid int64) {
		if _, ok := watchedTables[table]; !ok {
			return
		}
		if s.db == nil {
			return
		}

		task := &hookTask{done: make(chan struct{})}
		s.track(fmt.Sprintf("hook_%s_%d", table, rowid), task)

		go func() {
			defer close(task.done)
			s.handleChange(op, table, rowid)
		}()
		go s.Cleanup(false)
	}
}

func (s *Service) track(key string, task *hookTask) {
	s.activeTasksMu.Lock()
	s.activeTasks[key] = task
	overflow := len(s.activeTasks) > maxActiveTasks
	s.activeTasksMu.Unlock()

	if overflow {
		go s.Cleanup(true)
	}
}

// handleChange materializes the affected row and publishes it as a patch.
// A row already gone by fetch time degrades to its tombstone record; any
// other fetch error is logged and the event is dropped.
func (s *Service) handleChange(op store.Op, table string, rowid int64) {
	ctx := context.Background()

	var rec Record
	var err error
	if op == store.OpDelete {
		rec, err = deletedRecord(table, rowid)
	} else {
		rec, err = s.fetchRecord(ctx, table, rowid)
		if errors.Is(err, store.ErrNotFound) {
			rec, err = deletedRecord(table, rowid)
		}
	}
	if err != nil {
		s.log.Error("materialize row for change event",
			zap.String("table", table), zap.Int64("rowid", rowid), zap.Error(err))
		return
	}

	s.entryCountMu.Lock()
	s.entryCount++
	i := s.entryCount
	s.entryCountMu.Unlock()

	raw, err := logs.AddEntry(i, EventPatch{DBOp: op, Record: rec}).Raw()
	if err != nil {
		s.log.Error("serialize change event", zap.Error(err))
		return
	}
	s.store.PushPatch(raw)
}

func (s *Service) fetchRecord(ctx context.Context, table string, rowid int64) (Record, error) {
	var row any
	var err error
	switch table {
	case store.TableTasks:
		row, err = s.db.FindTaskByRowID(ctx, rowid)
	case store.TableTaskAttempts:
		row, err = s.db.FindTaskAttemptByRowID(ctx, rowid)
	case store.TableExecutionProcesses:
		row, err = s.db.FindExecutionProcessByRowID(ctx, rowid)
	default:
		return Record{}, fmt.Errorf("unwatched table %q", table)
	}
	if err != nil {
		return Record{}, err
	}
	return liveRecord(table, row)
}

// Cleanup reaps finished hook tasks, re-bases the patch counter when it
// exceeds the ceiling, and ages out old broadcast messages. Runs at most
// once per taskCleanupInterval unless force is set.
func (s *Service) Cleanup(force bool) {
	s.lastCleanupMu.Lock()
	defer s.lastCleanupMu.Unlock()
	if !force && time.Since(s.lastCleanup) < taskCleanupInterval {
		return
	}
	s.lastCleanup = time.Now()

	s.activeTasksMu.Lock()
	reaped := 0
	for key, task := range s.activeTasks {
		if task.finished() {
			delete(s.activeTasks, key)
			reaped++
		}
	}
	remaining := len(s.activeTasks)
	s.activeTasksMu.Unlock()

	s.entryCountMu.Lock()
	if s.entryCount > maxEntryCount {
		s.log.Warn("re-basing event entry counter",
			zap.Int("entry_count", s.entryCount), zap.Int("rebased_to", cleanupBatchSize))
		s.entryCount = cleanupBatchSize
	}
	s.entryCountMu.Unlock()

	removed := s.store.CleanupOldMessages(messageMaxAge)
	if reaped > 0 || removed > 0 {
		s.log.Debug("event cleanup",
			zap.Int("reaped_tasks", reaped),
			zap.Int("active_tasks", remaining),
			zap.Int("aged_out_messages", removed))
	}
}

// Stats is a point-in-time snapshot for diagnostics.
type Stats struct {
	ActiveTasks int                    `json:"active_tasks"`
	EntryCount  int                    `json:"entry_count"`
	Store       msgstore.MemoryMetrics `json:"store"`
}

// MemoryStats reports the service's bookkeeping sizes.
func (s *Service) MemoryStats() Stats {
	s.activeTasksMu.RLock()
	active := len(s.activeTasks)
	s.activeTasksMu.RUnlock()

	s.entryCountMu.Lock()
	count := s.entryCount
	s.entryCountMu.Unlock()

	return Stats{ActiveTasks: active, EntryCount: count, Store: s.store.Metrics()}
}

// Close forces a final cleanup and closes the event store, ending all
// subscriber streams.
func (s *Service) Close() {
	s.Cleanup(true)
	s.store.Close()
}
