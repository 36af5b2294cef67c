package main

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event types for the activity log
const (
	EvtJoin         = "join"
	EvtLeave        = "leave"
	EvtDoorToggle   = "door_toggle"
	EvtTransparency = "transparency"
)

// ActivityEvent is a single logged lounge event
type ActivityEvent struct {
	Type      string
	ConnID    string
	Detail    string
	Timestamp time.Time
}

// ActivityLog persists lounge events with batched background writes so
// the engine never waits on the database.
type ActivityLog struct {
	db     *DB
	log    *zap.SugaredLogger
	events chan ActivityEvent
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewActivityLog creates and starts the background writer
func NewActivityLog(db *DB, log *zap.SugaredLogger) *ActivityLog {
	a := &ActivityLog{
		db:     db,
		log:    log,
		events: make(chan ActivityEvent, 1024),
		stop:   make(chan struct{}),
	}
	a.wg.Add(1)
	go a.writer()
	return a
}

// Record enqueues an event for async persistence (non-blocking)
func (a *ActivityLog) Record(evtType, connID, detail string) {
	select {
	case a.events <- ActivityEvent{
		Type:      evtType,
		ConnID:    connID,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}:
	default:
		// Channel full — drop the event rather than blocking the engine
	}
}

// Stop drains pending events and shuts the writer down
func (a *ActivityLog) Stop() {
	close(a.stop)
	a.wg.Wait()
}

// writer batches events and flushes on size or a timer
func (a *ActivityLog) writer() {
	defer a.wg.Done()

	batch := make([]ActivityEvent, 0, 64)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case evt := <-a.events:
			batch = append(batch, evt)
			if len(batch) >= 50 {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-a.stop:
			close(a.events)
			for evt := range a.events {
				batch = append(batch, evt)
			}
			if len(batch) > 0 {
				a.flush(batch)
			}
			return
		}
	}
}

func (a *ActivityLog) flush(events []ActivityEvent) {
	if a.db == nil || len(events) == 0 {
		return
	}
	if err := a.db.InsertEvents(events); err != nil {
		a.log.Warnw("activity flush failed", "count", len(events), "err", err)
	}
}
