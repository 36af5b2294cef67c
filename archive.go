package main

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// Archiver periodically captures the world snapshot and stores it in the
// database as a msgpack blob. The archive is diagnostics history only;
// nothing reads it back into the live world.
type Archiver struct {
	engine   *Engine
	db       *DB
	clock    clockwork.Clock
	interval time.Duration
	log      *zap.SugaredLogger
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewArchiver creates an archiver. It does nothing until Start.
func NewArchiver(engine *Engine, db *DB, clock clockwork.Clock, interval time.Duration, log *zap.SugaredLogger) *Archiver {
	return &Archiver{
		engine:   engine,
		db:       db,
		clock:    clock,
		interval: interval,
		log:      log,
		stop:     make(chan struct{}),
	}
}

// Start launches the capture loop. A nil DB or non-positive interval
// disables archiving.
func (ar *Archiver) Start() {
	if ar.db == nil || ar.interval <= 0 {
		return
	}
	ar.wg.Add(1)
	go ar.run()
}

// Stop terminates the capture loop
func (ar *Archiver) Stop() {
	close(ar.stop)
	ar.wg.Wait()
}

func (ar *Archiver) run() {
	defer ar.wg.Done()

	ticker := ar.clock.NewTicker(ar.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			ar.capture()
		case <-ar.stop:
			return
		}
	}
}

// capture encodes the current snapshot and writes one archive row
func (ar *Archiver) capture() {
	snap := ar.engine.Snapshot()
	data, err := msgpack.Marshal(snap)
	if err != nil {
		ar.log.Warnw("snapshot encode failed", "err", err)
		return
	}
	if err := ar.db.SaveSnapshot(ar.clock.Now().UTC(), len(snap.Players), data); err != nil {
		ar.log.Warnw("snapshot save failed", "err", err)
	}
}
