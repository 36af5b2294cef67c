package main

import (
	"encoding/json"
	"net/http"

	"github.com/vmihailenco/msgpack/v5"
)

// SnapshotService exposes read-only projections of the world for
// operational tooling. It reads through the engine's snapshot accessors
// only and never mutates anything; both queries always succeed.
type SnapshotService struct {
	engine *Engine
}

// NewSnapshotService creates a snapshot service over one engine
func NewSnapshotService(engine *Engine) *SnapshotService {
	return &SnapshotService{engine: engine}
}

// HandleStatus responds with {status, playerCount}
// GET /status
func (s *SnapshotService) HandleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(StatusMsg{
		Status:      "ok",
		PlayerCount: s.engine.PlayerCount(),
	})
}

// HandleState responds with the full world dump: players, door state,
// and arcade machine overlays as [id, overlay] pairs. Pass
// ?format=msgpack for a binary snapshot in the archiver's encoding.
// GET /state
func (s *SnapshotService) HandleState(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()

	if r.URL.Query().Get("format") == "msgpack" {
		data, err := msgpack.Marshal(snap)
		if err != nil {
			http.Error(w, "encode failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/x-msgpack")
		w.Write(data)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}
