package main

import (
	"encoding/json"
	"sort"
)

// Position is a 2D point in lounge coordinates
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Player is the authoritative record for one joined connection. The
// connection id doubles as the registry key. LastUpdate is advisory
// (unix milliseconds of the most recent accepted mutation).
type Player struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Color      string   `json:"color"`
	Position   Position `json:"position"`
	LastUpdate int64    `json:"lastUpdate"`
}

// DoorState is the single shared door record, global to all connections
type DoorState struct {
	IsOpen bool `json:"isOpen"`
}

// MachineOverlay is the transparency state for one arcade machine,
// scoped to one viewing player. ForPlayer is opaque passthrough.
type MachineOverlay struct {
	IsTransparent bool    `json:"isTransparent" msgpack:"isTransparent"`
	ForPlayer     *string `json:"forPlayer" msgpack:"forPlayer"`
}

// MachineEntry pairs a machine id with its overlay. It marshals to the
// [id, overlay] tuple shape the diagnostic dump uses.
type MachineEntry struct {
	ID      string         `msgpack:"id"`
	Overlay MachineOverlay `msgpack:"overlay"`
}

// MarshalJSON encodes the entry as a two-element array
func (e MachineEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{e.ID, e.Overlay})
}

// UnmarshalJSON decodes the [id, overlay] tuple shape
func (e *MachineEntry) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw[0], &e.ID); err != nil {
		return err
	}
	return json.Unmarshal(raw[1], &e.Overlay)
}

// World is the single source of truth for players, the door, and arcade
// machine overlays. It is plain structured storage: no locking (the
// engine serializes access) and no operation fails on a missing key.
type World struct {
	players  map[string]*Player
	door     DoorState
	machines map[string]MachineOverlay
}

// NewWorld creates an empty world with the door closed
func NewWorld() *World {
	return &World{
		players:  make(map[string]*Player),
		machines: make(map[string]MachineOverlay),
	}
}

// UpsertPlayer inserts or replaces a player record keyed by its id.
// Names are untrusted display labels; no uniqueness check applies.
func (w *World) UpsertPlayer(p *Player) {
	w.players[p.ID] = p
}

// GetPlayer returns a copy of the player record, if present
func (w *World) GetPlayer(id string) (Player, bool) {
	p, ok := w.players[id]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// SetPosition overwrites a player's position and update stamp in place.
// Missing ids are a no-op.
func (w *World) SetPosition(id string, pos Position, at int64) {
	if p, ok := w.players[id]; ok {
		p.Position = pos
		p.LastUpdate = at
	}
}

// RemovePlayer deletes a player record. Removing an absent id is a
// no-op, which keeps disconnect handling idempotent.
func (w *World) RemovePlayer(id string) {
	delete(w.players, id)
}

// ListPlayers returns copies of the current players, optionally omitting
// one connection id (pass "" to include everyone).
func (w *World) ListPlayers(excluding string) []Player {
	out := make([]Player, 0, len(w.players))
	for id, p := range w.players {
		if excluding != "" && id == excluding {
			continue
		}
		out = append(out, *p)
	}
	return out
}

// PlayerCount returns the number of joined players
func (w *World) PlayerCount() int {
	return len(w.players)
}

// SetDoorOpen sets the shared door flag
func (w *World) SetDoorOpen(isOpen bool) {
	w.door.IsOpen = isOpen
}

// ToggleDoor flips the shared door flag and returns the new state
func (w *World) ToggleDoor() DoorState {
	w.door.IsOpen = !w.door.IsOpen
	return w.door
}

// Door returns the current door state
func (w *World) Door() DoorState {
	return w.door
}

// SetMachineOverlay upserts the overlay for a machine id. Overlays are
// created lazily and never deleted.
func (w *World) SetMachineOverlay(machineID string, overlay MachineOverlay) {
	w.machines[machineID] = overlay
}

// MachineOverlay returns the overlay for a machine id, if present
func (w *World) MachineOverlay(machineID string) (MachineOverlay, bool) {
	ov, ok := w.machines[machineID]
	return ov, ok
}

// MachineEntries returns all overlays as [id, overlay] pairs, ordered by
// machine id so dumps are stable.
func (w *World) MachineEntries() []MachineEntry {
	out := make([]MachineEntry, 0, len(w.machines))
	for id, ov := range w.machines {
		out = append(out, MachineEntry{ID: id, Overlay: ov})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
