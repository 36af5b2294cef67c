package main

import "encoding/json"

// Client -> Server message types
const (
	MsgPlayerJoin         = "playerJoin"
	MsgPlayerMove         = "playerMove"
	MsgToggleDoor         = "toggleDoor"
	MsgArcadeTransparency = "arcadeMachineTransparency"
)

// Server -> Client message types
const (
	MsgColorAssigned       = "playerColorAssigned"
	MsgGameState           = "gameState"
	MsgPlayerJoined        = "playerJoined"
	MsgPlayerMoved         = "playerMoved"
	MsgDoorStateChanged    = "doorStateChanged"
	MsgTransparencyChanged = "arcadeMachineTransparencyChanged"
	MsgPlayerLeft          = "playerLeft"
	MsgError               = "error"
)

// Envelope wraps all outgoing messages with a type field
type Envelope struct {
	T    string      `json:"t"`
	Data interface{} `json:"d,omitempty"`
}

// InEnvelope is used for incoming messages — json.RawMessage avoids double-unmarshal
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// JoinMsg is sent when a client wants to enter the lounge. A declared
// color is accepted on the wire but never honored; the allocator always
// assigns a fresh slot.
type JoinMsg struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// MoveMsg carries a position update
type MoveMsg struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// TransparencyMsg toggles an arcade machine overlay for one viewer.
// MachineID and ForPlayer are opaque passthrough data; nothing ties them
// to known entities.
type TransparencyMsg struct {
	MachineID     string  `json:"machineId"`
	IsTransparent bool    `json:"isTransparent"`
	ForPlayer     *string `json:"forPlayer"`
}

// ColorAssignedMsg is sent privately to the joining connection
type ColorAssignedMsg struct {
	Color string `json:"color"`
}

// GameStateMsg is the private join snapshot: every player other than the
// joiner, plus the shared door state.
type GameStateMsg struct {
	Players   []Player  `json:"players"`
	DoorState DoorState `json:"doorState"`
}

// PlayerMovedMsg is broadcast to everyone except the mover
type PlayerMovedMsg struct {
	ID       string   `json:"id"`
	Position Position `json:"position"`
}

// PlayerLeftMsg is broadcast to all remaining connections
type PlayerLeftMsg struct {
	ID string `json:"id"`
}

// ErrorMsg sends an error to a single client
type ErrorMsg struct {
	Msg string `json:"msg"`
}

// StatusMsg is the diagnostic status query response
type StatusMsg struct {
	Status      string `json:"status"`
	PlayerCount int    `json:"playerCount"`
}

// StateSnapshot is the diagnostic full-state dump. Machines are encoded
// as [id, overlay] pairs, ordered by machine id.
type StateSnapshot struct {
	Players        []Player       `json:"players" msgpack:"players"`
	DoorState      DoorState      `json:"doorState" msgpack:"doorState"`
	ArcadeMachines []MachineEntry `json:"arcadeMachines" msgpack:"arcadeMachines"`
}
