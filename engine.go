package main

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Broadcaster interface for sending messages to clients
type Broadcaster interface {
	SendJSON(msg interface{})
}

// Engine binds inbound client events to world, color-pool, and throttle
// mutations, and decides what to broadcast to whom. A connection is
// pending until its join event lands (non-join events from a pending
// connection are no-ops) and active afterwards until disconnect.
//
// A single mutex serializes every event to completion, reproducing a
// one-event-at-a-time model: no handler ever observes a half-applied
// mutation from another connection.
type Engine struct {
	mu       sync.Mutex
	world    *World
	colors   *ColorAllocator
	throttle *ThrottleGate
	clients  map[string]Broadcaster // active connections only
	spawn    Position
	clock    clockwork.Clock
	log      *zap.SugaredLogger
	activity *ActivityLog // optional
}

// NewEngine creates an engine with its own isolated world, allocator,
// and throttle state. activity may be nil.
func NewEngine(cfg *Config, clock clockwork.Clock, log *zap.SugaredLogger, activity *ActivityLog) *Engine {
	return &Engine{
		world:    NewWorld(),
		colors:   NewColorAllocator(cfg.ColorPoolSize, cfg.RejectWhenExhausted),
		throttle: NewThrottleGate(cfg.ThrottleInterval()),
		clients:  make(map[string]Broadcaster),
		spawn:    Position{X: cfg.SpawnX, Y: cfg.SpawnY},
		clock:    clock,
		log:      log,
		activity: activity,
	}
}

// HandleJoin transitions a pending connection to active: allocates a
// color, inserts the player at the spawn point, and sends (in order) the
// assigned color and the others-only state snapshot privately to the
// joiner, then the new player's full record to every other active
// connection. A join from an already-active connection is ignored.
func (e *Engine) HandleJoin(connID string, client Broadcaster, msg JoinMsg) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.clients[connID]; ok {
		return
	}

	color, ok := e.colors.Assign()
	if !ok {
		client.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: "color pool exhausted"}})
		return
	}

	player := &Player{
		ID:         connID,
		Name:       msg.Name,
		Color:      color,
		Position:   e.spawn,
		LastUpdate: e.clock.Now().UnixMilli(),
	}
	e.world.UpsertPlayer(player)
	e.clients[connID] = client

	client.SendJSON(Envelope{T: MsgColorAssigned, Data: ColorAssignedMsg{Color: color}})
	client.SendJSON(Envelope{T: MsgGameState, Data: GameStateMsg{
		Players:   e.world.ListPlayers(connID),
		DoorState: e.world.Door(),
	}})
	e.broadcastExcept(connID, Envelope{T: MsgPlayerJoined, Data: *player})

	e.log.Infow("player joined", "id", connID, "name", msg.Name, "color", color)
	e.record(EvtJoin, connID, msg.Name)
}

// HandleMove applies a position update for an active connection if the
// throttle admits it, then broadcasts the new position to everyone else.
// Rejected updates are dropped silently.
func (e *Engine) HandleMove(connID string, msg MoveMsg) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.clients[connID]; !ok {
		return
	}
	now := e.clock.Now()
	if !e.throttle.TryAdmit(connID, now) {
		return
	}
	pos := Position{X: msg.X, Y: msg.Y}
	e.world.SetPosition(connID, pos, now.UnixMilli())
	e.broadcastExcept(connID, Envelope{T: MsgPlayerMoved, Data: PlayerMovedMsg{ID: connID, Position: pos}})
}

// HandleToggleDoor flips the shared door flag and broadcasts the new
// state to all active connections, sender included (clients do not
// predict door changes locally).
func (e *Engine) HandleToggleDoor(connID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.clients[connID]; !ok {
		return
	}
	door := e.world.ToggleDoor()
	e.broadcastAll(Envelope{T: MsgDoorStateChanged, Data: door})
	e.record(EvtDoorToggle, connID, "")
}

// HandleTransparency upserts a machine overlay without validating that
// the machine or viewer exists, and relays the payload to everyone
// except the sender.
func (e *Engine) HandleTransparency(connID string, msg TransparencyMsg) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.clients[connID]; !ok {
		return
	}
	e.world.SetMachineOverlay(msg.MachineID, MachineOverlay{
		IsTransparent: msg.IsTransparent,
		ForPlayer:     msg.ForPlayer,
	})
	e.broadcastExcept(connID, Envelope{T: MsgTransparencyChanged, Data: msg})
	e.record(EvtTransparency, connID, msg.MachineID)
}

// HandleDisconnect retires an active connection: releases its color,
// clears its throttle record, removes it from the world, and tells every
// remaining connection to drop the departed player. Disconnecting a
// pending or already-removed connection is a pure no-op.
func (e *Engine) HandleDisconnect(connID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.clients[connID]; !ok {
		return
	}
	player, _ := e.world.GetPlayer(connID)
	e.colors.Release(player.Color)
	e.throttle.Forget(connID)
	e.world.RemovePlayer(connID)
	delete(e.clients, connID)

	e.broadcastAll(Envelope{T: MsgPlayerLeft, Data: PlayerLeftMsg{ID: connID}})

	e.log.Infow("player left", "id", connID, "color", player.Color)
	e.record(EvtLeave, connID, player.Name)
}

// PlayerCount returns the number of active connections
func (e *Engine) PlayerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.world.PlayerCount()
}

// Snapshot returns a read-only projection of the world for diagnostics
func (e *Engine) Snapshot() StateSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return StateSnapshot{
		Players:        e.world.ListPlayers(""),
		DoorState:      e.world.Door(),
		ArcadeMachines: e.world.MachineEntries(),
	}
}

// SetThrottleInterval hot-tunes the move throttle
func (e *Engine) SetThrottleInterval(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.throttle.SetInterval(d)
}

// ThrottleInterval returns the current move throttle interval
func (e *Engine) ThrottleInterval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.throttle.Interval()
}

// SetRejectWhenExhausted hot-tunes the color pool exhaustion policy
func (e *Engine) SetRejectWhenExhausted(reject bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.colors.SetReject(reject)
}

// RejectWhenExhausted reports the color pool exhaustion policy
func (e *Engine) RejectWhenExhausted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.colors.Reject()
}

// broadcastAll sends to every active connection. Sends are fire-and-
// forget: a slow client drops the message rather than stalling the
// handler.
func (e *Engine) broadcastAll(env Envelope) {
	for _, client := range e.clients {
		client.SendJSON(env)
	}
}

// broadcastExcept sends to every active connection but the given one
func (e *Engine) broadcastExcept(connID string, env Envelope) {
	for id, client := range e.clients {
		if id == connID {
			continue
		}
		client.SendJSON(env)
	}
}

func (e *Engine) record(evtType, connID, detail string) {
	if e.activity != nil {
		e.activity.Record(evtType, connID, detail)
	}
}
