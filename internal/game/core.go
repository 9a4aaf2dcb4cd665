// Package game holds the server core: the single owning value for round
// state, the round scheduler that consumes clock ticks, and the router for
// inbound client messages. Every mutation of player, room, and round state
// funnels through the core mutex, so the scheduler and the router never
// race each other.
package game

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"

	"quizsync/internal/clock"
	"quizsync/internal/config"
	"quizsync/internal/players"
	"quizsync/internal/protocol"
	"quizsync/internal/rooms"
)

// Bus is the fan-out surface the core talks to. The broadcast package
// implements it over the websocket hub; tests substitute a recorder.
type Bus interface {
	EmitTo(sessionID, event string, payload any)
	ToRoom(room rooms.ID, event string, payload any)
	ToRoomExcept(room rooms.ID, senderID, event string, payload any)
	All(event string, payload any)
}

// Calibrator is the slice of the clock the scheduler drives each tick.
type Calibrator interface {
	Calibrate() clock.Interval
}

type noopCalibrator struct{}

func (noopCalibrator) Calibrate() clock.Interval { return clock.NotSet }

// Core owns all mutable game state.
type Core struct {
	cfg      config.Config
	clk      clockwork.Clock
	registry *players.Registry
	rooms    *rooms.Manager
	bus      Bus
	cal      Calibrator

	mu              sync.Mutex
	secs            int
	roundInProgress bool
	lastResults     map[rooms.ID][]protocol.Score

	ticksTotal  atomic.Uint64
	roundsTotal atomic.Uint64
}

func NewCore(cfg config.Config, clk clockwork.Clock, reg *players.Registry, rm *rooms.Manager, bus Bus, cal Calibrator) *Core {
	if cal == nil {
		cal = noopCalibrator{}
	}
	return &Core{
		cfg:         cfg,
		clk:         clk,
		registry:    reg,
		rooms:       rm,
		bus:         bus,
		cal:         cal,
		lastResults: make(map[rooms.ID][]protocol.Score),
	}
}

// SetInitialSeconds seeds the countdown from the clock's boot alignment, so
// joins that arrive before the first tick still sync to the right phase.
func (c *Core) SetInitialSeconds(secs int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.secs = secs
	c.roundInProgress = secs > c.cfg.LobbySecs
}

// SecsRemaining reports the current countdown value.
func (c *Core) SecsRemaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.secs
}

// RoundInProgress reports whether a play phase is active.
func (c *Core) RoundInProgress() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roundInProgress
}

// TicksTotal and RoundsTotal feed the metrics endpoint.
func (c *Core) TicksTotal() uint64  { return c.ticksTotal.Load() }
func (c *Core) RoundsTotal() uint64 { return c.roundsTotal.Load() }

// Registry exposes the player registry for read-only stats.
func (c *Core) Registry() *players.Registry { return c.registry }

// scoreboard builds the descending scoreboard for one room. Ties keep
// snapshot order within a single emission.
func (c *Core) scoreboard(room rooms.ID) []protocol.Score {
	board := c.registry.Scoreboard(room)
	sort.SliceStable(board, func(i, j int) bool {
		return board[i].Points > board[j].Points
	})
	return board
}

// syncRound sends the round-phase bundle to a freshly joined session:
// round_started during play, round_ended plus the previous results of
// resultsRoom during lobby.
func (c *Core) syncRound(sessionID string, resultsRoom rooms.ID) {
	if c.roundInProgress {
		c.bus.EmitTo(sessionID, protocol.EventRoundStarted, c.cfg.PlaySecs())
		return
	}
	c.bus.EmitTo(sessionID, protocol.EventRoundEnded, c.cfg.LobbySecs)
	if res := c.lastResults[resultsRoom]; len(res) > 0 {
		c.bus.EmitTo(sessionID, protocol.EventRoomRoundResults, res)
	}
}
