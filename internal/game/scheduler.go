package game

import (
	"context"

	"github.com/rs/zerolog/log"

	"quizsync/internal/clock"
	"quizsync/internal/protocol"
)

// Run consumes the clock's tick stream until the context is cancelled.
func (c *Core) Run(ctx context.Context, ticks <-chan clock.Tick) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-ticks:
			if !ok {
				return
			}
			c.HandleTick(t)
		}
	}
}

// HandleTick advances the round state machine by one second.
func (c *Core) HandleTick(t clock.Tick) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticksTotal.Add(1)

	if t.First {
		c.firstTick()
		return
	}

	switch {
	case c.secs > c.cfg.LobbySecs:
		c.playTick()
		c.cal.Calibrate()
		c.secs--
		if c.secs == c.cfg.LobbySecs {
			c.enterLobby()
		}
	case c.secs == c.cfg.LobbySecs-1:
		c.coarseAdjust()
		c.lobbyTick()
		c.cal.Calibrate()
		c.secs--
	default:
		c.lobbyTick()
		if c.secs == 0 {
			c.secs = c.cfg.CycleSecs
			c.enterPlay()
		}
		c.cal.Calibrate()
		c.secs--
	}
}

// firstTick is the one-shot path: land in whichever phase the aligned
// countdown implies. No calibration yet, the recurring timer just started.
func (c *Core) firstTick() {
	if c.secs == 0 {
		c.secs = c.cfg.CycleSecs
	}
	if c.secs <= c.cfg.LobbySecs {
		c.enterLobby()
	} else {
		c.enterPlay()
	}
	c.secs--
}

// enterPlay starts a round: fresh scores everywhere, a global announcement,
// and one immediate play tick.
func (c *Core) enterPlay() {
	c.registry.ResetForPlay()
	c.roundInProgress = true
	c.roundsTotal.Add(1)
	c.bus.All(protocol.EventRoundStarted, c.cfg.PlaySecs())
	log.Info().Int("play_secs", c.cfg.PlaySecs()).Msg("round started")
	c.playTick()
}

// enterLobby ends the round: global announcement, final results compiled
// per room and delivered to the rooms that earned them, then one immediate
// lobby tick.
func (c *Core) enterLobby() {
	c.roundInProgress = false
	c.bus.All(protocol.EventRoundEnded, c.cfg.LobbySecs)

	for _, room := range c.rooms.IDs() {
		c.lastResults[room] = c.scoreboard(room)
	}
	for _, room := range c.rooms.IDs() {
		if res := c.lastResults[room]; len(res) > 0 {
			c.bus.ToRoom(room, protocol.EventRoomRoundResults, res)
		}
	}
	log.Info().Int("lobby_secs", c.cfg.LobbySecs).Msg("round ended")
	c.lobbyTick()
}

// playTick fans the scoreboard and play time remaining out to every
// occupied room.
func (c *Core) playTick() {
	remaining := c.secs - c.cfg.LobbySecs
	for _, room := range c.rooms.IDs() {
		if c.rooms.Occupancy(room) == 0 {
			continue
		}
		c.bus.ToRoom(room, protocol.EventPlayTimerUpdate, protocol.PlayTimerUpdate{
			TimeRemaining: remaining,
			Leaders:       c.scoreboard(room),
		})
	}
}

// lobbyTick fans the lobby countdown out to every occupied room.
func (c *Core) lobbyTick() {
	for _, room := range c.rooms.IDs() {
		if c.rooms.Occupancy(room) == 0 {
			continue
		}
		c.bus.ToRoom(room, protocol.EventLobbyTimerUpdate, c.secs)
	}
}

// coarseAdjust runs once per cycle, one second into the lobby. It compares
// the countdown against the wall clock's distance to the nearest cycle
// boundary and retimes the lobby: forward skips are capped at MaxSkipFwd
// seconds per cycle, backward skips at restarting the lobby from the top.
// Skew beyond the cap is absorbed over the following cycles.
func (c *Core) coarseAdjust() {
	cycleMs := int64(c.cfg.CycleSecs) * 1000
	rem := c.clk.Now().UnixMilli() % cycleMs
	var untilMs int64
	if rem <= cycleMs/2 {
		untilMs = -rem // boundary just passed
	} else {
		untilMs = cycleMs - rem
	}
	actual := floorDiv(untilMs+500, 1000)
	if actual == c.secs {
		return
	}

	adjusted := min(c.cfg.LobbySecs, actual)
	if floor := c.secs - c.cfg.MaxSkipFwd; floor > adjusted {
		adjusted = floor
	}
	log.Warn().
		Int("secs_remaining", c.secs).
		Int("actual", actual).
		Int("adjusted", adjusted).
		Msg("coarse cadence adjustment")
	c.secs = adjusted
}

// floorDiv divides rounding toward negative infinity, which keeps the
// coarse adjustment honest for boundaries already behind us.
func floorDiv(a, b int64) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return int(q)
}
