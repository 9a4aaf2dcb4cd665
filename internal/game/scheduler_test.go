package game

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"quizsync/internal/clock"
	"quizsync/internal/config"
	"quizsync/internal/players"
	"quizsync/internal/protocol"
	"quizsync/internal/rooms"
)

func gameConfig() config.Config {
	return config.Config{
		CycleSecs:  180,
		LobbySecs:  30,
		MinRoom:    0,
		NumRooms:   4,
		MaxSkipFwd: 9,
	}
}

type fixture struct {
	core *Core
	bus  *recorderBus
	reg  *players.Registry
	rm   *rooms.Manager
	clk  *clockwork.FakeClock
}

func newFixture(cfg config.Config, atMs int64) *fixture {
	reg := players.NewRegistry(cfg.MinRoom, cfg.NumRooms)
	rm := rooms.NewManager(cfg.MinRoom, cfg.NumRooms)
	bus := &recorderBus{rm: rm}
	fake := clockwork.NewFakeClockAt(time.UnixMilli(atMs))
	core := NewCore(cfg, fake, reg, rm, bus, nil)
	return &fixture{core: core, bus: bus, reg: reg, rm: rm, clk: fake}
}

// join registers a player directly, bypassing the router.
func (f *fixture) join(sessionID, tag string, room rooms.ID, incomplete bool) {
	f.reg.Attach(sessionID, tag, room, incomplete)
	f.rm.Join(sessionID, room)
}

func TestFirstTickAtBoundaryEntersPlay(t *testing.T) {
	f := newFixture(gameConfig(), 180_000_000)
	f.core.SetInitialSeconds(0)
	f.join("s1", "Alice", "2", false)

	f.core.HandleTick(clock.Tick{First: true})

	if payload, ok := f.bus.globalEvent(protocol.EventRoundStarted); !ok || payload != 150 {
		t.Fatalf("round_started = %v, %v; want 150 broadcast to all", payload, ok)
	}
	payload, ok := f.bus.payloadAt("s1", protocol.EventPlayTimerUpdate)
	if !ok {
		t.Fatal("no play_timer_update delivered")
	}
	if upd := payload.(protocol.PlayTimerUpdate); upd.TimeRemaining != 150 {
		t.Fatalf("time_remaining = %d, want 150", upd.TimeRemaining)
	}
	if !f.core.RoundInProgress() || f.core.SecsRemaining() != 179 {
		t.Fatalf("state = (%v, %d), want (true, 179)", f.core.RoundInProgress(), f.core.SecsRemaining())
	}
}

func TestFirstTickMidLobby(t *testing.T) {
	f := newFixture(gameConfig(), 180_000_000-15_000)
	f.core.SetInitialSeconds(15)
	f.join("s1", "Alice", "2", false)

	f.core.HandleTick(clock.Tick{First: true})

	if payload, ok := f.bus.globalEvent(protocol.EventRoundEnded); !ok || payload != 30 {
		t.Fatalf("round_ended = %v, %v; want 30", payload, ok)
	}
	if payload, ok := f.bus.payloadAt("s1", protocol.EventLobbyTimerUpdate); !ok || payload != 15 {
		t.Fatalf("lobby_timer_update = %v, %v; want 15", payload, ok)
	}
	// Landing mid-lobby compiles results from whoever is present.
	res, ok := f.bus.payloadAt("s1", protocol.EventRoomRoundResults)
	if !ok {
		t.Fatal("no room_round_results delivered")
	}
	if rows := leadersOf(res); len(rows) != 1 || rows[0].Tag != "Alice" || rows[0].Points != 0 {
		t.Fatalf("results = %v", rows)
	}
	if f.core.RoundInProgress() || f.core.SecsRemaining() != 14 {
		t.Fatalf("state = (%v, %d), want (false, 14)", f.core.RoundInProgress(), f.core.SecsRemaining())
	}
}

func TestLastPlaySecondEntersLobby(t *testing.T) {
	f := newFixture(gameConfig(), 180_000_000-31_000)
	f.core.SetInitialSeconds(31)
	f.join("s1", "Alice", "2", false)
	f.reg.SetPoints("s1", 7)

	f.core.HandleTick(clock.Tick{})

	// The last play tick goes out first.
	events := f.bus.eventsAt("s1")
	want := []string{
		protocol.EventPlayTimerUpdate,
		protocol.EventRoomRoundResults,
		protocol.EventLobbyTimerUpdate,
	}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}

	upd, _ := f.bus.payloadAt("s1", protocol.EventPlayTimerUpdate)
	if got := upd.(protocol.PlayTimerUpdate); got.TimeRemaining != 1 || got.Leaders[0].Points != 7 {
		t.Fatalf("last play tick = %+v", got)
	}
	if payload, ok := f.bus.globalEvent(protocol.EventRoundEnded); !ok || payload != 30 {
		t.Fatalf("round_ended = %v, %v; want 30", payload, ok)
	}
	res, _ := f.bus.payloadAt("s1", protocol.EventRoomRoundResults)
	if rows := leadersOf(res); len(rows) != 1 || rows[0].Tag != "Alice" || rows[0].Points != 7 {
		t.Fatalf("results = %v", rows)
	}
	if lob, ok := f.bus.payloadAt("s1", protocol.EventLobbyTimerUpdate); !ok || lob != 30 {
		t.Fatalf("lobby_timer_update = %v, want 30", lob)
	}
	if f.core.RoundInProgress() || f.core.SecsRemaining() != 30 {
		t.Fatalf("state = (%v, %d), want (false, 30)", f.core.RoundInProgress(), f.core.SecsRemaining())
	}
}

func TestLobbyZeroWrapsIntoPlay(t *testing.T) {
	f := newFixture(gameConfig(), 180_000_000)
	f.core.SetInitialSeconds(0)
	f.join("s1", "Alice", "2", true)
	f.reg.SetPoints("s1", 9)

	f.core.HandleTick(clock.Tick{})

	if lob, ok := f.bus.payloadAt("s1", protocol.EventLobbyTimerUpdate); !ok || lob != 0 {
		t.Fatalf("lobby_timer_update = %v, want 0", lob)
	}
	if payload, ok := f.bus.globalEvent(protocol.EventRoundStarted); !ok || payload != 150 {
		t.Fatalf("round_started = %v, %v; want 150", payload, ok)
	}
	p := f.reg.Get("s1")
	if p.Points != 0 || p.IncompleteRound {
		t.Fatalf("enter-play must reset players, got %+v", p)
	}
	upd, _ := f.bus.payloadAt("s1", protocol.EventPlayTimerUpdate)
	if got := upd.(protocol.PlayTimerUpdate); got.TimeRemaining != 150 || got.Leaders[0].Points != 0 {
		t.Fatalf("first play tick = %+v", got)
	}
	if !f.core.RoundInProgress() || f.core.SecsRemaining() != 179 {
		t.Fatalf("state = (%v, %d), want (true, 179)", f.core.RoundInProgress(), f.core.SecsRemaining())
	}
}

func TestCoarseAdjustOnScheduleIsNoop(t *testing.T) {
	// One second into the lobby, wall clock exactly where the countdown
	// says it should be.
	f := newFixture(gameConfig(), 180_000_000-29_000)
	f.core.SetInitialSeconds(29)
	f.join("s1", "Alice", "0", false)

	f.core.HandleTick(clock.Tick{})

	if payload, _ := f.bus.payloadAt("s1", protocol.EventLobbyTimerUpdate); payload != 29 {
		t.Fatalf("lobby_timer_update = %v, want 29", payload)
	}
	if f.core.SecsRemaining() != 28 {
		t.Fatalf("secs = %d, want 28", f.core.SecsRemaining())
	}
}

func TestCoarseAdjustForwardJumpCapped(t *testing.T) {
	// The wall clock jumped 45s forward: the boundary this lobby was
	// heading toward is 16s behind us. Only MaxSkipFwd seconds may be
	// dropped this cycle.
	f := newFixture(gameConfig(), 180_000_000+16_000)
	f.core.SetInitialSeconds(29)
	f.join("s1", "Alice", "0", false)

	f.core.HandleTick(clock.Tick{})

	if payload, _ := f.bus.payloadAt("s1", protocol.EventLobbyTimerUpdate); payload != 20 {
		t.Fatalf("lobby_timer_update = %v, want 20 (29 - 9)", payload)
	}
	if f.core.SecsRemaining() != 19 {
		t.Fatalf("secs = %d, want 19", f.core.SecsRemaining())
	}
}

func TestCoarseAdjustBackwardRestartsLobby(t *testing.T) {
	// The wall clock stepped back 10s: the lobby restarts from the top
	// rather than stretching past it.
	f := newFixture(gameConfig(), 180_000_000-39_000)
	f.core.SetInitialSeconds(29)
	f.join("s1", "Alice", "0", false)

	f.core.HandleTick(clock.Tick{})

	if payload, _ := f.bus.payloadAt("s1", protocol.EventLobbyTimerUpdate); payload != 30 {
		t.Fatalf("lobby_timer_update = %v, want 30", payload)
	}
	if f.core.SecsRemaining() != 29 {
		t.Fatalf("secs = %d, want 29", f.core.SecsRemaining())
	}
}

func TestEmptyRoomsStaySilent(t *testing.T) {
	f := newFixture(gameConfig(), 180_000_000-40_000)
	f.core.SetInitialSeconds(40)

	f.core.HandleTick(clock.Tick{})

	if len(f.bus.sent) != 0 {
		t.Fatalf("deliveries to empty rooms: %v", f.bus.sent)
	}
}

// TestFullCycleInvariant walks a short cycle end to end and checks that the
// play flag always mirrors the countdown.
func TestFullCycleInvariant(t *testing.T) {
	cfg := gameConfig()
	cfg.CycleSecs = 6
	cfg.LobbySecs = 2
	f := newFixture(cfg, 6_000_000) // on a cycle boundary
	f.core.SetInitialSeconds(0)
	f.join("s1", "Alice", "1", false)

	f.core.HandleTick(clock.Tick{First: true})
	for i := 0; i < 12; i++ {
		if got, want := f.core.RoundInProgress(), f.core.SecsRemaining() > cfg.LobbySecs; got != want {
			t.Fatalf("tick %d: round_in_progress = %v with secs %d", i, got, f.core.SecsRemaining())
		}
		f.clk.Advance(time.Second)
		f.core.HandleTick(clock.Tick{})
	}

	var seq []string
	for _, d := range f.bus.global {
		seq = append(seq, d.Event)
	}
	want := []string{
		protocol.EventRoundStarted,
		protocol.EventRoundEnded,
		protocol.EventRoundStarted,
		protocol.EventRoundEnded,
		protocol.EventRoundStarted,
	}
	if len(seq) != len(want) {
		t.Fatalf("global sequence = %v, want %v", seq, want)
	}
	for i := range want {
		if seq[i] != want[i] {
			t.Fatalf("global sequence = %v, want %v", seq, want)
		}
	}
}
