// Package clock provides the self-calibrating once-per-second tick source
// behind the round cadence. A one-shot timer aligns the first tick to the
// next cycle boundary; after that a recurring timer fires roughly every
// second, and per-tick calibration nudges its interval among a few discrete
// steps to keep firings near the whole-second mark.
package clock

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"quizsync/internal/config"
)

// Interval identifies one of the discrete recurring-timer periods.
type Interval int

const (
	NotSet Interval = iota
	Normal
	Fast
	Slow
	Faster // large-skew mode only
	Slower // large-skew mode only
)

func (i Interval) String() string {
	switch i {
	case Normal:
		return "normal"
	case Fast:
		return "fast"
	case Slow:
		return "slow"
	case Faster:
		return "faster"
	case Slower:
		return "slower"
	default:
		return "not_set"
	}
}

// Tick is one firing of the clock. The first tick carries the seconds
// remaining until the cycle boundary it was aligned to.
type Tick struct {
	First bool
	Secs  int
	At    time.Time
}

// Clock owns the one-shot and recurring timers. The scheduler consumes
// Ticks() and calls Calibrate once per tick; it never touches the timers.
type Clock struct {
	cfg config.Config
	clk clockwork.Clock

	mu        sync.Mutex
	interval  Interval
	oneShot   clockwork.Timer
	recurring clockwork.Timer
	stopped   bool

	initialSecs int
	ticks       chan Tick
	done        chan struct{}
}

func New(cfg config.Config, clk clockwork.Clock) *Clock {
	return &Clock{
		cfg:   cfg,
		clk:   clk,
		ticks: make(chan Tick, 1),
		done:  make(chan struct{}),
	}
}

// Ticks is the stream the scheduler subscribes to.
func (c *Clock) Ticks() <-chan Tick { return c.ticks }

// InitialSeconds reports the seconds until the boundary the first tick was
// aligned to, computed at Start. Valid after Start returns.
func (c *Clock) InitialSeconds() int { return c.initialSecs }

// CurrentInterval reports the active recurring period.
func (c *Clock) CurrentInterval() Interval {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

// Start schedules the first tick just ahead of the next cycle boundary.
// The recurring timer is installed when that one-shot fires.
func (c *Clock) Start() {
	cycleMs := int64(c.cfg.CycleSecs) * 1000
	nowMs := c.clk.Now().UnixMilli()
	nextCycle := ((nowMs + cycleMs - 1) / cycleMs) * cycleMs
	delay := time.Duration(nextCycle-nowMs)*time.Millisecond + c.cfg.InitOffset
	c.initialSecs = int((nextCycle - nowMs) / 1000)

	c.mu.Lock()
	c.oneShot = c.clk.AfterFunc(delay, c.firstTick)
	c.mu.Unlock()

	log.Info().
		Dur("delay", delay).
		Int("secs_remaining", c.initialSecs).
		Msg("clock started, first tick aligned to cycle boundary")
}

// Stop cancels both timers. Safe to call more than once.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	c.interval = NotSet
	if c.oneShot != nil {
		c.oneShot.Stop()
	}
	if c.recurring != nil {
		c.recurring.Stop()
	}
	close(c.done)
	log.Info().Msg("clock stopped")
}

// Calibrate measures the signed millisecond offset from the nearest whole
// second and, when it crosses a threshold, cancels the recurring timer and
// installs a fresh one at the corrective interval. Returns the interval now
// in effect.
func (c *Clock) Calibrate() Interval {
	errMs := (c.clk.Now().UnixMilli()+500)%1000 - 500
	want := c.pick(errMs)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return NotSet
	}
	if want == c.interval {
		return c.interval
	}
	log.Debug().
		Int64("err_ms", errMs).
		Stringer("from", c.interval).
		Stringer("to", want).
		Msg("clock recalibrated")
	c.interval = want
	if c.recurring != nil {
		c.recurring.Stop()
	}
	c.recurring = c.clk.AfterFunc(c.period(want), c.tick)
	return c.interval
}

// DriftMillis reports the current offset from the whole-second mark, for
// metrics only.
func (c *Clock) DriftMillis() int64 {
	return (c.clk.Now().UnixMilli()+500)%1000 - 500
}

func (c *Clock) pick(errMs int64) Interval {
	largeMs := c.cfg.ErrThresholdLarge.Milliseconds()
	threshMs := c.cfg.ErrThreshold.Milliseconds()
	switch {
	case c.cfg.LargeSkew && errMs > largeMs:
		return Faster
	case c.cfg.LargeSkew && errMs < -largeMs:
		return Slower
	case errMs > threshMs:
		return Fast
	case errMs < -threshMs:
		return Slow
	default:
		return Normal
	}
}

func (c *Clock) period(i Interval) time.Duration {
	switch i {
	case Fast:
		return c.cfg.Fast
	case Slow:
		return c.cfg.Slow
	case Faster:
		return c.cfg.Faster
	case Slower:
		return c.cfg.Slower
	default:
		return c.cfg.Normal
	}
}

func (c *Clock) firstTick() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.interval = Normal
	c.recurring = c.clk.AfterFunc(c.cfg.Normal, c.tick)
	c.mu.Unlock()

	c.deliver(Tick{First: true, Secs: c.initialSecs, At: c.clk.Now()})
}

func (c *Clock) tick() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	// Re-arm before delivery so tick handling time never stretches the
	// period. Calibration may replace this timer mid-period.
	c.recurring = c.clk.AfterFunc(c.period(c.interval), c.tick)
	c.mu.Unlock()

	c.deliver(Tick{At: c.clk.Now()})
}

func (c *Clock) deliver(t Tick) {
	select {
	case c.ticks <- t:
	case <-c.done:
	}
}
