// Package timer runs view refreshes on a fixed interval and keeps the
// countdown shown next to the refresh control.
package timer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// NoSchedule is shown when no refresh is scheduled.
const NoSchedule = "--:--"

const countdownKey = "countdown"

// Display receives countdown text.
type Display interface {
	SetCountdown(text string)
}

// DisplayFunc adapts a function to Display.
type DisplayFunc func(text string)

// SetCountdown implements Display.
func (f DisplayFunc) SetCountdown(text string) { f(text) }

type handle struct {
	cancel context.CancelFunc
}

// Controller keeps at most one active timer per key. At most one refresh
// runs at a time across all keys.
type Controller struct {
	display Display
	tick    time.Duration
	log     *slog.Logger

	guard sync.Mutex

	mu     sync.Mutex
	timers map[string]*handle
	text   string
}

// Option customizes a Controller.
type Option func(*Controller)

// WithTick sets the countdown granularity.
func WithTick(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.tick = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// New creates a controller writing countdown text to d. d may be nil.
func New(d Display, opts ...Option) *Controller {
	c := &Controller{
		display: d,
		tick:    time.Second,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		timers:  map[string]*handle{},
		text:    NoSchedule,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetAutoRefresh schedules fn every interval under key. A non-positive
// interval only shows NoSchedule.
func (c *Controller) SetAutoRefresh(interval time.Duration, key string, fn func(context.Context)) {
	c.countdown(interval)
	if interval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &handle{cancel: cancel}
	c.mu.Lock()
	if prev, ok := c.timers[key]; ok {
		prev.cancel()
	}
	c.timers[key] = h
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if ctx.Err() != nil {
				return
			}
			c.countdown(interval)
			if !c.guard.TryLock() {
				c.log.Debug("refresh skipped, previous still running", "timer", key)
				continue
			}
			fn(ctx)
			c.guard.Unlock()
		}
	}()
}

// Refresh runs fn unless another refresh is in flight and reports whether
// it ran.
func (c *Controller) Refresh(ctx context.Context, fn func(context.Context)) bool {
	if !c.guard.TryLock() {
		return false
	}
	defer c.guard.Unlock()
	fn(ctx)
	return true
}

// Stop cancels the timer registered under key.
func (c *Controller) Stop(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.timers[key]; ok {
		h.cancel()
		delete(c.timers, key)
	}
}

// StopAll cancels every registered timer, the countdown included.
func (c *Controller) StopAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, h := range c.timers {
		h.cancel()
		delete(c.timers, key)
	}
}

// Active returns the keys of running timers.
func (c *Controller) Active() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.timers))
	for k := range c.timers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Countdown returns the text currently shown.
func (c *Controller) Countdown() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// countdown restarts the display from interval down to zero.
func (c *Controller) countdown(interval time.Duration) {
	c.mu.Lock()
	if h, ok := c.timers[countdownKey]; ok {
		h.cancel()
		delete(c.timers, countdownKey)
	}
	if interval <= 0 {
		c.setTextLocked(NoSchedule)
		c.mu.Unlock()
		return
	}
	c.setTextLocked(formatCountdown(0))

	ctx, cancel := context.WithCancel(context.Background())
	h := &handle{cancel: cancel}
	c.timers[countdownKey] = h
	tick := c.tick
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		left := interval
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			left -= tick
			c.mu.Lock()
			if c.timers[countdownKey] != h {
				c.mu.Unlock()
				return
			}
			c.setTextLocked(formatCountdown(left))
			if left <= 0 {
				delete(c.timers, countdownKey)
				c.mu.Unlock()
				cancel()
				return
			}
			c.mu.Unlock()
		}
	}()
}

func (c *Controller) setTextLocked(text string) {
	c.text = text
	if c.display != nil {
		c.display.SetCountdown(text)
	}
}

// formatCountdown renders d as mm:ss.
func formatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", (sec/60)%60, sec%60)
}
