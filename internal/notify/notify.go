// Package notify delivers transient user-visible alerts and the global
// progress indicator.
package notify

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
)

// DismissAfter is how long a banner stays in the active list.
const DismissAfter = 5 * time.Second

// Level is the severity of an alert.
type Level int

const (
	Info Level = iota
	Success
	Error
)

func (l Level) String() string {
	switch l {
	case Success:
		return "success"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Notifier shows alerts to the user.
type Notifier interface {
	Alert(level Level, text string)
}

// Banner is one shown alert.
type Banner struct {
	Level Level
	Text  string
	At    time.Time
}

// Banners prints coloured alerts and keeps each one active until it is
// dismissed after DismissAfter.
type Banners struct {
	mu     sync.Mutex
	out    io.Writer
	ttl    time.Duration
	now    func() time.Time
	active []Banner
}

// NewBanners writes alerts to out. A nil out only records them.
func NewBanners(out io.Writer) *Banners {
	return &Banners{out: out, ttl: DismissAfter, now: time.Now}
}

// SetDismissAfter overrides the banner lifetime.
func (b *Banners) SetDismissAfter(d time.Duration) {
	b.mu.Lock()
	b.ttl = d
	b.mu.Unlock()
}

// Alert implements Notifier.
func (b *Banners) Alert(level Level, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.active = append(b.active, Banner{Level: level, Text: text, At: b.now()})
	if b.out == nil {
		return
	}
	var paint func(format string, a ...interface{}) string
	switch level {
	case Success:
		paint = color.GreenString
	case Error:
		paint = color.RedString
	default:
		paint = color.CyanString
	}
	fmt.Fprintln(b.out, paint("[%s] %s", level, text))
}

// Active returns banners not yet dismissed.
func (b *Banners) Active() []Banner {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	kept := b.active[:0]
	for _, banner := range b.active {
		if now.Sub(banner.At) < b.ttl {
			kept = append(kept, banner)
		}
	}
	b.active = kept
	return append([]Banner(nil), kept...)
}

// Func adapts a function to Notifier.
type Func func(level Level, text string)

// Alert implements Notifier.
func (f Func) Alert(level Level, text string) { f(level, text) }

// Nop discards alerts.
var Nop Notifier = Func(func(Level, string) {})
