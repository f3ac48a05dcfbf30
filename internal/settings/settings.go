// Package settings keeps the user-tunable console settings: request timeout,
// date locale and table page sizes. Values live in a durable store.File.
package settings

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"mailctl/internal/store"
)

const (
	DefaultTimeout  = 20000 * time.Millisecond
	DefaultPageSize = 25

	LocaleBrowser = "browser"
	LocaleCustom  = "custom"
)

const (
	keyTimeout        = "ajax_timeout"
	keySelectedLocale = "selected_locale"
	keyCustomLocale   = "custom_locale"
	keyPageSizePrefix = "page_size_"
)

// ErrInvalidLocale is returned for identifiers that cannot format a date.
var ErrInvalidLocale = errors.New("invalid locale")

// Tables with a configurable page size.
var Tables = []string{"scan", "errors", "history"}

// Settings is safe for concurrent use.
type Settings struct {
	store *store.File

	mu        sync.Mutex
	listeners []func(time.Duration)
	locale    string
}

// New wraps st and resolves the effective locale.
func New(st *store.File) *Settings {
	s := &Settings{store: st}
	s.locale = s.resolveLocale()
	return s
}

// Timeout returns the stored request timeout, or DefaultTimeout when unset
// or invalid.
func (s *Settings) Timeout() time.Duration {
	raw, _ := s.store.Get(keyTimeout)
	return clampTimeout(raw)
}

// ConnectTimeout never drops below DefaultTimeout so a tiny stored value
// cannot lock the user out of the login flow.
func (s *Settings) ConnectTimeout() time.Duration {
	if d := s.Timeout(); d > DefaultTimeout {
		return d
	}
	return DefaultTimeout
}

// SetTimeout parses raw milliseconds, falls back to DefaultTimeout for
// non-numeric or non-positive input, persists and applies the result.
func (s *Settings) SetTimeout(raw string) (time.Duration, error) {
	d := clampTimeout(raw)
	if err := s.store.Set(keyTimeout, strconv.FormatInt(d.Milliseconds(), 10)); err != nil {
		return d, err
	}
	s.notify(d)
	return d, nil
}

// RestoreTimeout resets the timeout to DefaultTimeout.
func (s *Settings) RestoreTimeout() (time.Duration, error) {
	return s.SetTimeout("")
}

// OnTimeoutChange registers fn to be called with every new effective timeout.
func (s *Settings) OnTimeoutChange(fn func(time.Duration)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Apply pushes the current timeout to every listener.
func (s *Settings) Apply() {
	s.notify(s.Timeout())
}

func (s *Settings) notify(d time.Duration) {
	s.mu.Lock()
	listeners := append([]func(time.Duration){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(d)
	}
}

func clampTimeout(raw string) time.Duration {
	ms, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || ms <= 0 {
		return DefaultTimeout
	}
	return time.Duration(ms) * time.Millisecond
}

// LocaleMode returns "browser" or "custom".
func (s *Settings) LocaleMode() string {
	if v, _ := s.store.Get(keySelectedLocale); v == LocaleCustom {
		return LocaleCustom
	}
	return LocaleBrowser
}

// SetLocaleMode switches between the platform default and the custom locale.
func (s *Settings) SetLocaleMode(mode string) error {
	if mode != LocaleBrowser && mode != LocaleCustom {
		return fmt.Errorf("unknown locale mode %q", mode)
	}
	if err := s.store.Set(keySelectedLocale, mode); err != nil {
		return err
	}
	s.mu.Lock()
	s.locale = s.resolveLocale()
	s.mu.Unlock()
	return nil
}

// CustomLocale returns the stored custom locale identifier.
func (s *Settings) CustomLocale() string {
	v, _ := s.store.Get(keyCustomLocale)
	return v
}

// SetCustomLocale validates and stores tag. An empty tag clears the custom
// locale. An invalid tag is not stored and the platform default is used.
func (s *Settings) SetCustomLocale(tag string) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		s.mu.Lock()
		s.locale = ""
		s.mu.Unlock()
		return s.store.Remove(keyCustomLocale)
	}
	if _, err := ValidateLocale(tag); err != nil {
		s.mu.Lock()
		s.locale = ""
		s.mu.Unlock()
		return err
	}
	if err := s.store.Set(keyCustomLocale, tag); err != nil {
		return err
	}
	s.mu.Lock()
	s.locale = s.resolveLocale()
	s.mu.Unlock()
	return nil
}

// Locale returns the effective locale, empty for the platform default.
func (s *Settings) Locale() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locale
}

func (s *Settings) resolveLocale() string {
	if s.LocaleMode() != LocaleCustom {
		return ""
	}
	tag := s.CustomLocale()
	if _, err := ValidateLocale(tag); err != nil {
		return ""
	}
	return tag
}

// PageSize returns the page size of table.
func (s *Settings) PageSize(table string) int {
	raw, _ := s.store.Get(keyPageSizePrefix + table)
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return DefaultPageSize
	}
	return n
}

// SetPageSize stores n for table. Non-positive values are ignored.
func (s *Settings) SetPageSize(table string, n int) (bool, error) {
	if n <= 0 {
		return false, nil
	}
	if err := s.store.Set(keyPageSizePrefix+table, strconv.Itoa(n)); err != nil {
		return false, err
	}
	return true, nil
}
