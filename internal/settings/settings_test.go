package settings

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/goodsign/monday"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailctl/internal/store"
)

func newSettings(t *testing.T) (*Settings, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	st, err := store.Open(path)
	require.NoError(t, err)
	return New(st), path
}

func TestTimeout_DefaultsAndClamps(t *testing.T) {
	t.Parallel()

	s, path := newSettings(t)
	assert.Equal(t, DefaultTimeout, s.Timeout())

	var applied []time.Duration
	s.OnTimeoutChange(func(d time.Duration) { applied = append(applied, d) })

	d, err := s.SetTimeout("-5")
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, d)

	d, err = s.SetTimeout("abc")
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, d)

	d, err = s.SetTimeout("1500")
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, d)
	assert.Equal(t, []time.Duration{DefaultTimeout, DefaultTimeout, 1500 * time.Millisecond}, applied)

	st, err := store.Open(path)
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, New(st).Timeout())
}

func TestConnectTimeout_NeverBelowDefault(t *testing.T) {
	t.Parallel()

	s, _ := newSettings(t)
	_, err := s.SetTimeout("100")
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, s.ConnectTimeout())

	_, err = s.SetTimeout("60000")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, s.ConnectTimeout())

	d, err := s.RestoreTimeout()
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, d)
}

func TestLocale_CustomAndInvalid(t *testing.T) {
	t.Parallel()

	s, _ := newSettings(t)
	assert.Equal(t, LocaleBrowser, s.LocaleMode())
	assert.Empty(t, s.Locale())

	require.NoError(t, s.SetCustomLocale("de-DE"))
	assert.Empty(t, s.Locale(), "custom locale only applies in custom mode")

	require.NoError(t, s.SetLocaleMode(LocaleCustom))
	assert.Equal(t, "de-DE", s.Locale())

	err := s.SetCustomLocale("not a locale")
	assert.True(t, errors.Is(err, ErrInvalidLocale))
	assert.Empty(t, s.Locale())
	assert.Equal(t, "de-DE", s.CustomLocale())

	assert.Error(t, s.SetLocaleMode("klingon"))

	require.NoError(t, s.SetCustomLocale(""))
	assert.Empty(t, s.CustomLocale())
}

func TestFormatUnixIn(t *testing.T) {
	t.Parallel()

	ts := time.Date(2023, time.November, 14, 22, 13, 20, 0, time.UTC)
	for _, c := range []struct {
		locale string
		want   monday.Locale
	}{
		{"en-US", monday.LocaleEnUS},
		{"de-DE", monday.LocaleDeDE},
		{"de", monday.LocaleDeDE},
	} {
		l, layout, ok := layoutFor(c.locale)
		require.True(t, ok, c.locale)
		assert.Equal(t, c.want, l, c.locale)
		assert.Contains(t, layout, ":05", c.locale)

		got := FormatUnixIn(c.locale, float64(ts.Unix()), time.UTC)
		assert.Equal(t, monday.Format(ts, layout, l), got, c.locale)
		assert.Contains(t, got, ":20", c.locale)
	}

	assert.NotEqual(t, FormatUnixIn("en-US", float64(ts.Unix()), time.UTC), FormatUnixIn("de-DE", float64(ts.Unix()), time.UTC))
	assert.Equal(t, "1970-01-01 00:00:01", FormatUnixIn("bogus locale", 1.5, time.UTC))
	assert.Equal(t, "1970-01-01 00:00:01", FormatUnixIn("tlh", 1.5, time.UTC))
}

func TestPageSize(t *testing.T) {
	t.Parallel()

	s, _ := newSettings(t)
	for _, table := range Tables {
		assert.Equal(t, DefaultPageSize, s.PageSize(table))
	}

	ok, err := s.SetPageSize("history", 0)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, DefaultPageSize, s.PageSize("history"))

	ok, err = s.SetPageSize("history", 100)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 100, s.PageSize("history"))
	assert.Equal(t, DefaultPageSize, s.PageSize("scan"))
}
