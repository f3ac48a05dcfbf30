package settings

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goodsign/monday"
	golocale "github.com/jeandeaual/go-locale"
	"golang.org/x/text/language"
)

// ValidateLocale parses tag as a BCP 47 identifier.
func ValidateLocale(tag string) (language.Tag, error) {
	t, err := language.Parse(strings.TrimSpace(tag))
	if err != nil {
		return language.Und, fmt.Errorf("%w: %q", ErrInvalidLocale, tag)
	}
	if t == language.Und {
		return language.Und, fmt.Errorf("%w: %q", ErrInvalidLocale, tag)
	}
	return t, nil
}

// FormatUnix renders a unix timestamp in local time using the effective
// locale, or the platform locale when none is selected.
func (s *Settings) FormatUnix(ts float64) string {
	return FormatUnixIn(s.Locale(), ts, time.Local)
}

// FormatUnixIn renders ts in loc with the date-time layout of locale.
// Locales without a known layout use isoLayout.
func FormatUnixIn(locale string, ts float64, loc *time.Location) string {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	t := time.Unix(sec, nsec).In(loc)
	if locale == "" {
		locale = platformLocale()
	}
	l, layout, ok := layoutFor(locale)
	if !ok {
		return t.Format(isoLayout)
	}
	return monday.Format(t, layout, l)
}

const isoLayout = "2006-01-02 15:04:05"

// localeTable maps BCP 47 tags onto the locales that have a date-time layout.
type localeTable struct {
	locales []monday.Locale
	matcher language.Matcher
}

var formatLocales = newLocaleTable()

func newLocaleTable() localeTable {
	all := monday.ListLocales()
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })

	var lt localeTable
	tags := make([]language.Tag, 0, len(all))
	for _, l := range all {
		if _, ok := monday.DateTimeFormatsByLocale[l]; !ok {
			continue
		}
		t, err := language.Parse(strings.ReplaceAll(string(l), "_", "-"))
		if err != nil {
			continue
		}
		lt.locales = append(lt.locales, l)
		tags = append(tags, t)
	}
	lt.matcher = language.NewMatcher(tags)
	return lt
}

// layoutFor resolves locale to the closest formatting locale and its
// date-time layout with seconds.
func layoutFor(locale string) (monday.Locale, string, bool) {
	tag, err := ValidateLocale(locale)
	if err != nil || len(formatLocales.locales) == 0 {
		return "", "", false
	}
	_, i, conf := formatLocales.matcher.Match(tag)
	if conf == language.No || i < 0 || i >= len(formatLocales.locales) {
		return "", "", false
	}
	l := formatLocales.locales[i]
	layout := monday.DateTimeFormatsByLocale[l]
	if !strings.Contains(layout, ":05") {
		layout = strings.Replace(layout, ":04", ":04:05", 1)
	}
	return l, layout, true
}

// platformLocale returns the user's locale as a BCP 47 tag, empty when it
// cannot be determined.
func platformLocale() string {
	l, err := golocale.GetLocale()
	if err != nil {
		return ""
	}
	l = strings.ReplaceAll(l, "_", "-")
	if l == "C" || l == "POSIX" {
		return ""
	}
	return l
}
