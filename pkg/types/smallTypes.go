package types

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Locale is a language/country/variant triple. It is stored as a single
// underscore-joined string, e.g. "en_US" or "de_CH_POSIX".
type Locale struct {
	Language string
	Country  string
	Variant  string
}

// String renders the locale in language_country_variant form. Empty trailing
// parts are dropped, an empty country between language and variant is kept.
func (l Locale) String() string {
	s := l.Language
	if l.Country != "" || l.Variant != "" {
		s += "_" + l.Country
	}
	if l.Variant != "" {
		s += "_" + l.Variant
	}
	return s
}

func (l Locale) IsZero() bool {
	return l == Locale{}
}

// ParseLocale parses a language_country_variant string. Empty tokens are
// skipped, so "en__POSIX" yields country "POSIX". A missing language falls back
// to the platform default. ok is false for an empty input.
func ParseLocale(s string) (locale Locale, ok bool) {
	if s == "" {
		return Locale{}, false
	}

	tokens := strings.FieldsFunc(s, func(r rune) bool { return r == '_' })
	next := func() (string, bool) {
		if len(tokens) == 0 {
			return "", false
		}
		t := tokens[0]
		tokens = tokens[1:]
		return t, true
	}

	if lang, found := next(); found {
		locale.Language = lang
	} else {
		locale.Language = DefaultLocale().Language
	}
	locale.Country, _ = next()
	locale.Variant, _ = next()

	return locale, true
}

// DefaultLocale derives the platform locale from LC_ALL, LC_MESSAGES or LANG
// and falls back to "en".
func DefaultLocale() Locale {
	for _, env := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		v := os.Getenv(env)
		if v == "" || v == "C" || v == "POSIX" {
			continue
		}
		// strip codeset and modifier: en_US.UTF-8@euro
		if i := strings.IndexAny(v, ".@"); i >= 0 {
			v = v[:i]
		}
		if l, ok := ParseLocale(v); ok && l.Language != "" {
			return l
		}
	}
	return Locale{Language: "en"}
}

// Timestamp is a point in time with millisecond precision, stored as
// milliseconds since the unix epoch.
type Timestamp int64

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp(t.UnixMilli())
}

func (ts Timestamp) Time() time.Time {
	return time.UnixMilli(int64(ts))
}

func (ts Timestamp) String() string {
	return strconv.FormatInt(int64(ts), 10)
}
