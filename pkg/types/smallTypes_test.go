package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLocale_String(t *testing.T) {
	tests := []struct {
		locale Locale
		want   string
	}{
		{Locale{Language: "en"}, "en"},
		{Locale{Language: "en", Country: "US"}, "en_US"},
		{Locale{Language: "de", Country: "CH", Variant: "POSIX"}, "de_CH_POSIX"},
		{Locale{Language: "en", Variant: "POSIX"}, "en__POSIX"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.locale.String())
	}
}

func TestParseLocale(t *testing.T) {
	l, ok := ParseLocale("en_US")
	assert.True(t, ok)
	assert.Equal(t, "en", l.Language)
	assert.Equal(t, "US", l.Country)
	assert.Equal(t, "", l.Variant)

	l, ok = ParseLocale("de_CH_POSIX")
	assert.True(t, ok)
	assert.Equal(t, Locale{Language: "de", Country: "CH", Variant: "POSIX"}, l)

	l, ok = ParseLocale("fr")
	assert.True(t, ok)
	assert.Equal(t, Locale{Language: "fr"}, l)

	_, ok = ParseLocale("")
	assert.False(t, ok)
}

func TestParseLocale_SkipsEmptyTokens(t *testing.T) {
	l, ok := ParseLocale("en__POSIX")
	assert.True(t, ok)
	assert.Equal(t, Locale{Language: "en", Country: "POSIX"}, l)
}

func TestParseLocale_DefaultLanguage(t *testing.T) {
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "is_IS.UTF-8")

	l, ok := ParseLocale("___")
	assert.True(t, ok)
	assert.Equal(t, "is", l.Language)
	assert.Equal(t, "", l.Country)
}

func TestDefaultLocale_Fallback(t *testing.T) {
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "C")

	assert.Equal(t, Locale{Language: "en"}, DefaultLocale())
}

func TestTimestamp_Time(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 30, 0, 123_000_000, time.UTC)
	ts := NewTimestamp(now)

	assert.True(t, ts.Time().Equal(now))
	assert.Equal(t, "1709296200123", ts.String())
}
