package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	require.True(t, ok)
	assert.Equal(t, s, got.UTC().Format(time.RFC3339))

	got, ok = ParseTime(`"2024-10-10T10:10:10.250Z"`)
	require.True(t, ok)
	assert.Equal(t, 250*time.Millisecond, time.Duration(got.Nanosecond()))
}

func TestParseTimeEpoch(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)

	got, ok := ParseTime(strconv.FormatInt(ts.Unix(), 10))
	require.True(t, ok)
	assert.Equal(t, ts.Unix(), got.Unix())

	got, ok = ParseTime(strconv.FormatInt(ts.UnixMilli(), 10))
	require.True(t, ok)
	assert.True(t, got.Equal(ts))

	got, ok = ParseTime("1728555010.5")
	require.True(t, ok)
	assert.Equal(t, int64(1728555010500), got.UnixMilli())
}

func TestParseTimeRejects(t *testing.T) {
	for _, s := range []string{"", "null", "0", "-5", "yesterday"} {
		_, ok := ParseTime(s)
		assert.False(t, ok, s)
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	assert.True(t, ParseTimeDefault("", def).Equal(def))
	assert.True(t, ParseTimeDefault("bogus", def).Equal(def))
}
