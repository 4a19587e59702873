package helpers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestampRFC3339(t *testing.T) {
	ts, err := ParseTimestamp("2024-01-31T15:45:01+11:00")
	require.NoError(t, err)
	assert.Equal(t, 2024, ts.Year())
	assert.Equal(t, time.January, ts.Month())
	assert.Equal(t, 31, ts.Day())
}

func TestParseTimestampLegacyLayouts(t *testing.T) {
	for _, value := range []string{
		"2024-01-31 15:45:01.123456+11:00",
		"2024-01-31 15:45:01+11:00",
	} {
		ts, err := ParseTimestamp(value)
		require.NoError(t, err, value)
		assert.Equal(t, 15, ts.Hour(), value)
	}
}

func TestParseTimestampUnknownLayout(t *testing.T) {
	_, err := ParseTimestamp("31/01/2024 midnight-ish")
	assert.Error(t, err)
}

func TestFormatTimestampRoundTrip(t *testing.T) {
	loc := time.FixedZone("AEDT", 11*3600)
	orig := time.Date(2024, time.January, 31, 15, 45, 1, 0, loc)
	parsed, err := ParseTimestamp(FormatTimestamp(orig))
	require.NoError(t, err)
	assert.True(t, orig.Equal(parsed))
}

func TestProfileURL(t *testing.T) {
	assert.Equal(t, "https://instagram.com/some.friend", ProfileURL("some.friend"))
}
