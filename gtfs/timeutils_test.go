package gtfs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServiceTime(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Sofia")
	require.NoError(t, err)
	day := time.Date(2025, 6, 2, 14, 30, 0, 0, loc)

	tests := []struct {
		name  string
		clock string
		want  time.Time
		ok    bool
	}{
		{
			name:  "plain afternoon time",
			clock: "15:04:05",
			want:  time.Date(2025, 6, 2, 15, 4, 5, 0, loc),
			ok:    true,
		},
		{
			name:  "after midnight rolls into next day",
			clock: "25:10:00",
			want:  time.Date(2025, 6, 3, 1, 10, 0, 0, loc),
			ok:    true,
		},
		{
			name:  "midnight of the service day",
			clock: "24:00:00",
			want:  time.Date(2025, 6, 3, 0, 0, 0, 0, loc),
			ok:    true,
		},
		{name: "missing seconds", clock: "15:04", ok: false},
		{name: "empty", clock: "", ok: false},
		{name: "garbage", clock: "ab:cd:ef", ok: false},
		{name: "minutes out of range", clock: "10:61:00", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseServiceTime(tt.clock, day, loc)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, got.Equal(tt.want), "got %v want %v", got, tt.want)
			}
		})
	}
}
