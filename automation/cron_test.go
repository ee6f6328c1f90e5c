package automation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusiot/lattice/entity"
)

func TestParseSchedule(t *testing.T) {
	_, loc, err := parseSchedule(entity.TriggerConfig{Cron: "*/5 * * * *"})
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	_, loc, err = parseSchedule(entity.TriggerConfig{Cron: "0 9 * * 1", Timezone: "America/New_York"})
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())

	_, _, err = parseSchedule(entity.TriggerConfig{Cron: "not a cron"})
	assert.Error(t, err)

	_, _, err = parseSchedule(entity.TriggerConfig{Cron: "* * * * *", Timezone: "Mars/Olympus"})
	assert.Error(t, err)
}

func TestScheduleMatches(t *testing.T) {
	tests := []struct {
		name    string
		trigger entity.TriggerConfig
		now     time.Time
		want    bool
	}{
		{
			"every minute",
			entity.TriggerConfig{Cron: "* * * * *"},
			time.Date(2025, 3, 14, 12, 7, 33, 0, time.UTC),
			true,
		},
		{
			"five minute boundary hit",
			entity.TriggerConfig{Cron: "*/5 * * * *"},
			time.Date(2025, 3, 14, 12, 5, 0, 0, time.UTC),
			true,
		},
		{
			"five minute boundary hit mid-minute",
			entity.TriggerConfig{Cron: "*/5 * * * *"},
			time.Date(2025, 3, 14, 12, 5, 59, 0, time.UTC),
			true,
		},
		{
			"five minute boundary miss",
			entity.TriggerConfig{Cron: "*/5 * * * *"},
			time.Date(2025, 3, 14, 12, 7, 0, 0, time.UTC),
			false,
		},
		{
			"daily at 9 in local zone",
			entity.TriggerConfig{Cron: "0 9 * * *", Timezone: "America/New_York"},
			// 13:00 UTC is 09:00 in New York during DST.
			time.Date(2025, 6, 10, 13, 0, 10, 0, time.UTC),
			true,
		},
		{
			"daily at 9 wrong utc hour",
			entity.TriggerConfig{Cron: "0 9 * * *", Timezone: "America/New_York"},
			time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC),
			false,
		},
		{
			"invalid cron never matches",
			entity.TriggerConfig{Cron: "banana"},
			time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC),
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scheduleMatches(tt.trigger, tt.now))
		})
	}
}

func TestNextFire(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 7, 30, 0, time.UTC)

	next, ok := nextFire(entity.TriggerConfig{Cron: "*/5 * * * *"}, now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 3, 14, 12, 10, 0, 0, time.UTC), next.UTC())

	// Strictly after now: exactly on a boundary advances to the next one.
	boundary := time.Date(2025, 3, 14, 12, 10, 0, 0, time.UTC)
	next, ok = nextFire(entity.TriggerConfig{Cron: "*/5 * * * *"}, boundary)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 3, 14, 12, 15, 0, 0, time.UTC), next.UTC())

	_, ok = nextFire(entity.TriggerConfig{Cron: "bad"}, now)
	assert.False(t, ok)
}
