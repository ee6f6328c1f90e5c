package automation

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nimbusiot/lattice/entity"
)

// cronParser accepts the standard five-field expressions tenants write.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// parseSchedule compiles a schedule trigger's cron expression, resolving
// the optional timezone.
func parseSchedule(trigger entity.TriggerConfig) (cron.Schedule, *time.Location, error) {
	sched, err := cronParser.Parse(trigger.Cron)
	if err != nil {
		return nil, nil, fmt.Errorf("parse cron %q: %w", trigger.Cron, err)
	}

	loc := time.UTC
	if trigger.Timezone != "" {
		loc, err = time.LoadLocation(trigger.Timezone)
		if err != nil {
			return nil, nil, fmt.Errorf("load timezone %q: %w", trigger.Timezone, err)
		}
	}
	return sched, loc, nil
}

// scheduleMatches reports whether a schedule fires at now, at minute
// granularity: the minute containing now is an activation minute.
func scheduleMatches(trigger entity.TriggerConfig, now time.Time) bool {
	sched, loc, err := parseSchedule(trigger)
	if err != nil {
		return false
	}
	minute := now.In(loc).Truncate(time.Minute)
	return sched.Next(minute.Add(-time.Second)).Equal(minute)
}

// nextFire returns the schedule's next activation strictly after now.
func nextFire(trigger entity.TriggerConfig, now time.Time) (time.Time, bool) {
	sched, loc, err := parseSchedule(trigger)
	if err != nil {
		return time.Time{}, false
	}
	return sched.Next(now.In(loc)), true
}
