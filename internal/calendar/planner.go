// Package calendar turns weekly slot preferences plus release offsets into
// concrete future run instants.
package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/example/court-scheduler/internal/config"
	"github.com/example/court-scheduler/internal/scheduler"
	"github.com/google/uuid"
)

// BookFunc is the booking entry point a planned task is bound to.
type BookFunc func(ctx context.Context, user config.User, slot config.Slot, date time.Time)

// Plan expands the provider's slots over the lookahead window. For every slot
// and every calendar date whose weekday matches the slot's target day, it
// emits one task whose run instant is the date minus the venue's release
// offset: the moment the platform makes that date bookable.
//
// A slot whose venue has no release schedule, or whose user is unknown, is a
// configuration error and fails here at plan time, never at fire time. Tasks
// already past due are still emitted; the scheduler fires them immediately.
func Plan(now time.Time, loc *time.Location, lookaheadDays int, p config.Provider, book BookFunc) ([]scheduler.Task, error) {
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	var tasks []scheduler.Task
	for _, slot := range p.Slots {
		rs, err := p.ReleaseScheduleFor(slot.TargetVenue)
		if err != nil {
			return nil, fmt.Errorf("slot %q: %w", slot.ID, err)
		}
		user, err := p.UserByID(slot.User)
		if err != nil {
			return nil, fmt.Errorf("slot %q: %w", slot.ID, err)
		}
		day, err := config.ParseWeekday(slot.TargetDay)
		if err != nil {
			return nil, fmt.Errorf("slot %q: %w", slot.ID, err)
		}

		for i := 0; i < lookaheadDays; i++ {
			date := today.AddDate(0, 0, i)
			if date.Weekday() != day {
				continue
			}
			runAt := rs.ReleaseAt(date)

			user, slot, date := user, slot, date
			tasks = append(tasks, scheduler.Task{
				Name:  taskName(slot, date),
				RunAt: runAt,
				Action: func(ctx context.Context) {
					book(ctx, user, slot, date)
				},
			})
		}
	}
	return tasks, nil
}

// taskName is deterministic up to a short random disambiguator, so two plans
// for the same slot and date never silently replace each other.
func taskName(slot config.Slot, date time.Time) string {
	uid := uuid.NewString()[:4]
	return fmt.Sprintf("booking %s: %s %s %s %s",
		uid, slot.User, slot.TargetDay, slot.TargetVenue, date.Format("2006-01-02"))
}
