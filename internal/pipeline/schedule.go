package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ParseClock parses a "HH:MM" time of day.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q, want HH:MM: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

// NextRun returns the first moment strictly after now at hour:minute in
// now's location.
func NextRun(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Schedule runs job every day at dailyAt ("HH:MM", local time) until ctx is
// done. Job errors are logged and the schedule continues.
func Schedule(ctx context.Context, dailyAt string, job func(context.Context) error) error {
	hour, minute, err := ParseClock(dailyAt)
	if err != nil {
		return err
	}

	for {
		next := NextRun(time.Now(), hour, minute)
		slog.Info("next scheduled refresh", "at", next)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		slog.Info("scheduled refresh starting")
		if err := job(ctx); err != nil {
			slog.Error("scheduled refresh failed", "error", err)
		}
	}
}
