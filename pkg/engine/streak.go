package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"momentum-hq/engine/pkg/rules"
	"momentum-hq/engine/pkg/store"
)

// UpdateStreak records today's activity. Repeating it on the same day
// changes nothing. A concurrent update is retried once against the fresh
// record.
func (e *Engine) UpdateStreak(ctx context.Context, userID string) (*StreakUpdate, error) {
	rec, err := e.loadStreak(ctx, userID)
	if err != nil {
		return nil, err
	}

	today := e.now()
	for attempt := 0; ; attempt++ {
		next, milestone := e.thresholds.TransitionStreak(*rec, today)
		if next.CurrentStreak == rec.CurrentStreak && sameDay(next.LastActivityDate, rec.LastActivityDate) {
			return streakUpdate(*rec, 0), nil
		}

		saved, err := e.store.PutStreak(ctx, next)
		if err == nil {
			if milestone > 0 {
				e.logger.Info("streak milestone", "user_id", userID, "milestone", milestone)
			}
			return streakUpdate(*saved, milestone), nil
		}
		if !errors.Is(err, store.ErrConflict) || attempt > 0 {
			return nil, fmt.Errorf("save streak: %w", err)
		}

		e.logger.Debug("streak write conflict, retrying", "user_id", userID)
		if rec, err = e.store.GetStreak(ctx, userID); err != nil {
			return nil, translate(err)
		}
	}
}

// GetStreak reports the learner's streak and whether it is at risk.
func (e *Engine) GetStreak(ctx context.Context, userID string) (*StreakView, error) {
	rec, err := e.loadStreak(ctx, userID)
	if err != nil {
		return nil, err
	}
	status, rescue := rec.Status(e.now())
	return &StreakView{
		CurrentStreak:    rec.CurrentStreak,
		LongestStreak:    rec.LongestStreak,
		LastActivityDate: rec.LastActivityDate,
		Status:           status,
		DaysUntilRescue:  rescue,
	}, nil
}

// loadStreak returns the learner's streak, creating the zero record for a
// learner enrolled before streaks were tracked.
func (e *Engine) loadStreak(ctx context.Context, userID string) (*rules.StreakRecord, error) {
	rec, err := e.store.GetStreak(ctx, userID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load streak: %w", err)
	}
	if _, err := e.store.GetLearner(ctx, userID); err != nil {
		return nil, translate(err)
	}
	rec, err = e.store.CreateStreak(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("create streak: %w", err)
	}
	return rec, nil
}

func streakUpdate(rec rules.StreakRecord, milestone int) *StreakUpdate {
	return &StreakUpdate{
		CurrentStreak: rec.CurrentStreak,
		LongestStreak: rec.LongestStreak,
		Milestone:     milestone,
		Message:       rules.StreakMessage(rec.CurrentStreak),
	}
}

func sameDay(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
