package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/carebook/carebook/internal/domain/roster"
)

// LeaveSweepJob is the scheduler name of the emergency-leave sweep.
const LeaveSweepJob = "leave_sweep"

// LeaveClearer drops emergency-leave markers dated before today.
// *roster.Service implements it.
type LeaveClearer interface {
	ClearExpiredLeave(ctx context.Context, today string) (int64, error)
}

// LeaveSweeper clears emergency leave that has passed, so a stale marker never
// shows on a doctor's profile.
type LeaveSweeper struct {
	roster LeaveClearer
	loc    *time.Location
	now    func() time.Time
	logger zerolog.Logger
}

func NewLeaveSweeper(r LeaveClearer, loc *time.Location, logger zerolog.Logger) *LeaveSweeper {
	if loc == nil {
		loc = time.UTC
	}
	return &LeaveSweeper{
		roster: r,
		loc:    loc,
		now:    time.Now,
		logger: logger.With().Str("job", LeaveSweepJob).Logger(),
	}
}

// Run performs one sweep and returns how many doctors were cleared.
func (s *LeaveSweeper) Run(ctx context.Context) (int64, error) {
	today := s.now().In(s.loc).Format(roster.DateLayout)
	n, err := s.roster.ClearExpiredLeave(ctx, today)
	if err != nil {
		return 0, err
	}
	s.logger.Info().Str("today", today).Int64("cleared", n).Msg("leave sweep done")
	return n, nil
}

// Job adapts Run to the scheduler.
func (s *LeaveSweeper) Job() Job {
	return func(ctx context.Context) error {
		_, err := s.Run(ctx)
		return err
	}
}
