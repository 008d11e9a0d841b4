package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/carebook/carebook/internal/domain/roster"
)

type recordingClearer struct {
	today string
	n     int64
	err   error
}

func (r *recordingClearer) ClearExpiredLeave(_ context.Context, today string) (int64, error) {
	r.today = today
	return r.n, r.err
}

func TestLeaveSweeper_UsesLocalDate(t *testing.T) {
	clearer := &recordingClearer{n: 2}
	ist := time.FixedZone("IST", 5*60*60+30*60)
	s := NewLeaveSweeper(clearer, ist, zerolog.Nop())
	// 19:00 UTC on 4 March is 00:30 on 5 March in IST.
	s.now = func() time.Time { return time.Date(2024, time.March, 4, 19, 0, 0, 0, time.UTC) }

	n, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 2 || clearer.today != "2024-03-05" {
		t.Errorf("expected 2 cleared before 2024-03-05, got %d before %s", n, clearer.today)
	}
}

func TestLeaveSweeper_Error(t *testing.T) {
	clearer := &recordingClearer{err: errors.New("db down")}
	s := NewLeaveSweeper(clearer, time.UTC, zerolog.Nop())
	if err := s.Job()(context.Background()); err == nil {
		t.Error("expected error from job")
	}
}

func TestLeaveSweeper_WithRoster(t *testing.T) {
	hospitals := roster.NewMemoryHospitalRepo()
	svc := roster.NewService(hospitals, roster.NewMemoryDoctorRepo(hospitals), 3, zerolog.Nop())
	ctx := context.Background()
	old, _ := svc.CreateDoctor(ctx, "citycare", roster.DoctorInput{Name: "Dr. Old", EmergencyLeaveDate: "2024-03-01", EmergencyLeaveSession: "morning"})
	cur, _ := svc.CreateDoctor(ctx, "citycare", roster.DoctorInput{Name: "Dr. Now", EmergencyLeaveDate: "2024-03-05", EmergencyLeaveSession: "morning"})

	s := NewLeaveSweeper(svc, time.UTC, zerolog.Nop())
	s.now = func() time.Time { return time.Date(2024, time.March, 5, 0, 5, 0, 0, time.UTC) }
	if n, err := s.Run(ctx); err != nil || n != 1 {
		t.Fatalf("expected 1 cleared, got %d (%v)", n, err)
	}

	if d, _ := svc.GetDoctor(ctx, old.ID); d.EmergencyLeave != nil {
		t.Error("past leave should be cleared")
	}
	if d, _ := svc.GetDoctor(ctx, cur.ID); d.EmergencyLeave == nil {
		t.Error("today's leave must stay")
	}
}

func TestScheduler_RegisterRejectsBadSpec(t *testing.T) {
	s := NewScheduler(time.UTC, zerolog.Nop())
	err := s.Register("broken", "every day at noon", func(context.Context) error { return nil })
	if err == nil {
		t.Error("expected invalid cron expression error")
	}
}

func TestScheduler_RunsRegisteredJob(t *testing.T) {
	s := NewScheduler(time.UTC, zerolog.Nop())
	ran := make(chan struct{}, 1)
	if err := s.Register("probe", "5 0 * * *", func(ctx context.Context) error {
		if ctx.Err() != nil {
			t.Error("job context must be live while the scheduler runs")
		}
		ran <- struct{}{}
		return nil
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	entries := s.cron.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if next := entries[0].Schedule.Next(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)); next.Minute() != 5 {
		t.Errorf("expected next run at minute 5, got %s", next)
	}

	entries[0].WrappedJob.Run()
	select {
	case <-ran:
	default:
		t.Error("job did not run")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	if s.ctx.Err() == nil {
		t.Error("stop must cancel the job context")
	}
}
