package schedule

import (
	"testing"
	"time"
)

func TestNextRunEvery(t *testing.T) {
	s := NewService(t.TempDir(), nil)

	every := int64(60_000)
	now := time.Now().UnixMilli()
	next := s.nextRun(&Spec{Kind: "every", EveryMS: &every}, now)
	if next == nil || *next != now+every {
		t.Fatalf("nextRun(every) = %v, want %d", next, now+every)
	}

	zero := int64(0)
	if s.nextRun(&Spec{Kind: "every", EveryMS: &zero}, now) != nil {
		t.Fatal("non-positive interval should yield no next run")
	}
}

func TestNextRunAt(t *testing.T) {
	s := NewService(t.TempDir(), nil)
	now := time.Now().UnixMilli()

	future := now + 5000
	if next := s.nextRun(&Spec{Kind: "at", AtMS: &future}, now); next == nil || *next != future {
		t.Fatalf("nextRun(at future) = %v, want %d", next, future)
	}

	past := now - 5000
	if s.nextRun(&Spec{Kind: "at", AtMS: &past}, now) != nil {
		t.Fatal("past 'at' time should yield no next run")
	}
}

func TestNextRunCron(t *testing.T) {
	s := NewService(t.TempDir(), nil)
	now := time.Now().UnixMilli()

	next := s.nextRun(&Spec{Kind: "cron", Expr: "0 8 * * *"}, now)
	if next == nil || *next <= now {
		t.Fatalf("nextRun(cron) = %v, want a future time", next)
	}

	if s.nextRun(&Spec{Kind: "cron", Expr: "not a cron expr"}, now) != nil {
		t.Fatal("invalid cron expression should yield no next run")
	}
}

func TestAddRemovePersist(t *testing.T) {
	dir := t.TempDir()
	s := NewService(dir, nil)

	job, err := s.AddJob("daily bangumi", Spec{Kind: "cron", Expr: "0 8 * * *"}, Payload{
		Kind:    "bangumi_daily",
		Channel: "onebot",
		ChatID:  "group:1",
	})
	if err != nil {
		t.Fatalf("AddJob returned error: %v", err)
	}
	if job.State.NextRunAtMS == nil {
		t.Fatal("new cron job should have a next run time")
	}

	reloaded := NewService(dir, nil)
	jobs := reloaded.Jobs()
	if len(jobs) != 1 || jobs[0].Name != "daily bangumi" {
		t.Fatalf("reloaded jobs = %v, want the added job", jobs)
	}

	if !reloaded.RemoveJob(job.ID) {
		t.Fatal("RemoveJob of existing job should succeed")
	}
	if reloaded.RemoveJob(job.ID) {
		t.Fatal("RemoveJob of missing job should fail")
	}
}
