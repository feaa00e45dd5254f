package cron

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/multierr"

	"github.com/angelmondragon/farmlane-backend/pkg/logger"
	"github.com/angelmondragon/farmlane-backend/pkg/metrics"
)

type fakeLock struct {
	held     bool
	released int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.released++
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func testLogger(buf *bytes.Buffer) *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: buf})
}

func TestRunOnceRunsEveryJobAndCombinesFailures(t *testing.T) {
	var buf bytes.Buffer
	ok := &testJob{name: "ok"}
	bad := &testJob{name: "bad", err: errors.New("boom")}
	worse := &testJob{name: "worse", err: errors.New("bang")}
	lock := &fakeLock{}
	registry := prometheus.NewRegistry()
	cronMetrics := metrics.NewCronJobMetrics(registry)

	service, err := NewService(ServiceParams{
		Logger:   testLogger(&buf),
		Registry: NewRegistry(bad, ok, worse),
		Lock:     lock,
		Metrics:  cronMetrics,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	ran, err := service.RunOnce(context.Background())
	if !ran {
		t.Fatal("expected cycle to run")
	}
	if got := len(multierr.Errors(err)); got != 2 {
		t.Fatalf("expected 2 combined errors, got %d (%v)", got, err)
	}
	if !strings.Contains(err.Error(), "bad: boom") || !strings.Contains(err.Error(), "worse: bang") {
		t.Fatalf("unexpected error text %q", err.Error())
	}
	for _, job := range []*testJob{ok, bad, worse} {
		if job.runs != 1 {
			t.Fatalf("job %s ran %d times", job.name, job.runs)
		}
	}
	if lock.released != 1 || lock.held {
		t.Fatalf("expected lock released once, released=%d held=%v", lock.released, lock.held)
	}
	n, err := testutil.GatherAndCount(registry, "cron_job_runs_total")
	if err != nil || n != 3 {
		t.Fatalf("expected a run series per job, got %d (%v)", n, err)
	}
}

func TestRunOnceSkipsWhenLockIsHeld(t *testing.T) {
	var buf bytes.Buffer
	job := &testJob{name: "ok"}
	registry := prometheus.NewRegistry()
	service, err := NewService(ServiceParams{
		Logger:   testLogger(&buf),
		Registry: NewRegistry(job),
		Lock:     &fakeLock{held: true},
		Metrics:  metrics.NewCronJobMetrics(registry),
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	ran, err := service.RunOnce(context.Background())
	if err != nil || ran {
		t.Fatalf("expected skipped cycle, ran=%v err=%v", ran, err)
	}
	if job.runs != 0 {
		t.Fatalf("job must not run without the lock")
	}
	if !strings.Contains(buf.String(), "skipping cycle") {
		t.Fatalf("expected skip to be logged, got %s", buf.String())
	}
	if n, err := testutil.GatherAndCount(registry, "cron_lock_skipped_total"); err != nil || n != 1 {
		t.Fatalf("expected lock skip metric, got %d (%v)", n, err)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	var buf bytes.Buffer
	job := &testJob{name: "ok"}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(&buf),
		Registry: NewRegistry(job),
		Lock:     &fakeLock{},
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewServiceRequiresLoggerAndLock(t *testing.T) {
	if _, err := NewService(ServiceParams{Lock: &fakeLock{}}); err == nil {
		t.Fatal("expected logger error")
	}
	if _, err := NewService(ServiceParams{Logger: testLogger(&bytes.Buffer{})}); err == nil {
		t.Fatal("expected lock error")
	}
}
