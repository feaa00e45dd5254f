package cron

import (
	"context"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndRejectsDuplicates(t *testing.T) {
	registry := NewRegistry()
	audit := &stubJob{name: InventoryAuditJobName}
	backlog := &stubJob{name: CancellationBacklogJobName}
	if err := registry.Register(audit); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register(backlog); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register(&stubJob{name: InventoryAuditJobName}); err == nil {
		t.Fatal("expected duplicate name to be rejected")
	}
	if err := registry.Register(nil); err != nil {
		t.Fatalf("nil job should be ignored: %v", err)
	}

	jobs := registry.Jobs()
	if len(jobs) != 2 || jobs[0] != audit || jobs[1] != backlog {
		t.Fatalf("unexpected jobs %v", jobs)
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}
