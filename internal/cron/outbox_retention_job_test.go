package cron

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"
)

type fakeOutboxPurger struct {
	cutoff time.Time
	called int
	err    error
}

func (f *fakeOutboxPurger) DeletePublishedBefore(_ *gorm.DB, cutoff time.Time) (int64, error) {
	f.called++
	f.cutoff = cutoff
	if f.err != nil {
		return 0, f.err
	}
	return 7, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func newOutboxRetentionJob(t *testing.T, repo *fakeOutboxPurger, days int) *outboxRetentionJob {
	t.Helper()
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:        testLogger(&bytes.Buffer{}),
		DB:            passthroughTx{},
		Repository:    repo,
		RetentionDays: days,
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	return job.(*outboxRetentionJob)
}

func TestOutboxRetentionJobUsesRetentionWindow(t *testing.T) {
	now := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxPurger{}
	job := newOutboxRetentionJob(t, repo, 7)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.Add(-7 * 24 * time.Hour); !repo.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, repo.cutoff)
	}
	if repo.called != 1 {
		t.Fatalf("expected one purge, got %d", repo.called)
	}
}

func TestOutboxRetentionJobDefaultsAndErrors(t *testing.T) {
	repo := &fakeOutboxPurger{err: errors.New("boom")}
	job := newOutboxRetentionJob(t, repo, 0)
	if job.retention != outboxRetentionDays*24*time.Hour {
		t.Fatalf("unexpected default retention %s", job.retention)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
