package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/welthhq/welth/internal/jobs"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestQueueDeliversJobToHandler(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 2, store)
	defer q.Close()

	var handled atomic.Int32
	handler := func(ctx context.Context, job jobs.Job) error {
		handled.Add(1)
		return nil
	}
	if err := q.Start(context.Background(), handler); err != nil {
		t.Fatal(err)
	}

	job := &jobs.PostRecurringJob{TransactionID: uuid.New(), UserID: uuid.New()}
	if err := q.PublishPostRecurring(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return handled.Load() == 1 })
	waitFor(t, func() bool {
		saved, err := store.GetJob(context.Background(), job.JobID)
		return err == nil && saved.Status == jobs.JobStatusCompleted
	})
}

func TestQueueRetriesThenMarksFailed(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, store)
	defer q.Close()

	var attempts atomic.Int32
	handler := func(ctx context.Context, job jobs.Job) error {
		attempts.Add(1)
		return errors.New("transient failure")
	}
	if err := q.Start(context.Background(), handler); err != nil {
		t.Fatal(err)
	}

	job := &jobs.PostRecurringJob{TransactionID: uuid.New(), UserID: uuid.New(), MaxAttempts: 2}
	if err := q.PublishPostRecurring(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		saved, err := store.GetJob(context.Background(), job.JobID)
		return err == nil && saved.Status == jobs.JobStatusFailed
	})
	if got := attempts.Load(); got != 2 {
		t.Errorf("handler invoked %d times, want 2", got)
	}
	saved, err := store.GetJob(context.Background(), job.JobID)
	if err != nil {
		t.Fatal(err)
	}
	if saved.Error == "" {
		t.Error("failed job has no error recorded")
	}
}

func TestPublishAfterCloseFails(t *testing.T) {
	q := NewQueue(1, 1, nil)
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}
	job := &jobs.PostRecurringJob{TransactionID: uuid.New(), UserID: uuid.New()}
	if err := q.PublishPostRecurring(context.Background(), job); err == nil {
		t.Fatal("expected publish on a closed queue to fail")
	}
}
