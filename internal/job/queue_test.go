package job

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func newTestQueue(t *testing.T) *JobQueue {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec(`
		CREATE TABLE jobs (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			track_id TEXT NOT NULL,
			progress REAL NOT NULL DEFAULT 0,
			error TEXT,
			created_at DATETIME NOT NULL,
			started_at DATETIME,
			completed_at DATETIME
		)`); err != nil {
		t.Fatal(err)
	}
	return NewJobQueue(db)
}

func waitForStatus(t *testing.T, q *JobQueue, id string, want JobStatus) *Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		j, err := q.GetJob(id)
		if err == nil && j.Status == want {
			return j
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", id, want)
	return nil
}

func TestQueueRunsJobsEnqueuedBeforeStart(t *testing.T) {
	q := newTestQueue(t)
	defer q.Stop()

	// Enqueue first, register and start after: a job persisted before
	// the worker runs must wait for its handler, not fail without one.
	j, err := q.Enqueue(JobSpellCheckTrack, "track-1")
	if err != nil {
		t.Fatal(err)
	}

	ran := make(chan string, 1)
	q.RegisterHandler(JobSpellCheckTrack, func(ctx context.Context, job *Job, progress func(float64)) error {
		progress(0.5)
		ran <- job.TrackID
		return nil
	})
	q.Start()

	select {
	case trackID := <-ran:
		if trackID != "track-1" {
			t.Errorf("handler got track %q", trackID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler never ran")
	}
	done := waitForStatus(t, q, j.ID, StatusCompleted)
	if done.Progress != 1.0 {
		t.Errorf("progress = %v, want 1.0", done.Progress)
	}
}

func TestQueueFailsJobOnHandlerError(t *testing.T) {
	q := newTestQueue(t)
	defer q.Stop()

	q.RegisterHandler(JobSpellCheckTrack, func(ctx context.Context, job *Job, progress func(float64)) error {
		return context.DeadlineExceeded
	})
	q.Start()

	j, err := q.Enqueue(JobSpellCheckTrack, "track-2")
	if err != nil {
		t.Fatal(err)
	}
	failed := waitForStatus(t, q, j.ID, StatusFailed)
	if failed.Error == "" {
		t.Error("failed job carries no error message")
	}
}

func TestQueueListJobsByTrack(t *testing.T) {
	q := newTestQueue(t)
	defer q.Stop()

	if _, err := q.Enqueue(JobSpellCheckTrack, "track-a"); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Enqueue(JobSpellCheckTrack, "track-b"); err != nil {
		t.Fatal(err)
	}

	jobs, err := q.ListJobs("track-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].TrackID != "track-a" {
		t.Errorf("jobs = %+v, want just track-a's", jobs)
	}
}
