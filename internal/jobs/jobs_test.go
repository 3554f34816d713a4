package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	activitydomain "github.com/calybase/calybase-backend/internal/activity/domain"
	authservice "github.com/calybase/calybase-backend/internal/auth/service"
)

type fakeReconciler struct {
	summary authservice.Summary
	missing []string
	err     error
}

func (f fakeReconciler) Reconcile(context.Context) (authservice.Summary, []string, error) {
	return f.summary, f.missing, f.err
}

type fakeReconcileRecorder struct {
	calls   int
	missing []string
}

func (f *fakeReconcileRecorder) RecordReconcile(_ context.Context, _ authservice.Summary, missing []string) activitydomain.Entry {
	f.calls++
	f.missing = missing
	return activitydomain.Entry{}
}

func TestReconcileJob(t *testing.T) {
	rec := &fakeReconcileRecorder{}
	job := NewReconcileJob(fakeReconciler{
		summary: authservice.Summary{TotalAuthUsers: 2, UsersMissingFirestore: 1},
		missing: []string{"b"},
	}, rec, nil)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, []string{"b"}, rec.missing)
}

func TestReconcileJob_Error(t *testing.T) {
	rec := &fakeReconcileRecorder{}
	err := NewReconcileJob(fakeReconciler{err: errors.New("quota")}, rec, nil).Run(context.Background())
	assert.EqualError(t, err, "quota")
	assert.Zero(t, rec.calls)
}

type fakeArchiver struct {
	day  time.Time
	name string
	n    int
}

func (f *fakeArchiver) ArchiveDay(_ context.Context, day time.Time) (string, int, error) {
	f.day = day
	return f.name, f.n, nil
}

func TestArchiveJob_PreviousDay(t *testing.T) {
	arch := &fakeArchiver{name: "audit-archives/2025-03-13.csv", n: 4}
	job := NewArchiveJob(arch, nil)
	job.now = func() time.Time { return time.Date(2025, 3, 14, 0, 30, 0, 0, time.UTC) }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, "2025-03-13", arch.day.Format("2006-01-02"))
}

type countingJob struct {
	runs atomic.Int32
}

func (j *countingJob) Name() string { return "count" }

func (j *countingJob) Run(context.Context) error {
	j.runs.Add(1)
	return nil
}

func TestScheduler(t *testing.T) {
	s := NewScheduler(context.Background(), nil)
	job := &countingJob{}

	assert.Error(t, s.Add("not a spec", job))
	require.NoError(t, s.Add("* * * * * *", job))

	s.Start()
	assert.Eventually(t, func() bool { return job.runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}

func TestScheduler_RunNowSurvivesFailure(t *testing.T) {
	s := NewScheduler(context.Background(), nil)
	failing := NewReconcileJob(fakeReconciler{err: errors.New("down")}, &fakeReconcileRecorder{}, nil)
	assert.NotPanics(t, func() { s.RunNow(failing) })
}
