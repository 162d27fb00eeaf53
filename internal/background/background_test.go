package background

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/directory-search/internal/config"
	pkglogger "github.com/BradenHooton/directory-search/pkg/logger"
)

type fakeIndexer struct {
	mu    sync.Mutex
	calls []string
	errs  map[string]error
}

func (f *fakeIndexer) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.errs[name]
}

func (f *fakeIndexer) Rebuild(ctx context.Context) error       { return f.record("rebuild") }
func (f *fakeIndexer) UpdateChanged(ctx context.Context) error { return f.record("update") }
func (f *fakeIndexer) Tidy(ctx context.Context) error          { return f.record("tidy") }
func (f *fakeIndexer) Update(ctx context.Context) error        { return f.record("audit") }

func TestJobGuard(t *testing.T) {
	guard := NewJobGuard()

	release, ok := guard.TryAcquire("reindexUsers")
	require.True(t, ok)
	assert.True(t, guard.Running("reindexUsers"))

	_, ok = guard.TryAcquire("reindexUsers")
	assert.False(t, ok)

	// other jobs are independent
	releaseOther, ok := guard.TryAcquire("tidyIndexes")
	require.True(t, ok)
	releaseOther()

	release()
	assert.False(t, guard.Running("reindexUsers"))
	_, ok = guard.TryAcquire("reindexUsers")
	assert.True(t, ok)
}

func TestRunner_SkipsBusyJob(t *testing.T) {
	runner := NewRunner(NewJobGuard(), slog.Default())
	started := make(chan struct{})
	finish := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- runner.Run(context.Background(), "reindexUsers", func(ctx context.Context) error {
			close(started)
			<-finish
			return nil
		})
	}()
	<-started

	ran := false
	err := runner.Run(context.Background(), "reindexUsers", func(ctx context.Context) error {
		ran = true
		return nil
	})

	assert.ErrorIs(t, err, ErrJobBusy)
	assert.False(t, ran)

	close(finish)
	require.NoError(t, <-done)

	require.NoError(t, runner.Run(context.Background(), "reindexUsers", func(ctx context.Context) error { return nil }))
}

func TestRunner_CorrelationID(t *testing.T) {
	runner := NewRunner(NewJobGuard(), slog.Default())

	var id string
	require.NoError(t, runner.Run(context.Background(), JobUpdateAuditCache, func(ctx context.Context) error {
		id = pkglogger.CorrelationID(ctx)
		return nil
	}))
	assert.True(t, strings.HasPrefix(id, "updateAuditCache-"))

	require.NoError(t, runner.RunAs(context.Background(), JobTidyIndexes, "Single-TidyIndexes-1", func(ctx context.Context) error {
		id = pkglogger.CorrelationID(ctx)
		return nil
	}))
	assert.Equal(t, "Single-TidyIndexes-1", id)
}

func TestRunner_FailureAndPanicReleaseGuard(t *testing.T) {
	guard := NewJobGuard()
	runner := NewRunner(guard, slog.Default())
	boom := errors.New("boom")

	err := runner.Run(context.Background(), "job", func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, guard.Running("job"))

	err = runner.Run(context.Background(), "job", func(ctx context.Context) error { panic("bad") })
	assert.ErrorContains(t, err, "panicked")
	assert.False(t, guard.Running("job"))
}

func TestTasks_TidyStopsAtFirstFailure(t *testing.T) {
	users := &fakeIndexer{errs: map[string]error{"tidy": errors.New("engine down")}}
	devices := &fakeIndexer{}
	tasks := NewTasks(users, devices, &fakeIndexer{}, slog.Default())

	err := tasks.TidyIndexes(context.Background())

	assert.Error(t, err)
	assert.Equal(t, []string{"tidy"}, users.calls)
	assert.Empty(t, devices.calls)
}

func TestTasks_Lookup(t *testing.T) {
	users := &fakeIndexer{}
	audit := &fakeIndexer{}
	tasks := NewTasks(users, &fakeIndexer{}, audit, slog.Default())

	run, ok := tasks.Lookup(JobUpdateUsersIndex)
	require.True(t, ok)
	require.NoError(t, run(context.Background()))
	assert.Equal(t, []string{"update"}, users.calls)

	run, ok = tasks.Lookup(JobUpdateAuditCache)
	require.True(t, ok)
	require.NoError(t, run(context.Background()))
	assert.Equal(t, []string{"audit"}, audit.calls)

	_, ok = tasks.Lookup("nope")
	assert.False(t, ok)
}

func TestTasks_WithoutAudit(t *testing.T) {
	tasks := NewTasks(&fakeIndexer{}, &fakeIndexer{}, nil, slog.Default())

	_, ok := tasks.Lookup(JobUpdateAuditCache)
	assert.False(t, ok)
	assert.Len(t, tasks.Jobs(config.ScheduleConfig{}), 4)
}

func TestScheduler_RegisterSkipsDisabledJobs(t *testing.T) {
	scheduler, err := NewScheduler(NewRunner(NewJobGuard(), slog.Default()), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = scheduler.Stop() })

	tasks := NewTasks(&fakeIndexer{}, &fakeIndexer{}, &fakeIndexer{}, slog.Default())
	err = scheduler.Register(tasks.Jobs(config.ScheduleConfig{
		ReindexUsers:     "0 2 * * *",
		UpdateUsersIndex: "off",
		ReindexDevices:   "",
		UpdateAuditCache: "*/2 * * * *",
		TidyIndexes:      "OFF",
	})...)
	require.NoError(t, err)
	scheduler.Start()

	assert.ElementsMatch(t, []string{JobReindexUsers, JobUpdateAuditCache}, scheduler.JobNames())
}

func TestScheduler_RegisterRejectsBadSpec(t *testing.T) {
	scheduler, err := NewScheduler(NewRunner(NewJobGuard(), slog.Default()), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = scheduler.Stop() })

	scheduler.Start()
	err = scheduler.Register(Job{Name: "bad", Schedule: "not a cron", Run: func(ctx context.Context) error { return nil }})

	assert.Error(t, err)
}
