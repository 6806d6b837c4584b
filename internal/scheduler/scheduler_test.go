package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library/internal/errors"
	"library/internal/service"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (s *countingSweeper) Sweep(context.Context) (*service.SweepReport, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &service.SweepReport{StartedAt: time.Now()}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchedule_RejectsInvalidSpec(t *testing.T) {
	s := New(&countingSweeper{}, quietLogger())
	assert.Error(t, s.Schedule("every now and then"))
	assert.NoError(t, s.Schedule("*/15 * * * *"))
	assert.NoError(t, s.Schedule("@hourly"))
}

func TestRunOnce(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"success", nil},
		{"sweep already running", errors.ErrSweepInProgress},
		{"failure", assert.AnError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sweeper := &countingSweeper{err: tt.err}
			New(sweeper, quietLogger()).RunOnce()
			assert.EqualValues(t, 1, sweeper.calls.Load())
		})
	}
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	sweeper := &countingSweeper{}
	s := New(sweeper, quietLogger())
	require.NoError(t, s.Schedule("@every 1s"))
	s.Start()

	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
