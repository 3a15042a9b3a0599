package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tendermint/tpu/libs/log"
)

type testService struct {
	BaseService
	stopped chan struct{}
}

func (*testService) OnStart(context.Context) error { return nil }

func (ts *testService) OnStop() { close(ts.stopped) }

func newTestService() *testService {
	ts := &testService{stopped: make(chan struct{})}
	ts.BaseService = *NewBaseService(nil, "TestService", ts)
	return ts
}

func TestBaseServiceWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ts := newTestService()
	err := ts.Start(ctx)
	require.NoError(t, err)

	waitFinished := make(chan struct{})
	go func() {
		ts.Wait()
		waitFinished <- struct{}{}
	}()

	go ts.Stop() //nolint:errcheck // ignore for tests

	select {
	case <-waitFinished:
		// all good
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected Wait() to finish within 100 ms.")
	}
}

func TestBaseServiceStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	ts := newTestService()
	require.NoError(t, ts.Start(ctx))
	require.True(t, ts.IsRunning())

	cancel()

	select {
	case <-ts.stopped:
	case <-time.After(time.Second):
		t.Fatal("OnStop was not called after context cancellation")
	}
	ts.Wait()
	require.False(t, ts.IsRunning())
}

func TestBaseServiceStartTwice(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ts := newTestService()
	require.NoError(t, ts.Start(ctx))
	require.ErrorIs(t, ts.Start(ctx), ErrAlreadyStarted)
	require.NoError(t, ts.Stop())
	require.ErrorIs(t, ts.Stop(), ErrAlreadyStopped)
}

type flakyService struct {
	BaseService
	failures int
}

func (fs *flakyService) OnStart(context.Context) error {
	if fs.failures > 0 {
		fs.failures--
		return errors.New("not yet")
	}
	return nil
}

func (*flakyService) OnStop() {}

func TestBaseServiceRetryAfterFailedStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fs := &flakyService{failures: 1}
	fs.BaseService = *NewBaseService(nil, "FlakyService", fs)

	require.ErrorIs(t, fs.Stop(), ErrNotStarted)
	require.Error(t, fs.Start(ctx))
	require.False(t, fs.IsRunning())

	require.NoError(t, fs.Start(ctx))
	require.True(t, fs.IsRunning())
	require.NoError(t, fs.Stop())
	require.ErrorIs(t, fs.Start(ctx), ErrAlreadyStopped)
}

func TestRoutineJoin(t *testing.T) {
	logger := log.NewNopLogger()
	errBoom := errors.New("boom")

	ok := Go(logger, "ok", func() error { return nil })
	failed := Go(logger, "failed", func() error { return errBoom })
	panicked := Go(logger, "panicked", func() error { panic("stage exploded") })

	require.NoError(t, ok.Join())
	require.ErrorIs(t, failed.Join(), errBoom)

	err := panicked.Join()
	var perr *PanicError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "panicked", perr.Routine)
	require.Equal(t, "stage exploded", perr.Value)
	require.NotEmpty(t, perr.Stack)

	// joining again returns the same result
	require.ErrorAs(t, panicked.Join(), &perr)
	require.Equal(t, "panicked", panicked.Name())
}
