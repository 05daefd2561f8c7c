package worker_manager

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/fornellas/slogxt/log"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) context.Context {
	return log.WithLogger(t.Context(), slog.New(slog.DiscardHandler))
}

func blockingWorker(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestWorkerManager(t *testing.T) {
	t.Run("main returns", func(t *testing.T) {
		ctx := testContext(t)
		wm := NewWorkerManager()
		wm.AddWorker("background", blockingWorker)
		mainErr := errors.New("main failed")
		wm.AddWorker("main", func(ctx context.Context) error {
			return mainErr
		})
		wm.Start(ctx)
		errMap := wm.Wait(ctx)
		require.Equal(t, mainErr, errMap["main"])
		require.ErrorIs(t, errMap["background"], context.Canceled)
	})

	t.Run("background returns", func(t *testing.T) {
		ctx := testContext(t)
		wm := NewWorkerManager()
		backgroundErr := errors.New("background failed")
		wm.AddWorker("background", func(ctx context.Context) error {
			return backgroundErr
		})
		wm.AddWorker("main", blockingWorker)
		wm.Start(ctx)
		errMap := wm.Wait(ctx)
		require.ErrorIs(t, errMap["main"], context.Canceled)
		require.Equal(t, backgroundErr, errMap["background"])
	})

	t.Run("panic", func(t *testing.T) {
		ctx := testContext(t)
		wm := NewWorkerManager()
		wm.AddWorker("main", func(ctx context.Context) error {
			panic("boom")
		})
		wm.Start(ctx)
		errMap := wm.Wait(ctx)
		require.EqualError(t, errMap["main"], "panic: boom")
	})

	t.Run("cancel", func(t *testing.T) {
		ctx := testContext(t)
		wm := NewWorkerManager()
		wm.AddWorker("background", blockingWorker)
		wm.AddWorker("main", blockingWorker)
		wm.Start(ctx)
		go func() {
			time.Sleep(10 * time.Millisecond)
			wm.Cancel(ctx)
		}()
		errMap := wm.Wait(ctx)
		require.ErrorIs(t, errMap["main"], context.Canceled)
		require.ErrorIs(t, errMap["background"], context.Canceled)
	})
}

func TestWorkerManagerRun(t *testing.T) {
	ctx := testContext(t)
	wm := NewWorkerManager()
	wm.AddWorker("a", func(ctx context.Context) error {
		return errors.New("a failed")
	})
	wm.AddWorker("main", blockingWorker)
	require.EqualError(t, wm.Run(ctx), "a: a failed")

	wm.AddWorker("main", func(ctx context.Context) error { return nil })
	require.NoError(t, wm.Run(ctx))
}
