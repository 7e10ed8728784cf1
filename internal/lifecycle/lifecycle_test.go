package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunner_StartStop(t *testing.T) {
	var r Runner
	started := make(chan struct{})
	stopped := make(chan struct{})

	err := r.Start(context.Background(), func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(stopped)
	})
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("worker did not start")
	}
	require.True(t, r.Running())

	r.Stop()
	require.False(t, r.Running())

	select {
	case <-stopped:
	default:
		t.Fatal("worker did not observe cancellation before Stop returned")
	}
}

func TestRunner_StartWhileRunningErrors(t *testing.T) {
	var r Runner
	require.NoError(t, r.Start(context.Background(), func(ctx context.Context) { <-ctx.Done() }))
	err := r.Start(context.Background(), func(ctx context.Context) {})
	require.Error(t, err)
	r.Stop()
}

func TestRunner_RestartAfterStop(t *testing.T) {
	var r Runner
	require.NoError(t, r.Start(context.Background(), func(ctx context.Context) { <-ctx.Done() }))
	r.Stop()

	done := make(chan struct{})
	require.NoError(t, r.Start(context.Background(), func(ctx context.Context) {
		<-ctx.Done()
		close(done)
	}))
	require.True(t, r.Running())
	r.Stop()
	select {
	case <-done:
	default:
		t.Fatal("restarted worker did not observe cancellation")
	}
}

func TestGroup_StartStopAll(t *testing.T) {
	g := NewGroup()
	exited := make(chan string, 2)

	require.NoError(t, g.Go(context.Background(), "poller", func(ctx context.Context) {
		<-ctx.Done()
		exited <- "poller"
	}))
	require.NoError(t, g.Go(context.Background(), "reconciler", func(ctx context.Context) {
		<-ctx.Done()
		exited <- "reconciler"
	}))

	g.StopAll()

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case name := <-exited:
			seen[name] = true
		case <-time.After(time.Second):
			t.Fatal("not all group workers exited")
		}
	}
	require.True(t, seen["poller"])
	require.True(t, seen["reconciler"])
}
