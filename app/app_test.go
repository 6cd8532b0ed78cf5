package app

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingServer 阻塞到上下文取消的测试服务器.
type blockingServer struct {
	name    string
	started atomic.Bool
	stopped atomic.Bool
}

func (s *blockingServer) Start(ctx context.Context) error {
	s.started.Store(true)
	<-ctx.Done()
	return nil
}

func (s *blockingServer) Stop(_ context.Context) error {
	s.stopped.Store(true)
	return nil
}

func (s *blockingServer) Name() string { return s.name }

func TestRunStopsServersOnStop(t *testing.T) {
	srv := &blockingServer{name: "worker"}
	var order []string

	a := New(
		Name("test-app"),
		GracefulTimeout(2*time.Second),
		SetHooks(Hooks{
			BeforeStart: []Hook{func(context.Context) error { order = append(order, "before-start"); return nil }},
			AfterStop:   []Hook{func(context.Context) error { order = append(order, "after-stop"); return nil }},
		}),
		RegisterCleanup("mark", func(context.Context) error {
			order = append(order, "cleanup")
			return nil
		}, 0),
	)
	a.Use(srv)

	done := make(chan error, 1)
	go func() { done <- a.Run() }()

	require.Eventually(t, srv.started.Load, time.Second, 10*time.Millisecond)
	a.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run 未在停止后返回")
	}

	assert.True(t, srv.stopped.Load())
	assert.Equal(t, []string{"before-start", "cleanup", "after-stop"}, order)
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	a := New()
	a.Use(&blockingServer{name: "worker"})

	go func() { _ = a.Run() }()
	time.Sleep(50 * time.Millisecond)

	assert.ErrorIs(t, a.Run(), ErrRunning)
	a.Stop()
}

func TestBeforeStartHookErrorAborts(t *testing.T) {
	hookErr := assert.AnError
	a := New(SetHooks(Hooks{
		BeforeStart: []Hook{func(context.Context) error { return hookErr }},
	}))

	assert.ErrorIs(t, a.Run(), hookErr)
}
