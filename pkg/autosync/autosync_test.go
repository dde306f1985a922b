package autosync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/urands/bridge/pkg/protocol"
)

func TestSchedulerBroadcastsOnEachTick(t *testing.T) {
	s := New(zap.NewNop(), 10*time.Millisecond)
	var calls atomic.Int32

	s.Start(context.Background(),
		func(ctx context.Context) (*protocol.Context, error) {
			return &protocol.Context{Summary: "snap"}, nil
		},
		func(ctx context.Context, c *protocol.Context) error {
			calls.Add(1)
			return nil
		},
	)
	defer s.Stop()

	time.Sleep(55 * time.Millisecond)
	if calls.Load() < 3 {
		t.Fatalf("expected at least 3 ticks, got %d", calls.Load())
	}
}

func TestSchedulerStartIsIdempotent(t *testing.T) {
	s := New(zap.NewNop(), 10*time.Millisecond)
	s.Start(context.Background(), nil, func(ctx context.Context, c *protocol.Context) error { return nil })
	s.Start(context.Background(), nil, func(ctx context.Context, c *protocol.Context) error { return nil })
	defer s.Stop()

	if !s.Running() {
		t.Fatal("expected scheduler to be running")
	}
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	s := New(zap.NewNop(), 10*time.Millisecond)
	s.Start(context.Background(), nil, func(ctx context.Context, c *protocol.Context) error { return nil })
	s.Stop()
	s.Stop()
	if s.Running() {
		t.Fatal("expected scheduler to be stopped")
	}
}

func TestSchedulerSurvivesProviderAndBroadcastErrors(t *testing.T) {
	s := New(zap.NewNop(), 10*time.Millisecond)
	var calls atomic.Int32

	s.Start(context.Background(),
		func(ctx context.Context) (*protocol.Context, error) {
			n := calls.Add(1)
			if n%2 == 0 {
				return nil, errors.New("provider boom")
			}
			return &protocol.Context{}, nil
		},
		func(ctx context.Context, c *protocol.Context) error {
			return errors.New("broadcast boom")
		},
	)
	defer s.Stop()

	time.Sleep(55 * time.Millisecond)
	if calls.Load() < 3 {
		t.Fatalf("expected schedule to keep running despite errors, got %d ticks", calls.Load())
	}
}
