package worker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoop_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	cfg := Config{
		Name:         "test",
		PollInterval: time.Millisecond,
		Process: func(ctx context.Context) error {
			calls++
			if calls >= 3 {
				cancel()
			}

			return nil
		},
	}

	err := Loop(ctx, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Loop() error = %v, want context.Canceled", err)
	}

	if calls < 3 {
		t.Errorf("Process called %d times, want >= 3", calls)
	}
}

func TestLoop_OnErrorExit(t *testing.T) {
	wantErr := errors.New("fatal")

	err := Loop(context.Background(), Config{
		Name:         "test",
		PollInterval: time.Millisecond,
		Process: func(ctx context.Context) error {
			return wantErr
		},
		OnError: func(err error) bool { return false },
	})

	if !errors.Is(err, wantErr) {
		t.Fatalf("Loop() error = %v, want %v", err, wantErr)
	}
}

func TestTickerLoop_RunsInitialTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	ran := make(chan string, 2)
	cfg := TickerConfig{
		Name: "test",
		Tasks: []TickerTask{
			{Name: "a", Interval: time.Hour, Run: func(ctx context.Context) { ran <- "a" }},
			{Name: "b", Interval: time.Hour, Run: func(ctx context.Context) { ran <- "b" }},
		},
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := TickerLoop(ctx, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("TickerLoop() error = %v, want context.Canceled", err)
	}

	if len(ran) != 2 {
		t.Errorf("initial tasks run = %d, want 2", len(ran))
	}
}

func TestWait_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Wait(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait() error = %v, want context.Canceled", err)
	}

	if err := Wait(context.Background(), 0); err != nil {
		t.Fatalf("Wait(0) error = %v", err)
	}
}
