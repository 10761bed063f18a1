package scheduler

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sentinelgraph/sentinel-core/internal/platform/config"
)

func TestBridgeDispatchPublishesDirective(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	logger := zerolog.Nop()

	s := New([]config.TermBucket{
		{Name: "outage", Priority: 2.0, Terms: []string{"jio down"}},
	}, 10, &logger)

	b := NewBridge(s, client, "scan:directives", "scan:feedback", &logger)
	ctx := context.Background()

	if err := b.Dispatch(ctx); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	msgs, err := client.XRange(ctx, "scan:directives", "-", "+").Result()
	if err != nil || len(msgs) != 1 {
		t.Fatalf("directives = %v (%v), want one entry", msgs, err)
	}

	if msgs[0].Values["term"] != "jio down" || msgs[0].Values["bucket"] != "outage" {
		t.Errorf("directive = %v, want the selected term and bucket", msgs[0].Values)
	}
}

func TestBridgeDrainFeedbackAppliesCounts(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	logger := zerolog.Nop()

	s := New([]config.TermBucket{
		{Name: "outage", Priority: 2.0, Terms: []string{"jio down"}},
	}, 10, &logger)

	b := NewBridge(s, client, "scan:directives", "scan:feedback", &logger)
	ctx := context.Background()

	err := client.XAdd(ctx, &goredis.XAddArgs{
		Stream: "scan:feedback",
		Values: map[string]any{"term": "jio down", "result_count": "50"},
	}).Err()
	if err != nil {
		t.Fatalf("XAdd: %v", err)
	}

	// Malformed sibling is skipped.
	err = client.XAdd(ctx, &goredis.XAddArgs{
		Stream: "scan:feedback",
		Values: map[string]any{"term": "jio down", "result_count": "many"},
	}).Err()
	if err != nil {
		t.Fatalf("XAdd: %v", err)
	}

	if err := b.DrainFeedback(ctx); err != nil {
		t.Fatalf("DrainFeedback() error = %v", err)
	}

	for _, term := range s.Terms() {
		if term.Multiplier != 1.5 {
			t.Errorf("Multiplier = %v, want a single 1.5 boost applied", term.Multiplier)
		}
	}

	// Already-consumed entries are not re-applied.
	if err := b.DrainFeedback(ctx); err != nil {
		t.Fatalf("second DrainFeedback() error = %v", err)
	}

	for _, term := range s.Terms() {
		if term.Multiplier != 1.5 {
			t.Errorf("Multiplier = %v after redrain, want unchanged 1.5", term.Multiplier)
		}
	}
}

func TestBridgeDispatchNoTerms(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	logger := zerolog.Nop()

	b := NewBridge(New(nil, 10, &logger), client, "scan:directives", "scan:feedback", &logger)

	if err := b.Dispatch(context.Background()); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if mr.Exists("scan:directives") {
		t.Error("directive stream written with no terms configured")
	}
}
