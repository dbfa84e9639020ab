package rate

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucketFirstCallImmediate(t *testing.T) {
	tb := NewTokenBucket(1)
	defer tb.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := tb.Wait(ctx); err != nil {
		t.Fatalf("first wait must not block: %v", err)
	}
}

func TestTokenBucketWaitCanceled(t *testing.T) {
	tb := NewTokenBucket(1)
	defer tb.Stop()

	ctx := context.Background()
	if err := tb.Wait(ctx); err != nil {
		t.Fatalf("first wait failed: %v", err)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if err := tb.Wait(canceled); err == nil {
		t.Fatalf("wait on canceled context must fail")
	}
}

func TestTokenBucketRefills(t *testing.T) {
	tb := NewTokenBucket(100)
	defer tb.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 5; i++ {
		if err := tb.Wait(ctx); err != nil {
			t.Fatalf("wait %d failed: %v", i, err)
		}
	}
}

func TestStopReturns(t *testing.T) {
	tb := NewTokenBucket(4)

	done := make(chan struct{})
	go func() {
		tb.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Stop did not return")
	}
}

func TestUnlimited(t *testing.T) {
	var l Limiter = Unlimited{}
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("unlimited wait failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatalf("unlimited must still honor cancellation")
	}
}
