package colonyctl

import (
	"context"
	"testing"
	"time"
)

func TestWaitForNormalModeBlocksUntilExit(t *testing.T) {
	c := New()
	c.EnterMaintenance()

	done := make(chan struct{})
	go func() {
		_ = c.WaitForNormalMode(context.Background())
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("expected WaitForNormalMode to block while in maintenance")
	case <-time.After(50 * time.Millisecond):
	}

	c.ExitMaintenance()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected WaitForNormalMode to return after ExitMaintenance")
	}
}

func TestWaitForNormalModeReturnsImmediatelyWhenNormal(t *testing.T) {
	c := New()
	if err := c.WaitForNormalMode(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestKillUnblocksWaiters(t *testing.T) {
	c := New()
	c.EnterMaintenance()

	done := make(chan struct{})
	go func() {
		_ = c.WaitForNormalMode(context.Background())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	c.Kill()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected Kill to unblock waiters")
	}
	if !c.Killed() {
		t.Fatalf("expected Killed() to be true")
	}
}

func TestWaitForNormalModeRespectsContextCancel(t *testing.T) {
	c := New()
	c.EnterMaintenance()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.WaitForNormalMode(ctx)
	if err == nil {
		t.Fatalf("expected context deadline error")
	}
}
