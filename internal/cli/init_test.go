package cli

import (
	"context"
	"testing"
	"time"
)

func TestGracefulShutdownRunsCleanupOnCancel(t *testing.T) {
	logger := SetupLogger("error", "test")
	cleaned := make(chan struct{})
	ctx, cancel, done := GracefulShutdown(logger, time.Second, func(ctx context.Context) {
		if _, ok := ctx.Deadline(); !ok {
			t.Errorf("cleanup context has no deadline")
		}
		close(cleaned)
	})

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete")
	}
	select {
	case <-cleaned:
	default:
		t.Fatal("cleanup not called")
	}
	if ctx.Err() == nil {
		t.Fatal("context not cancelled")
	}
}

func TestSetupLoggerLevel(t *testing.T) {
	logger := SetupLogger("debug", "test")
	if !logger.Enabled(context.Background(), -4) {
		t.Fatal("debug level not enabled")
	}
	if logger.Component() != "test" {
		t.Fatalf("component=%q", logger.Component())
	}
}
