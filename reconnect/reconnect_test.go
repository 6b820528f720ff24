package reconnect

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func quietController(offline bool) *Controller {
	return New(Options{Offline: offline, Logger: log.New(io.Discard, "", 0)})
}

func TestMarkOfflineAndSignal(t *testing.T) {
	c := quietController(false)
	if !c.Online() {
		t.Fatal("expected controller to start online")
	}
	if !c.MarkOffline() {
		t.Fatal("expected first MarkOffline to report a transition")
	}
	if c.MarkOffline() {
		t.Fatal("expected second MarkOffline to be a no-op")
	}
	if c.Online() {
		t.Fatal("expected controller to be offline")
	}

	c.Signal(context.Background())
	if !c.Online() {
		t.Fatal("expected Signal to mark online")
	}
}

func TestSignalRunsHandlersInOrder(t *testing.T) {
	c := quietController(true)

	var order []string
	c.OnReconnect(func(context.Context) {
		if !c.Online() {
			t.Error("expected handlers to run after marking online")
		}
		order = append(order, "resume")
	})
	remove := c.OnReconnect(func(context.Context) { order = append(order, "removed") })
	c.OnReconnect(func(context.Context) { order = append(order, "revalidate") })
	remove()

	c.Signal(context.Background())
	c.Signal(context.Background())

	want := []string{"resume", "revalidate", "resume", "revalidate"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestSignalStopsWhenContextDone(t *testing.T) {
	c := quietController(true)
	ctx, cancel := context.WithCancel(context.Background())

	var calls int
	c.OnReconnect(func(context.Context) {
		calls++
		cancel()
	})
	c.OnReconnect(func(context.Context) { calls++ })

	c.Signal(ctx)
	if calls != 1 {
		t.Fatalf("expected one handler call, got %d", calls)
	}
}

func TestWatchSignalsAfterProbeSucceeds(t *testing.T) {
	c := quietController(false)

	var probes atomic.Int32
	probe := func(context.Context) error {
		if probes.Add(1) < 3 {
			return errors.New("connection refused")
		}
		return nil
	}

	reconnected := make(chan struct{}, 1)
	c.OnReconnect(func(context.Context) {
		select {
		case reconnected <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Watch(ctx, probe, time.Millisecond)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	time.Sleep(10 * time.Millisecond)
	if probes.Load() != 0 {
		t.Fatal("expected no probes while online")
	}

	c.MarkOffline()
	select {
	case <-reconnected:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reconnect")
	}
	if !c.Online() {
		t.Fatal("expected controller to be online after watch signal")
	}
	if got := probes.Load(); got < 3 {
		t.Fatalf("expected at least 3 probes, got %d", got)
	}
}
