package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wsbase-protocol/wsbase-go/pkg/wire"
)

func TestPendingResolve(t *testing.T) {
	pending := NewPending()
	call, err := pending.Add(42)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	response := &wire.Envelope{ID: 100, Kind: "echo", CorrelationID: 42, Status: wire.StatusSuccess}
	if !pending.Resolve(response) {
		t.Fatal("Resolve() = false, want true")
	}

	got, err := call.Wait(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if got != response {
		t.Error("Wait() returned unexpected envelope")
	}
	if pending.Len() != 0 {
		t.Errorf("Len() = %d, want 0", pending.Len())
	}
}

func TestPendingResolveUnknownCorrelation(t *testing.T) {
	pending := NewPending()
	if pending.Resolve(&wire.Envelope{ID: 1, Kind: "echo", CorrelationID: 99}) {
		t.Error("Resolve() = true for unknown correlation id, want false")
	}
}

func TestPendingWaitTimeout(t *testing.T) {
	pending := NewPending()
	call, err := pending.Add(1)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	start := time.Now()
	_, err = call.Wait(context.Background(), 20*time.Millisecond)
	if !errors.Is(err, ErrRequestTimeout) {
		t.Fatalf("Wait() error = %v, want ErrRequestTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Wait() took %v, expected prompt timeout", elapsed)
	}

	// The slot is gone, so a late response is dropped.
	if pending.Resolve(&wire.Envelope{ID: 2, Kind: "echo", CorrelationID: 1}) {
		t.Error("Resolve() = true after timeout, want false")
	}
}

func TestPendingWaitContextCancelled(t *testing.T) {
	pending := NewPending()
	call, err := pending.Add(1)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	if _, err := call.Wait(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
	if pending.Len() != 0 {
		t.Errorf("Len() = %d, want 0", pending.Len())
	}
}

func TestPendingFail(t *testing.T) {
	pending := NewPending()
	call, err := pending.Add(7)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	cause := errors.New("channel torn down")
	if !pending.Fail(7, cause) {
		t.Fatal("Fail() = false, want true")
	}
	if _, err := call.Wait(context.Background(), time.Second); !errors.Is(err, cause) {
		t.Errorf("Wait() error = %v, want %v", err, cause)
	}
}

func TestPendingFailAll(t *testing.T) {
	pending := NewPending()
	cause := errors.New("connection closed")

	const n = 5
	calls := make([]*Call, 0, n)
	for i := uint64(1); i <= n; i++ {
		call, err := pending.Add(i)
		if err != nil {
			t.Fatalf("Add(%d) error = %v", i, err)
		}
		calls = append(calls, call)
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i, call := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = call.Wait(context.Background(), time.Minute)
		}()
	}

	pending.FailAll(cause)
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, cause) {
			t.Errorf("call %d error = %v, want %v", i, err, cause)
		}
	}

	// Closed tracker refuses new calls.
	if _, err := pending.Add(99); !errors.Is(err, ErrPendingClosed) {
		t.Errorf("Add() after FailAll error = %v, want ErrPendingClosed", err)
	}
}
