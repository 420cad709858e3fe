package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestDoReturnsResult(t *testing.T) {
	t.Parallel()
	p := New(2)

	got, err := Do(context.Background(), p, func() (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != 42 {
		t.Errorf("Do() = %d, want 42", got)
	}
}

func TestDoPropagatesError(t *testing.T) {
	t.Parallel()
	p := New(2)
	wantErr := errors.New("boom")

	_, err := Do(context.Background(), p, func() (int, error) {
		return 0, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("Do() error = %v, want %v", err, wantErr)
	}
}

func TestDoBoundsConcurrency(t *testing.T) {
	t.Parallel()
	p := New(1)

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, _ = Do(context.Background(), p, func() (int, error) {
			close(started)
			<-release
			return 1, nil
		})
	}()
	<-started

	var secondStarted atomic.Bool
	secondDone := make(chan struct{})
	go func() {
		_, _ = Do(context.Background(), p, func() (int, error) {
			secondStarted.Store(true)
			return 2, nil
		})
		close(secondDone)
	}()

	// The pool has capacity 1 and the first job is still holding its slot, so the second job must not have started.
	time.Sleep(20 * time.Millisecond)
	if secondStarted.Load() {
		t.Fatal("second Do() started while the pool's only slot was held")
	}

	close(release)
	<-secondDone
	if !secondStarted.Load() {
		t.Fatal("second Do() never ran after the first job released its slot")
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	t.Parallel()
	p := New(1)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = Do(context.Background(), p, func() (int, error) {
			close(started)
			<-release
			return 1, nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Do(ctx, p, func() (int, error) {
		return 2, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do() error = %v, want context.DeadlineExceeded", err)
	}

	close(release)
}
