package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestQueue_FIFO(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	q := New[int](0)
	for i := 0; i < 100; i++ {
		is.NoErr(q.Push(ctx, i))
	}
	is.Equal(q.Len(), 100)

	for i := 0; i < 100; i++ {
		got, err := q.Pop(ctx)
		is.NoErr(err)
		is.Equal(got, i) // items must come out in insertion order
	}
	is.Equal(q.Len(), 0)
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	is := is.New(t)
	q := New[string](0)

	got := make(chan string, 1)
	go func() {
		v, err := q.Pop(context.Background())
		if err == nil {
			got <- v
		}
	}()

	select {
	case <-got:
		t.Fatal("Pop returned before anything was pushed")
	case <-time.After(20 * time.Millisecond):
	}

	is.NoErr(q.Push(context.Background(), "frame"))

	select {
	case v := <-got:
		is.Equal(v, "frame")
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after Push")
	}
}

func TestQueue_PopHonorsContext(t *testing.T) {
	q := New[int](0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestQueue_CloseDrainsThenFails(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	q := New[int](0)
	is.NoErr(q.Push(ctx, 1))
	q.Close()
	q.Close() // idempotent

	is.True(errors.Is(q.Push(ctx, 2), ErrClosed))

	v, err := q.Pop(ctx)
	is.NoErr(err)
	is.Equal(v, 1)

	_, err = q.Pop(ctx)
	is.True(errors.Is(err, ErrClosed))
}

func TestQueue_CloseUnblocksPop(t *testing.T) {
	q := New[int](0)
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Pop(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop was not unblocked by Close")
	}
}

func TestQueue_BoundedPushBlocks(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	q := New[int](2)
	is.NoErr(q.Push(ctx, 1))
	is.NoErr(q.Push(ctx, 2))

	pushed := make(chan struct{})
	go func() {
		_ = q.Push(ctx, 3)
		close(pushed)
	}()

	select {
	case <-pushed:
		t.Fatal("Push on a full queue should block")
	case <-time.After(20 * time.Millisecond):
	}

	v, err := q.Pop(ctx)
	is.NoErr(err)
	is.Equal(v, 1)

	select {
	case <-pushed:
	case <-time.After(time.Second):
		t.Fatal("Push was not unblocked by Pop")
	}

	for _, want := range []int{2, 3} {
		v, err := q.Pop(ctx)
		is.NoErr(err)
		is.Equal(v, want)
	}
}

func TestQueue_SingleProducerSingleConsumerOrder(t *testing.T) {
	const n = 5000
	q := New[int](0)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			_ = q.Push(ctx, i)
		}
	}()

	for i := 0; i < n; i++ {
		v, err := q.Pop(ctx)
		if err != nil {
			t.Fatalf("Pop() error = %v", err)
		}
		if v != i {
			t.Fatalf("Pop() = %d, want %d", v, i)
		}
	}
	wg.Wait()
}
