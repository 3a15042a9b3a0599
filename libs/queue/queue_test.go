package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestQueueFIFO(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := New[int](ctx)
	for i := 0; i < 1000; i++ {
		require.True(t, q.Send(i))
	}
	q.Close()

	i := 0
	for v := range q.Out() {
		require.Equal(t, i, v)
		i++
	}
	require.Equal(t, 1000, i)
}

func TestQueueSendNeverWaitsOnConsumer(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := New[[]byte](ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10000; i++ {
			q.Send(make([]byte, 8))
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("producer blocked without a consumer")
	}
	require.Eventually(t, func() bool { return q.Len() == 10000 }, time.Second, time.Millisecond)
}

func TestQueueClosedRejectsSend(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := New[string](ctx)
	q.Close()
	q.Close()
	require.False(t, q.Send("late"))

	_, ok := <-q.Out()
	require.False(t, ok)
}

func TestQueueCancelStopsPump(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	ctx, cancel := context.WithCancel(context.Background())
	q := New[int](ctx)
	require.True(t, q.Send(1))
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-q.Out():
			return !ok
		default:
			return false
		}
	}, time.Second, time.Millisecond)
	require.False(t, q.Send(2))
}

func TestQueueMultipleConsumers(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := New[int](ctx)

	var (
		mtx  sync.Mutex
		seen = map[int]int{}
		wg   sync.WaitGroup
	)
	for c := 0; c < 4; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for v := range q.Out() {
				mtx.Lock()
				seen[v]++
				mtx.Unlock()
			}
		}()
	}

	for p := 0; p < 4; p++ {
		for i := 0; i < 250; i++ {
			q.Send(p*1000 + i)
		}
	}
	q.Close()
	wg.Wait()

	require.Len(t, seen, 1000)
	for _, n := range seen {
		require.Equal(t, 1, n)
	}
}

func TestQueuePerProducerOrderProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		values := rapid.SliceOf(rapid.Int()).Draw(t, "values").([]int)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := New[int](ctx)
		for _, v := range values {
			q.Send(v)
		}
		q.Close()

		got := make([]int, 0, len(values))
		for v := range q.Out() {
			got = append(got, v)
		}
		require.Equal(t, len(values), len(got))
		for i := range values {
			require.Equal(t, values[i], got[i])
		}
	})
}
