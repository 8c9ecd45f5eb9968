package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
)

func sleepyTask(i int, d time.Duration) domain.Task {
	return func(ctx context.Context) (interface{}, error) {
		select {
		case <-time.After(d):
			return i, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// TestProcessorOrderPreservation tests that processor preserves order
func TestProcessorOrderPreservation(t *testing.T) {
	processor := NewOrderedProcessor(5, 100, zaptest.NewLogger(t))
	processor.Start()
	defer processor.Stop()

	tasks := make([]domain.Task, 100)
	for i := range tasks {
		// Later tasks finish first.
		tasks[i] = sleepyTask(i, time.Duration(100-i)*100*time.Microsecond)
	}

	results, err := processor.Process(context.Background(), tasks)
	require.NoError(t, err)
	require.Len(t, results, 100)

	for i, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, i, r.Index)
		assert.Equal(t, i, r.Value, "order should be preserved at index %d", i)
	}
}

// TestProcessorConcurrentBatches checks batches do not see each other's results
func TestProcessorConcurrentBatches(t *testing.T) {
	processor := NewOrderedProcessor(4, 10, zaptest.NewLogger(t))
	processor.Start()
	defer processor.Stop()

	var wg sync.WaitGroup
	for batch := 0; batch < 10; batch++ {
		wg.Add(1)
		go func(batch int) {
			defer wg.Done()
			tasks := make([]domain.Task, 20)
			for i := range tasks {
				i := i
				tasks[i] = func(ctx context.Context) (interface{}, error) {
					return fmt.Sprintf("%d-%d", batch, i), nil
				}
			}
			results, err := processor.Process(context.Background(), tasks)
			if !assert.NoError(t, err) {
				return
			}
			for i, r := range results {
				assert.Equal(t, fmt.Sprintf("%d-%d", batch, i), r.Value)
			}
		}(batch)
	}
	wg.Wait()
}

func TestProcessorReportsTaskErrors(t *testing.T) {
	processor := NewOrderedProcessor(2, 10, zaptest.NewLogger(t))
	processor.Start()
	defer processor.Stop()

	boom := errors.New("upload failed")
	results, err := processor.Process(context.Background(), []domain.Task{
		sleepyTask(0, 0),
		func(ctx context.Context) (interface{}, error) { return nil, boom },
		func(ctx context.Context) (interface{}, error) { panic("bad file") },
	})
	require.NoError(t, err)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, boom)
	assert.Error(t, results[2].Err)
	assert.ErrorIs(t, FirstError(results), boom)
}

// TestProcessorWorkerPool tests that work is spread over the pool
func TestProcessorWorkerPool(t *testing.T) {
	processor := NewOrderedProcessor(5, 50, zaptest.NewLogger(t))
	processor.Start()
	defer processor.Stop()

	var running, peak atomic.Int32
	tasks := make([]domain.Task, 20)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (interface{}, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return nil, nil
		}
	}

	_, err := processor.Process(context.Background(), tasks)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(5))
	assert.Greater(t, peak.Load(), int32(1))
}

func TestProcessorContextCancel(t *testing.T) {
	processor := NewOrderedProcessor(1, 10, zaptest.NewLogger(t))
	processor.Start()
	defer processor.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := processor.Process(ctx, []domain.Task{sleepyTask(0, time.Second), sleepyTask(1, time.Second)})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestProcessorGracefulShutdown tests graceful shutdown
func TestProcessorGracefulShutdown(t *testing.T) {
	processor := NewOrderedProcessor(2, 100, zaptest.NewLogger(t))
	processor.Start()

	tasks := make([]domain.Task, 100)
	for i := range tasks {
		tasks[i] = sleepyTask(i, 5*time.Millisecond)
	}

	done := make(chan error, 1)
	go func() {
		_, err := processor.Process(context.Background(), tasks)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	processor.Stop()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(5 * time.Second):
		t.Fatal("processor did not shut down gracefully")
	}

	_, err := processor.Process(context.Background(), tasks[:1])
	assert.ErrorIs(t, err, ErrStopped)
}

func TestProcessorEmptyBatch(t *testing.T) {
	processor := NewOrderedProcessor(1, 1, zaptest.NewLogger(t))
	results, err := processor.Process(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
