package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWorkerPool_RunsAllTasks(t *testing.T) {
	wp := NewWorkerPool(context.Background(), 4)
	wp.Start()

	var done atomic.Int64
	for i := 0; i < 500; i++ {
		require.NoError(t, wp.Submit(func(ctx context.Context) error {
			done.Add(1)
			return nil
		}))
	}

	require.NoError(t, wp.Wait())
	assert.Equal(t, int64(500), done.Load())
}

func TestWorkerPool_JoinsTaskErrors(t *testing.T) {
	wp := NewWorkerPool(context.Background(), 2)
	wp.Start()

	boom := errors.New("boom")
	for i := 0; i < 10; i++ {
		i := i
		require.NoError(t, wp.Submit(func(ctx context.Context) error {
			if i%5 == 0 {
				return fmt.Errorf("row %d: %w", i, boom)
			}
			return nil
		}))
	}

	err := wp.Wait()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "row 0")
	assert.Contains(t, err.Error(), "row 5")
}

func TestWorkerPool_SubmitAfterCancelFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	wp := NewWorkerPool(ctx, 1)
	wp.Start()

	cancel()
	wp.Stop()

	err := wp.Submit(func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolStopped)
}

func TestWorkerPool_ZeroWorkersFallsBackToOne(t *testing.T) {
	wp := NewWorkerPool(context.Background(), 0)
	wp.Start()

	var ran atomic.Bool
	require.NoError(t, wp.Submit(func(ctx context.Context) error {
		ran.Store(true)
		return nil
	}))
	require.NoError(t, wp.Wait())
	assert.True(t, ran.Load())
}

// ========================================
// Benchmarks
// ========================================

func benchmarkWorkerPool(b *testing.B, workers int) {
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		wp := NewWorkerPool(context.Background(), workers)
		wp.Start()
		for j := 0; j < 1000; j++ {
			_ = wp.Submit(func(ctx context.Context) error {
				sum := 0
				for k := 0; k < 100; k++ {
					sum += k
				}
				return nil
			})
		}
		_ = wp.Wait()
	}
}

// BenchmarkWorkerPool_1Worker teste avec 1 seul worker
func BenchmarkWorkerPool_1Worker(b *testing.B) { benchmarkWorkerPool(b, 1) }

// BenchmarkWorkerPool_4Workers teste avec 4 workers (défaut du rematch)
func BenchmarkWorkerPool_4Workers(b *testing.B) { benchmarkWorkerPool(b, 4) }

// BenchmarkWorkerPool_16Workers teste avec 16 workers
func BenchmarkWorkerPool_16Workers(b *testing.B) { benchmarkWorkerPool(b, 16) }
