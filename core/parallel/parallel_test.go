package parallel

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/remoteglm/pkg/errors"
)

func TestForEachVisitsEveryItem(t *testing.T) {
	const n = 100
	seen := make([]int32, n)

	err := ForEach(context.Background(), n, 4, func(_ context.Context, i int) error {
		atomic.AddInt32(&seen[i], 1)
		return nil
	})
	require.NoError(t, err)
	for i, c := range seen {
		assert.Equalf(t, int32(1), c, "item %d", i)
	}
}

func TestForEachReturnsFirstError(t *testing.T) {
	err := ForEach(context.Background(), 10, 2, func(_ context.Context, i int) error {
		if i == 3 {
			return fmt.Errorf("column %d failed", i)
		}
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "column 3 failed")
}

func TestForEachRecoversPanic(t *testing.T) {
	err := ForEach(context.Background(), 3, 3, func(_ context.Context, i int) error {
		if i == 1 {
			panic("bad bucket")
		}
		return nil
	})
	var panicErr *errors.PanicError
	require.True(t, errors.As(err, &panicErr))
	assert.Equal(t, "item 1", panicErr.Operation)
}

func TestForEachCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ForEach(ctx, 5, 2, func(ctx context.Context, i int) error {
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestForEachWithThresholdSequential(t *testing.T) {
	var order []int
	err := ForEachWithThreshold(context.Background(), 5, 10, 4, func(_ context.Context, i int) error {
		order = append(order, i)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestWorkers(t *testing.T) {
	assert.Equal(t, 3, Workers(3, 8))
	assert.Equal(t, 2, Workers(10, 2))
	assert.GreaterOrEqual(t, Workers(1000, 0), 1)
}
