package workerpool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapPreservesInputOrder(t *testing.T) {
	items := []int{5, 1, 4, 2, 3}

	results, err := Map(context.Background(), 2, items, func(_ context.Context, _ int, n int) (int, error) {
		return n * n, nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{25, 1, 16, 4, 9}, results)
}

func TestMapPropagatesFirstError(t *testing.T) {
	items := []int{1, 2, 3}
	boom := errors.New("boom")

	_, err := Map(context.Background(), 0, items, func(_ context.Context, _ int, n int) (int, error) {
		if n == 2 {
			return 0, boom
		}
		return n, nil
	})
	assert.ErrorIs(t, err, boom)
}
