package bstats_test

import (
	"context"
	"testing"
	"time"

	"github.com/bool64/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/depot/cache"
	"github.com/IvanBrykalov/depot/metrics/bstats"
	"github.com/IvanBrykalov/depot/queue"
)

func TestAdapter(t *testing.T) {
	st := &stats.TrackerMock{}
	m := bstats.New(st, "users")

	d, err := cache.New(cache.Options[string, int]{
		Name:          "users",
		Queue:         queue.Direct{},
		ValidCapacity: 1,
		Metrics:       m,
		LRUMetrics:    m.LRU(),
		Factory: cache.FactoryFunc[string, int](func(_ context.Context, k string) (int, error) {
			return len(k), nil
		}),
	})
	require.NoError(t, err)
	defer func() { _ = d.Close() }()

	ctx := context.Background()
	v, ok := d.Get(ctx, "abc")
	require.True(t, ok)
	assert.Equal(t, 3, v)

	_, ok = d.Get(ctx, "abc")
	require.True(t, ok)

	d.Put("other", 5) // pushes "abc" out of the single-slot valid bucket

	assert.Eventually(t, func() bool { return st.Int(bstats.MetricInvalidate) == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, st.Int(bstats.MetricHit))
	assert.Equal(t, 1, st.Int(bstats.MetricMiss))
	assert.Equal(t, 1, st.Int(bstats.MetricLoad))
	assert.Equal(t, 0, st.Int(bstats.MetricFailed))
	assert.Equal(t, 1, st.Int(bstats.MetricEvict))
	assert.Equal(t, 1, st.Int(bstats.MetricItems))
}

func TestAdapter_NilTracker(t *testing.T) {
	m := bstats.New(nil, "noop")

	assert.NotPanics(t, func() {
		m.Hit()
		m.Load(time.Second, false)
		m.LRU().Size(3)
	})
}
