package closer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	zapLogger "github.com/nastyazhadan/trading-hub/shared/logger/zap"
)

func TestMain(m *testing.M) {
	zapLogger.SetNopLogger()
	m.Run()
}

func TestCloseAllRunsInReverseOrder(t *testing.T) {
	closer := New(&NoopLogger{})

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		closer.AddNamed(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, closer.CloseAll(context.Background()))
	assert.Equal(t, []string{"third", "second", "first"}, order)

	order = nil
	require.NoError(t, closer.CloseAll(context.Background()))
	assert.Empty(t, order)
}

func TestCloseAllContinuesPastFailures(t *testing.T) {
	closer := New(&NoopLogger{})
	boom := errors.New("boom")

	closed := false
	closer.AddNamed("healthy", func(context.Context) error {
		closed = true
		return nil
	})
	closer.AddNamed("broken", func(context.Context) error {
		return boom
	})
	closer.AddNamed("panicking", func(context.Context) error {
		panic("close panicked")
	})

	err := closer.CloseAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "panicking")
	assert.True(t, closed)
}

func TestCloseAllReportsExpiredContext(t *testing.T) {
	closer := New(&NoopLogger{})
	closer.AddNamed("pool", func(context.Context) error {
		t.Fatal("must not run after the deadline")
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := closer.CloseAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
