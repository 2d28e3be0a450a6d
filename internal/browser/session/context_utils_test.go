package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCombineContext(t *testing.T) {
	type ctxKey string
	const key ctxKey = "target"

	t.Run("InheritsTabValues", func(t *testing.T) {
		tab := context.WithValue(context.Background(), key, "tab-1")
		ctx, cancel := combineContext(tab, context.Background())
		defer cancel()

		assert.Equal(t, "tab-1", ctx.Value(key))
		assert.NoError(t, ctx.Err())
	})

	t.Run("CanceledByTab", func(t *testing.T) {
		tab, closeTab := context.WithCancel(context.Background())
		ctx, cancel := combineContext(tab, context.Background())
		defer cancel()

		closeTab()
		assert.Eventually(t, func() bool { return ctx.Err() != nil }, time.Second, 5*time.Millisecond)
		assert.ErrorIs(t, ctx.Err(), context.Canceled)
	})

	t.Run("CanceledByOperation", func(t *testing.T) {
		op, stop := context.WithCancel(context.Background())
		ctx, cancel := combineContext(context.Background(), op)
		defer cancel()

		stop()
		assert.Eventually(t, func() bool { return ctx.Err() != nil }, time.Second, 5*time.Millisecond)
	})

	t.Run("OperationDeadline", func(t *testing.T) {
		op, stop := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer stop()
		ctx, cancel := combineContext(context.Background(), op)
		defer cancel()

		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
			t.Fatal("deadline of the operation context did not propagate")
		}
	})
}
