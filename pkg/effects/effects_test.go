package effects

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRunContinuesPastFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	runner := NewRunner(false, zap.New(core))

	var ran []string
	var list List
	list.Add("first", func(context.Context) error { ran = append(ran, "first"); return nil })
	list.Add("broken", func(context.Context) error { ran = append(ran, "broken"); return errors.New("disk full") })
	list.Add("panicky", func(context.Context) error { panic("boom") })
	list.Add("last", func(context.Context) error { ran = append(ran, "last"); return nil })

	failures := runner.Run(context.Background(), list)

	assert.Equal(t, []string{"first", "broken", "last"}, ran)
	require.Len(t, failures, 2)
	assert.Equal(t, "broken", failures[0].Name)
	assert.Equal(t, "panicky", failures[1].Name)
	assert.Equal(t, 2, logs.FilterMessage("Side effect failed").Len())
}

func TestDispatchSyncRunsInline(t *testing.T) {
	runner := NewRunner(false, zap.NewNop())

	var count int32
	var list List
	list.Add("count", func(context.Context) error { atomic.AddInt32(&count, 1); return nil })

	runner.Dispatch(context.Background(), list)
	assert.Equal(t, int32(1), atomic.LoadInt32(&count))
}

func TestDispatchAsyncSurvivesCancelledRequest(t *testing.T) {
	runner := NewRunner(true, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	var count int32
	var sawCancel int32
	var list List
	list.Add("count", func(ctx context.Context) error {
		if ctx.Err() != nil {
			atomic.StoreInt32(&sawCancel, 1)
		}
		atomic.AddInt32(&count, 1)
		return nil
	})

	cancel()
	for i := 0; i < 5; i++ {
		runner.Dispatch(ctx, list)
	}
	runner.Wait()

	assert.Equal(t, int32(5), atomic.LoadInt32(&count))
	assert.Zero(t, atomic.LoadInt32(&sawCancel))
}

func TestExtend(t *testing.T) {
	var a, b List
	a.Add("a", func(context.Context) error { return nil })
	b.Add("b", func(context.Context) error { return nil })
	a.Extend(b)

	require.Len(t, a, 2)
	assert.Equal(t, "b", a[1].Name)
	assert.Empty(t, NewRunner(false, zap.NewNop()).Run(context.Background(), nil))
}
