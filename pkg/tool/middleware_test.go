package tool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/repcoach/pkg/tool/builtin"
)

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(label string) Middleware {
		return func(next Executor) Executor {
			return func(ctx *ExecutionContext) (*builtin.Result, error) {
				order = append(order, "pre-"+label)
				res, err := next(ctx)
				order = append(order, "post-"+label)
				return res, err
			}
		}
	}
	base := func(ctx *ExecutionContext) (*builtin.Result, error) {
		order = append(order, "base")
		return &builtin.Result{Success: true}, nil
	}

	exec := Chain(mw("a"), mw("b"))(base)
	_, err := exec(&ExecutionContext{Context: context.Background()})
	require.NoError(t, err)
	assert.Equal(t, []string{"pre-a", "pre-b", "base", "post-b", "post-a"}, order)
}

func TestTimeoutAppliesDeadline(t *testing.T) {
	mw := Timeout(25*time.Millisecond, map[string]time.Duration{"slow": 0})
	exec := mw(func(ctx *ExecutionContext) (*builtin.Result, error) {
		_, ok := ctx.Context.Deadline()
		return &builtin.Result{Success: ok}, nil
	})

	res, err := exec(&ExecutionContext{Context: context.Background(), ToolName: "fast"})
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, err = exec(&ExecutionContext{Context: context.Background(), ToolName: "slow"})
	require.NoError(t, err)
	assert.False(t, res.Success, "per-tool zero disables the timeout")
}

type tempErr struct{}

func (tempErr) Error() string   { return "flaky" }
func (tempErr) Temporary() bool { return true }

func TestRetryRetriesUntilSuccess(t *testing.T) {
	calls := 0
	exec := Retry(RetryConfig{MaxAttempts: 3, Multiplier: 2})(func(ctx *ExecutionContext) (*builtin.Result, error) {
		calls++
		if calls < 3 {
			return nil, tempErr{}
		}
		return &builtin.Result{Success: true}, nil
	})
	ctx := &ExecutionContext{Context: context.Background(), ToolName: "create_workout"}
	res, err := exec(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, ctx.Attempt)
}

func TestRetrySkipsPanicsAndUnlistedTools(t *testing.T) {
	calls := 0
	exec := Retry(RetryConfig{MaxAttempts: 3})(func(ctx *ExecutionContext) (*builtin.Result, error) {
		calls++
		return nil, &PanicError{Tool: ctx.ToolName, Value: "boom"}
	})
	_, err := exec(&ExecutionContext{Context: context.Background(), ToolName: "x"})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)

	calls = 0
	exec = Retry(RetryConfig{MaxAttempts: 3, Tools: []string{"create_workout"}})(func(ctx *ExecutionContext) (*builtin.Result, error) {
		calls++
		return nil, tempErr{}
	})
	_, err = exec(&ExecutionContext{Context: context.Background(), ToolName: "modify_workout"})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exec := Retry(RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour})(func(*ExecutionContext) (*builtin.Result, error) {
		cancel()
		return nil, tempErr{}
	})
	_, err := exec(&ExecutionContext{Context: ctx})
	assert.True(t, errors.Is(err, context.Canceled))
}
