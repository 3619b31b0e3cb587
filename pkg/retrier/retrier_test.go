package retrier

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrier_Do(t *testing.T) {
	errFail := errors.New("fail")

	tests := []struct {
		name         string
		maxRetries   int
		failUntil    int
		wantAttempts int
		wantErr      bool
	}{
		{name: "first attempt", maxRetries: 3, failUntil: 0, wantAttempts: 1},
		{name: "succeeds after retries", maxRetries: 3, failUntil: 2, wantAttempts: 3},
		{name: "exhausted", maxRetries: 2, failUntil: 10, wantAttempts: 3, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(WithMaxRetries(tt.maxRetries), WithInitialInterval(time.Millisecond))
			attempts := 0
			err := r.Do(context.Background(), func(ctx context.Context) error {
				attempts++
				if attempts <= tt.failUntil {
					return errFail
				}
				return nil
			})
			assert.Equal(t, tt.wantAttempts, attempts)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errFail)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestRetrier_Permanent(t *testing.T) {
	errBadSymbol := errors.New("invalid symbol")
	r := New(WithMaxRetries(5), WithInitialInterval(time.Millisecond))

	attempts := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return Permanent(errBadSymbol)
	})

	assert.Equal(t, 1, attempts)
	assert.Equal(t, errBadSymbol, err)
	assert.Nil(t, Permanent(nil))
}

func TestRetrier_ContextCancellation(t *testing.T) {
	r := New(WithMaxRetries(Unlimited), WithInitialInterval(100*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := r.Do(ctx, func(ctx context.Context) error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return errors.New("fail")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, attempts)
}

func TestRetrier_OnRetryAndBackoff(t *testing.T) {
	var seen []int
	r := New(
		WithMaxRetries(2),
		WithInitialInterval(time.Millisecond),
		WithMaxInterval(3*time.Millisecond),
		WithJitter(0),
		WithOnRetry(func(attempt int, err error, wait time.Duration) {
			seen = append(seen, attempt)
		}),
	)

	_ = r.Do(context.Background(), func(ctx context.Context) error { return errors.New("fail") })
	assert.Equal(t, []int{1, 2}, seen)

	assert.Equal(t, time.Millisecond, r.Backoff(1))
	assert.Equal(t, 2*time.Millisecond, r.Backoff(2))
	assert.Equal(t, 3*time.Millisecond, r.Backoff(3))
	assert.Equal(t, 3*time.Millisecond, r.Backoff(10))
}

func TestDoWithData(t *testing.T) {
	r := New(WithMaxRetries(1), WithInitialInterval(time.Millisecond))

	val, err := DoWithData(r, context.Background(), func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", val)

	_, err = DoWithData(r, context.Background(), func(ctx context.Context) (int, error) {
		return 0, errors.New("fail")
	})
	assert.Error(t, err)
}
