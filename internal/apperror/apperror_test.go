package apperror

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cause := errors.New("boom")
	testCases := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "rate limited", err: RateLimited("list commits", time.Minute, cause), want: KindRateLimited},
		{name: "transient", err: Transient("list commits", cause), want: KindTransient},
		{name: "empty repository", err: RepositoryEmpty("list contributors", nil), want: KindRepositoryEmpty},
		{name: "wrapped app error", err: fmt.Errorf("repo x: %w", Transient("list reviews", cause)), want: KindTransient},
		{name: "bare sentinel", err: fmt.Errorf("wrapped: %w", ErrRateLimited), want: KindRateLimited},
		{name: "unclassified", err: cause, want: KindFatal},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Transient("list commits", cause)

	assert.ErrorIs(t, err, ErrTransient)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, "list commits: transient: connection reset", err.Error())
}

func TestRetryAfterOf(t *testing.T) {
	err := fmt.Errorf("page 2: %w", RateLimited("list pull requests", 42*time.Second, nil))
	assert.Equal(t, 42*time.Second, RetryAfterOf(err))
	assert.Zero(t, RetryAfterOf(errors.New("plain")))
}

func TestKind_Retryable(t *testing.T) {
	assert.True(t, KindRateLimited.Retryable())
	assert.True(t, KindTransient.Retryable())
	assert.False(t, KindRepositoryEmpty.Retryable())
	assert.False(t, KindFatal.Retryable())
}
