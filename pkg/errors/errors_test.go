package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := Newf(KindAccountForbidden, "account %q is protected", "someone")
	wrapped := fmt.Errorf("walker: %w", err)

	assert.True(t, stderrors.Is(wrapped, ErrAccountForbidden))
	assert.False(t, stderrors.Is(wrapped, ErrAccountNotFound))
	assert.Equal(t, KindAccountForbidden, KindOf(wrapped))
}

func TestErrorUnwrap(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(KindOutput, cause, "flush batch")

	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, "output: flush batch: disk full", err.Error())
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "schema_violation", ErrSchemaViolation.Error())
	assert.Equal(t, "config: bad", New(KindConfig, "bad").Error())
	assert.Equal(t, "output: boom", Wrap(KindOutput, stderrors.New("boom"), "").Error())
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(stderrors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain", stderrors.New("x"), 1},
		{"invalid duration", ErrInvalidDuration, 2},
		{"not found", fmt.Errorf("x: %w", ErrAccountNotFound), 4},
		{"forbidden", ErrAccountForbidden, 5},
		{"rate limit", ErrRateLimitExhausted, 6},
		{"transient", ErrTransientFailureExhausted, 7},
		{"schema", ErrSchemaViolation, 8},
	}

	seen := map[int]string{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExitCode(tt.err)
			assert.Equal(t, tt.want, got)
			if prev, ok := seen[got]; ok && got > 1 {
				t.Errorf("exit code %d shared by %s and %s", got, prev, tt.name)
			}
			seen[got] = tt.name
		})
	}
}

func TestRecoverableAndRetryable(t *testing.T) {
	assert.True(t, IsRecoverable(KindCorruptCheckpoint))
	assert.False(t, IsRecoverable(KindAccountForbidden))

	assert.False(t, IsRetryable(KindAccountNotFound))
	assert.False(t, IsRetryable(KindRateLimitExhausted))
	assert.True(t, IsRetryable(KindOutput))
}
