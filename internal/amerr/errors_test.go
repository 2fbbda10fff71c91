package amerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrappedErrorsAreDetected(t *testing.T) {
	base := errors.New("boom")

	assert.True(t, IsRetryable(fmt.Errorf("outer: %w", NewRetryableAnytimeError(base))))
	assert.False(t, IsRetryable(base))

	assert.True(t, IsPermanent(fmt.Errorf("outer: %w", NewPermanentError(base))))
	assert.False(t, IsPermanent(NewRetryableAnytimeError(base)))

	cfgErr := fmt.Errorf("loading: %w", NewConfigurationError("rules.yml", base))
	assert.True(t, IsConfiguration(cfgErr))
	assert.ErrorIs(t, cfgErr, base)
	assert.Contains(t, cfgErr.Error(), "rules.yml")
}

func TestQueueExhaustedErrorUnwrapsLastErr(t *testing.T) {
	last := errors.New("branch is out of date")
	err := &QueueExhaustedError{Attempts: 3, MaxAttempts: 3, LastErr: last}

	assert.ErrorIs(t, err, last)
	assert.Equal(t, "giving up after 3/3 requeues: branch is out of date", err.Error())
	assert.Equal(t, "giving up after 1/3 requeues", (&QueueExhaustedError{Attempts: 1, MaxAttempts: 3}).Error())
}
