package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Booking Code Tests

func TestGenerateCode_Length(t *testing.T) {
	code, err := GenerateCode(4)

	require.NoError(t, err)
	assert.Len(t, code, 8)
}

func TestGenerateCode_UppercaseHex(t *testing.T) {
	code, err := GenerateCode(6)

	require.NoError(t, err)
	for _, c := range code {
		isDigit := c >= '0' && c <= '9'
		isUpperHex := c >= 'A' && c <= 'F'
		assert.True(t, isDigit || isUpperHex, "unexpected character %q in code %s", c, code)
	}
}

func TestGenerateCode_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := GenerateCode(4)
		require.NoError(t, err)
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
}

// Circuit Breaker Tests

func TestCircuitBreaker_ExecuteSuccess(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx := context.Background()

	result, err := cb.Execute(ctx, func() (interface{}, error) {
		return "ok", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, StateClosed, cb.state)
	assert.Equal(t, uint32(1), cb.counts.TotalSuccesses)
}

func TestCircuitBreaker_ExecuteFailure(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx := context.Background()

	boom := errors.New("publish failed")
	_, err := cb.Execute(ctx, func() (interface{}, error) {
		return nil, boom
	})

	assert.Equal(t, boom, err)
	assert.Equal(t, StateClosed, cb.state)
	assert.Equal(t, uint32(1), cb.counts.TotalFailures)
}

func TestCircuitBreaker_TripsAfterFailureRatio(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx := context.Background()

	// The breaker needs maxRequests samples before it considers tripping.
	boom := errors.New("publish failed")
	for i := uint32(0); i < cb.maxRequests; i++ {
		cb.Execute(ctx, func() (interface{}, error) {
			return nil, boom
		})
	}

	assert.Equal(t, StateOpen, cb.state)

	// While open, calls are rejected without invoking the request.
	called := false
	_, err := cb.Execute(ctx, func() (interface{}, error) {
		called = true
		return nil, nil
	})
	assert.Error(t, err)
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx := context.Background()

	boom := errors.New("publish failed")
	for i := uint32(0); i < cb.maxRequests; i++ {
		cb.Execute(ctx, func() (interface{}, error) {
			return nil, boom
		})
	}
	require.Equal(t, StateOpen, cb.state)

	// Force the open window to lapse.
	cb.mutex.Lock()
	cb.expiry = time.Now().Add(-time.Second)
	cb.mutex.Unlock()

	result, err := cb.Execute(ctx, func() (interface{}, error) {
		return "recovered", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, StateClosed, cb.state)
}
