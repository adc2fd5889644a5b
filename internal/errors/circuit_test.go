package errors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	// Given: a breaker that trips after 2 failures
	cb := NewCircuitBreaker("ollama", WithMaxFailures(2), WithResetTimeout(time.Hour))
	boom := errors.New("boom")

	// When: two calls fail
	_ = cb.Execute(func() error { return boom })
	_ = cb.Execute(func() error { return boom })

	// Then: the circuit is open and calls fail fast
	assert.Equal(t, StateOpen, cb.State())
	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenProbeCloses(t *testing.T) {
	cb := NewCircuitBreaker("graph", WithMaxFailures(1), WithResetTimeout(time.Minute))
	now := time.Now()
	cb.now = func() time.Time { return now }

	_ = cb.Execute(func() error { return errors.New("down") })
	assert.Equal(t, StateOpen, cb.State())

	// When: the reset timeout passes
	now = now.Add(2 * time.Minute)
	assert.Equal(t, StateHalfOpen, cb.State())

	// Then: a successful probe closes it
	err := cb.Execute(func() error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitExecute_ReturnsResult(t *testing.T) {
	cb := NewCircuitBreaker("x")
	v, err := CircuitExecute(cb, func() (string, error) { return "ok", nil })
	assert.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, "closed", cb.State().String())
}
