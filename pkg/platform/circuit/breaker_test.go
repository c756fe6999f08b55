package circuit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := New("gazette", WithFailureThreshold(3))

	for i := 0; i < 2; i++ {
		fallback, change := b.RecordFailure()
		assert.False(t, fallback)
		assert.False(t, change.Opened)
	}
	assert.False(t, b.IsOpen())

	fallback, change := b.RecordFailure()
	assert.True(t, fallback)
	assert.True(t, change.Opened)
	assert.True(t, b.IsOpen())
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerSuccessResetsFailureStreak(t *testing.T) {
	b := New("gazette", WithFailureThreshold(3))

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	assert.False(t, b.IsOpen())
}

func TestBreakerClosesAfterSuccessThreshold(t *testing.T) {
	b := New("gazette", WithFailureThreshold(1), WithSuccessThreshold(2))

	_, change := b.RecordFailure()
	assert.True(t, change.Opened)

	usable, change := b.RecordSuccess()
	assert.False(t, usable)
	assert.False(t, change.Closed)

	usable, change = b.RecordSuccess()
	assert.True(t, usable)
	assert.True(t, change.Closed)
	assert.False(t, b.IsOpen())
}

func TestBreakerFailureWhileOpenResetsSuccessStreak(t *testing.T) {
	b := New("gazette", WithFailureThreshold(1), WithSuccessThreshold(2))

	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordSuccess()
	assert.True(t, b.IsOpen())
	b.RecordSuccess()
	assert.False(t, b.IsOpen())
}

func TestBreakerReset(t *testing.T) {
	b := New("gazette", WithFailureThreshold(1))
	b.RecordFailure()
	assert.True(t, b.IsOpen())

	b.Reset()
	assert.False(t, b.IsOpen())
	assert.Equal(t, "gazette", b.Name())
}
