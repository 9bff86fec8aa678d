package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeExpiry(t *testing.T) {
	a := assert.New(t)

	_, ok := computeExpiry(0)
	a.False(ok) // zero means unbounded

	before := time.Now()
	expiry, ok := computeExpiry(time.Minute)
	a.True(ok)
	a.True(expiry.After(before))
	a.WithinDuration(before.Add(time.Minute), expiry, time.Second)
}

func TestHasExpired(t *testing.T) {
	a := assert.New(t)

	// an unbounded operation never expires
	a.False(hasExpired(time.Time{}, false, 0))
	a.False(hasExpired(time.Time{}, false, time.Hour))

	past := time.Now().Add(-time.Second)
	future := time.Now().Add(time.Hour)
	a.True(hasExpired(past, true, 0))
	a.False(hasExpired(future, true, 0))

	// an upcoming sleep counts against the budget
	a.True(hasExpired(time.Now().Add(time.Second), true, time.Minute))
}

func TestRemaining(t *testing.T) {
	a := assert.New(t)

	left, err := remaining(time.Time{}, false)
	a.NoError(err)
	a.Equal(time.Duration(0), left) // no bound to report

	left, err = remaining(time.Now().Add(time.Minute), true)
	a.NoError(err)
	a.Greater(left, 50*time.Second)
	a.LessOrEqual(left, time.Minute)

	_, err = remaining(time.Now().Add(-time.Second), true)
	a.Error(err)
	a.ErrorIs(err, ErrMaximumExecutionTimeExceeded)
}
