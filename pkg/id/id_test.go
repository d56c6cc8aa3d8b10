package id

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsSortable(t *testing.T) {
	prev := New()
	for i := 0; i < 1000; i++ {
		next := New()
		require.Less(t, prev, next)
		prev = next
	}
}

func TestAtRoundTripsTime(t *testing.T) {
	at := time.Date(2024, 12, 31, 23, 59, 58, 123_000_000, time.UTC)
	s := At(at)

	assert.True(t, Valid(s))
	got, err := Time(s)
	require.NoError(t, err)
	assert.True(t, got.Equal(at), got)
}

func TestInvalid(t *testing.T) {
	assert.False(t, Valid("not-an-id"))
	_, err := Time("")
	assert.Error(t, err)
}
