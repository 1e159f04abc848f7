package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	var transitions []string
	s := NewSet(Config{FailureThreshold: 3, OpenTimeout: time.Hour}, func(name, from, to string) {
		transitions = append(transitions, name+":"+from+"->"+to)
	})
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		_, err := Execute(s, "binance", func() (int, error) { return 0, boom })
		assert.ErrorIs(t, err, boom)
	}
	assert.True(t, s.Open("binance"))
	assert.Equal(t, "open", s.State("binance"))
	assert.Equal(t, []string{"binance:closed->open"}, transitions)

	_, err := Execute(s, "binance", func() (int, error) { return 1, nil })
	assert.ErrorIs(t, err, ErrOpen)

	v, err := Execute(s, "clickhouse", func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, "closed", s.State("clickhouse"))
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	s := NewSet(Config{FailureThreshold: 1, OpenTimeout: 20 * time.Millisecond}, nil)
	_, _ = Execute(s, "src", func() (string, error) { return "", errors.New("x") })
	require.True(t, s.Open("src"))

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, "half-open", s.State("src"))
	v, err := Execute(s, "src", func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, "closed", s.State("src"))
}
