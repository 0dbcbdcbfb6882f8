package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFixedClock(t *testing.T) {
	c := Fixed(1000)
	require.Equal(t, int64(1000), c.Now().Unix())

	c.Advance(90 * time.Second)
	require.Equal(t, int64(1090), c.Now().Unix())

	c.Set(5000)
	require.Equal(t, int64(5000), c.Now().Unix())
}

func TestRealClock(t *testing.T) {
	before := time.Now()
	got := Real().Now()
	require.False(t, got.Before(before))
}
