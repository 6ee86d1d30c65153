package monitoring

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkStatsRotate(t *testing.T) {
	s := NewLinkStats()
	start := s.lastReset

	for i := 0; i < 10; i++ {
		s.AddFrame(25)
	}
	s.AddMalformed()
	s.AddRelayed()
	s.AddDropped()

	snap := s.Rotate(start.Add(2 * time.Second))
	assert.InDelta(t, 5.0, snap.FramesPerSec, 1e-9)
	assert.InDelta(t, 125.0, snap.BytesPerSec, 1e-9)
	assert.Equal(t, int64(1), snap.Malformed)
	assert.Equal(t, int64(1), snap.Relayed)
	assert.Equal(t, int64(1), snap.RelayDropped)

	// interval counters reset, totals survive
	next := s.Rotate(start.Add(3 * time.Second))
	assert.Zero(t, next.FramesPerSec)
	assert.Equal(t, int64(10), next.TotalFrames)
	assert.Equal(t, int64(1), next.TotalMalformed)

	frames, malformed := s.Totals()
	assert.Equal(t, int64(10), frames)
	assert.Equal(t, int64(1), malformed)
}

func TestLinkStatsLatest(t *testing.T) {
	s := NewLinkStats()
	assert.Nil(t, s.Latest())

	s.AddFrame(25)
	s.Rotate(time.Now().Add(time.Second))
	latest := s.Latest()
	require.NotNil(t, latest)
	assert.Equal(t, int64(1), latest.TotalFrames)
}

func TestLogStatsSkipsIdleIntervals(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	s := NewLinkStats()
	s.LogStats()
	assert.Empty(t, lines)

	s.AddFrame(25)
	s.AddMalformed()
	s.LogStats()
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "Link stats (/sec):"))
	assert.Contains(t, lines[0], "1 malformed")
}
