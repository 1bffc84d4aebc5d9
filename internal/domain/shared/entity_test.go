package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateRange_Split(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	r, err := NewDateRange(start, start.Add(180*day))
	require.NoError(t, err)
	assert.Equal(t, 180, r.Days())

	windows := r.Split(90 * day)
	require.Len(t, windows, 2)
	assert.Equal(t, start, windows[0].Start)
	assert.Equal(t, windows[0].End, windows[1].Start)
	assert.Equal(t, r.End, windows[1].End)

	windows = r.Split(7 * day)
	require.Len(t, windows, 26)
	assert.Equal(t, r.End, windows[25].End)
	assert.Equal(t, 5*day, windows[25].End.Sub(windows[25].Start))
}

func TestNewDateRange_RejectsEmpty(t *testing.T) {
	now := time.Now()
	_, err := NewDateRange(now, now)
	assert.Error(t, err)
}
