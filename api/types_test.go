package api_test

import (
	"testing"
	"time"

	"github.com/momentics/hioload-net/api"
	"github.com/stretchr/testify/assert"
)

func TestEventMask(t *testing.T) {
	m := api.EventReadable | api.EventExceptional
	assert.True(t, m.Has(api.EventReadable))
	assert.False(t, m.Has(api.EventWritable))
	assert.False(t, m.Has(api.EventNone))
	assert.Equal(t, "readable|exceptional", m.String())
	assert.Equal(t, "none", api.EventNone.String())
}

func TestDeadlines(t *testing.T) {
	assert.True(t, api.Deadline(api.Infinite).IsZero())
	assert.Equal(t, api.Infinite, api.Remaining(time.Time{}))

	d := api.Deadline(time.Hour)
	assert.InDelta(t, float64(time.Hour), float64(api.Remaining(d)), float64(time.Second))

	assert.Zero(t, api.Remaining(time.Now().Add(-time.Second)))
}
