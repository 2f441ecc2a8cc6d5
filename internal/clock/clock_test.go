package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeAdvance(t *testing.T) {
	start := time.Date(2026, 5, 1, 23, 59, 0, 0, time.UTC)
	c := Fake(start)
	assert.Equal(t, start, c.Now())

	c.Advance(2 * time.Minute)
	assert.Equal(t, start.Add(2*time.Minute), c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now(), "Set rewinds the clock")
}
