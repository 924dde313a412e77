package pdf

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGeneratorDefaults(t *testing.T) {
	g := NewGenerator("  /usr/bin/chromium ", 0, 0)
	assert.Equal(t, "/usr/bin/chromium", g.bin)
	assert.Equal(t, 30*time.Second, g.timeout)
	assert.Equal(t, 1, cap(g.slots))
}

func TestAcquireWaitsForFreeSlot(t *testing.T) {
	g := NewGenerator("", time.Second, 1)

	release, err := g.acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release2, err := g.acquire(context.Background())
	require.NoError(t, err)
	release2()
}
