package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestChromeDriver_CloseTimeoutLeavesDriverAlone(t *testing.T) {
	release := make(chan struct{})
	cancelled := make(chan struct{})

	d := NewChromeDriver(ChromeDriverConfig{ShutdownTimeout: 50 * time.Millisecond}, arbor.NewLogger())
	d.started = true
	d.browsers = []context.Context{context.Background()}
	d.browserCancels = []context.CancelFunc{func() {
		<-release
		close(cancelled)
	}}
	d.allocatorCancels = []context.CancelFunc{func() {}}
	d.currentIndex = 1

	start := time.Now()
	require.NoError(t, d.Close())
	assert.Less(t, time.Since(start), 5*time.Second)

	d.mu.Lock()
	assert.False(t, d.started)
	assert.Nil(t, d.browsers)
	assert.Nil(t, d.browserCancels)
	assert.Nil(t, d.allocatorCancels)
	assert.Zero(t, d.currentIndex)

	// A restarted pool must survive the late shutdown finishing
	d.started = true
	d.browsers = []context.Context{context.Background()}
	d.mu.Unlock()

	close(release)
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("stalled cancel never ran")
	}
	time.Sleep(20 * time.Millisecond)

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.True(t, d.started)
	assert.Len(t, d.browsers, 1)
}

func TestChromeDriver_CloseWhenNotStarted(t *testing.T) {
	d := NewChromeDriver(ChromeDriverConfig{}, arbor.NewLogger())
	assert.NoError(t, d.Close())
}
