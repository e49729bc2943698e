package viewport

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitterspot/realtime/internal/domain"
)

type queryRecorder struct {
	mu    sync.Mutex
	calls []domain.Viewport
}

func (r *queryRecorder) record(v domain.Viewport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, v)
}

func (r *queryRecorder) snapshot() []domain.Viewport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Viewport{}, r.calls...)
}

func vp(zoom, west float64) domain.Viewport {
	return domain.Viewport{
		Longitude: -123,
		Latitude:  49,
		Zoom:      zoom,
		Bounds:    domain.Bounds{North: 50, South: 48, East: -122, West: west},
	}
}

func TestTrailingDebounceEmitsOnce(t *testing.T) {
	rec := &queryRecorder{}
	g := NewGate(60*time.Millisecond, 9, rec.record)
	defer g.Close()

	// Four changes inside one quiet window; only the last bounds win.
	g.OnViewportChange(vp(10, -130))
	time.Sleep(15 * time.Millisecond)
	g.OnViewportChange(vp(10, -129))
	time.Sleep(15 * time.Millisecond)
	g.OnViewportChange(vp(10, -128))
	time.Sleep(15 * time.Millisecond)
	g.OnViewportChange(vp(10, -127))

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	calls := rec.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, -127.0, calls[0].Bounds.West)
}

func TestLowZoomSuppressed(t *testing.T) {
	rec := &queryRecorder{}
	g := NewGate(20*time.Millisecond, 9, rec.record)
	defer g.Close()

	g.OnViewportChange(vp(8, -130))
	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestLowZoomCancelsPendingQuery(t *testing.T) {
	rec := &queryRecorder{}
	g := NewGate(40*time.Millisecond, 9, rec.record)
	defer g.Close()

	g.OnViewportChange(vp(10, -130))
	time.Sleep(10 * time.Millisecond)
	// Zooming out past the threshold before the window closes kills
	// the pending query; the final viewport in the window is the one
	// that counts.
	g.OnViewportChange(vp(8, -130))
	time.Sleep(120 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestInvalidViewportDropped(t *testing.T) {
	rec := &queryRecorder{}
	g := NewGate(20*time.Millisecond, 9, rec.record)
	defer g.Close()

	bad := vp(10, -130)
	bad.Bounds.North = math.NaN()
	g.OnViewportChange(bad)

	outOfRange := vp(10, -130)
	outOfRange.Latitude = 91
	g.OnViewportChange(outOfRange)

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestCloseCancelsPending(t *testing.T) {
	rec := &queryRecorder{}
	g := NewGate(30*time.Millisecond, 9, rec.record)

	g.OnViewportChange(vp(10, -130))
	g.Close()
	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}
