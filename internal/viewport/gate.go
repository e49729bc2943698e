// Package viewport turns a stream of map viewport changes into
// rate-limited bounding-box queries.
package viewport

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sitterspot/realtime/internal/domain"
)

// QueryFunc receives the bounds of the final viewport in a quiet
// window, exactly once per window.
type QueryFunc func(v domain.Viewport)

// Gate is a trailing debounce: each valid change cancels the pending
// timer and re-arms it, so only the last viewport in the quiet window
// produces a query. Below MinZoom the box is too large to be useful
// and the change is suppressed entirely.
type Gate struct {
	quiet   time.Duration
	minZoom float64
	query   QueryFunc

	mu     sync.Mutex
	timer  *time.Timer
	latest domain.Viewport
	closed bool
}

func NewGate(quiet time.Duration, minZoom float64, query QueryFunc) *Gate {
	return &Gate{quiet: quiet, minZoom: minZoom, query: query}
}

// OnViewportChange validates and stores the viewport. Invalid
// viewports are dropped, never stored: one NaN edge voids the whole
// query rather than producing a partial box.
func (g *Gate) OnViewportChange(v domain.Viewport) {
	if err := v.Validate(); err != nil {
		log.Debug().Err(err).Str("module", "viewport").Msg("dropped invalid viewport")
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	if v.Zoom < g.minZoom {
		return
	}
	g.latest = v
	g.timer = time.AfterFunc(g.quiet, g.fire)
}

func (g *Gate) fire() {
	g.mu.Lock()
	if g.closed || g.timer == nil {
		g.mu.Unlock()
		return
	}
	g.timer = nil
	v := g.latest
	g.mu.Unlock()
	g.query(v)
}

// Close cancels any pending query.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}
