// Package markers owns the id -> rendered marker arena over an
// asynchronously loaded map engine. It has no network knowledge.
package markers

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sitterspot/realtime/internal/domain"
)

// MarkerHandle is an opaque engine handle. The registry is the only
// holder; UI callbacks never touch engine objects directly.
type MarkerHandle interface{}

type Options struct {
	Title string
	Color string
	Popup string
}

// MapEngine abstracts the third-party map library. It loads
// asynchronously, so the registry must tolerate having no engine yet.
type MapEngine interface {
	AddMarker(id domain.PinID, c domain.Coordinates, opts Options) MarkerHandle
	RemoveMarker(h MarkerHandle)
}

type Registry struct {
	mu      sync.Mutex
	engine  MapEngine
	markers map[domain.PinID]MarkerHandle
}

func NewRegistry() *Registry {
	return &Registry{markers: make(map[domain.PinID]MarkerHandle)}
}

// SetEngine attaches the loaded engine. Markers upserted before the
// engine arrived were dropped, so the first reconciliation after load
// repopulates everything.
func (r *Registry) SetEngine(e MapEngine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engine = e
}

// Upsert is remove-then-create, never mutate-in-place: reused engine
// handles keep stale event listeners attached.
func (r *Registry) Upsert(id domain.PinID, c domain.Coordinates, opts Options) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.engine == nil {
		log.Debug().Str("module", "markers").Str("id", string(id)).Msg("upsert before engine load")
		return false
	}
	if old, ok := r.markers[id]; ok {
		r.engine.RemoveMarker(old)
		delete(r.markers, id)
	}
	r.markers[id] = r.engine.AddMarker(id, c, opts)
	return true
}

func (r *Registry) Remove(id domain.PinID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.markers[id]
	if !ok {
		return
	}
	delete(r.markers, id)
	if r.engine != nil {
		r.engine.RemoveMarker(h)
	}
}

func (r *Registry) Has(id domain.PinID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.markers[id]
	return ok
}

// Clear is idempotent and a no-op before the engine loads.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.engine != nil {
		for _, h := range r.markers {
			r.engine.RemoveMarker(h)
		}
	}
	r.markers = make(map[domain.PinID]MarkerHandle)
}

func (r *Registry) Keys() []domain.PinID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.PinID, 0, len(r.markers))
	for id := range r.markers {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
