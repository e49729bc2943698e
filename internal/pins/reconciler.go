package pins

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sitterspot/realtime/internal/domain"
	"github.com/sitterspot/realtime/internal/markers"
)

// Fetcher is the REST surface the reconciler pulls from.
type Fetcher interface {
	FetchAll(ctx context.Context) ([]domain.Pin, error)
	FetchInBounds(ctx context.Context, b domain.Bounds) ([]domain.Pin, error)
}

// Reconciler merges fetched and pushed pin sets into one local
// collection and drives the marker arena so that after every pass the
// marker keys equal the pin ids exactly.
//
// Staleness: pushes and applied fetches bump a generation counter. A
// fetch snapshots the generation before the request goes out and
// applies only if nothing landed in between; a stale snapshot is
// discarded silently.
type Reconciler struct {
	fetcher  Fetcher
	registry *markers.Registry

	mu   sync.Mutex
	pins map[domain.PinID]domain.Pin
	gen  uint64
}

func NewReconciler(f Fetcher, reg *markers.Registry) *Reconciler {
	return &Reconciler{
		fetcher:  f,
		registry: reg,
		pins:     make(map[domain.PinID]domain.Pin),
	}
}

// Refresh pulls the full pin set. A successful response is
// authoritative for everything; a failed one changes nothing.
func (r *Reconciler) Refresh(ctx context.Context) error {
	gen := r.generation()
	fetched, err := r.fetcher.FetchAll(ctx)
	if err != nil {
		return r.fetchFailed(err)
	}
	r.ApplyServerSet(fetched, nil, gen)
	return nil
}

// RefreshInBounds pulls pins for one bounding box. The response is
// authoritative only inside that box; pins outside it are retained.
func (r *Reconciler) RefreshInBounds(ctx context.Context, b domain.Bounds) error {
	gen := r.generation()
	fetched, err := r.fetcher.FetchInBounds(ctx, b)
	if err != nil {
		return r.fetchFailed(err)
	}
	r.ApplyServerSet(fetched, &b, gen)
	return nil
}

// fetchFailed maps a 404-with-pinId to a targeted delete; every other
// failure is reported and leaves local state untouched.
func (r *Reconciler) fetchFailed(err error) error {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		log.Info().Str("module", "pins").Str("pin", string(nf.PinID)).Msg("backend dropped pin, removing")
		r.ApplyDelete(nf.PinID)
		return nil
	}
	log.Error().Err(err).Str("module", "pins").Msg("fetch failed, keeping current pins")
	return err
}

// ApplyServerSet diffs fetched against local state. Scope nil means
// the whole world. An empty-but-successful response is authoritative
// for its scope and clears it; only transport failures never clear
// (they stop before reaching here).
func (r *Reconciler) ApplyServerSet(fetched []domain.Pin, scope *domain.Bounds, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen {
		log.Debug().Str("module", "pins").Uint64("fetched_gen", gen).Uint64("current_gen", r.gen).Msg("stale fetch discarded")
		return
	}
	// Applying also advances the generation, so of two overlapping
	// fetches holding the same snapshot only the first lands.
	r.gen++

	seen := make(map[domain.PinID]struct{}, len(fetched))
	for _, p := range fetched {
		seen[p.ID] = struct{}{}
		r.pins[p.ID] = p
		r.upsertMarker(p)
	}
	for id, p := range r.pins {
		if _, ok := seen[id]; ok {
			continue
		}
		if scope != nil && !scope.Contains(p.Coordinates) {
			continue
		}
		delete(r.pins, id)
		r.registry.Remove(id)
	}
}

// HandleCreated and HandleUpdated are the push paths; each advances
// the generation so in-flight fetches cannot roll the pin back.
func (r *Reconciler) HandleCreated(p domain.Pin) { r.applyPush(p) }

func (r *Reconciler) HandleUpdated(p domain.Pin) { r.applyPush(p) }

func (r *Reconciler) applyPush(p domain.Pin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.pins[p.ID] = p
	r.upsertMarker(p)
}

// ApplyDelete removes exactly one pin and its marker. Used for both
// the pin_deleted push and 404 recovery.
func (r *Reconciler) ApplyDelete(id domain.PinID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	if _, ok := r.pins[id]; !ok {
		return
	}
	delete(r.pins, id)
	r.registry.Remove(id)
}

func (r *Reconciler) upsertMarker(p domain.Pin) {
	r.registry.Upsert(p.ID, p.Coordinates, markers.Options{
		Title: p.Title,
		Popup: p.Description,
	})
}

func (r *Reconciler) generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}

func (r *Reconciler) Pin(id domain.PinID) (domain.Pin, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pins[id]
	return p, ok
}

func (r *Reconciler) Snapshot() []domain.Pin {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Pin, 0, len(r.pins))
	for _, p := range r.pins {
		out = append(out, p)
	}
	return out
}
