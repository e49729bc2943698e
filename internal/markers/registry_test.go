package markers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitterspot/realtime/internal/domain"
)

type fakeEngine struct {
	added   int
	removed int
	seq     int
}

type fakeHandle struct{ n int }

func (e *fakeEngine) AddMarker(id domain.PinID, c domain.Coordinates, opts Options) MarkerHandle {
	e.added++
	e.seq++
	return &fakeHandle{n: e.seq}
}

func (e *fakeEngine) RemoveMarker(h MarkerHandle) {
	e.removed++
}

func TestUpsertIsRemoveThenCreate(t *testing.T) {
	eng := &fakeEngine{}
	r := NewRegistry()
	r.SetEngine(eng)

	require.True(t, r.Upsert("p1", domain.Coordinates{Lng: 1, Lat: 1}, Options{}))
	require.True(t, r.Upsert("p1", domain.Coordinates{Lng: 2, Lat: 2}, Options{}))

	// Second upsert removed the old handle before creating a new one.
	assert.Equal(t, 2, eng.added)
	assert.Equal(t, 1, eng.removed)
	assert.Equal(t, []domain.PinID{"p1"}, r.Keys())
}

func TestRemoveAndHas(t *testing.T) {
	eng := &fakeEngine{}
	r := NewRegistry()
	r.SetEngine(eng)

	r.Upsert("p1", domain.Coordinates{}, Options{})
	assert.True(t, r.Has("p1"))

	r.Remove("p1")
	assert.False(t, r.Has("p1"))
	assert.Equal(t, 1, eng.removed)

	// Removing again is a no-op.
	r.Remove("p1")
	assert.Equal(t, 1, eng.removed)
}

func TestClearIdempotent(t *testing.T) {
	eng := &fakeEngine{}
	r := NewRegistry()
	r.SetEngine(eng)

	r.Upsert("p1", domain.Coordinates{}, Options{})
	r.Upsert("p2", domain.Coordinates{}, Options{})

	r.Clear()
	assert.Empty(t, r.Keys())
	assert.Equal(t, 2, eng.removed)

	r.Clear()
	assert.Equal(t, 2, eng.removed)
}

func TestSafeWithoutEngine(t *testing.T) {
	r := NewRegistry()

	assert.False(t, r.Upsert("p1", domain.Coordinates{}, Options{}))
	assert.False(t, r.Has("p1"))
	r.Remove("p1")
	r.Clear()
	assert.Empty(t, r.Keys())
}

func TestSelfMarkerKey(t *testing.T) {
	eng := &fakeEngine{}
	r := NewRegistry()
	r.SetEngine(eng)

	r.Upsert(domain.SelfMarkerID, domain.Coordinates{Lng: -123, Lat: 49}, Options{Title: "You"})
	assert.Equal(t, []domain.PinID{domain.SelfMarkerID}, r.Keys())
}
