package domain

import (
	"errors"
	"math"
)

var (
	ErrInvalidCoordinates = errors.New("coordinates out of range")
	ErrInvalidViewport    = errors.New("invalid viewport")
	ErrInvalidBounds      = errors.New("invalid bounds")
)

type PinID string

// SelfMarkerID keys the current user's own location marker. It never
// collides with server pin ids, which are 24-char identifiers.
const SelfMarkerID PinID = "self"

type Coordinates struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

func (c Coordinates) Validate() error {
	if math.IsNaN(c.Lng) || math.IsNaN(c.Lat) {
		return ErrInvalidCoordinates
	}
	if c.Lng < -180 || c.Lng > 180 || c.Lat < -90 || c.Lat > 90 {
		return ErrInvalidCoordinates
	}
	return nil
}

// Pin is a sitter's advertised location. One live pin per owner is an
// application invariant enforced by the backend, not by this struct.
type Pin struct {
	ID           PinID       `json:"id"`
	OwnerID      UserID      `json:"ownerId"`
	Coordinates  Coordinates `json:"coordinates"`
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	Services     []string    `json:"services"`
	Availability string      `json:"availability"`
	HourlyRate   float64     `json:"hourlyRate"`
}

// Bounds is a geographic bounding box. All four edges must be present
// and finite; a single bad field voids the whole box.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func (b Bounds) Validate() error {
	if !finite(b.North) || !finite(b.South) || !finite(b.East) || !finite(b.West) {
		return ErrInvalidBounds
	}
	if b.North < b.South {
		return ErrInvalidBounds
	}
	return nil
}

// Contains reports whether c falls inside the box. Boxes crossing the
// antimeridian wrap on longitude.
func (b Bounds) Contains(c Coordinates) bool {
	if c.Lat > b.North || c.Lat < b.South {
		return false
	}
	if b.West <= b.East {
		return c.Lng >= b.West && c.Lng <= b.East
	}
	return c.Lng >= b.West || c.Lng <= b.East
}

type Viewport struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Zoom      float64 `json:"zoom"`
	Bounds    Bounds  `json:"bounds"`
}

func (v Viewport) Validate() error {
	if math.IsNaN(v.Longitude) || math.IsNaN(v.Latitude) || math.IsNaN(v.Zoom) {
		return ErrInvalidViewport
	}
	if v.Longitude < -180 || v.Longitude > 180 {
		return ErrInvalidViewport
	}
	if v.Latitude < -90 || v.Latitude > 90 {
		return ErrInvalidViewport
	}
	if v.Zoom < 0 {
		return ErrInvalidViewport
	}
	return v.Bounds.Validate()
}
