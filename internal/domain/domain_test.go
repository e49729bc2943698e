package domain

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRoomID(t *testing.T) {
	assert.NoError(t, ValidateRoomID("abc123abc123abc123abc123"))
	assert.NoError(t, ValidateRoomID("ABC123abc123ABC123abc123"))
	assert.ErrorIs(t, ValidateRoomID(""), ErrInvalidRoomID)
	assert.ErrorIs(t, ValidateRoomID("abc123"), ErrInvalidRoomID)
	assert.ErrorIs(t, ValidateRoomID("ghi123ghi123ghi123ghi123"), ErrInvalidRoomID)
	assert.ErrorIs(t, ValidateRoomID("abc123abc123abc123abc1234"), ErrInvalidRoomID)
}

func TestViewportValidate(t *testing.T) {
	good := Viewport{
		Longitude: -123, Latitude: 49, Zoom: 10,
		Bounds: Bounds{North: 50, South: 48, East: -122, West: -124},
	}
	assert.NoError(t, good.Validate())

	bad := good
	bad.Zoom = -1
	assert.ErrorIs(t, bad.Validate(), ErrInvalidViewport)

	bad = good
	bad.Longitude = 181
	assert.ErrorIs(t, bad.Validate(), ErrInvalidViewport)

	bad = good
	bad.Bounds.West = math.NaN()
	assert.ErrorIs(t, bad.Validate(), ErrInvalidBounds)

	bad = good
	bad.Bounds.North = 40 // below South
	assert.ErrorIs(t, bad.Validate(), ErrInvalidBounds)
}

func TestBoundsContainsWrapsAntimeridian(t *testing.T) {
	b := Bounds{North: 10, South: -10, East: -170, West: 170}
	assert.True(t, b.Contains(Coordinates{Lng: 175, Lat: 0}))
	assert.True(t, b.Contains(Coordinates{Lng: -175, Lat: 0}))
	assert.False(t, b.Contains(Coordinates{Lng: 0, Lat: 0}))
}

func TestNewUser(t *testing.T) {
	u, err := NewUser("u1", "alice")
	require.NoError(t, err)
	assert.Equal(t, UserID("u1"), u.ID)
	assert.Equal(t, "alice", u.Username)

	u, err = NewUser("", "bob")
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)

	_, err = NewUser("u1", "")
	assert.ErrorIs(t, err, ErrUsernameEmpty)
	_, err = NewUser("u1", strings.Repeat("x", MaxUsernameLen+1))
	assert.ErrorIs(t, err, ErrUsernameTooLong)
}

func TestCoordinatesValidate(t *testing.T) {
	assert.NoError(t, Coordinates{Lng: -123, Lat: 49}.Validate())
	assert.ErrorIs(t, Coordinates{Lng: -181, Lat: 0}.Validate(), ErrInvalidCoordinates)
	assert.ErrorIs(t, Coordinates{Lng: 0, Lat: 91}.Validate(), ErrInvalidCoordinates)
	assert.ErrorIs(t, Coordinates{Lng: math.NaN(), Lat: 0}.Validate(), ErrInvalidCoordinates)
}
