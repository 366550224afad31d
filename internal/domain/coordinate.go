// Package domain contains the core business entities and value objects.
package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CoordinatePrecision is the number of decimal digits kept for stored
// coordinates. Six digits resolve roughly 0.11 m at the equator.
const CoordinatePrecision = 6

// Coordinate is a WGS84 position.
type Coordinate struct {
	Lat float64
	Lng float64
}

// Validate checks that the coordinate lies within WGS84 bounds.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || c.Lat < -90 || c.Lat > 90 {
		return &ValidationError{
			Field:      "lat",
			Value:      c.Lat,
			Constraint: "[-90, 90]",
			Message:    "latitude must be between -90 and 90",
			Err:        ErrInvalidCoordinate,
		}
	}
	if math.IsNaN(c.Lng) || c.Lng < -180 || c.Lng > 180 {
		return &ValidationError{
			Field:      "lng",
			Value:      c.Lng,
			Constraint: "[-180, 180]",
			Message:    "longitude must be between -180 and 180",
			Err:        ErrInvalidCoordinate,
		}
	}
	return nil
}

// String returns a string representation of the coordinate.
func (c Coordinate) String() string {
	return fmt.Sprintf("POINT(%f %f)", c.Lng, c.Lat)
}

// Rounded returns the coordinate rounded to CoordinatePrecision.
func (c Coordinate) Rounded() Coordinate {
	return Coordinate{Lat: Round(c.Lat), Lng: Round(c.Lng)}
}

// Round rounds v to CoordinatePrecision decimal digits.
func Round(v float64) float64 {
	const scale = 1e6
	r := math.Round(v*scale) / scale
	if r == 0 {
		return 0 // normalize -0
	}
	return r
}

// ParseCoordinate parses raw lat/lng values, typically query parameters.
// Absent or non-numeric values yield ErrMissingCoordinates.
func ParseCoordinate(lat, lng string) (Coordinate, error) {
	lat, lng = strings.TrimSpace(lat), strings.TrimSpace(lng)
	if lat == "" || lng == "" {
		return Coordinate{}, &ValidationError{
			Field:      "lat,lng",
			Value:      fmt.Sprintf("%q,%q", lat, lng),
			Constraint: "required",
			Message:    "lat and lng are required",
			Err:        ErrMissingCoordinates,
		}
	}

	la, errLat := strconv.ParseFloat(lat, 64)
	ln, errLng := strconv.ParseFloat(lng, 64)
	if errLat != nil || errLng != nil {
		return Coordinate{}, &ValidationError{
			Field:      "lat,lng",
			Value:      fmt.Sprintf("%q,%q", lat, lng),
			Constraint: "numeric",
			Message:    "lat and lng must be numeric",
			Err:        ErrMissingCoordinates,
		}
	}

	c := Coordinate{Lat: la, Lng: ln}
	if err := c.Validate(); err != nil {
		return Coordinate{}, err
	}
	return c, nil
}

// BoundingBox is a viewport in WGS84.
type BoundingBox struct {
	SouthWest Coordinate
	NorthEast Coordinate
}

// Validate checks both corners and their ordering.
func (b BoundingBox) Validate() error {
	if err := b.SouthWest.Validate(); err != nil {
		return err
	}
	if err := b.NorthEast.Validate(); err != nil {
		return err
	}
	if b.SouthWest.Lat > b.NorthEast.Lat {
		return &ValidationError{
			Field:      "swLat",
			Value:      b.SouthWest.Lat,
			Constraint: "<= neLat",
			Message:    "south-west latitude must not exceed north-east latitude",
			Err:        ErrInvalidCoordinate,
		}
	}
	return nil
}
