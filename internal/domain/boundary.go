package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// DefaultBoundaryPrefix is the collection name prefix of the per-level
// administrative boundary collections.
const DefaultBoundaryPrefix = "sggu_boundaries_"

// BoundaryLevel is an administrative division level.
type BoundaryLevel string

// Boundary levels, coarsest first.
const (
	LevelProvince BoundaryLevel = "ctprvn"
	LevelCity     BoundaryLevel = "sig"
	LevelTown     BoundaryLevel = "emd"
	LevelVillage  BoundaryLevel = "li"
)

// AllBoundaryLevels lists every level in a stable order.
var AllBoundaryLevels = []BoundaryLevel{LevelProvince, LevelCity, LevelTown, LevelVillage}

// PropertyKeys names the source properties that carry a level's
// Korean name, English name and administrative code.
type PropertyKeys struct {
	Name    string
	NameEng string
	Code    string
}

// ParseBoundaryLevel parses a boundary type path segment.
func ParseBoundaryLevel(s string) (BoundaryLevel, error) {
	switch l := BoundaryLevel(strings.ToLower(strings.TrimSpace(s))); l {
	case LevelProvince, LevelCity, LevelTown, LevelVillage:
		return l, nil
	default:
		return "", &ValidationError{
			Field:      "boundaryType",
			Value:      s,
			Constraint: "ctprvn|sig|emd|li",
			Message:    "unknown boundary type",
			Err:        ErrUnknownBoundaryType,
		}
	}
}

// Keys returns the property keys used by the level.
func (l BoundaryLevel) Keys() PropertyKeys {
	switch l {
	case LevelProvince:
		return PropertyKeys{Name: "CTP_KOR_NM", NameEng: "CTP_ENG_NM", Code: "CTPRVN_CD"}
	case LevelCity:
		return PropertyKeys{Name: "SIG_KOR_NM", NameEng: "SIG_ENG_NM", Code: "SIG_CD"}
	case LevelTown:
		return PropertyKeys{Name: "EMD_KOR_NM", NameEng: "EMD_ENG_NM", Code: "EMD_CD"}
	case LevelVillage:
		return PropertyKeys{Name: "LI_KOR_NM", NameEng: "LI_ENG_NM", Code: "LI_CD"}
	default:
		return PropertyKeys{}
	}
}

// Collection returns the collection that stores the level.
func (l BoundaryLevel) Collection(prefix string) string {
	return prefix + string(l)
}

// LevelForCollection maps a collection name back to its level.
func LevelForCollection(prefix, collection string) (BoundaryLevel, bool) {
	suffix, ok := strings.CutPrefix(collection, prefix)
	if !ok {
		return "", false
	}
	l, err := ParseBoundaryLevel(suffix)
	if err != nil {
		return "", false
	}
	return l, true
}

// LevelForZoom picks the boundary level rendered at a map zoom level.
func LevelForZoom(zoom int) (BoundaryLevel, error) {
	switch {
	case zoom >= 8 && zoom <= 10:
		return LevelProvince, nil
	case zoom >= 11 && zoom <= 12:
		return LevelCity, nil
	case zoom >= 13 && zoom <= 14:
		return LevelTown, nil
	case zoom == 15:
		return LevelVillage, nil
	default:
		return "", &ValidationError{
			Field:      "zoom",
			Value:      zoom,
			Constraint: "[8, 15]",
			Message:    "zoom must be between 8 and 15",
			Err:        ErrInvalidZoom,
		}
	}
}

// BoundaryFeature is an administrative boundary record as stored in the
// document store. Sanitization only ever replaces Geometry. Key is the stored
// document key as decoded and is used unchanged in write filters; ID is its
// printable form.
type BoundaryFeature struct {
	ID         string
	Key        any
	Code       string
	Name       string
	Geometry   orb.Geometry
	Properties map[string]any
}

// GeometryUpdate is a staged geometry rewrite for one document.
type GeometryUpdate struct {
	ID       string
	Key      any
	Geometry orb.Geometry
}

// BoundaryMatch is the normalized answer to a containment lookup. It never
// carries geometry.
type BoundaryMatch struct {
	Level      BoundaryLevel `json:"level"`
	Collection string        `json:"collection"`
	ID         string        `json:"id"`
	Code       string        `json:"code"`
	Name       string        `json:"name"`
	NameEng    string        `json:"name_eng,omitempty"`
}

// NewBoundaryMatch projects a feature onto the level's property keys,
// falling back to the top-level code and name fields.
func NewBoundaryMatch(level BoundaryLevel, collection string, f *BoundaryFeature) BoundaryMatch {
	keys := level.Keys()
	m := BoundaryMatch{
		Level:      level,
		Collection: collection,
		ID:         f.ID,
		Code:       PropertyString(f.Properties, keys.Code),
		Name:       PropertyString(f.Properties, keys.Name),
		NameEng:    PropertyString(f.Properties, keys.NameEng),
	}
	if m.Code == "" {
		m.Code = f.Code
	}
	if m.Name == "" {
		m.Name = f.Name
	}
	return m
}

// PropertyString returns props[key] as a string, formatting non-string values.
func PropertyString(props map[string]any, key string) string {
	if props == nil || key == "" {
		return ""
	}
	switch v := props[key].(type) {
	case string:
		return v
	case nil:
		return ""
	case float64:
		// Codes decoded from JSON numbers.
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// Viewport lists the boundaries of one level visible in a map viewport.
type Viewport struct {
	Zoom       int             `json:"zoom"`
	Level      BoundaryLevel   `json:"level"`
	Boundaries []BoundaryMatch `json:"boundaries"`
}
