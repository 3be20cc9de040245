// Package geojson reads airqloud boundaries from GeoJSON documents.
package geojson

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/couchcryptid/site-registry/internal/domain"
)

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	ID         json.RawMessage `json:"id"`
	Properties struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"properties"`
	Geometry struct {
		Type        string         `json:"type"`
		Coordinates [][][2]float64 `json:"coordinates"`
	} `json:"geometry"`
}

// ReadAirQlouds decodes a FeatureCollection of Polygon features. Only the
// outer ring of each polygon is kept; positions are GeoJSON [lng, lat] pairs.
func ReadAirQlouds(r io.Reader) ([]domain.AirQloud, error) {
	var fc featureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("unexpected geojson type %q", fc.Type)
	}

	out := make([]domain.AirQloud, 0, len(fc.Features))
	for i, f := range fc.Features {
		id := f.Properties.ID
		if id == "" {
			id = featureID(f.ID)
		}
		if id == "" {
			return nil, fmt.Errorf("feature %d: missing id", i)
		}
		if f.Geometry.Type != "Polygon" {
			return nil, fmt.Errorf("feature %s: geometry %q is not a Polygon", id, f.Geometry.Type)
		}
		if len(f.Geometry.Coordinates) == 0 || len(f.Geometry.Coordinates[0]) < 3 {
			return nil, fmt.Errorf("feature %s: polygon needs at least three vertices", id)
		}

		ring := f.Geometry.Coordinates[0]
		boundary := make([]domain.Coordinate, len(ring))
		for j, pos := range ring {
			boundary[j] = domain.Coordinate{Lat: pos[1], Lng: pos[0]}
			if err := boundary[j].Validate(); err != nil {
				return nil, fmt.Errorf("feature %s vertex %d: %w", id, j, err)
			}
		}
		out = append(out, domain.AirQloud{ID: id, Name: f.Properties.Name, Boundary: boundary})
	}
	return out, nil
}

// featureID accepts the string or numeric forms GeoJSON allows for "id".
func featureID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
