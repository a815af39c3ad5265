// Package bsm parses, inspects, and redacts Basic Safety Message documents.
//
// The document is modeled as a nested value-tree (map[string]any) rather
// than a fixed struct: its shape is validated at the edges (schema.go) but
// otherwise treated as opaque JSON to be passed through byte-faithfully,
// including fields this core never looks at.
package bsm

import (
	"encoding/json"
	"fmt"

	"github.com/google/go-cmp/cmp"

	"github.com/trailmark-labs/ppm/errors"
	"github.com/trailmark-labs/ppm/geo"
	"github.com/trailmark-labs/ppm/pkg/timestamp"
)

// Document wraps a parsed BSM payload.
type Document struct {
	raw map[string]any
}

// Parse parses payload as a BSM document. It fails with a classified,
// Invalid-class error (wrapping errors.ErrParse) when the payload is not
// well-formed JSON, or lacks coreData.id or coreData.position — the two
// fields every other operation in this package requires.
func Parse(payload []byte) (*Document, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParse, err), "bsm", "Parse", "unmarshal")
	}

	if err := ValidateSchema(raw); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParse, err), "bsm", "Parse", "schema")
	}

	doc := &Document{raw: raw}
	if _, ok := doc.id(); !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: missing coreData.id", errors.ErrParse), "bsm", "Parse", "coreData.id")
	}
	if _, ok := doc.position(); !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: missing coreData.position", errors.ErrParse), "bsm", "Parse", "coreData.position")
	}

	return doc, nil
}

// ID returns coreData.id.
func (d *Document) ID() string {
	id, _ := d.id()
	return id
}

func (d *Document) id() (string, bool) {
	core, ok := d.raw["coreData"].(map[string]any)
	if !ok {
		return "", false
	}
	id, ok := core["id"].(string)
	return id, ok
}

// SpeedMPS returns coreData.speed_mps, defaulting to 0 if absent. The
// velocity gate is the first check to run and a missing speed is not itself
// a parse error.
func (d *Document) SpeedMPS() float64 {
	core, ok := d.raw["coreData"].(map[string]any)
	if !ok {
		return 0
	}
	v, ok := core["speed_mps"].(float64)
	if !ok {
		return 0
	}
	return v
}

// Position returns coreData.position as a geo.Point.
func (d *Document) Position() (geo.Point, bool) {
	return d.position()
}

func (d *Document) position() (geo.Point, bool) {
	core, ok := d.raw["coreData"].(map[string]any)
	if !ok {
		return geo.Point{}, false
	}
	pos, ok := core["position"].(map[string]any)
	if !ok {
		return geo.Point{}, false
	}
	lat, latOK := pos["latitude"].(float64)
	lon, lonOK := pos["longitude"].(float64)
	if !latOK || !lonOK {
		return geo.Point{}, false
	}
	return geo.Point{Lat: lat, Lon: lon}, true
}

// Crumb is a single historical path-history sample.
type Crumb struct {
	Position  geo.Point
	DeltaTime int64 // milliseconds, relative to the preceding crumb
}

// ExtractTrajectory returns the current position followed by any path
// history crumbs in their encoded (earliest-first) order. A document with
// no path history yields a single-point trajectory.
func (d *Document) ExtractTrajectory() []geo.Point {
	current, ok := d.position()
	if !ok {
		return nil
	}

	points := []geo.Point{current}
	for _, crumb := range d.crumbs() {
		points = append(points, crumb.Position)
	}
	return points
}

func (d *Document) crumbs() []Crumb {
	partII, ok := d.raw["partII"].([]any)
	if !ok {
		return nil
	}

	var crumbs []Crumb
	for _, part := range partII {
		partMap, ok := part.(map[string]any)
		if !ok {
			continue
		}
		pathHistory, ok := partMap["pathHistory"].(map[string]any)
		if !ok {
			continue
		}
		rawCrumbs, ok := pathHistory["crumbs"].([]any)
		if !ok {
			continue
		}
		for _, rc := range rawCrumbs {
			crumbMap, ok := rc.(map[string]any)
			if !ok {
				continue
			}
			posMap, ok := crumbMap["position"].(map[string]any)
			if !ok {
				continue
			}
			lat, latOK := posMap["latitude"].(float64)
			lon, lonOK := posMap["longitude"].(float64)
			if !latOK || !lonOK {
				continue
			}
			crumbs = append(crumbs, Crumb{
				Position:  geo.Point{Lat: lat, Lon: lon},
				DeltaTime: timestamp.Parse(crumbMap["deltaTime"]),
			})
		}
	}
	return crumbs
}

// Redact overwrites coreData.id with value in place. All other fields are
// left untouched, satisfying the round-trip requirement that a REDACT
// outcome preserve every other field.
func (d *Document) Redact(value string) error {
	core, ok := d.raw["coreData"].(map[string]any)
	if !ok {
		return errors.WrapInvalid(fmt.Errorf("%w: missing coreData", errors.ErrParse), "bsm", "Redact", "coreData")
	}
	core["id"] = value
	return nil
}

// Serialize re-emits the document as JSON. Field order and numeric
// formatting follow encoding/json's map-key-sorted output; this core does
// not promise byte-identical re-serialization of pass-through fields, only
// value equality under the document model.
func (d *Document) Serialize() ([]byte, error) {
	b, err := json.Marshal(d.raw)
	if err != nil {
		return nil, errors.WrapInvalid(err, "bsm", "Serialize", "marshal")
	}
	return b, nil
}

// Equal reports whether two documents are equal under the document model
// (i.e. deep value equality, independent of key order), used to check the
// "other fields survive a round trip" invariant.
func (d *Document) Equal(other *Document) bool {
	return cmp.Diff(d.raw, other.raw) == ""
}

// Diff returns a human-readable description of how d and other differ under
// the document model, or "" if they're equal. Used by tests to report
// exactly which field broke a round-trip instead of a bare boolean.
func (d *Document) Diff(other *Document) string {
	return cmp.Diff(d.raw, other.raw)
}
