package filter

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailmark-labs/ppm/bsm"
	"github.com/trailmark-labs/ppm/geo"
	"github.com/trailmark-labs/ppm/quadtree"
	"github.com/trailmark-labs/ppm/shape"
)

func testGeofence() geo.BoundingBox {
	return geo.BoundingBox{SW: geo.Point{Lat: 35.90, Lon: -84.10}, NE: geo.Point{Lat: 35.92, Lon: -84.08}}
}

func testTree(t *testing.T) *quadtree.Tree {
	e := shape.Edge{
		A:      geo.Point{Lat: 35.910, Lon: -84.095},
		B:      geo.Point{Lat: 35.911, Lon: -84.090},
		WidthM: 20,
	}
	tree, err := quadtree.Build(testGeofence(), []shape.Entity{e})
	require.NoError(t, err)
	return tree
}

func bsmPayload(id string, lat, lon, speed float64) []byte {
	return []byte(fmt.Sprintf(
		`{"coreData": {"id": "%s", "speed_mps": %f, "position": {"latitude": %f, "longitude": %f}}}`,
		id, speed, lat, lon,
	))
}

func TestRetainInFence(t *testing.T) {
	p, err := NewPolicy(1.0, 40.0, `^NEVER-MATCH$`, "ANON")
	require.NoError(t, err)

	doc, err := bsm.Parse(bsmPayload("VEH-7", 35.9105, -84.0925, 10.0))
	require.NoError(t, err)

	decision := p.Evaluate(doc, testGeofence(), testTree(t))
	assert.Equal(t, Retain, decision.Outcome)
}

func TestSuppressOutsideGeofence(t *testing.T) {
	p, err := NewPolicy(1.0, 40.0, `^NEVER-MATCH$`, "ANON")
	require.NoError(t, err)

	doc, err := bsm.Parse(bsmPayload("VEH-7", 36.0, -84.0, 10.0))
	require.NoError(t, err)

	decision := p.Evaluate(doc, testGeofence(), testTree(t))
	assert.Equal(t, Suppress, decision.Outcome)
	assert.Equal(t, ReasonOutsideGeofence, decision.Reason)
}

func TestSuppressLowSpeed(t *testing.T) {
	p, err := NewPolicy(1.0, 40.0, `^NEVER-MATCH$`, "ANON")
	require.NoError(t, err)

	doc, err := bsm.Parse(bsmPayload("VEH-7", 35.9105, -84.0925, 0.1))
	require.NoError(t, err)

	decision := p.Evaluate(doc, testGeofence(), testTree(t))
	assert.Equal(t, Suppress, decision.Outcome)
	assert.Equal(t, ReasonVelocity, decision.Reason)
}

func TestSuppressHighSpeed(t *testing.T) {
	p, err := NewPolicy(1.0, 5.0, `^NEVER-MATCH$`, "ANON")
	require.NoError(t, err)

	doc, err := bsm.Parse(bsmPayload("VEH-7", 35.9105, -84.0925, 10.0))
	require.NoError(t, err)

	decision := p.Evaluate(doc, testGeofence(), testTree(t))
	assert.Equal(t, Suppress, decision.Outcome)
	assert.Equal(t, ReasonVelocity, decision.Reason)
}

func TestRedactID(t *testing.T) {
	p, err := NewPolicy(1.0, 40.0, `^VEH-.*$`, "ANON")
	require.NoError(t, err)

	doc, err := bsm.Parse(bsmPayload("VEH-7", 35.9105, -84.0925, 10.0))
	require.NoError(t, err)

	decision, err := p.Apply(doc, testGeofence(), testTree(t))
	require.NoError(t, err)
	assert.Equal(t, Redact, decision.Outcome)
	assert.Equal(t, "ANON", doc.ID())
}

func TestSuppressNotInRegion(t *testing.T) {
	p, err := NewPolicy(1.0, 40.0, `^NEVER-MATCH$`, "ANON")
	require.NoError(t, err)

	// Inside the geofence bbox but far from the only configured entity.
	doc, err := bsm.Parse(bsmPayload("VEH-7", 35.918, -84.081, 10.0))
	require.NoError(t, err)

	decision := p.Evaluate(doc, testGeofence(), testTree(t))
	assert.Equal(t, Suppress, decision.Outcome)
	assert.Equal(t, ReasonNotInRegion, decision.Reason)
}

func TestVelocityGateFiresBeforeGeofenceGate(t *testing.T) {
	p, err := NewPolicy(1.0, 40.0, `^NEVER-MATCH$`, "ANON")
	require.NoError(t, err)

	// Both a velocity violation and outside the geofence: velocity wins.
	doc, err := bsm.Parse(bsmPayload("VEH-7", 40.0, -80.0, 0.1))
	require.NoError(t, err)

	decision := p.Evaluate(doc, testGeofence(), testTree(t))
	assert.Equal(t, ReasonVelocity, decision.Reason)
}

func TestVelocityAtBoundsIsInside(t *testing.T) {
	p, err := NewPolicy(1.0, 40.0, `^NEVER-MATCH$`, "ANON")
	require.NoError(t, err)

	doc, err := bsm.Parse(bsmPayload("VEH-7", 35.9105, -84.0925, 1.0))
	require.NoError(t, err)

	decision := p.Evaluate(doc, testGeofence(), testTree(t))
	assert.NotEqual(t, ReasonVelocity, decision.Reason)
}
