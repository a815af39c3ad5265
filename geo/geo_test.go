package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundingBoxContainsIsClosed(t *testing.T) {
	box := BoundingBox{SW: Point{Lat: 35.90, Lon: -84.10}, NE: Point{Lat: 35.92, Lon: -84.08}}

	require.True(t, box.Valid())
	assert.True(t, box.Contains(box.SW), "SW corner is on the boundary and must be included")
	assert.True(t, box.Contains(box.NE), "NE corner is on the boundary and must be included")
	assert.True(t, box.Contains(Point{Lat: 35.91, Lon: -84.09}))
	assert.False(t, box.Contains(Point{Lat: 36.0, Lon: -84.09}))
}

func TestBoundingBoxIntersects(t *testing.T) {
	a := BoundingBox{SW: Point{Lat: 0, Lon: 0}, NE: Point{Lat: 10, Lon: 10}}
	b := BoundingBox{SW: Point{Lat: 5, Lon: 5}, NE: Point{Lat: 15, Lon: 15}}
	c := BoundingBox{SW: Point{Lat: 20, Lon: 20}, NE: Point{Lat: 30, Lon: 30}}

	assert.True(t, a.Intersects(b))
	assert.True(t, b.Intersects(a))
	assert.False(t, a.Intersects(c))
}

func TestHaversineMetersZeroForSamePoint(t *testing.T) {
	p := Point{Lat: 35.91, Lon: -84.09}
	assert.Equal(t, 0.0, HaversineMeters(p, p))
}

func TestHaversineMetersKnownDistance(t *testing.T) {
	// Roughly one degree of latitude is about 111.2 km.
	a := Point{Lat: 0, Lon: 0}
	b := Point{Lat: 1, Lon: 0}
	d := HaversineMeters(a, b)
	assert.InDelta(t, 111195.0, d, 500.0)
}

func TestDistanceToSegmentMetersEndpoints(t *testing.T) {
	a := Point{Lat: 35.910, Lon: -84.095}
	b := Point{Lat: 35.911, Lon: -84.090}

	assert.InDelta(t, 0.0, DistanceToSegmentMeters(a, a, b), 0.001)
	assert.InDelta(t, 0.0, DistanceToSegmentMeters(b, a, b), 0.001)
}

func TestDistanceToSegmentMetersDegenerateSegment(t *testing.T) {
	a := Point{Lat: 35.910, Lon: -84.095}
	p := Point{Lat: 35.911, Lon: -84.095}
	got := DistanceToSegmentMeters(p, a, a)
	want := HaversineMeters(p, a)
	assert.InDelta(t, want, got, 0.001)
}

func TestBoundingBoxUnion(t *testing.T) {
	box := BoundingBox{SW: Point{Lat: 0, Lon: 0}, NE: Point{Lat: 1, Lon: 1}}
	union := box.Union(Point{Lat: -1, Lon: 2})
	assert.Equal(t, -1.0, union.SW.Lat)
	assert.Equal(t, 0.0, union.SW.Lon)
	assert.Equal(t, 1.0, union.NE.Lat)
	assert.Equal(t, 2.0, union.NE.Lon)
}

func TestPointValid(t *testing.T) {
	assert.True(t, Point{Lat: 90, Lon: 180}.Valid())
	assert.True(t, Point{Lat: -90, Lon: -180}.Valid())
	assert.False(t, Point{Lat: 91, Lon: 0}.Valid())
	assert.False(t, Point{Lat: 0, Lon: -181}.Valid())
}

func TestCenter(t *testing.T) {
	box := BoundingBox{SW: Point{Lat: 0, Lon: 0}, NE: Point{Lat: 2, Lon: 4}}
	c := box.Center()
	assert.Equal(t, 1.0, c.Lat)
	assert.Equal(t, 2.0, c.Lon)
}

func TestHaversineSymmetric(t *testing.T) {
	a := Point{Lat: 35.9, Lon: -84.1}
	b := Point{Lat: 36.0, Lon: -84.0}
	assert.True(t, math.Abs(HaversineMeters(a, b)-HaversineMeters(b, a)) < 1e-9)
}
