package quadtree

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailmark-labs/ppm/geo"
	"github.com/trailmark-labs/ppm/shape"
)

func testGeofence() geo.BoundingBox {
	return geo.BoundingBox{SW: geo.Point{Lat: 35.90, Lon: -84.10}, NE: geo.Point{Lat: 35.92, Lon: -84.08}}
}

func TestBuildRejectsInvalidBBox(t *testing.T) {
	inverted := geo.BoundingBox{SW: geo.Point{Lat: 10, Lon: 10}, NE: geo.Point{Lat: 0, Lon: 0}}
	_, err := Build(inverted, []shape.Entity{shape.Circle{Center: geo.Point{Lat: 5, Lon: 5}, Radius: 10}})
	assert.Error(t, err)
}

func TestBuildRejectsEmptyEntities(t *testing.T) {
	_, err := Build(testGeofence(), nil)
	assert.Error(t, err)
}

func TestBuildRejectsAllEntitiesOutside(t *testing.T) {
	outside := shape.Circle{Center: geo.Point{Lat: 50, Lon: 50}, Radius: 10}
	_, err := Build(testGeofence(), []shape.Entity{outside})
	assert.Error(t, err)
}

func TestContainsFindsInsertedCircle(t *testing.T) {
	center := geo.Point{Lat: 35.910, Lon: -84.090}
	c := shape.Circle{Center: center, Radius: 50}
	tree, err := Build(testGeofence(), []shape.Entity{c})
	require.NoError(t, err)

	assert.True(t, tree.Contains(center))
	assert.False(t, tree.Contains(geo.Point{Lat: 35.919, Lon: -84.081}))
}

func TestContainsFindsInsertedEdge(t *testing.T) {
	e := shape.Edge{
		A:      geo.Point{Lat: 35.910, Lon: -84.095},
		B:      geo.Point{Lat: 35.911, Lon: -84.090},
		WidthM: 20,
	}
	tree, err := Build(testGeofence(), []shape.Entity{e})
	require.NoError(t, err)

	mid := geo.Point{Lat: 35.9105, Lon: -84.0925}
	assert.True(t, tree.Contains(mid))
}

func TestEveryInsertedEntityIsFindableAtItsCenter(t *testing.T) {
	// Property test analogue: for every inserted Entity E, contains(p) is
	// true for at least one point p in E.
	var entities []shape.Entity
	for i := 0; i < 20; i++ {
		lat := 35.90 + float64(i)*0.0009
		lon := -84.10 + float64(i)*0.0009
		entities = append(entities, shape.Circle{Center: geo.Point{Lat: lat, Lon: lon}, Radius: 15})
	}

	tree, err := Build(testGeofence(), entities)
	require.NoError(t, err)

	for _, e := range entities {
		c := e.(shape.Circle)
		assert.True(t, tree.Contains(c.Center), "expected contains(center) for %v", c)
	}
}

func TestSplitsBeyondFanout(t *testing.T) {
	var entities []shape.Entity
	for i := 0; i < Fanout+5; i++ {
		lat := 35.901 + float64(i)*0.0005
		entities = append(entities, shape.Circle{Center: geo.Point{Lat: lat, Lon: -84.099}, Radius: 5})
	}
	tree, err := Build(testGeofence(), entities)
	require.NoError(t, err)
	assert.Greater(t, tree.NodeCount(), 1, "expected the root leaf to have split")
}

func TestBoundaryPointOnGeofenceEdgeIsInside(t *testing.T) {
	fence := testGeofence()
	// A circle exactly covering the SW corner.
	c := shape.Circle{Center: fence.SW, Radius: 1}
	tree, err := Build(fence, []shape.Entity{c})
	require.NoError(t, err)
	assert.True(t, fence.Contains(fence.SW))
	assert.True(t, tree.Contains(fence.SW))
}

func TestIntersectsSegmentFindsEdgeCorridor(t *testing.T) {
	e := shape.Edge{
		A:      geo.Point{Lat: 35.910, Lon: -84.095},
		B:      geo.Point{Lat: 35.911, Lon: -84.090},
		WidthM: 20,
	}
	tree, err := Build(testGeofence(), []shape.Entity{e})
	require.NoError(t, err)

	assert.True(t, tree.IntersectsSegment(e.A, e.B))
	assert.False(t, tree.IntersectsSegment(
		geo.Point{Lat: 35.918, Lon: -84.081},
		geo.Point{Lat: 35.919, Lon: -84.082},
	))
}

func TestReinsertionIsIdempotentInEffect(t *testing.T) {
	c := shape.Circle{Center: geo.Point{Lat: 35.911, Lon: -84.091}, Radius: 30}
	tree1, err := Build(testGeofence(), []shape.Entity{c})
	require.NoError(t, err)
	tree2, err := Build(testGeofence(), []shape.Entity{c, c})
	require.NoError(t, err)

	samples := []geo.Point{
		c.Center,
		{Lat: 35.90, Lon: -84.10},
		{Lat: 35.919, Lon: -84.081},
	}
	for _, p := range samples {
		assert.Equal(t, tree1.Contains(p), tree2.Contains(p), fmt.Sprintf("mismatch at %v", p))
	}
}
