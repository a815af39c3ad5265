// Package shape catalogs the geographic entities the quadtree indexes:
// points of interest as circles, road segments as edges with an influence
// corridor, and coverage grid cells. Entities carry a Type discriminator
// rather than sitting in a deep type hierarchy, keeping the catalog easy to
// extend with a new shape kind without touching existing ones.
package shape

import (
	"fmt"
	"math"

	"github.com/trailmark-labs/ppm/geo"
)

// Kind discriminates the three concrete Entity variants.
type Kind int

const (
	KindCircle Kind = iota
	KindEdge
	KindGrid
)

func (k Kind) String() string {
	switch k {
	case KindCircle:
		return "circle"
	case KindEdge:
		return "edge"
	case KindGrid:
		return "grid"
	default:
		return "unknown"
	}
}

// Entity is the uniform capability every shape.Kind exposes to the quadtree:
// a bounding box for spatial partitioning and a point-containment test.
type Entity interface {
	Kind() Kind
	BBox() geo.BoundingBox
	Contains(p geo.Point) bool
	// IntersectsSegment reports whether the segment a-b comes within the
	// entity's influence region, used by the quadtree's segment query for
	// crumb-trail analysis.
	IntersectsSegment(a, b geo.Point) bool
}

// Circle models a point of interest with a circular influence radius.
type Circle struct {
	Center  geo.Point
	Radius  float64 // metres
	TypeTag string
}

func (c Circle) Kind() Kind { return KindCircle }

func (c Circle) BBox() geo.BoundingBox {
	// Approximate degrees-per-metre at this latitude; adequate for bounding
	// box purposes since the quadtree treats it only as a conservative filter,
	// the true containment test always redoes the haversine distance.
	dLat := metersToDegreesLat(c.Radius)
	dLon := metersToDegreesLon(c.Radius, c.Center.Lat)
	return geo.BoundingBox{
		SW: geo.Point{Lat: c.Center.Lat - dLat, Lon: c.Center.Lon - dLon},
		NE: geo.Point{Lat: c.Center.Lat + dLat, Lon: c.Center.Lon + dLon},
	}
}

func (c Circle) Contains(p geo.Point) bool {
	return geo.HaversineMeters(c.Center, p) <= c.Radius
}

func (c Circle) IntersectsSegment(a, b geo.Point) bool {
	return geo.DistanceToSegmentMeters(c.Center, a, b) <= c.Radius
}

// Edge models a road segment with an influence corridor of half-width
// WidthM/2 on either side of the a-b centreline.
type Edge struct {
	A, B    geo.Point
	WidthM  float64
	WayType string
}

func (e Edge) Kind() Kind { return KindEdge }

func (e Edge) BBox() geo.BoundingBox {
	box := geo.BoundingBox{SW: e.A, NE: e.A}
	if e.A.Lat > e.B.Lat || e.A.Lon > e.B.Lon {
		box = geo.BoundingBox{SW: e.B, NE: e.B}
	}
	box = box.Union(e.A).Union(e.B)

	half := e.WidthM / 2
	dLat := metersToDegreesLat(half)
	dLon := metersToDegreesLon(half, (e.A.Lat+e.B.Lat)/2)
	return geo.BoundingBox{
		SW: geo.Point{Lat: box.SW.Lat - dLat, Lon: box.SW.Lon - dLon},
		NE: geo.Point{Lat: box.NE.Lat + dLat, Lon: box.NE.Lon + dLon},
	}
}

func (e Edge) Contains(p geo.Point) bool {
	return geo.DistanceToSegmentMeters(p, e.A, e.B) <= e.WidthM/2
}

func (e Edge) IntersectsSegment(a, b geo.Point) bool {
	// Conservative test: either endpoint of the query segment lies in the
	// corridor, or the corridor midpoint lies close to the query segment.
	// Sufficient for the crumb-trail analysis this core performs (short,
	// closely-spaced points), and never allocates.
	if e.Contains(a) || e.Contains(b) {
		return true
	}
	mid := geo.Point{Lat: (e.A.Lat + e.B.Lat) / 2, Lon: (e.A.Lon + e.B.Lon) / 2}
	return geo.DistanceToSegmentMeters(mid, a, b) <= e.WidthM/2
}

// Grid is an axis-aligned rectangular cell, primarily used for coverage
// testing rather than privacy decisions.
type Grid struct {
	BBox_ geo.BoundingBox
	Row   int
	Col   int
}

func (g Grid) Kind() Kind { return KindGrid }

func (g Grid) BBox() geo.BoundingBox { return g.BBox_ }

func (g Grid) Contains(p geo.Point) bool { return g.BBox_.Contains(p) }

func (g Grid) IntersectsSegment(a, b geo.Point) bool {
	if g.Contains(a) || g.Contains(b) {
		return true
	}
	// Sample the segment's bounding box against the cell; adequate given
	// grid cells exist for coverage reporting, not fine-grained redaction.
	segBox := geo.BoundingBox{SW: a, NE: a}
	segBox = segBox.Union(b)
	if a.Lat > b.Lat || a.Lon > b.Lon {
		segBox = geo.BoundingBox{SW: b, NE: b}.Union(a)
	}
	return g.BBox_.Intersects(segBox)
}

// String renders an entity for logging without exposing full precision
// coordinates in hot-path log lines.
func String(e Entity) string {
	return fmt.Sprintf("%s@%v", e.Kind(), e.BBox())
}

func metersToDegreesLat(m float64) float64 {
	return m / 111320.0
}

func metersToDegreesLon(m, atLat float64) float64 {
	const minCos = 0.01 // guard against division blowup near the poles
	c := math.Cos(atLat * math.Pi / 180.0)
	if c < minCos {
		c = minCos
	}
	return m / (111320.0 * c)
}
