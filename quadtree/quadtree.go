// Package quadtree implements the spatial index over shape.Entities.
//
// Nodes live in a slice and reference children by integer index rather than
// by pointer, so the whole tree is one contiguous allocation with no cycles
// for the garbage collector to walk. Destruction is then trivial: drop the
// Tree value.
package quadtree

import (
	"fmt"

	"github.com/trailmark-labs/ppm/errors"
	"github.com/trailmark-labs/ppm/geo"
	"github.com/trailmark-labs/ppm/shape"
)

// Fanout is the maximum number of entities a leaf holds before it splits,
// unless it is already at MaxDepth.
const Fanout = 4

// MaxDepth bounds recursive splitting; beyond it, leaves accept overflow.
const MaxDepth = 16

type quadrant int

const (
	quadNW quadrant = iota
	quadNE
	quadSW
	quadSE
	quadCount
)

type node struct {
	bbox     geo.BoundingBox
	depth    int
	leaf     bool
	entities []int // indices into Tree.entities, only meaningful when leaf
	children [quadCount]int
}

// Tree is an arena-indexed quadtree over shape.Entity values.
type Tree struct {
	nodes     []node
	entities  []shape.Entity
	root      int
	inflation float64 // degrees, conservative margin for segment queries
}

// Build constructs a Tree rooted at bbox from the given entities. Entities
// entirely outside bbox are rejected (not an error); an empty input slice,
// an invalid bbox, or an insertion pass that rejects every entity are all
// treated as GeofenceEmpty per the fail-closed policy this core follows.
func Build(bbox geo.BoundingBox, entities []shape.Entity) (*Tree, error) {
	if !bbox.Valid() {
		return nil, errors.WrapFatal(fmt.Errorf("%w: geofence bbox is empty or inverted", errors.ErrGeofenceEmpty), "quadtree", "Build", "validate bbox")
	}
	if len(entities) == 0 {
		return nil, errors.WrapFatal(fmt.Errorf("%w: shape input produced zero entities", errors.ErrGeofenceEmpty), "quadtree", "Build", "validate entities")
	}

	t := &Tree{root: 0}
	t.nodes = append(t.nodes, node{bbox: bbox, depth: 0, leaf: true})

	inserted := 0
	for _, e := range entities {
		if t.insert(e) {
			inserted++
		}
	}

	if inserted == 0 {
		return nil, errors.WrapFatal(fmt.Errorf("%w: no entity intersects the geofence bbox", errors.ErrGeofenceEmpty), "quadtree", "Build", "validate coverage")
	}

	t.inflation = t.maxInflationDegrees()
	return t, nil
}

// insert places e into every leaf whose bbox intersects e's bbox. Returns
// false without effect if e's bbox does not intersect the tree's root at all.
func (t *Tree) insert(e shape.Entity) bool {
	ebox := e.BBox()
	if !ebox.Intersects(t.nodes[t.root].bbox) {
		return false
	}

	idx := len(t.entities)
	t.entities = append(t.entities, e)
	t.insertInto(t.root, idx, ebox)
	return true
}

func (t *Tree) insertInto(nodeIdx, entityIdx int, ebox geo.BoundingBox) {
	n := t.nodes[nodeIdx]
	if !n.leaf {
		for q := quadrant(0); q < quadCount; q++ {
			child := n.children[q]
			if ebox.Intersects(t.nodes[child].bbox) {
				t.insertInto(child, entityIdx, ebox)
			}
		}
		return
	}

	if len(n.entities) < Fanout || n.depth >= MaxDepth {
		n.entities = append(n.entities, entityIdx)
		t.nodes[nodeIdx] = n
		return
	}

	t.split(nodeIdx)
	t.insertInto(nodeIdx, entityIdx, ebox)
}

// split turns a full leaf into four quadrant children and redistributes its
// entities among them (an entity may end up replicated across more than
// one child if its bbox straddles the split point).
func (t *Tree) split(nodeIdx int) {
	n := t.nodes[nodeIdx]
	center := n.bbox.Center()

	quadBoxes := [quadCount]geo.BoundingBox{
		quadNW: {SW: geo.Point{Lat: center.Lat, Lon: n.bbox.SW.Lon}, NE: geo.Point{Lat: n.bbox.NE.Lat, Lon: center.Lon}},
		quadNE: {SW: center, NE: n.bbox.NE},
		quadSW: {SW: n.bbox.SW, NE: center},
		quadSE: {SW: geo.Point{Lat: n.bbox.SW.Lat, Lon: center.Lon}, NE: geo.Point{Lat: center.Lat, Lon: n.bbox.NE.Lon}},
	}

	var children [quadCount]int
	for q := quadrant(0); q < quadCount; q++ {
		children[q] = len(t.nodes)
		t.nodes = append(t.nodes, node{bbox: quadBoxes[q], depth: n.depth + 1, leaf: true})
	}

	oldEntities := n.entities
	n.leaf = false
	n.entities = nil
	n.children = children
	t.nodes[nodeIdx] = n

	for _, entityIdx := range oldEntities {
		ebox := t.entities[entityIdx].BBox()
		for q := quadrant(0); q < quadCount; q++ {
			child := children[q]
			if ebox.Intersects(t.nodes[child].bbox) {
				t.insertInto(child, entityIdx, ebox)
			}
		}
	}
}

// Contains reports whether any indexed entity contains p. Descends into the
// unique child holding p at each level; ties on a quadrant boundary resolve
// to the west (lower longitude) then south (lower latitude) child.
func (t *Tree) Contains(p geo.Point) bool {
	nodeIdx := t.root
	for {
		n := &t.nodes[nodeIdx]
		if n.leaf {
			for _, idx := range n.entities {
				if t.entities[idx].Contains(p) {
					return true
				}
			}
			return false
		}
		nodeIdx = n.children[quadrantOf(n.bbox, p)]
	}
}

// quadrantOf resolves a point to exactly one child quadrant of bbox,
// breaking ties on the centre lines toward west then south.
func quadrantOf(bbox geo.BoundingBox, p geo.Point) quadrant {
	center := bbox.Center()
	west := p.Lon <= center.Lon
	south := p.Lat <= center.Lat

	switch {
	case south && west:
		return quadSW
	case south && !west:
		return quadSE
	case !south && west:
		return quadNW
	default:
		return quadNE
	}
}

// IntersectsSegment reports whether any indexed entity's influence region
// comes within range of the segment a-b, used for crumb-trail analysis. The
// tree's bounding-box test is inflated by the widest entity radius/corridor
// half-width seen at build time so entities near a leaf boundary are not
// missed just because the raw segment bbox falls just short of their leaf.
func (t *Tree) IntersectsSegment(a, b geo.Point) bool {
	segBox := geo.BoundingBox{SW: a, NE: a}.Union(b)
	segBox = geo.BoundingBox{
		SW: geo.Point{Lat: segBox.SW.Lat - t.inflation, Lon: segBox.SW.Lon - t.inflation},
		NE: geo.Point{Lat: segBox.NE.Lat + t.inflation, Lon: segBox.NE.Lon + t.inflation},
	}

	var stack [4 * (MaxDepth + 1)]int
	sp := 0
	stack[sp] = t.root
	sp++

	for sp > 0 {
		sp--
		nodeIdx := stack[sp]
		n := &t.nodes[nodeIdx]
		if !n.bbox.Intersects(segBox) {
			continue
		}
		if n.leaf {
			for _, idx := range n.entities {
				if t.entities[idx].IntersectsSegment(a, b) {
					return true
				}
			}
			continue
		}
		for q := quadrant(0); q < quadCount; q++ {
			if sp < len(stack) {
				stack[sp] = n.children[q]
				sp++
			}
		}
	}

	return false
}

func (t *Tree) maxInflationDegrees() float64 {
	var maxDeg float64
	for _, e := range t.entities {
		box := e.BBox()
		latSpan := (box.NE.Lat - box.SW.Lat) / 2
		lonSpan := (box.NE.Lon - box.SW.Lon) / 2
		if latSpan > maxDeg {
			maxDeg = latSpan
		}
		if lonSpan > maxDeg {
			maxDeg = lonSpan
		}
	}
	return maxDeg
}

// EntityCount returns the number of entities indexed (counting replication
// across leaves once), for diagnostics and tests.
func (t *Tree) EntityCount() int {
	return len(t.entities)
}

// NodeCount returns the number of arena nodes allocated, for diagnostics.
func (t *Tree) NodeCount() int {
	return len(t.nodes)
}
