// Package filter implements the four-gate retain/suppress/redact policy
// that decides the fate of each parsed BSM document.
package filter

import (
	"fmt"
	"regexp"

	"github.com/trailmark-labs/ppm/bsm"
	"github.com/trailmark-labs/ppm/geo"
	"github.com/trailmark-labs/ppm/quadtree"
)

// Outcome is the result of running a document through the gates.
type Outcome int

const (
	Retain Outcome = iota
	Suppress
	Redact
)

func (o Outcome) String() string {
	switch o {
	case Retain:
		return "retain"
	case Suppress:
		return "suppress"
	case Redact:
		return "redact"
	default:
		return "unknown"
	}
}

// Reasons for a Suppress/Redact outcome, also used as the metric label.
const (
	ReasonNone            = ""
	ReasonVelocity        = "velocity"
	ReasonOutsideGeofence = "outside-geofence"
	ReasonNotInRegion     = "not-in-region"
	ReasonIdentifier      = "identifier"
)

// Decision carries the outcome and the reason it fired.
type Decision struct {
	Outcome Outcome
	Reason  string
}

// Policy holds the immutable thresholds the gates evaluate against. It is
// built once from configuration and never mutated afterward.
type Policy struct {
	VelocityMin        float64
	VelocityMax        float64
	IDInclusionPattern *regexp.Regexp
	IDRedactionValue   string
}

// NewPolicy compiles idInclusionPattern and returns a ready-to-use Policy.
func NewPolicy(velocityMin, velocityMax float64, idInclusionPattern, idRedactionValue string) (*Policy, error) {
	re, err := regexp.Compile(idInclusionPattern)
	if err != nil {
		return nil, fmt.Errorf("filter: compile id_inclusion_pattern: %w", err)
	}
	return &Policy{
		VelocityMin:        velocityMin,
		VelocityMax:        velocityMax,
		IDInclusionPattern: re,
		IDRedactionValue:   idRedactionValue,
	}, nil
}

// Evaluate runs doc through the four ordered gates and returns the first
// gate that fires. geofence is the root bounding rectangle; tree is the
// spatial index of configured entities within it. Order is fixed: velocity,
// geofence, inclusion, identifier — cheap checks precede spatial queries,
// and ties resolve first-fail-wins.
func (p *Policy) Evaluate(doc *bsm.Document, geofence geo.BoundingBox, tree *quadtree.Tree) Decision {
	speed := doc.SpeedMPS()
	if speed < p.VelocityMin || speed > p.VelocityMax {
		return Decision{Outcome: Suppress, Reason: ReasonVelocity}
	}

	trajectory := doc.ExtractTrajectory()

	for _, pt := range trajectory {
		if !geofence.Contains(pt) {
			return Decision{Outcome: Suppress, Reason: ReasonOutsideGeofence}
		}
	}

	inRegion := false
	for _, pt := range trajectory {
		if tree.Contains(pt) {
			inRegion = true
			break
		}
	}
	if !inRegion {
		for i := 0; i+1 < len(trajectory) && !inRegion; i++ {
			if tree.IntersectsSegment(trajectory[i], trajectory[i+1]) {
				inRegion = true
			}
		}
	}
	if !inRegion {
		return Decision{Outcome: Suppress, Reason: ReasonNotInRegion}
	}

	if p.IDInclusionPattern.MatchString(doc.ID()) {
		return Decision{Outcome: Redact, Reason: ReasonIdentifier}
	}

	return Decision{Outcome: Retain, Reason: ReasonNone}
}

// Apply runs Evaluate and, for a Redact outcome, rewrites doc's identifier
// in place. The returned Decision always reflects the outcome that was
// applied.
func (p *Policy) Apply(doc *bsm.Document, geofence geo.BoundingBox, tree *quadtree.Tree) (Decision, error) {
	decision := p.Evaluate(doc, geofence, tree)
	if decision.Outcome == Redact {
		if err := doc.Redact(p.IDRedactionValue); err != nil {
			return decision, err
		}
	}
	return decision, nil
}
