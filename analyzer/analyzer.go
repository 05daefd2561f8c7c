// Package analyzer reconstructs layers, toolpaths and print statistics from G-code text.
package analyzer

import (
	"fmt"
	"math"
	"strings"

	"github.com/fornellas/fdm/gcode"
	fdmFmt "github.com/fornellas/fdm/internal/fmt"
)

// LayerEpsilon is the minimum Z increase, in millimeters, that opens a new layer.
const LayerEpsilon = 0.01

// layerMarker is the comment prefix slicers use to mark a layer change, eg: ";LAYER:1".
const layerMarker = "LAYER:"

// MotionType classifies a path segment.
type MotionType string

const (
	MotionPrint      MotionType = "print"
	MotionTravel     MotionType = "travel"
	MotionRetraction MotionType = "retraction"
)

// Point is a 3D tool position.
type Point struct {
	X, Y, Z float64
}

func (p Point) String() string {
	return fmt.Sprintf(
		"X:%s Y:%s Z:%s",
		fdmFmt.SprintFloat(p.X, 2), fdmFmt.SprintFloat(p.Y, 2), fdmFmt.SprintFloat(p.Z, 2),
	)
}

// Segment is a maximal run of consecutive points sharing one MotionType.
type Segment struct {
	Type   MotionType
	Points []Point
}

// Layer is a group of segments at approximately one Z height.
type Layer struct {
	Z        float64
	Segments []Segment
}

// Range is a min/max pair. It is invalid (Min > Max) when no value was folded into it.
type Range struct {
	Min, Max float64
}

func newRange() Range {
	return Range{Min: math.Inf(1), Max: math.Inf(-1)}
}

func (r *Range) add(v float64) {
	r.Min = math.Min(r.Min, v)
	r.Max = math.Max(r.Max, v)
}

// Valid returns true if at least one value was folded into the range.
func (r Range) Valid() bool {
	return r.Min <= r.Max
}

// Size returns Max - Min, or 0 for an invalid range.
func (r Range) Size() float64 {
	if !r.Valid() {
		return 0
	}
	return r.Max - r.Min
}

// Center returns the middle of the range, or 0 for an invalid range.
func (r Range) Center() float64 {
	if !r.Valid() {
		return 0
	}
	return (r.Min + r.Max) / 2
}

// Bounds is the per axis bounding box of all motion.
type Bounds struct {
	X, Y, Z Range
}

// Result is the outcome of Analyze. It must be treated as read only.
type Result struct {
	// TotalLines is the number of input lines, including blank and comment lines.
	TotalLines int
	// LayerCount is len(Layers).
	LayerCount int
	// FilamentLength is the sum of all positive E deltas, in millimeters. "G92 E" resets the
	// reference E; with relative extrusion (M83) each E value is itself the delta.
	FilamentLength float64
	Bounds         Bounds
	// MaxExtruderTemp is the highest M104 / M109 S value, or 0.
	MaxExtruderTemp float64
	// MaxBedTemp is the highest M140 / M190 S value, or 0.
	MaxBedTemp float64
	Layers     []Layer
	// Path holds every motion point, in order.
	Path []Point
}

// Center returns the center of the bounding box. Axes without motion report 0.
func (r *Result) Center() Point {
	return Point{
		X: r.Bounds.X.Center(),
		Y: r.Bounds.Y.Center(),
		Z: r.Bounds.Z.Center(),
	}
}

// Size returns the size of the bounding box. Axes without motion report 0.
func (r *Result) Size() Point {
	return Point{
		X: r.Bounds.X.Size(),
		Y: r.Bounds.Y.Size(),
		Z: r.Bounds.Z.Size(),
	}
}

// FitsBuildVolume returns true when the bounding box size fits a printer build volume of the given
// dimensions, in millimeters. It is false when any axis has no motion.
func (r *Result) FitsBuildVolume(x, y, z float64) bool {
	if !r.Bounds.X.Valid() || !r.Bounds.Y.Valid() || !r.Bounds.Z.Valid() {
		return false
	}
	size := r.Size()
	return size.X <= x && size.Y <= y && size.Z <= z
}

type analysis struct {
	result    *Result
	x, y, z   float64
	e         float64
	relativeE bool
	layer     *Layer
	segment   *Segment
}

func (a *analysis) closeSegment() {
	if a.segment == nil {
		return
	}
	if len(a.segment.Points) > 0 {
		if a.layer == nil {
			panic("bug: open segment without layer")
		}
		a.layer.Segments = append(a.layer.Segments, *a.segment)
	}
	a.segment = nil
}

func (a *analysis) closeLayer() {
	a.closeSegment()
	if a.layer == nil {
		return
	}
	if len(a.layer.Segments) > 0 {
		a.result.Layers = append(a.result.Layers, *a.layer)
	}
	a.layer = nil
}

func (a *analysis) openLayer(z float64) {
	a.closeLayer()
	a.layer = &Layer{Z: z}
}

func (a *analysis) temperature(command *gcode.Command) {
	s, ok := command.Params.Number('S')
	if !ok {
		return
	}
	switch command.Type {
	case "M104", "M109":
		a.result.MaxExtruderTemp = math.Max(a.result.MaxExtruderTemp, s)
	case "M140", "M190":
		a.result.MaxBedTemp = math.Max(a.result.MaxBedTemp, s)
	}
}

func (a *analysis) motion(command *gcode.Command) {
	x, hasX := command.Params.Number('X')
	y, hasY := command.Params.Number('Y')
	z, hasZ := command.Params.Number('Z')
	e, hasE := command.Params.Number('E')
	if !hasX && !hasY && !hasZ && !hasE {
		return
	}

	if hasX {
		a.x = x
		a.result.Bounds.X.add(x)
	}
	if hasY {
		a.y = y
		a.result.Bounds.Y.add(y)
	}
	if hasZ {
		a.z = z
		a.result.Bounds.Z.add(z)
	}

	motionType := MotionTravel
	if hasE {
		delta := e
		if !a.relativeE {
			delta = e - a.e
		}
		switch {
		case delta > 0:
			motionType = MotionPrint
			a.result.FilamentLength += delta
		case delta < 0:
			motionType = MotionRetraction
		}
		if a.relativeE {
			a.e += delta
		} else {
			a.e = e
		}
	}

	if a.layer == nil || a.z > a.layer.Z+LayerEpsilon {
		a.openLayer(a.z)
	}

	if a.segment != nil && a.segment.Type != motionType {
		a.closeSegment()
	}
	if a.segment == nil {
		a.segment = &Segment{Type: motionType}
	}

	point := Point{X: a.x, Y: a.y, Z: a.z}
	a.segment.Points = append(a.segment.Points, point)
	a.result.Path = append(a.result.Path, point)
}

func isLayerMarker(comment string) bool {
	return strings.HasPrefix(strings.ToUpper(comment), layerMarker)
}

// Analyze transforms G-code lines into a Result. It never fails: unparseable parameters are
// ignored for motion purposes.
//
// A new layer is opened when Z increases by more than LayerEpsilon over the current layer, or on a
// ";LAYER:" comment. Layers without any motion are not reported. The layer open at the end of
// input is included.
func Analyze(lines []string) *Result {
	a := &analysis{
		result: &Result{
			TotalLines: len(lines),
			Bounds: Bounds{
				X: newRange(),
				Y: newRange(),
				Z: newRange(),
			},
			Layers: []Layer{},
			Path:   []Point{},
		},
	}

	for _, line := range lines {
		code, comment := gcode.SplitComment(line)
		if code == "" {
			if isLayerMarker(comment) && a.layer != nil {
				a.openLayer(a.z)
			}
			continue
		}
		command := gcode.ParseLine(code)
		if command == nil {
			continue
		}
		switch {
		case command.Is("M104", "M109", "M140", "M190"):
			a.temperature(command)
		case command.IsMotion():
			a.motion(command)
		case command.Is("G92"):
			if e, ok := command.Params.Number('E'); ok {
				a.e = e
			}
		case command.Is("M82"):
			a.relativeE = false
		case command.Is("M83"):
			a.relativeE = true
		}
	}

	a.closeLayer()
	a.result.LayerCount = len(a.result.Layers)

	return a.result
}
