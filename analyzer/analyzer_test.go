package analyzer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnalyzeLayerMarker(t *testing.T) {
	result := Analyze([]string{
		"G1 X10 Y10 Z0.2 E1",
		"G1 X20 Y10 Z0.2 E2",
		";LAYER:1",
		"G1 X10 Y10 Z0.4 E3",
	})

	require.Equal(t, 4, result.TotalLines)
	require.Equal(t, 2, result.LayerCount)
	require.InDelta(t, 3.0, result.FilamentLength, 1e-9)
	require.Equal(t, Range{Min: 10, Max: 20}, result.Bounds.X)
	require.Equal(t, Range{Min: 10, Max: 10}, result.Bounds.Y)
	require.Equal(t, Range{Min: 0.2, Max: 0.4}, result.Bounds.Z)

	require.Equal(t, []Layer{
		{
			Z: 0.2,
			Segments: []Segment{
				{Type: MotionPrint, Points: []Point{{10, 10, 0.2}, {20, 10, 0.2}}},
			},
		},
		{
			Z: 0.4,
			Segments: []Segment{
				{Type: MotionPrint, Points: []Point{{10, 10, 0.4}}},
			},
		},
	}, result.Layers)
	require.Len(t, result.Path, 3)
}

func TestAnalyzeLayerMarkerWithoutZChange(t *testing.T) {
	result := Analyze([]string{
		"G1 X1 Z0.2 E1",
		"; layer:2",
		"G1 X2 E2",
	})
	require.Equal(t, 2, result.LayerCount)
	require.Equal(t, 0.2, result.Layers[0].Z)
	require.Equal(t, 0.2, result.Layers[1].Z)
}

func TestAnalyzeZIncrease(t *testing.T) {
	result := Analyze([]string{
		"G0 X0 Y0 Z0.2",
		"G1 X10 E1",
		"G1 Z0.205",
		"G1 X0 E2",
		"G1 Z0.4",
		"G1 X10 E3",
		"G1 Z0.6",
		"G1 X0 E4",
	})
	require.Equal(t, 3, result.LayerCount)
	require.Equal(t, []float64{0.2, 0.4, 0.6}, []float64{
		result.Layers[0].Z, result.Layers[1].Z, result.Layers[2].Z,
	})
}

func TestAnalyzeSegments(t *testing.T) {
	result := Analyze([]string{
		"G1 X0 Y0 Z0.2 E1",
		"G1 X5 E2",
		"G1 E1.2",
		"G0 X10 Y10",
		"G0 X20",
		"G1 E2",
		"G1 X25 E3",
	})

	require.Equal(t, 1, result.LayerCount)
	segments := result.Layers[0].Segments
	types := []MotionType{}
	for _, segment := range segments {
		types = append(types, segment.Type)
	}
	require.Equal(t, []MotionType{
		MotionPrint,
		MotionRetraction,
		MotionTravel,
		MotionPrint,
	}, types)
	require.Len(t, segments[0].Points, 2)
	require.Equal(t, []Point{{5, 0, 0.2}}, segments[1].Points)
	require.Equal(t, []Point{{10, 10, 0.2}, {20, 10, 0.2}}, segments[2].Points)
	require.Len(t, segments[3].Points, 2)
}

func TestAnalyzeFilamentLength(t *testing.T) {
	result := Analyze([]string{
		"G1 X1 E1",
		"G1 X2 E2",
		"G1 E1.5",
		"G1 X3 E3",
	})
	require.InDelta(t, 3.5, result.FilamentLength, 1e-9)
}

func TestAnalyzeFilamentLengthReset(t *testing.T) {
	result := Analyze([]string{
		"G1 X1 Y1 Z0.2 E5",
		"G92 E0",
		"G1 X2 E1",
		"G1 X3 E0.5",
	})
	require.InDelta(t, 6.0, result.FilamentLength, 1e-9)
	require.Equal(t, []MotionType{MotionPrint, MotionRetraction}, segmentTypes(result))
}

func TestAnalyzeFilamentLengthRelative(t *testing.T) {
	result := Analyze([]string{
		"M83",
		"G1 X1 Y1 Z0.2 E1",
		"G1 X2 E1",
		"G1 X2 E-0.5",
		"G1 X3 E0",
		"M82",
		"G92 E0",
		"G1 X4 E2",
	})
	require.InDelta(t, 4.0, result.FilamentLength, 1e-9)
	require.Equal(t, []MotionType{MotionPrint, MotionRetraction, MotionTravel, MotionPrint}, segmentTypes(result))
}

func segmentTypes(result *Result) []MotionType {
	types := []MotionType{}
	for _, layer := range result.Layers {
		for _, segment := range layer.Segments {
			types = append(types, segment.Type)
		}
	}
	return types
}

func TestResultFitsBuildVolume(t *testing.T) {
	result := Analyze([]string{"G1 X10 Y10 Z0.2 E1", "G1 X200 Y110 Z10 E2"})
	require.True(t, result.FitsBuildVolume(220, 220, 250))
	require.True(t, result.FitsBuildVolume(190, 100, 10))
	require.False(t, result.FitsBuildVolume(180, 220, 250))
	require.False(t, result.FitsBuildVolume(220, 220, 5))

	require.False(t, Analyze([]string{"M104 S200"}).FitsBuildVolume(220, 220, 250))
	require.False(t, Analyze([]string{"G1 X10 Y10"}).FitsBuildVolume(220, 220, 250))
}

func TestAnalyzeTemperatures(t *testing.T) {
	result := Analyze([]string{
		"M104 S200",
		"M140 S60",
		"M109 S215 ; wait",
		"M190 S55",
		"M104 Sabc",
		"M104 S0",
	})
	require.Equal(t, 215.0, result.MaxExtruderTemp)
	require.Equal(t, 60.0, result.MaxBedTemp)
}

func TestAnalyzeNoMotion(t *testing.T) {
	result := Analyze([]string{"M104 S200", "; comment", "", "G28", "G1 F1800"})

	require.Equal(t, 5, result.TotalLines)
	require.Equal(t, 0, result.LayerCount)
	require.Empty(t, result.Layers)
	require.Empty(t, result.Path)
	require.Zero(t, result.FilamentLength)

	require.True(t, math.IsInf(result.Bounds.X.Min, 1))
	require.True(t, math.IsInf(result.Bounds.X.Max, -1))
	require.False(t, result.Bounds.X.Valid())
	require.False(t, result.Bounds.Z.Valid())
	require.Equal(t, Point{}, result.Size())
	require.Equal(t, Point{}, result.Center())
}

func TestAnalyzePathPoints(t *testing.T) {
	lines := []string{
		"; header",
		"G28",
		"G1 F1800",
		"G1 X1",
		"G0 Y2",
		"G1 Z0.3",
		"G1 E1",
		"M106 S255",
		"G1 Xfoo Y3",
		"G1 Xfoo",
	}
	result := Analyze(lines)
	require.Len(t, result.Path, 5)
	require.Equal(t, Point{X: 1, Y: 3, Z: 0.3}, result.Path[4])
	require.Equal(t, Range{Min: 1, Max: 1}, result.Bounds.X)
}

func TestAnalyzeDeterministic(t *testing.T) {
	lines := []string{
		"M104 S210",
		"G1 X0 Y0 Z0.2 E0.5",
		"G1 X50 Y50 E2",
		"G1 E1",
		";LAYER:1",
		"G0 X10 Z0.4",
		"G1 X20 E3",
	}
	require.Equal(t, Analyze(lines), Analyze(lines))
}

func TestResultCenter(t *testing.T) {
	result := Analyze([]string{"G1 X10 Y20 Z0.2", "G1 X30 Y40 Z1.0"})
	center := result.Center()
	require.InDelta(t, 20.0, center.X, 1e-9)
	require.InDelta(t, 30.0, center.Y, 1e-9)
	require.InDelta(t, 0.6, center.Z, 1e-9)
	size := result.Size()
	require.InDelta(t, 20.0, size.X, 1e-9)
	require.InDelta(t, 20.0, size.Y, 1e-9)
	require.InDelta(t, 0.8, size.Z, 1e-9)
}

func TestPointString(t *testing.T) {
	require.Equal(t, "X:1.5 Y:0 Z:0.2", Point{X: 1.5, Z: 0.2}.String())
}
