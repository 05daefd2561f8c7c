package gcode

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParamNormalizedString(t *testing.T) {
	testCases := []struct {
		letter   rune
		number   float64
		expected string
	}{
		{'G', 1.0, "G1"},
		{'G', 1.1, "G1.1"},
		{'X', 1.2345, "X1.2345"},
		{'E', -0.8, "E-0.8"},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%c%f", tc.letter, tc.number), func(t *testing.T) {
			param := NewParam(tc.letter, tc.number)
			require.Equal(t, tc.expected, param.NormalizedString())
		})
	}
}

func TestParamParse(t *testing.T) {
	param := NewParamParse('x', "10.500")
	require.Equal(t, 'X', param.Letter())
	number, ok := param.Number()
	require.True(t, ok)
	require.Equal(t, 10.5, number)
	require.Equal(t, "X10.500", param.String())
	require.Equal(t, "X10.5", param.NormalizedString())

	param = NewParamParse('P', "abc")
	_, ok = param.Number()
	require.False(t, ok)
	require.Equal(t, "abc", param.Raw())
	require.Equal(t, "Pabc", param.NormalizedString())

	param = NewParamParse('S', "NaN")
	_, ok = param.Number()
	require.False(t, ok)
}

func TestParseLine(t *testing.T) {
	testCases := []struct {
		name       string
		line       string
		nilCommand bool
		typ        string
		numbers    map[rune]float64
		strings    map[rune]string
		absent     []rune
	}{
		{
			name:       "blank",
			line:       "   ",
			nilCommand: true,
		},
		{
			name:       "comment",
			line:       "; LAYER:1",
			nilCommand: true,
		},
		{
			name:    "motion",
			line:    "G1 X10 Y-2.5 Z0.2 E1.25 F1800",
			typ:     "G1",
			numbers: map[rune]float64{'X': 10, 'Y': -2.5, 'Z': 0.2, 'E': 1.25, 'F': 1800},
		},
		{
			name:    "inline comment",
			line:    "M104 S200 ; hotend",
			typ:     "M104",
			numbers: map[rune]float64{'S': 200},
			absent:  []rune{'H'},
		},
		{
			name:    "lower case and leading zero",
			line:    "g01 x1 y2",
			typ:     "G1",
			numbers: map[rune]float64{'X': 1, 'Y': 2},
		},
		{
			name:    "string value",
			line:    "G1 Xabc Y5",
			typ:     "G1",
			numbers: map[rune]float64{'Y': 5},
			strings: map[rune]string{'X': "abc"},
		},
		{
			name:    "letter without value",
			line:    "G28 X Y",
			typ:     "G28",
			strings: map[rune]string{'X': "", 'Y': ""},
			absent:  []rune{'Z'},
		},
		{
			name:    "non letter token",
			line:    "G1 *12 X3",
			typ:     "G1",
			numbers: map[rune]float64{'X': 3},
		},
		{
			name:    "repeated letter keeps last",
			line:    "G1 X1 X2",
			typ:     "G1",
			numbers: map[rune]float64{'X': 2},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			command := ParseLine(tc.line)
			if tc.nilCommand {
				require.Nil(t, command)
				return
			}
			require.NotNil(t, command)
			require.Equal(t, tc.typ, command.Type)
			for letter, expected := range tc.numbers {
				number, ok := command.Params.Number(letter)
				require.True(t, ok, string(letter))
				require.Equal(t, expected, number, string(letter))
			}
			for letter, expected := range tc.strings {
				_, ok := command.Params.Number(letter)
				require.False(t, ok, string(letter))
				param, ok := command.Params.Get(letter)
				require.True(t, ok, string(letter))
				require.Equal(t, expected, param.Raw())
			}
			for _, letter := range tc.absent {
				require.False(t, command.Params.Has(letter), string(letter))
			}
		})
	}
}

func TestCommandStrings(t *testing.T) {
	command := ParseLine("  G1 X10.000 Y10 E1.50 ; perimeter ")
	require.Equal(t, "G1 X10.000 Y10 E1.50 ; perimeter", command.Original)
	require.Equal(t, "G1 X10.000 Y10 E1.50", command.Code())
	require.Equal(t, "G1 X10.000 Y10 E1.50", command.String())
	require.Equal(t, "G1 X10 Y10 E1.5", command.NormalizedString())
	require.True(t, command.IsMotion())
	require.False(t, command.IsHome())
	require.Equal(t, 3, command.Params.Len())
}

func TestSplitComment(t *testing.T) {
	code, comment := SplitComment("G28 ;home; all")
	require.Equal(t, "G28", code)
	require.Equal(t, "home; all", comment)

	code, comment = SplitComment(" M105 ")
	require.Equal(t, "M105", code)
	require.Equal(t, "", comment)
}
