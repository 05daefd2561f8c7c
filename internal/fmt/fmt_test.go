package fmt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSprintFloat(t *testing.T) {
	testCases := []struct {
		value    float64
		decimal  uint
		expected string
	}{
		{0, 2, "0"},
		{10, 2, "10"},
		{100, 1, "100"},
		{1.5, 2, "1.5"},
		{0.125, 2, "0.12"},
		{-2.5, 5, "-2.5"},
		{-0.001, 2, "0"},
		{2.5, 0, "2"},
		{3.7, 0, "4"},
	}
	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			require.Equal(t, tc.expected, SprintFloat(tc.value, tc.decimal))
		})
	}
}
