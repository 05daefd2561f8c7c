// Package fmt formats numbers for G-code and human output.
package fmt

import (
	"strconv"
	"strings"
)

// SprintFloat formats value with up to decimal digits after the point, trimming trailing zeroes.
// Negative zero is formatted as "0".
func SprintFloat(value float64, decimal uint) string {
	s := strconv.FormatFloat(value, 'f', int(decimal), 64)
	if decimal > 0 {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	if s == "-0" {
		return "0"
	}
	return s
}
