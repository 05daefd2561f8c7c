package gcode

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	fdmFmt "github.com/fornellas/fdm/internal/fmt"
)

// Param is a parameter word: a letter immediately followed by a value. The value is usually a
// number, but firmwares accept a few string valued parameters (eg: M117, M23), so values that fail
// to parse as a number are kept as an opaque string.
type Param struct {
	letter rune
	number float64
	// isNumber is false when raw did not parse as a float.
	isNumber bool
	// The original value string. This is used to avoid serializing float point representation
	// differences, for consistency on output.
	raw string
}

// NewParam creates a numeric Param. letter must be capitalised, or it'll panic.
func NewParam(letter rune, number float64) Param {
	if letter < 'A' || letter > 'Z' {
		panic(fmt.Sprintf("bug: attempting to create param with letter not between A-Z: %c", letter))
	}
	return Param{letter: letter, number: number, isNumber: true}
}

// NewParamParse creates a Param from a letter and a raw value string.
func NewParamParse(letter rune, raw string) Param {
	p := Param{letter: unicode.ToUpper(letter), raw: raw}
	number, err := strconv.ParseFloat(raw, 64)
	if err == nil && !math.IsNaN(number) && !math.IsInf(number, 0) {
		p.number = number
		p.isNumber = true
	}
	return p
}

func (p Param) Letter() rune {
	return p.letter
}

// Number returns the numeric value, and whether the value is numeric.
func (p Param) Number() (float64, bool) {
	return p.number, p.isNumber
}

// Raw returns the value as written.
func (p Param) Raw() string {
	if p.raw == "" && p.isNumber {
		return fdmFmt.SprintFloat(p.number, 4)
	}
	return p.raw
}

// String gives the representation of the param as written.
func (p Param) String() string {
	return string(p.letter) + p.Raw()
}

// NormalizedString is similar to String(), but numbers are always formatted with up to 5 decimal
// places and no trailing zeroes.
func (p Param) NormalizedString() string {
	if !p.isNumber {
		return p.String()
	}
	return string(p.letter) + fdmFmt.SprintFloat(p.number, 5)
}

// Params holds the parameters of a command, keyed by letter. A letter given more than once keeps
// the last value, but its original position.
type Params struct {
	values [26]Param
	set    uint32
	order  []rune
}

func letterIndex(letter rune) int {
	letter = unicode.ToUpper(letter)
	if letter < 'A' || letter > 'Z' {
		return -1
	}
	return int(letter - 'A')
}

// Set stores p.
func (ps *Params) Set(p Param) {
	i := letterIndex(p.letter)
	if i < 0 {
		panic(fmt.Sprintf("bug: param with letter not between A-Z: %c", p.letter))
	}
	if ps.set&(1<<i) == 0 {
		ps.order = append(ps.order, p.letter)
	}
	ps.set |= 1 << i
	ps.values[i] = p
}

// Get returns the Param for letter.
func (ps *Params) Get(letter rune) (Param, bool) {
	i := letterIndex(letter)
	if i < 0 || ps.set&(1<<i) == 0 {
		return Param{}, false
	}
	return ps.values[i], true
}

// Has returns true if letter is set, regardless of its value.
func (ps *Params) Has(letter rune) bool {
	_, ok := ps.Get(letter)
	return ok
}

// Number returns the numeric value for letter. Letters that are absent or that hold a non numeric
// value return false.
func (ps *Params) Number(letter rune) (float64, bool) {
	p, ok := ps.Get(letter)
	if !ok {
		return 0, false
	}
	return p.Number()
}

// Len returns the number of distinct letters set.
func (ps *Params) Len() int {
	return len(ps.order)
}

// All returns all params, in order of first appearance.
func (ps *Params) All() []Param {
	params := make([]Param, 0, len(ps.order))
	for _, letter := range ps.order {
		p, _ := ps.Get(letter)
		params = append(params, p)
	}
	return params
}

// Command is a parsed G-code instruction: a type token (eg: G1, M104) and its parameters.
type Command struct {
	// LineNumber is the 1 based line number at the source, or 0 when unknown.
	LineNumber int
	// Original is the source line, trimmed.
	Original string
	// Type is the upper-cased command token as written, eg: "G1", "M104", "T0".
	Type   string
	Params Params
}

// SplitComment splits a line at the first ';', returning the trimmed code and comment (without
// the ';').
func SplitComment(line string) (code string, comment string) {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:])
	}
	return strings.TrimSpace(line), ""
}

// normalizeType strips leading zeroes from the numeric part of G/M commands, so that "G01" and
// "G1" compare equal.
func normalizeType(token string) string {
	token = strings.ToUpper(token)
	if len(token) < 2 || (token[0] != 'G' && token[0] != 'M') {
		return token
	}
	number, err := strconv.ParseFloat(token[1:], 64)
	if err != nil || number < 0 {
		return token
	}
	whole, frac := math.Modf(number)
	if frac == 0 {
		return fmt.Sprintf("%c%.0f", token[0], whole)
	}
	return fmt.Sprintf("%c%s", token[0], fdmFmt.SprintFloat(number, 1))
}

// ParseLine parses a single line of G-code. Inline comments are stripped. It returns nil for
// blank or comment only lines. It never fails: tokens not starting with a letter are ignored, and
// non numeric values are kept as strings. A bare letter (eg: "G28 X") is kept with an empty value.
func ParseLine(line string) *Command {
	code, _ := SplitComment(line)
	fields := strings.Fields(code)
	if len(fields) == 0 {
		return nil
	}

	command := &Command{
		Original: strings.TrimSpace(line),
		Type:     normalizeType(fields[0]),
	}

	for _, field := range fields[1:] {
		letter := rune(field[0])
		if letterIndex(letter) < 0 {
			continue
		}
		command.Params.Set(NewParamParse(letter, field[1:]))
	}

	return command
}

// Code returns the command without comments.
func (c *Command) Code() string {
	code, _ := SplitComment(c.Original)
	if code == "" {
		return c.String()
	}
	return code
}

// Is returns true if the command type is any of the given types.
func (c *Command) Is(types ...string) bool {
	for _, t := range types {
		if c.Type == t {
			return true
		}
	}
	return false
}

// IsMotion returns true for linear moves (G0 / G1).
func (c *Command) IsMotion() bool {
	return c.Is("G0", "G1")
}

// IsHome returns true for G28.
func (c *Command) IsHome() bool {
	return c.Is("G28")
}

func (c *Command) String() string {
	var buff bytes.Buffer
	buff.WriteString(c.Type)
	for _, p := range c.Params.All() {
		buff.WriteByte(' ')
		buff.WriteString(p.String())
	}
	return buff.String()
}

// NormalizedString is similar to String(), but uses Param.NormalizedString.
func (c *Command) NormalizedString() string {
	var buff bytes.Buffer
	buff.WriteString(c.Type)
	for _, p := range c.Params.All() {
		buff.WriteByte(' ')
		buff.WriteString(p.NormalizedString())
	}
	return buff.String()
}
