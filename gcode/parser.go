package gcode

import (
	"bufio"
	"fmt"
	"io"
)

// ModalState holds the modal state of the commands parsed so far.
// See https://marlinfw.org/meta/gcode/.
type ModalState struct {
	// G0, G1, G2, G3
	Motion string
	// G90 (absolute) or G91 (relative)
	DistanceMode string
	// M82 (absolute) or M83 (relative)
	ExtrusionMode string
	// G20 (inches) or G21 (millimeters)
	Units string
}

// DefaultModalState holds Marlin power on defaults.
var DefaultModalState = ModalState{
	Motion:        "G0",
	DistanceMode:  "G90",
	ExtrusionMode: "M82",
	Units:         "G21",
}

func (m *ModalState) UpdateFromCommand(command *Command) {
	switch command.Type {
	case "G0", "G1", "G2", "G3":
		m.Motion = command.Type
	case "G90":
		// G90 also sets the extruder to absolute on Marlin
		m.DistanceMode = command.Type
		m.ExtrusionMode = "M82"
	case "G91":
		m.DistanceMode = command.Type
		m.ExtrusionMode = "M83"
	case "M82", "M83":
		m.ExtrusionMode = command.Type
	case "G20", "G21":
		m.Units = command.Type
	}
}

// maxLineSize limits the length of a single line.
const maxLineSize = 1024 * 1024

// Parser parses G-code line by line.
type Parser struct {
	// ModalState holds the modal state as parsing progresses by caling Parser.Next().
	// DefaultModalState is used for the initial state.
	ModalState ModalState
	// Line is the number of the last line read.
	Line    int
	scanner *bufio.Scanner
}

func NewParser(r io.Reader) *Parser {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Parser{
		ModalState: DefaultModalState,
		scanner:    scanner,
	}
}

// Next returns the next command. The returned bool indicates EOF: when true, parsing is complete
// and the command is nil. Blank and comment only lines are skipped.
func (p *Parser) Next() (bool, *Command, error) {
	for p.scanner.Scan() {
		p.Line++
		command := ParseLine(p.scanner.Text())
		if command == nil {
			continue
		}
		command.LineNumber = p.Line
		p.ModalState.UpdateFromCommand(command)
		return false, command, nil
	}
	if err := p.scanner.Err(); err != nil {
		return false, nil, fmt.Errorf("gcode: line %d: %w", p.Line+1, err)
	}
	return true, nil, nil
}

// Commands parses and returns all remaining commands from the parser.
func (p *Parser) Commands() ([]*Command, error) {
	commands := []*Command{}
	for {
		eof, command, err := p.Next()
		if err != nil {
			return nil, err
		}
		if eof {
			return commands, nil
		}
		commands = append(commands, command)
	}
}

// Load reads all commands from r.
func Load(r io.Reader) ([]*Command, error) {
	return NewParser(r).Commands()
}

// LoadLines parses commands from already split lines. Line numbers are the 1 based index at lines.
func LoadLines(lines []string) []*Command {
	commands := make([]*Command, 0, len(lines))
	for i, line := range lines {
		command := ParseLine(line)
		if command == nil {
			continue
		}
		command.LineNumber = i + 1
		commands = append(commands, command)
	}
	return commands
}
