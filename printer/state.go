package printer

import (
	"fmt"
	"sync"

	"github.com/fornellas/fdm/gcode"
	fdmFmt "github.com/fornellas/fdm/internal/fmt"
)

// Position is the believed tool position, in millimeters.
type Position struct {
	X float64
	Y float64
	Z float64
	E float64
}

func (p Position) String() string {
	return fmt.Sprintf(
		"X:%s Y:%s Z:%s E:%s",
		fdmFmt.SprintFloat(p.X, 2),
		fdmFmt.SprintFloat(p.Y, 2),
		fdmFmt.SprintFloat(p.Z, 2),
		fdmFmt.SprintFloat(p.E, 2),
	)
}

// GetAxis returns a pointer to the value of axis X, Y, Z or E, or nil for any other letter.
func (p *Position) GetAxis(axis rune) *float64 {
	switch axis {
	case 'X':
		return &p.X
	case 'Y':
		return &p.Y
	case 'Z':
		return &p.Z
	case 'E':
		return &p.E
	}
	return nil
}

// Heater identifies a temperature controlled element.
type Heater string

const (
	HeaterExtruder Heater = "extruder"
	HeaterBed      Heater = "bed"
)

// Heaters lists all known heaters.
var Heaters = []Heater{HeaterExtruder, HeaterBed}

// Temperature of a heater, in Celsius.
type Temperature struct {
	Current float64
	Target  float64
}

func (t Temperature) String() string {
	return fmt.Sprintf("%s/%s°C", fdmFmt.SprintFloat(t.Current, 1), fdmFmt.SprintFloat(t.Target, 1))
}

// Snapshot is a consistent copy of State.
type Snapshot struct {
	Position Position
	Extruder Temperature
	Bed      Temperature
}

// State holds the believed printer state. It is safe for concurrent use.
type State struct {
	mu       sync.Mutex
	position Position
	extruder Temperature
	bed      Temperature
}

func NewState() *State {
	return &State{}
}

func (s *State) Position() Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

func (s *State) SetPosition(position Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = position
}

// SetXYZ sets X, Y and Z, leaving E unchanged. It returns the new position.
func (s *State) SetXYZ(x, y, z float64) Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position.X = x
	s.position.Y = y
	s.position.Z = z
	return s.position
}

// Move adds distance to axis. It returns the new position.
func (s *State) Move(axis rune, distance float64) (Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value := s.position.GetAxis(axis)
	if value == nil {
		return s.position, fmt.Errorf("printer: invalid axis: %q", axis)
	}
	*value += distance
	return s.position, nil
}

// ApplyCommand updates the position from a motion command. G0 / G1 set the axes present with a
// numeric value. G28 without axis letters zeroes all axes, including E; otherwise only the given
// axes are zeroed. It returns the new position and whether command affected it.
func (s *State) ApplyCommand(command *gcode.Command) (Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case command.IsMotion():
		for _, axis := range []rune{'X', 'Y', 'Z', 'E'} {
			if value, ok := command.Params.Number(axis); ok {
				*s.position.GetAxis(axis) = value
			}
		}
		return s.position, true
	case command.IsHome():
		homed := false
		for _, axis := range []rune{'X', 'Y', 'Z', 'E'} {
			if command.Params.Has(axis) {
				*s.position.GetAxis(axis) = 0
				homed = true
			}
		}
		if !homed {
			s.position = Position{}
		}
		return s.position, true
	}
	return s.position, false
}

func (s *State) Temperature(heater Heater) Temperature {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch heater {
	case HeaterExtruder:
		return s.extruder
	case HeaterBed:
		return s.bed
	}
	panic(fmt.Sprintf("bug: unknown heater: %#v", heater))
}

func (s *State) SetTemperature(heater Heater, temperature Temperature) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch heater {
	case HeaterExtruder:
		s.extruder = temperature
	case HeaterBed:
		s.bed = temperature
	default:
		panic(fmt.Sprintf("bug: unknown heater: %#v", heater))
	}
}

// SetTarget updates the target temperature of heater, keeping the current temperature.
func (s *State) SetTarget(heater Heater, target float64) Temperature {
	s.mu.Lock()
	defer s.mu.Unlock()
	var temperature *Temperature
	switch heater {
	case HeaterExtruder:
		temperature = &s.extruder
	case HeaterBed:
		temperature = &s.bed
	default:
		panic(fmt.Sprintf("bug: unknown heater: %#v", heater))
	}
	temperature.Target = target
	return *temperature
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Position: s.position,
		Extruder: s.extruder,
		Bed:      s.bed,
	}
}
