package printer

import "fmt"

// Event is published to Host observers. It is one of StatusEvent, ProgressEvent, PositionEvent or
// TemperatureEvent.
type Event interface {
	String() string
}

type StatusEvent struct {
	Status Status
}

func (e StatusEvent) String() string {
	return fmt.Sprintf("status: %s", e.Status)
}

type ProgressEvent struct {
	// Progress is floor(100 * Current / Total).
	Progress int
	Current  int
	Total    int
}

func (e ProgressEvent) String() string {
	return fmt.Sprintf("progress: %d%% (%d/%d)", e.Progress, e.Current, e.Total)
}

type PositionEvent struct {
	Position Position
}

func (e PositionEvent) String() string {
	return fmt.Sprintf("position: %s", e.Position)
}

type TemperatureEvent struct {
	Heater      Heater
	Temperature Temperature
}

func (e TemperatureEvent) String() string {
	return fmt.Sprintf("temperature: %s %s", e.Heater, e.Temperature)
}
