package printer

import (
	"regexp"
	"strconv"
)

var temperatureRegexps = map[Heater]*regexp.Regexp{
	HeaterExtruder: regexp.MustCompile(`T:(\d+\.?\d*)\s*/\s*(\d+\.?\d*)`),
	HeaterBed:      regexp.MustCompile(`B:(\d+\.?\d*)\s*/\s*(\d+\.?\d*)`),
}

var positionRegexp = regexp.MustCompile(`X:(-?\d+\.?\d*)\s*Y:(-?\d+\.?\d*)\s*Z:(-?\d+\.?\d*)`)

// TemperatureReading is a reported heater temperature.
type TemperatureReading struct {
	Heater      Heater
	Temperature Temperature
}

// Telemetry holds values reported by the firmware on a single line.
type Telemetry struct {
	Temperatures []TemperatureReading
	// Position X, Y and Z, when reported. E is always 0.
	Position *Position
}

func parseFloats(values []string) ([]float64, bool) {
	floats := make([]float64, len(values))
	for i, value := range values {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, false
		}
		floats[i] = f
	}
	return floats, true
}

// ParseTelemetry extracts temperature (eg: "T:200.0 /210.0 B:60.0 /60.0") and position (eg:
// "X:10.00 Y:20.00 Z:0.30 E:0.00") reports from line. It returns nil when line has none.
func ParseTelemetry(line string) *Telemetry {
	telemetry := &Telemetry{}

	for _, heater := range Heaters {
		match := temperatureRegexps[heater].FindStringSubmatch(line)
		if match == nil {
			continue
		}
		values, ok := parseFloats(match[1:])
		if !ok {
			continue
		}
		telemetry.Temperatures = append(telemetry.Temperatures, TemperatureReading{
			Heater:      heater,
			Temperature: Temperature{Current: values[0], Target: values[1]},
		})
	}

	if match := positionRegexp.FindStringSubmatch(line); match != nil {
		if values, ok := parseFloats(match[1:]); ok {
			telemetry.Position = &Position{X: values[0], Y: values[1], Z: values[2]}
		}
	}

	if len(telemetry.Temperatures) == 0 && telemetry.Position == nil {
		return nil
	}
	return telemetry
}
