// Package zone classifies heart rates into five intensity zones based on a
// percentage of age-predicted maximum heart rate (220 - age).
//
// The breakpoints are fixed at 60, 70, 80 and 90 percent of max. No other
// formula (Karvonen, lab-measured max) is supported.
package zone

// Zone is an intensity bucket from 1 (lowest) to 5 (highest).
type Zone int

const (
	Recovery  Zone = 1
	Endurance Zone = 2
	Tempo     Zone = 3
	Threshold Zone = 4
	VO2Max    Zone = 5
)

// Count is the number of zones.
const Count = 5

// DefaultAge is the age assumed for participants the directory does not know.
const DefaultAge = 30

const predictedMaxBase = 220

// Lower bounds in percent of max for zones 2..5.
var breakpoints = [...]int{60, 70, 80, 90}

// Info describes a zone for display.
type Info struct {
	Zone       Zone   `json:"zone"`
	Label      string `json:"label"`
	Color      string `json:"color"`
	MinPercent int    `json:"minPercent"`
	MaxPercent int    `json:"maxPercent"`
}

var infos = [Count]Info{
	{Zone: Recovery, Label: "Recovery", Color: "#22c55e", MinPercent: 0, MaxPercent: 60},
	{Zone: Endurance, Label: "Endurance", Color: "#3b82f6", MinPercent: 60, MaxPercent: 70},
	{Zone: Tempo, Label: "Tempo", Color: "#eab308", MinPercent: 70, MaxPercent: 80},
	{Zone: Threshold, Label: "Threshold", Color: "#f97316", MinPercent: 80, MaxPercent: 90},
	{Zone: VO2Max, Label: "VO2 Max", Color: "#ef4444", MinPercent: 90, MaxPercent: 100},
}

// MaxHeartRate returns the age-predicted maximum heart rate.
func MaxHeartRate(age int) int {
	return predictedMaxBase - age
}

// Classify maps a heart rate and age to a zone. It is total: any input
// produces a zone. Comparisons are done in integer arithmetic so values that
// sit exactly on a breakpoint (171 bpm at age 30 is 90.0%) land in the
// higher zone.
func Classify(heartRate, age int) Zone {
	maxHR := MaxHeartRate(age)
	if maxHR <= 0 {
		if heartRate > 0 {
			return VO2Max
		}
		return Recovery
	}
	scaled := heartRate * 100
	z := Recovery
	for i, bp := range breakpoints {
		if scaled >= bp*maxHR {
			z = Zone(i + 2)
		}
	}
	return z
}

// PercentOfMax returns the heart rate as a whole percentage of the
// age-predicted max, rounded down. Returns 0 when the max is not positive.
func PercentOfMax(heartRate, age int) int {
	maxHR := MaxHeartRate(age)
	if maxHR <= 0 || heartRate <= 0 {
		return 0
	}
	return heartRate * 100 / maxHR
}

// Valid reports whether z is one of the five zones.
func (z Zone) Valid() bool {
	return z >= Recovery && z <= VO2Max
}

// Info returns display metadata for z. Out-of-range values get zone 1's.
func (z Zone) Info() Info {
	if !z.Valid() {
		return infos[0]
	}
	return infos[z-1]
}

// Label returns the zone's display label.
func (z Zone) Label() string {
	return z.Info().Label
}

// All returns display metadata for every zone in ascending order.
func All() []Info {
	out := make([]Info, Count)
	copy(out, infos[:])
	return out
}
