// Package telemetry extracts decision features from a device's latest
// telemetry snapshot. The snapshot schema is not under our control: fields
// carry several legacy key spellings and arrive as numbers, strings or
// booleans depending on firmware version, so every read is tolerant and
// degrades to a default instead of failing.
package telemetry

import (
	"errors"
	"math"

	"github.com/hydroguard/hydroguard/internal/store"
)

var (
	// ErrEmpty means the device has not published a snapshot yet.
	ErrEmpty = errors.New("telemetry snapshot is empty")
	// ErrInvalid means a required feature was NaN or infinite after
	// clamping. Malformed upstream data must abort the decision cycle,
	// never crash it.
	ErrInvalid = errors.New("telemetry invalid (NaN/Inf)")
)

// Candidate key spellings per logical field, tried in order.
var (
	humidityKeys = []string{"hum", "humidity", "Humidity"}
	soilKeys     = []string{"soil", "soil_moisture", "Soil_Moisture"}
	rainKeys     = []string{"rain_pct", "rainPct", "rain"}
	lightADCKeys = []string{"ldr_adc", "LDR_ADC"}
)

const (
	brightKey = "bright"

	rainBinThreshold  = 50.0
	lightADCThreshold = 2000.0
)

// Snapshot is one extracted, validated set of decision features.
type Snapshot struct {
	Humidity     float64
	SoilMoisture float64
	RainPct      float64
	RainBin      int
	SunlightBin  int
}

// Extract pulls the decision features out of a raw telemetry document,
// clamps percentages to [0,100] and binarizes rain and sunlight.
func Extract(doc store.Document) (Snapshot, error) {
	if len(doc) == 0 {
		return Snapshot{}, ErrEmpty
	}

	s := Snapshot{
		Humidity:     Clamp(doc.FloatAny(0, humidityKeys...), 0, 100),
		SoilMoisture: Clamp(doc.FloatAny(0, soilKeys...), 0, 100),
		RainPct:      Clamp(doc.FloatAny(0, rainKeys...), 0, 100),
	}

	if !finite(s.Humidity) || !finite(s.SoilMoisture) || !finite(s.RainPct) {
		return Snapshot{}, ErrInvalid
	}

	if s.RainPct >= rainBinThreshold {
		s.RainBin = 1
	}
	s.SunlightBin = sunlightBin(doc)

	return s, nil
}

// sunlightBin prefers the firmware's boolean brightness flag; older devices
// only publish the raw light-sensor ADC value.
func sunlightBin(doc store.Document) int {
	if doc.Has(brightKey) {
		if doc.BoolLike(brightKey) {
			return 1
		}
		return 0
	}
	for _, k := range lightADCKeys {
		if doc.Has(k) {
			if doc.FloatAny(0, lightADCKeys...) >= lightADCThreshold {
				return 1
			}
			return 0
		}
	}
	return 0
}

// Clamp bounds v to [lo, hi]. NaN and infinities pass through so the caller
// can detect and reject them; silently mapping them to a bound would hide
// malformed upstream data.
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
