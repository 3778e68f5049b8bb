package telemetry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydroguard/hydroguard/internal/store"
)

func TestExtractEmptySnapshot(t *testing.T) {
	_, err := Extract(store.Document{})
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestExtractMixedTypesAndLegacyKeys(t *testing.T) {
	doc := store.Document{
		"hum":      "45",
		"soil":     30,
		"rain_pct": 70.0,
		"bright":   true,
	}

	snap, err := Extract(doc)
	require.NoError(t, err)

	assert.Equal(t, 45.0, snap.Humidity)
	assert.Equal(t, 30.0, snap.SoilMoisture)
	assert.Equal(t, 70.0, snap.RainPct)
	assert.Equal(t, 1, snap.RainBin)
	assert.Equal(t, 1, snap.SunlightBin)
}

func TestExtractAlternateKeySpellings(t *testing.T) {
	doc := store.Document{
		"Humidity":      80,
		"Soil_Moisture": "55.5",
		"rainPct":       10,
	}

	snap, err := Extract(doc)
	require.NoError(t, err)

	assert.Equal(t, 80.0, snap.Humidity)
	assert.Equal(t, 55.5, snap.SoilMoisture)
	assert.Equal(t, 10.0, snap.RainPct)
	assert.Equal(t, 0, snap.RainBin)
}

func TestExtractClampsPercentages(t *testing.T) {
	doc := store.Document{
		"hum":      150,
		"soil":     -5,
		"rain_pct": 49.9,
	}

	snap, err := Extract(doc)
	require.NoError(t, err)

	assert.Equal(t, 100.0, snap.Humidity)
	assert.Equal(t, 0.0, snap.SoilMoisture)
	assert.Equal(t, 0, snap.RainBin)
}

func TestExtractRejectsNaN(t *testing.T) {
	doc := store.Document{
		"hum":      "NaN",
		"soil":     30,
		"rain_pct": 10,
	}

	_, err := Extract(doc)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestSunlightFallsBackToLightSensor(t *testing.T) {
	snap, err := Extract(store.Document{"hum": 50, "soil": 50, "rain_pct": 0, "ldr_adc": 2500})
	require.NoError(t, err)
	assert.Equal(t, 1, snap.SunlightBin)

	snap, err = Extract(store.Document{"hum": 50, "soil": 50, "rain_pct": 0, "ldr_adc": 1999})
	require.NoError(t, err)
	assert.Equal(t, 0, snap.SunlightBin)

	// The boolean flag wins over the raw sensor value when both exist.
	snap, err = Extract(store.Document{"hum": 50, "soil": 50, "rain_pct": 0, "bright": false, "ldr_adc": 2500})
	require.NoError(t, err)
	assert.Equal(t, 0, snap.SunlightBin)
}

func TestClampPassesNaNThrough(t *testing.T) {
	assert.True(t, math.IsNaN(Clamp(math.NaN(), 0, 100)))
	assert.Equal(t, 100.0, Clamp(math.Inf(1), 0, 100))
	assert.Equal(t, 0.0, Clamp(math.Inf(-1), 0, 100))
	assert.Equal(t, 50.0, Clamp(50, 0, 100))
}
