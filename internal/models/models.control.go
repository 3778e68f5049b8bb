// FilePath: internal/models/models.control.go
package models

import "time"

// Mode is the pump control mode of a device.
type Mode string

const (
	ModeManual Mode = "manual"
	ModeAuto   Mode = "auto"
)

// Writer tags recorded in the control record's updatedBy field.
const (
	UpdatedByLocalManual  = "local_manual"
	UpdatedByLocalAuto    = "local_auto"
	UpdatedByAutoDecision = "auto_decision"
	UpdatedByBootstrap    = "bootstrap"
)

// ControlState is the local view of a device's control record. It converges
// to the last value written remotely by any writer; between an optimistic
// local write and its remote echo it may briefly run ahead of the store.
type ControlState struct {
	DeviceID  string    `json:"device_id"`
	Mode      Mode      `json:"mode"`
	PumpOn    bool      `json:"pump_on"`
	UpdatedBy string    `json:"updated_by,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`

	Decision *DecisionInfo `json:"decision,omitempty"`
}

// DecisionInfo carries the provenance of the last automatic pump decision.
type DecisionInfo struct {
	Label         string    `json:"label"`
	ProbabilityOn float64   `json:"probability_on"`
	HTTPCode      int       `json:"http_code"`
	UsedURL       string    `json:"used_url"`
	DecidedAt     time.Time `json:"decided_at"`
}

// DecisionRecord is one completed decision cycle, persisted to the audit log.
type DecisionRecord struct {
	ID            string    `json:"id" db:"id"`
	DeviceID      string    `json:"device_id" db:"device_id"`
	Humidity      float64   `json:"humidity" db:"humidity"`
	SoilMoisture  float64   `json:"soil_moisture" db:"soil_moisture"`
	RainPct       float64   `json:"rain_pct" db:"rain_pct"`
	RainBin       int       `json:"rain_bin" db:"rain_bin"`
	SunlightBin   int       `json:"sunlight_bin" db:"sunlight_bin"`
	HTTPCode      int       `json:"http_code" db:"http_code"`
	ProbabilityOn float64   `json:"probability_on" db:"probability_on"`
	Label         string    `json:"label" db:"label"`
	PumpOn        bool      `json:"pump_on" db:"pump_on"`
	Endpoint      string    `json:"endpoint" db:"endpoint"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
