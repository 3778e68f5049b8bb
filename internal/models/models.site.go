// FilePath: internal/models/models.site.go
package models

// Site is one registered irrigation site bound to a physical device.
type Site struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	District     string `json:"district,omitempty"`
	Village      string `json:"village,omitempty"`
	OperatorID   string `json:"operator_id,omitempty"`
	OperatorName string `json:"operator_name,omitempty"`
	DeviceID     string `json:"device_id"`
	CreatedBy    string `json:"created_by,omitempty"`
}

// SiteStatus is the live sensor/pump snapshot shown on the admin dashboard.
type SiteStatus struct {
	DeviceID     string  `json:"device_id"`
	Humidity     float64 `json:"humidity"`
	SoilMoisture float64 `json:"soil_moisture"`
	RainPct      float64 `json:"rain_pct"`
	Bright       bool    `json:"bright"`
	Mode         Mode    `json:"mode,omitempty"`
	PumpOn       bool    `json:"pump_on"`
}
