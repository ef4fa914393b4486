package workcenters

import "time"

// WorkCenter represents a station where manufacturing operations run. The
// hourly rate feeds manufacturing order cost calculations.
type WorkCenter struct {
	ID                 int64     `json:"id"`
	Code               string    `json:"code"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	CapacityPerDayMins float64   `json:"capacity_per_day_mins"`
	HourlyRate         float64   `json:"hourly_rate"`
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
