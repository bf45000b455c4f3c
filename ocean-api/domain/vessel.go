package domain

import "time"

// Vessel types accepted on positions and catch reports.
const (
	VesselCommercial   = "commercial"
	VesselArtisanal    = "artisanal"
	VesselRecreational = "recreational"
)

// Vessel statuses.
const (
	StatusFishing = "fishing"
	StatusTransit = "transit"
	StatusDocked  = "docked"
)

// MaxSpeedKnots bounds reported vessel speed.
const MaxSpeedKnots = 100

// VesselTypes lists the accepted vessel types.
var VesselTypes = []string{VesselCommercial, VesselArtisanal, VesselRecreational}

// VesselPosition is the current reported position of a vessel.
type VesselPosition struct {
	VesselID   string    `json:"vessel_id"`
	Name       string    `json:"name"`
	VesselType string    `json:"vessel_type"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	SpeedKnots float64   `json:"speed_knots"`
	Heading    float64   `json:"heading"`
	Status     string    `json:"status"`
	ReportedAt time.Time `json:"reported_at"`
}

// Validate checks ranges on a position update.
func (v VesselPosition) Validate() error {
	verr := ValidationError{}
	if v.VesselID == "" {
		verr.Add("vessel_id", "is required")
	}
	checkCoordinates(verr, v.Latitude, v.Longitude)
	if v.VesselType != "" && !contains(VesselTypes, v.VesselType) {
		verr.Add("vessel_type", "must be one of commercial, artisanal, recreational")
	}
	if !inRange(v.SpeedKnots, 0, MaxSpeedKnots) {
		verr.Add("speed_knots", "must be in [0, 100]")
	}
	if !(v.Heading >= 0 && v.Heading < 360) {
		verr.Add("heading", "must be in [0, 360)")
	}
	switch v.Status {
	case "", StatusFishing, StatusTransit, StatusDocked:
	default:
		verr.Add("status", "must be one of fishing, transit, docked")
	}
	return verr.OrNil()
}
