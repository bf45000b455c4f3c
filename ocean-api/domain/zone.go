package domain

// Zone statuses.
const (
	ZoneOpen     = "Open"
	ZoneClosed   = "Closed"
	ZoneSeasonal = "Seasonal"
)

// FishingZone is a circular management area.
type FishingZone struct {
	Name      string  `json:"name" yaml:"name"`
	Latitude  float64 `json:"latitude" yaml:"lat"`
	Longitude float64 `json:"longitude" yaml:"lon"`
	RadiusM   float64 `json:"radius_m" yaml:"radius_m"`
	Status    string  `json:"status" yaml:"status"`
}
