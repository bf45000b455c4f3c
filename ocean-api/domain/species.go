package domain

import "time"

// Occurrence sources.
const (
	SourceSurvey = "survey"
	SourceCatch  = "catch"
	SourceEDNA   = "edna"
)

// SpeciesOccurrence records a sighting of a species at a location.
type SpeciesOccurrence struct {
	ID             string    `json:"id"`
	ScientificName string    `json:"scientific_name"`
	CommonName     string    `json:"common_name,omitempty"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	ObservedAt     time.Time `json:"observed_at"`
	Count          int       `json:"count"`
	DepthM         float64   `json:"depth_m"`
	Source         string    `json:"source"`
}
