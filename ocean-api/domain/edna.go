package domain

import "time"

// Plausible ranges for sea water measurements and richness counts.
const (
	MinWaterTempC      = -5
	MaxWaterTempC      = 45
	MaxSpeciesRichness = 10000
)

// MarkerResult is the read-out of one genetic marker for one species.
type MarkerResult struct {
	Marker     string  `json:"marker"`
	Species    string  `json:"species"`
	ReadCount  int     `json:"read_count"`
	Confidence float64 `json:"confidence"`
}

// EDNASample is an environmental DNA water sample and its analysis.
type EDNASample struct {
	SampleID          string         `json:"sample_id"`
	Latitude          float64        `json:"latitude"`
	Longitude         float64        `json:"longitude"`
	CollectedAt       time.Time      `json:"collected_at"`
	BiodiversityIndex float64        `json:"biodiversity_index"`
	SpeciesRichness   int            `json:"species_richness"`
	GeneticDiversity  float64        `json:"genetic_diversity"`
	DominantSpecies   string         `json:"dominant_species,omitempty"`
	WaterTempC        *float64       `json:"water_temp_c,omitempty"`
	Markers           []MarkerResult `json:"markers,omitempty"`
}

func (s EDNASample) Validate(now time.Time) error {
	verr := ValidationError{}
	if s.SampleID == "" {
		verr.Add("sample_id", "is required")
	}
	checkCoordinates(verr, s.Latitude, s.Longitude)
	if !inRange(s.BiodiversityIndex, 0, 1) {
		verr.Add("biodiversity_index", "must be in [0, 1]")
	}
	if !inRange(s.GeneticDiversity, 0, 1) {
		verr.Add("genetic_diversity", "must be in [0, 1]")
	}
	if s.SpeciesRichness < 1 || s.SpeciesRichness > MaxSpeciesRichness {
		verr.Add("species_richness", "must be in [1, 10000]")
	}
	if s.WaterTempC != nil && !inRange(*s.WaterTempC, MinWaterTempC, MaxWaterTempC) {
		verr.Add("water_temp_c", "must be in [-5, 45]")
	}
	if s.CollectedAt.After(now.Add(maxClockSkew)) {
		verr.Add("collected_at", "must not be in the future")
	}
	for _, m := range s.Markers {
		if m.Marker == "" || m.Species == "" {
			verr.Add("markers", "marker and species are required")
			break
		}
		if !inRange(m.Confidence, 0, 1) || m.ReadCount < 0 {
			verr.Add("markers", "confidence must be in [0, 1] and read_count not negative")
			break
		}
	}
	return verr.OrNil()
}
