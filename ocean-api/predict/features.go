// Package predict derives environmental features from catches and runs the
// species abundance model.
package predict

import (
	"math"
	"time"

	"ocean-platform/ocean-api/domain"
)

// Season names.
const (
	Winter = "Winter"
	Spring = "Spring"
	Summer = "Summer"
	Autumn = "Autumn"
)

var gearRichness = map[string]int{
	domain.GearLongline:   8,
	domain.GearGillnet:    12,
	domain.GearPurseSeine: 15,
	domain.GearTrawl:      20,
	domain.GearHandline:   6,
}

const defaultRichness = 10

// FallbackSST estimates sea surface temperature from latitude when no
// observation is available.
func FallbackSST(lat float64) float64 {
	return 28.0 + (lat-12)*0.1
}

// FeaturesFromCatch derives the model input for a catch report observed at
// the given sea surface temperature.
func FeaturesFromCatch(r domain.CatchReport, sst float64) domain.PredictionFeatures {
	bio := math.Min(1.0, 0.5+r.CatchWeight/10+float64(r.IndividualCount)/20)
	genetic := 0.6 + (bio-0.5)*0.4
	richness, ok := gearRichness[r.GearType]
	if !ok {
		richness = defaultRichness
	}
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return domain.PredictionFeatures{
		Latitude:             r.Latitude,
		Longitude:            r.Longitude,
		MeanSST:              roundTo(sst, 1),
		BiodiversityIndex:    roundTo(bio, 2),
		GeneticDiversity:     roundTo(genetic, 2),
		SpeciesRichness:      richness,
		Season:               SeasonOf(ts.Month()),
		SSTCategory:          SSTCategory(sst),
		BiodiversityCategory: BiodiversityCategory(bio),
	}
}

// SeasonOf maps a month to its (northern hemisphere) season.
func SeasonOf(m time.Month) string {
	switch m {
	case time.December, time.January, time.February:
		return Winter
	case time.March, time.April, time.May:
		return Spring
	case time.June, time.July, time.August:
		return Summer
	default:
		return Autumn
	}
}

func SSTCategory(sst float64) string {
	switch {
	case sst < 26:
		return "Cool"
	case sst < 29:
		return "Moderate"
	case sst < 31:
		return "Warm"
	default:
		return "Hot"
	}
}

func BiodiversityCategory(bio float64) string {
	switch {
	case bio > 0.8:
		return "High"
	case bio > 0.6:
		return "Medium"
	default:
		return "Low"
	}
}

// roundTo rounds to places decimals. Values too large to scale are returned
// unchanged.
func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	if math.IsInf(v*p, 0) || math.IsNaN(v*p) {
		return v
	}
	return math.Round(v*p) / p
}
