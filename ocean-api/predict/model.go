package predict

import (
	"math"

	"ocean-platform/ocean-api/domain"
)

// ModelVersion identifies the heuristic model.
const ModelVersion = "1.0.0"

const (
	baseConfidence = 0.85
	minConfidence  = 0.5
)

// Defaults used for fields missing from a prediction request.
const (
	DefaultSST              = 28.0
	DefaultBiodiversity     = 0.75
	DefaultGeneticDiversity = 0.68
	DefaultRichness         = 12
)

var dominantBySST = map[string]string{
	"Cool":     "Rastrelliger kanagurta",
	"Moderate": "Thunnus albacares",
	"Warm":     "Scomberomorus commerson",
	"Hot":      "Epinephelus coioides",
}

var seasonFactor = map[string]float64{
	Summer: 1.1,
	Winter: 0.9,
}

// Resolve fills defaults for missing inputs and derives categories that
// were not supplied.
func Resolve(in domain.PredictionInput) domain.PredictionFeatures {
	f := domain.PredictionFeatures{
		MeanSST:           DefaultSST,
		BiodiversityIndex: DefaultBiodiversity,
		GeneticDiversity:  DefaultGeneticDiversity,
		SpeciesRichness:   DefaultRichness,
		Season:            in.Season,
	}
	if in.MeanSST != nil {
		f.MeanSST = *in.MeanSST
	}
	if in.BiodiversityIndex != nil {
		f.BiodiversityIndex = *in.BiodiversityIndex
	}
	if in.GeneticDiversity != nil {
		f.GeneticDiversity = *in.GeneticDiversity
	}
	if in.SpeciesRichness != nil {
		f.SpeciesRichness = *in.SpeciesRichness
	}
	if f.Season == "" {
		f.Season = Summer
	}
	f.SSTCategory = in.SSTCategory
	if f.SSTCategory == "" {
		f.SSTCategory = SSTCategory(f.MeanSST)
	}
	f.BiodiversityCategory = in.BiodiversityCategory
	if f.BiodiversityCategory == "" {
		f.BiodiversityCategory = BiodiversityCategory(f.BiodiversityIndex)
	}
	return f
}

// Predict estimates species abundance for the features.
func Predict(f domain.PredictionFeatures) domain.Prediction {
	count := 15 + (f.MeanSST-28)*2 + f.BiodiversityIndex*10
	count += float64(f.SpeciesRichness-DefaultRichness) * 0.25
	count += (f.GeneticDiversity - 0.65) * 5
	if factor, ok := seasonFactor[f.Season]; ok {
		count *= factor
	}
	count = math.Max(0, roundTo(count, 1))

	species, ok := dominantBySST[f.SSTCategory]
	if !ok {
		species = dominantBySST[SSTCategory(f.MeanSST)]
	}

	return domain.Prediction{
		PredictedSpeciesCount: count,
		Confidence:            confidence(f),
		ModelVersion:          ModelVersion,
		PredictedSpecies:      species,
		Recommendation:        recommendation(count),
		Advisories:            advisories(f),
		Features:              f,
	}
}

func confidence(f domain.PredictionFeatures) float64 {
	c := baseConfidence
	if f.MeanSST < 24 || f.MeanSST > 32 {
		c -= 0.1
	}
	if f.BiodiversityIndex < 0.5 || f.BiodiversityIndex > 1 {
		c -= 0.1
	}
	if f.GeneticDiversity < 0.4 || f.GeneticDiversity > 0.9 {
		c -= 0.1
	}
	if f.SpeciesRichness < 5 || f.SpeciesRichness > 25 {
		c -= 0.1
	}
	return roundTo(math.Max(minConfidence, c), 2)
}

func recommendation(count float64) string {
	switch {
	case count > 20:
		return "Excellent fishing conditions: high species abundance predicted."
	case count > 15:
		return "Good fishing conditions: moderate species abundance expected."
	default:
		return "Challenging conditions: lower species abundance predicted."
	}
}

func advisories(f domain.PredictionFeatures) []string {
	out := []string{}
	if f.MeanSST > 30 {
		out = append(out, "High SST detected: consider fishing in deeper waters.")
	}
	if f.BiodiversityIndex < 0.6 {
		out = append(out, "Low biodiversity: this area may be overfished.")
	}
	return out
}
