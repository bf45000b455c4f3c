package domain

// PredictionInput holds the environmental features fed to the abundance
// model. Pointer fields distinguish "not provided" from zero.
type PredictionInput struct {
	MeanSST              *float64 `json:"mean_sst,omitempty"`
	BiodiversityIndex    *float64 `json:"biodiversity_index,omitempty"`
	GeneticDiversity     *float64 `json:"genetic_diversity,omitempty"`
	SpeciesRichness      *int     `json:"species_richness,omitempty"`
	Season               string   `json:"season,omitempty"`
	SSTCategory          string   `json:"sst_category,omitempty"`
	BiodiversityCategory string   `json:"biodiversity_category,omitempty"`
}

// Validate checks the supplied inputs against the ranges the model accepts.
func (in PredictionInput) Validate() error {
	verr := ValidationError{}
	if in.MeanSST != nil && !inRange(*in.MeanSST, MinWaterTempC, MaxWaterTempC) {
		verr.Add("mean_sst", "must be in [-5, 45]")
	}
	if in.BiodiversityIndex != nil && !inRange(*in.BiodiversityIndex, 0, 1) {
		verr.Add("biodiversity_index", "must be in [0, 1]")
	}
	if in.GeneticDiversity != nil && !inRange(*in.GeneticDiversity, 0, 1) {
		verr.Add("genetic_diversity", "must be in [0, 1]")
	}
	if in.SpeciesRichness != nil && (*in.SpeciesRichness < 0 || *in.SpeciesRichness > MaxSpeciesRichness) {
		verr.Add("species_richness", "must be in [0, 10000]")
	}
	return verr.OrNil()
}

// PredictionFeatures is the resolved feature vector.
type PredictionFeatures struct {
	Latitude             float64 `json:"latitude,omitempty"`
	Longitude            float64 `json:"longitude,omitempty"`
	MeanSST              float64 `json:"mean_sst"`
	BiodiversityIndex    float64 `json:"biodiversity_index"`
	GeneticDiversity     float64 `json:"genetic_diversity"`
	SpeciesRichness      int     `json:"species_richness"`
	Season               string  `json:"season"`
	SSTCategory          string  `json:"sst_category"`
	BiodiversityCategory string  `json:"biodiversity_category"`
}

// Prediction is the abundance model output.
type Prediction struct {
	PredictedSpeciesCount float64            `json:"predicted_species_count"`
	Confidence            float64            `json:"confidence"`
	ModelVersion          string             `json:"model_version"`
	PredictedSpecies      string             `json:"predicted_species"`
	Recommendation        string             `json:"recommendation"`
	Advisories            []string           `json:"advisories"`
	Features              PredictionFeatures `json:"features"`
}
