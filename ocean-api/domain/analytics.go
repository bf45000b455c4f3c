package domain

import "time"

// SpeciesCatch aggregates catches of one species.
type SpeciesCatch struct {
	Species string  `json:"species"`
	Weight  float64 `json:"weight"`
	Count   int     `json:"count"`
}

// Dashboard is the analytics overview served to the dashboard.
type Dashboard struct {
	TotalSpeciesRecords   int            `json:"total_species_records"`
	UniqueSpecies         int            `json:"unique_species"`
	TotalVessels          int            `json:"total_vessels"`
	ActiveVessels         int            `json:"active_vessels"`
	VesselsByType         map[string]int `json:"vessels_by_type"`
	TotalCatchReports     int            `json:"total_catch_reports"`
	TotalCatchWeight      float64        `json:"total_catch_weight"`
	CatchBySpecies        []SpeciesCatch `json:"catch_by_species"`
	EDNASamples           int            `json:"edna_samples"`
	MeanBiodiversityIndex float64        `json:"mean_biodiversity_index"`
	DataCoverageMonths    int            `json:"data_coverage_months"`
	GeneratedAt           time.Time      `json:"generated_at"`
}

// TrendPoint is one month of the trend series.
type TrendPoint struct {
	Month            string   `json:"month"`
	SpeciesRecords   int      `json:"species_records"`
	SpeciesAbundance int      `json:"species_abundance"`
	CatchWeight      float64  `json:"catch_weight"`
	MeanWaterTempC   *float64 `json:"mean_water_temp_c"`
}
