package domain

import "time"

// Gear types accepted on catch reports.
const (
	GearLongline   = "longline"
	GearGillnet    = "gillnet"
	GearPurseSeine = "purse_seine"
	GearTrawl      = "trawl"
	GearHandline   = "handline"
)

// GearTypes lists the accepted gear types.
var GearTypes = []string{GearLongline, GearGillnet, GearPurseSeine, GearTrawl, GearHandline}

// maxClockSkew bounds how far in the future a catch timestamp may be.
const maxClockSkew = 5 * time.Minute

// Upper bounds on reported catch figures.
const (
	MaxCatchWeight     = 100000 // kg
	MaxIndividualCount = 1000000
	MaxFishingDepth    = 11000  // m
)

// CatchReport is a fisherman's report of a single catch.
type CatchReport struct {
	ID              string    `json:"id"`
	VesselID        string    `json:"vessel_id,omitempty"`
	Species         string    `json:"species"`
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	CatchWeight     float64   `json:"catch_weight"`
	IndividualCount int       `json:"individual_count"`
	GearType        string    `json:"gear_type"`
	VesselType      string    `json:"vessel_type"`
	FishingDepth    float64   `json:"fishing_depth"`
	Timestamp       time.Time `json:"timestamp"`
	ReportedBy      string    `json:"reported_by,omitempty"`
	ReceivedAt      time.Time `json:"received_at"`
}

// Validate checks a submitted report against now. A zero timestamp is
// accepted and filled in by Normalize.
func (r CatchReport) Validate(now time.Time) error {
	verr := ValidationError{}
	if r.Species == "" {
		verr.Add("species", "is required")
	}
	checkCoordinates(verr, r.Latitude, r.Longitude)
	if !inRange(r.CatchWeight, 0, MaxCatchWeight) {
		verr.Add("catch_weight", "must be in [0, 100000] kg")
	}
	if r.IndividualCount < 1 || r.IndividualCount > MaxIndividualCount {
		verr.Add("individual_count", "must be in [1, 1000000]")
	}
	if !contains(GearTypes, r.GearType) {
		verr.Add("gear_type", "must be one of longline, gillnet, purse_seine, trawl, handline")
	}
	if !contains(VesselTypes, r.VesselType) {
		verr.Add("vessel_type", "must be one of commercial, artisanal, recreational")
	}
	if !inRange(r.FishingDepth, 0, MaxFishingDepth) {
		verr.Add("fishing_depth", "must be in [0, 11000] m")
	}
	if !r.Timestamp.IsZero() && r.Timestamp.After(now.Add(maxClockSkew)) {
		verr.Add("timestamp", "must not be in the future")
	}
	return verr.OrNil()
}

// Normalize fills server-assigned fields.
func (r *CatchReport) Normalize(id, reportedBy string, now time.Time) {
	r.ID = id
	r.ReportedBy = reportedBy
	r.ReceivedAt = now.UTC()
	if r.Timestamp.IsZero() {
		r.Timestamp = now.UTC()
	} else {
		r.Timestamp = r.Timestamp.UTC()
	}
}

// CatchEnvelope wraps a report travelling through the report queue.
type CatchEnvelope struct {
	UserID     string      `json:"user_id"`
	Report     CatchReport `json:"report"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
}

// CatchSummary aggregates one user's catches.
type CatchSummary struct {
	TotalCatchesThisMonth int           `json:"total_catches_this_month"`
	TotalWeight           float64       `json:"total_weight"`
	MostCommonSpecies     string        `json:"most_common_species,omitempty"`
	AverageCatchPerTrip   float64       `json:"average_catch_per_trip"`
	FishingDays           int           `json:"fishing_days"`
	RecentCatches         []CatchReport `json:"recent_catches"`
}
