package api

import (
	"context"

	"ocean-platform/ocean-api/domain"
)

// Store abstracts persistence for handlers.
type Store interface {
	ListSpecies(ctx context.Context, q domain.Query) ([]domain.SpeciesOccurrence, string, error)
	ListVessels(ctx context.Context, q domain.Query) ([]domain.VesselPosition, string, error)
	ListCatchReports(ctx context.Context, q domain.Query) ([]domain.CatchReport, string, error)
	ListEDNASamples(ctx context.Context, q domain.Query) ([]domain.EDNASample, string, error)
	SaveCatchReport(ctx context.Context, r domain.CatchReport) error
	SaveEDNASample(ctx context.Context, s domain.EDNASample) error
	UpsertVessel(ctx context.Context, v domain.VesselPosition) error
	Ping(ctx context.Context) error
}

// InvalidPageTokenError is returned when a supplied page token is malformed.
type InvalidPageTokenError interface {
	error
	InvalidPageToken()
}

// Authenticator is implemented by types able to resolve the caller from the
// Authorization header.
type Authenticator interface {
	PrincipalFromAuthHeader(string) (Principal, error)
}

// Deduper maps idempotency keys to the report id first assigned to them.
type Deduper interface {
	// Claim records id under the key. When the key is already taken it
	// returns false and the id recorded first.
	Claim(ctx context.Context, userID, key, id string) (bool, string, error)
	// Release deletes a claimed key, used when persisting the report fails.
	Release(ctx context.Context, userID, key string) error
}

// ReportQueue hands catch reports to the report processor.
type ReportQueue interface {
	Enqueue(ctx context.Context, env domain.CatchEnvelope) error
}

// WeatherProvider returns current conditions and never fails; providers fall
// back to estimates.
type WeatherProvider interface {
	Current(ctx context.Context, lat, lon float64) domain.WeatherConditions
}

// Analytics computes aggregate views.
type Analytics interface {
	Dashboard(ctx context.Context) (domain.Dashboard, error)
	Trends(ctx context.Context, months int) ([]domain.TrendPoint, error)
	CatchSummary(ctx context.Context, user string) (domain.CatchSummary, error)
}

// ZoneCatalog resolves fishing zones.
type ZoneCatalog interface {
	All() []domain.FishingZone
	Lookup(lat, lon float64) []domain.FishingZone
	Closed(lat, lon float64) bool
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error
