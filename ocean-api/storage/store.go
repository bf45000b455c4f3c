package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"ocean-platform/ocean-api/domain"
)

// Store is the persistence contract shared by every backend.
type Store interface {
	ListSpecies(ctx context.Context, q domain.Query) ([]domain.SpeciesOccurrence, string, error)
	ListVessels(ctx context.Context, q domain.Query) ([]domain.VesselPosition, string, error)
	ListCatchReports(ctx context.Context, q domain.Query) ([]domain.CatchReport, string, error)
	ListEDNASamples(ctx context.Context, q domain.Query) ([]domain.EDNASample, string, error)

	// SaveCatchReport inserts or replaces a report by id.
	SaveCatchReport(ctx context.Context, r domain.CatchReport) error
	// SaveEDNASample inserts a sample and fails with ErrConflict when the
	// sample id already exists.
	SaveEDNASample(ctx context.Context, s domain.EDNASample) error
	UpsertVessel(ctx context.Context, v domain.VesselPosition) error

	Ping(ctx context.Context) error
}

// Dataset names, used for table names and cache keys.
const (
	DatasetSpecies = "species"
	DatasetVessels = "vessels"
	DatasetCatch   = "catchreports"
	DatasetEDNA    = "ednasamples"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// InvalidPageTokenError is returned when a page token cannot be decoded.
type InvalidPageTokenError struct {
	Token string
	Err   error
}

func (e InvalidPageTokenError) Error() string {
	return fmt.Sprintf("invalid page token %q: %v", e.Token, e.Err)
}

func (e InvalidPageTokenError) Unwrap() error { return e.Err }

// InvalidPageToken marks the error for handlers.
func (InvalidPageTokenError) InvalidPageToken() {}

const offsetTokenPrefix = "o:"

func encodeOffsetToken(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(offsetTokenPrefix + strconv.Itoa(offset)))
}

func decodeOffsetToken(token string) (int, error) {
	if token == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, InvalidPageTokenError{Token: token, Err: err}
	}
	s := string(raw)
	if !strings.HasPrefix(s, offsetTokenPrefix) {
		return 0, InvalidPageTokenError{Token: token, Err: errors.New("unknown token kind")}
	}
	n, err := strconv.Atoi(strings.TrimPrefix(s, offsetTokenPrefix))
	if err != nil || n < 0 {
		return 0, InvalidPageTokenError{Token: token, Err: errors.New("bad offset")}
	}
	return n, nil
}

// Matching rules shared by the in-process backends. The SQL and OData
// backends express the same predicates in their query languages.

func matchSpecies(q domain.Query, s domain.SpeciesOccurrence) bool {
	if q.Species != "" && q.Species != s.ScientificName && q.Species != s.CommonName {
		return false
	}
	return q.ContainsPoint(s.Latitude, s.Longitude) && q.InWindow(s.ObservedAt)
}

func matchVessel(q domain.Query, v domain.VesselPosition) bool {
	if q.VesselID != "" && q.VesselID != v.VesselID {
		return false
	}
	if q.VesselType != "" && q.VesselType != v.VesselType {
		return false
	}
	return q.ContainsPoint(v.Latitude, v.Longitude) && q.InWindow(v.ReportedAt)
}

func matchCatch(q domain.Query, r domain.CatchReport) bool {
	if q.Species != "" && q.Species != r.Species {
		return false
	}
	if q.VesselID != "" && q.VesselID != r.VesselID {
		return false
	}
	if q.VesselType != "" && q.VesselType != r.VesselType {
		return false
	}
	if q.ReportedBy != "" && q.ReportedBy != r.ReportedBy {
		return false
	}
	return q.ContainsPoint(r.Latitude, r.Longitude) && q.InWindow(r.Timestamp)
}

func matchEDNA(q domain.Query, s domain.EDNASample) bool {
	if q.Species != "" && q.Species != s.DominantSpecies {
		return false
	}
	return q.ContainsPoint(s.Latitude, s.Longitude) && q.InWindow(s.CollectedAt)
}
