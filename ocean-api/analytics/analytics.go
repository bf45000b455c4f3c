// Package analytics aggregates the stored datasets into dashboard figures.
package analytics

import (
	"context"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"ocean-platform/ocean-api/domain"
)

const (
	tracerName = "ocean-platform/ocean-api/analytics"

	// activeWindow is how recently a vessel must have reported to count as active.
	activeWindow = 24 * time.Hour
	// maxRecords bounds how much of one dataset a single aggregation reads.
	maxRecords = 100_000

	DefaultTrendMonths = 12
	MaxTrendMonths     = 36
	recentCatches      = 5
)

// Source is the read side of the store.
type Source interface {
	ListSpecies(ctx context.Context, q domain.Query) ([]domain.SpeciesOccurrence, string, error)
	ListVessels(ctx context.Context, q domain.Query) ([]domain.VesselPosition, string, error)
	ListCatchReports(ctx context.Context, q domain.Query) ([]domain.CatchReport, string, error)
	ListEDNASamples(ctx context.Context, q domain.Query) ([]domain.EDNASample, string, error)
}

// Service computes dashboard aggregates.
type Service struct {
	source Source
	now    func() time.Time
}

func New(source Source) *Service {
	return &Service{source: source, now: time.Now}
}

// loadAll walks every page of a listing.
func loadAll[T any](ctx context.Context, q domain.Query, list func(context.Context, domain.Query) ([]T, string, error)) ([]T, error) {
	q.Limit = domain.MaxPageSize
	q.PageToken = ""
	var out []T
	for {
		page, next, err := list(ctx, q)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if next == "" || len(out) >= maxRecords {
			return out, nil
		}
		q.PageToken = next
	}
}

type snapshot struct {
	species []domain.SpeciesOccurrence
	vessels []domain.VesselPosition
	catches []domain.CatchReport
	edna    []domain.EDNASample
}

// load reads the four datasets concurrently.
func (s *Service) load(ctx context.Context, q domain.Query) (snapshot, error) {
	var snap snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.species, err = loadAll(gctx, q, s.source.ListSpecies)
		return err
	})
	g.Go(func() (err error) {
		snap.vessels, err = loadAll(gctx, domain.Query{}, s.source.ListVessels)
		return err
	})
	g.Go(func() (err error) {
		snap.catches, err = loadAll(gctx, q, s.source.ListCatchReports)
		return err
	})
	g.Go(func() (err error) {
		snap.edna, err = loadAll(gctx, q, s.source.ListEDNASamples)
		return err
	})
	if err := g.Wait(); err != nil {
		return snapshot{}, err
	}
	return snap, nil
}

// Dashboard computes the overview figures across all datasets.
func (s *Service) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "analytics.dashboard")
	defer span.End()

	snap, err := s.load(ctx, domain.Query{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Dashboard{}, err
	}
	d := BuildDashboard(snap.species, snap.vessels, snap.catches, snap.edna, s.now())
	span.SetAttributes(
		attribute.Int("ocean.species_records", d.TotalSpeciesRecords),
		attribute.Int("ocean.catch_reports", d.TotalCatchReports),
		attribute.Int("ocean.edna_samples", d.EDNASamples),
		attribute.Int("ocean.vessels", d.TotalVessels),
	)
	span.SetStatus(codes.Ok, "")
	return d, nil
}

// BuildDashboard aggregates already loaded records.
func BuildDashboard(species []domain.SpeciesOccurrence, vessels []domain.VesselPosition, catches []domain.CatchReport, edna []domain.EDNASample, now time.Time) domain.Dashboard {
	d := domain.Dashboard{
		TotalSpeciesRecords: len(species),
		TotalVessels:        len(vessels),
		VesselsByType:       map[string]int{},
		TotalCatchReports:   len(catches),
		CatchBySpecies:      []domain.SpeciesCatch{},
		EDNASamples:         len(edna),
		GeneratedAt:         now.UTC(),
	}

	unique := map[string]struct{}{}
	var first, last time.Time
	for _, sp := range species {
		unique[sp.ScientificName] = struct{}{}
		if first.IsZero() || sp.ObservedAt.Before(first) {
			first = sp.ObservedAt
		}
		if sp.ObservedAt.After(last) {
			last = sp.ObservedAt
		}
	}
	if !first.IsZero() {
		d.DataCoverageMonths = monthsBetween(first, last) + 1
	}

	for _, v := range vessels {
		d.VesselsByType[v.VesselType]++
		if now.Sub(v.ReportedAt) <= activeWindow {
			d.ActiveVessels++
		}
	}

	bySpecies := map[string]*domain.SpeciesCatch{}
	for _, r := range catches {
		unique[r.Species] = struct{}{}
		d.TotalCatchWeight += r.CatchWeight
		sc, ok := bySpecies[r.Species]
		if !ok {
			sc = &domain.SpeciesCatch{Species: r.Species}
			bySpecies[r.Species] = sc
		}
		sc.Weight += r.CatchWeight
		sc.Count += r.IndividualCount
	}
	for _, sc := range bySpecies {
		sc.Weight = round(sc.Weight, 2)
		d.CatchBySpecies = append(d.CatchBySpecies, *sc)
	}
	sort.Slice(d.CatchBySpecies, func(i, j int) bool {
		if d.CatchBySpecies[i].Weight != d.CatchBySpecies[j].Weight {
			return d.CatchBySpecies[i].Weight > d.CatchBySpecies[j].Weight
		}
		return d.CatchBySpecies[i].Species < d.CatchBySpecies[j].Species
	})
	d.TotalCatchWeight = round(d.TotalCatchWeight, 2)
	d.UniqueSpecies = len(unique)

	if len(edna) > 0 {
		var sum float64
		for _, e := range edna {
			sum += e.BiodiversityIndex
		}
		d.MeanBiodiversityIndex = round(sum/float64(len(edna)), 3)
	}
	return d
}

// Trends returns a monthly series ending with the current month.
func (s *Service) Trends(ctx context.Context, months int) ([]domain.TrendPoint, error) {
	if months <= 0 {
		months = DefaultTrendMonths
	}
	if months > MaxTrendMonths {
		months = MaxTrendMonths
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "analytics.trends")
	defer span.End()
	span.SetAttributes(attribute.Int("ocean.trend_months", months))

	now := s.now().UTC()
	start := monthStart(now).AddDate(0, -(months - 1), 0)
	snap, err := s.load(ctx, domain.Query{Since: start})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return BuildTrends(snap.species, snap.catches, snap.edna, start, months), nil
}

// BuildTrends buckets records into months starting at start.
func BuildTrends(species []domain.SpeciesOccurrence, catches []domain.CatchReport, edna []domain.EDNASample, start time.Time, months int) []domain.TrendPoint {
	points := make([]domain.TrendPoint, months)
	for i := range points {
		points[i].Month = start.AddDate(0, i, 0).Format("2006-01")
	}
	bucket := func(t time.Time) int {
		i := monthsBetween(start, t.UTC())
		if t.Before(start) || i >= months {
			return -1
		}
		return i
	}

	for _, sp := range species {
		if i := bucket(sp.ObservedAt); i >= 0 {
			points[i].SpeciesRecords++
			points[i].SpeciesAbundance += sp.Count
		}
	}
	for _, r := range catches {
		if i := bucket(r.Timestamp); i >= 0 {
			points[i].CatchWeight += r.CatchWeight
		}
	}
	sums := make([]float64, months)
	counts := make([]int, months)
	for _, e := range edna {
		if e.WaterTempC == nil {
			continue
		}
		if i := bucket(e.CollectedAt); i >= 0 {
			sums[i] += *e.WaterTempC
			counts[i]++
		}
	}
	for i := range points {
		points[i].CatchWeight = round(points[i].CatchWeight, 2)
		if counts[i] > 0 {
			mean := round(sums[i]/float64(counts[i]), 2)
			points[i].MeanWaterTempC = &mean
		}
	}
	return points
}

// CatchSummary summarises the catches reported by one user.
func (s *Service) CatchSummary(ctx context.Context, user string) (domain.CatchSummary, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "analytics.catch_summary")
	defer span.End()

	catches, err := loadAll(ctx, domain.Query{ReportedBy: user}, s.source.ListCatchReports)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.CatchSummary{}, err
	}
	span.SetAttributes(attribute.Int("ocean.catch_reports", len(catches)))
	return BuildCatchSummary(catches, s.now()), nil
}

// BuildCatchSummary expects catches newest first. A trip is one vessel on
// one day; reports without a vessel count per day.
func BuildCatchSummary(catches []domain.CatchReport, now time.Time) domain.CatchSummary {
	sum := domain.CatchSummary{RecentCatches: []domain.CatchReport{}}
	thisMonth := monthStart(now.UTC())
	days := map[string]struct{}{}
	trips := map[string]struct{}{}
	counts := map[string]int{}

	for _, r := range catches {
		day := r.Timestamp.UTC().Format("2006-01-02")
		days[day] = struct{}{}
		trips[r.VesselID+"|"+day] = struct{}{}
		counts[r.Species]++
		sum.TotalWeight += r.CatchWeight
		if !r.Timestamp.Before(thisMonth) {
			sum.TotalCatchesThisMonth++
		}
	}

	best := 0
	for species, n := range counts {
		if n > best || (n == best && species < sum.MostCommonSpecies) {
			best = n
			sum.MostCommonSpecies = species
		}
	}
	sum.FishingDays = len(days)
	if len(trips) > 0 {
		sum.AverageCatchPerTrip = round(sum.TotalWeight/float64(len(trips)), 2)
	}
	sum.TotalWeight = round(sum.TotalWeight, 2)

	n := recentCatches
	if len(catches) < n {
		n = len(catches)
	}
	sum.RecentCatches = append(sum.RecentCatches, catches[:n]...)
	return sum
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

// round rounds to places decimals. Values too large to scale are returned
// unchanged; overflowed sums saturate so the result always encodes as JSON.
func round(v float64, places int) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1):
		return -math.MaxFloat64
	}
	p := math.Pow(10, float64(places))
	if math.IsInf(v*p, 0) {
		return v
	}
	return math.Round(v*p) / p
}
