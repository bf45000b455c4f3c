package mockdata

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"ocean-platform/ocean-api/domain"
)

// Dataset is a full set of generated records.
type Dataset struct {
	Species      []domain.SpeciesOccurrence
	Vessels      []domain.VesselPosition
	CatchReports []domain.CatchReport
	EDNASamples  []domain.EDNASample
}

// Generator produces deterministic mock records for a seed.
type Generator struct {
	faker *gofakeit.Faker
	now   time.Time
}

// NewGenerator creates a generator whose records end at now and span the
// preceding twelve months.
func NewGenerator(seed int64, now time.Time) *Generator {
	return &Generator{faker: gofakeit.New(seed), now: now.UTC()}
}

// Generate builds n species occurrences, n catch reports, n/4 eDNA samples
// and n/10 vessels (at least one of each).
func (g *Generator) Generate(n int) Dataset {
	if n < 1 {
		n = 1
	}
	vessels := g.Vessels(maxInt(n/10, 1))
	return Dataset{
		Species:      g.SpeciesOccurrences(n),
		Vessels:      vessels,
		CatchReports: g.CatchReports(n, vessels),
		EDNASamples:  g.EDNASamples(maxInt(n/4, 1)),
	}
}

func (g *Generator) SpeciesOccurrences(n int) []domain.SpeciesOccurrence {
	out := make([]domain.SpeciesOccurrence, 0, n)
	sources := []string{domain.SourceSurvey, domain.SourceCatch, domain.SourceEDNA}
	for i := 0; i < n; i++ {
		sp := Species[g.faker.IntRange(0, len(Species)-1)]
		lat, lon := g.point()
		out = append(out, domain.SpeciesOccurrence{
			ID:             g.faker.UUID(),
			ScientificName: sp.Scientific,
			CommonName:     sp.Common,
			Latitude:       lat,
			Longitude:      lon,
			ObservedAt:     g.timestamp(),
			Count:          g.faker.IntRange(1, 40),
			DepthM:         round(g.faker.Float64Range(2, 200), 1),
			Source:         g.faker.RandomString(sources),
		})
	}
	return out
}

func (g *Generator) Vessels(n int) []domain.VesselPosition {
	out := make([]domain.VesselPosition, 0, n)
	statuses := []string{domain.StatusFishing, domain.StatusTransit, domain.StatusDocked}
	for i := 0; i < n; i++ {
		lat, lon := g.point()
		status := g.faker.RandomString(statuses)
		speed := 0.0
		if status != domain.StatusDocked {
			speed = round(g.faker.Float64Range(2, 12), 1)
		}
		out = append(out, domain.VesselPosition{
			VesselID:   fmt.Sprintf("VSL-%03d", i+1),
			Name:       "MV " + g.faker.LastName(),
			VesselType: g.faker.RandomString(domain.VesselTypes),
			Latitude:   lat,
			Longitude:  lon,
			SpeedKnots: speed,
			Heading:    round(g.faker.Float64Range(0, 359.9), 1),
			Status:     status,
			ReportedAt: g.now.Add(-time.Duration(g.faker.IntRange(0, 48*60)) * time.Minute),
		})
	}
	return out
}

// CatchReports generates reports attributed to the given vessels.
func (g *Generator) CatchReports(n int, vessels []domain.VesselPosition) []domain.CatchReport {
	out := make([]domain.CatchReport, 0, n)
	for i := 0; i < n; i++ {
		sp := Species[g.faker.IntRange(0, len(Species)-1)]
		lat, lon := g.point()
		caught := g.timestamp()
		r := domain.CatchReport{
			ID:              g.faker.UUID(),
			Species:         sp.Scientific,
			Latitude:        lat,
			Longitude:       lon,
			CatchWeight:     round(g.faker.Float64Range(0.5, 80), 1),
			IndividualCount: g.faker.IntRange(1, 30),
			GearType:        g.faker.RandomString(domain.GearTypes),
			VesselType:      g.faker.RandomString(domain.VesselTypes),
			FishingDepth:    float64(g.faker.IntRange(5, 150)),
			Timestamp:       caught,
			ReportedBy:      "demo@oceandata.in",
			ReceivedAt:      caught.Add(time.Duration(g.faker.IntRange(1, 120)) * time.Minute),
		}
		if len(vessels) > 0 {
			v := vessels[g.faker.IntRange(0, len(vessels)-1)]
			r.VesselID = v.VesselID
			r.VesselType = v.VesselType
		}
		out = append(out, r)
	}
	return out
}

func (g *Generator) EDNASamples(n int) []domain.EDNASample {
	out := make([]domain.EDNASample, 0, n)
	for i := 0; i < n; i++ {
		lat, lon := g.point()
		collected := g.timestamp()
		bio := round(g.faker.Float64Range(0.45, 0.98), 2)
		temp := round(28+2*math.Sin(2*math.Pi*float64(collected.Month()-1)/12)+g.faker.Float64Range(-0.5, 0.5), 1)
		sample := domain.EDNASample{
			SampleID:          fmt.Sprintf("EDNA%03d", i+1),
			Latitude:          lat,
			Longitude:         lon,
			CollectedAt:       collected,
			BiodiversityIndex: bio,
			SpeciesRichness:   g.faker.IntRange(5, 25),
			GeneticDiversity:  round(0.6+(bio-0.5)*0.4, 2),
			WaterTempC:        &temp,
		}
		hits := g.faker.IntRange(1, 4)
		best := 0
		for j := 0; j < hits; j++ {
			sp := Species[g.faker.IntRange(0, len(Species)-1)]
			reads := g.faker.IntRange(10, 5000)
			sample.Markers = append(sample.Markers, domain.MarkerResult{
				Marker:     g.faker.RandomString(markers),
				Species:    sp.Scientific,
				ReadCount:  reads,
				Confidence: round(g.faker.Float64Range(0.6, 0.99), 2),
			})
			if reads > best {
				best = reads
				sample.DominantSpecies = sp.Scientific
			}
		}
		out = append(out, sample)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SampleID < out[j].SampleID })
	return out
}

func (g *Generator) point() (lat, lon float64) {
	lat = round(g.faker.Float64Range(Region.Min.Lat(), Region.Max.Lat()), 6)
	lon = round(g.faker.Float64Range(Region.Min.Lon(), Region.Max.Lon()), 6)
	return lat, lon
}

func (g *Generator) timestamp() time.Time {
	start := g.now.AddDate(-1, 0, 0)
	return g.faker.DateRange(start, g.now).UTC().Truncate(time.Second)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
