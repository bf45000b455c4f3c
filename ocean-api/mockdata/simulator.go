package mockdata

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"ocean-platform/ocean-api/domain"
)

const metersPerKnotSecond = 1852.0 / 3600.0

// Simulator moves vessels along their heading so map clients see motion
// without a live AIS feed.
type Simulator struct {
	mu      sync.Mutex
	faker   *gofakeit.Faker
	vessels map[string]domain.VesselPosition
	// ids fixes the stepping order so a seed always yields the same tracks.
	ids []string
}

func NewSimulator(seed int64, vessels []domain.VesselPosition) *Simulator {
	s := &Simulator{faker: gofakeit.New(seed), vessels: make(map[string]domain.VesselPosition, len(vessels))}
	for _, v := range vessels {
		if _, dup := s.vessels[v.VesselID]; !dup {
			s.ids = append(s.ids, v.VesselID)
		}
		s.vessels[v.VesselID] = v
	}
	sort.Strings(s.ids)
	return s
}

// Step advances every vessel by elapsed time. Vessels leaving the region turn
// around; one in twenty changes status.
func (s *Simulator) Step(elapsed time.Duration, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.ids {
		v := s.vessels[id]
		if s.faker.IntRange(0, 19) == 0 {
			v = s.toggleStatus(v)
		}
		if v.Status != domain.StatusDocked && v.SpeedKnots > 0 {
			dist := v.SpeedKnots * metersPerKnotSecond * elapsed.Seconds()
			next := geo.PointAtBearingAndDistance(orb.Point{v.Longitude, v.Latitude}, v.Heading, dist)
			if !Region.Contains(next) {
				v.Heading = math.Mod(v.Heading+180, 360)
				next = geo.PointAtBearingAndDistance(orb.Point{v.Longitude, v.Latitude}, v.Heading, dist)
			}
			v.Longitude = round(next.Lon(), 6)
			v.Latitude = round(next.Lat(), 6)
		}
		v.ReportedAt = now.UTC()
		s.vessels[id] = v
	}
}

func (s *Simulator) toggleStatus(v domain.VesselPosition) domain.VesselPosition {
	switch v.Status {
	case domain.StatusDocked:
		v.Status = domain.StatusTransit
		v.SpeedKnots = round(s.faker.Float64Range(4, 12), 1)
	case domain.StatusTransit:
		v.Status = domain.StatusFishing
		v.SpeedKnots = round(s.faker.Float64Range(1, 4), 1)
	default:
		v.Status = domain.StatusTransit
		v.Heading = round(s.faker.Float64Range(0, 359.9), 1)
	}
	return v
}

// Snapshot returns all positions ordered by vessel id.
func (s *Simulator) Snapshot() []domain.VesselPosition {
	s.mu.Lock()
	out := make([]domain.VesselPosition, 0, len(s.vessels))
	for _, v := range s.vessels {
		out = append(out, v)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].VesselID < out[j].VesselID })
	return out
}

// FetchVessels satisfies the stream service's vessel source.
func (s *Simulator) FetchVessels(context.Context) ([]domain.VesselPosition, error) {
	return s.Snapshot(), nil
}

// Run steps the simulation every interval until ctx is done.
func (s *Simulator) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.Step(now.Sub(last), now)
			last = now
		}
	}
}
