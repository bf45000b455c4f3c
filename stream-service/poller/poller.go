// Package poller periodically reads vessel positions and forwards changed
// snapshots.
package poller

import (
	"context"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"ocean-platform/ocean-api/domain"
)

const fetchTimeout = 10 * time.Second

// Source returns the current position of every vessel.
type Source interface {
	FetchVessels(ctx context.Context) ([]domain.VesselPosition, error)
}

// Broadcaster receives changed snapshots.
type Broadcaster interface {
	Broadcast(vessels []domain.VesselPosition)
}

type Poller struct {
	source   Source
	out      Broadcaster
	interval time.Duration
	log      *log.Logger

	mu   sync.Mutex
	last map[string]domain.VesselPosition
}

func New(source Source, out Broadcaster, interval time.Duration, logger *log.Logger) *Poller {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Poller{
		source:   source,
		out:      out,
		interval: interval,
		log:      logger,
		last:     make(map[string]domain.VesselPosition),
	}
}

// Run polls immediately and then every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.Tick(ctx)
			t.Reset(p.interval)
		}
	}
}

// Tick fetches once and broadcasts when anything changed.
func (p *Poller) Tick(ctx context.Context) bool {
	cctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	vessels, err := p.source.FetchVessels(cctx)
	if err != nil {
		p.log.Warnf("poll vessels: %v", err)
		return false
	}
	changed, snapshot := p.detectChanges(vessels)
	if !changed {
		return false
	}
	p.log.WithField("vessels", len(snapshot)).Debug("vessel positions updated")
	p.out.Broadcast(snapshot)
	return true
}

func (p *Poller) detectChanges(in []domain.VesselPosition) (bool, []domain.VesselPosition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	changed := len(in) != len(p.last)
	current := make(map[string]domain.VesselPosition, len(in))
	for _, v := range in {
		prev, ok := p.last[v.VesselID]
		if !ok || moved(prev, v) {
			changed = true
		}
		current[v.VesselID] = v
	}
	p.last = current

	snapshot := make([]domain.VesselPosition, 0, len(current))
	for _, v := range current {
		snapshot = append(snapshot, v)
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].VesselID < snapshot[j].VesselID })
	return changed, snapshot
}

func moved(a, b domain.VesselPosition) bool {
	return a.Latitude != b.Latitude || a.Longitude != b.Longitude ||
		a.Status != b.Status || a.SpeedKnots != b.SpeedKnots || a.Heading != b.Heading
}

// Lister is the vessel listing of an ocean-api store.
type Lister interface {
	ListVessels(ctx context.Context, q domain.Query) ([]domain.VesselPosition, string, error)
}

// StoreSource walks every vessel page of a store.
type StoreSource struct {
	Store Lister
}

func (s StoreSource) FetchVessels(ctx context.Context) ([]domain.VesselPosition, error) {
	var out []domain.VesselPosition
	q := domain.Query{Limit: domain.MaxPageSize}
	for {
		page, next, err := s.Store.ListVessels(ctx, q)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if next == "" {
			return out, nil
		}
		q.PageToken = next
	}
}
