package storage

import (
	"context"
	"sort"
	"sync"

	"ocean-platform/ocean-api/domain"
	"ocean-platform/ocean-api/mockdata"
)

// Memory keeps every dataset in process. It backs demos and tests.
type Memory struct {
	mu      sync.RWMutex
	species []domain.SpeciesOccurrence
	vessels map[string]domain.VesselPosition
	catches []domain.CatchReport
	edna    []domain.EDNASample
}

// NewMemory creates a store holding the given dataset.
func NewMemory(ds mockdata.Dataset) *Memory {
	m := &Memory{
		species: append([]domain.SpeciesOccurrence(nil), ds.Species...),
		vessels: make(map[string]domain.VesselPosition, len(ds.Vessels)),
		catches: append([]domain.CatchReport(nil), ds.CatchReports...),
		edna:    append([]domain.EDNASample(nil), ds.EDNASamples...),
	}
	for _, v := range ds.Vessels {
		m.vessels[v.VesselID] = v
	}
	sort.Slice(m.species, func(i, j int) bool {
		return newerFirst(m.species[i].ObservedAt.UnixNano(), m.species[i].ID, m.species[j].ObservedAt.UnixNano(), m.species[j].ID)
	})
	m.sortCatches()
	m.sortEDNA()
	return m
}

func newerFirst(ti int64, idi string, tj int64, idj string) bool {
	if ti != tj {
		return ti > tj
	}
	return idi > idj
}

func (m *Memory) sortCatches() {
	sort.Slice(m.catches, func(i, j int) bool {
		return newerFirst(m.catches[i].Timestamp.UnixNano(), m.catches[i].ID, m.catches[j].Timestamp.UnixNano(), m.catches[j].ID)
	})
}

func (m *Memory) sortEDNA() {
	sort.Slice(m.edna, func(i, j int) bool {
		return newerFirst(m.edna[i].CollectedAt.UnixNano(), m.edna[i].SampleID, m.edna[j].CollectedAt.UnixNano(), m.edna[j].SampleID)
	})
}

// paginate filters items in order and slices out the page the query asks for.
func paginate[T any](items []T, keep func(T) bool, q domain.Query) ([]T, string, error) {
	offset, err := decodeOffsetToken(q.PageToken)
	if err != nil {
		return nil, "", err
	}
	limit := q.PageSize()
	out := make([]T, 0, limit)
	seen := 0
	for _, it := range items {
		if !keep(it) {
			continue
		}
		if seen < offset {
			seen++
			continue
		}
		if len(out) == limit {
			return out, encodeOffsetToken(offset + limit), nil
		}
		out = append(out, it)
	}
	return out, "", nil
}

func (m *Memory) ListSpecies(_ context.Context, q domain.Query) ([]domain.SpeciesOccurrence, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return paginate(m.species, func(s domain.SpeciesOccurrence) bool { return matchSpecies(q, s) }, q)
}

func (m *Memory) ListVessels(_ context.Context, q domain.Query) ([]domain.VesselPosition, string, error) {
	m.mu.RLock()
	vessels := make([]domain.VesselPosition, 0, len(m.vessels))
	for _, v := range m.vessels {
		vessels = append(vessels, v)
	}
	m.mu.RUnlock()
	sort.Slice(vessels, func(i, j int) bool { return vessels[i].VesselID < vessels[j].VesselID })
	return paginate(vessels, func(v domain.VesselPosition) bool { return matchVessel(q, v) }, q)
}

func (m *Memory) ListCatchReports(_ context.Context, q domain.Query) ([]domain.CatchReport, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return paginate(m.catches, func(r domain.CatchReport) bool { return matchCatch(q, r) }, q)
}

func (m *Memory) ListEDNASamples(_ context.Context, q domain.Query) ([]domain.EDNASample, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return paginate(m.edna, func(s domain.EDNASample) bool { return matchEDNA(q, s) }, q)
}

func (m *Memory) SaveCatchReport(_ context.Context, r domain.CatchReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.catches {
		if m.catches[i].ID == r.ID {
			m.catches[i] = r
			m.sortCatches()
			return nil
		}
	}
	m.catches = append(m.catches, r)
	m.sortCatches()
	return nil
}

func (m *Memory) SaveEDNASample(_ context.Context, s domain.EDNASample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.edna {
		if existing.SampleID == s.SampleID {
			return ErrConflict
		}
	}
	m.edna = append(m.edna, s)
	m.sortEDNA()
	return nil
}

func (m *Memory) UpsertVessel(_ context.Context, v domain.VesselPosition) error {
	m.mu.Lock()
	m.vessels[v.VesselID] = v
	m.mu.Unlock()
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }
