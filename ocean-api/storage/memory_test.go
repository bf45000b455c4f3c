package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"ocean-platform/ocean-api/domain"
	"ocean-platform/ocean-api/mockdata"
)

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func testDataset() mockdata.Dataset {
	return mockdata.NewGenerator(7, fixedNow).Generate(120)
}

type storeFactory func(t *testing.T, ds mockdata.Dataset) Store

func newMemoryStore(_ *testing.T, ds mockdata.Dataset) Store {
	return NewMemory(ds)
}

func newSQLiteStore(t *testing.T, ds mockdata.Dataset) Store {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "ocean.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Seed(context.Background(), ds); err != nil {
		t.Fatalf("seed sqlite: %v", err)
	}
	return s
}

func TestMemoryStore(t *testing.T) { runStoreTests(t, newMemoryStore) }

func TestSQLiteStore(t *testing.T) { runStoreTests(t, newSQLiteStore) }

func runStoreTests(t *testing.T, factory storeFactory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s Store, ds mockdata.Dataset)
	}{
		{"PagesWalkWholeDataset", testPagesWalkWholeDataset},
		{"ListingsNewestFirst", testListingsNewestFirst},
		{"VesselsOrderedByID", testVesselsOrderedByID},
		{"Filters", testFilters},
		{"InvalidPageToken", testInvalidPageToken},
		{"SaveCatchReportReplaces", testSaveCatchReportReplaces},
		{"SaveEDNASampleConflict", testSaveEDNASampleConflict},
		{"UpsertVessel", testUpsertVessel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := testDataset()
			tt.fn(t, factory(t, ds), ds)
		})
	}
}

func testPagesWalkWholeDataset(t *testing.T, s Store, ds mockdata.Dataset) {
	ctx := context.Background()
	seen := map[string]bool{}
	q := domain.Query{Limit: 7}
	pages := 0
	for {
		page, next, err := s.ListSpecies(ctx, q)
		if err != nil {
			t.Fatalf("list species: %v", err)
		}
		pages++
		for _, sp := range page {
			if seen[sp.ID] {
				t.Fatalf("duplicate record %s on page %d", sp.ID, pages)
			}
			seen[sp.ID] = true
		}
		if next == "" {
			break
		}
		if len(page) != q.Limit {
			t.Fatalf("short page %d with a next token: %d records", pages, len(page))
		}
		q.PageToken = next
	}
	if len(seen) != len(ds.Species) {
		t.Fatalf("expected %d records, walked %d", len(ds.Species), len(seen))
	}
}

func testListingsNewestFirst(t *testing.T, s Store, _ mockdata.Dataset) {
	ctx := context.Background()
	reports, _, err := s.ListCatchReports(ctx, domain.Query{Limit: domain.MaxPageSize})
	if err != nil {
		t.Fatalf("list reports: %v", err)
	}
	for i := 1; i < len(reports); i++ {
		if reports[i].Timestamp.After(reports[i-1].Timestamp) {
			t.Fatalf("reports out of order at %d: %v after %v", i, reports[i].Timestamp, reports[i-1].Timestamp)
		}
	}
	samples, _, err := s.ListEDNASamples(ctx, domain.Query{Limit: domain.MaxPageSize})
	if err != nil {
		t.Fatalf("list samples: %v", err)
	}
	for i := 1; i < len(samples); i++ {
		if samples[i].CollectedAt.After(samples[i-1].CollectedAt) {
			t.Fatalf("samples out of order at %d", i)
		}
	}
}

func testVesselsOrderedByID(t *testing.T, s Store, ds mockdata.Dataset) {
	vessels, next, err := s.ListVessels(context.Background(), domain.Query{})
	if err != nil {
		t.Fatalf("list vessels: %v", err)
	}
	if next != "" {
		t.Fatalf("unexpected next token %q", next)
	}
	if len(vessels) != len(ds.Vessels) {
		t.Fatalf("expected %d vessels, got %d", len(ds.Vessels), len(vessels))
	}
	for i := 1; i < len(vessels); i++ {
		if vessels[i].VesselID <= vessels[i-1].VesselID {
			t.Fatalf("vessels out of order: %s after %s", vessels[i].VesselID, vessels[i-1].VesselID)
		}
	}
}

func testFilters(t *testing.T, s Store, ds mockdata.Dataset) {
	ctx := context.Background()
	species := ds.CatchReports[0].Species
	reports, _, err := s.ListCatchReports(ctx, domain.Query{Species: species, Limit: domain.MaxPageSize})
	if err != nil {
		t.Fatalf("list by species: %v", err)
	}
	if len(reports) == 0 {
		t.Fatalf("expected reports for %s", species)
	}
	for _, r := range reports {
		if r.Species != species {
			t.Fatalf("species filter leaked %s", r.Species)
		}
	}

	box := orb.Bound{Min: orb.Point{73, 9}, Max: orb.Point{76, 12}}
	occ, _, err := s.ListSpecies(ctx, domain.Query{Bounds: &box, Limit: domain.MaxPageSize})
	if err != nil {
		t.Fatalf("list by bbox: %v", err)
	}
	want := 0
	for _, sp := range ds.Species {
		if box.Contains(orb.Point{sp.Longitude, sp.Latitude}) {
			want++
		}
	}
	if len(occ) != want {
		t.Fatalf("bbox filter: expected %d, got %d", want, len(occ))
	}

	since := fixedNow.AddDate(0, -3, 0)
	until := fixedNow.AddDate(0, -1, 0)
	samples, _, err := s.ListEDNASamples(ctx, domain.Query{Since: since, Until: until, Limit: domain.MaxPageSize})
	if err != nil {
		t.Fatalf("list by window: %v", err)
	}
	for _, e := range samples {
		if e.CollectedAt.Before(since) || !e.CollectedAt.Before(until) {
			t.Fatalf("sample %s outside window: %v", e.SampleID, e.CollectedAt)
		}
	}

	vesselType := ds.Vessels[0].VesselType
	vessels, _, err := s.ListVessels(ctx, domain.Query{VesselType: vesselType})
	if err != nil {
		t.Fatalf("list by vessel type: %v", err)
	}
	for _, v := range vessels {
		if v.VesselType != vesselType {
			t.Fatalf("vessel type filter leaked %s", v.VesselType)
		}
	}
}

func testInvalidPageToken(t *testing.T, s Store, _ mockdata.Dataset) {
	_, _, err := s.ListSpecies(context.Background(), domain.Query{PageToken: "!!not-a-token"})
	var tokErr InvalidPageTokenError
	if !errors.As(err, &tokErr) {
		t.Fatalf("expected InvalidPageTokenError, got %v", err)
	}
}

func testSaveCatchReportReplaces(t *testing.T, s Store, ds mockdata.Dataset) {
	ctx := context.Background()
	r := sampleCatch
	r.ID = "new-report"
	r.ReportedBy = "skipper@example.com"
	r.Timestamp = fixedNow.Add(time.Hour)
	if err := s.SaveCatchReport(ctx, r); err != nil {
		t.Fatalf("save: %v", err)
	}
	r.CatchWeight = 99
	if err := s.SaveCatchReport(ctx, r); err != nil {
		t.Fatalf("save again: %v", err)
	}

	mine, _, err := s.ListCatchReports(ctx, domain.Query{ReportedBy: r.ReportedBy})
	if err != nil {
		t.Fatalf("list mine: %v", err)
	}
	if len(mine) != 1 || mine[0].CatchWeight != 99 {
		t.Fatalf("expected one replaced report, got %#v", mine)
	}
	if !mine[0].Timestamp.Equal(r.Timestamp) {
		t.Fatalf("timestamp not preserved: %v", mine[0].Timestamp)
	}

	all, _, err := s.ListCatchReports(ctx, domain.Query{Limit: 1})
	if err != nil {
		t.Fatalf("list newest: %v", err)
	}
	if len(all) != 1 || all[0].ID != r.ID {
		t.Fatalf("expected newest report first, got %#v", all)
	}
}

func testSaveEDNASampleConflict(t *testing.T, s Store, ds mockdata.Dataset) {
	ctx := context.Background()
	temp := 27.5
	sample := domain.EDNASample{
		SampleID:          "EDNA-NEW",
		Latitude:          11,
		Longitude:         75,
		CollectedAt:       fixedNow.Add(time.Minute),
		BiodiversityIndex: 0.8,
		SpeciesRichness:   10,
		GeneticDiversity:  0.7,
		DominantSpecies:   "Thunnus albacares",
		WaterTempC:        &temp,
		Markers:           []domain.MarkerResult{{Marker: "COI", Species: "Thunnus albacares", ReadCount: 120, Confidence: 0.9}},
	}
	if err := s.SaveEDNASample(ctx, sample); err != nil {
		t.Fatalf("save sample: %v", err)
	}
	if err := s.SaveEDNASample(ctx, sample); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := s.SaveEDNASample(ctx, ds.EDNASamples[0]); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for seeded sample, got %v", err)
	}

	got, _, err := s.ListEDNASamples(ctx, domain.Query{Species: "Thunnus albacares", Since: sample.CollectedAt})
	if err != nil {
		t.Fatalf("list samples: %v", err)
	}
	if len(got) != 1 || got[0].SampleID != sample.SampleID {
		t.Fatalf("unexpected samples: %#v", got)
	}
	if got[0].WaterTempC == nil || *got[0].WaterTempC != temp || len(got[0].Markers) != 1 {
		t.Fatalf("sample fields not preserved: %#v", got[0])
	}
}

func testUpsertVessel(t *testing.T, s Store, ds mockdata.Dataset) {
	ctx := context.Background()
	v := ds.Vessels[0]
	v.Latitude = 12.25
	v.ReportedAt = fixedNow
	if err := s.UpsertVessel(ctx, v); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, _, err := s.ListVessels(ctx, domain.Query{VesselID: v.VesselID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Latitude != 12.25 {
		t.Fatalf("unexpected vessel: %#v", got)
	}
	all, _, err := s.ListVessels(ctx, domain.Query{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != len(ds.Vessels) {
		t.Fatalf("upsert changed vessel count: %d", len(all))
	}
}

func TestOffsetTokenRoundTrip(t *testing.T) {
	n, err := decodeOffsetToken(encodeOffsetToken(42))
	if err != nil || n != 42 {
		t.Fatalf("round trip: n=%d err=%v", n, err)
	}
	if _, err := decodeOffsetToken(encodeTableToken(strPtr("a"), strPtr("b"))); err == nil {
		t.Fatalf("expected table token to be rejected as offset token")
	}
}

func strPtr(s string) *string { return &s }

func TestSQLiteSeedOnlyWhenEmpty(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "ocean.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	empty, err := s.Empty(ctx)
	if err != nil || !empty {
		t.Fatalf("expected empty store, empty=%v err=%v", empty, err)
	}
	if err := s.Seed(ctx, testDataset()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	empty, err = s.Empty(ctx)
	if err != nil || empty {
		t.Fatalf("expected seeded store, empty=%v err=%v", empty, err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
