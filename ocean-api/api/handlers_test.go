package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"
	"golang.org/x/crypto/bcrypt"

	"ocean-platform/ocean-api/analytics"
	"ocean-platform/ocean-api/domain"
	"ocean-platform/ocean-api/mockdata"
	"ocean-platform/ocean-api/storage"
	"ocean-platform/ocean-api/weather"
	"ocean-platform/ocean-api/zones"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

const validCatchBody = `{"species":"Thunnus albacares","latitude":10.5,"longitude":-60.2,` +
	`"catch_weight":120.5,"individual_count":3,"gear_type":"longline","vessel_type":"commercial","fishing_depth":50}`

// failingStore wraps a store and fails listings with err.
type failingStore struct {
	Store
	err error
}

func (f failingStore) ListSpecies(context.Context, domain.Query) ([]domain.SpeciesOccurrence, string, error) {
	return nil, "", f.err
}

func (f failingStore) SaveCatchReport(context.Context, domain.CatchReport) error { return f.err }

type fixedWeather struct{}

func (fixedWeather) Current(_ context.Context, lat, _ float64) domain.WeatherConditions {
	return weather.Fallback(lat)
}

type recordingSubmitter struct {
	mu   sync.Mutex
	envs []domain.CatchEnvelope
	keys []string
	err  error
}

func (r *recordingSubmitter) Submit(env domain.CatchEnvelope, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.envs = append(r.envs, env)
	r.keys = append(r.keys, key)
	return nil
}

type testServer struct {
	e     *echo.Echo
	auth  *Auth
	store *storage.Memory
}

func newTestServer(tb testing.TB, mutate func(*Deps)) *testServer {
	tb.Helper()
	logger, _ := test.NewNullLogger()
	mem := storage.NewMemory(mockdata.NewGenerator(7, testNow).Generate(120))
	auth := NewSharedSecretAuth([]byte("test-secret"), "ocean-api", "")

	d := Deps{
		Store:     mem,
		Auth:      auth,
		Analytics: analytics.New(mem),
		Weather:   fixedWeather{},
		Zones:     zones.Default(),
		Logger:    logger,
		Now:       func() time.Time { return testNow },
	}
	if mutate != nil {
		mutate(&d)
	}
	e := echo.New()
	Register(e, d)
	return &testServer{e: e, auth: auth, store: mem}
}

func (s *testServer) token(t *testing.T, user, role string) string {
	t.Helper()
	tok, err := s.auth.Issue(user, role, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func (s *testServer) do(method, target, body, token string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := sonic.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestListSpeciesPaginates(t *testing.T) {
	s := newTestServer(t, nil)

	seen := map[string]bool{}
	target := "/api/species?limit=50"
	pages := 0
	for {
		rec := s.do(http.MethodGet, target, "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		resp := decode[listResponse[domain.SpeciesOccurrence]](t, rec)
		pages++
		for _, r := range resp.Records {
			if seen[r.ID] {
				t.Fatalf("record %s returned twice", r.ID)
			}
			seen[r.ID] = true
		}
		if resp.NextPageToken == "" {
			break
		}
		target = "/api/species?limit=50&page_token=" + resp.NextPageToken
	}
	if pages != 3 || len(seen) != 120 {
		t.Fatalf("expected 120 records over 3 pages, got %d over %d", len(seen), pages)
	}
}

func TestListReturnsEmptyArray(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(http.MethodGet, "/api/catch-reports?species=Nonexistent%20fish", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"records":[]`) {
		t.Fatalf("expected empty records array, got %s", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "next_page_token") {
		t.Fatalf("unexpected next page token: %s", rec.Body.String())
	}
}

func TestListFiltersByBoundingBox(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(http.MethodGet, "/api/edna?bbox=0,-180,90,180&limit=500", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	for _, sample := range decode[listResponse[domain.EDNASample]](t, rec).Records {
		if sample.Latitude < 0 {
			t.Fatalf("sample %s outside bbox: %v", sample.SampleID, sample.Latitude)
		}
	}
}

func TestListRejectsBadQuery(t *testing.T) {
	s := newTestServer(t, nil)
	for _, target := range []string{
		"/api/vessels?bbox=1,2,3",
		"/api/species?limit=-1",
		"/api/catch-reports?since=yesterday",
		"/api/catch-reports?since=2024-06-01&until=2024-05-01",
	} {
		rec := s.do(http.MethodGet, target, "", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, rec.Code)
			continue
		}
		if resp := decode[errorResponse](t, rec); len(resp.Fields) == 0 {
			t.Errorf("%s: expected field errors, got %#v", target, resp)
		}
	}
}

func TestListRejectsBadPageToken(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(http.MethodGet, "/api/species?page_token=not-a-token", "", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if resp := decode[errorResponse](t, rec); resp.Error != "invalid page token" {
		t.Fatalf("unexpected error: %#v", resp)
	}
}

func TestListStorageFailure(t *testing.T) {
	s := newTestServer(t, func(d *Deps) {
		d.Store = failingStore{Store: d.Store, err: errors.New("table unavailable")}
	})
	rec := s.do(http.MethodGet, "/api/species", "", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "table unavailable") {
		t.Fatalf("storage error leaked to client: %s", rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if resp := decode[healthResponse](t, rec); resp.Status != "ok" || resp.Checks["store"] != "ok" {
		t.Fatalf("unexpected health: %#v", resp)
	}

	s = newTestServer(t, func(d *Deps) {
		d.Checks = map[string]HealthCheck{"redis": func(context.Context) error { return errors.New("down") }}
	})
	rec = s.do(http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	resp := decode[healthResponse](t, rec)
	if resp.Status != "degraded" || resp.Checks["redis"] != "error" || resp.Checks["store"] != "ok" {
		t.Fatalf("unexpected health: %#v", resp)
	}
}

func TestPostCatchReportRequiresAuth(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(http.MethodPost, "/api/catch-reports", validCatchBody, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec.Header().Get(echo.HeaderWWWAuthenticate) != "Bearer" {
		t.Fatalf("expected WWW-Authenticate header")
	}
}

func TestPostCatchReportValidation(t *testing.T) {
	s := newTestServer(t, nil)
	tok := s.token(t, "skipper", RoleFisherman)

	rec := s.do(http.MethodPost, "/api/catch-reports", `{"species":"","latitude":95,"individual_count":0}`, tok)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	resp := decode[errorResponse](t, rec)
	for _, field := range []string{"species", "latitude", "individual_count", "gear_type", "vessel_type"} {
		if resp.Fields[field] == "" {
			t.Errorf("expected error for %s, got %#v", field, resp.Fields)
		}
	}

	rec = s.do(http.MethodPost, "/api/catch-reports", `{"species":"x","unexpected":1}`, tok)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown fields: expected 400, got %d", rec.Code)
	}

	big := `{"species":"` + strings.Repeat("a", maxBodySize) + `"}`
	rec = s.do(http.MethodPost, "/api/catch-reports", big, tok)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized body: expected 413, got %d", rec.Code)
	}
}

func TestPostCatchReportStoresDirectly(t *testing.T) {
	s := newTestServer(t, nil)
	tok := s.token(t, "skipper", RoleFisherman)

	rec := s.do(http.MethodPost, "/api/catch-reports", validCatchBody, tok)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[catchReportResponse](t, rec)
	if resp.Status != statusStored || resp.ID == "" {
		t.Fatalf("unexpected response: %#v", resp)
	}
	if resp.Prediction == nil || resp.Weather == nil || resp.Weather.Source != weather.SourceFallback {
		t.Fatalf("expected enrichment, got %#v", resp)
	}
	if resp.Report == nil || resp.Report.ReportedBy != "skipper" || !resp.Report.Timestamp.Equal(testNow) {
		t.Fatalf("expected normalized report, got %#v", resp.Report)
	}

	stored, _, err := s.store.ListCatchReports(context.Background(), domain.Query{ReportedBy: "skipper"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 1 || stored[0].ID != resp.ID {
		t.Fatalf("expected stored report %s, got %#v", resp.ID, stored)
	}
}

func TestPostCatchReportFlagsClosedZone(t *testing.T) {
	s := newTestServer(t, nil)
	tok := s.token(t, "skipper", RoleFisherman)

	body := strings.Replace(validCatchBody, `"latitude":10.5,"longitude":-60.2`, `"latitude":13.3,"longitude":74.2`, 1)
	rec := s.do(http.MethodPost, "/api/catch-reports", body, tok)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[catchReportResponse](t, rec)
	if len(resp.Zones) != 1 || resp.Zones[0].Status != domain.ZoneClosed {
		t.Fatalf("expected the protected area, got %#v", resp.Zones)
	}
	if resp.Prediction == nil || len(resp.Prediction.Advisories) != 1 || resp.Prediction.Advisories[0] != closedZoneAdvisory {
		t.Fatalf("expected closed zone advisory, got %#v", resp.Prediction)
	}
}

func TestPostCatchReportQueuesWithSender(t *testing.T) {
	sender := &recordingSubmitter{}
	deduper := newFakeDeduper()
	s := newTestServer(t, func(d *Deps) {
		d.Sender = sender
		d.Deduper = deduper
	})
	tok := s.token(t, "skipper", RoleFisherman)

	rec := s.do(http.MethodPost, "/api/catch-reports", validCatchBody, tok, IdempotencyKeyHeader, "trip-1")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	first := decode[catchReportResponse](t, rec)
	if first.Status != statusQueued {
		t.Fatalf("unexpected status %q", first.Status)
	}

	rec = s.do(http.MethodPost, "/api/catch-reports", validCatchBody, tok, IdempotencyKeyHeader, "trip-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("duplicate: expected 200, got %d", rec.Code)
	}
	dup := decode[catchReportResponse](t, rec)
	if !dup.Duplicate || dup.ID != first.ID {
		t.Fatalf("expected duplicate of %s, got %#v", first.ID, dup)
	}

	if len(sender.envs) != 1 || sender.keys[0] != "trip-1" || sender.envs[0].UserID != "skipper" {
		t.Fatalf("expected one queued envelope, got %#v", sender.envs)
	}
}

func TestPostCatchReportReleasesKeyOnFailure(t *testing.T) {
	deduper := newFakeDeduper()
	s := newTestServer(t, func(d *Deps) {
		d.Store = failingStore{Store: d.Store, err: errors.New("write failed")}
		d.Deduper = deduper
	})
	tok := s.token(t, "skipper", RoleFisherman)

	rec := s.do(http.MethodPost, "/api/catch-reports", validCatchBody, tok, IdempotencyKeyHeader, "trip-2")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if got := deduper.Released(); len(got) != 1 || got[0] != "trip-2" {
		t.Fatalf("expected key release, got %v", got)
	}
}

func TestPostCatchReportProceedsWhenDeduperFails(t *testing.T) {
	deduper := newFakeDeduper()
	deduper.err = errors.New("redis down")
	s := newTestServer(t, func(d *Deps) { d.Deduper = deduper })
	tok := s.token(t, "skipper", RoleFisherman)

	rec := s.do(http.MethodPost, "/api/catch-reports", validCatchBody, tok, IdempotencyKeyHeader, "trip-3")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
}

func TestCatchSummaryIsPerUser(t *testing.T) {
	s := newTestServer(t, nil)
	tok := s.token(t, "skipper", RoleFisherman)
	for i := 0; i < 2; i++ {
		if rec := s.do(http.MethodPost, "/api/catch-reports", validCatchBody, tok); rec.Code != http.StatusCreated {
			t.Fatalf("post: %d", rec.Code)
		}
	}
	rec := s.do(http.MethodGet, "/api/catch-reports/summary", "", tok)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	summary := decode[domain.CatchSummary](t, rec)
	if summary.TotalWeight != 241 || summary.MostCommonSpecies != "Thunnus albacares" {
		t.Fatalf("unexpected summary: %#v", summary)
	}
}

func TestPostEDNASample(t *testing.T) {
	s := newTestServer(t, nil)
	body := `{"sample_id":"EDNA-TEST-1","latitude":12.1,"longitude":-61.7,"biodiversity_index":0.7,` +
		`"species_richness":14,"genetic_diversity":0.55,"markers":[{"marker":"COI","species":"Thunnus albacares","read_count":1200,"confidence":0.93}]}`

	rec := s.do(http.MethodPost, "/api/edna", body, s.token(t, "deckhand", RoleFisherman))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("fisherman: expected 403, got %d", rec.Code)
	}

	tok := s.token(t, "lab", RoleResearcher)
	rec = s.do(http.MethodPost, "/api/edna", body, tok)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if sample := decode[domain.EDNASample](t, rec); !sample.CollectedAt.Equal(testNow) {
		t.Fatalf("expected collected_at default, got %v", sample.CollectedAt)
	}

	rec = s.do(http.MethodPost, "/api/edna", body, tok)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate: expected 409, got %d", rec.Code)
	}
}

func TestPostVesselPosition(t *testing.T) {
	s := newTestServer(t, nil)
	vessels, _, err := s.store.ListVessels(context.Background(), domain.Query{Limit: 1})
	if err != nil || len(vessels) == 0 {
		t.Fatalf("list vessels: %v", err)
	}
	v := vessels[0]
	target := "/api/vessels/" + v.VesselID + "/position"
	body := `{"latitude":11.25,"longitude":-62.5,"speed_knots":8.5,"heading":270,"status":"transit"}`

	rec := s.do(http.MethodPost, target, body, s.token(t, "lab", RoleResearcher))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("researcher: expected 403, got %d", rec.Code)
	}

	tok := s.token(t, "skipper", RoleFisherman)
	rec = s.do(http.MethodPost, target, `{"vessel_id":"OTHER","latitude":1,"longitude":1}`, tok)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("id mismatch: expected 400, got %d", rec.Code)
	}

	rec = s.do(http.MethodPost, target, body, tok)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[domain.VesselPosition](t, rec)
	if got.Name != v.Name || got.VesselType != v.VesselType || got.Status != domain.StatusTransit {
		t.Fatalf("expected merged vessel, got %#v", got)
	}

	stored, _, _ := s.store.ListVessels(context.Background(), domain.Query{VesselID: v.VesselID})
	if len(stored) != 1 || stored[0].Latitude != 11.25 || !stored[0].ReportedAt.Equal(testNow) {
		t.Fatalf("position not persisted: %#v", stored)
	}
}

func TestInsightsEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(http.MethodGet, "/api/analytics/dashboard", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard: expected 200, got %d", rec.Code)
	}
	if d := decode[domain.Dashboard](t, rec); d.TotalSpeciesRecords == 0 {
		t.Fatalf("expected species in dashboard, got %#v", d)
	}

	rec = s.do(http.MethodGet, "/api/analytics/trends?months=6", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("trends: expected 200, got %d", rec.Code)
	}
	if points := decode[[]domain.TrendPoint](t, rec); len(points) != 6 {
		t.Fatalf("expected 6 trend points, got %d", len(points))
	}
	if rec := s.do(http.MethodGet, "/api/analytics/trends?months=40", "", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("trends months=40: expected 400, got %d", rec.Code)
	}

	rec = s.do(http.MethodPost, "/api/predict", `{"mean_sst":29,"season":"winter"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("predict: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = s.do(http.MethodGet, "/api/zones", "", "")
	if rec.Code != http.StatusOK || len(decode[[]domain.FishingZone](t, rec)) == 0 {
		t.Fatalf("zones: unexpected response %d %s", rec.Code, rec.Body.String())
	}
	if rec := s.do(http.MethodGet, "/api/zones/lookup?lat=abc&lon=1", "", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("zone lookup: expected 400, got %d", rec.Code)
	}
	rec = s.do(http.MethodGet, "/api/zones/lookup?lat=-89&lon=0", "", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("zone lookup: expected empty array, got %d %s", rec.Code, rec.Body.String())
	}

	rec = s.do(http.MethodGet, "/api/weather?lat=10&lon=-60", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("weather: expected 200, got %d", rec.Code)
	}
}

func TestPostCatchReportRejectsOutOfRangeFigures(t *testing.T) {
	s := newTestServer(t, nil)
	tok := s.token(t, "whale", RoleFisherman)

	cases := map[string]string{
		"catch_weight":     `"catch_weight":1e307`,
		"fishing_depth":    `"fishing_depth":20000`,
		"individual_count": `"individual_count":5000000`,
	}
	for field, repl := range cases {
		body := validCatchBody
		switch field {
		case "catch_weight":
			body = strings.Replace(body, `"catch_weight":120.5`, repl, 1)
		case "fishing_depth":
			body = strings.Replace(body, `"fishing_depth":50`, repl, 1)
		case "individual_count":
			body = strings.Replace(body, `"individual_count":3`, repl, 1)
		}
		rec := s.do(http.MethodPost, "/api/catch-reports", body, tok)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d: %s", field, rec.Code, rec.Body.String())
		}
		if resp := decode[errorResponse](t, rec); resp.Fields[field] == "" {
			t.Fatalf("%s: expected field error, got %#v", field, resp)
		}
	}

	rec := s.do(http.MethodGet, "/api/analytics/dashboard", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAnalyticsSurviveHugeStoredWeights(t *testing.T) {
	s := newTestServer(t, nil)
	huge := domain.CatchReport{
		ID: "legacy-1", Species: "Thunnus albacares", Latitude: 12, Longitude: 74,
		CatchWeight: 1e307, IndividualCount: 1, GearType: domain.GearLongline,
		VesselType: domain.VesselCommercial, Timestamp: testNow.Add(-time.Hour),
		ReportedBy: "whale", ReceivedAt: testNow,
	}
	if err := s.store.SaveCatchReport(context.Background(), huge); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if rec := s.do(http.MethodGet, "/api/analytics/dashboard", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("dashboard: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rec := s.do(http.MethodGet, "/api/catch-reports/summary", "", s.token(t, "whale", RoleFisherman))
	if rec.Code != http.StatusOK {
		t.Fatalf("summary: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if sum := decode[domain.CatchSummary](t, rec); sum.TotalWeight != 1e307 {
		t.Fatalf("expected stored weight in summary, got %v", sum.TotalWeight)
	}
}

func TestPredictRejectsOutOfRangeInputs(t *testing.T) {
	s := newTestServer(t, nil)

	cases := map[string]string{
		"mean_sst":           `{"mean_sst":1e308}`,
		"biodiversity_index": `{"biodiversity_index":2}`,
		"genetic_diversity":  `{"genetic_diversity":-0.1}`,
		"species_richness":   `{"species_richness":-3}`,
	}
	for field, body := range cases {
		rec := s.do(http.MethodPost, "/api/predict", body, "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d: %s", field, rec.Code, rec.Body.String())
		}
		if resp := decode[errorResponse](t, rec); resp.Fields[field] == "" {
			t.Fatalf("%s: expected field error, got %#v", field, resp)
		}
	}
}

func TestCoordinatesRejectNonFiniteValues(t *testing.T) {
	s := newTestServer(t, nil)

	for _, target := range []string{
		"/api/weather?lat=NaN&lon=0",
		"/api/weather?lat=10&lon=Inf",
		"/api/zones/lookup?lat=NaN&lon=74",
		"/api/zones/lookup?lat=12&lon=-Infinity",
	} {
		rec := s.do(http.MethodGet, target, "", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d: %s", target, rec.Code, rec.Body.String())
		}
	}

	rec := s.do(http.MethodGet, "/api/species?bbox=NaN,72,16,78", "", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bbox: expected 400, got %d", rec.Code)
	}
	if resp := decode[errorResponse](t, rec); resp.Fields["bbox"] == "" {
		t.Fatalf("expected bbox field error, got %#v", resp)
	}
}

// unencodableAnalytics returns a dashboard that the JSON encoder rejects.
type unencodableAnalytics struct {
	Analytics
}

func (unencodableAnalytics) Dashboard(context.Context) (domain.Dashboard, error) {
	return domain.Dashboard{TotalCatchWeight: math.Inf(1)}, nil
}

func TestErrorsReachingEchoKeepErrorShape(t *testing.T) {
	s := newTestServer(t, func(d *Deps) { d.Analytics = unencodableAnalytics{d.Analytics} })

	cases := []struct {
		method, target string
		status         int
	}{
		{http.MethodGet, "/api/nowhere", http.StatusNotFound},
		{http.MethodDelete, "/api/zones", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/analytics/dashboard", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := s.do(tc.method, tc.target, "", "")
		if rec.Code != tc.status {
			t.Fatalf("%s %s: expected %d, got %d: %s", tc.method, tc.target, tc.status, rec.Code, rec.Body.String())
		}
		resp := decode[errorResponse](t, rec)
		if resp.Error == "" || strings.Contains(rec.Body.String(), `"message"`) {
			t.Fatalf("%s %s: expected error body, got %s", tc.method, tc.target, rec.Body.String())
		}
	}
}

func newTestLogin(t *testing.T, auth *Auth) *Login {
	t.Helper()
	l := NewLogin(auth, time.Hour)
	l.Cost = bcrypt.MinCost
	l.Burst = 3
	if err := l.AddUsers("skipper@example.org:hunter2:fisherman, lab@example.org:pipette:researcher"); err != nil {
		t.Fatalf("add users: %v", err)
	}
	return l
}

func TestLogin(t *testing.T) {
	auth := NewSharedSecretAuth([]byte("test-secret"), "ocean-api", "")
	s := newTestServer(t, func(d *Deps) {
		d.Auth = auth
		d.Login = newTestLogin(t, auth)
	})

	rec := s.do(http.MethodPost, "/api/auth/login", `{"email":"Lab@Example.org","password":"pipette"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[loginResponse](t, rec)
	if resp.Role != RoleResearcher || resp.TokenType != "bearer" || resp.ExpiresIn != 3600 {
		t.Fatalf("unexpected login response: %#v", resp)
	}
	p, err := auth.PrincipalFromBearer(resp.AccessToken)
	if err != nil || p.UserID != "lab@example.org" {
		t.Fatalf("issued token invalid: %v %#v", err, p)
	}

	for _, body := range []string{
		`{"email":"lab@example.org","password":"wrong"}`,
		`{"email":"nobody@example.org","password":"pipette"}`,
	} {
		rec := s.do(http.MethodPost, "/api/auth/login", body, "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", body, rec.Code)
		}
	}

	rec = s.do(http.MethodPost, "/api/auth/login", `{"email":"lab@example.org","password":"pipette"}`, "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected rate limit after burst, got %d", rec.Code)
	}
}

func TestLoginAddUsersRejectsBadEntries(t *testing.T) {
	l := NewLogin(nil, 0)
	l.Cost = bcrypt.MinCost
	for _, list := range []string{"no-colons", "a@b:pw:captain", ":pw:admin"} {
		if err := l.AddUsers(list); err == nil {
			t.Errorf("AddUsers(%q): expected error", list)
		}
	}
}
