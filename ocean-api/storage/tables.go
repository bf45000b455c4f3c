package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
	"golang.org/x/sync/errgroup"

	"ocean-platform/ocean-api/domain"
	"ocean-platform/ocean-api/mockdata"
)

// Datasets lists every dataset table.
var Datasets = []string{DatasetSpecies, DatasetVessels, DatasetCatch, DatasetEDNA}

// Tables stores each dataset in its own Azure table under a single partition.
// Row keys of time-ordered datasets start with inverted ticks so the natural
// table order is newest first.
type Tables struct {
	service *aztables.ServiceClient
	tables  map[string]*aztables.Client
}

// NewTables creates a Tables store from the given connection string. Table
// names are the dataset names with prefix prepended.
func NewTables(connStr, prefix string) (*Tables, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	t := &Tables{service: svc, tables: make(map[string]*aztables.Client, len(Datasets))}
	for _, ds := range Datasets {
		t.tables[ds] = svc.NewClient(prefix + ds)
	}
	return t, nil
}

// CreateTables creates every dataset table, ignoring ones that already exist.
func (t *Tables) CreateTables(ctx context.Context) error {
	for _, ds := range Datasets {
		if _, err := t.tables[ds].CreateTable(ctx, nil); err != nil {
			var respErr *azcore.ResponseError
			if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
				return fmt.Errorf("create table %s: %w", ds, err)
			}
		}
	}
	return nil
}

const (
	edmDouble = "Edm.Double"
	edmInt64  = "Edm.Int64"
)

// entityProps builds an entity payload with explicit EDM types, so that
// whole-number doubles are not stored as Int32 and filters keep matching.
type entityProps map[string]any

func newEntity(pk, rk string) entityProps {
	return entityProps{"PartitionKey": pk, "RowKey": rk}
}

func (p entityProps) str(name, v string) entityProps {
	p[name] = v
	return p
}

func (p entityProps) int32(name string, v int) entityProps {
	p[name] = v
	return p
}

func (p entityProps) double(name string, v float64) entityProps {
	p[name] = v
	p[name+"@odata.type"] = edmDouble
	return p
}

func (p entityProps) millis(name string, t time.Time) entityProps {
	p[name] = strconv.FormatInt(t.UnixMilli(), 10)
	p[name+"@odata.type"] = edmInt64
	return p
}

// timeKey inverts the timestamp so lexical row key order is newest first.
func timeKey(t time.Time) string {
	return fmt.Sprintf("%019d", math.MaxInt64-t.UnixNano())
}

// rowKey orders newest first, then by id descending. The id bytes are
// inverted and hex encoded; the trailing "~" sorts after every hex digit so a
// longer id with the same prefix comes first.
func rowKey(t time.Time, id string) string {
	var b strings.Builder
	b.Grow(len(timeKey(t)) + 2*len(id) + 2)
	b.WriteString(timeKey(t))
	b.WriteByte('_')
	for i := 0; i < len(id); i++ {
		fmt.Fprintf(&b, "%02x", 0xff-id[i])
	}
	b.WriteByte('~')
	return b.String()
}

// odataString quotes a string literal for an OData filter.
func odataString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func odataDouble(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

type filterBuilder []string

func (f *filterBuilder) eq(field, value string) {
	*f = append(*f, field+" eq "+odataString(value))
}

func (f *filterBuilder) location(q domain.Query) {
	if q.Bounds == nil {
		return
	}
	*f = append(*f,
		"Latitude ge "+odataDouble(q.Bounds.Min.Lat()),
		"Latitude le "+odataDouble(q.Bounds.Max.Lat()),
		"Longitude ge "+odataDouble(q.Bounds.Min.Lon()),
		"Longitude le "+odataDouble(q.Bounds.Max.Lon()),
	)
}

// window restricts inverted-time row keys to [since, until).
func (f *filterBuilder) window(q domain.Query) {
	if !q.Since.IsZero() {
		*f = append(*f, "RowKey lt "+odataString(timeKey(q.Since)+"~"))
	}
	if !q.Until.IsZero() {
		*f = append(*f, "RowKey gt "+odataString(timeKey(q.Until)+"~"))
	}
}

// millisWindow restricts an Int64 millisecond property to [since, until).
func (f *filterBuilder) millisWindow(field string, q domain.Query) {
	if !q.Since.IsZero() {
		*f = append(*f, fmt.Sprintf("%s ge %dL", field, q.Since.UnixMilli()))
	}
	if !q.Until.IsZero() {
		*f = append(*f, fmt.Sprintf("%s lt %dL", field, q.Until.UnixMilli()))
	}
}

func (f filterBuilder) String(dataset string) string {
	return strings.Join(append([]string{"PartitionKey eq " + odataString(dataset)}, f...), " and ")
}

const tableTokenPrefix = "t:"

type tableCursor struct {
	PK string `json:"pk"`
	RK string `json:"rk"`
}

func encodeTableToken(pk, rk *string) string {
	if pk == nil || rk == nil {
		return ""
	}
	raw, err := sonic.Marshal(tableCursor{PK: *pk, RK: *rk})
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(append([]byte(tableTokenPrefix), raw...))
}

func decodeTableToken(token string) (*tableCursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, InvalidPageTokenError{Token: token, Err: err}
	}
	s := string(raw)
	if !strings.HasPrefix(s, tableTokenPrefix) {
		return nil, InvalidPageTokenError{Token: token, Err: errors.New("unknown token kind")}
	}
	var c tableCursor
	if err := sonic.UnmarshalString(strings.TrimPrefix(s, tableTokenPrefix), &c); err != nil || c.PK == "" || c.RK == "" {
		return nil, InvalidPageTokenError{Token: token, Err: errors.New("bad cursor")}
	}
	return &c, nil
}

// listPage fetches a single page of entities and decodes each with decode.
func (t *Tables) listPage(ctx context.Context, dataset string, filter filterBuilder, q domain.Query, decode func([]byte) error) (string, error) {
	cursor, err := decodeTableToken(q.PageToken)
	if err != nil {
		return "", err
	}
	f := filter.String(dataset)
	top := int32(q.PageSize())
	opts := &aztables.ListEntitiesOptions{Filter: &f, Top: &top}
	if cursor != nil {
		opts.NextPartitionKey = &cursor.PK
		opts.NextRowKey = &cursor.RK
	}
	pager := t.tables[dataset].NewListEntitiesPager(opts)
	if !pager.More() {
		return "", nil
	}
	resp, err := pager.NextPage(ctx)
	if err != nil {
		return "", err
	}
	for _, e := range resp.Entities {
		if err := decode(e); err != nil {
			return "", err
		}
	}
	return encodeTableToken(resp.NextPartitionKey, resp.NextRowKey), nil
}

type speciesEntity struct {
	aztables.Entity
	ID             string  `json:"ID"`
	ScientificName string  `json:"ScientificName"`
	CommonName     string  `json:"CommonName"`
	Latitude       float64 `json:"Latitude"`
	Longitude      float64 `json:"Longitude"`
	ObservedAt     int64   `json:"ObservedAt,string"`
	Count          int     `json:"Count"`
	DepthM         float64 `json:"DepthM"`
	Source         string  `json:"Source"`
}

func (t *Tables) ListSpecies(ctx context.Context, q domain.Query) ([]domain.SpeciesOccurrence, string, error) {
	var f filterBuilder
	if q.Species != "" {
		f = append(f, "(ScientificName eq "+odataString(q.Species)+" or CommonName eq "+odataString(q.Species)+")")
	}
	f.location(q)
	f.window(q)

	out := []domain.SpeciesOccurrence{}
	next, err := t.listPage(ctx, DatasetSpecies, f, q, func(data []byte) error {
		var ent speciesEntity
		if err := sonic.Unmarshal(data, &ent); err != nil {
			return err
		}
		out = append(out, domain.SpeciesOccurrence{
			ID:             ent.ID,
			ScientificName: ent.ScientificName,
			CommonName:     ent.CommonName,
			Latitude:       ent.Latitude,
			Longitude:      ent.Longitude,
			ObservedAt:     fromMillis(ent.ObservedAt),
			Count:          ent.Count,
			DepthM:         ent.DepthM,
			Source:         ent.Source,
		})
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return out, next, nil
}

type vesselEntity struct {
	aztables.Entity
	Name       string  `json:"Name"`
	VesselType string  `json:"VesselType"`
	Latitude   float64 `json:"Latitude"`
	Longitude  float64 `json:"Longitude"`
	SpeedKnots float64 `json:"SpeedKnots"`
	Heading    float64 `json:"Heading"`
	Status     string  `json:"Status"`
	ReportedAt int64   `json:"ReportedAt,string"`
}

func (t *Tables) ListVessels(ctx context.Context, q domain.Query) ([]domain.VesselPosition, string, error) {
	var f filterBuilder
	if q.VesselID != "" {
		f.eq("RowKey", q.VesselID)
	}
	if q.VesselType != "" {
		f.eq("VesselType", q.VesselType)
	}
	f.location(q)
	f.millisWindow("ReportedAt", q)

	out := []domain.VesselPosition{}
	next, err := t.listPage(ctx, DatasetVessels, f, q, func(data []byte) error {
		var ent vesselEntity
		if err := sonic.Unmarshal(data, &ent); err != nil {
			return err
		}
		out = append(out, domain.VesselPosition{
			VesselID:   ent.RowKey,
			Name:       ent.Name,
			VesselType: ent.VesselType,
			Latitude:   ent.Latitude,
			Longitude:  ent.Longitude,
			SpeedKnots: ent.SpeedKnots,
			Heading:    ent.Heading,
			Status:     ent.Status,
			ReportedAt: fromMillis(ent.ReportedAt),
		})
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return out, next, nil
}

type catchEntity struct {
	aztables.Entity
	ID              string  `json:"ID"`
	VesselID        string  `json:"VesselID"`
	Species         string  `json:"Species"`
	Latitude        float64 `json:"Latitude"`
	Longitude       float64 `json:"Longitude"`
	CatchWeight     float64 `json:"CatchWeight"`
	IndividualCount int     `json:"IndividualCount"`
	GearType        string  `json:"GearType"`
	VesselType      string  `json:"VesselType"`
	FishingDepth    float64 `json:"FishingDepth"`
	CaughtAt        int64   `json:"CaughtAt,string"`
	ReportedBy      string  `json:"ReportedBy"`
	ReceivedAt      int64   `json:"ReceivedAt,string"`
}

func (t *Tables) ListCatchReports(ctx context.Context, q domain.Query) ([]domain.CatchReport, string, error) {
	var f filterBuilder
	if q.Species != "" {
		f.eq("Species", q.Species)
	}
	if q.VesselID != "" {
		f.eq("VesselID", q.VesselID)
	}
	if q.VesselType != "" {
		f.eq("VesselType", q.VesselType)
	}
	if q.ReportedBy != "" {
		f.eq("ReportedBy", q.ReportedBy)
	}
	f.location(q)
	f.window(q)

	out := []domain.CatchReport{}
	next, err := t.listPage(ctx, DatasetCatch, f, q, func(data []byte) error {
		var ent catchEntity
		if err := sonic.Unmarshal(data, &ent); err != nil {
			return err
		}
		out = append(out, domain.CatchReport{
			ID:              ent.ID,
			VesselID:        ent.VesselID,
			Species:         ent.Species,
			Latitude:        ent.Latitude,
			Longitude:       ent.Longitude,
			CatchWeight:     ent.CatchWeight,
			IndividualCount: ent.IndividualCount,
			GearType:        ent.GearType,
			VesselType:      ent.VesselType,
			FishingDepth:    ent.FishingDepth,
			Timestamp:       fromMillis(ent.CaughtAt),
			ReportedBy:      ent.ReportedBy,
			ReceivedAt:      fromMillis(ent.ReceivedAt),
		})
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return out, next, nil
}

type ednaEntity struct {
	aztables.Entity
	SampleID          string   `json:"SampleID"`
	Latitude          float64  `json:"Latitude"`
	Longitude         float64  `json:"Longitude"`
	CollectedAt       int64    `json:"CollectedAt,string"`
	BiodiversityIndex float64  `json:"BiodiversityIndex"`
	SpeciesRichness   int      `json:"SpeciesRichness"`
	GeneticDiversity  float64  `json:"GeneticDiversity"`
	DominantSpecies   string   `json:"DominantSpecies"`
	WaterTempC        *float64 `json:"WaterTempC"`
	Markers           string   `json:"Markers"`
}

func (t *Tables) ListEDNASamples(ctx context.Context, q domain.Query) ([]domain.EDNASample, string, error) {
	var f filterBuilder
	if q.Species != "" {
		f.eq("DominantSpecies", q.Species)
	}
	f.location(q)
	f.window(q)

	out := []domain.EDNASample{}
	next, err := t.listPage(ctx, DatasetEDNA, f, q, func(data []byte) error {
		var ent ednaEntity
		if err := sonic.Unmarshal(data, &ent); err != nil {
			return err
		}
		s := domain.EDNASample{
			SampleID:          ent.SampleID,
			Latitude:          ent.Latitude,
			Longitude:         ent.Longitude,
			CollectedAt:       fromMillis(ent.CollectedAt),
			BiodiversityIndex: ent.BiodiversityIndex,
			SpeciesRichness:   ent.SpeciesRichness,
			GeneticDiversity:  ent.GeneticDiversity,
			DominantSpecies:   ent.DominantSpecies,
			WaterTempC:        ent.WaterTempC,
		}
		if ent.Markers != "" {
			if err := sonic.UnmarshalString(ent.Markers, &s.Markers); err != nil {
				return fmt.Errorf("decode markers for %s: %w", ent.SampleID, err)
			}
		}
		out = append(out, s)
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return out, next, nil
}

func speciesProps(s domain.SpeciesOccurrence) entityProps {
	return newEntity(DatasetSpecies, rowKey(s.ObservedAt, s.ID)).
		str("ID", s.ID).
		str("ScientificName", s.ScientificName).
		str("CommonName", s.CommonName).
		double("Latitude", s.Latitude).
		double("Longitude", s.Longitude).
		millis("ObservedAt", s.ObservedAt).
		int32("Count", s.Count).
		double("DepthM", s.DepthM).
		str("Source", s.Source)
}

func vesselProps(v domain.VesselPosition) entityProps {
	return newEntity(DatasetVessels, v.VesselID).
		str("Name", v.Name).
		str("VesselType", v.VesselType).
		double("Latitude", v.Latitude).
		double("Longitude", v.Longitude).
		double("SpeedKnots", v.SpeedKnots).
		double("Heading", v.Heading).
		str("Status", v.Status).
		millis("ReportedAt", v.ReportedAt)
}

func catchProps(r domain.CatchReport) entityProps {
	return newEntity(DatasetCatch, rowKey(r.Timestamp, r.ID)).
		str("ID", r.ID).
		str("VesselID", r.VesselID).
		str("Species", r.Species).
		double("Latitude", r.Latitude).
		double("Longitude", r.Longitude).
		double("CatchWeight", r.CatchWeight).
		int32("IndividualCount", r.IndividualCount).
		str("GearType", r.GearType).
		str("VesselType", r.VesselType).
		double("FishingDepth", r.FishingDepth).
		millis("CaughtAt", r.Timestamp).
		str("ReportedBy", r.ReportedBy).
		millis("ReceivedAt", r.ReceivedAt)
}

func ednaProps(s domain.EDNASample) (entityProps, error) {
	markers := s.Markers
	if markers == nil {
		markers = []domain.MarkerResult{}
	}
	encoded, err := sonic.MarshalString(markers)
	if err != nil {
		return nil, fmt.Errorf("encode markers for %s: %w", s.SampleID, err)
	}
	p := newEntity(DatasetEDNA, rowKey(s.CollectedAt, s.SampleID)).
		str("SampleID", s.SampleID).
		double("Latitude", s.Latitude).
		double("Longitude", s.Longitude).
		millis("CollectedAt", s.CollectedAt).
		double("BiodiversityIndex", s.BiodiversityIndex).
		int32("SpeciesRichness", s.SpeciesRichness).
		double("GeneticDiversity", s.GeneticDiversity).
		str("DominantSpecies", s.DominantSpecies).
		str("Markers", encoded)
	if s.WaterTempC != nil {
		p.double("WaterTempC", *s.WaterTempC)
	}
	return p, nil
}

func (t *Tables) upsert(ctx context.Context, dataset string, p entityProps) error {
	payload, err := sonic.Marshal(p)
	if err == nil {
		_, err = t.tables[dataset].UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	}
	return err
}

func (t *Tables) SaveCatchReport(ctx context.Context, r domain.CatchReport) error {
	return t.upsert(ctx, DatasetCatch, catchProps(r))
}

func (t *Tables) UpsertVessel(ctx context.Context, v domain.VesselPosition) error {
	return t.upsert(ctx, DatasetVessels, vesselProps(v))
}

func (t *Tables) SaveEDNASample(ctx context.Context, s domain.EDNASample) error {
	exists, err := t.ednaExists(ctx, s.SampleID)
	if err != nil {
		return err
	}
	if exists {
		return ErrConflict
	}
	p, err := ednaProps(s)
	if err != nil {
		return err
	}
	payload, err := sonic.Marshal(p)
	if err != nil {
		return err
	}
	if _, err := t.tables[DatasetEDNA].AddEntity(ctx, payload, nil); err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusConflict {
			return ErrConflict
		}
		return err
	}
	return nil
}

const seedConcurrency = 16

// Seed upserts a generated dataset. Rerunning it with the same dataset
// rewrites the same rows.
func (t *Tables) Seed(ctx context.Context, ds mockdata.Dataset) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(seedConcurrency)
	for _, s := range ds.Species {
		s := s
		g.Go(func() error { return t.upsert(ctx, DatasetSpecies, speciesProps(s)) })
	}
	for _, v := range ds.Vessels {
		v := v
		g.Go(func() error { return t.upsert(ctx, DatasetVessels, vesselProps(v)) })
	}
	for _, r := range ds.CatchReports {
		r := r
		g.Go(func() error { return t.upsert(ctx, DatasetCatch, catchProps(r)) })
	}
	for _, e := range ds.EDNASamples {
		e := e
		g.Go(func() error {
			p, err := ednaProps(e)
			if err != nil {
				return err
			}
			return t.upsert(ctx, DatasetEDNA, p)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("seed tables: %w", err)
	}
	return nil
}

func (t *Tables) ednaExists(ctx context.Context, sampleID string) (bool, error) {
	f := filterBuilder{}
	f.eq("SampleID", sampleID)
	filter := f.String(DatasetEDNA)
	top := int32(1)
	sel := "RowKey"
	pager := t.tables[DatasetEDNA].NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter, Top: &top, Select: &sel})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return false, err
		}
		if len(resp.Entities) > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (t *Tables) Ping(ctx context.Context) error {
	if t == nil || t.service == nil {
		return errors.New("store not initialized")
	}
	top := int32(1)
	pager := t.service.NewListTablesPager(&aztables.ListTablesOptions{Top: &top})
	if !pager.More() {
		return nil
	}
	_, err := pager.NextPage(ctx)
	return err
}
