package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	_ "modernc.org/sqlite"

	"ocean-platform/ocean-api/domain"
	"ocean-platform/ocean-api/mockdata"
)

// SQLite stores datasets in a local database file.
type SQLite struct {
	db           *sql.DB
	upsertCatch  *sql.Stmt
	insertEDNA   *sql.Stmt
	upsertVessel *sql.Stmt
}

// OpenSQLite opens (creating if needed) the database at dbPath.
func OpenSQLite(dbPath string) (*SQLite, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db path: %w", err)
		}
	}

	// busy_timeout waits on locks, WAL lets readers run alongside the writer
	// and NORMAL sync is safe with WAL.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", filepath.Clean(dbPath))
	if dbPath == ":memory:" {
		dsn = "file::memory:?_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLite{db: db}
	stmts := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.upsertCatch, `
			INSERT OR REPLACE INTO catch_reports (id, vessel_id, species, latitude, longitude, catch_weight,
				individual_count, gear_type, vessel_type, fishing_depth, caught_at, reported_by, received_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`},
		{&s.insertEDNA, `
			INSERT INTO edna_samples (sample_id, latitude, longitude, collected_at, biodiversity_index,
				species_richness, genetic_diversity, dominant_species, water_temp_c, markers)
			VALUES (?,?,?,?,?,?,?,?,?,?)`},
		{&s.upsertVessel, `
			INSERT OR REPLACE INTO vessels (vessel_id, name, vessel_type, latitude, longitude, speed_knots,
				heading, status, reported_at)
			VALUES (?,?,?,?,?,?,?,?,?)`},
	}
	for _, st := range stmts {
		prepared, err := db.Prepare(st.query)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		*st.dst = prepared
	}
	return s, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS species (
			id              TEXT PRIMARY KEY,
			scientific_name TEXT    NOT NULL,
			common_name     TEXT    NOT NULL DEFAULT '',
			latitude        REAL    NOT NULL,
			longitude       REAL    NOT NULL,
			observed_at     INTEGER NOT NULL,
			count           INTEGER NOT NULL,
			depth_m         REAL    NOT NULL,
			source          TEXT    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_species_time ON species (observed_at DESC, id DESC);

		CREATE TABLE IF NOT EXISTS vessels (
			vessel_id   TEXT PRIMARY KEY,
			name        TEXT    NOT NULL,
			vessel_type TEXT    NOT NULL,
			latitude    REAL    NOT NULL,
			longitude   REAL    NOT NULL,
			speed_knots REAL    NOT NULL,
			heading     REAL    NOT NULL,
			status      TEXT    NOT NULL,
			reported_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS catch_reports (
			id               TEXT PRIMARY KEY,
			vessel_id        TEXT    NOT NULL DEFAULT '',
			species          TEXT    NOT NULL,
			latitude         REAL    NOT NULL,
			longitude        REAL    NOT NULL,
			catch_weight     REAL    NOT NULL,
			individual_count INTEGER NOT NULL,
			gear_type        TEXT    NOT NULL,
			vessel_type      TEXT    NOT NULL,
			fishing_depth    REAL    NOT NULL,
			caught_at        INTEGER NOT NULL,
			reported_by      TEXT    NOT NULL DEFAULT '',
			received_at      INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_catch_time ON catch_reports (caught_at DESC, id DESC);
		CREATE INDEX IF NOT EXISTS idx_catch_user ON catch_reports (reported_by, caught_at DESC);

		CREATE TABLE IF NOT EXISTS edna_samples (
			sample_id          TEXT PRIMARY KEY,
			latitude           REAL    NOT NULL,
			longitude          REAL    NOT NULL,
			collected_at       INTEGER NOT NULL,
			biodiversity_index REAL    NOT NULL,
			species_richness   INTEGER NOT NULL,
			genetic_diversity  REAL    NOT NULL,
			dominant_species   TEXT    NOT NULL DEFAULT '',
			water_temp_c       REAL,
			markers            TEXT    NOT NULL DEFAULT '[]'
		);
		CREATE INDEX IF NOT EXISTS idx_edna_time ON edna_samples (collected_at DESC, sample_id DESC);
	`)
	return err
}

func (s *SQLite) Close() error {
	for _, st := range []*sql.Stmt{s.upsertCatch, s.insertEDNA, s.upsertVessel} {
		if st != nil {
			_ = st.Close()
		}
	}
	return s.db.Close()
}

// Empty reports whether no species records have been stored yet.
func (s *SQLite) Empty(ctx context.Context) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM species`).Scan(&n); err != nil {
		return false, err
	}
	return n == 0, nil
}

// Seed writes a generated dataset in one transaction.
func (s *SQLite) Seed(ctx context.Context, ds mockdata.Dataset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, sp := range ds.Species {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO species (id, scientific_name, common_name, latitude, longitude, observed_at, count, depth_m, source)
			VALUES (?,?,?,?,?,?,?,?,?)`,
			sp.ID, sp.ScientificName, sp.CommonName, sp.Latitude, sp.Longitude, toMillis(sp.ObservedAt), sp.Count, sp.DepthM, sp.Source,
		); err != nil {
			return fmt.Errorf("seed species: %w", err)
		}
	}
	for _, v := range ds.Vessels {
		if _, err := tx.StmtContext(ctx, s.upsertVessel).ExecContext(ctx, vesselArgs(v)...); err != nil {
			return fmt.Errorf("seed vessels: %w", err)
		}
	}
	for _, r := range ds.CatchReports {
		if _, err := tx.StmtContext(ctx, s.upsertCatch).ExecContext(ctx, catchArgs(r)...); err != nil {
			return fmt.Errorf("seed catch reports: %w", err)
		}
	}
	for _, e := range ds.EDNASamples {
		args, err := ednaArgs(e)
		if err != nil {
			return err
		}
		if _, err := tx.StmtContext(ctx, s.insertEDNA).ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("seed edna samples: %w", err)
		}
	}
	return tx.Commit()
}

// whereBuilder accumulates SQL predicates and their arguments.
type whereBuilder struct {
	clauses []string
	args    []any
}

func (w *whereBuilder) add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func (w *whereBuilder) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (w *whereBuilder) location(q domain.Query) {
	if q.Bounds == nil {
		return
	}
	w.add("latitude BETWEEN ? AND ?", q.Bounds.Min.Lat(), q.Bounds.Max.Lat())
	w.add("longitude BETWEEN ? AND ?", q.Bounds.Min.Lon(), q.Bounds.Max.Lon())
}

func (w *whereBuilder) window(column string, q domain.Query) {
	if !q.Since.IsZero() {
		w.add(column+" >= ?", toMillis(q.Since))
	}
	if !q.Until.IsZero() {
		w.add(column+" < ?", toMillis(q.Until))
	}
}

// pageQuery runs a filtered listing, fetching one extra row to learn whether
// another page exists.
func (s *SQLite) pageQuery(ctx context.Context, base string, w *whereBuilder, order string, q domain.Query, scan func(*sql.Rows) error) (string, error) {
	offset, err := decodeOffsetToken(q.PageToken)
	if err != nil {
		return "", err
	}
	limit := q.PageSize()
	query := base + w.String() + " ORDER BY " + order + " LIMIT ? OFFSET ?"
	args := append(append([]any(nil), w.args...), limit+1, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	n := 0
	next := ""
	for rows.Next() {
		if n == limit {
			next = encodeOffsetToken(offset + limit)
			break
		}
		if err := scan(rows); err != nil {
			return "", err
		}
		n++
	}
	return next, rows.Err()
}

func (s *SQLite) ListSpecies(ctx context.Context, q domain.Query) ([]domain.SpeciesOccurrence, string, error) {
	w := &whereBuilder{}
	if q.Species != "" {
		w.add("(scientific_name = ? OR common_name = ?)", q.Species, q.Species)
	}
	w.location(q)
	w.window("observed_at", q)

	out := []domain.SpeciesOccurrence{}
	next, err := s.pageQuery(ctx,
		`SELECT id, scientific_name, common_name, latitude, longitude, observed_at, count, depth_m, source FROM species`,
		w, "observed_at DESC, id DESC", q,
		func(rows *sql.Rows) error {
			var (
				sp       domain.SpeciesOccurrence
				observed int64
			)
			if err := rows.Scan(&sp.ID, &sp.ScientificName, &sp.CommonName, &sp.Latitude, &sp.Longitude, &observed, &sp.Count, &sp.DepthM, &sp.Source); err != nil {
				return err
			}
			sp.ObservedAt = fromMillis(observed)
			out = append(out, sp)
			return nil
		})
	if err != nil {
		return nil, "", err
	}
	return out, next, nil
}

func (s *SQLite) ListVessels(ctx context.Context, q domain.Query) ([]domain.VesselPosition, string, error) {
	w := &whereBuilder{}
	if q.VesselID != "" {
		w.add("vessel_id = ?", q.VesselID)
	}
	if q.VesselType != "" {
		w.add("vessel_type = ?", q.VesselType)
	}
	w.location(q)
	w.window("reported_at", q)

	out := []domain.VesselPosition{}
	next, err := s.pageQuery(ctx,
		`SELECT vessel_id, name, vessel_type, latitude, longitude, speed_knots, heading, status, reported_at FROM vessels`,
		w, "vessel_id ASC", q,
		func(rows *sql.Rows) error {
			var (
				v        domain.VesselPosition
				reported int64
			)
			if err := rows.Scan(&v.VesselID, &v.Name, &v.VesselType, &v.Latitude, &v.Longitude, &v.SpeedKnots, &v.Heading, &v.Status, &reported); err != nil {
				return err
			}
			v.ReportedAt = fromMillis(reported)
			out = append(out, v)
			return nil
		})
	if err != nil {
		return nil, "", err
	}
	return out, next, nil
}

func (s *SQLite) ListCatchReports(ctx context.Context, q domain.Query) ([]domain.CatchReport, string, error) {
	w := &whereBuilder{}
	if q.Species != "" {
		w.add("species = ?", q.Species)
	}
	if q.VesselID != "" {
		w.add("vessel_id = ?", q.VesselID)
	}
	if q.VesselType != "" {
		w.add("vessel_type = ?", q.VesselType)
	}
	if q.ReportedBy != "" {
		w.add("reported_by = ?", q.ReportedBy)
	}
	w.location(q)
	w.window("caught_at", q)

	out := []domain.CatchReport{}
	next, err := s.pageQuery(ctx,
		`SELECT id, vessel_id, species, latitude, longitude, catch_weight, individual_count, gear_type, vessel_type,
			fishing_depth, caught_at, reported_by, received_at FROM catch_reports`,
		w, "caught_at DESC, id DESC", q,
		func(rows *sql.Rows) error {
			var (
				r                domain.CatchReport
				caught, received int64
			)
			if err := rows.Scan(&r.ID, &r.VesselID, &r.Species, &r.Latitude, &r.Longitude, &r.CatchWeight, &r.IndividualCount,
				&r.GearType, &r.VesselType, &r.FishingDepth, &caught, &r.ReportedBy, &received); err != nil {
				return err
			}
			r.Timestamp = fromMillis(caught)
			r.ReceivedAt = fromMillis(received)
			out = append(out, r)
			return nil
		})
	if err != nil {
		return nil, "", err
	}
	return out, next, nil
}

func (s *SQLite) ListEDNASamples(ctx context.Context, q domain.Query) ([]domain.EDNASample, string, error) {
	w := &whereBuilder{}
	if q.Species != "" {
		w.add("dominant_species = ?", q.Species)
	}
	w.location(q)
	w.window("collected_at", q)

	out := []domain.EDNASample{}
	next, err := s.pageQuery(ctx,
		`SELECT sample_id, latitude, longitude, collected_at, biodiversity_index, species_richness, genetic_diversity,
			dominant_species, water_temp_c, markers FROM edna_samples`,
		w, "collected_at DESC, sample_id DESC", q,
		func(rows *sql.Rows) error {
			var (
				e         domain.EDNASample
				collected int64
				temp      sql.NullFloat64
				markers   string
			)
			if err := rows.Scan(&e.SampleID, &e.Latitude, &e.Longitude, &collected, &e.BiodiversityIndex, &e.SpeciesRichness,
				&e.GeneticDiversity, &e.DominantSpecies, &temp, &markers); err != nil {
				return err
			}
			e.CollectedAt = fromMillis(collected)
			if temp.Valid {
				v := temp.Float64
				e.WaterTempC = &v
			}
			if err := sonic.UnmarshalString(markers, &e.Markers); err != nil {
				return fmt.Errorf("decode markers for %s: %w", e.SampleID, err)
			}
			out = append(out, e)
			return nil
		})
	if err != nil {
		return nil, "", err
	}
	return out, next, nil
}

func (s *SQLite) SaveCatchReport(ctx context.Context, r domain.CatchReport) error {
	_, err := s.upsertCatch.ExecContext(ctx, catchArgs(r)...)
	return err
}

func (s *SQLite) SaveEDNASample(ctx context.Context, e domain.EDNASample) error {
	args, err := ednaArgs(e)
	if err != nil {
		return err
	}
	if _, err := s.insertEDNA.ExecContext(ctx, args...); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *SQLite) UpsertVessel(ctx context.Context, v domain.VesselPosition) error {
	_, err := s.upsertVessel.ExecContext(ctx, vesselArgs(v)...)
	return err
}

func (s *SQLite) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	return s.db.PingContext(ctx)
}

func catchArgs(r domain.CatchReport) []any {
	return []any{
		r.ID, r.VesselID, r.Species, r.Latitude, r.Longitude, r.CatchWeight, r.IndividualCount,
		r.GearType, r.VesselType, r.FishingDepth, toMillis(r.Timestamp), r.ReportedBy, toMillis(r.ReceivedAt),
	}
}

func vesselArgs(v domain.VesselPosition) []any {
	return []any{
		v.VesselID, v.Name, v.VesselType, v.Latitude, v.Longitude, v.SpeedKnots, v.Heading, v.Status, toMillis(v.ReportedAt),
	}
}

func ednaArgs(e domain.EDNASample) ([]any, error) {
	markers := e.Markers
	if markers == nil {
		markers = []domain.MarkerResult{}
	}
	encoded, err := sonic.MarshalString(markers)
	if err != nil {
		return nil, fmt.Errorf("encode markers for %s: %w", e.SampleID, err)
	}
	var temp any
	if e.WaterTempC != nil {
		temp = *e.WaterTempC
	}
	return []any{
		e.SampleID, e.Latitude, e.Longitude, toMillis(e.CollectedAt), e.BiodiversityIndex, e.SpeciesRichness,
		e.GeneticDiversity, e.DominantSpecies, temp, encoded,
	}, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
