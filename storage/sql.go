package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/eddielth/air-monitor/airquality"
	"github.com/eddielth/air-monitor/logger"
	"github.com/eddielth/air-monitor/metrics"
)

// dialect captures what differs between the supported SQL databases
type dialect struct {
	name              string
	driver            string
	schema            []string
	numbered          bool // $1 placeholders instead of ?
	isUniqueViolation func(err error) bool
}

// bind rewrites ? placeholders for databases that number them
func (d *dialect) bind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStorage stores the append logs in a relational database
type SQLStorage struct {
	db      *sql.DB
	dialect *dialect
}

func newSQLStorage(db *sql.DB, d *dialect) *SQLStorage {
	return &SQLStorage{db: db, dialect: d}
}

func openSQLStorage(d *dialect, dsn string) (*SQLStorage, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", d.name, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", d.name, err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Minute * 5)

	s := newSQLStorage(db, d)
	if err := s.InitDatabase(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("%s storage initialized", d.name)
	return s, nil
}

// InitDatabase creates the tables and indexes if missing
func (s *SQLStorage) InitDatabase() error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init %s schema: %w", s.dialect.name, err)
		}
	}
	return nil
}

func observe(operation string) func() {
	start := time.Now()
	return func() {
		metrics.DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// SaveReading implements Store
func (s *SQLStorage) SaveReading(ctx context.Context, r airquality.SensorSample) error {
	defer observe("save_reading")()

	query := s.dialect.bind(`INSERT INTO sensor_readings (device, co2, co, dust, ts) VALUES (?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, r.Device, r.CO2, r.CO, r.Dust, r.Timestamp.UTC()); err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

// LatestReading implements Store
func (s *SQLStorage) LatestReading(ctx context.Context) (*airquality.SensorSample, error) {
	defer observe("latest_reading")()

	query := `SELECT device, co2, co, dust, ts FROM sensor_readings ORDER BY ts DESC, id DESC LIMIT 1`
	var r airquality.SensorSample
	err := s.db.QueryRowContext(ctx, query).Scan(&r.Device, &r.CO2, &r.CO, &r.Dust, &r.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest reading: %w", err)
	}
	r.Timestamp = r.Timestamp.UTC()
	return &r, nil
}

// ReadingHistory implements Store
func (s *SQLStorage) ReadingHistory(ctx context.Context, limit int) ([]airquality.SensorSample, error) {
	defer observe("reading_history")()

	query := s.dialect.bind(`SELECT device, co2, co, dust, ts FROM sensor_readings ORDER BY ts DESC, id DESC LIMIT ?`)
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query reading history: %w", err)
	}
	defer rows.Close()

	var out []airquality.SensorSample
	for rows.Next() {
		var r airquality.SensorSample
		if err := rows.Scan(&r.Device, &r.CO2, &r.CO, &r.Dust, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		r.Timestamp = r.Timestamp.UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readings: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// CountReadings implements Store
func (s *SQLStorage) CountReadings(ctx context.Context) (int64, error) {
	defer observe("count_readings")()

	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sensor_readings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count readings: %w", err)
	}
	return n, nil
}

// SaveSettings implements Store
func (s *SQLStorage) SaveSettings(ctx context.Context, th airquality.ThresholdConfig) error {
	defer observe("save_settings")()

	updatedAt := th.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	query := s.dialect.bind(`INSERT INTO settings (mode, threshold_co2_moderate, threshold_co2_poor, threshold_co_moderate, threshold_co_poor, threshold_dust_moderate, threshold_dust_poor, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query, string(th.Mode),
		th.CO2Moderate, th.CO2Poor, th.COModerate, th.COPoor, th.DustModerate, th.DustPoor, updatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert settings: %w", err)
	}
	return nil
}

// LatestSettings implements Store
func (s *SQLStorage) LatestSettings(ctx context.Context) (*airquality.ThresholdConfig, error) {
	defer observe("latest_settings")()

	query := `SELECT mode, threshold_co2_moderate, threshold_co2_poor, threshold_co_moderate, threshold_co_poor, threshold_dust_moderate, threshold_dust_poor, updated_at FROM settings ORDER BY updated_at DESC, id DESC LIMIT 1`
	var th airquality.ThresholdConfig
	var mode string
	err := s.db.QueryRowContext(ctx, query).Scan(&mode,
		&th.CO2Moderate, &th.CO2Poor, &th.COModerate, &th.COPoor, &th.DustModerate, &th.DustPoor, &th.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest settings: %w", err)
	}
	th.Mode = airquality.ParseMode(mode)
	th.UpdatedAt = th.UpdatedAt.UTC()
	return &th, nil
}

// LatestFanState implements Store
func (s *SQLStorage) LatestFanState(ctx context.Context) (*airquality.ActuatorState, error) {
	defer observe("latest_fan_state")()

	// seq follows the prev_id chain; updated_at does not if the clock steps back
	query := `SELECT id, prev_id, desired, source, updated_at FROM fan_state ORDER BY seq DESC LIMIT 1`
	var st airquality.ActuatorState
	var source string
	err := s.db.QueryRowContext(ctx, query).Scan(&st.ID, &st.PrevID, &st.Desired, &source, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest fan state: %w", err)
	}
	st.Source = airquality.Source(source)
	st.UpdatedAt = st.UpdatedAt.UTC()
	return &st, nil
}

// AppendFanState implements Store. prev_id is UNIQUE, so a record can have
// only one successor; a second writer that read the same predecessor fails.
func (s *SQLStorage) AppendFanState(ctx context.Context, next airquality.ActuatorState) error {
	defer observe("append_fan_state")()

	query := s.dialect.bind(`INSERT INTO fan_state (id, prev_id, desired, source, updated_at) VALUES (?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query, next.ID, next.PrevID, next.Desired, string(next.Source), next.UpdatedAt.UTC())
	if err != nil {
		if s.dialect.isUniqueViolation(err) {
			return ErrStaleState
		}
		return fmt.Errorf("insert fan state: %w", err)
	}
	return nil
}

// Ping implements Store
func (s *SQLStorage) Ping(ctx context.Context) error {
	defer observe("ping")()
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLStorage) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close %s database: %w", s.dialect.name, err)
	}
	logger.Info("%s database connection closed", s.dialect.name)
	return nil
}
