package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/db"
)

// ErrUnknownLayer is returned for layers without coverage statistics.
var ErrUnknownLayer = errors.New("no coverage statistics for layer")

// CoverageKey is the key of the station service coverage overlay statistics.
const CoverageKey = "COVERAGE"

// Drive-time bands, station scenario periods and their chart labels.
var (
	bandLabels = []string{"0–4", "4–6", "6+"}
	periods    = []struct {
		key, short, label, color, light, dark string
	}{
		{"21_24", "21–24", "21–24 Stations", "#6ec1ff", "#6ec1ff", "#1e90ff"},
		{"24_27", "24–27", "24–27 Stations", "#2ecc71", "#7fe0a3", "#2ecc71"},
	}
)

var coverageSchema = []string{
	`CREATE TABLE IF NOT EXISTS drive_time_coverage (
		layer_key VARCHAR NOT NULL,
		period    VARCHAR NOT NULL,
		band      INTEGER NOT NULL,
		pct       DOUBLE  NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS severity_coverage (
		layer_key VARCHAR NOT NULL,
		period    VARCHAR NOT NULL,
		severity  VARCHAR NOT NULL,
		band      INTEGER NOT NULL,
		pct       DOUBLE  NOT NULL
	)`,
}

// driveTimeSeed is the percentage of incidents reached per drive-time band.
var driveTimeSeed = map[string]map[string][3]float64{
	CoverageKey:               {"21_24": {10.8, 7.14, 5.68}, "24_27": {9.67, 6.41, 3.8}},
	"Incidents Heatmap":       {"21_24": {13.88, 7.36, 7.02}, "24_27": {9.43, 7.59, 4.51}},
	"Incidents Response Time": {"21_24": {17.93, 5.72, 5.12}, "24_27": {15.38, 5.38, 3.34}},
	"Population Density":      {"21_24": {13.05, 7.29, 8.06}, "24_27": {12.72, 8.37, 6.1}},
	"CRITIC":                  {"21_24": {12.82, 7.17, 6.56}, "24_27": {11, 7.28, 4.45}},
	"RF":                      {"21_24": {12.3, 7.4, 8.04}, "24_27": {8.08, 7.94, 4.75}},
	"XGB":                     {"21_24": {11.78, 7.48, 7.53}, "24_27": {8.6, 7.69, 4.41}},
}

// severitySeed splits composite model coverage into High and Very High risk.
var severitySeed = map[string]map[string]map[string][3]float64{
	"CRITIC": {
		"21_24": {"High": {12.66, 8.81, 6.7}, "VeryHigh": {20.74, 6.72, 9.13}},
		"24_27": {"High": {13.53, 8.85, 5.07}, "VeryHigh": {13.62, 8.33, 6.46}},
	},
	"RF": {
		"21_24": {"High": {13.44, 8.76, 5.4}, "VeryHigh": {14.26, 7.2, 10.61}},
		"24_27": {"High": {9.0, 6.6, 5.34}, "VeryHigh": {5.5, 9.61, 4.96}},
	},
	"XGB": {
		"21_24": {"High": {14.98, 8.2, 6.84}, "VeryHigh": {13.11, 8.48, 10.66}},
		"24_27": {"High": {9.21, 7.5, 4.91}, "VeryHigh": {5.21, 9.11, 4.5}},
	},
}

var layerKeys = map[string]string{
	"CRITIC Composite":        "CRITIC",
	"Random Forest Composite": "RF",
	"XGBoost Composite":       "XGB",
	"Incidents Heatmap":       "Incidents Heatmap",
	"Incidents Response Time": "Incidents Response Time",
	"Population Density":      "Population Density",
	"Service Coverage":        CoverageKey,
	CoverageKey:               CoverageKey,
}

var keyTitles = map[string]string{
	"CRITIC": "CRITIC",
	"RF":     "Random Forest",
	"XGB":    "XGBoost",
}

// LayerKey maps a layer name (or a statistics key) to its statistics key.
func LayerKey(layer string) (string, bool) {
	if k, ok := layerKeys[layer]; ok {
		return k, true
	}
	if _, ok := driveTimeSeed[layer]; ok {
		return layer, true
	}
	return "", false
}

// IsCompositeModel reports whether a key belongs to a composite risk model.
func IsCompositeModel(key string) bool {
	_, ok := severitySeed[key]
	return ok
}

func keyTitle(key string) string {
	if t, ok := keyTitles[key]; ok {
		return t
	}
	return key
}

// CoverageService serves drive-time coverage statistics from DuckDB.
type CoverageService struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewCoverageService creates the schema and seeds it when empty.
func NewCoverageService(ctx context.Context, conn *sql.DB, logger *slog.Logger) (*CoverageService, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &CoverageService{db: conn, logger: logger}
	if err := db.Migrate(ctx, conn, coverageSchema...); err != nil {
		return nil, err
	}
	if err := s.seed(ctx); err != nil {
		return nil, fmt.Errorf("seed coverage: %w", err)
	}
	return s, nil
}

func (s *CoverageService) seed(ctx context.Context) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM drive_time_coverage`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows := 0
	for key, byPeriod := range driveTimeSeed {
		for period, pcts := range byPeriod {
			for band, pct := range pcts {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO drive_time_coverage VALUES (?, ?, ?, ?)`, key, period, band, pct); err != nil {
					return err
				}
				rows++
			}
		}
	}
	for key, byPeriod := range severitySeed {
		for period, bySeverity := range byPeriod {
			for severity, pcts := range bySeverity {
				for band, pct := range pcts {
					if _, err := tx.ExecContext(ctx,
						`INSERT INTO severity_coverage VALUES (?, ?, ?, ?, ?)`, key, period, severity, band, pct); err != nil {
						return err
					}
					rows++
				}
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Info("coverage statistics seeded", "rows", rows)
	return nil
}

// Keys lists the statistics keys present in the database.
func (s *CoverageService) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT layer_key FROM drive_time_coverage ORDER BY layer_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Chart returns the chart set of a layer: the drive-time chart, plus one High
// vs Very High chart per period for composite models.
func (s *CoverageService) Chart(ctx context.Context, layer string) (CoverageCharts, error) {
	key, ok := LayerKey(layer)
	if !ok {
		return CoverageCharts{}, fmt.Errorf("%w: %q", ErrUnknownLayer, layer)
	}

	drive, err := s.series(ctx, `SELECT period, band, pct FROM drive_time_coverage WHERE layer_key = ?`, key)
	if err != nil {
		return CoverageCharts{}, err
	}
	if len(drive) == 0 {
		return CoverageCharts{}, fmt.Errorf("%w: %q", ErrUnknownLayer, layer)
	}

	title := keyTitle(key) + " – Drive-Time Coverage (minutes)"
	if key == CoverageKey {
		title = "Service Coverage Drive-Time"
	}
	out := CoverageCharts{Layer: layer, Key: key}
	driveChart := Chart{ID: "drive_time", Title: title, Labels: bandLabels}
	for _, p := range periods {
		driveChart.Datasets = append(driveChart.Datasets, ChartDataset{Label: p.label, Data: drive[p.key], Color: p.color})
	}
	out.Charts = append(out.Charts, driveChart)

	if !IsCompositeModel(key) {
		return out, nil
	}
	for _, p := range periods {
		sev, err := s.series(ctx,
			`SELECT severity, band, pct FROM severity_coverage WHERE layer_key = ? AND period = ?`, key, p.key)
		if err != nil {
			return CoverageCharts{}, err
		}
		out.Charts = append(out.Charts, Chart{
			ID:     "severity_" + p.key,
			Title:  fmt.Sprintf("%s – High vs Very High (%s)", keyTitle(key), p.short),
			Labels: bandLabels,
			Datasets: []ChartDataset{
				{Label: "High", Data: sev["High"], Color: p.light},
				{Label: "Very High", Data: sev["VeryHigh"], Color: p.dark},
			},
		})
	}
	return out, nil
}

// series groups (group, band, pct) rows into per-group band arrays.
func (s *CoverageService) series(ctx context.Context, query string, args ...any) (map[string][]float64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query coverage: %w", err)
	}
	defer rows.Close()

	out := map[string][]float64{}
	for rows.Next() {
		var (
			group string
			band  int
			pct   float64
		)
		if err := rows.Scan(&group, &band, &pct); err != nil {
			return nil, fmt.Errorf("scan coverage: %w", err)
		}
		if band < 0 || band >= len(bandLabels) {
			continue
		}
		if out[group] == nil {
			out[group] = make([]float64, len(bandLabels))
		}
		out[group][band] = pct
	}
	return out, rows.Err()
}
