package sources

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "modernc.org/sqlite"

	"github.com/HatiCode/dosimap/pkg/calibration"
)

// DefaultQuery reads the samples table in insertion order.
const DefaultQuery = "SELECT duration, cumulative_time, measurement FROM samples ORDER BY rowid"

// SQLite reads samples from a SQLite database. The query must return three
// numeric columns: duration, cumulative time and measurement.
type SQLite struct {
	// Path is the database file (required).
	Path string

	// Query defaults to DefaultQuery.
	Query string
}

func (s *SQLite) Name() string { return "sqlite" }

// Load implements Source.
func (s *SQLite) Load(ctx context.Context) (*calibration.TrainingSet, error) {
	// Opening a missing file would create an empty database.
	if _, err := os.Stat(s.Path); err != nil {
		return nil, fmt.Errorf("open %s: %w", s.Path, err)
	}
	db, err := sql.Open("sqlite", s.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.Path, err)
	}
	defer db.Close()

	query := s.Query
	if query == "" {
		query = DefaultQuery
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.Path, err)
	}
	defer rows.Close()

	var samples []calibration.Sample
	for rows.Next() {
		var smp calibration.Sample
		if err := rows.Scan(&smp.Duration, &smp.CumulativeTime, &smp.Measurement); err != nil {
			return nil, fmt.Errorf("scan row %d: %w", len(samples), err)
		}
		samples = append(samples, smp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}

	return calibration.New(samples)
}
