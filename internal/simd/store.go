// Package simd provides read access to Scottish Index of Multiple
// Deprivation statistics and the agent tools built on them.
package simd

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
)

// Record is one row of the statistics table. Rank 1 is the most
// deprived neighborhood in Scotland.
type Record struct {
	Rank             int    `json:"rank"`
	Neighborhood     string `json:"neighborhood"`
	IntermediateZone string `json:"intermediate_zone"`
	CouncilArea      string `json:"council_area"`
}

// ZoneRanking is a per-intermediate-zone aggregate. Ranks are always
// aggregated per zone, never per raw record, so that zones containing
// several neighborhoods are not counted more than once.
type ZoneRanking struct {
	IntermediateZone string `json:"intermediate_zone"`
	CouncilArea      string `json:"council_area"`
	Rank             int    `json:"ranking"`
}

// Store manages the statistics table. Query paths never mutate it,
// so a single Store is safe for concurrent readers.
type Store struct {
	db *sql.DB
}

// Open creates a store backed by the SQLite file at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// OpenWithDB creates a store using an existing database connection.
func OpenWithDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS simd_stats (
			rank INTEGER NOT NULL,
			neighborhood TEXT NOT NULL,
			intermediate_zone TEXT NOT NULL,
			council_area TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_simd_council ON simd_stats(council_area);
		CREATE INDEX IF NOT EXISTS idx_simd_zone ON simd_stats(intermediate_zone);
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Seed replaces the table contents with the given records inside a
// single transaction. Used only by the offline setup path; query
// paths treat the table as read-only.
func (s *Store) Seed(records []Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM simd_stats`); err != nil {
		return fmt.Errorf("clear table: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO simd_stats (rank, neighborhood, intermediate_zone, council_area)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.Exec(r.Rank, r.Neighborhood, r.IntermediateZone, r.CouncilArea); err != nil {
			return fmt.Errorf("insert %q: %w", r.Neighborhood, err)
		}
	}

	return tx.Commit()
}

// Count returns the number of rows in the statistics table.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM simd_stats`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// nationalSynonyms are area names that mean "aggregate across all of
// Scotland" rather than a single council area.
var nationalSynonyms = map[string]bool{
	"scotland": true,
	"overall":  true,
	"country":  true,
	"national": true,
	"uk":       true,
}

// IsNational reports whether the normalized area name refers to the
// whole territory.
func IsNational(area string) bool {
	return nationalSynonyms[strings.ToLower(strings.TrimSpace(area))]
}

// NormalizeArea expands common city short forms to their full council
// area names and collapses the duplication that expansion produces
// when the input was already the full name. Idempotent.
func NormalizeArea(name string) string {
	s := strings.TrimSpace(name)
	s = strings.ReplaceAll(s, "Glasgow", "Glasgow City")
	s = strings.ReplaceAll(s, "Edinburgh", "City of Edinburgh")
	s = strings.ReplaceAll(s, "City City", "City")
	s = strings.ReplaceAll(s, "City of City of", "City of")
	return s
}

// validName matches place-name-shaped input: letters, spaces, and the
// punctuation that occurs in Scottish administrative names. Tool
// arguments come from a language model, so they are validated before
// they reach any query even though all queries use parameter binding.
var validName = regexp.MustCompile(`^[A-Za-z][A-Za-z .'&-]*$`)

// ValidName reports whether s is acceptable as an area or
// neighborhood name argument.
func ValidName(s string) bool {
	return validName.MatchString(strings.TrimSpace(s))
}

// TopZones returns the five best- or worst-ranked intermediate zones.
// An empty area aggregates nationally; otherwise results are filtered
// to the given council area. When leastDeprived is true, zones are
// aggregated by MAX(rank) and ordered descending (wealthiest first);
// otherwise by MIN(rank) ascending (most deprived first).
func (s *Store) TopZones(ctx context.Context, area string, leastDeprived bool) ([]ZoneRanking, error) {
	agg, order := "MIN", "ASC"
	if leastDeprived {
		agg, order = "MAX", "DESC"
	}

	// agg and order come from the fixed switch above, never from
	// caller input; the area filter is parameter-bound.
	var rows *sql.Rows
	var err error
	if area == "" {
		rows, err = s.db.QueryContext(ctx, fmt.Sprintf(`
			SELECT intermediate_zone, council_area, %s(rank) AS ranking
			FROM simd_stats
			GROUP BY intermediate_zone
			ORDER BY ranking %s
			LIMIT 5
		`, agg, order))
	} else {
		rows, err = s.db.QueryContext(ctx, fmt.Sprintf(`
			SELECT intermediate_zone, council_area, %s(rank) AS ranking
			FROM simd_stats
			WHERE council_area = ?
			GROUP BY intermediate_zone
			ORDER BY ranking %s
			LIMIT 5
		`, agg, order), area)
	}
	if err != nil {
		return nil, fmt.Errorf("query zones: %w", err)
	}
	defer rows.Close()

	var zones []ZoneRanking
	for rows.Next() {
		var z ZoneRanking
		if err := rows.Scan(&z.IntermediateZone, &z.CouncilArea, &z.Rank); err != nil {
			return nil, fmt.Errorf("scan zone: %w", err)
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

// LookupZones finds intermediate zones whose zone or neighborhood
// name contains the given fragment, averaging rank per zone. At most
// three zones are returned.
func (s *Store) LookupZones(ctx context.Context, name string) ([]ZoneRanking, error) {
	pattern := "%" + name + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT intermediate_zone, council_area, AVG(rank) AS avg_rank
		FROM simd_stats
		WHERE intermediate_zone LIKE ? OR neighborhood LIKE ?
		GROUP BY intermediate_zone
		LIMIT 3
	`, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("query lookup: %w", err)
	}
	defer rows.Close()

	var zones []ZoneRanking
	for rows.Next() {
		var z ZoneRanking
		var avg float64
		if err := rows.Scan(&z.IntermediateZone, &z.CouncilArea, &avg); err != nil {
			return nil, fmt.Errorf("scan zone: %w", err)
		}
		z.Rank = int(avg)
		zones = append(zones, z)
	}
	return zones, rows.Err()
}
