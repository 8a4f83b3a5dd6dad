package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/maltedev/property-crawler/internal/models"
)

// SQLiteStore keeps listings in a local SQLite file. It mirrors the
// properties table of the Postgres schema and adds the source page URL.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path and ensures the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS properties (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL CHECK (name <> ''),
		slug TEXT NOT NULL UNIQUE,
		purpose TEXT NOT NULL,
		descriptions TEXT,
		address TEXT NOT NULL CHECK (address <> ''),
		price REAL NOT NULL CHECK (price >= 0),
		price_text TEXT NOT NULL CHECK (price_text <> ''),
		no_of_bed_room INTEGER,
		no_of_bath_room INTEGER,
		property_size INTEGER,
		year_build INTEGER,
		total_floors INTEGER,
		accommodations TEXT,
		ceiling_height REAL,
		distance_from_center REAL,
		parking TEXT,
		heating TEXT,
		area_size REAL,
		garage BOOLEAN,
		utility_cost INTEGER,
		cable_tv_cost INTEGER,
		electricity_cost TEXT,
		deposit REAL,
		pet_allowed BOOLEAN,
		payment_period TEXT,
		habitable TEXT,
		minimum_stay_duration INTEGER,
		property_type_id INTEGER NOT NULL,
		agent_id INTEGER NOT NULL,
		city_id INTEGER NOT NULL,
		source_url TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_properties_source ON properties(source_url);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// InsertListing writes l in its own transaction.
func (s *SQLiteStore) InsertListing(ctx context.Context, l *models.Listing) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}

	query := `
	INSERT INTO properties (
		name, slug, purpose, descriptions, address, price, price_text, no_of_bed_room, no_of_bath_room,
		property_size, year_build, total_floors, accommodations, ceiling_height,
		distance_from_center, parking, heating, area_size, garage, utility_cost,
		cable_tv_cost, electricity_cost, deposit, pet_allowed, payment_period,
		habitable, minimum_stay_duration, property_type_id, agent_id, city_id,
		source_url, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := tx.ExecContext(ctx, query,
		l.Name, l.Slug, l.Purpose, l.Description, l.Address, l.Price, l.PriceText, l.Bedrooms, l.Bathrooms,
		l.PropertySize, l.YearBuilt, l.TotalFloors, l.Accommodations, l.CeilingHeight,
		l.DistanceFromCenter, l.Parking, l.Heating, l.AreaSize, l.Garage, l.UtilityCost,
		l.CableTVCost, l.ElectricityCost, l.Deposit, l.PetAllowed, l.PaymentPeriod,
		l.Habitable, l.MinimumStayDuration, l.PropertyTypeID, l.AgentID, l.CityID,
		l.SourceURL, l.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert property: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get property id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	l.ID = id
	return nil
}

// CountListings returns the number of stored listings.
func (s *SQLiteStore) CountListings(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM properties").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count listings: %w", err)
	}
	return count, nil
}

// CountBySource counts listings per source page.
func (s *SQLiteStore) CountBySource(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT COALESCE(source_url, ''), COUNT(*)
	FROM properties
	GROUP BY source_url`)
	if err != nil {
		return nil, fmt.Errorf("failed to count listings by source: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var source string
		var n int64
		if err := rows.Scan(&source, &n); err != nil {
			return nil, fmt.Errorf("failed to scan source count: %w", err)
		}
		counts[source] += n
	}
	return counts, rows.Err()
}

// ListBySource returns the listings extracted from one page, oldest first.
func (s *SQLiteStore) ListBySource(ctx context.Context, sourceURL string) ([]*models.Listing, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, name, slug, purpose, descriptions, address, price, price_text,
		no_of_bed_room, no_of_bath_room, area_size,
		property_type_id, agent_id, city_id, source_url
	FROM properties
	WHERE source_url = ?
	ORDER BY id ASC`, sourceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l := &models.Listing{}
		if err := rows.Scan(
			&l.ID, &l.Name, &l.Slug, &l.Purpose, &l.Description, &l.Address, &l.Price, &l.PriceText,
			&l.Bedrooms, &l.Bathrooms, &l.AreaSize,
			&l.PropertyTypeID, &l.AgentID, &l.CityID, &l.SourceURL,
		); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, l)
	}

	return listings, rows.Err()
}
