package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/property-crawler/internal/models"
)

const (
	// EventTypeListingCreated is emitted once per stored listing
	EventTypeListingCreated = "LISTING_CREATED"
	// AggregateTypeListing is the outbox aggregate for listing events
	AggregateTypeListing = "listing"
)

// ListingCreatedPayload is the body of a LISTING_CREATED event
type ListingCreatedPayload struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	ListingID int64     `json:"listing_id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Price     float64   `json:"price"`
	PriceText string    `json:"price_text"`
	Purpose   string    `json:"purpose"`
	SourceURL string    `json:"source_url"`
	Source    string    `json:"source"`
}

// ListingRepository writes listings into the properties table and records a
// LISTING_CREATED outbox event in the same transaction.
type ListingRepository struct {
	db           *DB
	outbox       *OutboxRepository
	targetStream string
	logger       *slog.Logger
}

func NewListingRepository(db *DB, targetStream string, logger *slog.Logger) *ListingRepository {
	if targetStream == "" {
		targetStream = DefaultTargetStream
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ListingRepository{
		db:           db,
		outbox:       NewOutboxRepository(db),
		targetStream: targetStream,
		logger:       logger.With("component", "listing_repository"),
	}
}

// InsertListing stores l and its outbox event atomically. On success l.ID and
// l.CreatedAt reflect the stored row.
func (r *ListingRepository) InsertListing(ctx context.Context, l *models.Listing) error {
	err := r.db.Transaction(ctx, func(tx pgx.Tx) error {
		if err := insertListingTx(ctx, tx, l); err != nil {
			return err
		}

		event, err := listingCreatedEvent(l, r.targetStream)
		if err != nil {
			return err
		}
		return r.outbox.InsertWithTx(ctx, tx, event)
	})
	if err != nil {
		return fmt.Errorf("failed to insert listing %q: %w", l.Slug, err)
	}

	r.logger.Debug("listing stored", "id", l.ID, "slug", l.Slug)
	return nil
}

// CountListings returns the number of rows in the properties table
func (r *ListingRepository) CountListings(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM properties").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count listings: %w", err)
	}
	return count, nil
}

func insertListingTx(ctx context.Context, tx pgx.Tx, l *models.Listing) error {
	query := `
		INSERT INTO properties (
			name, slug, purpose, descriptions, address, price, no_of_bed_room, no_of_bath_room,
			property_size, year_build, total_floors, accommodations, ceiling_height,
			distance_from_center, parking, heating, area_size, garage, utility_cost,
			cable_tv_cost, electricity_cost, deposit, pet_allowed, payment_period,
			habitable, minimum_stay_duration, property_type_id, agent_id, city_id,
			price_text, source_url
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29,
			$30, $31
		)
		RETURNING id, created_at`

	err := tx.QueryRow(ctx, query,
		l.Name, l.Slug, l.Purpose, l.Description, l.Address, l.Price, l.Bedrooms, l.Bathrooms,
		l.PropertySize, l.YearBuilt, l.TotalFloors, l.Accommodations, l.CeilingHeight,
		l.DistanceFromCenter, l.Parking, l.Heating, l.AreaSize, l.Garage, l.UtilityCost,
		l.CableTVCost, l.ElectricityCost, l.Deposit, l.PetAllowed, l.PaymentPeriod,
		l.Habitable, l.MinimumStayDuration, l.PropertyTypeID, l.AgentID, l.CityID,
		l.PriceText, l.SourceURL,
	).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert property: %w", err)
	}

	return nil
}

func listingCreatedEvent(l *models.Listing, targetStream string) (*OutboxEvent, error) {
	payload := ListingCreatedPayload{
		EventID:   uuid.New().String(),
		EventType: EventTypeListingCreated,
		Timestamp: time.Now(),
		ListingID: l.ID,
		Slug:      l.Slug,
		Name:      l.Name,
		Address:   l.Address,
		Price:     l.Price,
		PriceText: l.PriceText,
		Purpose:   l.Purpose,
		SourceURL: l.SourceURL,
		Source:    "crawler",
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return &OutboxEvent{
		AggregateType: AggregateTypeListing,
		AggregateID:   strconv.FormatInt(l.ID, 10),
		EventType:     EventTypeListingCreated,
		Payload:       data,
		TargetStream:  targetStream,
	}, nil
}
