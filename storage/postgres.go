package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"wa_listings/models"
)

const pgForeignKeyViolation = "23503"

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS listings (
		id UUID PRIMARY KEY,
		bhk INTEGER,
		area TEXT,
		furnished_status TEXT,
		location TEXT,
		listing_type TEXT NOT NULL CHECK (listing_type IN ('sale', 'rent')),
		price DOUBLE PRECISION,
		rentpermonth DOUBLE PRECISION,
		contact TEXT,
		broker_name TEXT,
		chat_group TEXT,
		description TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (
			(listing_type = 'sale' AND price IS NOT NULL AND rentpermonth IS NULL) OR
			(listing_type = 'rent' AND rentpermonth IS NOT NULL AND price IS NULL)
		)
	);

	CREATE TABLE IF NOT EXISTS images (
		id UUID PRIMARY KEY,
		listing_id UUID NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
		image_url TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_listings_created ON listings(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_listings_type ON listings(listing_type);
	CREATE INDEX IF NOT EXISTS idx_images_listing ON images(listing_id, created_at);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// =============================================================================
// Listings
// =============================================================================

// CreateListing inserts l, assigning its ID and CreatedAt.
func (s *PostgresStore) CreateListing(ctx context.Context, l *models.Listing) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	l.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO listings (
			id, bhk, area, furnished_status, location, listing_type, price, rentpermonth,
			contact, broker_name, chat_group, description, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at`

	err := s.pool.QueryRow(ctx, query,
		l.ID, l.BHK, l.Area, l.FurnishedStatus, l.Location, string(l.ListingType), l.Price, l.RentPerMonth,
		l.Contact, l.BrokerName, l.ChatGroup, l.Description, l.CreatedAt,
	).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		return persistErr("create listing", err)
	}
	if l.Images == nil {
		l.Images = []models.Image{}
	}
	return nil
}

func (s *PostgresStore) GetListing(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	query := `
		SELECT id, bhk, area, furnished_status, location, listing_type, price, rentpermonth,
			contact, broker_name, COALESCE(chat_group, ''), COALESCE(description, ''), created_at
		FROM listings WHERE id = $1`

	l, err := scanListing(s.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("get listing", err)
	}

	images, err := s.imagesFor(ctx, []uuid.UUID{l.ID})
	if err != nil {
		return nil, err
	}
	l.Images = images[l.ID]
	if l.Images == nil {
		l.Images = []models.Image{}
	}
	return l, nil
}

func (s *PostgresStore) ListListings(ctx context.Context, filter models.ListingFilter) (*models.ListingPage, error) {
	filter = normalizeFilter(filter)

	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		where = append(where, fmt.Sprintf(`(
			location ILIKE %[1]s OR area ILIKE %[1]s OR description ILIKE %[1]s OR
			chat_group ILIKE %[1]s OR broker_name ILIKE %[1]s OR contact ILIKE %[1]s OR
			CAST(bhk AS TEXT) ILIKE %[1]s OR CAST(price AS TEXT) ILIKE %[1]s OR
			CAST(rentpermonth AS TEXT) ILIKE %[1]s)`, p))
	}
	if filter.ListingType != "" {
		where = append(where, "listing_type = "+arg(string(filter.ListingType)))
	}
	if filter.Location != "" {
		where = append(where, "location ILIKE "+arg("%"+filter.Location+"%"))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM listings"+clause, args...).Scan(&total); err != nil {
		return nil, persistErr("count listings", err)
	}

	query := `
		SELECT id, bhk, area, furnished_status, location, listing_type, price, rentpermonth,
			contact, broker_name, COALESCE(chat_group, ''), COALESCE(description, ''), created_at
		FROM listings` + clause + `
		ORDER BY created_at DESC
		LIMIT ` + arg(filter.Limit) + ` OFFSET ` + arg(filter.Offset())

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, persistErr("list listings", err)
	}
	defer rows.Close()

	listings := []models.Listing{}
	var ids []uuid.UUID
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, persistErr("scan listing", err)
		}
		listings = append(listings, *l)
		ids = append(ids, l.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list listings", err)
	}

	images, err := s.imagesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range listings {
		listings[i].Images = images[listings[i].ID]
		if listings[i].Images == nil {
			listings[i].Images = []models.Image{}
		}
	}

	return &models.ListingPage{
		Data:       listings,
		Pagination: models.NewPagination(filter.Page, filter.Limit, total),
	}, nil
}

func (s *PostgresStore) GetStats(ctx context.Context) (*models.ListingStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE listing_type = 'sale'),
			COUNT(*) FILTER (WHERE listing_type = 'rent'),
			COUNT(*) FILTER (WHERE created_at >= date_trunc('day', NOW())),
			(SELECT COUNT(*) FROM images)
		FROM listings`

	var st models.ListingStats
	err := s.pool.QueryRow(ctx, query).Scan(
		&st.TotalListings, &st.SaleListings, &st.RentListings, &st.TodayListings, &st.TotalImages,
	)
	if err != nil {
		return nil, persistErr("stats", err)
	}
	return &st, nil
}

// =============================================================================
// Images
// =============================================================================

// AttachImage inserts img for an existing listing, assigning ID and CreatedAt.
func (s *PostgresStore) AttachImage(ctx context.Context, img *models.Image) error {
	if img.ID == uuid.Nil {
		img.ID = uuid.New()
	}
	img.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO images (id, listing_id, image_url, created_at)
		VALUES ($1, $2, $3, $4)`

	_, err := s.pool.Exec(ctx, query, img.ID, img.ListingID, img.URL, img.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return persistErr("attach image", ErrListingNotFound)
		}
		return persistErr("attach image", err)
	}
	return nil
}

func (s *PostgresStore) imagesFor(ctx context.Context, listingIDs []uuid.UUID) (map[uuid.UUID][]models.Image, error) {
	out := make(map[uuid.UUID][]models.Image)
	if len(listingIDs) == 0 {
		return out, nil
	}

	ids := make([]string, len(listingIDs))
	for i, id := range listingIDs {
		ids[i] = id.String()
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, listing_id, image_url, created_at
		FROM images WHERE listing_id = ANY($1::uuid[])
		ORDER BY created_at`, ids)
	if err != nil {
		return nil, persistErr("list images", err)
	}
	defer rows.Close()

	for rows.Next() {
		var img models.Image
		if err := rows.Scan(&img.ID, &img.ListingID, &img.URL, &img.CreatedAt); err != nil {
			return nil, persistErr("scan image", err)
		}
		out[img.ListingID] = append(out[img.ListingID], img)
	}
	return out, rows.Err()
}

func scanListing(row pgx.Row) (*models.Listing, error) {
	var l models.Listing
	var listingType string
	err := row.Scan(
		&l.ID, &l.BHK, &l.Area, &l.FurnishedStatus, &l.Location, &listingType, &l.Price, &l.RentPerMonth,
		&l.Contact, &l.BrokerName, &l.ChatGroup, &l.Description, &l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.ListingType = models.ListingType(listingType)
	return &l, nil
}
