package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"wa_listings/models"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS listings (
		id TEXT PRIMARY KEY,
		bhk INTEGER,
		area TEXT,
		furnished_status TEXT,
		location TEXT,
		listing_type TEXT NOT NULL CHECK (listing_type IN ('sale', 'rent')),
		price REAL,
		rentpermonth REAL,
		contact TEXT,
		broker_name TEXT,
		chat_group TEXT,
		description TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS images (
		id TEXT PRIMARY KEY,
		listing_id TEXT NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
		image_url TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_listings_created ON listings(created_at);
	CREATE INDEX IF NOT EXISTS idx_images_listing ON images(listing_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) CreateListing(ctx context.Context, l *models.Listing) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	l.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO listings (id, bhk, area, furnished_status, location, listing_type, price, rentpermonth,
			contact, broker_name, chat_group, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID.String(), l.BHK, l.Area, l.FurnishedStatus, l.Location, string(l.ListingType), l.Price, l.RentPerMonth,
		l.Contact, l.BrokerName, l.ChatGroup, l.Description, l.CreatedAt)
	if err != nil {
		return persistErr("create listing", err)
	}
	if l.Images == nil {
		l.Images = []models.Image{}
	}
	return nil
}

func (s *SQLiteStore) GetListing(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, bhk, area, furnished_status, location, listing_type, price, rentpermonth,
			contact, broker_name, COALESCE(chat_group, ''), COALESCE(description, ''), created_at
		FROM listings WHERE id = ?`, id.String())

	l, err := scanSQLiteListing(row)
	if err == sql.ErrNoRows {
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

func (s *SQLiteStore) ListListings(ctx context.Context, filter models.ListingFilter) (*models.ListingPage, error) {
	filter = normalizeFilter(filter)

	var where []string
	var args []any

	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		where = append(where, `(
			location LIKE ? OR area LIKE ? OR description LIKE ? OR chat_group LIKE ? OR
			broker_name LIKE ? OR contact LIKE ? OR CAST(bhk AS TEXT) LIKE ? OR
			CAST(price AS TEXT) LIKE ? OR CAST(rentpermonth AS TEXT) LIKE ?)`)
		for i := 0; i < 9; i++ {
			args = append(args, like)
		}
	}
	if filter.ListingType != "" {
		where = append(where, "listing_type = ?")
		args = append(args, string(filter.ListingType))
	}
	if filter.Location != "" {
		where = append(where, "location LIKE ?")
		args = append(args, "%"+filter.Location+"%")
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM listings"+clause, args...).Scan(&total); err != nil {
		return nil, persistErr("count listings", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bhk, area, furnished_status, location, listing_type, price, rentpermonth,
			contact, broker_name, COALESCE(chat_group, ''), COALESCE(description, ''), created_at
		FROM listings`+clause+`
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`, append(args, filter.Limit, filter.Offset())...)
	if err != nil {
		return nil, persistErr("list listings", err)
	}
	defer rows.Close()

	listings := []models.Listing{}
	var ids []uuid.UUID
	for rows.Next() {
		l, err := scanSQLiteListing(rows)
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

func (s *SQLiteStore) GetStats(ctx context.Context) (*models.ListingStats, error) {
	startOfDay := time.Now().UTC().Truncate(24 * time.Hour)

	var st models.ListingStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN listing_type = 'sale' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN listing_type = 'rent' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0),
			(SELECT COUNT(*) FROM images)
		FROM listings`, startOfDay).Scan(
		&st.TotalListings, &st.SaleListings, &st.RentListings, &st.TodayListings, &st.TotalImages,
	)
	if err != nil {
		return nil, persistErr("stats", err)
	}
	return &st, nil
}

func (s *SQLiteStore) AttachImage(ctx context.Context, img *models.Image) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM listings WHERE id = ?`, img.ListingID.String()).Scan(&exists)
	if err == sql.ErrNoRows {
		return persistErr("attach image", ErrListingNotFound)
	}
	if err != nil {
		return persistErr("attach image", err)
	}

	if img.ID == uuid.Nil {
		img.ID = uuid.New()
	}
	img.CreatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO images (id, listing_id, image_url, created_at)
		VALUES (?, ?, ?, ?)`,
		img.ID.String(), img.ListingID.String(), img.URL, img.CreatedAt)
	return persistErr("attach image", err)
}

func (s *SQLiteStore) imagesFor(ctx context.Context, listingIDs []uuid.UUID) (map[uuid.UUID][]models.Image, error) {
	out := make(map[uuid.UUID][]models.Image)
	if len(listingIDs) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(listingIDs))
	args := make([]any, len(listingIDs))
	for i, id := range listingIDs {
		placeholders[i] = "?"
		args[i] = id.String()
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, listing_id, image_url, created_at
		FROM images WHERE listing_id IN (%s)
		ORDER BY created_at`, strings.Join(placeholders, ",")), args...)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteListing(row rowScanner) (*models.Listing, error) {
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
