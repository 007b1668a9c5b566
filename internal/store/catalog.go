package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"aquabot/internal/domain"
)

// UpsertCity inserts or refreshes a city keyed by its upstream id.
func (s *Store) UpsertCity(ctx context.Context, c domain.City) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cities (external_id, name, name_en, lat, lng, updated_at)
		 VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(external_id) DO UPDATE SET
		   name = excluded.name, name_en = excluded.name_en,
		   lat = excluded.lat, lng = excluded.lng, updated_at = CURRENT_TIMESTAMP`,
		c.ExternalID, c.Name, c.NameEn, c.Lat, c.Lng)
	if err != nil {
		return fmt.Errorf("upsert city: %w", err)
	}
	return nil
}

// UpsertBrand inserts or refreshes a brand and links it to a city.
func (s *Store) UpsertBrand(ctx context.Context, b domain.Brand, cityExternalID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO brands (external_id, title, title_en, image_url, updated_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(external_id) DO UPDATE SET
		   title = excluded.title, title_en = excluded.title_en,
		   image_url = excluded.image_url, updated_at = CURRENT_TIMESTAMP`,
		b.ExternalID, b.Title, b.TitleEn, b.ImageURL)
	if err != nil {
		return fmt.Errorf("upsert brand: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO brand_cities (brand_id, city_id)
		 SELECT b.id, c.id FROM brands b, cities c
		 WHERE b.external_id = ? AND c.external_id = ?`,
		b.ExternalID, cityExternalID)
	if err != nil {
		return fmt.Errorf("link brand to city: %w", err)
	}
	return nil
}

// UpsertProduct inserts or refreshes a product under a brand.
func (s *Store) UpsertProduct(ctx context.Context, p domain.Product, brandExternalID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO products (external_id, brand_id, title, packing, contract_price, market_price, barcode, updated_at)
		 SELECT ?, b.id, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP FROM brands b WHERE b.external_id = ?
		 ON CONFLICT(external_id) DO UPDATE SET
		   title = excluded.title, packing = excluded.packing,
		   contract_price = excluded.contract_price, market_price = excluded.market_price,
		   barcode = excluded.barcode, updated_at = CURRENT_TIMESTAMP`,
		p.ExternalID, p.Title, p.Packing, p.ContractPrice, p.MarketPrice, p.Barcode, brandExternalID)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

// Cities returns all cities, optionally filtered by a name substring.
func (s *Store) Cities(ctx context.Context, search string) ([]domain.City, error) {
	query := `SELECT id, external_id, name, name_en, lat, lng, updated_at FROM cities`
	var args []any
	if search != "" {
		query += ` WHERE name LIKE ? OR name_en LIKE ? COLLATE NOCASE`
		pattern := "%" + search + "%"
		args = append(args, pattern, pattern)
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCities(rows)
}

// CityByID returns one city or nil.
func (s *Store) CityByID(ctx context.Context, id int64) (*domain.City, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, external_id, name, name_en, lat, lng, updated_at FROM cities WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cities, err := scanCities(rows)
	if err != nil || len(cities) == 0 {
		return nil, err
	}
	return &cities[0], nil
}

// BrandsByCity returns the brands serving a city.
func (s *Store) BrandsByCity(ctx context.Context, cityID int64) ([]domain.Brand, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT b.id, b.external_id, b.title, b.title_en, b.image_url, b.updated_at
		 FROM brands b JOIN brand_cities bc ON bc.brand_id = b.id
		 WHERE bc.city_id = ? ORDER BY b.title`, cityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBrands(rows)
}

// Brands returns all brands, optionally filtered by a title substring.
func (s *Store) Brands(ctx context.Context, search string) ([]domain.Brand, error) {
	query := `SELECT id, external_id, title, title_en, image_url, updated_at FROM brands`
	var args []any
	if search != "" {
		query += ` WHERE title LIKE ? OR title_en LIKE ? COLLATE NOCASE`
		pattern := "%" + search + "%"
		args = append(args, pattern, pattern)
	}
	query += ` ORDER BY title`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBrands(rows)
}

// BrandByID returns one brand or nil.
func (s *Store) BrandByID(ctx context.Context, id int64) (*domain.Brand, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, external_id, title, title_en, image_url, updated_at FROM brands WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	brands, err := scanBrands(rows)
	if err != nil || len(brands) == 0 {
		return nil, err
	}
	return &brands[0], nil
}

// ProductsByBrand returns a brand's products.
func (s *Store) ProductsByBrand(ctx context.Context, brandID int64) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, external_id, brand_id, title, packing, contract_price, market_price, barcode, updated_at
		 FROM products WHERE brand_id = ? ORDER BY title`, brandID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProducts(rows)
}

// SearchProducts filters products by title or barcode substring.
func (s *Store) SearchProducts(ctx context.Context, search string) ([]domain.Product, error) {
	pattern := "%" + search + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, external_id, brand_id, title, packing, contract_price, market_price, barcode, updated_at
		 FROM products WHERE title LIKE ? OR barcode LIKE ? COLLATE NOCASE ORDER BY title`,
		pattern, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProducts(rows)
}

// ProductByID returns one product or nil.
func (s *Store) ProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, external_id, brand_id, title, packing, contract_price, market_price, barcode, updated_at
		 FROM products WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	products, err := scanProducts(rows)
	if err != nil || len(products) == 0 {
		return nil, err
	}
	return &products[0], nil
}

// AppendSyncLog records a completed sync run.
func (s *Store) AppendSyncLog(ctx context.Context, log domain.SyncLog) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_logs (started_at, finished_at, status, cities, brands, products, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		log.StartedAt, log.FinishedAt, log.Status, log.Cities, log.Brands, log.Products, nullable(log.Error))
	return err
}

// LastSyncLog returns the most recent sync run, or nil if none was recorded.
func (s *Store) LastSyncLog(ctx context.Context) (*domain.SyncLog, error) {
	var l domain.SyncLog
	var finished sql.NullTime
	var errText sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, status, cities, brands, products, error
		 FROM sync_logs ORDER BY id DESC LIMIT 1`,
	).Scan(&l.ID, &l.StartedAt, &finished, &l.Status, &l.Cities, &l.Brands, &l.Products, &errText)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		l.FinishedAt = finished.Time
	}
	l.Error = errText.String
	return &l, nil
}

func scanCities(rows *sql.Rows) ([]domain.City, error) {
	var out []domain.City
	for rows.Next() {
		var c domain.City
		var nameEn sql.NullString
		var lat, lng sql.NullFloat64
		var updated time.Time
		if err := rows.Scan(&c.ID, &c.ExternalID, &c.Name, &nameEn, &lat, &lng, &updated); err != nil {
			return nil, err
		}
		c.NameEn = nameEn.String
		c.Lat = lat.Float64
		c.Lng = lng.Float64
		c.UpdatedAt = updated
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanBrands(rows *sql.Rows) ([]domain.Brand, error) {
	var out []domain.Brand
	for rows.Next() {
		var b domain.Brand
		var titleEn, imageURL sql.NullString
		if err := rows.Scan(&b.ID, &b.ExternalID, &b.Title, &titleEn, &imageURL, &b.UpdatedAt); err != nil {
			return nil, err
		}
		b.TitleEn = titleEn.String
		b.ImageURL = imageURL.String
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanProducts(rows *sql.Rows) ([]domain.Product, error) {
	var out []domain.Product
	for rows.Next() {
		var p domain.Product
		var packing, barcode sql.NullString
		if err := rows.Scan(&p.ID, &p.ExternalID, &p.BrandID, &p.Title, &packing,
			&p.ContractPrice, &p.MarketPrice, &barcode, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Packing = packing.String
		p.Barcode = barcode.String
		out = append(out, p)
	}
	return out, rows.Err()
}
