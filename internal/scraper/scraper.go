// Package scraper mirrors the upstream admin catalog (cities, brands,
// products) into the local store so inquiries never hit the upstream API on
// the hot path.
package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"aquabot/internal/config"
	"aquabot/internal/domain"
)

// CatalogWriter is the store surface the sync writes through.
type CatalogWriter interface {
	UpsertCity(ctx context.Context, c domain.City) error
	UpsertBrand(ctx context.Context, b domain.Brand, cityExternalID int64) error
	UpsertProduct(ctx context.Context, p domain.Product, brandExternalID int64) error
	AppendSyncLog(ctx context.Context, log domain.SyncLog) error
	LastSyncLog(ctx context.Context) (*domain.SyncLog, error)
}

// Scraper pulls the catalog from the admin REST API.
type Scraper struct {
	cfg    config.CatalogConfig
	store  CatalogWriter
	client *http.Client
	logger *slog.Logger
}

func New(cfg config.CatalogConfig, store CatalogWriter, logger *slog.Logger) *Scraper {
	return &Scraper{
		cfg:    cfg,
		store:  store,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

type cityPayload struct {
	ID     int64   `json:"id"`
	Name   string  `json:"name"`
	NameEn string  `json:"name_en"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
}

type brandPayload struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	TitleEn string `json:"title_en"`
	Image   string `json:"image"`
}

type productPayload struct {
	ID            int64   `json:"id"`
	Title         string  `json:"title"`
	Packing       string  `json:"packing"`
	ContractPrice float64 `json:"contract_price"`
	MarketPrice   float64 `json:"market_price"`
	Barcode       string  `json:"barcode"`
}

// FullSync mirrors the whole catalog: cities, then brands per city, then
// products per brand. Partial upstream failures are tolerated; the sync log
// records success, partial, or failed.
func (s *Scraper) FullSync(ctx context.Context) (*domain.SyncLog, error) {
	log := domain.SyncLog{StartedAt: time.Now(), Status: "success"}
	var errs []string

	cities, err := s.fetchCities(ctx)
	if err != nil {
		log.Status = "failed"
		log.Error = err.Error()
		log.FinishedAt = time.Now()
		if aerr := s.store.AppendSyncLog(ctx, log); aerr != nil {
			s.logger.Error("sync log append failed", "error", aerr)
		}
		return &log, fmt.Errorf("fetch cities: %w", err)
	}

	for _, city := range cities {
		if err := s.store.UpsertCity(ctx, domain.City{
			ExternalID: city.ID, Name: city.Name, NameEn: city.NameEn,
			Lat: city.Lat, Lng: city.Lng,
		}); err != nil {
			errs = append(errs, fmt.Sprintf("city %d: %v", city.ID, err))
			continue
		}
		log.Cities++

		brands, err := s.fetchBrands(ctx, city.ID)
		if err != nil {
			errs = append(errs, fmt.Sprintf("brands for city %d: %v", city.ID, err))
			continue
		}
		for _, brand := range brands {
			if err := s.store.UpsertBrand(ctx, domain.Brand{
				ExternalID: brand.ID, Title: brand.Title,
				TitleEn: brand.TitleEn, ImageURL: brand.Image,
			}, city.ID); err != nil {
				errs = append(errs, fmt.Sprintf("brand %d: %v", brand.ID, err))
				continue
			}
			log.Brands++

			products, err := s.fetchProducts(ctx, brand.ID)
			if err != nil {
				errs = append(errs, fmt.Sprintf("products for brand %d: %v", brand.ID, err))
				continue
			}
			for _, product := range products {
				if err := s.store.UpsertProduct(ctx, domain.Product{
					ExternalID: product.ID, Title: product.Title,
					Packing: product.Packing, ContractPrice: product.ContractPrice,
					MarketPrice: product.MarketPrice, Barcode: product.Barcode,
				}, brand.ID); err != nil {
					errs = append(errs, fmt.Sprintf("product %d: %v", product.ID, err))
					continue
				}
				log.Products++
			}
		}
	}

	if len(errs) > 0 {
		log.Status = "partial"
		log.Error = strings.Join(errs, "; ")
		s.logger.Warn("catalog sync finished with errors", "errors", len(errs))
	}
	log.FinishedAt = time.Now()
	if err := s.store.AppendSyncLog(ctx, log); err != nil {
		s.logger.Error("sync log append failed", "error", err)
	}
	s.logger.Info("catalog sync finished",
		"status", log.Status, "cities", log.Cities, "brands", log.Brands,
		"products", log.Products, "elapsed", log.FinishedAt.Sub(log.StartedAt))
	return &log, nil
}

// Status returns the most recent sync log, or nil if none has run.
func (s *Scraper) Status(ctx context.Context) (*domain.SyncLog, error) {
	return s.store.LastSyncLog(ctx)
}

func (s *Scraper) fetchCities(ctx context.Context) ([]cityPayload, error) {
	var cities []cityPayload
	err := s.getJSON(ctx, "get-cities", &cities)
	return cities, err
}

func (s *Scraper) fetchBrands(ctx context.Context, cityID int64) ([]brandPayload, error) {
	var brands []brandPayload
	err := s.getJSON(ctx, fmt.Sprintf("get-location-brands/%d", cityID), &brands)
	return brands, err
}

func (s *Scraper) fetchProducts(ctx context.Context, brandID int64) ([]productPayload, error) {
	var products []productPayload
	err := s.getJSON(ctx, fmt.Sprintf("get-brand-products/%d", brandID), &products)
	return products, err
}

const fetchAttempts = 3

// getJSON fetches one admin endpoint with bounded retry and decodes the
// response. Some endpoints wrap the list in a data envelope; both shapes
// are accepted.
func (s *Scraper) getJSON(ctx context.Context, path string, out any) error {
	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") + "/" + path

	var lastErr error
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(attempt-1) * 2 * time.Second
			backoff += time.Duration(rand.Int63n(int64(time.Second)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		body, err := s.fetch(ctx, endpoint)
		if err != nil {
			lastErr = err
			s.logger.Warn("catalog fetch failed", "path", path, "attempt", attempt, "error", err)
			continue
		}
		if err := decodeEnvelope(body, out); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		return nil
	}
	return fmt.Errorf("fetch %s after %d attempts: %w", path, fetchAttempts, lastErr)
}

func (s *Scraper) fetch(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if s.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIToken)
	}
	if s.cfg.AccessKey != "" {
		req.Header.Set("X-Access-Key", s.cfg.AccessKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return io.ReadAll(resp.Body)
}

func decodeEnvelope(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err == nil {
		return nil
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return err
	}
	if envelope.Data == nil {
		return fmt.Errorf("response has neither list nor data envelope")
	}
	return json.Unmarshal(envelope.Data, out)
}
