package domain

import "time"

// City is a serviced city, mirrored from the upstream admin API.
type City struct {
	ID         int64   `json:"id"`
	ExternalID int64   `json:"external_id"`
	Name       string  `json:"name"`    // Arabic name
	NameEn     string  `json:"name_en"` // English name
	Lat        float64 `json:"lat,omitempty"`
	Lng        float64 `json:"lng,omitempty"`
	UpdatedAt  time.Time `json:"-"`
}

// Brand is a water brand available in one or more cities.
type Brand struct {
	ID         int64  `json:"id"`
	ExternalID int64  `json:"external_id"`
	Title      string `json:"title"`
	TitleEn    string `json:"title_en,omitempty"`
	ImageURL   string `json:"image_url,omitempty"`
	UpdatedAt  time.Time `json:"-"`
}

// Product is a purchasable item offered by a brand.
type Product struct {
	ID            int64   `json:"id"`
	ExternalID    int64   `json:"external_id"`
	BrandID       int64   `json:"brand_id"`
	Title         string  `json:"title"`
	Packing       string  `json:"packing,omitempty"`
	ContractPrice float64 `json:"contract_price"`
	MarketPrice   float64 `json:"market_price,omitempty"`
	Barcode       string  `json:"barcode,omitempty"`
	UpdatedAt     time.Time `json:"-"`
}

// SyncLog records one catalog synchronization run.
type SyncLog struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string // "success" | "partial" | "failed"
	Cities     int
	Brands     int
	Products   int
	Error      string
}
