package models

// Product is a catalog entry. The catalog is maintained outside this service;
// orders only ever copy from it.
type Product struct {
	BaseModel
	FishName   string  `gorm:"not null" json:"fish_name"`
	PricePerKg float64 `gorm:"type:numeric(10,2);not null" json:"price_per_kg"`
	Available  bool    `gorm:"index" json:"available"`
	IsPremium  bool    `json:"is_premium"`
	ImageURL   string  `json:"image_url,omitempty"`
}

// Key returns the identifier used by baskets and caches.
func (p Product) Key() string {
	return p.ID.String()
}
