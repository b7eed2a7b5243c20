package model

import "time"

// Product represents a catalog row as the checkout path reads it. Price and
// stock are the live values the verifier and the atomic commit check against.
type Product struct {
	ID            string    `json:"id" db:"id"`
	SKU           string    `json:"sku" db:"sku"`
	Name          string    `json:"name" db:"name"`
	Price         Money     `json:"price"`
	StockQuantity int       `json:"stockQuantity" db:"stock_quantity"`
	IsActive      bool      `json:"isActive" db:"is_active"`
	ImageURL      string    `json:"imageUrl,omitempty" db:"image_url"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}

// Snapshot captures the denormalized product fields an order item freezes at
// purchase time.
func (p Product) Snapshot() ProductSnapshot {
	return ProductSnapshot{
		ProductID: p.ID,
		SKU:       p.SKU,
		Name:      p.Name,
		Price:     p.Price.AmountString(),
		Currency:  p.Price.Currency(),
		ImageURL:  p.ImageURL,
	}
}

// ProductSnapshot is the immutable denormalized copy of a product stored on
// an order item, insulating historical orders from later catalog edits.
type ProductSnapshot struct {
	ProductID string `json:"productId"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	Currency  string `json:"currency"`
	ImageURL  string `json:"imageUrl,omitempty"`
}
