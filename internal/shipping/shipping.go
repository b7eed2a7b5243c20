package shipping

import (
	"context"
	"encoding/json"
	"fmt"

	"storefront/internal/model"
)

// Method is a shipping option offered at checkout. Its price is what the
// order is charged; the client's shipping selection only picks the id.
type Method struct {
	ID            string
	Name          string
	Price         model.Money
	EstimatedDays int
}

// Table resolves shipping-method ids to their server-side rates.
type Table interface {
	// Lookup returns the method for an id, or false when the id is unknown.
	Lookup(id string) (Method, bool)

	// Methods returns all configured methods.
	Methods() []Method
}

// Loader defines the interface for loading a shipping-rate table.
type Loader interface {
	// Load reads a rate file (JSON) and returns a Table.
	Load(ctx context.Context, source string) (Table, error)
}

// rateFile is the on-disk JSON shape of the rate table.
type rateFile struct {
	Currency string `json:"currency"`
	Methods  []struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		Price         string `json:"price"`
		EstimatedDays int    `json:"estimatedDays"`
	} `json:"methods"`
}

// mapTable implements Table with an id-keyed map.
type mapTable struct {
	byID  map[string]Method
	order []string
}

// Lookup returns the method for an id.
func (t *mapTable) Lookup(id string) (Method, bool) {
	m, ok := t.byID[id]
	return m, ok
}

// Methods returns all methods in file order.
func (t *mapTable) Methods() []Method {
	methods := make([]Method, 0, len(t.order))
	for _, id := range t.order {
		methods = append(methods, t.byID[id])
	}
	return methods
}

// parseTable decodes a JSON rate file into a Table.
func parseTable(data []byte) (Table, error) {
	var f rateFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid shipping rate file: %w", err)
	}
	if f.Currency == "" {
		return nil, fmt.Errorf("shipping rate file missing currency")
	}
	if len(f.Methods) == 0 {
		return nil, fmt.Errorf("shipping rate file has no methods")
	}

	t := &mapTable{byID: make(map[string]Method, len(f.Methods))}
	for _, m := range f.Methods {
		if m.ID == "" {
			return nil, fmt.Errorf("shipping method missing id")
		}
		price, err := model.NewMoneyFromString(m.Price, f.Currency)
		if err != nil {
			return nil, fmt.Errorf("invalid price for shipping method %s: %w", m.ID, err)
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("negative price for shipping method %s", m.ID)
		}
		if _, dup := t.byID[m.ID]; dup {
			return nil, fmt.Errorf("duplicate shipping method id %s", m.ID)
		}
		t.byID[m.ID] = Method{
			ID:            m.ID,
			Name:          m.Name,
			Price:         price,
			EstimatedDays: m.EstimatedDays,
		}
		t.order = append(t.order, m.ID)
	}

	return t, nil
}

// DefaultTable returns the built-in rate table used when no rate file is
// available.
func DefaultTable(currency string) Table {
	t := &mapTable{byID: map[string]Method{
		"standard": {ID: "standard", Name: "Standard Shipping", Price: model.NewMoneyFromFloat(5.99, currency), EstimatedDays: 5},
		"express":  {ID: "express", Name: "Express Shipping", Price: model.NewMoneyFromFloat(14.99, currency), EstimatedDays: 2},
		"pickup":   {ID: "pickup", Name: "Store Pickup", Price: model.Zero(currency), EstimatedDays: 0},
	}}
	t.order = []string{"standard", "express", "pickup"}
	return t
}
