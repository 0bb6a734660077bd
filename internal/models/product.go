package models

import "github.com/shopspring/decimal"

// Product is an entry of the canteen catalog.
type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"nome"`
	UnitValue decimal.Decimal `json:"valor"`
}

// Validate checks the fields the engine relies on.
func (p Product) Validate() error {
	if p.ID == "" {
		return &FieldError{Record: "product", Field: "id", Reason: "missing"}
	}
	return nil
}

// LineItem records how many units of a product a purchase contained.
// A purchase may have no line items at all.
type LineItem struct {
	PurchaseID string `json:"compra_id"`
	ProductID  string `json:"produto_id"`
	Quantity   int    `json:"quantidade"`
}

// Validate checks the fields the engine relies on. Quantity is checked by
// the catalog index instead, since a bad quantity only affects one line.
func (l LineItem) Validate() error {
	switch {
	case l.PurchaseID == "":
		return &FieldError{Record: "line item", Field: "compra_id", Reason: "missing"}
	case l.ProductID == "":
		return &FieldError{Record: "line item", Field: "produto_id", Reason: "missing"}
	}
	return nil
}
