package calculator

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mmynk/cantina/internal/models"
)

// Placeholders used in purchase descriptions.
const (
	// NotSpecified describes a purchase with no line items and no note.
	NotSpecified = "Produto não especificado"

	// UnknownProduct stands in for a line item whose product is missing
	// from the catalog.
	UnknownProduct = "Produto desconhecido"

	// UnnamedProduct stands in for a catalog product with an empty name.
	UnnamedProduct = "Produto sem nome"
)

// ResolvedLine is a line item joined with the catalog. Product is nil when
// the product id could not be resolved.
type ResolvedLine struct {
	ProductID string
	Quantity  int
	Product   *models.Product
}

// Resolved reports whether the product was found in the catalog.
func (l ResolvedLine) Resolved() bool {
	return l.Product != nil
}

// Name returns the product name, or a placeholder.
func (l ResolvedLine) Name() string {
	switch {
	case l.Product == nil:
		return UnknownProduct
	case strings.TrimSpace(l.Product.Name) == "":
		return UnnamedProduct
	default:
		return strings.TrimSpace(l.Product.Name)
	}
}

// String renders "{qty}x {name}" for quantities above one, otherwise the bare
// name.
func (l ResolvedLine) String() string {
	if l.Quantity > 1 {
		return strconv.Itoa(l.Quantity) + "x " + l.Name()
	}
	return l.Name()
}

// CatalogIndex joins purchases to the products they contained.
type CatalogIndex struct {
	productByID     map[string]models.Product
	linesByPurchase map[string][]models.LineItem
	warnings        []DataIntegrityWarning
}

// BuildCatalogIndex indexes products by id and line items by purchase id,
// keeping line item order. Line items with a quantity below one are dropped
// with a warning.
func BuildCatalogIndex(products []models.Product, lineItems []models.LineItem, logger *slog.Logger) *CatalogIndex {
	if logger == nil {
		logger = slog.Default()
	}

	c := &CatalogIndex{
		productByID:     make(map[string]models.Product, len(products)),
		linesByPurchase: make(map[string][]models.LineItem),
	}
	for _, p := range products {
		c.productByID[p.ID] = p
	}
	for _, li := range lineItems {
		if li.Quantity < 1 {
			w := DataIntegrityWarning{
				Kind:     InvalidQuantity,
				EntityID: li.PurchaseID,
				Detail:   fmt.Sprintf("product %s has quantity %d", li.ProductID, li.Quantity),
			}
			logWarning(logger, w)
			c.warnings = append(c.warnings, w)
			continue
		}
		c.linesByPurchase[li.PurchaseID] = append(c.linesByPurchase[li.PurchaseID], li)
	}
	return c
}

// Product returns the catalog product with the given id.
func (c *CatalogIndex) Product(id string) (models.Product, bool) {
	p, ok := c.productByID[id]
	return p, ok
}

// Lines returns the line items of a purchase joined with the catalog.
func (c *CatalogIndex) Lines(purchaseID string) []ResolvedLine {
	items := c.linesByPurchase[purchaseID]
	if len(items) == 0 {
		return nil
	}
	lines := make([]ResolvedLine, len(items))
	for i, li := range items {
		lines[i] = ResolvedLine{ProductID: li.ProductID, Quantity: li.Quantity}
		if p, ok := c.productByID[li.ProductID]; ok {
			lines[i].Product = &p
		}
	}
	return lines
}

// Describe renders a human-readable description of a purchase: its line
// items joined by " + ", or, when it has none, its note, or NotSpecified.
func (c *CatalogIndex) Describe(p models.Purchase) string {
	lines := c.Lines(p.ID)
	if len(lines) == 0 {
		if note := strings.TrimSpace(p.NoteText()); note != "" {
			return note
		}
		return NotSpecified
	}

	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = l.String()
	}
	return strings.Join(parts, " + ")
}

// Warnings returns the integrity warnings raised while indexing.
func (c *CatalogIndex) Warnings() []DataIntegrityWarning {
	return c.warnings
}
