// Package pricing derives effective unit prices and cart totals.
//
// All arithmetic is exact decimal arithmetic. Rounding to currency precision
// happens only when a total is produced or rendered.
package pricing

import (
	"encoding/json"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Aswinesag/gitness/internal/cart"
	"github.com/Aswinesag/gitness/internal/catalog"
)

var taxRate = decimal.RequireFromString("0.08")

type Resolver struct {
	logger *zap.Logger
}

func NewResolver(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{logger: logger}
}

// EffectivePrice returns price * (1 - discount/100) for products on deal with a
// non-zero discount, and the plain price otherwise. Out of range discounts are
// clamped to [0,100] and negative prices to 0.
func (r *Resolver) EffectivePrice(p catalog.Product) decimal.Decimal {
	price := p.Price
	if price.IsNegative() {
		r.logger.Warn("negative product price treated as zero",
			zap.String("product_id", p.ID), zap.String("price", price.String()))
		price = decimal.Zero
	}
	if !p.IsOnDeal || p.DiscountPercent == 0 {
		return price
	}

	pct := p.DiscountPercent
	if pct < 0 || pct > 100 {
		clamped := min(max(pct, 0), 100)
		r.logger.Warn("discount percent clamped",
			zap.String("product_id", p.ID), zap.Int("discount_percent", pct), zap.Int("clamped", clamped))
		pct = clamped
	}
	return price.Mul(decimal.NewFromInt(int64(100 - pct))).Shift(-2)
}

// UnitAmount is the effective price in minor currency units, rounded half away from zero.
func (r *Resolver) UnitAmount(p catalog.Product) int64 {
	return r.EffectivePrice(p).Shift(2).Round(0).IntPart()
}

type LineTotal struct {
	LineID    string
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	Total     decimal.Decimal
}

type Totals struct {
	Lines     []LineTotal
	Subtotal  decimal.Decimal
	Tax       decimal.Decimal
	Total     decimal.Decimal
	ItemCount int
}

// Aggregate computes per-line totals, subtotal, tax and total for a cart.
// Lines sharing a product are merged into the first occurrence.
func (r *Resolver) Aggregate(lines []cart.Line) Totals {
	merged := make([]LineTotal, 0, len(lines))
	index := make(map[string]int, len(lines))

	for _, l := range lines {
		if l.Quantity < 1 {
			continue
		}
		unit := r.EffectivePrice(l.Product)
		lineTotal := unit.Mul(decimal.NewFromInt(int64(l.Quantity)))

		if i, ok := index[l.ProductID]; ok {
			// Legacy duplicate line for the same product.
			merged[i].Quantity += l.Quantity
			merged[i].Total = merged[i].UnitPrice.Mul(decimal.NewFromInt(int64(merged[i].Quantity)))
		} else {
			index[l.ProductID] = len(merged)
			merged = append(merged, LineTotal{
				LineID:    l.ID,
				ProductID: l.ProductID,
				Name:      l.Product.Name,
				UnitPrice: unit,
				Quantity:  l.Quantity,
				Total:     lineTotal,
			})
		}
	}

	return Summarize(merged)
}

// Summarize derives subtotal, tax and total from already priced lines.
func Summarize(lines []LineTotal) Totals {
	out := Totals{Lines: lines, Subtotal: decimal.Zero}
	for _, lt := range lines {
		out.Subtotal = out.Subtotal.Add(lt.Total)
		out.ItemCount += lt.Quantity
	}
	out.Tax = out.Subtotal.Mul(taxRate).Round(2)
	out.Total = out.Subtotal.Add(out.Tax)
	return out
}

// AmountDue is the total rounded to currency precision.
func (t Totals) AmountDue() decimal.Decimal {
	return t.Total.Round(2)
}

func (t Totals) IsEmpty() bool {
	return t.ItemCount == 0
}

type lineTotalJSON struct {
	LineID    string `json:"line_id"`
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Total     string `json:"total"`
}

type totalsJSON struct {
	Lines     []lineTotalJSON `json:"line_totals"`
	Subtotal  string          `json:"subtotal"`
	Tax       string          `json:"tax"`
	Total     string          `json:"total"`
	ItemCount int             `json:"item_count"`
}

// MarshalJSON renders money at two decimal places.
func (t Totals) MarshalJSON() ([]byte, error) {
	out := totalsJSON{
		Lines:     make([]lineTotalJSON, 0, len(t.Lines)),
		Subtotal:  t.Subtotal.StringFixed(2),
		Tax:       t.Tax.StringFixed(2),
		Total:     t.Total.StringFixed(2),
		ItemCount: t.ItemCount,
	}
	for _, l := range t.Lines {
		out.Lines = append(out.Lines, lineTotalJSON{
			LineID:    l.LineID,
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice.StringFixed(2),
			Quantity:  l.Quantity,
			Total:     l.Total.StringFixed(2),
		})
	}
	return json.Marshal(out)
}
