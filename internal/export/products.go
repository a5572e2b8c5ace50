// Package export renders catalog snapshots for admins.
package export

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx"

	"github.com/Aswinesag/gitness/internal/catalog"
)

const (
	XLSXContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ProductsFileName = "products.xlsx"
	productsSheet    = "Products"
)

var productHeaders = []string{
	"ID", "Name", "Category", "Price", "OnDeal", "DiscountPercent", "EffectivePrice", "Image", "CreatedAt",
}

type PriceResolver interface {
	EffectivePrice(p catalog.Product) decimal.Decimal
}

// WriteProducts writes one sheet with a row per product, including the
// effective price the storefront charges.
func WriteProducts(w io.Writer, products []catalog.Product, prices PriceResolver) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet(productsSheet)
	if err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}

	header := sheet.AddRow()
	for _, h := range productHeaders {
		header.AddCell().SetString(h)
	}

	for _, p := range products {
		row := sheet.AddRow()
		row.AddCell().SetString(p.ID)
		row.AddCell().SetString(p.Name)
		row.AddCell().SetString(p.Category)
		row.AddCell().SetFloat(p.Price.InexactFloat64())
		row.AddCell().SetBool(p.IsOnDeal)
		row.AddCell().SetInt(p.DiscountPercent)
		row.AddCell().SetFloat(prices.EffectivePrice(p).Round(2).InexactFloat64())
		image := ""
		if p.Image != nil {
			image = *p.Image
		}
		row.AddCell().SetString(image)
		row.AddCell().SetString(p.CreatedAt.UTC().Format("2006-01-02 15:04:05"))
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
