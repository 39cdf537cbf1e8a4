// Package export writes catalog listings to CSV and XLSX files.
package export

import (
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/diaperwatch/diaperwatch-cli/internal/model"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv" or "xlsx", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX, "excel":
		return FormatXLSX, nil
	default:
		return "", eris.Errorf("export: unknown format %q", s)
	}
}

// FormatFromPath infers the format from a file extension, defaulting to CSV.
func FormatFromPath(path string) Format {
	if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		return FormatXLSX
	}
	return FormatCSV
}

// Header is the column layout shared by every format.
var Header = []string{"id", "brand", "type", "size", "count", "retailer", "price", "price_per_unit", "in_stock", "url", "last_fetched_at"}

func record(l model.ProductListing) []string {
	return []string{
		strconv.FormatInt(l.ID, 10),
		l.Brand,
		l.Type,
		l.Size,
		strconv.Itoa(l.Count),
		l.Retailer,
		strconv.FormatFloat(l.Price, 'f', 2, 64),
		strconv.FormatFloat(l.PricePerUnit, 'f', 4, 64),
		strconv.FormatBool(l.InStock),
		l.URL,
		l.LastFetchedAt.UTC().Format(time.RFC3339),
	}
}

// WriteCSV writes listings with a header row.
func WriteCSV(w io.Writer, listings []model.ProductListing) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, l := range listings {
		if err := cw.Write(record(l)); err != nil {
			return eris.Wrapf(err, "export: write csv row %s", l.Key())
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// WriteXLSX writes a workbook with a "Listings" sheet and a "Best Value"
// sheet holding the cheapest per-unit offer for each brand and size.
func WriteXLSX(w io.Writer, listings []model.ProductListing) error {
	f := xlsx.NewFile()
	if err := addSheet(f, "Listings", listings); err != nil {
		return err
	}
	if err := addSheet(f, "Best Value", BestValues(listings)); err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "export: write xlsx")
}

func addSheet(f *xlsx.File, name string, listings []model.ProductListing) error {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrapf(err, "export: add sheet %s", name)
	}
	header := sheet.AddRow()
	for _, h := range Header {
		header.AddCell().SetString(h)
	}
	for _, l := range listings {
		row := sheet.AddRow()
		row.AddCell().SetInt64(l.ID)
		row.AddCell().SetString(l.Brand)
		row.AddCell().SetString(l.Type)
		row.AddCell().SetString(l.Size)
		row.AddCell().SetInt(l.Count)
		row.AddCell().SetString(l.Retailer)
		row.AddCell().SetFloat(l.Price)
		row.AddCell().SetFloat(l.PricePerUnit)
		row.AddCell().SetBool(l.InStock)
		row.AddCell().SetString(l.URL)
		row.AddCell().SetString(l.LastFetchedAt.UTC().Format(time.RFC3339))
	}
	return nil
}

// BestValues keeps the lowest price-per-unit listing for each brand and size,
// ordered by brand then size.
func BestValues(listings []model.ProductListing) []model.ProductListing {
	type key struct{ brand, size string }
	best := make(map[key]model.ProductListing)
	var order []key
	for _, l := range listings {
		k := key{l.Brand, l.Size}
		cur, ok := best[k]
		if !ok {
			order = append(order, k)
		}
		if !ok || l.PricePerUnit < cur.PricePerUnit {
			best[k] = l
		}
	}

	out := make([]model.ProductListing, 0, len(order))
	for _, k := range order {
		out = append(out, best[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Brand != out[j].Brand {
			return out[i].Brand < out[j].Brand
		}
		return sizeLess(out[i].Size, out[j].Size)
	})
	return out
}

func sizeLess(a, b string) bool {
	s := []string{a, b}
	model.SortSizes(s)
	return s[0] == a && a != b
}

// WriteFile writes listings to path in the given format.
func WriteFile(path string, format Format, listings []model.ProductListing) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = eris.Wrapf(cerr, "export: close %s", path)
		}
	}()

	switch format {
	case FormatXLSX:
		return WriteXLSX(out, listings)
	default:
		return WriteCSV(out, listings)
	}
}
