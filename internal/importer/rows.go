package importer

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/odyssey-erp/odyssey-wms/internal/reconcile"
	"github.com/odyssey-erp/odyssey-wms/internal/warehouseorders"
)

// Column headers, matched case-insensitively.
const (
	ColClientCode    = "client_code"
	ColUPC           = "upc"
	ColASIN          = "asin"
	ColSKU           = "sku"
	ColProductName   = "product_name"
	ColPurchaseCount = "purchase_bundle_count"
	ColSellingCount  = "selling_bundle_count"
	ColQuantity      = "purchase_order_quantity"
)

var requiredColumns = []string{ColClientCode, ColProductName, ColPurchaseCount, ColSellingCount, ColQuantity}

// Row is one parsed spreadsheet line. Line is the 1-based spreadsheet row.
type Row struct {
	Line        int
	ClientCode  string
	UPC         string
	ASIN        string
	SKU         string
	ProductName string
	Config      reconcile.OrderConfig
}

// Keys returns one dedupe key per product identifier the row carries, in
// UPC, ASIN, SKU order. Empty when the row has no product identifier.
func (r Row) Keys() []string {
	var keys []string
	for _, id := range []struct{ kind, value string }{{"upc", r.UPC}, {"asin", r.ASIN}, {"sku", r.SKU}} {
		if id.value != "" {
			keys = append(keys, r.ClientCode+"|"+id.kind+"|"+id.value)
		}
	}
	return keys
}

// Issue explains why a spreadsheet row was skipped or altered.
type Issue struct {
	Line    int    `json:"line"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Field == "" {
		return fmt.Sprintf("row %d: %s", i.Line, i.Message)
	}
	return fmt.Sprintf("row %d: %s: %s", i.Line, i.Field, i.Message)
}

// ParseRows maps raw records onto Rows. Blank rows are ignored, malformed rows
// become issues. Out-of-range bundle counts and quantities are clamped.
func ParseRows(records [][]string) ([]Row, []Issue, error) {
	if len(records) == 0 {
		return nil, nil, ErrEmptyFile
	}
	index := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("importer: missing columns: %s", strings.Join(missing, ", "))
	}

	var (
		rows   []Row
		issues []Issue
	)
	for n, record := range records[1:] {
		line := n + 2
		get := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		if blank(record) {
			continue
		}

		row := Row{
			Line:        line,
			ClientCode:  warehouseorders.NormalizeClientCode(get(ColClientCode)),
			UPC:         get(ColUPC),
			ASIN:        strings.ToUpper(get(ColASIN)),
			SKU:         get(ColSKU),
			ProductName: get(ColProductName),
		}
		var bad bool
		for _, f := range []struct {
			col  string
			dest *int64
		}{
			{ColPurchaseCount, &row.Config.PurchaseBundleCount},
			{ColSellingCount, &row.Config.SellingBundleCount},
			{ColQuantity, &row.Config.PurchaseOrderQuantity},
		} {
			v, err := parseCount(get(f.col))
			if err != nil {
				issues = append(issues, Issue{Line: line, Field: f.col, Message: err.Error()})
				bad = true
				break
			}
			*f.dest = v
		}
		if bad {
			continue
		}
		clamped := reconcile.ClampConfig(row.Config)
		if clamped != row.Config {
			issues = append(issues, Issue{Line: line, Message: "bundle configuration clamped to valid bounds"})
			row.Config = clamped
		}
		rows = append(rows, row)
	}
	return rows, issues, nil
}

// parseCount accepts integers and whole-number floats, which is how xlsx
// cells with numeric formatting come back.
func parseCount(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	raw = strings.ReplaceAll(raw, ",", "")
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q is not a number", raw)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%q is not a whole number", raw)
	}
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("%q is out of range", raw)
	}
	return int64(f), nil
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
