package importer

import (
	"fmt"
	"math"
)

// Dedupe collapses rows of one client that share any product identifier.
// Duplicates with the same bundle counts merge by summing the order quantity;
// duplicates that disagree on bundle counts or on an identifier both carry are
// dropped with an issue, as are rows without any product key. Surviving rows
// keep the order of their first appearance.
func Dedupe(rows []Row) ([]Row, []Issue) {
	var (
		out    []Row
		issues []Issue
	)
	seen := make(map[string]int, len(rows))
	for _, row := range rows {
		keys := row.Keys()
		if len(keys) == 0 {
			issues = append(issues, Issue{Line: row.Line, Message: "row has no upc, asin or sku"})
			continue
		}
		var (
			idx int
			ok  bool
		)
		for _, key := range keys {
			if idx, ok = seen[key]; ok {
				break
			}
		}
		if !ok {
			for _, key := range keys {
				seen[key] = len(out)
			}
			out = append(out, row)
			continue
		}
		first := &out[idx]
		if field := identifierMismatch(*first, row); field != "" {
			issues = append(issues, Issue{
				Line:    row.Line,
				Field:   field,
				Message: fmt.Sprintf("conflicts with row %d: %s differs for the same product", first.Line, field),
			})
			continue
		}
		if first.Config.PurchaseBundleCount != row.Config.PurchaseBundleCount ||
			first.Config.SellingBundleCount != row.Config.SellingBundleCount {
			issues = append(issues, Issue{
				Line:    row.Line,
				Message: fmt.Sprintf("conflicts with row %d: bundle counts differ for the same product", first.Line),
			})
			continue
		}
		if first.Config.PurchaseOrderQuantity > math.MaxInt64-row.Config.PurchaseOrderQuantity {
			issues = append(issues, Issue{Line: row.Line, Field: ColQuantity, Message: "merged quantity overflows"})
			continue
		}
		first.Config.PurchaseOrderQuantity += row.Config.PurchaseOrderQuantity
		fillIdentifiers(first, row)
		for _, key := range first.Keys() {
			if _, taken := seen[key]; !taken {
				seen[key] = idx
			}
		}
		issues = append(issues, Issue{Line: row.Line, Message: fmt.Sprintf("merged into row %d", first.Line)})
	}
	return out, issues
}

func identifierMismatch(a, b Row) string {
	switch {
	case a.UPC != "" && b.UPC != "" && a.UPC != b.UPC:
		return ColUPC
	case a.ASIN != "" && b.ASIN != "" && a.ASIN != b.ASIN:
		return ColASIN
	case a.SKU != "" && b.SKU != "" && a.SKU != b.SKU:
		return ColSKU
	}
	return ""
}

func fillIdentifiers(dst *Row, src Row) {
	if dst.UPC == "" {
		dst.UPC = src.UPC
	}
	if dst.ASIN == "" {
		dst.ASIN = src.ASIN
	}
	if dst.SKU == "" {
		dst.SKU = src.SKU
	}
}
