package warehouseorders

import (
	"time"

	"github.com/odyssey-erp/odyssey-wms/internal/reconcile"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

type configRequest struct {
	PurchaseBundleCount   int64 `json:"purchase_bundle_count" validate:"gte=1"`
	SellingBundleCount    int64 `json:"selling_bundle_count" validate:"gte=1"`
	PurchaseOrderQuantity int64 `json:"purchase_order_quantity" validate:"gte=0"`
}

func (c configRequest) toConfig() reconcile.OrderConfig {
	return reconcile.OrderConfig{
		PurchaseBundleCount:   c.PurchaseBundleCount,
		SellingBundleCount:    c.SellingBundleCount,
		PurchaseOrderQuantity: c.PurchaseOrderQuantity,
	}
}

type createLineRequest struct {
	ClientCode  string `json:"client_code" validate:"omitempty,alphanum,min=2,max=16"`
	SKU         string `json:"sku" validate:"max=64"`
	UPC         string `json:"upc" validate:"omitempty,numeric,max=14"`
	ASIN        string `json:"asin" validate:"omitempty,alphanum,len=10"`
	ProductName string `json:"product_name" validate:"required,max=300"`
	configRequest
}

type receiveRequest struct {
	GoodUnits    int64      `json:"received_good_units" validate:"gte=0"`
	DamagedUnits int64      `json:"received_damaged_units" validate:"gte=0"`
	ReceivedAt   *time.Time `json:"received_at"`
	Note         string     `json:"note" validate:"max=500"`
}

type lineResponse struct {
	ID          string                `json:"id"`
	ClientCode  string                `json:"client_code"`
	Sequence    int64                 `json:"sequence"`
	SKU         string                `json:"sku,omitempty"`
	UPC         string                `json:"upc,omitempty"`
	ASIN        string                `json:"asin,omitempty"`
	ProductName string                `json:"product_name"`
	Config      reconcile.OrderConfig `json:"config"`
	reconcile.OrderSnapshot
	Progress    reconcile.Progress `json:"progress"`
	Version     int64              `json:"version"`
	CreatedBy   int64              `json:"created_by"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	CancelledAt *time.Time         `json:"cancelled_at"`
}

func newLineResponse(line Line) lineResponse {
	resp := lineResponse{
		ID:            line.ID,
		ClientCode:    line.ClientCode,
		Sequence:      line.Sequence,
		SKU:           line.SKU,
		UPC:           line.UPC,
		ASIN:          line.ASIN,
		ProductName:   line.ProductName,
		Config:        line.Order.Config,
		OrderSnapshot: line.Snapshot(),
		Progress:      reconcile.ProgressFraction(line.Order),
		Version:       line.Version,
		CreatedBy:     line.CreatedBy,
		CreatedAt:     line.CreatedAt,
		UpdatedAt:     line.UpdatedAt,
	}
	if !line.CancelledAt.IsZero() {
		at := line.CancelledAt
		resp.CancelledAt = &at
	}
	return resp
}

type listResponse struct {
	Lines      []lineResponse    `json:"lines"`
	Pagination shared.Pagination `json:"pagination"`
}

type receiveResponse struct {
	Line  lineResponse    `json:"line"`
	Event ReceivingRecord `json:"event"`
}
