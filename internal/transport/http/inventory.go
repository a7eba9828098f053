package http

import (
	"context"
	"net/http"

	"github.com/Agbobli5373/grocery-shop/internal/domain"
	"go.uber.org/zap"
)

type InventoryService interface {
	StockLevel(ctx context.Context, productID int64) (domain.StockLevel, error)
	LowStock(ctx context.Context) ([]domain.StockLevel, error)
	Restock(ctx context.Context, productID int64, qty int) (domain.StockChange, error)
	Threshold() int
}

type restockRequest struct {
	Quantity int `json:"quantity"`
}

type stockChangeResponse struct {
	ProductID int64 `json:"product_id"`
	OldStock  int   `json:"old_stock"`
	NewStock  int   `json:"new_stock"`
}

type stockLevelResponse struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
}

type lowStockResponse struct {
	Threshold int                  `json:"threshold"`
	Products  []stockLevelResponse `json:"products"`
}

func HandleRestock(svc InventoryService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, ok := pathID(r, "productID")
		if !ok {
			writeError(w, http.StatusBadRequest, codeInvalidID, domain.ErrInvalidID.Error())
			return
		}
		var req restockRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		change, err := svc.Restock(r.Context(), productID, req.Quantity)
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, stockChangeResponse{
			ProductID: change.ProductID,
			OldStock:  change.Previous,
			NewStock:  change.Current,
		})
	}
}

func HandleStockLevel(svc InventoryService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, ok := pathID(r, "productID")
		if !ok {
			writeError(w, http.StatusBadRequest, codeInvalidID, domain.ErrInvalidID.Error())
			return
		}
		level, err := svc.StockLevel(r.Context(), productID)
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, newStockLevelResponse(level))
	}
}

func HandleLowStock(svc InventoryService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		levels, err := svc.LowStock(r.Context())
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, newLowStockResponse(svc.Threshold(), levels))
	}
}

func newStockLevelResponse(level domain.StockLevel) stockLevelResponse {
	return stockLevelResponse{
		ProductID:   level.ProductID,
		ProductName: level.ProductName,
		Quantity:    level.Quantity,
	}
}

func newLowStockResponse(threshold int, levels []domain.StockLevel) lowStockResponse {
	resp := lowStockResponse{Threshold: threshold, Products: make([]stockLevelResponse, 0, len(levels))}
	for _, level := range levels {
		resp.Products = append(resp.Products, newStockLevelResponse(level))
	}
	return resp
}
