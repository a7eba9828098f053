package http

import (
	"context"
	"net/http"

	"github.com/Agbobli5373/grocery-shop/internal/app"
	"github.com/Agbobli5373/grocery-shop/internal/domain"
	"go.uber.org/zap"
)

type CartEditor interface {
	Cart(ctx context.Context, customerID int64) (domain.CartSnapshot, error)
	SetItem(ctx context.Context, in app.SetCartItemInput) error
}

type cartResponse struct {
	CustomerID  int64              `json:"customer_id"`
	Items       []cartItemResponse `json:"items"`
	TotalAmount string             `json:"total_amount"`
}

type cartItemResponse struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	TotalPrice  string `json:"total_price"`
}

func newCartResponse(snap domain.CartSnapshot) cartResponse {
	items := make([]cartItemResponse, 0, len(snap.Lines))
	for _, l := range snap.Lines {
		items = append(items, cartItemResponse{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   money(l.UnitPrice),
			TotalPrice:  money(l.Subtotal()),
		})
	}
	return cartResponse{CustomerID: snap.CustomerID, Items: items, TotalAmount: money(snap.Total())}
}

// HandleGetCart returns the caller's cart at current prices.
func HandleGetCart(svc CartEditor, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customer, ok := requireCustomer(w, r)
		if !ok {
			return
		}
		snap, err := svc.Cart(r.Context(), customer)
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, newCartResponse(snap))
	}
}

type setCartItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// HandleSetCartItem sets the quantity of one line in the caller's cart.
func HandleSetCartItem(svc CartEditor, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customer, ok := requireCustomer(w, r)
		if !ok {
			return
		}
		var req setCartItemRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		err := svc.SetItem(r.Context(), app.SetCartItemInput{
			CustomerID: customer,
			ProductID:  req.ProductID,
			Quantity:   req.Quantity,
		})
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
