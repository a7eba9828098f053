package http

import (
	"context"
	"net/http"

	"github.com/Agbobli5373/grocery-shop/internal/app"
	"github.com/Agbobli5373/grocery-shop/internal/domain"
	"go.uber.org/zap"
)

type CheckoutRunner interface {
	Checkout(ctx context.Context, in app.CheckoutInput) (domain.Order, error)
}

type checkoutRequest struct {
	DeliveryAddress string `json:"delivery_address"`
}

// HandleCheckout turns the caller's cart into a pending order.
func HandleCheckout(svc CheckoutRunner, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customer, ok := requireCustomer(w, r)
		if !ok {
			return
		}

		var req checkoutRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		order, err := svc.Checkout(r.Context(), app.CheckoutInput{
			CustomerID:      customer,
			DeliveryAddress: req.DeliveryAddress,
		})
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, newOrderResponse(order))
	}
}
