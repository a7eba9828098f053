package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Agbobli5373/grocery-shop/internal/app"
	"github.com/Agbobli5373/grocery-shop/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type OrderReader interface {
	GetOrder(ctx context.Context, orderID int64) (domain.Order, error)
	ListCustomerOrders(ctx context.Context, customerID int64) ([]domain.Order, error)
}

type OrderUpdater interface {
	UpdateStatus(ctx context.Context, in app.UpdateStatusInput) (app.UpdateStatusResult, error)
	Cancel(ctx context.Context, orderID int64) (app.UpdateStatusResult, error)
}

type OrderService interface {
	OrderReader
	OrderUpdater
}

// HandleListOrders lists the caller's orders, newest first.
func HandleListOrders(svc OrderReader, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customer, ok := requireCustomer(w, r)
		if !ok {
			return
		}
		orders, err := svc.ListCustomerOrders(r.Context(), customer)
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		resp := make([]orderResponse, 0, len(orders))
		for _, order := range orders {
			resp = append(resp, newOrderResponse(order))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// HandleGetOrder returns one order. Customers only see their own orders; a
// mismatch reads as not found.
func HandleGetOrder(svc OrderReader, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customer, ok := requireCustomer(w, r)
		if !ok {
			return
		}
		orderID, ok := pathID(r, "orderID")
		if !ok {
			writeError(w, http.StatusBadRequest, codeInvalidID, domain.ErrInvalidID.Error())
			return
		}
		order, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		if order.CustomerID != customer {
			writeError(w, http.StatusNotFound, codeOrderNotFound, domain.ErrOrderNotFound.Error())
			return
		}
		writeJSON(w, http.StatusOK, newOrderResponse(order))
	}
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// HandleUpdateOrderStatus is the fulfilment-side status change.
func HandleUpdateOrderStatus(svc OrderUpdater, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, ok := pathID(r, "orderID")
		if !ok {
			writeError(w, http.StatusBadRequest, codeInvalidID, domain.ErrInvalidID.Error())
			return
		}
		var req updateStatusRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		status := domain.OrderStatus(strings.ToUpper(strings.TrimSpace(req.Status)))

		res, err := svc.UpdateStatus(r.Context(), app.UpdateStatusInput{OrderID: orderID, Status: status})
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, newStatusChangeResponse(res))
	}
}

func HandleCancelOrder(svc OrderUpdater, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, ok := pathID(r, "orderID")
		if !ok {
			writeError(w, http.StatusBadRequest, codeInvalidID, domain.ErrInvalidID.Error())
			return
		}
		res, err := svc.Cancel(r.Context(), orderID)
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, newStatusChangeResponse(res))
	}
}

type orderResponse struct {
	ID              int64               `json:"id,string"`
	CustomerID      int64               `json:"customer_id"`
	Status          string              `json:"status"`
	TotalAmount     string              `json:"total_amount"`
	DeliveryAddress string              `json:"delivery_address"`
	OrderDate       time.Time           `json:"order_date"`
	UpdatedAt       time.Time           `json:"updated_at"`
	Items           []orderItemResponse `json:"items"`
}

type orderItemResponse struct {
	ProductID  int64  `json:"product_id"`
	Quantity   int    `json:"quantity"`
	UnitPrice  string `json:"unit_price"`
	TotalPrice string `json:"total_price"`
}

func newOrderResponse(order domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			UnitPrice:  money(item.UnitPrice),
			TotalPrice: money(item.TotalPrice),
		})
	}
	return orderResponse{
		ID:              order.ID,
		CustomerID:      order.CustomerID,
		Status:          string(order.Status),
		TotalAmount:     money(order.TotalAmount),
		DeliveryAddress: order.DeliveryAddress,
		OrderDate:       order.OrderDate,
		UpdatedAt:       order.UpdatedAt,
		Items:           items,
	}
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

type statusChangeResponse struct {
	OrderID   int64     `json:"order_id,string"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newStatusChangeResponse(res app.UpdateStatusResult) statusChangeResponse {
	return statusChangeResponse{
		OrderID:   res.Order.ID,
		OldStatus: string(res.OldStatus),
		NewStatus: string(res.Order.Status),
		UpdatedAt: res.Order.UpdatedAt,
	}
}
