package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Agbobli5373/grocery-shop/internal/domain"
	"go.uber.org/zap"
)

const (
	codeMethodNotAllowed     = "method_not_allowed"
	codeNotFound             = "not_found"
	codeInvalidRequestBody   = "invalid_request_body"
	codeInvalidID            = "invalid_id"
	codeCustomerRequired     = "customer_id_required"
	codeAddressRequired      = "delivery_address_required"
	codeInvalidQuantity      = "invalid_quantity"
	codeInvalidStatus        = "invalid_status"
	codeInvalidTransition    = "invalid_status_transition"
	codeEmptyCart            = "cart_empty"
	codeInsufficientStock    = "insufficient_stock"
	codeProductNotFound      = "product_not_found"
	codeOrderNotFound        = "order_not_found"
	codeCheckoutUnavailable  = "checkout_unavailable"
	codeStreamingUnsupported = "streaming_unsupported"
	codeLiveUnavailable      = "live_unavailable"
	codeForbidden            = "forbidden"
	codeInternalError        = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`

	ProductID int64 `json:"product_id,omitempty"`
	Requested int   `json:"requested,omitempty"`
	Available *int  `json:"available,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeErrorResponse(w, status, errorResponse{Error: msg, Code: code})
}

func writeErrorResponse(w http.ResponseWriter, status int, resp errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(resp)
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrEmptyCart, http.StatusUnprocessableEntity, codeEmptyCart},
	{domain.ErrCustomerRequired, http.StatusBadRequest, codeCustomerRequired},
	{domain.ErrDeliveryAddressMissing, http.StatusBadRequest, codeAddressRequired},
	{domain.ErrInvalidQuantity, http.StatusBadRequest, codeInvalidQuantity},
	{domain.ErrInvalidID, http.StatusBadRequest, codeInvalidID},
	{domain.ErrInvalidStatus, http.StatusBadRequest, codeInvalidStatus},
	{domain.ErrInvalidTransition, http.StatusConflict, codeInvalidTransition},
	{domain.ErrProductNotFound, http.StatusNotFound, codeProductNotFound},
	{domain.ErrOrderNotFound, http.StatusNotFound, codeOrderNotFound},
	{domain.ErrCheckoutUnavailable, http.StatusServiceUnavailable, codeCheckoutUnavailable},
}

// writeServiceError maps a service error to its HTTP response. Unknown errors
// are logged and reported as 500 without detail.
func writeServiceError(w http.ResponseWriter, log *zap.Logger, err error) {
	var stockErr *domain.InsufficientStockError
	if errors.As(err, &stockErr) {
		available := stockErr.Available
		writeErrorResponse(w, http.StatusConflict, errorResponse{
			Error:     stockErr.Error(),
			Code:      codeInsufficientStock,
			ProductID: stockErr.ProductID,
			Requested: stockErr.Requested,
			Available: &available,
		})
		return
	}
	for _, m := range errorStatus {
		if errors.Is(err, m.err) {
			if m.status == http.StatusServiceUnavailable {
				w.Header().Set("Retry-After", "1")
			}
			writeError(w, m.status, m.code, m.err.Error())
			return
		}
	}
	if log != nil {
		log.Error("unhandled service error", zap.Error(err))
	}
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
