package http

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Agbobli5373/grocery-shop/internal/domain"
	"go.uber.org/zap"
)

func TestHandleCheckout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		customer       string
		body           string
		serviceErr     error
		expectedStatus int
		expectedSubstr string
	}{
		{
			name:           "success",
			customer:       "7",
			body:           `{"delivery_address":"1 Market St"}`,
			expectedStatus: http.StatusCreated,
			expectedSubstr: `"total_amount":"11.00"`,
		},
		{
			name:           "missing customer header",
			body:           `{"delivery_address":"1 Market St"}`,
			expectedStatus: http.StatusUnauthorized,
			expectedSubstr: codeCustomerRequired,
		},
		{
			name:           "invalid customer header",
			customer:       "abc",
			body:           `{"delivery_address":"1 Market St"}`,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "invalid json",
			customer:       "7",
			body:           `{"delivery_address":`,
			expectedStatus: http.StatusBadRequest,
			expectedSubstr: codeInvalidRequestBody,
		},
		{
			name:           "unknown field",
			customer:       "7",
			body:           `{"address":"x"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "empty cart",
			customer:       "7",
			body:           `{"delivery_address":"1 Market St"}`,
			serviceErr:     domain.ErrEmptyCart,
			expectedStatus: http.StatusUnprocessableEntity,
			expectedSubstr: codeEmptyCart,
		},
		{
			name:           "missing address",
			customer:       "7",
			body:           `{"delivery_address":""}`,
			serviceErr:     domain.ErrDeliveryAddressMissing,
			expectedStatus: http.StatusBadRequest,
			expectedSubstr: codeAddressRequired,
		},
		{
			name:           "insufficient stock",
			customer:       "7",
			body:           `{"delivery_address":"1 Market St"}`,
			serviceErr:     fmt.Errorf("reserve: %w", &domain.InsufficientStockError{ProductID: 3, Requested: 3, Available: 2}),
			expectedStatus: http.StatusConflict,
			expectedSubstr: `"available":2`,
		},
		{
			name:           "insufficient stock with nothing left",
			customer:       "7",
			body:           `{"delivery_address":"1 Market St"}`,
			serviceErr:     &domain.InsufficientStockError{ProductID: 3, Requested: 1, Available: 0},
			expectedStatus: http.StatusConflict,
			expectedSubstr: `"available":0`,
		},
		{
			name:           "unavailable",
			customer:       "7",
			body:           `{"delivery_address":"1 Market St"}`,
			serviceErr:     fmt.Errorf("persist order: %w", domain.ErrCheckoutUnavailable),
			expectedStatus: http.StatusServiceUnavailable,
			expectedSubstr: codeCheckoutUnavailable,
		},
		{
			name:           "internal error",
			customer:       "7",
			body:           `{"delivery_address":"1 Market St"}`,
			serviceErr:     errors.New("boom"),
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := &stubCheckout{order: sampleOrder(42, 7, domain.OrderStatusPending), err: tt.serviceErr}

			req := httptest.NewRequest(http.MethodPost, "/checkout", bytes.NewBufferString(tt.body))
			if tt.customer != "" {
				req.Header.Set(customerHeader, tt.customer)
			}
			rec := httptest.NewRecorder()

			HandleCheckout(svc, zap.NewNop()).ServeHTTP(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d (%s)", tt.expectedStatus, rec.Code, rec.Body.String())
			}
			if tt.expectedSubstr != "" && !strings.Contains(rec.Body.String(), tt.expectedSubstr) {
				t.Fatalf("expected response to contain %q, got %q", tt.expectedSubstr, rec.Body.String())
			}
		})
	}
}

func TestHandleCheckout_PassesCustomerAndAddress(t *testing.T) {
	t.Parallel()

	svc := &stubCheckout{order: sampleOrder(42, 7, domain.OrderStatusPending)}
	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(`{"delivery_address":"1 Market St"}`))
	req.Header.Set(customerHeader, "7")
	rec := httptest.NewRecorder()

	HandleCheckout(svc, nil).ServeHTTP(rec, req)

	if len(svc.got) != 1 || svc.got[0].CustomerID != 7 || svc.got[0].DeliveryAddress != "1 Market St" {
		t.Fatalf("unexpected service input %+v", svc.got)
	}
	if rec.Header().Get("Retry-After") != "" {
		t.Fatalf("expected no Retry-After on success")
	}
	if !strings.Contains(rec.Body.String(), `"id":"42"`) {
		t.Fatalf("expected string order id, got %s", rec.Body.String())
	}
}

func TestWriteServiceError_RetryAfterOnUnavailable(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writeServiceError(rec, nil, domain.ErrCheckoutUnavailable)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}
