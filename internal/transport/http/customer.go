package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// customerHeader carries the already authenticated customer id.
const customerHeader = "X-Customer-ID"

func customerID(r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(r.Header.Get(customerHeader))
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// requireCustomer writes a 401 and returns false when the header is missing.
func requireCustomer(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := customerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, codeCustomerRequired, "missing or invalid "+customerHeader+" header")
		return 0, false
	}
	return id, true
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
