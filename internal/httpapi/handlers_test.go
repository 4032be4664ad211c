package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mitsys/backend/internal/cache"
	"mitsys/backend/internal/domain"
	"mitsys/backend/internal/service"
	"mitsys/backend/internal/store/memory"
)

func newTestAPI() (*API, *AuthManager) {
	svc := service.New(memory.NewSeeded(), cache.NoopCatalogCache{}, 0)
	auth := NewAuthManager("0123456789abcdef0123456789abcdef", time.Hour, "739154")
	return New(svc, auth, "http://127.0.0.1:3000"), auth
}

func TestHealthEndpoint(t *testing.T) {
	api, _ := newTestAPI()
	handler := api.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestDeleteProductRequiresManagerUnlock(t *testing.T) {
	api, _ := newTestAPI()
	handler := api.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/products/1", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status without token = %d, want 403", rec.Code)
	}

	// Unlock with the manager PIN, then retry with the bearer token.
	body, _ := json.Marshal(domain.UnlockRequest{PIN: "739154"})
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/unlock", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unlock status = %d: %s", rec.Code, rec.Body.String())
	}
	var unlock domain.UnlockResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &unlock); err != nil {
		t.Fatalf("decode unlock: %v", err)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/products/1", nil)
	req.Header.Set("Authorization", "Bearer "+unlock.AccessToken)
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status with token = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestUnknownProductIs404(t *testing.T) {
	api, _ := newTestAPI()
	handler := api.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products/999", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCreateProductDuplicateIs409(t *testing.T) {
	api, _ := newTestAPI()
	handler := api.Handler()

	// The seeded catalog already holds product 1.
	body := []byte(`{"id":1,"name":"Tostadas","unit_price":"35","unit_of_measure":"Pza"}`)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", rec.Code, rec.Body.String())
	}
}

func TestFinalizeSaleEndpointReturnsReceiptAndRender(t *testing.T) {
	api, _ := newTestAPI()
	handler := api.Handler()

	body := []byte(`{
		"lines": [{"product_id":3,"name":"Refresco","quantity":2,"unit_price":"25","total":"50"}],
		"payment_method": "Efectivo",
		"amount_received": "100"
	}`)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales/finalize", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Receipt domain.Receipt       `json:"receipt"`
		Render  domain.ReceiptRender `json:"render"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Receipt.SaleNumber != 1 {
		t.Fatalf("sale number = %d", resp.Receipt.SaleNumber)
	}
	if resp.Render.PreviewText == "" {
		t.Fatalf("expected render preview")
	}
}

func TestUnlockRateLimited(t *testing.T) {
	api, _ := newTestAPI()
	handler := api.Handler()

	var last int
	for i := 0; i < 10; i++ {
		body, _ := json.Marshal(domain.UnlockRequest{PIN: "000000"})
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/unlock", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "10.0.0.9:55555"
		handler.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("status after hammering = %d, want 429", last)
	}
}
