package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
)

type idempotencySet map[string]bool

func (s idempotencySet) SetIdempotency(ctx context.Context, key string) (bool, error) {
	if s[key] {
		return false, nil
	}
	s[key] = true
	return true, nil
}

func (s idempotencySet) ReleaseIdempotency(ctx context.Context, key string) error {
	delete(s, key)
	return nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := zaptest.NewLogger(t)
	store := storage.NewMemoryStore(time.Second)
	opts := []service.Option{service.WithLogger(log), service.WithIdempotency(idempotencySet{})}
	ledger := service.NewLedger(store, opts...)

	h := NewHTTPHandler(Services{
		Ledger:          ledger,
		Purchases:       service.NewPurchaseService(store, ledger, opts...),
		Production:      service.NewProductionService(store, ledger, opts...),
		Sales:           service.NewSalesService(store, ledger, opts...),
		Autoconsumption: service.NewAutoconsumptionService(store, ledger, opts...),
		Catalog:         service.NewRecipeCatalog(store, opts...),
		Costs:           service.NewRecipeCostCalculator(store, opts...),
		Reports:         service.NewReports(store, opts...),
	}, store, log)

	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any, headers ...string) (int, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	out.ReadFrom(resp.Body)
	return resp.StatusCode, out.Bytes()
}

func decodeBody[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return v
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t)
	status, body := do(t, srv, http.MethodGet, "/health", nil)
	if status != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", status, body)
	}
}

func TestPurchaseAndProductFlow(t *testing.T) {
	srv := newTestServer(t)

	status, body := do(t, srv, http.MethodPost, "/api/purchases", map[string]any{
		"product_name":  "Flour",
		"quantity":      "2",
		"unit":          "kg",
		"unit_price":    "1.5",
		"purchase_type": "bulk",
		"min_stock":     "5000",
		"display_unit":  "g",
	})
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", status, body)
	}
	id := decodeBody[map[string]int64](t, body)["product_id"]

	status, body = do(t, srv, http.MethodGet, fmt.Sprintf("/api/products/%d", id), nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	p := decodeBody[ProductResponse](t, body)
	if p.BaseUnit != "g" || !p.Quantity.Equal(decimal.NewFromInt(2000)) || !p.AverageCost.Equal(decimal.RequireFromString("0.0015")) {
		t.Errorf("unexpected product %+v", p)
	}
	if !p.BelowMinStock {
		t.Error("expected product to be below min stock")
	}

	status, body = do(t, srv, http.MethodGet, "/api/products/low-stock", nil)
	if low := decodeBody[[]ProductResponse](t, body); status != http.StatusOK || len(low) != 1 {
		t.Errorf("expected 1 low stock product, got %d: %s", status, body)
	}

	status, body = do(t, srv, http.MethodPatch, fmt.Sprintf("/api/products/%d", id), map[string]any{"min_stock": "100"})
	if p := decodeBody[ProductResponse](t, body); status != http.StatusOK || p.BelowMinStock {
		t.Errorf("expected min stock update, got %d: %s", status, body)
	}

	status, body = do(t, srv, http.MethodGet, "/api/purchases?days=7", nil)
	if history := decodeBody[[]PurchaseResponse](t, body); status != http.StatusOK || len(history) != 1 || !history[0].TotalCost.Equal(decimal.NewFromInt(3)) {
		t.Errorf("unexpected purchase history %d: %s", status, body)
	}

	status, _ = do(t, srv, http.MethodDelete, fmt.Sprintf("/api/products/%d", id), nil)
	if status != http.StatusConflict {
		t.Errorf("expected 409 deleting a stocked product, got %d", status)
	}
}

func TestRecipeSaleFlow(t *testing.T) {
	srv := newTestServer(t)

	_, body := do(t, srv, http.MethodPost, "/api/purchases", map[string]any{
		"product_name": "Flour", "quantity": "1000", "unit": "g", "unit_price": "0.002",
		"purchase_type": "bulk", "min_stock": "0", "display_unit": "kg",
	})
	flour := decodeBody[map[string]int64](t, body)["product_id"]

	status, body := do(t, srv, http.MethodPost, "/api/recipes", map[string]any{"name": "Bread", "category": "bakery", "sale_price": "2"})
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", status, body)
	}
	bread := decodeBody[map[string]int64](t, body)["id"]

	status, body = do(t, srv, http.MethodPost, fmt.Sprintf("/api/recipes/%d/ingredients", bread),
		map[string]any{"product_id": flour, "quantity": "0.25", "unit": "kg"})
	if status != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", status, body)
	}
	status, body = do(t, srv, http.MethodPost, fmt.Sprintf("/api/recipes/%d/workers", bread),
		map[string]any{"name": "Ana", "payment": "12"})
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", status, body)
	}

	status, body = do(t, srv, http.MethodGet, fmt.Sprintf("/api/recipes/%d/cost?sale_price=2", bread), nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	cost := decodeBody[RecipeCostResponse](t, body)
	if !cost.IngredientCost.Equal(decimal.RequireFromString("0.5")) || !cost.LaborCost.Equal(decimal.NewFromInt(12)) {
		t.Errorf("unexpected cost %+v", cost)
	}
	if cost.ProfitPerUnit == nil || !cost.ProfitPerUnit.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("unexpected profit %v", cost.ProfitPerUnit)
	}

	sale := map[string]any{"recipe_id": bread, "quantity_sold": 4, "sale_price": "2"}
	status, body = do(t, srv, http.MethodPost, "/api/sales", sale, "Idempotency-Key", "sale-1")
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", status, body)
	}
	status, body = do(t, srv, http.MethodPost, "/api/sales", sale, "Idempotency-Key", "sale-1")
	if reply := decodeBody[ErrorResponse](t, body); status != http.StatusConflict || reply.Reason != "duplicate_request" {
		t.Errorf("expected duplicate request conflict, got %d: %s", status, body)
	}

	status, body = do(t, srv, http.MethodPost, "/api/sales", map[string]any{"recipe_id": bread, "quantity_sold": 1, "sale_price": "2"})
	if reply := decodeBody[ErrorResponse](t, body); status != http.StatusConflict || reply.Reason != "insufficient_stock" {
		t.Errorf("expected insufficient stock conflict, got %d: %s", status, body)
	}

	status, body = do(t, srv, http.MethodGet, "/api/sales", nil)
	if sales := decodeBody[[]SaleResponse](t, body); status != http.StatusOK || len(sales) != 1 || !sales[0].CostOfGoods.Equal(decimal.NewFromInt(2)) {
		t.Errorf("unexpected sales %d: %s", status, body)
	}

	status, body = do(t, srv, http.MethodGet, "/api/recipes/analysis?category=bakery", nil)
	if analysis := decodeBody[[]RecipeAnalysisResponse](t, body); status != http.StatusOK || len(analysis) != 1 {
		t.Errorf("unexpected analysis %d: %s", status, body)
	}
}

func TestProductionAndAutoconsumption(t *testing.T) {
	srv := newTestServer(t)
	_, body := do(t, srv, http.MethodPost, "/api/purchases", map[string]any{
		"product_name": "Sugar", "quantity": "1", "unit": "kg", "unit_price": "4",
		"purchase_type": "bulk", "min_stock": "0", "display_unit": "kg",
	})
	sugar := decodeBody[map[string]int64](t, body)["product_id"]

	status, body := do(t, srv, http.MethodPost, "/api/productions", map[string]any{
		"elaborated_name":   "Syrup",
		"ingredients":       []map[string]any{{"product_id": sugar, "quantity": "500", "unit": "g"}},
		"quantity_produced": "1",
		"unit_produced":     "L",
	})
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", status, body)
	}

	status, body = do(t, srv, http.MethodPost, "/api/autoconsumption", map[string]any{
		"product_id": sugar, "quantity": "100", "unit": "g", "reason": "tasting",
	})
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", status, body)
	}

	status, body = do(t, srv, http.MethodGet, "/api/autoconsumption?days=1", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	history := decodeBody[struct {
		Records   []AutoconsumptionResponse `json:"records"`
		TotalCost decimal.Decimal           `json:"total_cost"`
	}](t, body)
	if len(history.Records) != 1 || !history.TotalCost.Equal(decimal.RequireFromString("0.4")) {
		t.Errorf("unexpected autoconsumption history %s", body)
	}

	status, body = do(t, srv, http.MethodGet, "/api/productions", nil)
	if runs := decodeBody[[]ProductionResponse](t, body); status != http.StatusOK || len(runs) != 1 || !runs[0].TotalCost.Equal(decimal.NewFromInt(2)) {
		t.Errorf("unexpected productions %d: %s", status, body)
	}
}

func TestRequestErrors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"malformed body", http.MethodPost, "/api/products", "not an object", http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/products", map[string]any{"name": "x", "colour": "red"}, http.StatusBadRequest},
		{"unknown unit", http.MethodPost, "/api/products", map[string]any{"name": "Flour", "base_unit": "stone"}, http.StatusBadRequest},
		{"bad id", http.MethodGet, "/api/products/abc", nil, http.StatusBadRequest},
		{"missing product", http.MethodGet, "/api/products/42", nil, http.StatusNotFound},
		{"missing recipe cost", http.MethodGet, "/api/recipes/42/cost", nil, http.StatusNotFound},
		{"non-positive days", http.MethodGet, "/api/sales?days=0", nil, http.StatusBadRequest},
		{"bad sale price", http.MethodPost, "/api/sales", map[string]any{"recipe_id": 1, "quantity_sold": 1, "sale_price": "0"}, http.StatusBadRequest},
		{"quantity out of range", http.MethodPost, "/api/purchases", map[string]any{
			"product_name": "Flour", "quantity": "1e50000000", "unit": "g", "unit_price": "1",
			"purchase_type": "bulk", "min_stock": "0", "display_unit": "kg",
		}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, srv, tt.method, tt.path, tt.body)
			if status != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, status, body)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.Invalid("name", "empty"), http.StatusBadRequest},
		{fmt.Errorf("convert: %w", domain.ErrUnitMismatch), http.StatusBadRequest},
		{domain.NotFound("product", 1), http.StatusNotFound},
		{domain.ErrDuplicateName, http.StatusConflict},
		{&domain.InsufficientStockError{}, http.StatusConflict},
		{domain.ErrReferencedOrNonZeroStock, http.StatusConflict},
		{domain.Persistence("commit", errors.New("gone")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v): expected %d, got %d", tt.err, tt.want, got)
		}
	}
}

func TestReportRoutes(t *testing.T) {
	srv := newTestServer(t)

	_, body := do(t, srv, http.MethodPost, "/api/purchases", map[string]any{
		"product_name": "Coffee", "quantity": "1", "unit": "kg", "unit_price": "20",
		"purchase_type": "bulk", "min_stock": "0", "display_unit": "kg",
	})
	coffee := decodeBody[map[string]int64](t, body)["product_id"]
	_, body = do(t, srv, http.MethodPost, "/api/recipes", map[string]any{"name": "Espresso", "category": "coffee", "sale_price": "3"})
	espresso := decodeBody[map[string]int64](t, body)["id"]
	do(t, srv, http.MethodPost, fmt.Sprintf("/api/recipes/%d/ingredients", espresso),
		map[string]any{"product_id": coffee, "quantity": "20", "unit": "g"})

	for _, client := range []string{"Ana", "Ana", "Bo"} {
		status, body := do(t, srv, http.MethodPost, "/api/sales",
			map[string]any{"recipe_id": espresso, "quantity_sold": 2, "sale_price": "3", "client_name": client})
		if status != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", status, body)
		}
	}

	status, body := do(t, srv, http.MethodGet, "/api/reports/sales-by-recipe", nil)
	if rows := decodeBody[[]RecipeSalesResponse](t, body); status != http.StatusOK || len(rows) != 1 || rows[0].UnitsSold != 6 {
		t.Errorf("unexpected sales by recipe %d: %s", status, body)
	}

	status, body = do(t, srv, http.MethodGet, "/api/reports/top-clients?limit=1", nil)
	if rows := decodeBody[[]ClientSpendResponse](t, body); status != http.StatusOK || len(rows) != 1 || rows[0].Name != "Ana" || !rows[0].Spent.Equal(decimal.NewFromInt(12)) {
		t.Errorf("unexpected top clients %d: %s", status, body)
	}

	status, body = do(t, srv, http.MethodGet, "/api/reports/daily-sales", nil)
	if rows := decodeBody[[]DailyRevenueResponse](t, body); status != http.StatusOK || len(rows) != 1 || !rows[0].Revenue.Equal(decimal.NewFromInt(18)) {
		t.Errorf("unexpected daily sales %d: %s", status, body)
	}

	status, body = do(t, srv, http.MethodGet, "/api/reports/profit-by-recipe", nil)
	if rows := decodeBody[[]RecipeProfitResponse](t, body); status != http.StatusOK || len(rows) != 1 || !rows[0].IngredientCost.Equal(decimal.RequireFromString("2.4")) {
		t.Errorf("unexpected profit by recipe %d: %s", status, body)
	}

	status, body = do(t, srv, http.MethodGet, "/api/reports/totals", nil)
	totals := decodeBody[TotalsResponse](t, body)
	if status != http.StatusOK || !totals.Profit.Equal(decimal.RequireFromString("15.6")) || !totals.TotalInvested.Equal(decimal.RequireFromString("17.6")) {
		t.Errorf("unexpected totals %d: %s", status, body)
	}

	status, body = do(t, srv, http.MethodGet, "/api/reports/top-clients?limit=x", nil)
	if status != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad limit, got %d: %s", status, body)
	}
}
