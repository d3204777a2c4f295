package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
)

const (
	defaultHistoryDays    = 30
	defaultDailySalesDays = 7

	maxBodyBytes = 1 << 20
)

// Services groups the operations exposed over HTTP.
type Services struct {
	Ledger          *service.Ledger
	Purchases       *service.PurchaseService
	Production      *service.ProductionService
	Sales           *service.SalesService
	Autoconsumption *service.AutoconsumptionService
	Catalog         *service.RecipeCatalog
	Costs           *service.RecipeCostCalculator
	Reports         *service.Reports
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type HTTPHandler struct {
	svc    Services
	health Pinger
	log    *zap.Logger
}

func NewHTTPHandler(svc Services, health Pinger, log *zap.Logger) *HTTPHandler {
	return &HTTPHandler{svc: svc, health: health, log: log}
}

// Register mounts every route on mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.HealthCheck)

	mux.HandleFunc("POST /api/products", h.CreateProduct)
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/products/low-stock", h.LowStock)
	mux.HandleFunc("GET /api/products/{id}", h.GetProduct)
	mux.HandleFunc("PATCH /api/products/{id}", h.UpdateProduct)
	mux.HandleFunc("DELETE /api/products/{id}", h.DeleteProduct)

	mux.HandleFunc("POST /api/purchases", h.Purchase)
	mux.HandleFunc("GET /api/purchases", h.PurchaseHistory)
	mux.HandleFunc("POST /api/productions", h.Production)
	mux.HandleFunc("GET /api/productions", h.ProductionHistory)
	mux.HandleFunc("POST /api/sales", h.Sale)
	mux.HandleFunc("GET /api/sales", h.SalesHistory)
	mux.HandleFunc("POST /api/autoconsumption", h.Autoconsumption)
	mux.HandleFunc("GET /api/autoconsumption", h.AutoconsumptionHistory)

	mux.HandleFunc("POST /api/recipes", h.CreateRecipe)
	mux.HandleFunc("GET /api/recipes/analysis", h.RecipeAnalysis)
	mux.HandleFunc("POST /api/recipes/{id}/ingredients", h.AddIngredient)
	mux.HandleFunc("POST /api/recipes/{id}/workers", h.AddWorker)
	mux.HandleFunc("GET /api/recipes/{id}/cost", h.RecipeCost)

	mux.HandleFunc("GET /api/reports/sales-by-recipe", h.SalesByRecipe)
	mux.HandleFunc("GET /api/reports/top-clients", h.TopClients)
	mux.HandleFunc("GET /api/reports/daily-sales", h.DailySales)
	mux.HandleFunc("GET /api/reports/profit-by-recipe", h.ProfitByRecipe)
	mux.HandleFunc("GET /api/reports/totals", h.Totals)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.health.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := h.svc.Ledger.CreateProduct(r.Context(), service.NewProduct{
		Name:        req.Name,
		BaseUnit:    req.BaseUnit,
		DisplayUnit: req.DisplayUnit,
		MinStock:    req.MinStock,
		Supplier:    req.Supplier,
		Notes:       req.Notes,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.Ledger.ListProducts(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, productList(products))
}

func (h *HTTPHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.Reports.LowStock(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, productList(products))
}

func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	p, err := h.svc.Ledger.GetProduct(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newProductResponse(*p))
}

func (h *HTTPHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req UpdateProductRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.MinStock != nil {
		if err := h.svc.Ledger.UpdateMinStock(r.Context(), id, *req.MinStock); err != nil {
			h.writeError(w, err)
			return
		}
	}
	if req.DisplayUnit != "" {
		if err := h.svc.Ledger.UpdateDisplayUnit(r.Context(), id, req.DisplayUnit); err != nil {
			h.writeError(w, err)
			return
		}
	}
	h.GetProduct(w, r)
}

func (h *HTTPHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Ledger.DeleteProduct(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := h.svc.Purchases.RegisterPurchase(r.Context(), service.PurchaseInput{
		RequestID:       requestID(r),
		ProductName:     req.ProductName,
		Quantity:        req.Quantity,
		Unit:            req.Unit,
		UnitPrice:       req.UnitPrice,
		Type:            req.Type,
		Supplier:        req.Supplier,
		Notes:           req.Notes,
		PackageWeight:   req.PackageWeight,
		UnitsPerPackage: req.UnitsPerPackage,
		MinStock:        req.MinStock,
		DisplayUnit:     req.DisplayUnit,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"product_id": id})
}

func (h *HTTPHandler) PurchaseHistory(w http.ResponseWriter, r *http.Request) {
	days, ok := h.queryDays(w, r)
	if !ok {
		return
	}
	var productID int64
	if raw := r.URL.Query().Get("product_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			h.writeError(w, domain.Invalid("product_id", "must be a positive integer"))
			return
		}
		productID = id
	}
	purchases, err := h.svc.Reports.PurchaseHistory(r.Context(), days, productID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]PurchaseResponse, 0, len(purchases))
	for _, p := range purchases {
		out = append(out, newPurchaseResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) Production(w http.ResponseWriter, r *http.Request) {
	var req ProductionRequest
	if !h.decode(w, r, &req) {
		return
	}
	ingredients := make([]service.IngredientUse, 0, len(req.Ingredients))
	for _, ing := range req.Ingredients {
		ingredients = append(ingredients, service.IngredientUse(ing))
	}
	id, err := h.svc.Production.RegisterProduction(r.Context(), service.ProductionInput{
		RequestID:        requestID(r),
		ElaboratedName:   req.ElaboratedName,
		Ingredients:      ingredients,
		QuantityProduced: req.QuantityProduced,
		UnitProduced:     req.UnitProduced,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"product_id": id})
}

func (h *HTTPHandler) ProductionHistory(w http.ResponseWriter, r *http.Request) {
	days, ok := h.queryDays(w, r)
	if !ok {
		return
	}
	runs, err := h.svc.Reports.ProductionHistory(r.Context(), days)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]ProductionResponse, 0, len(runs))
	for _, p := range runs {
		out = append(out, ProductionResponse{
			ID:               p.ID,
			ProductID:        p.ProductID,
			QuantityProduced: p.QuantityProduced,
			UnitProduced:     p.UnitProduced,
			CostPerUnit:      p.CostPerUnit,
			TotalCost:        p.TotalCost,
			Ingredients:      len(p.Lines),
			ProducedAt:       p.ProducedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) Sale(w http.ResponseWriter, r *http.Request) {
	var req SaleRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := h.svc.Sales.RegisterSale(r.Context(), service.SaleInput{
		RequestID:    requestID(r),
		RecipeID:     req.RecipeID,
		QuantitySold: req.QuantitySold,
		SalePrice:    req.SalePrice,
		ClientName:   req.ClientName,
		ClientNotes:  req.ClientNotes,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"sale_id": id})
}

func (h *HTTPHandler) SalesHistory(w http.ResponseWriter, r *http.Request) {
	days, ok := h.queryDays(w, r)
	if !ok {
		return
	}
	sales, err := h.svc.Reports.SalesHistory(r.Context(), days)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]SaleResponse, 0, len(sales))
	for _, s := range sales {
		out = append(out, SaleResponse{
			ID:           s.ID,
			RecipeID:     s.RecipeID,
			QuantitySold: s.QuantitySold,
			SalePrice:    s.SalePrice,
			ClientName:   s.ClientName,
			Revenue:      s.Revenue,
			CostOfGoods:  s.CostOfGoods,
			SoldAt:       s.SoldAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) Autoconsumption(w http.ResponseWriter, r *http.Request) {
	var req AutoconsumptionRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := h.svc.Autoconsumption.RegisterAutoconsumption(r.Context(), service.AutoconsumptionInput{
		RequestID: requestID(r),
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Unit:      req.Unit,
		Reason:    req.Reason,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"record_id": id})
}

func (h *HTTPHandler) AutoconsumptionHistory(w http.ResponseWriter, r *http.Request) {
	days, ok := h.queryDays(w, r)
	if !ok {
		return
	}
	records, err := h.svc.Reports.AutoconsumptionHistory(r.Context(), days)
	if err != nil {
		h.writeError(w, err)
		return
	}
	total := decimal.Zero
	out := make([]AutoconsumptionResponse, 0, len(records))
	for _, a := range records {
		total = total.Add(a.Cost)
		out = append(out, AutoconsumptionResponse{
			ID:           a.ID,
			ProductID:    a.ProductID,
			Quantity:     a.Quantity,
			Unit:         a.Unit,
			BaseQuantity: a.BaseQuantity,
			AverageCost:  a.AverageCost,
			Cost:         a.Cost,
			Reason:       a.Reason,
			ConsumedAt:   a.ConsumedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": out, "total_cost": total})
}

func (h *HTTPHandler) CreateRecipe(w http.ResponseWriter, r *http.Request) {
	var req RecipeRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := h.svc.Catalog.Create(r.Context(), req.Name, req.Category, req.SalePrice)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *HTTPHandler) AddIngredient(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req IngredientRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.Catalog.AddIngredient(r.Context(), id, req.ProductID, req.Quantity, req.Unit); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) AddWorker(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req WorkerRequest
	if !h.decode(w, r, &req) {
		return
	}
	workerID, err := h.svc.Catalog.AddWorker(r.Context(), id, req.Name, req.Payment)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": workerID})
}

// RecipeCost answers from live averages unless preview=true is given.
func (h *HTTPHandler) RecipeCost(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	preview := q.Get("preview") == "true"

	var (
		cost decimal.Decimal
		err  error
	)
	if preview {
		cost, err = h.svc.Costs.PreviewRecipeCost(r.Context(), id)
	} else {
		cost, err = h.svc.Costs.CalculateRecipeCost(r.Context(), id)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	labor, err := h.svc.Costs.CalculateLaborCost(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := RecipeCostResponse{RecipeID: id, IngredientCost: cost, LaborCost: labor, Preview: preview}
	if raw := q.Get("sale_price"); raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			h.writeError(w, domain.Invalid("sale_price", "must be a decimal number"))
			return
		}
		if err := domain.CheckAmount("sale_price", price); err != nil {
			h.writeError(w, err)
			return
		}
		profit := price.Sub(cost)
		resp.ProfitPerUnit = &profit
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) RecipeAnalysis(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.svc.Costs.Analysis(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]RecipeAnalysisResponse, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, newRecipeAnalysisResponse(s))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) SalesByRecipe(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.Reports.SalesByRecipe(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]RecipeSalesResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, RecipeSalesResponse(row))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) TopClients(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, domain.Invalid("limit", fmt.Sprintf("%q is not an integer", raw)))
			return
		}
		limit = n
	}
	rows, err := h.svc.Reports.TopClients(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]ClientSpendResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, ClientSpendResponse(row))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) DailySales(w http.ResponseWriter, r *http.Request) {
	days := defaultDailySalesDays
	if r.URL.Query().Has("days") {
		var ok bool
		if days, ok = h.queryDays(w, r); !ok {
			return
		}
	}
	rows, err := h.svc.Reports.DailySales(r.Context(), days)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]DailyRevenueResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, DailyRevenueResponse{Day: row.Day.Format(time.DateOnly), Revenue: row.Revenue})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) ProfitByRecipe(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.Reports.ProfitByRecipe(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]RecipeProfitResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, RecipeProfitResponse(row))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) Totals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.svc.Reports.Totals(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TotalsResponse(totals))
}

func productList(products []domain.Product) []ProductResponse {
	out := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		out = append(out, newProductResponse(p))
	}
	return out
}

// requestID reads the client's de-duplication key.
func requestID(r *http.Request) string {
	return r.Header.Get("Idempotency-Key")
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "invalid request body",
			Reason: "validation",
		})
		return false
	}
	return true
}

func (h *HTTPHandler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, domain.Invalid("id", "must be a positive integer"))
		return 0, false
	}
	return id, true
}

func (h *HTTPHandler) queryDays(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return defaultHistoryDays, true
	}
	days, err := strconv.Atoi(raw)
	if err != nil {
		h.writeError(w, domain.Invalid("days", fmt.Sprintf("%q is not an integer", raw)))
		return 0, false
	}
	return days, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrUnitUnknown),
		errors.Is(err, domain.ErrUnitMismatch):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateName),
		errors.Is(err, domain.ErrDuplicateRequest),
		errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrReferencedOrNonZeroStock):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.Int("status", status), zap.Error(err))
		message = "internal error"
		if status == http.StatusServiceUnavailable {
			message = "storage unavailable"
		}
	}
	writeJSON(w, status, ErrorResponse{Error: message, Reason: domain.Classify(err)})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
