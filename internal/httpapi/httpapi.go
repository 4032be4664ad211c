// Package httpapi is the JSON boundary the desktop shell talks to. It is a
// thin translation layer: decode, call the service, map errors to statuses.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"mitsys/backend/internal/domain"
	"mitsys/backend/internal/service"
	"mitsys/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	pinLimiter    *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		pinLimiter:    newAttemptLimiter(8, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/unlock", a.handleUnlock)

	mux.HandleFunc("/api/v1/products", a.handleProducts)
	mux.HandleFunc("/api/v1/products/", a.handleProductActions)
	mux.HandleFunc("/api/v1/ingredients", a.handleIngredients)
	mux.HandleFunc("/api/v1/ingredients/", a.handleIngredientActions)
	mux.HandleFunc("/api/v1/recipes", a.handleRecipes)
	mux.HandleFunc("/api/v1/recipes/", a.handleRecipeActions)

	mux.HandleFunc("/api/v1/stock/global", a.handleGlobalStock)
	mux.HandleFunc("/api/v1/stock/refresh", a.handleStockRefresh)
	mux.HandleFunc("/api/v1/stock/low", a.handleLowStock)

	mux.HandleFunc("/api/v1/sales/finalize", a.handleFinalizeSale)
	mux.HandleFunc("/api/v1/sales/summary", a.handleSalesSummary)
	mux.HandleFunc("/api/v1/sales", a.handleSales)

	mux.HandleFunc("/api/v1/orders/pending", a.handlePendingTables)
	mux.HandleFunc("/api/v1/orders/pending/", a.handlePendingOrderActions)

	mux.HandleFunc("/api/v1/cash/opening", a.handleOpeningCash)
	mux.HandleFunc("/api/v1/cash/cut", a.handleCut)
	mux.HandleFunc("/api/v1/cash/cut/precheck", a.handleCutPrecheck)
	mux.HandleFunc("/api/v1/cash/cuts", a.handleCuts)
	mux.HandleFunc("/api/v1/cash/cuts/", a.handleCutActions)

	mux.HandleFunc("/api/v1/receipts/last", a.handleLastReceipt)
	mux.HandleFunc("/api/v1/config/auto-print", a.handleAutoPrint)
	mux.HandleFunc("/api/v1/audit-logs", a.requireManager(a.handleAuditLogs))

	return a.withMiddleware(mux)
}

// withActor puts the caller's identity on the context. Without a valid
// manager token every request runs as the operator.
func (a *API) withActor(r *http.Request) *http.Request {
	actor := domain.Actor{Name: domain.RoleOperator, Role: domain.RoleOperator}
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
		token := strings.TrimSpace(authorization[len("Bearer "):])
		if parsed, err := a.auth.ParseToken(token); err == nil {
			actor = parsed
		}
	}
	return r.WithContext(service.WithActor(r.Context(), actor))
}

func (a *API) requireManager(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := service.ActorFromContext(r.Context())
		if !ok || actor.Role != domain.RoleManager {
			writeError(w, http.StatusForbidden, errors.New("manager unlock required"))
			return
		}
		next(w, r)
	}
}

func (a *API) managerOnly(w http.ResponseWriter, r *http.Request) bool {
	actor, ok := service.ActorFromContext(r.Context())
	if !ok || actor.Role != domain.RoleManager {
		writeError(w, http.StatusForbidden, errors.New("manager unlock required"))
		return false
	}
	return true
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleUnlock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.pinLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many attempts"))
		return
	}
	var req domain.UnlockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.auth.Unlock(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- products ---

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		products, err := a.service.SearchProducts(r.Context(), r.URL.Query().Get("q"))
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, products)
	case http.MethodPost:
		var req domain.ProductCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		created, err := a.service.CreateProduct(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleProductActions(w http.ResponseWriter, r *http.Request) {
	tail := strings.TrimPrefix(r.URL.Path, "/api/v1/products/")
	if tail == "next-id" {
		a.handleNextID(w, r, a.service.NextProductID)
		return
	}

	idPart, rest, _ := strings.Cut(tail, "/")
	id, err := strconv.Atoi(idPart)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, errors.New("bad product id"))
		return
	}

	if rest == "recipe" {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		lines, err := a.service.ListRecipe(r.Context(), id)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, lines)
		return
	}
	if rest != "" {
		writeError(w, http.StatusNotFound, errors.New("unknown resource"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		product, err := a.service.GetProduct(r.Context(), id)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, product)
	case http.MethodPatch:
		var req domain.ProductUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := a.service.UpdateProduct(r.Context(), id, req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		if !a.managerOnly(w, r) {
			return
		}
		if err := a.service.DeleteProduct(r.Context(), id); err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		writeMethodNotAllowed(w)
	}
}

// --- ingredients ---

func (a *API) handleIngredients(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ingredients, err := a.service.SearchIngredients(r.Context(), r.URL.Query().Get("q"))
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ingredients)
	case http.MethodPost:
		var req domain.IngredientCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		created, err := a.service.CreateIngredient(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleIngredientActions(w http.ResponseWriter, r *http.Request) {
	tail := strings.TrimPrefix(r.URL.Path, "/api/v1/ingredients/")
	if tail == "next-id" {
		a.handleNextID(w, r, a.service.NextIngredientID)
		return
	}

	idPart, rest, _ := strings.Cut(tail, "/")
	id, err := strconv.Atoi(idPart)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, errors.New("bad ingredient id"))
		return
	}

	if rest == "purchase" {
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req struct {
			Quantity float64 `json:"quantity"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := a.service.RegisterIngredientPurchase(r.Context(), id, req.Quantity)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
		return
	}
	if rest != "" {
		writeError(w, http.StatusNotFound, errors.New("unknown resource"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		ingredient, err := a.service.GetIngredient(r.Context(), id)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ingredient)
	case http.MethodPatch:
		var req domain.IngredientUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := a.service.UpdateIngredient(r.Context(), id, req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		if !a.managerOnly(w, r) {
			return
		}
		if err := a.service.DeleteIngredient(r.Context(), id); err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		writeMethodNotAllowed(w)
	}
}

// --- recipes ---

func (a *API) handleRecipes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		lines, err := a.service.ListAllRecipeLines(r.Context())
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, lines)
	case http.MethodPost:
		var line domain.RecipeLine
		if err := decodeJSON(r, &line); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		created, err := a.service.CreateRecipeLine(r.Context(), line)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleRecipeActions(w http.ResponseWriter, r *http.Request) {
	tail := strings.TrimPrefix(r.URL.Path, "/api/v1/recipes/")
	if tail == "next-id" {
		a.handleNextID(w, r, a.service.NextRecipeLineID)
		return
	}

	id, err := strconv.Atoi(tail)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, errors.New("bad recipe line id"))
		return
	}

	switch r.Method {
	case http.MethodPatch:
		var req domain.RecipeLineUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := a.service.UpdateRecipeLine(r.Context(), id, req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		if !a.managerOnly(w, r) {
			return
		}
		if err := a.service.DeleteRecipeLine(r.Context(), id); err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		writeMethodNotAllowed(w)
	}
}

// --- stock ---

func (a *API) handleGlobalStock(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]bool{"enabled": a.service.GlobalStockEnabled(r.Context())})
	case http.MethodPut:
		if !a.managerOnly(w, r) {
			return
		}
		var req struct {
			Enabled bool `json:"enabled"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := a.service.SetGlobalStock(r.Context(), req.Enabled); err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleStockRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if err := a.service.RefreshAllEstimatedStocks(r.Context()); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

func (a *API) handleLowStock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	products, err := a.service.LowStockProducts(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// --- sales ---

func (a *API) handleFinalizeSale(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.FinalizeSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	receipt, err := a.service.FinalizeSale(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"receipt": receipt,
		"render":  a.service.RenderReceipt(receipt),
	})
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	lines, err := a.service.ListSalesByDay(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lines)
}

func (a *API) handleSalesSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	summary, err := a.service.DaySummary(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// --- pending orders ---

func (a *API) handlePendingTables(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	tables, err := a.service.ListPendingTables(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tables)
}

func (a *API) handlePendingOrderActions(w http.ResponseWriter, r *http.Request) {
	table := strings.TrimPrefix(r.URL.Path, "/api/v1/orders/pending/")
	if table == "" {
		writeError(w, http.StatusBadRequest, errors.New("table label required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		order, err := a.service.ResumeCart(r.Context(), table)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, order)
	case http.MethodPut:
		var req struct {
			Lines []domain.CartLine `json:"lines"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := a.service.StashCart(r.Context(), table, req.Lines); err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "stashed"})
	case http.MethodDelete:
		if err := a.service.StashCart(r.Context(), table, nil); err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	default:
		writeMethodNotAllowed(w)
	}
}

// --- cash ---

func (a *API) handleOpeningCash(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]bool{"entered_today": a.service.IsOpeningCashEnteredToday(r.Context())})
	case http.MethodPost:
		var req struct {
			Denominations []domain.DenominationCount `json:"denominations"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		total, err := a.service.RecordOpeningCash(r.Context(), req.Denominations)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"opening_cash": total.StringFixed(2)})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.PerformCutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cut, err := a.service.PerformCut(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cut)
}

func (a *API) handleCutPrecheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	tables, err := a.service.PendingTablesBeforeCut(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending_tables": tables})
}

func (a *API) handleCuts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter := domain.CutFilter{
			Day:    r.URL.Query().Get("date"),
			Status: r.URL.Query().Get("status"),
			Limit:  parsePositiveLimit(r.URL.Query().Get("limit"), 50, 500),
		}
		if raw := r.URL.Query().Get("number"); raw != "" {
			if number, err := strconv.Atoi(raw); err == nil {
				filter.CutNumber = number
			}
		}
		cuts, err := a.service.ListCashCuts(r.Context(), filter)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cuts)
	case http.MethodPost:
		if !a.managerOnly(w, r) {
			return
		}
		var req domain.ManualCutRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		cut, err := a.service.SaveManualCut(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, cut)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCutActions(w http.ResponseWriter, r *http.Request) {
	tail := strings.TrimPrefix(r.URL.Path, "/api/v1/cash/cuts/")
	id, err := strconv.Atoi(tail)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, errors.New("bad cut id"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		cut, err := a.service.GetCashCut(r.Context(), id)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cut)
	case http.MethodDelete:
		if !a.managerOnly(w, r) {
			return
		}
		if err := a.service.DeleteCashCut(r.Context(), id); err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		writeMethodNotAllowed(w)
	}
}

// --- misc ---

func (a *API) handleLastReceipt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"file_name": a.service.LastReceiptRef(r.Context())})
}

func (a *API) handleAutoPrint(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]bool{"enabled": a.service.AutoPrintEnabled(r.Context())})
	case http.MethodPut:
		var req struct {
			Enabled bool `json:"enabled"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := a.service.SetAutoPrint(r.Context(), req.Enabled); err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 1000)
	logs, err := a.service.ListAuditLogs(r.Context(), limit)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (a *API) handleNextID(w http.ResponseWriter, r *http.Request, next func(ctx context.Context) (int, error)) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	id, err := next(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"next_id": id})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		r = a.withActor(r)

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	var incomplete *service.IncompleteSaleError
	switch {
	case errors.As(err, &incomplete):
		log.Printf("internal error (incomplete sale): %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":           "sale incomplete",
			"sale_number":     incomplete.SaleNumber,
			"committed_lines": incomplete.Committed,
		})
	case errors.Is(err, store.ErrDuplicateID):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrValidation):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic so internals never leak to the client.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
