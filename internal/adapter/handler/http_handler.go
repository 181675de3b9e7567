package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tillworks/till/internal/adapter/barcode"
	"github.com/tillworks/till/internal/core/cart"
	"github.com/tillworks/till/internal/core/domain"
	"github.com/tillworks/till/internal/core/service"
	"github.com/tillworks/till/internal/port"
)

// HTTPHandler exposes the JSON API consumed by the terminal UI. Cart
// state is addressed by the X-Terminal-Session header; identity comes
// from the Authorization bearer token.
type HTTPHandler struct {
	catalog  *service.CatalogService
	checkout *service.CheckoutService
	reports  *service.ReportService
	carts    *cart.Registry
	auth     port.AuthProvider
	log      *logrus.Logger
}

func NewHTTPHandler(catalog *service.CatalogService, checkout *service.CheckoutService, reports *service.ReportService, carts *cart.Registry, auth port.AuthProvider, log *logrus.Logger) *HTTPHandler {
	return &HTTPHandler{
		catalog:  catalog,
		checkout: checkout,
		reports:  reports,
		carts:    carts,
		auth:     auth,
		log:      log,
	}
}

// Router wires every route. Admin and checkout routes require a valid
// session token.
func (h *HTTPHandler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/products", h.ListProducts).Methods(http.MethodGet)
	api.HandleFunc("/products/sku/{sku}", h.LookupSKU).Methods(http.MethodGet)
	api.HandleFunc("/categories", h.ListCategories).Methods(http.MethodGet)
	api.HandleFunc("/scan", h.Scan).Methods(http.MethodPost)
	api.HandleFunc("/transactions", h.ListTransactions).Methods(http.MethodGet)
	api.HandleFunc("/reports/sales", h.SalesReport).Methods(http.MethodGet)

	api.HandleFunc("/cart", h.GetCart).Methods(http.MethodGet)
	api.HandleFunc("/cart", h.ClearCart).Methods(http.MethodDelete)
	api.HandleFunc("/cart/items", h.AddCartItem).Methods(http.MethodPost)
	api.HandleFunc("/cart/items/{productID}", h.SetCartItemQuantity).Methods(http.MethodPut)
	api.HandleFunc("/cart/items/{productID}", h.RemoveCartItem).Methods(http.MethodDelete)

	authed := api.NewRoute().Subrouter()
	authed.Use(h.requireUser)
	authed.HandleFunc("/products", h.CreateProduct).Methods(http.MethodPost)
	authed.HandleFunc("/products/{id}", h.UpdateProduct).Methods(http.MethodPut)
	authed.HandleFunc("/products/{id}", h.DeleteProduct).Methods(http.MethodDelete)
	authed.HandleFunc("/products/{id}/stock", h.UpdateProductStock).Methods(http.MethodPut)
	authed.HandleFunc("/checkout", h.Checkout).Methods(http.MethodPost)
	authed.HandleFunc("/auth/signout", h.SignOut).Methods(http.MethodPost)

	return r
}

type errorResponse struct {
	Error     string `json:"error"`
	Available *int   `json:"available,omitempty"`
	Shortfall string `json:"shortfall,omitempty"`
}

type productResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Price         string `json:"price"`
	SKU           string `json:"sku"`
	Category      string `json:"category"`
	StockQuantity int    `json:"stock_quantity"`
	ImageURL      string `json:"image_url,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

func toProductResponse(p domain.Product) productResponse {
	return productResponse{
		ID:            p.ID,
		Name:          p.Name,
		Price:         p.Price.StringFixed(2),
		SKU:           p.SKU,
		Category:      p.Category,
		StockQuantity: p.StockQuantity,
		ImageURL:      p.ImageURL,
		CreatedAt:     p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     p.UpdatedAt.Format(time.RFC3339),
	}
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListProducts(r.Context())
	if err != nil {
		h.serverError(w, err)
		return
	}

	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) LookupSKU(w http.ResponseWriter, r *http.Request) {
	sku := mux.Vars(r)["sku"]
	product, err := h.catalog.LookupSKU(r.Context(), sku)
	if errors.Is(err, service.ErrProductNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "product not found"})
		return
	}
	if err != nil {
		h.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

type scanRequest struct {
	Payload string `json:"payload"`
}

// Scan resolves a captured barcode payload to a product.
func (h *HTTPHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	product, err := h.catalog.ScanBarcode(r.Context(), []byte(req.Payload))
	switch {
	case errors.Is(err, barcode.ErrUnreadable):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrProductNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "product not found"})
	case err != nil:
		h.serverError(w, err)
	default:
		writeJSON(w, http.StatusOK, toProductResponse(product))
	}
}

func (h *HTTPHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.Categories(r.Context())
	if err != nil {
		h.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

type productRequest struct {
	Name          string `json:"name"`
	Price         string `json:"price"`
	SKU           string `json:"sku"`
	Category      string `json:"category"`
	StockQuantity int    `json:"stock_quantity"`
	ImageURL      string `json:"image_url"`
}

func (req productRequest) fields() (port.ProductFields, error) {
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		return port.ProductFields{}, domain.ErrInvalidPrice
	}
	if !price.IsPositive() {
		return port.ProductFields{}, domain.ErrInvalidPrice
	}
	if req.StockQuantity < 0 {
		return port.ProductFields{}, domain.ErrNegativeStock
	}
	return port.ProductFields{
		Name:          req.Name,
		Price:         price,
		SKU:           req.SKU,
		Category:      req.Category,
		StockQuantity: req.StockQuantity,
		ImageURL:      req.ImageURL,
	}, nil
}

func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	fields, err := req.fields()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	product, err := h.catalog.CreateProduct(r.Context(), fields)
	if err != nil {
		h.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductResponse(product))
}

func (h *HTTPHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	fields, err := req.fields()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	product, err := h.catalog.UpdateProduct(r.Context(), id, fields)
	if errors.Is(err, port.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "product not found"})
		return
	}
	if err != nil {
		h.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

func (h *HTTPHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := h.catalog.DeleteProduct(r.Context(), id)
	if errors.Is(err, port.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "product not found"})
		return
	}
	if err != nil {
		h.serverError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type stockRequest struct {
	Quantity int `json:"quantity"`
}

func (h *HTTPHandler) UpdateProductStock(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req stockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	err := h.catalog.UpdateProductStock(r.Context(), id, req.Quantity)
	switch {
	case errors.Is(err, domain.ErrNegativeStock):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, port.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "product not found"})
	case err != nil:
		h.serverError(w, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

type cartLineResponse struct {
	Product   productResponse `json:"product"`
	Quantity  int             `json:"quantity"`
	LineTotal string          `json:"line_total"`
}

type cartResponse struct {
	Lines    []cartLineResponse `json:"lines"`
	Subtotal string             `json:"subtotal"`
	Tax      string             `json:"tax"`
	Total    string             `json:"total"`
}

func (h *HTTPHandler) cartView(l *cart.Ledger) cartResponse {
	lines := l.Lines()
	out := cartResponse{
		Lines:    make([]cartLineResponse, 0, len(lines)),
		Subtotal: l.Subtotal().StringFixed(2),
		Tax:      l.Tax().StringFixed(2),
		Total:    l.Total().StringFixed(2),
	}
	for _, line := range lines {
		out.Lines = append(out.Lines, cartLineResponse{
			Product:   toProductResponse(line.Product),
			Quantity:  line.Quantity,
			LineTotal: line.LineTotal().StringFixed(2),
		})
	}
	return out
}

func (h *HTTPHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ledger, ok := h.sessionLedger(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.cartView(ledger))
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
}

func (h *HTTPHandler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	ledger, ok := h.sessionLedger(w, r)
	if !ok {
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	var (
		product domain.Product
		err     error
	)
	if req.SKU != "" {
		product, err = h.catalog.LookupSKU(r.Context(), req.SKU)
	} else {
		var found bool
		product, found, err = h.catalog.GetProduct(r.Context(), req.ProductID)
		if err == nil && !found {
			err = service.ErrProductNotFound
		}
	}
	if errors.Is(err, service.ErrProductNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "product not found"})
		return
	}
	if err != nil {
		h.serverError(w, err)
		return
	}

	if err := ledger.Add(product, req.Quantity); err != nil {
		h.cartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.cartView(ledger))
}

type setQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *HTTPHandler) SetCartItemQuantity(w http.ResponseWriter, r *http.Request) {
	ledger, ok := h.sessionLedger(w, r)
	if !ok {
		return
	}

	var req setQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	if err := ledger.SetQuantity(mux.Vars(r)["productID"], req.Quantity); err != nil {
		h.cartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.cartView(ledger))
}

func (h *HTTPHandler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	ledger, ok := h.sessionLedger(w, r)
	if !ok {
		return
	}
	ledger.Remove(mux.Vars(r)["productID"])
	writeJSON(w, http.StatusOK, h.cartView(ledger))
}

func (h *HTTPHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ledger, ok := h.sessionLedger(w, r)
	if !ok {
		return
	}
	ledger.Clear()
	writeJSON(w, http.StatusOK, h.cartView(ledger))
}

type checkoutRequest struct {
	RequestID     string `json:"request_id"`
	CustomerEmail string `json:"customer_email"`
	CashTendered  string `json:"cash_tendered"`
}

type checkoutResponse struct {
	TransactionID string `json:"transaction_id"`
	Subtotal      string `json:"subtotal"`
	Tax           string `json:"tax"`
	Total         string `json:"total"`
	Change        string `json:"change"`
}

func (h *HTTPHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ledger, ok := h.sessionLedger(w, r)
	if !ok {
		return
	}
	user := userFrom(r)

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	svcReq := service.CheckoutRequest{
		RequestID:     req.RequestID,
		CustomerEmail: req.CustomerEmail,
		CreatedBy:     user.ID,
	}
	if req.CashTendered != "" {
		cash, err := decimal.NewFromString(req.CashTendered)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid cash amount"})
			return
		}
		svcReq.CashTendered = &cash
	}

	result, err := h.checkout.Checkout(r.Context(), ledger, svcReq)
	if err != nil {
		h.checkoutError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, checkoutResponse{
		TransactionID: result.Transaction.ID,
		Subtotal:      result.Transaction.Subtotal.StringFixed(2),
		Tax:           result.Transaction.Tax.StringFixed(2),
		Total:         result.Transaction.Total.StringFixed(2),
		Change:        result.Change.StringFixed(2),
	})
}

type transactionItemResponse struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
	Quantity    int    `json:"quantity"`
	PriceAtTime string `json:"price_at_time"`
	LineTotal   string `json:"line_total"`
}

type transactionResponse struct {
	ID            string                    `json:"id"`
	Subtotal      string                    `json:"subtotal"`
	Tax           string                    `json:"tax"`
	Total         string                    `json:"total"`
	CustomerEmail string                    `json:"customer_email,omitempty"`
	CreatedBy     string                    `json:"created_by"`
	CreatedAt     string                    `json:"created_at"`
	Items         []transactionItemResponse `json:"items"`
}

func (h *HTTPHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	transactions, err := h.reports.ListTransactions(r.Context(), filter)
	if err != nil {
		h.serverError(w, err)
		return
	}

	out := make([]transactionResponse, 0, len(transactions))
	for _, tx := range transactions {
		resp := transactionResponse{
			ID:            tx.ID,
			Subtotal:      tx.Subtotal.StringFixed(2),
			Tax:           tx.Tax.StringFixed(2),
			Total:         tx.Total.StringFixed(2),
			CustomerEmail: tx.CustomerEmail,
			CreatedBy:     tx.CreatedBy,
			CreatedAt:     tx.CreatedAt.Format(time.RFC3339),
			Items:         make([]transactionItemResponse, 0, len(tx.Items)),
		}
		for _, item := range tx.Items {
			itemResp := transactionItemResponse{
				ProductID:   item.ProductID,
				Quantity:    item.Quantity,
				PriceAtTime: item.PriceAtTime.StringFixed(2),
				LineTotal:   item.LineTotal().StringFixed(2),
			}
			if item.Product != nil {
				itemResp.ProductName = item.Product.Name
			}
			resp.Items = append(resp.Items, itemResp)
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

type salesReportResponse struct {
	TotalSales       string                   `json:"total_sales"`
	TransactionCount int                      `json:"transaction_count"`
	AverageValue     string                   `json:"average_value"`
	TopProducts      []productRevenueResponse `json:"top_products"`
}

type productRevenueResponse struct {
	ProductID    string `json:"product_id"`
	Name         string `json:"name,omitempty"`
	QuantitySold int    `json:"quantity_sold"`
	Revenue      string `json:"revenue"`
}

func (h *HTTPHandler) SalesReport(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	report, err := h.reports.BuildReport(r.Context(), filter)
	if err != nil {
		h.serverError(w, err)
		return
	}

	resp := salesReportResponse{
		TotalSales:       report.TotalSales.StringFixed(2),
		TransactionCount: report.TransactionCount,
		AverageValue:     report.AverageValue.StringFixed(2),
		TopProducts:      make([]productRevenueResponse, 0, len(report.TopProducts)),
	}
	for _, p := range report.TopProducts {
		resp.TopProducts = append(resp.TopProducts, productRevenueResponse{
			ProductID:    p.ProductID,
			Name:         p.Name,
			QuantitySold: p.QuantitySold,
			Revenue:      p.Revenue.StringFixed(2),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if err := h.auth.SignOut(r.Context(), token); err != nil {
		h.serverError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseFilter(r *http.Request) (port.TransactionFilter, error) {
	var filter port.TransactionFilter
	if from := r.URL.Query().Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return filter, errors.New("invalid from date")
		}
		filter.From = t
	}
	if to := r.URL.Query().Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return filter, errors.New("invalid to date")
		}
		filter.To = t
	}
	return filter, nil
}

func (h *HTTPHandler) sessionLedger(w http.ResponseWriter, r *http.Request) (*cart.Ledger, bool) {
	session := r.Header.Get("X-Terminal-Session")
	if session == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing X-Terminal-Session header"})
		return nil, false
	}
	return h.carts.Ledger(session), true
}

func (h *HTTPHandler) cartError(w http.ResponseWriter, err error) {
	var exceeded *cart.StockExceededError
	switch {
	case errors.As(err, &exceeded):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:     err.Error(),
			Available: &exceeded.Available,
		})
	case errors.Is(err, cart.ErrOutOfStock):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, cart.ErrInvalidQuantity):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		h.serverError(w, err)
	}
}

func (h *HTTPHandler) checkoutError(w http.ResponseWriter, err error) {
	var short *service.InsufficientPaymentError
	switch {
	case errors.Is(err, service.ErrEmptyCart):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.As(err, &short):
		writeJSON(w, http.StatusPaymentRequired, errorResponse{
			Error:     err.Error(),
			Shortfall: short.Shortfall.StringFixed(2),
		})
	case errors.Is(err, service.ErrDuplicateCheckout):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrStockConflict):
		writeJSON(w, http.StatusGone, errorResponse{Error: err.Error()})
	default:
		h.serverError(w, err)
	}
}

func (h *HTTPHandler) serverError(w http.ResponseWriter, err error) {
	h.log.WithError(err).Error("request failed")
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

type contextKey string

const userContextKey contextKey = "user"

func (h *HTTPHandler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
			return
		}

		user, ok, err := h.auth.CurrentUser(r.Context(), token)
		if err != nil {
			h.serverError(w, err)
			return
		}
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid or expired session"})
			return
		}

		ctx := contextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
