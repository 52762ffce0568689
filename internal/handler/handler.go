// Package handler содержит HTTP-обработчики API сервиса пекарни.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mmeshcher/bakery-system/internal/lifecycle"
	"github.com/mmeshcher/bakery-system/internal/middleware"
	"github.com/mmeshcher/bakery-system/internal/model"
	"github.com/mmeshcher/bakery-system/internal/repository"
	"github.com/mmeshcher/bakery-system/internal/service"
	"github.com/mmeshcher/bakery-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Register(ctx context.Context, email, password, fullName string) (*model.Account, error)
	Authenticate(ctx context.Context, email, password string) (*model.Account, error)
	PlaceOrder(ctx context.Context, order *model.Order) (string, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus) error
	TrackOrder(ctx context.Context, orderID string) (*model.Order, error)
	OrdersByCustomer(ctx context.Context, customerID int64) ([]model.Order, error)
	OrdersByDate(ctx context.Context, date string, byReceiveDate bool) ([]model.Order, error)
	UpdateEmployeeNote(ctx context.Context, orderID, note string) error
	Menu(ctx context.Context) ([]model.Product, error)
	SearchMenu(ctx context.Context, query string) ([]model.Product, error)
	ProductByID(ctx context.Context, id int64) (*model.Product, error)
	Stock(ctx context.Context) ([]model.Product, error)
	CreateProduct(ctx context.Context, p *model.Product) (int64, error)
	UpdateProduct(ctx context.Context, p *model.Product) error
	DeactivateProduct(ctx context.Context, id int64) error
	DailyRevenue(ctx context.Context, date string) (*model.RevenueReport, error)
	WeeklyRevenue(ctx context.Context, start, end string) ([]model.RevenueReport, error)
}

// Handler реализует HTTP-обработчики API сервиса пекарни.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	checkout       *validatorv10.Validate
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		checkout:       validation.NewCheckoutValidator(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error     string `json:"error"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	ProductID int64  `json:"productId,omitempty"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

type tokenResponse struct {
	Token    string `json:"token"`
	Role     string `json:"role"`
	FullName string `json:"fullName"`
}

// Register обрабатывает регистрацию нового покупателя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	acc, err := h.service.Register(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		if errors.Is(err, repository.ErrAccountExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.respondWithToken(w, acc)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login выполняет аутентификацию и возвращает токен доступа.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	acc, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.respondWithToken(w, acc)
}

func (h *Handler) respondWithToken(w http.ResponseWriter, acc *model.Account) {
	token, err := h.authMiddleware.IssueToken(acc.ID, acc.Role)
	if err != nil {
		h.logger.Error("issue token error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:    token,
		Role:     string(acc.Role),
		FullName: acc.FullName,
	})
}

type productResponse struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Stock       int32   `json:"stock"`
	Status      string  `json:"status"`
}

func toProductResponse(p model.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Category:    p.Category,
		Description: p.Description,
		Price:       float64(p.PriceCents) / 100,
		Stock:       p.Stock,
		Status:      string(p.Status),
	}
}

func (h *Handler) writeProducts(w http.ResponseWriter, products []model.Product) {
	resp := make([]productResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, toProductResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Menu возвращает активные товары каталога.
func (h *Handler) Menu(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.Menu(r.Context())
	if err != nil {
		h.logger.Error("menu error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.writeProducts(w, products)
}

// SearchMenu ищет товары по подстроке из параметра q.
func (h *Handler) SearchMenu(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	products, err := h.service.SearchMenu(r.Context(), query)
	if err != nil {
		h.logger.Error("search error", zap.Error(err), zap.String("query", query))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.writeProducts(w, products)
}

// ProductByID возвращает карточку товара.
func (h *Handler) ProductByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	p, err := h.service.ProductByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, lifecycle.ErrProductNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get product error", zap.Error(err), zap.Int64("productID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(*p))
}

// Checkout оформляет заказ. Запрос может быть гостевым: идентификатор
// покупателя берётся из токена, если он передан.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req validation.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.checkout.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	order := &model.Order{
		ID:             req.ID,
		TotalCents:     int64(math.Round(req.TotalAmount * 100)),
		Payment:        req.Payment,
		ReceiveDate:    req.ReceiveDate,
		ReceiveTime:    req.ReceiveTime,
		Note:           req.Note,
		ReceiveAddress: req.Address,
		Receiver:       req.Receiver,
		ReceivePhone:   req.Phone,
	}

	if customerID, ok := middleware.GetAccountIDFromContext(r.Context()); ok {
		order.CustomerID = &customerID
	}

	for _, item := range req.Items {
		order.Lines = append(order.Lines, model.OrderLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	id, err := h.service.PlaceOrder(r.Context(), order)
	if err != nil {
		switch {
		case errors.Is(err, lifecycle.ErrEmptyOrder), errors.Is(err, lifecycle.ErrInvalidQuantity):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		case errors.Is(err, lifecycle.ErrProductNotFound):
			writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		default:
			h.logger.Error("checkout error", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

type orderLineResponse struct {
	ProductID   int64   `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    int32   `json:"quantity"`
	Price       float64 `json:"price"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	Date            string              `json:"date"`
	TotalAmount     float64             `json:"totalAmount"`
	Status          string              `json:"status"`
	Payment         string              `json:"payment"`
	ReceiveDate     string              `json:"receiveDate,omitempty"`
	ReceiveTime     string              `json:"receiveTime,omitempty"`
	ShippingAddress string              `json:"shippingAddress"`
	CustomerName    string              `json:"customerName"`
	Phone           string              `json:"phone"`
	Note            string              `json:"note,omitempty"`
	EmployeeNote    string              `json:"employeeNote,omitempty"`
	Items           []orderLineResponse `json:"items"`
}

func toOrderResponse(o model.Order) orderResponse {
	resp := orderResponse{
		ID:              o.ID,
		Date:            o.CreatedAt.Format(time.RFC3339),
		TotalAmount:     float64(o.TotalCents) / 100,
		Status:          string(o.Status),
		Payment:         o.Payment,
		ReceiveDate:     o.ReceiveDate,
		ReceiveTime:     o.ReceiveTime,
		ShippingAddress: o.ReceiveAddress,
		CustomerName:    o.Receiver,
		Phone:           o.ReceivePhone,
		Note:            o.Note,
		EmployeeNote:    o.EmployeeNote,
		Items:           make([]orderLineResponse, 0, len(o.Lines)),
	}

	for _, l := range o.Lines {
		resp.Items = append(resp.Items, orderLineResponse{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			Price:       float64(l.PriceCents) / 100,
		})
	}

	return resp
}

// TrackOrder возвращает заказ для страницы отслеживания.
func (h *Handler) TrackOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	o, err := h.service.TrackOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, lifecycle.ErrOrderNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("track order error", zap.Error(err), zap.String("order", orderID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(*o))
}

func (h *Handler) writeOrders(w http.ResponseWriter, orders []model.Order) {
	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

// OrderHistory возвращает историю заказов текущего покупателя.
func (h *Handler) OrderHistory(w http.ResponseWriter, r *http.Request) {
	customerID, ok := middleware.GetAccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orders, err := h.service.OrdersByCustomer(r.Context(), customerID)
	if err != nil {
		h.logger.Error("order history error", zap.Error(err), zap.Int64("customerID", customerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeOrders(w, orders)
}

// OrdersByDate возвращает заказы за день для панели сотрудника.
// Параметр filter выбирает дату оформления или дату выдачи.
func (h *Handler) OrdersByDate(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	byReceiveDate := r.URL.Query().Get("filter") == "receive_date"

	orders, err := h.service.OrdersByDate(r.Context(), date, byReceiveDate)
	if err != nil {
		h.logger.Error("orders by date error", zap.Error(err), zap.String("date", date))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeOrders(w, orders)
}

type updateStatusRequest struct {
	Order  string `json:"order"`
	Status string `json:"status"`
}

// UpdateOrderStatus переводит заказ в новый статус.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Order == "" || req.Status == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	err := h.service.UpdateOrderStatus(r.Context(), req.Order, model.OrderStatus(req.Status))
	if err != nil {
		h.writeTransitionError(w, req.Order, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// writeTransitionError транслирует ошибки жизненного цикла заказа в HTTP-статусы.
func (h *Handler) writeTransitionError(w http.ResponseWriter, orderID string, err error) {
	var invalidTransition *lifecycle.InvalidTransitionError
	var outOfStock *lifecycle.OutOfStockError

	switch {
	case errors.Is(err, lifecycle.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "order not found"})
	case errors.Is(err, service.ErrUnknownStatus):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.As(err, &invalidTransition):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: invalidTransition.Error(),
			From:  string(invalidTransition.From),
			To:    string(invalidTransition.To),
		})
	case errors.As(err, &outOfStock):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:     outOfStock.Error(),
			ProductID: outOfStock.ProductID,
		})
	case errors.Is(err, lifecycle.ErrLockTimeout):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "lock timeout, retry later"})
	default:
		h.logger.Error("update status error", zap.Error(err), zap.String("order", orderID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

type updateNoteRequest struct {
	Note string `json:"note"`
}

// UpdateEmployeeNote сохраняет служебную заметку сотрудника на заказе.
func (h *Handler) UpdateEmployeeNote(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var req updateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateEmployeeNote(r.Context(), orderID, req.Note); err != nil {
		if errors.Is(err, lifecycle.ErrOrderNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("update note error", zap.Error(err), zap.String("order", orderID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Stock возвращает все товары с остатками.
func (h *Handler) Stock(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.Stock(r.Context())
	if err != nil {
		h.logger.Error("stock error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.writeProducts(w, products)
}

type productRequest struct {
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Stock       int32   `json:"stock"`
	Status      string  `json:"status"`
}

func (req *productRequest) toModel() *model.Product {
	return &model.Product{
		Name:        req.Name,
		Category:    req.Category,
		Description: req.Description,
		PriceCents:  int64(math.Round(req.Price * 100)),
		Stock:       req.Stock,
		Status:      model.ProductStatus(req.Status),
	}
}

// CreateProduct добавляет товар в каталог.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Name == "" || req.Price < 0 || req.Stock < 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.CreateProduct(r.Context(), req.toModel())
	if err != nil {
		h.logger.Error("create product error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// UpdateProduct обновляет атрибуты товара.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Name == "" || req.Price < 0 || req.Stock < 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	p := req.toModel()
	p.ID = id

	if err := h.service.UpdateProduct(r.Context(), p); err != nil {
		if errors.Is(err, lifecycle.ErrProductNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("update product error", zap.Error(err), zap.Int64("productID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// DeleteProduct снимает товар с продажи.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.DeactivateProduct(r.Context(), id); err != nil {
		if errors.Is(err, lifecycle.ErrProductNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("delete product error", zap.Error(err), zap.Int64("productID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// DailyRevenue возвращает отчёт о выручке за день.
func (h *Handler) DailyRevenue(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	report, err := h.service.DailyRevenue(r.Context(), date)
	if err != nil {
		h.logger.Error("revenue error", zap.Error(err), zap.String("date", date))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// WeeklyRevenue возвращает выручку по дням за период.
func (h *Handler) WeeklyRevenue(w http.ResponseWriter, r *http.Request) {
	start := r.URL.Query().Get("start")
	end := r.URL.Query().Get("end")
	if start == "" || end == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	reports, err := h.service.WeeklyRevenue(r.Context(), start, end)
	if err != nil {
		h.logger.Error("weekly revenue error", zap.Error(err), zap.String("start", start), zap.String("end", end))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, reports)
}
