// Package handler содержит HTTP-обработчики API интернет-магазина.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dmarkua/storefront-system/internal/cart"
	"github.com/dmarkua/storefront-system/internal/middleware"
	"github.com/dmarkua/storefront-system/internal/model"
	"github.com/dmarkua/storefront-system/internal/pricing"
	"github.com/dmarkua/storefront-system/internal/repository"
	"github.com/dmarkua/storefront-system/internal/service"
	"github.com/dmarkua/storefront-system/internal/shipping"
	"github.com/dmarkua/storefront-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, firstName, lastName, email, password string) (int64, error)
	AuthenticateUser(ctx context.Context, email, password string) (int64, error)
	IsAdmin(ctx context.Context, userID int64) (bool, error)

	ListCatalog(ctx context.Context, f service.CatalogFilter) ([]service.CatalogItem, error)
	GetCatalogProduct(ctx context.Context, id int64) (*service.CatalogItem, error)

	Coefficient() decimal.Decimal
	SetCoefficient(v decimal.Decimal) error

	ViewCart(ctx context.Context, c cart.Cart) ([]model.CartLine, error)
	PlaceOrder(ctx context.Context, req service.OrderRequest) (int64, error)

	ListOrders(ctx context.Context, page int) ([]service.OrderDetails, error)
	GetOrder(ctx context.Context, id int64) (*service.OrderDetails, error)
	UpdateOrderItems(ctx context.Context, id int64, items []model.OrderItem) error
	UpdateOrderStatus(ctx context.Context, id int64, status int) error

	CreateProduct(ctx context.Context, np service.NewProduct) (int64, error)
	UpdateProduct(ctx context.Context, id int64, upd repository.ProductUpdate) error

	AddFavorite(ctx context.Context, userID, productID int64) error
	RemoveFavorite(ctx context.Context, userID, productID int64) error
	ListFavorites(ctx context.Context, userID int64) ([]service.CatalogItem, error)
	AddReview(ctx context.Context, userID int64, grade int) error

	SearchCities(ctx context.Context, prefix string) ([]string, error)
	SearchWarehouses(ctx context.Context, city, kind string) ([]string, error)
}

// Handler реализует HTTP-обработчики API интернет-магазина.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type productResponse struct {
	ID               int64    `json:"id"`
	Brand            string   `json:"brand"`
	BrandTranslation string   `json:"brand_translation"`
	Type             string   `json:"type"`
	Title            string   `json:"title"`
	TitleTranslation string   `json:"title_translation"`
	Description      string   `json:"description,omitempty"`
	Pictures         []string `json:"pictures,omitempty"`
	Volume           string   `json:"volume,omitempty"`
	Weight           string   `json:"weight,omitempty"`
	Stock            int      `json:"stock"`
	Visibility       bool     `json:"visibility"`
	// Price — отображаемая цена, два знака, разделитель запятая.
	Price string `json:"price"`
}

func toProductResponse(item service.CatalogItem) productResponse {
	p := item.Product
	return productResponse{
		ID:               p.ID,
		Brand:            p.BrandOriginal,
		BrandTranslation: p.BrandTranslation,
		Type:             p.Type,
		Title:            p.TitleOriginal,
		TitleTranslation: p.TitleTranslation,
		Description:      p.Description,
		Pictures:         p.Pictures,
		Volume:           p.Volume,
		Weight:           p.Weight,
		Stock:            int(p.Stock),
		Visibility:       p.Visibility,
		Price:            pricing.Format(item.DisplayPrice),
	}
}

type catalogResponse struct {
	Products  []productResponse `json:"products"`
	CartCount int               `json:"cart_count"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) listCatalog(w http.ResponseWriter, r *http.Request, f service.CatalogFilter) {
	items, err := h.service.ListCatalog(r.Context(), f)
	if err != nil {
		h.logger.Error("list catalog error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	c, _ := cart.FromRequest(r)

	resp := catalogResponse{
		Products:  make([]productResponse, 0, len(items)),
		CartCount: c.Len(),
	}
	for _, item := range items {
		resp.Products = append(resp.Products, toProductResponse(item))
	}

	h.writeJSON(w, resp)
}

// Catalog возвращает видимые товары каталога с отображаемыми ценами.
func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.listCatalog(w, r, service.CatalogFilter{
		Brand:    q.Get("brand"),
		Category: q.Get("category"),
		Search:   q.Get("search"),
	})
}

// Newest возвращает последние добавленные товары.
func (h *Handler) Newest(w http.ResponseWriter, r *http.Request) {
	h.listCatalog(w, r, service.CatalogFilter{Newest: true})
}

// Product возвращает карточку одного товара.
func (h *Handler) Product(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	item, err := h.service.GetCatalogProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get product error", zap.Error(err), zap.Int64("productID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, toProductResponse(*item))
}

type cartLineResponse struct {
	Product  productResponse `json:"product"`
	Quantity int             `json:"quantity"`
	Price    string          `json:"price"`
}

type cartResponse struct {
	Items []cartLineResponse `json:"items"`
	Count int                `json:"count"`
}

// GetCart возвращает содержимое корзины, сверенное с каталогом.
// Повреждённая cookie корзины сбрасывается, покупатель получает пустую корзину.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := cart.FromRequest(r)
	if errors.Is(err, cart.ErrBadToken) {
		cart.Clear(w)
	}

	lines, err := h.service.ViewCart(r.Context(), c)
	if err != nil {
		h.logger.Error("view cart error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := cartResponse{
		Items: make([]cartLineResponse, 0, len(lines)),
		Count: c.Len(),
	}
	for _, line := range lines {
		resp.Items = append(resp.Items, cartLineResponse{
			Product: toProductResponse(service.CatalogItem{
				Product:      line.Product,
				DisplayPrice: line.DisplayPrice,
			}),
			Quantity: line.Quantity,
			Price:    pricing.Format(line.DisplayPrice),
		})
	}

	h.writeJSON(w, resp)
}

type cartItemRequest struct {
	ID       int64 `json:"id"`
	Quantity int   `json:"quantity"`
}

type cartStatusResponse struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// AddCartItem добавляет товар в корзину. Повторное добавление той же
// позиции увеличивает количество и помечается как duplicate.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.ID <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	c, err := cart.FromRequest(r)
	if err != nil && !errors.Is(err, cart.ErrBadToken) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	fresh := c.Add(strconv.FormatInt(req.ID, 10), req.Quantity)

	if err := cart.Write(w, c); err != nil {
		h.logger.Error("write cart cookie error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	status := "added"
	if !fresh {
		status = "duplicate"
	}

	h.writeJSON(w, cartStatusResponse{Status: status, Count: c.Len()})
}

// RemoveCartItem убирает товар из корзины. Без параметра quantity позиция
// удаляется целиком, с параметром уменьшается на указанное количество.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	qty := 0
	if raw := r.URL.Query().Get("quantity"); raw != "" {
		parsed, ok := validation.ParsePositiveInt(raw)
		if !ok {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		qty = parsed
	}

	c, err := cart.FromRequest(r)
	if err != nil && !errors.Is(err, cart.ErrBadToken) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	c.Remove(id, qty)

	if err := cart.Write(w, c); err != nil {
		h.logger.Error("write cart cookie error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, cartStatusResponse{Status: "removed", Count: c.Len()})
}

type checkoutRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	Region      string `json:"region"`
	Address     string `json:"address"`
	Comment     string `json:"comment"`
}

type checkoutResponse struct {
	OrderID int64 `json:"order_id"`
}

// Checkout оформляет заказ из текущей корзины и очищает cookie корзины.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	c, err := cart.FromRequest(r)
	if err != nil && !errors.Is(err, cart.ErrBadToken) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	items := make([]model.OrderItem, 0, c.Len())
	for _, raw := range c.IDs() {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		items = append(items, model.OrderItem{ProductID: id, Amount: c.Items[raw]})
	}

	order := service.OrderRequest{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.PhoneNumber,
		Items:       items,
		Region:      req.Region,
		Address:     req.Address,
		Comment:     req.Comment,
	}

	if userID, ok := middleware.GetUserIDFromContext(r.Context()); ok {
		order.UserID = &userID
	}

	orderID, err := h.service.PlaceOrder(r.Context(), order)
	if err != nil {
		if errors.Is(err, service.ErrInvalidOrder) {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		h.logger.Error("place order error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	cart.Clear(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)

	if err := json.NewEncoder(w).Encode(checkoutResponse{OrderID: orderID}); err != nil {
		h.logger.Error("encode checkout response error", zap.Error(err))
	}
}

// Cities ищет города службы доставки по префиксу.
func (h *Handler) Cities(w http.ResponseWriter, r *http.Request) {
	cities, err := h.service.SearchCities(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		h.logger.Error("search cities error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}

	h.writeJSON(w, cities)
}

// Warehouses ищет точки выдачи в городе. Параметр type переключает
// между отделениями и почтоматами.
func (h *Handler) Warehouses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	city := q.Get("city")
	if city == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	kind := shipping.WarehouseBranch
	if q.Get("type") == "postomat" {
		kind = shipping.WarehousePostomat
	}

	warehouses, err := h.service.SearchWarehouses(r.Context(), city, kind)
	if err != nil {
		h.logger.Error("search warehouses error", zap.Error(err), zap.String("city", city))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}

	h.writeJSON(w, warehouses)
}

type registerRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// Register обрабатывает регистрацию нового пользователя.
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

	userID, err := h.service.RegisterUser(r.Context(), req.FirstName, req.LastName, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login выполняет аутентификацию пользователя и установку cookie.
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

	userID, err := h.service.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) || errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// Logout сбрасывает cookie авторизации.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authMiddleware.ClearAuthCookie(w)
	w.WriteHeader(http.StatusOK)
}

// GetFavorites возвращает избранные товары текущего пользователя.
func (h *Handler) GetFavorites(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	items, err := h.service.ListFavorites(r.Context(), userID)
	if err != nil {
		h.logger.Error("list favorites error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]productResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, toProductResponse(item))
	}

	h.writeJSON(w, resp)
}

type favoriteRequest struct {
	ID int64 `json:"id"`
}

// AddFavorite добавляет товар в избранное текущего пользователя.
func (h *Handler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req favoriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.AddFavorite(r.Context(), userID, req.ID); err != nil {
		switch {
		case errors.Is(err, repository.ErrFavoriteExists):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		case errors.Is(err, repository.ErrProductNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		default:
			h.logger.Error("add favorite error", zap.Error(err), zap.Int64("userID", userID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

// RemoveFavorite удаляет товар из избранного текущего пользователя.
func (h *Handler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	productID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.RemoveFavorite(r.Context(), userID, productID); err != nil {
		h.logger.Error("remove favorite error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type reviewRequest struct {
	Grade int `json:"grade"`
}

// AddReview сохраняет оценку магазина текущим пользователем.
func (h *Handler) AddReview(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.AddReview(r.Context(), userID, req.Grade); err != nil {
		if errors.Is(err, service.ErrInvalidGrade) {
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("add review error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func formatOrderDate(t time.Time) string {
	return t.Format(time.RFC3339)
}
