package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dmarkua/storefront-system/internal/model"
	"github.com/dmarkua/storefront-system/internal/pricing"
	"github.com/dmarkua/storefront-system/internal/repository"
	"github.com/dmarkua/storefront-system/internal/service"
	"github.com/dmarkua/storefront-system/internal/validation"
)

type currencyResponse struct {
	Coefficient string `json:"coefficient"`
}

// GetCurrency возвращает текущий валютный коэффициент.
func (h *Handler) GetCurrency(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, currencyResponse{
		Coefficient: h.service.Coefficient().StringFixed(2),
	})
}

// SetCurrency устанавливает валютный коэффициент. Значение принимается
// с точкой или запятой в качестве разделителя.
func (h *Handler) SetCurrency(w http.ResponseWriter, r *http.Request) {
	var req currencyResponse
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	value, err := pricing.Parse(req.Coefficient)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.SetCoefficient(value); err != nil {
		h.logger.Error("set coefficient error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type orderResponse struct {
	ID          int64              `json:"id"`
	FirstName   string             `json:"first_name"`
	LastName    string             `json:"last_name"`
	PhoneNumber string             `json:"phone_number"`
	Region      string             `json:"region,omitempty"`
	Address     string             `json:"address,omitempty"`
	Comment     string             `json:"comment,omitempty"`
	Status      int                `json:"status"`
	Date        string             `json:"date"`
	Items       []cartLineResponse `json:"items"`
}

func toOrderResponse(d service.OrderDetails) orderResponse {
	resp := orderResponse{
		ID:          d.Order.ID,
		FirstName:   d.Order.FirstName,
		LastName:    d.Order.LastName,
		PhoneNumber: d.Order.PhoneNumber,
		Region:      d.Order.Region,
		Address:     d.Order.Address,
		Comment:     d.Order.Comment,
		Status:      d.Order.Status,
		Date:        formatOrderDate(d.Order.Date),
		Items:       make([]cartLineResponse, 0, len(d.Lines)),
	}
	for _, line := range d.Lines {
		resp.Items = append(resp.Items, cartLineResponse{
			Product: toProductResponse(service.CatalogItem{
				Product:      line.Product,
				DisplayPrice: line.DisplayPrice,
			}),
			Quantity: line.Quantity,
			Price:    pricing.Format(line.DisplayPrice),
		})
	}
	return resp
}

// AdminOrders возвращает страницу заказов, новые сверху. Нумерация
// страниц с единицы.
func (h *Handler) AdminOrders(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		parsed, ok := validation.ParsePositiveInt(raw)
		if !ok {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		page = parsed
	}

	orders, err := h.service.ListOrders(r.Context(), page)
	if err != nil {
		h.logger.Error("list orders error", zap.Error(err), zap.Int("page", page))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, toOrderResponse(o))
	}

	h.writeJSON(w, resp)
}

// AdminOrder возвращает один заказ с позициями.
func (h *Handler) AdminOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	details, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get order error", zap.Error(err), zap.Int64("orderID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, toOrderResponse(*details))
}

type orderItemsRequest struct {
	Items []model.OrderItem `json:"items"`
}

// UpdateOrderItems заменяет позиции заказа.
func (h *Handler) UpdateOrderItems(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req orderItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateOrderItems(r.Context(), id, req.Items); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidOrder):
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		case errors.Is(err, repository.ErrOrderNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		default:
			h.logger.Error("update order items error", zap.Error(err), zap.Int64("orderID", id))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

type orderStatusRequest struct {
	Status int `json:"status"`
}

// UpdateOrderStatus меняет статус заказа.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req orderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateOrderStatus(r.Context(), id, req.Status); err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("update order status error", zap.Error(err), zap.Int64("orderID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// AdminProducts возвращает товары каталога для редактора, включая скрытые.
func (h *Handler) AdminProducts(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListCatalog(r.Context(), service.CatalogFilter{
		Search:        r.URL.Query().Get("search"),
		IncludeHidden: true,
	})
	if err != nil {
		h.logger.Error("list admin products error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]productResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, toProductResponse(item))
	}

	h.writeJSON(w, resp)
}

type newProductRequest struct {
	Brand            string `json:"brand"`
	Type             string `json:"type"`
	TitleOriginal    string `json:"title_original"`
	TitleTranslation string `json:"title_translation"`
	Description      string `json:"description"`
	// Pictures — список изображений одной строкой через «|»,
	// как присылает форма редактора.
	Pictures    string `json:"pictures"`
	Volume      string `json:"volume"`
	Weight      string `json:"weight"`
	Price       string `json:"price"`
	PriceFactor string `json:"price_factor"`
	Amount      int    `json:"amount"`
	Case        string `json:"case"`
}

func splitPictures(raw string) []string {
	var pictures []string
	for _, p := range strings.Split(raw, "|") {
		if p = strings.TrimSpace(p); p != "" {
			pictures = append(pictures, p)
		}
	}
	return pictures
}

type createProductResponse struct {
	ID int64 `json:"id"`
}

// CreateProduct добавляет товар в каталог. Перевод бренда подставляется
// из справочника, неизвестный бренд отклоняется.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req newProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Brand == "" || req.TitleOriginal == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	price, err := pricing.Parse(req.Price)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	factor, err := pricing.Parse(req.PriceFactor)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.CreateProduct(r.Context(), service.NewProduct{
		Brand:            req.Brand,
		Type:             req.Type,
		TitleOriginal:    req.TitleOriginal,
		TitleTranslation: req.TitleTranslation,
		Description:      req.Description,
		Pictures:         splitPictures(req.Pictures),
		Volume:           req.Volume,
		Weight:           req.Weight,
		Price:            price,
		PriceFactor:      factor,
		Amount:           req.Amount,
		Case:             req.Case,
	})
	if err != nil {
		if errors.Is(err, service.ErrUnknownBrand) {
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("create product error", zap.Error(err), zap.String("brand", req.Brand))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)

	if err := json.NewEncoder(w).Encode(createProductResponse{ID: id}); err != nil {
		h.logger.Error("encode create product response error", zap.Error(err))
	}
}

type patchProductRequest struct {
	Price       *string  `json:"price"`
	PriceFactor *string  `json:"price_factor"`
	Stock       *int     `json:"stock"`
	Amount      *int     `json:"amount"`
	Case        *string  `json:"case"`
	Description *string  `json:"description"`
	Visibility  *bool    `json:"visibility"`
	Pictures    []string `json:"pictures"`
}

// PatchProduct выполняет частичное обновление товара. Отсутствующие в теле
// поля остаются без изменений, все присланные применяются в одной транзакции.
func (h *Handler) PatchProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req patchProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	upd := repository.ProductUpdate{
		Amount:      req.Amount,
		Case:        req.Case,
		Description: req.Description,
		Visibility:  req.Visibility,
		Pictures:    req.Pictures,
	}

	if req.Price != nil {
		price, err := pricing.Parse(*req.Price)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		upd.Price = &price
	}

	if req.PriceFactor != nil {
		factor, err := pricing.Parse(*req.PriceFactor)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		upd.PriceFactor = &factor
	}

	if req.Stock != nil {
		if *req.Stock < int(model.StockOut) || *req.Stock > int(model.StockLimited) {
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
			return
		}
		stock := model.StockStatus(*req.Stock)
		upd.Stock = &stock
	}

	if err := h.service.UpdateProduct(r.Context(), id, upd); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("update product error", zap.Error(err), zap.Int64("productID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
