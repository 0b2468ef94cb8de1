// Package service реализует бизнес-логику интернет-магазина.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmarkua/storefront-system/internal/cart"
	"github.com/dmarkua/storefront-system/internal/currency"
	"github.com/dmarkua/storefront-system/internal/model"
	"github.com/dmarkua/storefront-system/internal/pricing"
	"github.com/dmarkua/storefront-system/internal/repository"
	"github.com/dmarkua/storefront-system/internal/validation"
)

// ErrInvalidCredentials возвращается при неверной паре email/пароль.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnknownBrand возвращается при добавлении товара бренда, которого нет в справочнике.
	ErrUnknownBrand = errors.New("unknown brand")
	// ErrInvalidOrder возвращается при некорректных данных оформления заказа.
	ErrInvalidOrder = errors.New("invalid order")
	// ErrInvalidGrade возвращается при оценке вне диапазона от 1 до 5.
	ErrInvalidGrade = errors.New("invalid grade")
)

// Лимиты выдачи каталога и страниц заказов.
const (
	catalogLimit   = 90
	newestLimit    = 30
	ordersPageSize = 20
)

// brandTranslations — справочник переводов брендов. Товар неизвестного
// бренда не принимается.
var brandTranslations = map[string]string{
	"Denkmit":    "Денкміт",
	"Balea":      "Балеа",
	"Alverde":    "Альверде",
	"Dontodent":  "Донтодент",
	"Mivolis":    "Міволіс",
	"Frosch":     "Фрош",
	"Profissimo": "Профісімо",
	"Babylove":   "Бейбілав",
	"Visiomax":   "Візіомакс",
	"Deluxe":     "Делюкс",
	"Theramed":   "Тхерамед",
}

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, u model.User) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	IsAdmin(ctx context.Context, userID int64) (bool, error)
	TouchLogin(ctx context.Context, userID int64) error
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]model.Product, error)
	ListProducts(ctx context.Context, f repository.ProductFilter) ([]model.Product, error)
	CreateProduct(ctx context.Context, p model.Product) (int64, error)
	UpdateProductFields(ctx context.Context, id int64, upd repository.ProductUpdate) error
	CreateOrder(ctx context.Context, o model.Order) (int64, error)
	ListOrders(ctx context.Context, limit, offset int) ([]model.Order, error)
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	UpdateOrderItems(ctx context.Context, id int64, items []model.OrderItem) error
	UpdateOrderStatus(ctx context.Context, id int64, status int) error
	AddFavorite(ctx context.Context, userID, productID int64) error
	RemoveFavorite(ctx context.Context, userID, productID int64) error
	ListFavorites(ctx context.Context, userID int64) ([]model.Product, error)
	UpsertReview(ctx context.Context, userID int64, grade int) error
}

// Notifier описывает канал уведомлений о новых заказах.
type Notifier interface {
	OrderPlaced(ctx context.Context, orderID int64) error
}

// AddressLookup описывает справочник адресов службы доставки.
type AddressLookup interface {
	SearchCities(ctx context.Context, prefix string) ([]string, error)
	SearchWarehouses(ctx context.Context, city, kind string) ([]string, error)
}

// Service содержит бизнес-логику интернет-магазина.
type Service struct {
	repo     Repository
	rates    *currency.Service
	notifier Notifier
	address  AddressLookup
	logger   *zap.Logger
}

// NewService создаёт сервис с указанными репозиторием и коллабораторами.
// Уведомитель и справочник адресов могут быть nil.
func NewService(repo Repository, rates *currency.Service, notifier Notifier, address AddressLookup, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		rates:    rates,
		notifier: notifier,
		address:  address,
		logger:   logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя.
func (s *Service) RegisterUser(ctx context.Context, firstName, lastName, email, password string) (int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	id, err := s.repo.CreateUser(ctx, model.User{
		FirstName:    firstName,
		LastName:     lastName,
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет email и пароль и возвращает идентификатор
// пользователя, обновляя дату последней авторизации.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (int64, error) {
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, ErrInvalidCredentials
		}
		return 0, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return 0, ErrInvalidCredentials
	}

	if err := s.repo.TouchLogin(ctx, u.ID); err != nil {
		return 0, err
	}

	return u.ID, nil
}

// IsAdmin сообщает, имеет ли пользователь права администратора.
func (s *Service) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	return s.repo.IsAdmin(ctx, userID)
}

// CatalogItem — товар каталога с вычисленной отображаемой ценой.
type CatalogItem struct {
	Product model.Product
	// DisplayPrice — цена с наценкой, умноженная на валютный коэффициент.
	DisplayPrice decimal.Decimal
}

// CatalogFilter описывает параметры выборки каталога для покупателя.
type CatalogFilter struct {
	Brand    string
	Category string
	Search   string
	Newest   bool
	// IncludeHidden включает скрытые товары (редактор администратора).
	IncludeHidden bool
}

// normalizeSearch приводит поисковый текст к нижнему регистру и убирает
// символ «/»: так искали в старой версии магазина, наклонная черта
// в запросе игнорируется.
func normalizeSearch(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "/", ""))
}

// ListCatalog возвращает товары каталога с отображаемыми ценами.
func (s *Service) ListCatalog(ctx context.Context, f CatalogFilter) ([]CatalogItem, error) {
	filter := repository.ProductFilter{
		Brand:       f.Brand,
		Category:    f.Category,
		Search:      normalizeSearch(f.Search),
		VisibleOnly: !f.IncludeHidden,
		Newest:      f.Newest,
	}
	if !f.IncludeHidden {
		filter.Limit = catalogLimit
		if f.Newest {
			filter.Limit = newestLimit
		}
	}

	products, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return nil, err
	}

	return s.priced(products), nil
}

// GetCatalogProduct возвращает товар с отображаемой ценой.
func (s *Service) GetCatalogProduct(ctx context.Context, id int64) (*CatalogItem, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	item := s.pricedOne(*p)
	return &item, nil
}

func (s *Service) priced(products []model.Product) []CatalogItem {
	items := make([]CatalogItem, 0, len(products))
	for _, p := range products {
		items = append(items, s.pricedOne(p))
	}
	return items
}

func (s *Service) pricedOne(p model.Product) CatalogItem {
	return CatalogItem{
		Product:      p,
		DisplayPrice: pricing.Display(p.PriceTotal, s.rates.Coefficient()),
	}
}

// Coefficient возвращает текущий валютный коэффициент.
func (s *Service) Coefficient() decimal.Decimal {
	return s.rates.Coefficient()
}

// SetCoefficient устанавливает валютный коэффициент.
func (s *Service) SetCoefficient(v decimal.Decimal) error {
	return s.rates.Set(v)
}

// ViewCart сверяет корзину с каталогом. Позиции, товар которых больше
// не существует, молча пропадают из выдачи, но остаются в cookie,
// пока покупатель сам их не удалит.
func (s *Service) ViewCart(ctx context.Context, c cart.Cart) ([]model.CartLine, error) {
	if c.Len() == 0 {
		return nil, nil
	}

	var ids []int64
	quantities := make(map[int64]int, c.Len())
	for _, raw := range c.IDs() {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
		quantities[id] = c.Items[raw]
	}

	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	coeff := s.rates.Coefficient()

	lines := make([]model.CartLine, 0, len(products))
	for _, p := range products {
		lines = append(lines, model.CartLine{
			Product:      p,
			Quantity:     quantities[p.ID],
			DisplayPrice: pricing.Display(p.PriceTotal, coeff),
		})
	}
	return lines, nil
}

// OrderRequest содержит данные оформления заказа.
type OrderRequest struct {
	UserID      *int64
	FirstName   string
	LastName    string
	PhoneNumber string
	Items       []model.OrderItem
	Region      string
	Address     string
	Comment     string
}

// PlaceOrder создаёт заказ и отправляет уведомление. Сбой уведомления
// только логируется: заказ уже принят.
func (s *Service) PlaceOrder(ctx context.Context, req OrderRequest) (int64, error) {
	if req.FirstName == "" || req.LastName == "" || req.PhoneNumber == "" {
		return 0, fmt.Errorf("%w: contact fields are required", ErrInvalidOrder)
	}
	if len(req.Items) == 0 {
		return 0, fmt.Errorf("%w: no items", ErrInvalidOrder)
	}
	for _, it := range req.Items {
		if it.ProductID <= 0 || it.Amount <= 0 {
			return 0, fmt.Errorf("%w: bad line item %d x %d", ErrInvalidOrder, it.ProductID, it.Amount)
		}
	}

	id, err := s.repo.CreateOrder(ctx, model.Order{
		UserID:      req.UserID,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: validation.NormalizePhone(req.PhoneNumber),
		Items:       req.Items,
		Region:      req.Region,
		Address:     req.Address,
		Comment:     req.Comment,
		Status:      0,
	})
	if err != nil {
		return 0, err
	}

	if s.notifier != nil {
		go func() {
			nctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := s.notifier.OrderPlaced(nctx, id); err != nil {
				s.logger.Warn("order notification failed",
					zap.Int64("orderID", id), zap.Error(err))
			}
		}()
	}

	return id, nil
}

// OrderDetails — заказ вместе с позициями, обогащёнными текущими данными
// каталога. Цена и название берутся из каталога на момент просмотра,
// а не на момент оформления.
type OrderDetails struct {
	Order model.Order
	Lines []model.CartLine
}

// ListOrders возвращает страницу заказов для администратора. Нумерация
// страниц с единицы.
func (s *Service) ListOrders(ctx context.Context, page int) ([]OrderDetails, error) {
	if page < 1 {
		page = 1
	}

	orders, err := s.repo.ListOrders(ctx, ordersPageSize, (page-1)*ordersPageSize)
	if err != nil {
		return nil, err
	}

	res := make([]OrderDetails, 0, len(orders))
	for _, o := range orders {
		details, err := s.enrichOrder(ctx, o)
		if err != nil {
			return nil, err
		}
		res = append(res, *details)
	}
	return res, nil
}

// GetOrder возвращает заказ с обогащёнными позициями.
func (s *Service) GetOrder(ctx context.Context, id int64) (*OrderDetails, error) {
	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.enrichOrder(ctx, *o)
}

func (s *Service) enrichOrder(ctx context.Context, o model.Order) (*OrderDetails, error) {
	ids := make([]int64, 0, len(o.Items))
	amounts := make(map[int64]int, len(o.Items))
	for _, it := range o.Items {
		ids = append(ids, it.ProductID)
		amounts[it.ProductID] = it.Amount
	}

	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	coeff := s.rates.Coefficient()

	lines := make([]model.CartLine, 0, len(products))
	for _, p := range products {
		lines = append(lines, model.CartLine{
			Product:      p,
			Quantity:     amounts[p.ID],
			DisplayPrice: pricing.Display(p.PriceTotal, coeff),
		})
	}

	return &OrderDetails{Order: o, Lines: lines}, nil
}

// UpdateOrderItems заменяет позиции заказа.
func (s *Service) UpdateOrderItems(ctx context.Context, id int64, items []model.OrderItem) error {
	for _, it := range items {
		if it.ProductID <= 0 || it.Amount <= 0 {
			return fmt.Errorf("%w: bad line item %d x %d", ErrInvalidOrder, it.ProductID, it.Amount)
		}
	}
	return s.repo.UpdateOrderItems(ctx, id, items)
}

// UpdateOrderStatus меняет статус заказа.
func (s *Service) UpdateOrderStatus(ctx context.Context, id int64, status int) error {
	return s.repo.UpdateOrderStatus(ctx, id, status)
}

// NewProduct содержит данные нового товара от администратора.
type NewProduct struct {
	Brand            string
	Type             string
	TitleOriginal    string
	TitleTranslation string
	Description      string
	Pictures         []string
	Volume           string
	Weight           string
	Price            decimal.Decimal
	PriceFactor      decimal.Decimal
	Amount           int
	Case             string
}

// CreateProduct добавляет товар. Перевод названия бренда подставляется
// из справочника, неизвестный бренд отклоняется.
func (s *Service) CreateProduct(ctx context.Context, np NewProduct) (int64, error) {
	translation, ok := brandTranslations[np.Brand]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownBrand, np.Brand)
	}

	return s.repo.CreateProduct(ctx, model.Product{
		BrandOriginal:    np.Brand,
		BrandTranslation: translation,
		Type:             np.Type,
		TitleOriginal:    np.TitleOriginal,
		TitleTranslation: np.TitleTranslation,
		Description:      np.Description,
		Pictures:         np.Pictures,
		Volume:           np.Volume,
		Weight:           np.Weight,
		Price:            np.Price,
		PriceFactor:      np.PriceFactor,
		Amount:           np.Amount,
		Stock:            model.StockIn,
		Case:             np.Case,
		Visibility:       true,
	})
}

// UpdateProduct выполняет частичное обновление товара.
func (s *Service) UpdateProduct(ctx context.Context, id int64, upd repository.ProductUpdate) error {
	return s.repo.UpdateProductFields(ctx, id, upd)
}

// AddFavorite добавляет товар в избранное пользователя.
func (s *Service) AddFavorite(ctx context.Context, userID, productID int64) error {
	return s.repo.AddFavorite(ctx, userID, productID)
}

// RemoveFavorite удаляет товар из избранного пользователя.
func (s *Service) RemoveFavorite(ctx context.Context, userID, productID int64) error {
	return s.repo.RemoveFavorite(ctx, userID, productID)
}

// ListFavorites возвращает избранные товары пользователя с ценами.
func (s *Service) ListFavorites(ctx context.Context, userID int64) ([]CatalogItem, error) {
	products, err := s.repo.ListFavorites(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.priced(products), nil
}

// AddReview сохраняет оценку магазина пользователем.
func (s *Service) AddReview(ctx context.Context, userID int64, grade int) error {
	if !validation.IsValidGrade(grade) {
		return fmt.Errorf("%w: %d", ErrInvalidGrade, grade)
	}
	return s.repo.UpsertReview(ctx, userID, grade)
}

// SearchCities ищет города по префиксу в справочнике службы доставки.
func (s *Service) SearchCities(ctx context.Context, prefix string) ([]string, error) {
	if s.address == nil {
		return nil, errors.New("address lookup not configured")
	}
	return s.address.SearchCities(ctx, prefix)
}

// SearchWarehouses ищет точки выдачи в городе.
func (s *Service) SearchWarehouses(ctx context.Context, city, kind string) ([]string, error) {
	if s.address == nil {
		return nil, errors.New("address lookup not configured")
	}
	return s.address.SearchWarehouses(ctx, city, kind)
}
