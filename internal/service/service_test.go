package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmarkua/storefront-system/internal/cart"
	"github.com/dmarkua/storefront-system/internal/currency"
	"github.com/dmarkua/storefront-system/internal/model"
	"github.com/dmarkua/storefront-system/internal/repository"
)

type stubRepo struct {
	createUserID  int64
	createUserErr error
	createdUser   model.User

	user    *model.User
	userErr error

	admin    bool
	adminErr error

	products    []model.Product
	productsErr error
	gotIDs      []int64

	listFilter repository.ProductFilter

	createOrderID  int64
	createOrderErr error
	createdOrder   model.Order

	order    *model.Order
	orderErr error

	orders []model.Order

	createProductID int64
	createdProduct  model.Product

	updatedProductID int64
	productUpdate    repository.ProductUpdate

	reviewGrade int
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateUser(ctx context.Context, u model.User) (int64, error) {
	s.createdUser = u
	return s.createUserID, s.createUserErr
}

func (s *stubRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.user, s.userErr
}

func (s *stubRepo) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	return s.admin, s.adminErr
}

func (s *stubRepo) TouchLogin(ctx context.Context, userID int64) error { return nil }

func (s *stubRepo) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	if len(s.products) == 0 {
		return nil, repository.ErrProductNotFound
	}
	return &s.products[0], s.productsErr
}

func (s *stubRepo) GetProductsByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	s.gotIDs = ids
	return s.products, s.productsErr
}

func (s *stubRepo) ListProducts(ctx context.Context, f repository.ProductFilter) ([]model.Product, error) {
	s.listFilter = f
	return s.products, s.productsErr
}

func (s *stubRepo) CreateProduct(ctx context.Context, p model.Product) (int64, error) {
	s.createdProduct = p
	return s.createProductID, nil
}

func (s *stubRepo) UpdateProductFields(ctx context.Context, id int64, upd repository.ProductUpdate) error {
	s.updatedProductID = id
	s.productUpdate = upd
	return nil
}

func (s *stubRepo) CreateOrder(ctx context.Context, o model.Order) (int64, error) {
	s.createdOrder = o
	return s.createOrderID, s.createOrderErr
}

func (s *stubRepo) ListOrders(ctx context.Context, limit, offset int) ([]model.Order, error) {
	return s.orders, nil
}

func (s *stubRepo) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	return s.order, s.orderErr
}

func (s *stubRepo) UpdateOrderItems(ctx context.Context, id int64, items []model.OrderItem) error {
	return nil
}

func (s *stubRepo) UpdateOrderStatus(ctx context.Context, id int64, status int) error {
	return nil
}

func (s *stubRepo) AddFavorite(ctx context.Context, userID, productID int64) error { return nil }

func (s *stubRepo) RemoveFavorite(ctx context.Context, userID, productID int64) error { return nil }

func (s *stubRepo) ListFavorites(ctx context.Context, userID int64) ([]model.Product, error) {
	return s.products, s.productsErr
}

func (s *stubRepo) UpsertReview(ctx context.Context, userID int64, grade int) error {
	s.reviewGrade = grade
	return nil
}

type stubNotifier struct {
	notified chan int64
	err      error
}

func (n *stubNotifier) OrderPlaced(ctx context.Context, orderID int64) error {
	if n.notified != nil {
		n.notified <- orderID
	}
	return n.err
}

func newTestRates(t *testing.T, coefficient string) *currency.Service {
	t.Helper()

	path := filepath.Join(t.TempDir(), "exchange.ini")
	if err := os.WriteFile(path, []byte("EURO_COEFFICIENT = "+coefficient+"\n"), 0o600); err != nil {
		t.Fatalf("write exchange file: %v", err)
	}

	rates, err := currency.Load(path)
	if err != nil {
		t.Fatalf("load rates: %v", err)
	}
	return rates
}

func newTestService(t *testing.T, repo *stubRepo, notifier Notifier) *Service {
	t.Helper()
	return NewService(repo, newTestRates(t, "1.08"), notifier, nil, zap.NewNop())
}

func product(id int64, total string, stock model.StockStatus) model.Product {
	return model.Product{
		ID:         id,
		Stock:      stock,
		PriceTotal: decimal.RequireFromString(total),
	}
}

func TestAuthenticateUser(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	repo := &stubRepo{user: &model.User{ID: 7, PasswordHash: hash}}
	svc := newTestService(t, repo, nil)

	id, err := svc.AuthenticateUser(context.Background(), "a@b.c", "secret")
	if err != nil {
		t.Fatalf("AuthenticateUser: %v", err)
	}
	if id != 7 {
		t.Fatalf("id = %d, want 7", id)
	}

	if _, err := svc.AuthenticateUser(context.Background(), "a@b.c", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("error = %v, want ErrInvalidCredentials", err)
	}
}

func TestAuthenticateUserNotFound(t *testing.T) {
	repo := &stubRepo{userErr: repository.ErrUserNotFound}
	svc := newTestService(t, repo, nil)

	if _, err := svc.AuthenticateUser(context.Background(), "a@b.c", "x"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("error = %v, want ErrInvalidCredentials", err)
	}
}

func TestRegisterUserHashesPassword(t *testing.T) {
	repo := &stubRepo{createUserID: 3}
	svc := newTestService(t, repo, nil)

	if _, err := svc.RegisterUser(context.Background(), "Іван", "Франко", "i@f.ua", "secret"); err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}

	if string(repo.createdUser.PasswordHash) == "secret" {
		t.Fatalf("password must not be stored in plain text")
	}
	if err := bcrypt.CompareHashAndPassword(repo.createdUser.PasswordHash, []byte("secret")); err != nil {
		t.Fatalf("stored hash does not match the password: %v", err)
	}
}

func TestListCatalogNormalizesSearch(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(t, repo, nil)

	if _, err := svc.ListCatalog(context.Background(), CatalogFilter{Search: "Cr/EAM"}); err != nil {
		t.Fatalf("ListCatalog: %v", err)
	}

	// «cr/eam» ищет то же, что «cream»: слэш убирается, регистр нижний.
	if repo.listFilter.Search != "cream" {
		t.Fatalf("search = %q, want %q", repo.listFilter.Search, "cream")
	}
	if !repo.listFilter.VisibleOnly {
		t.Fatalf("public catalog must exclude hidden products")
	}
	if repo.listFilter.Limit != 90 {
		t.Fatalf("limit = %d, want 90", repo.listFilter.Limit)
	}
}

func TestListCatalogNewestLimit(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(t, repo, nil)

	if _, err := svc.ListCatalog(context.Background(), CatalogFilter{Newest: true}); err != nil {
		t.Fatalf("ListCatalog: %v", err)
	}

	if !repo.listFilter.Newest || repo.listFilter.Limit != 30 {
		t.Fatalf("filter = %+v, want newest with limit 30", repo.listFilter)
	}
}

func TestListCatalogAppliesCoefficient(t *testing.T) {
	repo := &stubRepo{products: []model.Product{product(1, "12", model.StockIn)}}
	svc := newTestService(t, repo, nil)

	items, err := svc.ListCatalog(context.Background(), CatalogFilter{})
	if err != nil {
		t.Fatalf("ListCatalog: %v", err)
	}

	want := decimal.RequireFromString("12.96")
	if len(items) != 1 || !items[0].DisplayPrice.Equal(want) {
		t.Fatalf("items = %+v, want display price %s", items, want)
	}
}

func TestViewCartReconciliation(t *testing.T) {
	// В каталоге остался только товар 42: позиция 77 молча пропадает
	// из выдачи, нечисловой идентификатор игнорируется.
	repo := &stubRepo{products: []model.Product{product(42, "12", model.StockIn)}}
	svc := newTestService(t, repo, nil)

	c := cart.New()
	c.Add("42", 2)
	c.Add("77", 1)
	c.Add("bogus", 1)

	lines, err := svc.ViewCart(context.Background(), c)
	if err != nil {
		t.Fatalf("ViewCart: %v", err)
	}

	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1 (stale entries dropped silently)", len(lines))
	}
	if lines[0].Quantity != 2 {
		t.Fatalf("quantity = %d, want 2", lines[0].Quantity)
	}
	if !lines[0].DisplayPrice.Equal(decimal.RequireFromString("12.96")) {
		t.Fatalf("display price = %s, want 12.96", lines[0].DisplayPrice)
	}

	// Корзина не «лечится»: устаревшие позиции остаются в токене.
	if c.Len() != 3 {
		t.Fatalf("cart must keep stale entries, got %d", c.Len())
	}
}

func TestViewCartEmpty(t *testing.T) {
	svc := newTestService(t, &stubRepo{}, nil)

	lines, err := svc.ViewCart(context.Background(), cart.New())
	if err != nil {
		t.Fatalf("ViewCart: %v", err)
	}
	if lines != nil {
		t.Fatalf("empty cart must reconcile to no lines")
	}
}

func TestPlaceOrderValidation(t *testing.T) {
	svc := newTestService(t, &stubRepo{}, nil)

	tests := []struct {
		name string
		req  OrderRequest
	}{
		{
			name: "no contact",
			req:  OrderRequest{Items: []model.OrderItem{{ProductID: 1, Amount: 1}}},
		},
		{
			name: "no items",
			req:  OrderRequest{FirstName: "a", LastName: "b", PhoneNumber: "1"},
		},
		{
			name: "non-positive amount",
			req: OrderRequest{
				FirstName: "a", LastName: "b", PhoneNumber: "1",
				Items: []model.OrderItem{{ProductID: 1, Amount: 0}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.PlaceOrder(context.Background(), tt.req); !errors.Is(err, ErrInvalidOrder) {
				t.Fatalf("error = %v, want ErrInvalidOrder", err)
			}
		})
	}
}

func TestPlaceOrderNormalizesPhone(t *testing.T) {
	repo := &stubRepo{createOrderID: 5}
	svc := newTestService(t, repo, nil)

	_, err := svc.PlaceOrder(context.Background(), OrderRequest{
		FirstName:   "Іван",
		LastName:    "Франко",
		PhoneNumber: "+38 (067) 123-45-67",
		Items:       []model.OrderItem{{ProductID: 1, Amount: 2}},
		Region:      "Львів",
		Address:     "Відділення №1",
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	if repo.createdOrder.PhoneNumber != "380671234567" {
		t.Fatalf("phone = %q, want normalized digits", repo.createdOrder.PhoneNumber)
	}
	if repo.createdOrder.Status != 0 {
		t.Fatalf("status = %d, want 0", repo.createdOrder.Status)
	}
}

func TestPlaceOrderNotifies(t *testing.T) {
	repo := &stubRepo{createOrderID: 9}
	notifier := &stubNotifier{notified: make(chan int64, 1)}
	svc := newTestService(t, repo, notifier)

	id, err := svc.PlaceOrder(context.Background(), OrderRequest{
		FirstName:   "a",
		LastName:    "b",
		PhoneNumber: "1",
		Items:       []model.OrderItem{{ProductID: 1, Amount: 1}},
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	select {
	case got := <-notifier.notified:
		if got != id {
			t.Fatalf("notified order = %d, want %d", got, id)
		}
	case <-time.After(time.Second):
		t.Fatalf("notification was not sent")
	}
}

func TestPlaceOrderNotificationFailureIsNotFatal(t *testing.T) {
	repo := &stubRepo{createOrderID: 2}
	notifier := &stubNotifier{notified: make(chan int64, 1), err: errors.New("telegram down")}
	svc := newTestService(t, repo, notifier)

	id, err := svc.PlaceOrder(context.Background(), OrderRequest{
		FirstName:   "a",
		LastName:    "b",
		PhoneNumber: "1",
		Items:       []model.OrderItem{{ProductID: 1, Amount: 1}},
	})
	if err != nil {
		t.Fatalf("PlaceOrder must succeed even if notification fails: %v", err)
	}
	if id != 2 {
		t.Fatalf("id = %d, want 2", id)
	}
	<-notifier.notified
}

func TestGetOrderEnrichment(t *testing.T) {
	repo := &stubRepo{
		order: &model.Order{
			ID:    4,
			Items: []model.OrderItem{{ProductID: 42, Amount: 3}, {ProductID: 77, Amount: 1}},
		},
		products: []model.Product{product(42, "10", model.StockIn)},
	}
	svc := newTestService(t, repo, nil)

	details, err := svc.GetOrder(context.Background(), 4)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}

	// Товар 77 удалён из каталога: позиция не обогащается.
	if len(details.Lines) != 1 || details.Lines[0].Quantity != 3 {
		t.Fatalf("lines = %+v, want single enriched line", details.Lines)
	}
	if !details.Lines[0].DisplayPrice.Equal(decimal.RequireFromString("10.8")) {
		t.Fatalf("display price = %s, want 10.8", details.Lines[0].DisplayPrice)
	}
}

func TestCreateProductBrandTranslation(t *testing.T) {
	repo := &stubRepo{createProductID: 11}
	svc := newTestService(t, repo, nil)

	_, err := svc.CreateProduct(context.Background(), NewProduct{
		Brand:         "Balea",
		TitleOriginal: "Shampoo",
		Price:         decimal.RequireFromString("1000"),
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	if repo.createdProduct.BrandTranslation != "Балеа" {
		t.Fatalf("translation = %q, want %q", repo.createdProduct.BrandTranslation, "Балеа")
	}
	if repo.createdProduct.Stock != model.StockIn || !repo.createdProduct.Visibility {
		t.Fatalf("new product must be visible and in stock")
	}
}

func TestCreateProductUnknownBrand(t *testing.T) {
	svc := newTestService(t, &stubRepo{}, nil)

	if _, err := svc.CreateProduct(context.Background(), NewProduct{Brand: "Noname"}); !errors.Is(err, ErrUnknownBrand) {
		t.Fatalf("error = %v, want ErrUnknownBrand", err)
	}
}

func TestAddReview(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(t, repo, nil)

	if err := svc.AddReview(context.Background(), 1, 5); err != nil {
		t.Fatalf("AddReview: %v", err)
	}
	if repo.reviewGrade != 5 {
		t.Fatalf("grade = %d, want 5", repo.reviewGrade)
	}

	for _, grade := range []int{0, 6, -1} {
		if err := svc.AddReview(context.Background(), 1, grade); !errors.Is(err, ErrInvalidGrade) {
			t.Fatalf("grade %d: error = %v, want ErrInvalidGrade", grade, err)
		}
	}
}

func TestSetCoefficient(t *testing.T) {
	svc := newTestService(t, &stubRepo{}, nil)

	if err := svc.SetCoefficient(decimal.RequireFromString("1.20")); err != nil {
		t.Fatalf("SetCoefficient: %v", err)
	}
	if !svc.Coefficient().Equal(decimal.RequireFromString("1.20")) {
		t.Fatalf("Coefficient = %s, want 1.20", svc.Coefficient())
	}
}
