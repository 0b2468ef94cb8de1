// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/dmarkua/storefront-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим email.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = errors.New("product not found")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrFavoriteExists возвращается при повторном добавлении товара в избранное.
	ErrFavoriteExists = errors.New("favorite already exists")
)

// priceTotalExpr вычисляет цену с наценкой на стороне БД той же формулой,
// что и pricing.Total: округление вверх до сотой.
const priceTotalExpr = `CEIL((price / 100) * (100 + price_factor)) / 100`

const productColumns = `id, brand_original, brand_translation, type,
	title_original, title_translation, description, pictures, volume, weight,
	price, price_factor, amount, stock, "case", visibility, ` + priceTotalExpr + ` AS price_total`

// stockOrderExpr воспроизводит порядок выдачи каталога: сначала товары
// в наличии (1), затем ограниченное количество (2), в конце отсутствующие (0).
const stockOrderExpr = `CASE WHEN stock = 1 THEN 1 WHEN stock = 2 THEN 2 WHEN stock = 0 THEN 3 END`

// ProductFilter описывает критерии выборки товаров каталога.
type ProductFilter struct {
	// Brand — префикс оригинального названия бренда.
	Brand    string
	Category string
	// Search — уже нормализованный поисковый текст (нижний регистр, без «/»).
	Search      string
	VisibleOnly bool
	// Newest переключает сортировку на «новые сверху» вместо порядка по наличию.
	Newest bool
	Limit  int
	Offset int
}

// ProductUpdate описывает частичное обновление товара администратором.
// Нулевые указатели означают «поле не меняется».
type ProductUpdate struct {
	Price       *decimal.Decimal
	PriceFactor *decimal.Decimal
	Stock       *model.StockStatus
	Amount      *int
	Case        *string
	Description *string
	Visibility  *bool
	Pictures    []string
}

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, u model.User) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (first_name, last_name, email, password_hash)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		u.FirstName, u.LastName, u.Email, string(u.PasswordHash),
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, u.Email)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByEmail возвращает пользователя по email.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, first_name, last_name, email, password_hash, admin, reg_date, log_date
		 FROM users WHERE email = $1`,
		email,
	)

	var (
		u    model.User
		hash string
	)
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &hash, &u.Admin, &u.RegDate, &u.LogDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.PasswordHash = []byte(hash)

	return &u, nil
}

// IsAdmin сообщает, имеет ли пользователь права администратора.
func (r *PostgresRepository) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	var admin bool
	err := r.pool.QueryRow(ctx, `SELECT admin FROM users WHERE id = $1`, userID).Scan(&admin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrUserNotFound
		}
		return false, fmt.Errorf("check admin: %w", err)
	}
	return admin, nil
}

// TouchLogin обновляет дату последней авторизации пользователя.
func (r *PostgresRepository) TouchLogin(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET log_date = now() WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("touch login: %w", err)
	}
	return nil
}

func scanProduct(row pgx.Row) (*model.Product, error) {
	var (
		p                    model.Product
		pictures             []byte
		price, factor, total string
		stock                int16
	)

	err := row.Scan(&p.ID, &p.BrandOriginal, &p.BrandTranslation, &p.Type,
		&p.TitleOriginal, &p.TitleTranslation, &p.Description, &pictures,
		&p.Volume, &p.Weight, &price, &factor, &p.Amount, &stock, &p.Case,
		&p.Visibility, &total)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(pictures, &p.Pictures); err != nil {
		return nil, fmt.Errorf("decode pictures: %w", err)
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("decode price: %w", err)
	}
	if p.PriceFactor, err = decimal.NewFromString(factor); err != nil {
		return nil, fmt.Errorf("decode price factor: %w", err)
	}
	if p.PriceTotal, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("decode price total: %w", err)
	}
	p.Stock = model.StockStatus(stock)

	return &p, nil
}

// GetProduct возвращает товар по идентификатору.
func (r *PostgresRepository) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)

	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// GetProductsByIDs возвращает товары по списку идентификаторов. Отсутствующие
// идентификаторы молча пропускаются: сверка корзины терпит устаревшие ссылки.
func (r *PostgresRepository) GetProductsByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("select products by ids: %w", err)
	}
	defer rows.Close()

	return collectProducts(rows)
}

// buildListQuery собирает SQL выборки каталога по фильтру.
func buildListQuery(f ProductFilter) (string, []any) {
	var (
		where []string
		args  []any
	)

	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if f.VisibleOnly {
		where = append(where, `visibility = true`)
	}
	if f.Brand != "" {
		where = append(where, `brand_original LIKE `+arg(f.Brand+"%"))
	}
	if f.Category != "" {
		where = append(where, `type = `+arg(f.Category))
	}
	if f.Search != "" {
		ph := arg("%" + f.Search + "%")
		where = append(where, `(LOWER(title_original) LIKE `+ph+` OR LOWER(title_translation) LIKE `+ph+`)`)
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	if f.Newest {
		query += ` ORDER BY id DESC`
	} else {
		query += ` ORDER BY ` + stockOrderExpr
	}
	if f.Limit > 0 {
		query += ` LIMIT ` + arg(f.Limit)
	}
	if f.Offset > 0 {
		query += ` OFFSET ` + arg(f.Offset)
	}

	return query, args
}

// ListProducts возвращает товары каталога по фильтру.
func (r *PostgresRepository) ListProducts(ctx context.Context, f ProductFilter) ([]model.Product, error) {
	query, args := buildListQuery(f)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	return collectProducts(rows)
}

func collectProducts(rows pgx.Rows) ([]model.Product, error) {
	var res []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		res = append(res, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateProduct добавляет новый товар каталога.
func (r *PostgresRepository) CreateProduct(ctx context.Context, p model.Product) (int64, error) {
	pictures, err := json.Marshal(p.Pictures)
	if err != nil {
		return 0, fmt.Errorf("encode pictures: %w", err)
	}

	var id int64
	err = r.pool.QueryRow(ctx,
		`INSERT INTO products (brand_original, brand_translation, type,
			title_original, title_translation, description, pictures, volume,
			weight, price, price_factor, amount, stock, "case", visibility)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 RETURNING id`,
		p.BrandOriginal, p.BrandTranslation, p.Type, p.TitleOriginal,
		p.TitleTranslation, p.Description, pictures, p.Volume, p.Weight,
		p.Price.String(), p.PriceFactor.String(), p.Amount, int16(p.Stock),
		p.Case, p.Visibility,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create product: %w", err)
	}
	return id, nil
}

// UpdateProductFields выполняет частичное обновление товара одной транзакцией:
// сбой на любом поле откатывает все изменения.
func (r *PostgresRepository) UpdateProductFields(ctx context.Context, id int64, upd ProductUpdate) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var dummy int
	err = tx.QueryRow(ctx, `SELECT 1 FROM products WHERE id = $1 FOR UPDATE`, id).Scan(&dummy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProductNotFound
		}
		return fmt.Errorf("lock product: %w", err)
	}

	var (
		set  []string
		args []any
	)

	assign := func(column string, v any) {
		args = append(args, v)
		set = append(set, column+` = $`+strconv.Itoa(len(args)))
	}

	if upd.Price != nil {
		assign("price", upd.Price.String())
	}
	if upd.PriceFactor != nil {
		assign("price_factor", upd.PriceFactor.String())
	}
	if upd.Stock != nil {
		assign("stock", int16(*upd.Stock))
	}
	if upd.Amount != nil {
		assign("amount", *upd.Amount)
	}
	if upd.Case != nil {
		assign(`"case"`, *upd.Case)
	}
	if upd.Description != nil {
		assign("description", *upd.Description)
	}
	if upd.Visibility != nil {
		assign("visibility", *upd.Visibility)
	}
	if upd.Pictures != nil {
		pictures, err := json.Marshal(upd.Pictures)
		if err != nil {
			return fmt.Errorf("encode pictures: %w", err)
		}
		assign("pictures", pictures)
	}

	if len(set) == 0 {
		return nil
	}

	args = append(args, id)
	query := `UPDATE products SET ` + strings.Join(set, `, `) +
		` WHERE id = $` + strconv.Itoa(len(args))

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update product: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// CreateOrder сохраняет заказ со снимком позиций и возвращает его идентификатор.
func (r *PostgresRepository) CreateOrder(ctx context.Context, o model.Order) (int64, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return 0, fmt.Errorf("encode order items: %w", err)
	}

	var comment *string
	if o.Comment != "" {
		comment = &o.Comment
	}

	var id int64
	err = r.pool.QueryRow(ctx,
		`INSERT INTO orders (user_id, first_name, last_name, phone_number,
			products, region, address, comment, status, date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		 RETURNING id`,
		o.UserID, o.FirstName, o.LastName, o.PhoneNumber, items,
		o.Region, o.Address, comment, o.Status,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create order: %w", err)
	}
	return id, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o       model.Order
		items   []byte
		comment *string
		status  int16
	)

	err := row.Scan(&o.ID, &o.UserID, &o.FirstName, &o.LastName,
		&o.PhoneNumber, &items, &o.Region, &o.Address, &comment, &status, &o.Date)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("decode order items: %w", err)
	}
	if comment != nil {
		o.Comment = *comment
	}
	o.Status = int(status)

	return &o, nil
}

// ListOrders возвращает страницу заказов, новые сверху.
func (r *PostgresRepository) ListOrders(ctx context.Context, limit, offset int) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, first_name, last_name, phone_number, products,
			region, address, comment, status, date
		 FROM orders ORDER BY id DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var res []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetOrder возвращает заказ по идентификатору.
func (r *PostgresRepository) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, first_name, last_name, phone_number, products,
			region, address, comment, status, date
		 FROM orders WHERE id = $1`,
		id,
	)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// UpdateOrderItems заменяет список позиций заказа.
func (r *PostgresRepository) UpdateOrderItems(ctx context.Context, id int64, items []model.OrderItem) error {
	encoded, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode order items: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `UPDATE orders SET products = $1 WHERE id = $2`, encoded, id)
	if err != nil {
		return fmt.Errorf("update order items: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// UpdateOrderStatus меняет статус заказа.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, id int64, status int) error {
	tag, err := r.pool.Exec(ctx, `UPDATE orders SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// AddFavorite добавляет товар в избранное пользователя.
func (r *PostgresRepository) AddFavorite(ctx context.Context, userID, productID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO favorites (user_id, product_id) VALUES ($1, $2)`,
		userID, productID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.UniqueViolation:
				return ErrFavoriteExists
			case pgerrcode.ForeignKeyViolation:
				return ErrProductNotFound
			}
		}
		return fmt.Errorf("add favorite: %w", err)
	}
	return nil
}

// RemoveFavorite удаляет товар из избранного пользователя.
func (r *PostgresRepository) RemoveFavorite(ctx context.Context, userID, productID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM favorites WHERE user_id = $1 AND product_id = $2`,
		userID, productID,
	)
	if err != nil {
		return fmt.Errorf("remove favorite: %w", err)
	}
	return nil
}

// ListFavorites возвращает избранные товары пользователя.
func (r *PostgresRepository) ListFavorites(ctx context.Context, userID int64) ([]model.Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+productColumns+`
		 FROM products
		 WHERE id IN (SELECT product_id FROM favorites WHERE user_id = $1)`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select favorites: %w", err)
	}
	defer rows.Close()

	return collectProducts(rows)
}

// UpsertReview сохраняет оценку пользователя, заменяя предыдущую.
func (r *PostgresRepository) UpsertReview(ctx context.Context, userID int64, grade int) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO reviews (user_id, grade) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET grade = EXCLUDED.grade`,
		userID, grade,
	)
	if err != nil {
		return fmt.Errorf("upsert review: %w", err)
	}
	return nil
}
