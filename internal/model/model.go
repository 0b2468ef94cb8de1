// Package model содержит доменные сущности интернет-магазина.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockStatus описывает наличие товара на складе.
type StockStatus int

const (
	StockOut     StockStatus = 0
	StockIn      StockStatus = 1
	StockLimited StockStatus = 2
)

// Product представляет товар каталога. Поле PriceTotal вычисляется
// при чтении из БД и никогда не хранится.
type Product struct {
	ID               int64
	BrandOriginal    string
	BrandTranslation string
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
	Stock            StockStatus
	Case             string
	Visibility       bool
	// PriceTotal — цена с наценкой до применения валютного коэффициента.
	PriceTotal decimal.Decimal
}

// User представляет зарегистрированного пользователя магазина.
type User struct {
	ID           int64
	FirstName    string
	LastName     string
	Email        string
	PasswordHash []byte
	Admin        bool
	RegDate      time.Time
	LogDate      time.Time
}

// OrderItem описывает одну позицию заказа: идентификатор товара и количество.
type OrderItem struct {
	ProductID int64 `json:"id"`
	Amount    int   `json:"amount"`
}

// Order описывает заказ. Список позиций фиксируется при оформлении,
// дальнейшее обогащение ценой и названием идёт по текущим данным каталога.
type Order struct {
	ID          int64
	UserID      *int64
	FirstName   string
	LastName    string
	PhoneNumber string
	Items       []OrderItem
	Region      string
	Address     string
	Comment     string
	Status      int
	Date        time.Time
}

// CartLine — строка корзины после сверки с каталогом.
type CartLine struct {
	Product  Product
	Quantity int
	// DisplayPrice — итоговая цена в валюте отображения.
	DisplayPrice decimal.Decimal
}

// Review — оценка магазина пользователем, от 1 до 5.
type Review struct {
	UserID int64
	Grade  int
}
