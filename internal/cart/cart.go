// Package cart реализует корзину покупателя, хранимую в cookie клиента.
// Сервер не держит серверной копии: корзина целиком ходит в cookie `cart`
// в виде JSON {"items":{"<id>":количество}}.
package cart

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"
)

// CookieName — имя cookie с корзиной.
const CookieName = "cart"

// ErrBadToken возвращается при невозможности разобрать значение cookie.
var ErrBadToken = errors.New("malformed cart token")

// Cart — отображение идентификатора товара на количество.
// Количество всегда строго положительно: позиция, дошедшая до нуля,
// удаляется, а не хранится нулём.
type Cart struct {
	Items map[string]int `json:"items"`
}

// New возвращает пустую корзину.
func New() Cart {
	return Cart{Items: make(map[string]int)}
}

// Add добавляет товар в корзину. Если товар уже есть, количество
// увеличивается на qty. Возвращает true при добавлении новой позиции
// и false при увеличении существующей.
func (c *Cart) Add(id string, qty int) bool {
	if c.Items == nil {
		c.Items = make(map[string]int)
	}
	if qty <= 0 {
		qty = 1
	}

	if _, ok := c.Items[id]; ok {
		c.Items[id] += qty
		return false
	}

	c.Items[id] = qty
	return true
}

// Remove уменьшает количество товара на qty или удаляет позицию целиком
// при qty <= 0. Количество не уходит в минус: при достижении нуля позиция
// удаляется.
func (c *Cart) Remove(id string, qty int) {
	if c.Items == nil {
		return
	}

	if qty <= 0 {
		delete(c.Items, id)
		return
	}

	left := c.Items[id] - qty
	if left <= 0 {
		delete(c.Items, id)
		return
	}
	c.Items[id] = left
}

// Len возвращает число различных позиций в корзине, а не суммарное
// количество товаров. Используется для счётчика на значке корзины.
func (c Cart) Len() int {
	return len(c.Items)
}

// IDs возвращает идентификаторы товаров в детерминированном порядке.
func (c Cart) IDs() []string {
	ids := make([]string, 0, len(c.Items))
	for id := range c.Items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Encode сериализует корзину в значение cookie.
func (c Cart) Encode() (string, error) {
	if c.Items == nil {
		c.Items = make(map[string]int)
	}

	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return url.QueryEscape(string(b)), nil
}

// Decode разбирает значение cookie в корзину.
func Decode(value string) (Cart, error) {
	raw, err := url.QueryUnescape(value)
	if err != nil {
		return New(), ErrBadToken
	}

	var c Cart
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return New(), ErrBadToken
	}
	if c.Items == nil {
		c.Items = make(map[string]int)
	}
	return c, nil
}

// FromRequest читает корзину из cookie запроса. Отсутствующая или
// испорченная cookie даёт пустую корзину; порча дополнительно
// сигнализируется ошибкой, чтобы обработчик сбросил cookie.
func FromRequest(r *http.Request) (Cart, error) {
	ck, err := r.Cookie(CookieName)
	if err != nil {
		return New(), nil
	}
	return Decode(ck.Value)
}

// Write записывает корзину в cookie ответа.
func Write(w http.ResponseWriter, c Cart) error {
	value, err := c.Encode()
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:  CookieName,
		Value: value,
		Path:  "/",
	})
	return nil
}

// Clear сбрасывает cookie корзины. Вызывается после успешного оформления
// заказа и при обнаружении испорченного токена.
func Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   CookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}
