// Package pricing вычисляет отображаемую цену товара: базовая цена,
// наценка продавца и валютный коэффициент.
package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidPrice возвращается при некорректном числовом значении цены.
var ErrInvalidPrice = errors.New("invalid price value")

var hundred = decimal.NewFromInt(100)

// Total возвращает цену с наценкой: базовая цена в исходных единицах
// делится на 100, умножается на (100+наценка)/100 и округляется вверх
// до сотой. Округление вверх — в пользу продавца.
func Total(base, factor decimal.Decimal) decimal.Decimal {
	subtotal := base.Div(hundred)
	withMarkup := subtotal.Mul(hundred.Add(factor)).Div(hundred)
	return withMarkup.Mul(hundred).Ceil().Div(hundred)
}

// Display применяет валютный коэффициент к цене с наценкой.
// Коэффициент применяется только при отображении и никогда не сохраняется.
func Display(total, coefficient decimal.Decimal) decimal.Decimal {
	return total.Mul(coefficient)
}

// DisplayPrice вычисляет итоговую отображаемую цену из базовой.
func DisplayPrice(base, factor, coefficient decimal.Decimal) decimal.Decimal {
	return Display(Total(base, factor), coefficient)
}

// Format выводит цену с двумя знаками после запятой. Здесь округление
// обычное, а не вверх: вверх округляется только цена с наценкой.
// Разделитель дробной части — запятая.
func Format(d decimal.Decimal) string {
	return strings.Replace(d.StringFixed(2), ".", ",", 1)
}

// Parse разбирает число из пользовательского ввода. Допускает запятую
// в качестве разделителя. Отрицательные значения недопустимы.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.Replace(s, ",", ".", 1))
	if s == "" {
		return decimal.Decimal{}, ErrInvalidPrice
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidPrice, s)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidPrice, s)
	}

	return d, nil
}
