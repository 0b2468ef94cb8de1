// Package validation содержит функции валидации входных данных.
package validation

import (
	"strconv"
	"strings"
	"unicode"
)

// NormalizePhone убирает из номера телефона всё, кроме букв, цифр
// и подчёркивания: скобки, пробелы, дефисы и знак «+».
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsValidGrade проверяет, что оценка лежит в диапазоне от 1 до 5.
func IsValidGrade(grade int) bool {
	return grade >= 1 && grade <= 5
}

// ParsePositiveInt разбирает строго положительное целое из строки.
func ParsePositiveInt(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
