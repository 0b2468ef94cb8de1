// Package currency хранит валютный коэффициент, по которому цены каталога
// пересчитываются в валюту отображения.
package currency

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"gopkg.in/ini.v1"

	"github.com/dmarkua/storefront-system/internal/pricing"
)

// Key — ключ коэффициента в конфигурационном файле.
const Key = "EURO_COEFFICIENT"

// Service держит коэффициент в памяти на время жизни процесса.
// Значение читается из ini-файла на старте и перезаписывается туда же
// при изменении администратором. Каждый расчёт цены читает значение из
// памяти, а не из файла.
type Service struct {
	path string

	mu    sync.RWMutex
	value decimal.Decimal
}

// Load создаёт сервис и читает коэффициент из указанного файла.
func Load(path string) (*Service, error) {
	s := &Service{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload перечитывает коэффициент из файла.
func (s *Service) Reload() error {
	cfg, err := ini.Load(s.path)
	if err != nil {
		return fmt.Errorf("load exchange file: %w", err)
	}

	raw := cfg.Section("").Key(Key).String()
	v, err := pricing.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", Key, err)
	}

	s.mu.Lock()
	s.value = v.Round(2)
	s.mu.Unlock()

	return nil
}

// Coefficient возвращает текущий коэффициент.
func (s *Service) Coefficient() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Set устанавливает новый коэффициент и перезаписывает файл целиком.
// Значение нормализуется до двух знаков. Конкурирующие чтения во время
// записи могут увидеть как старое, так и новое значение.
func (s *Service) Set(v decimal.Decimal) error {
	if v.IsNegative() {
		return fmt.Errorf("%w: negative coefficient", pricing.ErrInvalidPrice)
	}
	v = v.Round(2)

	cfg, err := ini.Load(s.path)
	if err != nil {
		// Файл могли удалить между стартом и обновлением.
		cfg = ini.Empty()
	}
	cfg.Section("").Key(Key).SetValue(v.StringFixed(2))

	if err := cfg.SaveTo(s.path); err != nil {
		return fmt.Errorf("save exchange file: %w", err)
	}

	s.mu.Lock()
	s.value = v
	s.mu.Unlock()

	return nil
}
