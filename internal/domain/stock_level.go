package domain

import "math"

// MaxStockQuantity ограничивает сумму свободного и зарезервированного остатка:
// счётчики хранятся в колонках INTEGER.
const MaxStockQuantity = math.MaxInt32

// StockLevel — складской остаток товара: свободное и зарезервированное количество.
// Операции не меняют значение, а возвращают новое.
type StockLevel struct {
	available int
	reserved  int
}

// NewStockLevel создаёт остаток с неотрицательными счётчиками.
func NewStockLevel(available, reserved int) (StockLevel, error) {
	if available < 0 {
		return StockLevel{}, NewValidationError("available", available, "must be non-negative")
	}
	if reserved < 0 {
		return StockLevel{}, NewValidationError("reserved", reserved, "must be non-negative")
	}
	if reserved > MaxStockQuantity || available > MaxStockQuantity-reserved {
		return StockLevel{}, NewValidationError("available", available, "available plus reserved exceeds stock limit")
	}
	return StockLevel{available: available, reserved: reserved}, nil
}

func (s StockLevel) Available() int { return s.available }
func (s StockLevel) Reserved() int { return s.reserved }

// Total возвращает сумму свободного и зарезервированного.
func (s StockLevel) Total() int {
	return s.available + s.reserved
}

// Reserve переносит qty единиц из свободного остатка в резерв.
func (s StockLevel) Reserve(qty int) (StockLevel, error) {
	if qty <= 0 || s.available < qty {
		return s, s.violation("reserve", qty)
	}
	return StockLevel{available: s.available - qty, reserved: s.reserved + qty}, nil
}

// Release возвращает qty единиц из резерва в свободный остаток.
func (s StockLevel) Release(qty int) (StockLevel, error) {
	if qty <= 0 || s.reserved < qty {
		return s, s.violation("release", qty)
	}
	return StockLevel{available: s.available + qty, reserved: s.reserved - qty}, nil
}

// Commit списывает qty единиц из резерва: товар ушёл покупателю.
func (s StockLevel) Commit(qty int) (StockLevel, error) {
	if qty <= 0 || s.reserved < qty {
		return s, s.violation("commit", qty)
	}
	return StockLevel{available: s.available, reserved: s.reserved - qty}, nil
}

// Adjust выставляет свободный остаток по результатам инвентаризации. Резерв не меняется,
// итог не может превысить MaxStockQuantity.
func (s StockLevel) Adjust(newAvailable int) (StockLevel, error) {
	if newAvailable < 0 || newAvailable > MaxStockQuantity-s.reserved {
		return s, s.violation("adjust", newAvailable)
	}
	return StockLevel{available: newAvailable, reserved: s.reserved}, nil
}

func (s StockLevel) violation(op string, qty int) *StockViolationError {
	return &StockViolationError{
		Operation: op,
		Requested: qty,
		Available: s.available,
		Reserved:  s.reserved,
	}
}
