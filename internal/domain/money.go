package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Суммы округляются до moneyScale знаков после запятой.
const moneyScale = 2

// Money — неотрицательная денежная сумма с точностью до двух знаков.
// Нулевое значение Money{} корректно и равно 0.00.
type Money struct {
	amount decimal.Decimal
}

// Zero возвращает нулевую сумму.
func Zero() Money {
	return Money{amount: decimal.Zero}
}

// NewMoney округляет сумму до двух знаков (half away from zero) и отклоняет отрицательные значения.
func NewMoney(amount decimal.Decimal) (Money, error) {
	if amount.IsNegative() {
		return Money{}, NewValidationError("amount", amount.String(), "must be non-negative")
	}
	return Money{amount: amount.Round(moneyScale)}, nil
}

// ParseMoney разбирает десятичную строку вида "12.50".
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, NewValidationError("amount", s, "not a decimal number")
	}
	return NewMoney(d)
}

// MustMoney паникует на некорректном вводе. Только для констант и тестов.
func MustMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Decimal возвращает значение для хранилищ.
func (m Money) Decimal() decimal.Decimal {
	return m.amount
}

func (m Money) Add(other Money) Money {
	return Money{amount: m.amount.Add(other.amount)}
}

// Subtract возвращает ошибку, если результат стал бы отрицательным.
func (m Money) Subtract(other Money) (Money, error) {
	diff := m.amount.Sub(other.amount)
	if diff.IsNegative() {
		return Money{}, NewValidationError("amount", diff.String(), "subtraction result must be non-negative")
	}
	return Money{amount: diff}, nil
}

// Multiply умножает сумму на количество единиц.
func (m Money) Multiply(qty int) (Money, error) {
	if qty < 0 {
		return Money{}, NewValidationError("quantity", qty, "must be non-negative")
	}
	return Money{amount: m.amount.Mul(decimal.NewFromInt(int64(qty)))}, nil
}

// Scale умножает сумму на неотрицательный коэффициент с повторным округлением.
func (m Money) Scale(factor decimal.Decimal) (Money, error) {
	return NewMoney(m.amount.Mul(factor))
}

// Compare возвращает -1, 0 или 1.
func (m Money) Compare(other Money) int {
	return m.amount.Cmp(other.amount)
}

func (m Money) Equal(other Money) bool {
	return m.amount.Equal(other.amount)
}

func (m Money) GreaterThan(other Money) bool {
	return m.amount.GreaterThan(other.amount)
}

func (m Money) LessThan(other Money) bool {
	return m.amount.LessThan(other.amount)
}

func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

func (m Money) String() string {
	return m.amount.StringFixed(moneyScale)
}

// MarshalJSON сериализует сумму строкой, чтобы не терять точность.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var d decimal.Decimal
		if derr := d.UnmarshalJSON(data); derr != nil {
			return fmt.Errorf("decode money: %w", err)
		}
		s = d.String()
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
