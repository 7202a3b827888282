package domain

import "strings"

// Price — денежная сумма в конкретной валюте.
type Price struct {
	amount   Money
	currency string
}

// NewPrice нормализует код валюты (trim + upper case) и проверяет, что он из трёх латинских букв.
func NewPrice(amount Money, currency string) (Price, error) {
	code, err := NormalizeCurrency(currency)
	if err != nil {
		return Price{}, err
	}
	return Price{amount: amount, currency: code}, nil
}

// NormalizeCurrency приводит код валюты к виду ISO 4217.
func NormalizeCurrency(currency string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if len(code) != 3 {
		return "", NewValidationError("currency", currency, "must be a 3-letter code")
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", NewValidationError("currency", currency, "must contain only letters")
		}
	}
	return code, nil
}

func (p Price) Amount() Money {
	return p.amount
}

func (p Price) Currency() string {
	return p.currency
}

// Equal сравнивает сумму и валюту.
func (p Price) Equal(other Price) bool {
	return p.currency == other.currency && p.amount.Equal(other.amount)
}

func (p Price) String() string {
	return p.amount.String() + " " + p.currency
}
