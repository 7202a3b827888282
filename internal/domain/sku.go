package domain

import (
	"regexp"
	"strings"
)

const maxSKULength = 50

var skuPattern = regexp.MustCompile(`^[A-Z0-9-]+$`)

// SKU — артикул товара: заглавные латинские буквы, цифры и дефис.
type SKU struct {
	value string
}

// NewSKU обрезает пробелы, приводит к верхнему регистру и проверяет формат.
func NewSKU(raw string) (SKU, error) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	switch {
	case value == "":
		return SKU{}, NewValidationError("sku", raw, "is required")
	case len(value) > maxSKULength:
		return SKU{}, NewValidationError("sku", raw, "must be at most 50 characters")
	case !skuPattern.MatchString(value):
		return SKU{}, NewValidationError("sku", raw, "must contain only A-Z, 0-9 and '-'")
	}
	return SKU{value: value}, nil
}

func (s SKU) String() string {
	return s.value
}

func (s SKU) Equal(other SKU) bool {
	return s.value == other.value
}
