package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
)

type lineInput struct {
	Quantity int `json:"quantity" validate:"gt=0"`
}

type orderInput struct {
	Customer string      `json:"customer_id" validate:"required,max=5"`
	Currency string      `json:"currency" validate:"len=3"`
	Lines    []lineInput `json:"lines" validate:"required,min=1,dive"`
}

func TestValidateInput(t *testing.T) {
	tests := []struct {
		name   string
		in     orderInput
		field  string
		reason string
	}{
		{
			name: "valid",
			in:   orderInput{Customer: "c", Currency: "USD", Lines: []lineInput{{Quantity: 1}}},
		},
		{
			name:   "required",
			in:     orderInput{Currency: "USD", Lines: []lineInput{{Quantity: 1}}},
			field:  "customer_id",
			reason: "is required",
		},
		{
			name:   "too long",
			in:     orderInput{Customer: "customer", Currency: "USD", Lines: []lineInput{{Quantity: 1}}},
			field:  "customer_id",
			reason: "must be at most 5",
		},
		{
			name:   "length",
			in:     orderInput{Customer: "c", Currency: "US", Lines: []lineInput{{Quantity: 1}}},
			field:  "currency",
			reason: "must have length 3",
		},
		{
			name:   "nested field path",
			in:     orderInput{Customer: "c", Currency: "USD", Lines: []lineInput{{Quantity: 1}, {Quantity: 0}}},
			field:  "lines[1].quantity",
			reason: "must be greater than 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInput(tt.in)
			if tt.field == "" {
				require.NoError(t, err)
				return
			}

			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, tt.reason, verr.Reason)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}
