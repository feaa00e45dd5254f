package types

import (
	"strings"

	pkgerrors "github.com/angelmondragon/farmlane-backend/pkg/errors"
)

// Address is the structured shipping destination stored on an order as JSON.
type Address struct {
	RecipientName string  `json:"recipient_name" validate:"required,max=120"`
	Line1         string  `json:"line1" validate:"required,max=200"`
	Line2         *string `json:"line2,omitempty" validate:"omitempty,max=200"`
	City          string  `json:"city" validate:"required,max=100"`
	State         string  `json:"state" validate:"required,max=100"`
	PostalCode    string  `json:"postal_code" validate:"required,max=20"`
	Country       string  `json:"country" validate:"omitempty,len=2"`
	Phone         *string `json:"phone,omitempty" validate:"omitempty,max=32"`
}

// Normalize trims whitespace and defaults the country to US.
func (a Address) Normalize() Address {
	out := a
	out.RecipientName = strings.TrimSpace(a.RecipientName)
	out.Line1 = strings.TrimSpace(a.Line1)
	out.City = strings.TrimSpace(a.City)
	out.State = strings.TrimSpace(a.State)
	out.PostalCode = strings.TrimSpace(a.PostalCode)
	out.Country = strings.ToUpper(strings.TrimSpace(a.Country))
	if out.Country == "" {
		out.Country = "US"
	}
	return out
}

// Validate checks the fields required to ship an order.
func (a Address) Validate() error {
	missing := []string{}
	for field, value := range map[string]string{
		"recipient_name": a.RecipientName,
		"line1":          a.Line1,
		"city":           a.City,
		"state":          a.State,
		"postal_code":    a.PostalCode,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		details := map[string]string{}
		for _, field := range missing {
			details[field] = "is required"
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping address incomplete").WithDetails(details)
	}
	return nil
}
