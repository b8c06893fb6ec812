package validator

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/PRYePR/moreyudeals-sub000/internal/models"
)

// Validator is a wrapper around the validator library.
type Validator struct {
	validate *validator.Validate
}

// New creates a new Validator instance with the Deal cross-field rules registered.
func New() *Validator {
	v := validator.New()
	v.RegisterStructValidation(dealStructLevel, models.Deal{})
	return &Validator{
		validate: v,
	}
}

// dealStructLevel checks the rules the field tags cannot express: a price pair
// must be ordered, and a discount only exists together with an original price.
func dealStructLevel(sl validator.StructLevel) {
	d := sl.Current().Interface().(models.Deal)
	if d.Price != nil && d.OriginalPrice != nil && *d.Price > *d.OriginalPrice {
		sl.ReportError(d.Price, "Price", "price", "ltefield", "OriginalPrice")
	}
	if d.DiscountPercent != nil && d.OriginalPrice == nil {
		sl.ReportError(d.DiscountPercent, "DiscountPercent", "discountPercent", "required_with", "OriginalPrice")
	}
	if d.AffiliateEnabled && d.AffiliateLink == "" {
		sl.ReportError(d.AffiliateLink, "AffiliateLink", "affiliateLink", "required_if", "AffiliateEnabled")
	}
}

// ValidateStruct validates a struct based on its tags.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}
