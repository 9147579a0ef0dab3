package subscriptions

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bissquit/subscription-garden/internal/domain"
	"github.com/go-playground/validator/v10"
)

// Validator checks email syntax and category membership before any state change.
type Validator struct {
	registry *domain.CategoryRegistry
	validate *validator.Validate
}

type subscriptionInput struct {
	Email    string `validate:"required,email"`
	Category string `validate:"required,category"`
}

// NewValidator creates a validator bound to the given category registry.
func NewValidator(registry *domain.CategoryRegistry) *Validator {
	v := validator.New()
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return registry.Contains(domain.Category(fl.Field().String()))
	})

	return &Validator{
		registry: registry,
		validate: v,
	}
}

// Validate returns ErrInvalidEmail or ErrInvalidCategory (wrapped) when the
// pair is not acceptable. Email is checked first.
func (v *Validator) Validate(email string, category domain.Category) error {
	err := v.validate.Struct(subscriptionInput{
		Email:    email,
		Category: string(category),
	})
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate subscription: %w", err)
	}

	for _, fe := range fieldErrs {
		if fe.Field() == "Email" {
			return ErrInvalidEmail
		}
	}
	return v.categoryError()
}

// ValidateEmail checks only the email address.
func (v *Validator) ValidateEmail(email string) error {
	if err := v.validate.Var(email, "required,email"); err != nil {
		return ErrInvalidEmail
	}
	return nil
}

func (v *Validator) categoryError() error {
	return fmt.Errorf("%w, should be one of %s", ErrInvalidCategory, v.registry)
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
