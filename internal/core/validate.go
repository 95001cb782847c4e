package core

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError describes one invalid input field.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names so clients can map errors to inputs.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
}

// ValidateMember checks a member before it reaches the store.
func ValidateMember(in MemberInput) error {
	return toValidationError(validate.Struct(in))
}

// ValidateExpense checks an expense before it reaches the store. When strict is
// set the category must be one of Categories.
func ValidateExpense(in ExpenseInput, strict bool) error {
	if err := toValidationError(validate.Struct(in)); err != nil {
		return err
	}
	if in.Date.IsZero() {
		return &ValidationError{Field: "date", Message: "date is required"}
	}
	if strict && !IsKnownCategory(in.Category) {
		return unknownCategory()
	}
	return nil
}

// ValidateMemberPatch checks the fields a partial update sets.
func ValidateMemberPatch(p MemberPatch) error {
	if p.Name != nil {
		if err := checkVar("name", *p.Name, "required,notblank,max=100"); err != nil {
			return err
		}
	}
	if p.Contribution != nil {
		if err := checkVar("contribution", int64(*p.Contribution), amountTag); err != nil {
			return err
		}
	}
	return nil
}

// ValidateExpensePatch checks the fields a partial update sets.
func ValidateExpensePatch(p ExpensePatch, strict bool) error {
	if p.Amount != nil {
		if err := checkVar("amount", int64(*p.Amount), amountTag); err != nil {
			return err
		}
	}
	if p.Category != nil {
		if err := checkVar("category", *p.Category, "required,notblank,max=50"); err != nil {
			return err
		}
		if strict && !IsKnownCategory(*p.Category) {
			return unknownCategory()
		}
	}
	if p.Description != nil {
		if err := checkVar("description", *p.Description, "required,notblank,max=200"); err != nil {
			return err
		}
	}
	if p.Date != nil && p.Date.IsZero() {
		return &ValidationError{Field: "date", Message: "date is required"}
	}
	return nil
}

// MaxAmount caps a single contribution or expense so cycle totals stay far
// from int64 overflow. It matches the lte bound in the input struct tags.
const MaxAmount = 1_000_000_000_000

var amountTag = fmt.Sprintf("gt=0,lte=%d", MaxAmount)

func unknownCategory() error {
	return &ValidationError{
		Field:   "category",
		Message: "category must be one of: " + strings.Join(Categories, ", "),
	}
}

func checkVar(field string, v any, tag string) error {
	err := validate.Var(v, tag)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &ValidationError{Field: field, Message: describe(field, verrs[0])}
	}
	return &ValidationError{Field: field, Message: err.Error()}
}

func toValidationError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{Field: fe.Field(), Message: describe(fe.Field(), fe)}
	}
	return &ValidationError{Message: err.Error()}
}

func describe(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return field + " is required"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}
