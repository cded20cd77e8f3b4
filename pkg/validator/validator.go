package validator

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator"

	"github.com/Eliezer-Jr/event-blossom/internal/model"
)

var global *validator.Validate

const (
	ErrInvalidFormat      = "Invalid format"
	ErrFieldRequired      = "Field is required"
	ErrFieldExceedsMaxLen = "Field exceeds maximum length"
	ErrFieldBelowMinLen   = "Field is below minimum length"
	ErrFieldExceedsMaxVal = "Field exceeds maximum value"
	ErrFieldBelowMinVal   = "Field is below minimum value"
	ErrUnknownValidation  = "Unknown validation error"
)

func init() {
	SetValidator(New())
}

func New() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("ghphone", validateGhanaPhone)
	_ = v.RegisterValidation("future", validateFutureDate)
	_ = v.RegisterValidation("capacity", validateCapacity)
	return v
}

func SetValidator(v *validator.Validate) {
	global = v
}

func Validator() *validator.Validate {
	return global
}

func validateGhanaPhone(fl validator.FieldLevel) bool {
	_, err := model.NormalizePhone(fl.Field().String())
	return err == nil
}

func validateFutureDate(fl validator.FieldLevel) bool {
	t, ok := fl.Field().Interface().(time.Time)
	return ok && t.After(time.Now())
}

// capacity/quantity columns allow any positive count or the unlimited sentinel
func validateCapacity(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(int)
	return ok && (val > 0 || val == model.Unlimited)
}

func Validate(ctx context.Context, structure any) error {
	return parseValidationErrors(Validator().StructCtx(ctx, structure))
}

func parseValidationErrors(err error) error {
	if err == nil {
		return nil
	}
	vErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(vErrors) == 0 {
		return nil
	}
	ve := vErrors[0]
	var msg string
	switch ve.Tag() {
	case "required":
		msg = ErrFieldRequired
	case "max":
		msg = ErrFieldExceedsMaxLen
	case "min":
		msg = ErrFieldBelowMinLen
	case "lt", "lte":
		msg = ErrFieldExceedsMaxVal
	case "gt", "gte":
		msg = ErrFieldBelowMinVal
	case "email":
		msg = "Invalid email address"
	case "ghphone":
		msg = "Enter a valid Ghana phone number (233XXXXXXXXX)"
	case "future":
		msg = "Date must be in the future"
	case "capacity":
		msg = "Value must be positive or -1 for unlimited"
	default:
		msg = ErrUnknownValidation
	}
	return errors.New(msg + ": " + ve.Namespace())
}
