package util

import (
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Harshitk-cp/hivecast/internal/pacing"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	// Register custom validation tags
	validate.RegisterValidation("pacingmode", validatePacingMode)
	validate.RegisterValidation("sessionid", validateSessionID)
}

// Validate validates a struct using the validator
func Validate(s interface{}) error {
	return validate.Struct(s)
}

// ValidateVar validates a variable using the validator
func ValidateVar(field interface{}, tag string) error {
	return validate.Var(field, tag)
}

// validatePacingMode validates a pacing mode name
func validatePacingMode(fl validator.FieldLevel) bool {
	_, err := pacing.ParseMode(fl.Field().String())
	return err == nil
}

// validateSessionID validates a session ID
func validateSessionID(fl validator.FieldLevel) bool {
	_, err := uuid.Parse(fl.Field().String())
	return err == nil
}

// NewSessionID generates a new session ID
func NewSessionID() string {
	return uuid.NewString()
}
