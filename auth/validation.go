package auth

import (
	"github.com/go-playground/validator/v10"
)

// validate is shared across calls; validator.Validate caches struct
// metadata and is safe for concurrent use.
var validate = validator.New(validator.WithRequiredStructEnabled())

func validateStruct(v any) error {
	return validate.Struct(v)
}
