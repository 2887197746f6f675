package utils

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateStruct runs the `validate` tags on a request DTO.
func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}
