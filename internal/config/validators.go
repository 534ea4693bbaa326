package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// maxChunkSize mirrors the container limit of one GiB per chunk.
const maxChunkSize = 1 << 30

// newValidator returns a validator with the custom rules registered and field
// names reported by their label tag.
func newValidator() (*validator.Validate, error) {
	validate := validator.New()

	if err := validate.RegisterValidation("chunksize", validateChunkSize); err != nil {
		return nil, fmt.Errorf("registering chunksize validation: %w", err)
	}

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		const splitSize = 2

		name := strings.SplitN(fld.Tag.Get("label"), ",", splitSize)[0]
		if name == "" || name == "-" {
			return fld.Name
		}

		return name
	})

	return validate, nil
}

// validateChunkSize accepts sizes between 1 B and 1 GiB in any humanize notation.
func validateChunkSize(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.String {
		return false
	}

	_, err := parseChunkSize(field.String())

	return err == nil
}
