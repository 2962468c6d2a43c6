package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/kjstillabower/skyweather/internal/models"
)

// ErrInvalid wraps every payload validation failure. The HTTP layer maps it to 400.
var ErrInvalid = errors.New("invalid request")

// ErrQueryTooLong is returned when search text exceeds the maximum length.
var ErrQueryTooLong = errors.New("search text too long")

// ErrQueryInvalidChars is returned when search text contains control characters.
var ErrQueryInvalidChars = errors.New("search text contains invalid characters")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("theme", func(fl validator.FieldLevel) bool {
		return models.Theme(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("language", func(fl validator.FieldLevel) bool {
		return models.Language(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("units", func(fl validator.FieldLevel) bool {
		return models.Units(fl.Field().String()).Valid()
	})
	return v
}

// Struct validates v against its `validate` tags. Failures wrap ErrInvalid and name the
// offending fields by their JSON names.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return field + " must be at most " + fe.Param() + " characters"
	case "gte":
		return field + " must be at least " + fe.Param()
	case "latitude", "longitude":
		return field + " must be a valid " + fe.Tag()
	}
	return fmt.Sprintf("%s is not a valid %s", field, fe.Tag())
}

// Coordinates checks that c lies within latitude and longitude bounds.
func Coordinates(c models.Coordinates) error {
	return Struct(c)
}

// SearchText trims raw search input and enforces a rune length ceiling (maxLen <= 0
// disables it). Control characters are rejected; anything printable is passed to the
// geocoder, which handles any script.
func SearchText(input string, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if maxLen > 0 && len(r) > maxLen {
		return "", fmt.Errorf("%w: %w", ErrInvalid, ErrQueryTooLong)
	}
	for _, c := range r {
		if unicode.IsControl(c) {
			return "", fmt.Errorf("%w: %w", ErrInvalid, ErrQueryInvalidChars)
		}
	}
	return s, nil
}
