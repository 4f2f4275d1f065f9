package service

import (
	"errors"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/parade-registry-api/internal/models"
)

var (
	documentoPattern = regexp.MustCompile(`^\d{8,12}$`)
	telefonoPattern  = regexp.MustCompile(`^\d{10}$`)
	placaPattern     = regexp.MustCompile(`^[A-Z]{3}\d{3}$`)
)

// NewValidator returns a validator with the registration rules and JSON
// field names in error reports.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	mustRegister(v, "documento", patternRule(documentoPattern))
	mustRegister(v, "telefono", patternRule(telefonoPattern))
	mustRegister(v, "placa", patternRule(placaPattern))
	mustRegister(v, "tematica", func(fl validator.FieldLevel) bool {
		return models.IsTheme(fl.Field().String())
	})
	mustRegister(v, "tipovehiculo", func(fl validator.FieldLevel) bool {
		return models.IsVehicleType(fl.Field().String())
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

func patternRule(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

// invalidFields lists the JSON names of the fields that failed validation.
func invalidFields(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return ""
	}
	seen := make(map[string]bool, len(verrs))
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if !seen[fe.Field()] {
			seen[fe.Field()] = true
			fields = append(fields, fe.Field())
		}
	}
	sort.Strings(fields)
	return strings.Join(fields, ", ")
}
