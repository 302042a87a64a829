package dto

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// StudentRequest carries the mutable student fields for create and update.
type StudentRequest struct {
	Name   string `json:"name" validate:"required,notblank,min=2,max=100"`
	Email  string `json:"email" validate:"required,email,max=254"`
	Age    int    `json:"age" validate:"required,gte=18,lte=100"`
	Course string `json:"course" validate:"required,notblank,min=2,max=100"`
}

// RegisterStudentRules installs the custom tags used by StudentRequest and
// reports field errors by their JSON name.
func RegisterStudentRules(v *validator.Validate) error {
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v.RegisterValidation("notblank", validators.NotBlank)
}

// FieldErrors converts validator failures into a field → reason map.
// It returns nil when err is not a validation error.
func FieldErrors(err error) map[string]string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return nil
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if _, seen := details[fe.Field()]; seen {
			continue
		}
		details[fe.Field()] = reason(fe)
	}
	return details
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "is mandatory"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
