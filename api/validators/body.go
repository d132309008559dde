// Package validators decodes and checks request input, turning failures into
// validation errors the response layer renders as 400s.
package validators

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/angelmondragon/packfinderz-rewards/pkg/errors"
)

// MaxBodyBytes caps request bodies; every rewards payload is a handful of fields.
const MaxBodyBytes = 64 << 10

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})
	return v
}()

// DecodeJSONBody decodes exactly one JSON object into dest and runs its
// validate tags. Unknown fields are rejected.
func DecodeJSONBody(r *http.Request, dest any) error {
	body := http.MaxBytesReader(nil, r.Body, MaxBodyBytes)
	defer func() { _, _ = io.Copy(io.Discard, body) }()

	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return bodyError(err)
	}
	if dec.More() {
		return pkgerrors.New(pkgerrors.CodeValidation, "request body must contain a single JSON object")
	}
	return Struct(dest)
}

// Struct runs validate tags on v.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	details := make(map[string]string, len(fields))
	for _, fe := range fields {
		details[fe.Field()] = describe(fe)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	msg := err.Error()
	switch {
	case errors.As(err, &tooLarge):
		msg = fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit)
	case errors.Is(err, io.EOF):
		msg = "body is empty"
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").
		WithDetails(map[string]any{"error": msg})
}

var bounds = map[string]string{
	"min": "must be at least %s",
	"gte": "must be at least %s",
	"max": "must be at most %s",
	"lte": "must be at most %s",
	"gt":  "must be greater than %s",
	"ne":  "must not be %s",
}

func describe(fe validator.FieldError) string {
	if format, ok := bounds[fe.Tag()]; ok {
		return fmt.Sprintf(format, fe.Param())
	}
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "ip":
		return "must be a valid ip address"
	case "url", "http_url":
		return "must be a valid url"
	case "uuid":
		return "must be a valid uuid"
	}
	return "is invalid"
}
