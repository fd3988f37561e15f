package middleware

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/inbox-api/internal/model"
	"github.com/jwalitptl/inbox-api/pkg/errors"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var customErrorMessages = map[string]string{
	"required": "is required",
	"min":      "is too short",
	"hhmm":     "must be a time in HH:MM format",
	"channel":  "must be one of: push, email, desktop",
	"oneof":    "must be one of: %s",
}

var registerOnce sync.Once

// RegisterValidators installs the custom tags on gin's validator and makes
// error fields use their JSON names. It is safe to call more than once.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}

		_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
			return model.IsClockTime(fl.Field().String())
		})
		_ = v.RegisterValidation("channel", func(fl validator.FieldLevel) bool {
			return model.IsChannel(strings.ToLower(strings.TrimSpace(fl.Field().String())))
		})

		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
}

// BindingError converts a gin binding failure into a validation AppError.
func BindingError(err error) *errors.AppError {
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) {
		fields := make([]ValidationError, 0, len(verrs))
		for _, e := range verrs {
			msg, ok := customErrorMessages[e.Tag()]
			if !ok {
				msg = fmt.Sprintf("failed on %s", e.Tag())
			} else if strings.Contains(msg, "%s") {
				msg = fmt.Sprintf(msg, e.Param())
			}
			fields = append(fields, ValidationError{Field: fieldPath(e), Message: msg})
		}

		parts := make([]string, 0, len(fields))
		for _, f := range fields {
			parts = append(parts, f.Field+" "+f.Message)
		}
		return errors.Validation(strings.Join(parts, "; "))
	}

	var typeErr *json.UnmarshalTypeError
	if stderrors.As(err, &typeErr) {
		return errors.Validation(fmt.Sprintf("%s has the wrong type", typeErr.Field))
	}
	if stderrors.Is(err, model.ErrMetadataNotObject) {
		return errors.Validation(model.ErrMetadataNotObject.Error())
	}
	return errors.NewBadRequest("invalid request body", err)
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return e.Field()
}
