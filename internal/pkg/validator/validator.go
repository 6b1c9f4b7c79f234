// Package validator validates structs by the "validate" tags.
// Error messages use JSON field names and the full path of the field.
package validator

import (
	"context"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslation "github.com/go-playground/validator/v10/translations/en"

	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

type Rule struct {
	Tag  string
	Func validator.Func
}

type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

func New(rules ...Rule) *Validator {
	v := &Validator{validate: validator.New()}

	enLocale := en.New()
	translator, found := ut.New(enLocale, enLocale).GetTranslator("en")
	if !found {
		panic(errors.New("en translator was not found"))
	}
	if err := enTranslation.RegisterDefaultTranslations(v.validate, translator); err != nil {
		panic(errors.Errorf("translator was not registered: %w", err))
	}
	v.translator = translator

	for _, rule := range rules {
		if err := v.validate.RegisterValidation(rule.Tag, rule.Func); err != nil {
			panic(err)
		}
	}

	// Use JSON field names or config keys in error messages
	v.validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			name = field.Tag.Get("configKey")
		}
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})

	return v
}

// Validate a struct, a pointer to a struct, or a slice of structs.
// All failed rules are reported at once.
func (v *Validator) Validate(ctx context.Context, value any) error {
	var err error
	kind := reflect.TypeOf(value).Kind()
	if kind == reflect.Ptr {
		kind = reflect.TypeOf(value).Elem().Kind()
	}
	if kind == reflect.Struct {
		err = v.validate.StructCtx(ctx, value)
	} else {
		err = v.validate.VarCtx(ctx, value, "dive")
	}

	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	out := errors.NewMultiError()
	for _, e := range validationErrs {
		out.Append(errors.New(v.message(e)))
	}
	return out.ErrorOrNil()
}

// message replaces the field name in the translated message by the quoted full path of the field.
func (v *Validator) message(e validator.FieldError) string {
	path := e.Namespace()
	if _, rest, found := strings.Cut(path, "."); found && !strings.HasPrefix(path, "[") {
		path = rest
	}
	msg := e.Translate(v.translator)
	if strings.HasPrefix(msg, e.Field()) {
		return `"` + path + `"` + strings.TrimPrefix(msg, e.Field())
	}
	return `"` + path + `": ` + msg
}
