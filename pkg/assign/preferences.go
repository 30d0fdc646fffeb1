package assign

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/limaJavier/coursetable/pkg/errors"
	"github.com/limaJavier/coursetable/pkg/model"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			return strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		})
	})
	return validate
}

// ParsePreferences validates raw preference rows and turns them into their tagged form.
// The first malformed row fails the whole batch.
func ParsePreferences(raws []model.RawPreference) ([]model.TeacherPreference, error) {
	preferences := make([]model.TeacherPreference, 0, len(raws))
	for row, raw := range raws {
		if err := structValidator().Struct(raw); err != nil {
			var validationErrors validator.ValidationErrors
			if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
				fieldError := validationErrors[0]
				return nil, appErrors.Validation("preference", fmt.Sprintf("row %d: %s failed %q check", row+1, fieldError.Field(), fieldError.Tag()))
			}
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Message)
		}
		preference, err := model.ParsePreference(raw)
		if err != nil {
			return nil, err
		}
		preferences = append(preferences, preference)
	}
	return preferences, nil
}
