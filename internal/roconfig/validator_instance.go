package roconfig

import (
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	semverPattern = regexp.MustCompile(`^\d+\.\d+(?:\.\d+)?(?:-[0-9A-Za-z-.]+)?(?:\+[0-9A-Za-z-.]+)?$`)
	taskIDPattern = regexp.MustCompile(`^[a-z0-9_]+$`)
	modelPattern  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)
)

// validatorInstance configures and returns the shared validator instance
// used across this package.
func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("semver", func(fl validator.FieldLevel) bool {
			return semverPattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("task_id", func(fl validator.FieldLevel) bool {
			return taskIDPattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("model_name", func(fl validator.FieldLevel) bool {
			return modelPattern.MatchString(fl.Field().String())
		})

		validateInst = v
	})

	return validateInst
}
