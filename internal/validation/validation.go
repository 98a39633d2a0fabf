// Package validation builds the struct validator shared by the services.
package validation

import (
	"fmt"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"rollbook/internal/model"
)

// Custom tags understood by validators returned from New.
const (
	GradeTag    = "grade"
	PasswordTag = "password"
)

// New returns a validator with the grade and password tags registered.
func New() *validator.Validate {
	v := validator.New()
	mustRegister(v, GradeTag, gradeValidation)
	mustRegister(v, PasswordTag, passwordValidation)
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %q validation: %v", tag, err))
	}
}

// gradeValidation accepts one of model.Grades.
func gradeValidation(fl validator.FieldLevel) bool {
	return model.Grade(fl.Field().String()).Valid()
}

// passwordValidation enforces model.MinPasswordLen, counted in runes.
func passwordValidation(fl validator.FieldLevel) bool {
	return utf8.RuneCountInString(fl.Field().String()) >= model.MinPasswordLen
}
