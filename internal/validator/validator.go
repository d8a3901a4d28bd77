package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/TalentGate/candidate-session-service/internal/errors"
	"github.com/TalentGate/candidate-session-service/internal/models"
)

// Validator wraps struct-tag validation with the custom session rules.
type Validator struct {
	structValidator *validator.Validate
}

// New creates the shared validator instance.
func New() *Validator {
	structValidator := validator.New()
	registerCustomValidators(structValidator)
	return &Validator{structValidator: structValidator}
}

// Validate checks struct tags and returns friendly field errors.
func (v *Validator) Validate(s interface{}) error {
	if err := v.structValidator.Struct(s); err != nil {
		if converted := apperrors.ToValidationErrors(err); len(converted) > 0 {
			return converted
		}
		return err
	}
	return nil
}

func registerCustomValidators(validate *validator.Validate) {
	validate.RegisterValidation("answer_kind", validateAnswerKind)
	validate.RegisterValidation("section_type", validateSectionType)

	// Report json field names in error messages.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

func validateAnswerKind(fl validator.FieldLevel) bool {
	validKinds := []models.AnswerKind{
		models.AnswerRankedPair,
		models.AnswerSingleChoice,
	}

	value := fl.Field().String()
	for _, validKind := range validKinds {
		if string(validKind) == value {
			return true
		}
	}
	return false
}

func validateSectionType(fl validator.FieldLevel) bool {
	validTypes := []models.SectionType{
		models.SectionRankedPair,
		models.SectionSingleChoiceScored,
		models.SectionContinuousScroll,
	}

	value := fl.Field().String()
	for _, validType := range validTypes {
		if string(validType) == value {
			return true
		}
	}
	return false
}
