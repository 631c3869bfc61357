package service

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/Freeeeeet/labportal/internal/scheduling"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// validateStruct переводит ошибки validator в *ValidationError
func validateStruct(s any) *ValidationError {
	vErr := &ValidationError{}
	err := validate.Struct(s)
	if err == nil {
		return vErr
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		vErr.add("_", err.Error())
		return vErr
	}
	for _, fe := range fieldErrs {
		vErr.add(fe.Field(), describeTag(fe))
	}
	return vErr
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "email":
		return "must be a valid email"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

// slot - разобранные день и интервал времени
type slot struct {
	weekday    time.Weekday
	hasWeekday bool
	start      scheduling.Clock
	end        scheduling.Clock
}

// parseSlot разбирает день недели и время; ошибки пишутся в vErr
func parseSlot(vErr *ValidationError, day, start, end string) slot {
	var s slot
	if day != "" {
		wd, err := scheduling.ParseWeekday(day)
		if err != nil {
			vErr.addCause("day", err)
		} else {
			s.weekday, s.hasWeekday = wd, true
		}
	}

	var startOK, endOK bool
	if start != "" {
		c, err := scheduling.ParseClock(start)
		if err != nil {
			vErr.add("start_time", "must be HH:MM")
		} else {
			s.start, startOK = c, true
		}
	}
	if end != "" {
		c, err := scheduling.ParseClock(end)
		if err != nil {
			vErr.add("end_time", "must be HH:MM")
		} else {
			s.end, endOK = c, true
		}
	}
	if startOK && endOK && s.end <= s.start {
		vErr.add("end_time", "must be after start_time")
	}
	return s
}
