package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/limaJavier/coursetable/pkg/errors"
)

const (
	RoomStrategyEmbedded  = "embedded"
	RoomStrategyPostponed = "postponed"

	BackendNative    = "native"
	BackendGini      = "gini"
	BackendGophersat = "gophersat"
	BackendKissat    = "kissat"
	BackendCadical   = "cadical"
)

// Configuration holds the tunable limits the constraint compiler and the solver engine recognise.
type Configuration struct {
	MaxHoursPerDay                int    `mapstructure:"maxHoursPerDay" json:"maxHoursPerDay" validate:"min=1,max=24"`
	MaxLabsPerDay                 int    `mapstructure:"maxLabsPerDay" json:"maxLabsPerDay" validate:"min=0"`
	MinGapMinutes                 int    `mapstructure:"minGapMinutes" json:"minGapMinutes" validate:"min=0"`
	WorkingDaysPerWeek            int    `mapstructure:"workingDaysPerWeek" json:"workingDaysPerWeek" validate:"min=1,max=7"`
	EarliestStartHour             int    `mapstructure:"earliestStartHour" json:"earliestStartHour" validate:"min=0,max=23"`
	NoClassesAfterHour            int    `mapstructure:"noClassesAfterHour" json:"noClassesAfterHour" validate:"min=1,max=24"`
	MaxDaySpanMinutes             int    `mapstructure:"maxDaySpanMinutes" json:"maxDaySpanMinutes" validate:"min=0"`
	AllowConsecutiveLabs          bool   `mapstructure:"allowConsecutiveLabs" json:"allowConsecutiveLabs"`
	AllowSameSubjectTwicePerDay   bool   `mapstructure:"allowSameSubjectTwicePerDay" json:"allowSameSubjectTwicePerDay"`
	AllowSubjectOnConsecutiveDays bool   `mapstructure:"allowSubjectOnConsecutiveDays" json:"allowSubjectOnConsecutiveDays"`
	EnableCohort                  bool   `mapstructure:"enableCohort" json:"enableCohort"`
	UseUsageLedger                bool   `mapstructure:"useUsageLedger" json:"useUsageLedger"`
	SectionSeats                  int    `mapstructure:"sectionSeats" json:"sectionSeats" validate:"min=1"`
	RoomStrategy                  string `mapstructure:"roomStrategy" json:"roomStrategy" validate:"oneof=embedded postponed"`

	Solver SolverTuning `mapstructure:"solver" json:"solver"`
}

// SolverTuning only affects how the search runs, never which solutions are valid.
type SolverTuning struct {
	Backend           string  `mapstructure:"backend" json:"backend" validate:"oneof=native gini gophersat kissat cadical"`
	MaxTimeSeconds    float64 `mapstructure:"maxTimeSeconds" json:"maxTimeSeconds" validate:"gt=0"`
	NumSearchWorkers  int     `mapstructure:"numSearchWorkers" json:"numSearchWorkers" validate:"min=1,max=64"`
	LogSearchProgress bool    `mapstructure:"logSearchProgress" json:"logSearchProgress"`
	UseFixedSearch    bool    `mapstructure:"useFixedSearch" json:"useFixedSearch"`
	Seed              uint64  `mapstructure:"seed" json:"seed"`
}

var defaultConfiguration = Configuration{
	MaxHoursPerDay:     8,
	MaxLabsPerDay:      1,
	MinGapMinutes:      0,
	WorkingDaysPerWeek: 5,
	EarliestStartHour:  8,
	NoClassesAfterHour: 20,
	UseUsageLedger:     true,
	SectionSeats:       50,
	RoomStrategy:       RoomStrategyEmbedded,
	Solver: SolverTuning{
		Backend:          BackendNative,
		MaxTimeSeconds:   30,
		NumSearchWorkers: 1,
		Seed:             1,
	},
}

// Default returns a copy of the canonical configuration.
func Default() Configuration {
	return defaultConfiguration
}

// Budget is the mandatory search time budget.
func (tuning SolverTuning) Budget() time.Duration {
	return time.Duration(tuning.MaxTimeSeconds * float64(time.Second))
}

// DaySpanMinutes is the widest allowed distance between the first start and the last end of a section's day.
func (configuration Configuration) DaySpanMinutes() int {
	if configuration.MaxDaySpanMinutes > 0 {
		return configuration.MaxDaySpanMinutes
	}
	return configuration.MaxHoursPerDay * 60
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		// Report fields by their JSON names
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate rejects malformed values; nothing is coerced.
func (configuration Configuration) Validate() error {
	if err := structValidator().Struct(configuration); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			fieldError := validationErrors[0]
			return appErrors.Validation(fieldError.Field(), describe(fieldError))
		}
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Message)
	}

	if configuration.EarliestStartHour >= configuration.NoClassesAfterHour {
		return appErrors.Validation("earliestStartHour", fmt.Sprintf("must be before noClassesAfterHour (%d >= %d)", configuration.EarliestStartHour, configuration.NoClassesAfterHour))
	}
	return nil
}

func describe(fieldError validator.FieldError) string {
	switch fieldError.Tag() {
	case "min":
		return fmt.Sprintf("must be at least %s, got %v", fieldError.Param(), fieldError.Value())
	case "max":
		return fmt.Sprintf("must be at most %s, got %v", fieldError.Param(), fieldError.Value())
	case "gt":
		return fmt.Sprintf("must be greater than %s, got %v", fieldError.Param(), fieldError.Value())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fieldError.Param(), fieldError.Value())
	default:
		return fmt.Sprintf("failed %q check", fieldError.Tag())
	}
}
