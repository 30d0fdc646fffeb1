package model

import (
	"fmt"
	"strings"

	appErrors "github.com/limaJavier/coursetable/pkg/errors"
)

// CourseMatch is either a specific course code or any course.
type CourseMatch struct {
	Any  bool
	Code string
}

func AnyCourse() CourseMatch {
	return CourseMatch{Any: true}
}

func SpecificCourse(code string) CourseMatch {
	return CourseMatch{Code: code}
}

func (match CourseMatch) Matches(code string) bool {
	return match.Any || strings.EqualFold(match.Code, code)
}

func (match CourseMatch) String() string {
	if match.Any {
		return "*"
	}
	return match.Code
}

// TypeMatch is either a specific session kind or any kind.
type TypeMatch struct {
	Any  bool
	Kind Kind
}

func AnyType() TypeMatch {
	return TypeMatch{Any: true}
}

func SpecificType(kind Kind) TypeMatch {
	return TypeMatch{Kind: kind}
}

func (match TypeMatch) Matches(kind Kind) bool {
	return match.Any || match.Kind == kind
}

func (match TypeMatch) String() string {
	if match.Any {
		return "*"
	}
	return match.Kind.String()
}

// TeacherPreference declares how many sections of matching sessions a teacher takes.
type TeacherPreference struct {
	Teacher  string
	Course   CourseMatch
	Type     TypeMatch
	Sections int
	Priority int // Lower values are served first within a tier
}

// Tier returns the specificity level, 1 (most specific) to 4.
func (preference TeacherPreference) Tier() int {
	switch {
	case !preference.Course.Any && !preference.Type.Any:
		return 1
	case !preference.Course.Any:
		return 2
	case !preference.Type.Any:
		return 3
	default:
		return 4
	}
}

func (preference TeacherPreference) String() string {
	return fmt.Sprintf("%v(%v/%v x%d)", preference.Teacher, preference.Course, preference.Type, preference.Sections)
}

// RawPreference is the loosely typed form preferences arrive in.
type RawPreference struct {
	Teacher  string `json:"teacher" validate:"required"`
	Course   string `json:"course" validate:"required"`
	Type     string `json:"type" validate:"required"`
	Sections int    `json:"sections" validate:"min=1"`
	Priority int    `json:"priority" validate:"min=0"`
}

func ParseCourseMatch(raw string) (CourseMatch, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return CourseMatch{}, fmt.Errorf("empty course code")
	case raw == "*":
		return AnyCourse(), nil
	}
	return SpecificCourse(raw), nil
}

func ParseTypeMatch(raw string) (TypeMatch, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "*", "any", "both":
		return AnyType(), nil
	}
	kind, err := ParseKind(raw)
	if err != nil {
		return TypeMatch{}, fmt.Errorf("malformed preference type %q", raw)
	}
	return SpecificType(kind), nil
}

// ParsePreference turns a raw preference into its tagged form.
func ParsePreference(raw RawPreference) (TeacherPreference, error) {
	if strings.TrimSpace(raw.Teacher) == "" {
		return TeacherPreference{}, appErrors.Validation("preference", "missing teacher")
	}
	if raw.Sections < 1 {
		return TeacherPreference{}, appErrors.Validation("preference", fmt.Sprintf("teacher %v: sections count must be positive, got %d", raw.Teacher, raw.Sections))
	}
	course, err := ParseCourseMatch(raw.Course)
	if err != nil {
		return TeacherPreference{}, appErrors.Validation("preference", fmt.Sprintf("teacher %v: %v", raw.Teacher, err))
	}
	kind, err := ParseTypeMatch(raw.Type)
	if err != nil {
		return TeacherPreference{}, appErrors.Validation("preference", fmt.Sprintf("teacher %v: %v", raw.Teacher, err))
	}
	return TeacherPreference{
		Teacher:  strings.TrimSpace(raw.Teacher),
		Course:   course,
		Type:     kind,
		Sections: raw.Sections,
		Priority: raw.Priority,
	}, nil
}
