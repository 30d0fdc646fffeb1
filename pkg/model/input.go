package model

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/mitchellh/mapstructure"
	"github.com/samber/lo"

	appErrors "github.com/limaJavier/coursetable/pkg/errors"
)

// Input is the read-only domain a solve runs against.
type Input struct {
	Grid      Grid             `json:"grid"`
	Semesters []Semester       `json:"semesters"`
	Sections  []Section        `json:"sections"`
	Subjects  []Subject        `json:"subjects"`
	Rooms     []Room           `json:"rooms"`
	Cohorts   []CohortOffering `json:"cohorts"`
	Electives []ElectiveCourse `json:"electives"`
}

// AssignmentInput feeds the teacher assignment engine.
type AssignmentInput struct {
	Assignments []Assignment    `json:"assignments"`
	Preferences []RawPreference `json:"preferences"`
}

func InputFromJson(file string) (Input, error) {
	var input Input
	if err := decodeJsonFile(file, &input); err != nil {
		return Input{}, err
	}
	if input.Grid.IsZero() {
		input.Grid = DefaultGrid()
	}
	return input, nil
}

func AssignmentInputFromJson(file string) (AssignmentInput, error) {
	var input AssignmentInput
	err := decodeJsonFile(file, &input)
	return input, err
}

func decodeJsonFile(file string, target any) error {
	bytes, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read input file: %w", err)
	}
	var inputJson map[string]any
	if err := json.Unmarshal(bytes, &inputJson); err != nil {
		return fmt.Errorf("parse input file: %w", err)
	}
	return Decode(inputJson, target)
}

// Decode maps loosely typed JSON values onto domain structs, accepting names for days and kinds.
func Decode(raw map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.TextUnmarshallerHookFunc(),
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           target,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStructural.Code, "cannot decode input")
	}
	return nil
}

func structural(format string, args ...any) error {
	return appErrors.Clone(appErrors.ErrStructural, fmt.Sprintf(format, args...))
}

// Validate checks the records are consistent with each other.
func (input Input) Validate() error {
	if err := input.Grid.Validate(); err != nil {
		return appErrors.Validation("grid", err.Error())
	}

	if duplicates := lo.FindDuplicates(lo.Map(input.Rooms, func(room Room, _ int) string { return room.ID })); len(duplicates) > 0 {
		return structural("duplicate room ids %v", duplicates)
	}
	if duplicates := lo.FindDuplicates(lo.Map(input.Subjects, func(subject Subject, _ int) string { return subject.Code })); len(duplicates) > 0 {
		return structural("duplicate subject codes %v", duplicates)
	}
	if duplicates := lo.FindDuplicates(lo.Map(input.Sections, func(section Section, _ int) string { return section.Name })); len(duplicates) > 0 {
		return structural("duplicate section names %v", duplicates)
	}

	rooms := lo.KeyBy(input.Rooms, func(room Room) string { return room.ID })
	for _, room := range input.Rooms {
		if room.Capacity < 0 {
			return structural("room %v has a negative capacity", room.ID)
		}
	}

	subjects := lo.KeyBy(input.Subjects, func(subject Subject) string { return subject.Code })
	for _, subject := range input.Subjects {
		if subject.WeeklySessions < 1 {
			return appErrors.Validation("weeklySessions", fmt.Sprintf("subject %v needs at least one weekly session", subject.Code))
		}
		if subject.Special && len(subject.Rooms) == 0 {
			return appErrors.Validation("rooms", fmt.Sprintf("special subject %v has an empty room whitelist", subject.Code))
		}
		for _, id := range subject.Rooms {
			room, ok := rooms[id]
			if !ok {
				return structural("subject %v whitelists unknown room %v", subject.Code, id)
			}
			if room.Kind != subject.Kind {
				return structural("subject %v (%v) whitelists %v room %v", subject.Code, subject.Kind, room.Kind, id)
			}
		}
	}

	semesters := lo.KeyBy(input.Semesters, func(semester Semester) int { return semester.Number })
	for _, semester := range input.Semesters {
		for _, code := range semester.Courses {
			if _, ok := subjects[code]; !ok {
				return structural("semester %d references unknown subject %v", semester.Number, code)
			}
		}
	}
	for _, section := range input.Sections {
		if _, ok := semesters[section.Semester]; !ok {
			return structural("section %v belongs to unknown semester %d", section.Name, section.Semester)
		}
		if section.Capacity < 1 {
			return structural("section %v must have a positive capacity", section.Name)
		}
		for _, code := range section.Subjects {
			if _, ok := subjects[code]; !ok {
				return structural("section %v references unknown subject %v", section.Name, code)
			}
		}
	}

	for _, offering := range input.Cohorts {
		subject, ok := subjects[offering.Subject]
		if !ok {
			return structural("cohort offering %v references unknown subject %v", offering.Label, offering.Subject)
		}
		if offering.Kind != subject.Kind {
			return structural("cohort offering %v is %v but subject %v is %v", offering.Label, offering.Kind, subject.Code, subject.Kind)
		}
		if offering.Slot < 0 || offering.Slot >= len(input.Grid.Windows(offering.Kind)) {
			return structural("cohort offering %v uses slot %d outside the grid", offering.Label, offering.Slot)
		}
		if offering.Capacity < 1 {
			return structural("cohort offering %v must have a positive capacity", offering.Label)
		}
	}

	return nil
}

// ValidateElectives checks the elective demand records.
func (input Input) ValidateElectives() error {
	if err := input.Grid.Validate(); err != nil {
		return appErrors.Validation("grid", err.Error())
	}
	if duplicates := lo.FindDuplicates(lo.Map(input.Electives, func(elective ElectiveCourse, _ int) string { return elective.Code })); len(duplicates) > 0 {
		return structural("duplicate elective codes %v", duplicates)
	}
	for _, elective := range input.Electives {
		if !elective.CanTheory && !elective.CanLab {
			return appErrors.Validation("electives", fmt.Sprintf("elective %v must allow theory or lab", elective.Code))
		}
		if elective.Sections < 1 {
			return appErrors.Validation("electives", fmt.Sprintf("elective %v needs at least one section", elective.Code))
		}
		for _, kind := range elective.Kinds() {
			if elective.Needed(kind) < 1 {
				return appErrors.Validation("electives", fmt.Sprintf("elective %v needs at least one %v session", elective.Code, kind))
			}
		}
	}
	return nil
}

// SubjectsOf returns the subject codes a section must be scheduled for.
func (input Input) SubjectsOf(section Section) []string {
	if len(section.Subjects) > 0 {
		return section.Subjects
	}
	semester, _ := lo.Find(input.Semesters, func(semester Semester) bool { return semester.Number == section.Semester })
	return semester.Courses
}

// Requirements derives one requirement per (section, subject, occurrence) for the selected semesters.
// An empty selection means every semester. Cohort subjects yield a single cohort requirement per section.
func (input Input) Requirements(semesters []int, enableCohort bool) []Requirement {
	subjects := lo.KeyBy(input.Subjects, func(subject Subject) string { return subject.Code })
	cohortSubjects := lo.Uniq(lo.Map(input.Cohorts, func(offering CohortOffering, _ int) string { return offering.Subject }))

	requirements := make([]Requirement, 0)
	for _, section := range input.Sections {
		if len(semesters) > 0 && !slices.Contains(semesters, section.Semester) {
			continue
		}
		for _, code := range input.SubjectsOf(section) {
			subject := subjects[code]
			if enableCohort && slices.Contains(cohortSubjects, code) {
				requirements = append(requirements, Requirement{
					Section:  section.Name,
					Semester: section.Semester,
					Subject:  code,
					Kind:     subject.Kind,
					Capacity: section.Capacity,
					Cohort:   true,
				})
				continue
			}
			for occurrence := range subject.WeeklySessions {
				requirements = append(requirements, Requirement{
					Section:    section.Name,
					Semester:   section.Semester,
					Subject:    code,
					Kind:       subject.Kind,
					Occurrence: occurrence,
					Capacity:   section.Capacity,
				})
			}
		}
	}
	return requirements
}

// ElectiveRequirements derives requirements from caller supplied elective demand. An elective that
// allows both kinds yields a theory family and a lab family per section, marked as alternatives.
func (input Input) ElectiveRequirements() []Requirement {
	requirements := make([]Requirement, 0)
	for _, elective := range input.Electives {
		kinds := elective.Kinds()
		for section := range elective.Sections {
			for _, kind := range kinds {
				for occurrence := range elective.Needed(kind) {
					requirements = append(requirements, Requirement{
						Section:     ElectiveSectionName(elective.Code, section),
						Subject:     elective.Code,
						Kind:        kind,
						Occurrence:  occurrence,
						Capacity:    elective.Capacity,
						Alternative: len(kinds) > 1,
					})
				}
			}
		}
	}
	return requirements
}

// SplitCohort splits enrolled students into sections of at most seats students named S{semester}{program}{i}.
func SplitCohort(program string, semester, students, seats int) []Section {
	if students <= 0 || seats <= 0 {
		return nil
	}
	count := (students + seats - 1) / seats
	sections := make([]Section, count)
	for i := range count {
		capacity := students / count
		if i < students%count {
			capacity++
		}
		sections[i] = Section{
			Name:     fmt.Sprintf("S%d%s%d", semester, program, i+1),
			Semester: semester,
			Capacity: capacity,
		}
	}
	return sections
}
