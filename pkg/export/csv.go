package export

import (
	"fmt"
	"io"
	"strconv"

	"github.com/gocarina/gocsv"
	"github.com/samber/lo"

	appErrors "github.com/limaJavier/coursetable/pkg/errors"
	"github.com/limaJavier/coursetable/pkg/model"
)

// AssignmentRow is one timetable session as written to CSV.
type AssignmentRow struct {
	ID       string `csv:"id"`
	Section  string `csv:"section"`
	Semester int    `csv:"semester"`
	Subject  string `csv:"subject"`
	Kind     string `csv:"type"`
	Room     string `csv:"room"`
	Day      string `csv:"day"`
	Slot     int    `csv:"slot"`
	Start    string `csv:"start"`
	End      string `csv:"end"`
	Cohort   string `csv:"cohort"`
	Teacher  string `csv:"teacher"`
}

type TeacherAssignmentRow struct {
	AssignmentID string `csv:"assignment_id"`
	Teacher      string `csv:"teacher"`
	Section      string `csv:"section"`
	Subject      string `csv:"subject"`
	Kind         string `csv:"type"`
	Day          string `csv:"day"`
	Slot         int    `csv:"slot"`
	Tier         int    `csv:"tier"`
}

// PreferenceRow mirrors the preference spreadsheet columns.
type PreferenceRow struct {
	Teacher  string `csv:"teacher"`
	Course   string `csv:"course"`
	Type     string `csv:"type"`
	Sections int    `csv:"sections"`
	Priority int    `csv:"priority"`
}

// clock renders minutes after midnight as HH:MM.
func clock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func AssignmentRows(assignments []model.Assignment) []*AssignmentRow {
	return lo.Map(assignments, func(assignment model.Assignment, _ int) *AssignmentRow {
		return &AssignmentRow{
			ID:       assignment.ID,
			Section:  assignment.Section,
			Semester: assignment.Semester,
			Subject:  assignment.Subject,
			Kind:     assignment.Kind.String(),
			Room:     assignment.Room,
			Day:      assignment.Day.String(),
			Slot:     assignment.Slot,
			Start:    clock(assignment.Start),
			End:      clock(assignment.End),
			Cohort:   assignment.Cohort,
			Teacher:  assignment.Teacher,
		}
	})
}

func TeacherAssignmentRows(assignments []model.TeacherAssignment) []*TeacherAssignmentRow {
	return lo.Map(assignments, func(assignment model.TeacherAssignment, _ int) *TeacherAssignmentRow {
		return &TeacherAssignmentRow{
			AssignmentID: assignment.AssignmentID,
			Teacher:      assignment.Teacher,
			Section:      assignment.Section,
			Subject:      assignment.Subject,
			Kind:         assignment.Kind.String(),
			Day:          assignment.Day.String(),
			Slot:         assignment.Slot,
			Tier:         assignment.Tier,
		}
	})
}

// WriteAssignments writes the timetable as CSV with a header row.
func WriteAssignments(out io.Writer, assignments []model.Assignment) error {
	rows := AssignmentRows(assignments)
	if err := gocsv.Marshal(&rows, out); err != nil {
		return fmt.Errorf("write assignments csv: %w", err)
	}
	return nil
}

func WriteTeacherAssignments(out io.Writer, assignments []model.TeacherAssignment) error {
	rows := TeacherAssignmentRows(assignments)
	if err := gocsv.Marshal(&rows, out); err != nil {
		return fmt.Errorf("write teacher assignments csv: %w", err)
	}
	return nil
}

// ReadPreferences parses a preference spreadsheet into raw preferences.
func ReadPreferences(in io.Reader) ([]model.RawPreference, error) {
	rows := []*PreferenceRow{}
	if err := gocsv.Unmarshal(in, &rows); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, "malformed preferences csv")
	}
	return lo.Map(rows, func(row *PreferenceRow, _ int) model.RawPreference {
		return model.RawPreference{
			Teacher:  row.Teacher,
			Course:   row.Course,
			Type:     row.Type,
			Sections: row.Sections,
			Priority: row.Priority,
		}
	}), nil
}

// ReadAssignments parses a timetable previously written by WriteAssignments.
func ReadAssignments(in io.Reader, grid model.Grid) ([]model.Assignment, error) {
	rows := []*AssignmentRow{}
	if err := gocsv.Unmarshal(in, &rows); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, "malformed assignments csv")
	}

	assignments := make([]model.Assignment, 0, len(rows))
	for line, row := range rows {
		kind, err := model.ParseKind(row.Kind)
		if err != nil {
			return nil, appErrors.Validation("assignment", "row "+strconv.Itoa(line+1)+": "+err.Error())
		}
		var day model.Day
		if err := day.UnmarshalText([]byte(row.Day)); err != nil {
			return nil, appErrors.Validation("assignment", "row "+strconv.Itoa(line+1)+": "+err.Error())
		}
		if row.Slot < 0 || row.Slot >= len(grid.Windows(kind)) {
			return nil, appErrors.Validation("assignment", fmt.Sprintf("row %d: slot %d outside the %v grid", line+1, row.Slot, kind))
		}
		window := grid.Window(kind, row.Slot)
		assignments = append(assignments, model.Assignment{
			ID:       row.ID,
			Section:  row.Section,
			Semester: row.Semester,
			Subject:  row.Subject,
			Kind:     kind,
			Room:     row.Room,
			Day:      day,
			Slot:     row.Slot,
			Start:    window.Start,
			End:      window.End,
			Cohort:   row.Cohort,
			Teacher:  row.Teacher,
		})
	}
	return assignments, nil
}
