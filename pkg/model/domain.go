package model

import "fmt"

type Semester struct {
	Number  int      `json:"number"`
	Courses []string `json:"courses"` // Subject codes every section of the semester takes
}

type Section struct {
	Name     string   `json:"name"`
	Semester int      `json:"semester"`
	Capacity int      `json:"capacity"`
	Subjects []string `json:"subjects,omitempty"` // Overrides the semester's courses when present
}

type Subject struct {
	Code           string   `json:"code"`
	Name           string   `json:"name"`
	Kind           Kind     `json:"kind"`
	WeeklySessions int      `json:"weeklySessions"`
	Special        bool     `json:"special"`
	Rooms          []string `json:"rooms,omitempty"` // Whitelist, mandatory for special subjects
}

type Room struct {
	ID       string `json:"id"`
	Kind     Kind   `json:"kind"`
	Capacity int    `json:"capacity"`
}

// CohortOffering is a fixed time a shared cohort course is held; sections pick one of them.
type CohortOffering struct {
	Subject  string `json:"subject"`
	Label    string `json:"label"`
	Day      Day    `json:"day"`
	Kind     Kind   `json:"kind"`
	Slot     int    `json:"slot"`
	Room     string `json:"room"`
	Capacity int    `json:"capacity"`
}

// ElectiveCourse carries caller supplied demand instead of section derived counts.
type ElectiveCourse struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	Sections     int    `json:"sections"`
	CanTheory    bool   `json:"canTheory"`
	CanLab       bool   `json:"canLab"`
	TheoryNeeded int    `json:"theoryNeeded"`
	LabNeeded    int    `json:"labNeeded"`
	Capacity     int    `json:"capacity"`
}

// Kinds lists the session kinds a section of the elective may be held as.
func (elective ElectiveCourse) Kinds() []Kind {
	kinds := make([]Kind, 0, 2)
	if elective.CanTheory {
		kinds = append(kinds, Theory)
	}
	if elective.CanLab {
		kinds = append(kinds, Lab)
	}
	return kinds
}

func (elective ElectiveCourse) Needed(kind Kind) int {
	if kind == Lab {
		return elective.LabNeeded
	}
	return elective.TheoryNeeded
}

func ElectiveSectionName(code string, index int) string {
	return fmt.Sprintf("Elective-%s-A%d", code, index+1)
}

// Usage is one occupied (room, timeslot) cell as kept by the usage ledger.
type Usage struct {
	Kind Kind   `json:"kind"`
	Room string `json:"room"`
	Day  Day    `json:"day"`
	Slot int    `json:"slot"`
}

func (usage Usage) String() string {
	return fmt.Sprintf("%v@%v/%v#%d", usage.Room, usage.Day, usage.Kind, usage.Slot)
}

// Requirement is one weekly occurrence of a subject a section must be scheduled for.
type Requirement struct {
	Section     string `json:"section"`
	Semester    int    `json:"semester"`
	Subject     string `json:"subject"`
	Kind        Kind   `json:"kind"`
	Occurrence  int    `json:"occurrence"`
	Capacity    int    `json:"capacity"`
	Cohort      bool   `json:"cohort,omitempty"`      // Satisfied by choosing a cohort offering
	Alternative bool   `json:"alternative,omitempty"` // One kind family among others; the section holds exactly one family in full
}

func (requirement Requirement) String() string {
	return fmt.Sprintf("%v:%v#%d", requirement.Section, requirement.Subject, requirement.Occurrence)
}

type Assignment struct {
	ID         string `json:"id"`
	Section    string `json:"section"`
	Semester   int    `json:"semester"`
	Subject    string `json:"subject"`
	Kind       Kind   `json:"kind"`
	Occurrence int    `json:"occurrence"`
	Room       string `json:"room"`
	Day        Day    `json:"day"`
	Slot       int    `json:"slot"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Cohort     string `json:"cohort,omitempty"`
	Teacher    string `json:"teacher,omitempty"`
}

func (assignment Assignment) TimeSlot() TimeSlot {
	return TimeSlot{Day: assignment.Day, Kind: assignment.Kind, Index: assignment.Slot}
}

func (assignment Assignment) Window() Window {
	return Window{Start: assignment.Start, End: assignment.End}
}

// Usage returns the ledger cell the assignment occupies.
func (assignment Assignment) Usage() Usage {
	return Usage{Kind: assignment.Kind, Room: assignment.Room, Day: assignment.Day, Slot: assignment.Slot}
}

// Clashes reports whether both assignments are held at overlapping times.
func (assignment Assignment) Clashes(other Assignment) bool {
	return assignment.Day == other.Day && assignment.Window().Overlaps(other.Window())
}

// TeacherAssignment maps a session to the teacher who holds it.
type TeacherAssignment struct {
	AssignmentID string `json:"assignmentId"`
	Teacher      string `json:"teacher"`
	Section      string `json:"section"`
	Subject      string `json:"subject"`
	Kind         Kind   `json:"kind"`
	Day          Day    `json:"day"`
	Slot         int    `json:"slot"`
	Tier         int    `json:"tier"`
}
