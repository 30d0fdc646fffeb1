package model

import (
	"fmt"
	"strings"
)

type Kind int

const (
	Theory Kind = iota
	Lab
)

var kindNames = map[Kind]string{
	Theory: "theory",
	Lab:    "lab",
}

func (kind Kind) String() string {
	if name, ok := kindNames[kind]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(kind))
}

func (kind Kind) MarshalText() ([]byte, error) {
	return []byte(kind.String()), nil
}

func (kind *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*kind = parsed
	return nil
}

// ParseKind accepts the long and the one-letter spellings.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "theory", "t":
		return Theory, nil
	case "lab", "l":
		return Lab, nil
	}
	return 0, fmt.Errorf("unknown session kind %q", raw)
}

var Kinds = []Kind{Theory, Lab}

type Day int

const (
	Monday Day = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var dayNames = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

func (day Day) String() string {
	if day < Monday || day > Sunday {
		return fmt.Sprintf("day(%d)", int(day))
	}
	return dayNames[day]
}

func (day Day) MarshalText() ([]byte, error) {
	return []byte(day.String()), nil
}

func (day *Day) UnmarshalText(text []byte) error {
	for i, name := range dayNames {
		if strings.EqualFold(name, string(text)) || strings.EqualFold(name[:3], string(text)) {
			*day = Day(i)
			return nil
		}
	}
	return fmt.Errorf("unknown day %q", string(text))
}

// Slot-index removed from every Friday (midday break)
const FridayBreakSlot = 3

// Window is a closed-open interval of minutes since midnight.
type Window struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (window Window) Minutes() int {
	return window.End - window.Start
}

func (window Window) Overlaps(other Window) bool {
	return window.Start < other.End && other.Start < window.End
}

// Contains reports whether the minute lies inside the window.
func (window Window) Contains(minute int) bool {
	return window.Start <= minute && minute < window.End
}

func (window Window) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", window.Start/60, window.Start%60, window.End/60, window.End%60)
}

// TimeSlot identifies one cell of the weekly grid.
type TimeSlot struct {
	Day   Day  `json:"day"`
	Kind  Kind `json:"kind"`
	Index int  `json:"slot"`
}

func (slot TimeSlot) String() string {
	return fmt.Sprintf("%v/%v#%d", slot.Day, slot.Kind, slot.Index)
}

// Grid is the weekly slot layout, one window list per session kind.
type Grid struct {
	Theory []Window `json:"theory"`
	Lab    []Window `json:"lab"`
}

func DefaultGrid() Grid {
	return Grid{
		Theory: []Window{
			{480, 555}, {570, 645}, {660, 735}, {750, 825}, {840, 915}, {930, 1005}, {1020, 1095},
		},
		Lab: []Window{
			{480, 630}, {660, 810}, {840, 990}, {1020, 1170},
		},
	}
}

func (grid Grid) Windows(kind Kind) []Window {
	if kind == Lab {
		return grid.Lab
	}
	return grid.Theory
}

func (grid Grid) Window(kind Kind, index int) Window {
	return grid.Windows(kind)[index]
}

// Usable applies the day-of-week business rules to a slot.
func (grid Grid) Usable(day Day, index int) bool {
	return !(day == Friday && index == FridayBreakSlot)
}

// LongestMinutes returns the longest window of the given kind.
func (grid Grid) LongestMinutes(kind Kind) int {
	longest := 0
	for _, window := range grid.Windows(kind) {
		longest = max(longest, window.Minutes())
	}
	return longest
}

func (grid Grid) IsZero() bool {
	return len(grid.Theory) == 0 && len(grid.Lab) == 0
}

// Validate checks that windows are well formed and sorted without overlap inside each family.
func (grid Grid) Validate() error {
	for _, kind := range Kinds {
		windows := grid.Windows(kind)
		if len(windows) == 0 {
			return fmt.Errorf("grid has no %v slots", kind)
		}
		for i, window := range windows {
			if window.Start < 0 || window.End > 24*60 || window.Start >= window.End {
				return fmt.Errorf("%v slot %d has an invalid window %v", kind, i, window)
			}
			if i > 0 && windows[i-1].End > window.Start {
				return fmt.Errorf("%v slots %d and %d overlap or are unsorted", kind, i-1, i)
			}
		}
	}
	return nil
}
